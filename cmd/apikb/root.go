package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"apikb/internal/config"
	"apikb/internal/generator"
	"apikb/internal/logging"
	"apikb/internal/manifest"
	"apikb/internal/scanner"
	"apikb/internal/smartsync"
	"apikb/internal/version"
)

var (
	// rootFlag is the CLI --root flag value
	rootFlag string
	// verboseFlag enables debug logging
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "apikb",
	Short: "apikb - API Knowledge Base",
	Long: `apikb builds a queryable knowledge base of a codebase's HTTP API surface:
endpoints, request/response schemas, and environment variables, extracted
heuristically from Python, Java, and JavaScript/TypeScript sources and kept
current incrementally as files change.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("apikb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "",
		"Project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Enable debug logging")
}

// mustGetProjectRoot resolves the project root from --root or the working
// directory.
func mustGetProjectRoot() string {
	if rootFlag != "" {
		abs, err := os.Stat(rootFlag)
		if err != nil || !abs.IsDir() {
			fmt.Fprintf(os.Stderr, "Error: project root %q is not a directory\n", rootFlag)
			os.Exit(1)
		}
		return rootFlag
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine working directory: %v\n", err)
		os.Exit(1)
	}
	return cwd
}

// mustLoadConfig loads project configuration, exiting on invalid config
func mustLoadConfig(root string) *config.Config {
	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newLogger builds a logger from config, with --verbose overriding the level
func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.LogLevel(cfg.Logging.Level)
	if verboseFlag {
		level = logging.DebugLevel
	}
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  level,
	})
}

// newGenerator wires a generator from project config
func newGenerator(root string, cfg *config.Config, logger *logging.Logger) *generator.Generator {
	return generator.New(root, generator.Config{
		Workers: cfg.Scan.Workers,
		Scan: scanner.Config{
			Include:          cfg.Scan.Include,
			Exclude:          cfg.Scan.Exclude,
			MaxFileSizeBytes: cfg.Scan.MaxFileSizeBytes,
		},
	}, logger)
}

// mustLoadManifest loads the current manifest or exits with guidance
func mustLoadManifest(root string, logger *logging.Logger) *manifest.ProjectKnowledge {
	store := manifest.NewStore(manifest.DefaultPath(root), logger)
	pk, err := store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nRun 'apikb generate' first.\n", err)
		os.Exit(1)
	}
	return pk
}

// newSyncer wires a syncer sharing the generator's scan settings
func newSyncer(root string, cfg *config.Config, gen *generator.Generator, logger *logging.Logger) *smartsync.Syncer {
	return smartsync.New(root, scanner.Config{
		Include:          cfg.Scan.Include,
		Exclude:          cfg.Scan.Exclude,
		MaxFileSizeBytes: cfg.Scan.MaxFileSizeBytes,
	}, gen, logger)
}

func newContext() context.Context {
	return context.Background()
}
