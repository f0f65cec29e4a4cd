package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"apikb/internal/generator"
)

var (
	generateFull bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate or update the API manifest",
	Long: `Scan the project, extract endpoints, schemas, and environment variables,
and write .apikb/manifest.json. By default only files changed since the last
run are re-extracted; --full forces a complete rescan.`,
	Run: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateFull, "full", false, "Force a full rescan")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)
	gen := newGenerator(root, cfg, logger)
	ctx := newContext()

	var err error
	if generateFull {
		_, stats, genErr := gen.Generate(ctx, nil, nil)
		err = genErr
		if err == nil {
			printStats(stats)
		}
	} else {
		syncer := newSyncer(root, cfg, gen, logger)
		_, stats, syncErr := syncer.Sync(ctx)
		err = syncErr
		if err == nil {
			printStats(stats)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating manifest: %v\n", err)
		os.Exit(1)
	}
}

func printStats(stats *generator.Stats) {
	if stats.FilesExtracted == 0 && stats.FilesRemoved == 0 {
		fmt.Println("Manifest is already up to date.")
		return
	}
	mode := "incremental"
	if stats.Full {
		mode = "full"
	}
	fmt.Printf("Manifest updated (%s): %d extracted, %d unchanged, %d removed, %d parse errors in %s\n",
		mode, stats.FilesExtracted, stats.FilesCopied, stats.FilesRemoved, stats.ParseErrors,
		stats.Duration.Round(time.Millisecond))
	for _, w := range stats.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
