package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"apikb/internal/generator"
	"apikb/internal/manifest"
	"apikb/internal/smartsync"
	"apikb/internal/vector"
)

var (
	watchNoIndex bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the manifest current as files change",
	Long: `Run an initial sync, then watch the project for source changes and
re-extract only what changed. Bursts of filesystem events are coalesced over
the configured debounce window. When an embedding provider is configured the
vector index is rebuilt after each sync unless --no-index is given.`,
	Run: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoIndex, "no-index", false, "Skip vector index rebuilds")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)
	gen := newGenerator(root, cfg, logger)
	syncer := newSyncer(root, cfg, gen, logger)

	ctx, cancel := context.WithCancel(newContext())
	defer cancel()

	var indexer *vector.Indexer
	var store *vector.Store
	if !watchNoIndex && cfg.Vector.Provider != "none" {
		engine, err := vector.NewEngine(cfg.Vector)
		if err != nil {
			logger.Warn("Embedding engine unavailable, watching without indexing", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			store, err = vector.OpenStore(root, logger)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening vector store: %v\n", err)
				os.Exit(1)
			}
			defer store.Close() //nolint:errcheck
			indexer = vector.NewIndexer(engine, store, cfg.Vector.MaxChunkTokens, logger)
		}
	}

	onSync := func(pk *manifest.ProjectKnowledge, stats *generator.Stats) {
		printStats(stats)
		if indexer != nil {
			if _, err := indexer.Index(ctx, pk); err != nil {
				logger.Error("Index rebuild failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}

	// Initial sync before watching so the manifest starts current
	pk, stats, err := syncer.Sync(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during initial sync: %v\n", err)
		os.Exit(1)
	}
	onSync(pk, stats)

	watcher, err := smartsync.NewWatcher(syncer, smartsync.WatchConfig{
		DebounceMs: cfg.Sync.DebounceMs,
	}, onSync, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating watcher: %v\n", err)
		os.Exit(1)
	}

	if err := watcher.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting watcher: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Watching for changes, press Ctrl-C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	if err := watcher.Stop(); err != nil {
		logger.Warn("Watcher shutdown reported an error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
