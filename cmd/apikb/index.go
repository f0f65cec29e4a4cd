package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"apikb/internal/vector"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the vector index from the current manifest",
	Long: `Render every endpoint, schema, and service in the manifest into text
chunks, embed them with the configured provider, and store the result in
.apikb/vectors.db. Rebuilding against an unchanged manifest is a no-op.`,
	Run: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)
	ctx := newContext()

	pk := mustLoadManifest(root, logger)

	engine, err := vector.NewEngine(cfg.Vector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, err := vector.OpenStore(root, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening vector store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close() //nolint:errcheck

	indexer := vector.NewIndexer(engine, store, cfg.Vector.MaxChunkTokens, logger)
	stats, err := indexer.Index(ctx, pk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building index: %v\n", err)
		os.Exit(1)
	}

	if stats.Skipped {
		fmt.Println("Vector index is already current.")
	} else {
		fmt.Printf("Indexed %d chunks with %s.\n", stats.Chunks, engine.Name())
	}
}
