package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"apikb/internal/manifest"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export, inspect, and diff manifest snapshots",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write a compressed snapshot of the current manifest",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotExport,
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff <file>",
	Short: "Show API drift between a snapshot and the current manifest",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotDiff,
}

var snapshotDiffJSON bool

func init() {
	snapshotDiffCmd.Flags().BoolVar(&snapshotDiffJSON, "json", false, "Output as JSON")
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotDiffCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotExport(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)

	pk := mustLoadManifest(root, logger)
	if err := manifest.ExportSnapshot(pk, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Snapshot written to %s\n", args[0])
}

func runSnapshotDiff(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)

	old, err := manifest.ImportSnapshot(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading snapshot: %v\n", err)
		os.Exit(1)
	}
	current := mustLoadManifest(root, logger)

	delta := manifest.Diff(old, current)

	if snapshotDiffJSON {
		out, _ := json.MarshalIndent(delta, "", "  ")
		fmt.Println(string(out))
		return
	}

	if delta.Empty() {
		fmt.Println("No API drift.")
		return
	}

	printDeltaSection("Services added", delta.ServicesAdded)
	printDeltaSection("Services removed", delta.ServicesRemoved)
	printDeltaSection("Endpoints added", delta.EndpointsAdded)
	printDeltaSection("Endpoints removed", delta.EndpointsRemoved)
	printDeltaSection("Endpoints changed", delta.EndpointsChanged)
	printDeltaSection("Schemas added", delta.DTOsAdded)
	printDeltaSection("Schemas removed", delta.DTOsRemoved)
	printDeltaSection("Schemas changed", delta.DTOsChanged)
	printDeltaSection("Env vars added", delta.EnvAdded)
	printDeltaSection("Env vars removed", delta.EnvRemoved)

	// Drift found; non-zero exit lets CI gate on it
	os.Exit(2)
}

func printDeltaSection(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	for _, it := range items {
		fmt.Printf("  %s\n", it)
	}
}
