package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"apikb/internal/manifest"
	"apikb/internal/vector"
	"apikb/internal/version"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge base status",
	Long:  "Display manifest freshness, entity counts, and vector index state",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}

// StatusResponse contains the knowledge base status for CLI output
type StatusResponse struct {
	Version      string `json:"version"`
	ManifestOK   bool   `json:"manifestOk"`
	ManifestErr  string `json:"manifestError,omitempty"`
	GeneratedAt  string `json:"generatedAt,omitempty"`
	Services     int    `json:"services"`
	Endpoints    int    `json:"endpoints"`
	DTOs         int    `json:"dtos"`
	EnvVars      int    `json:"envVars"`
	Files        int    `json:"files"`
	ParseErrors  int    `json:"parseErrors"`
	IndexBuilt   bool   `json:"indexBuilt"`
	IndexCurrent bool   `json:"indexCurrent"`
	IndexChunks  int    `json:"indexChunks"`
}

func runStatus(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)

	resp := StatusResponse{Version: version.Version}

	store := manifest.NewStore(manifest.DefaultPath(root), logger)
	pk, err := store.Load()
	if err != nil {
		resp.ManifestErr = err.Error()
	} else {
		resp.ManifestOK = true
		resp.GeneratedAt = pk.GeneratedAt.Format("2006-01-02 15:04:05 MST")
		resp.Services = len(pk.Services)
		resp.Files = len(pk.Files)
		for i := range pk.Services {
			resp.Endpoints += len(pk.Services[i].Endpoints)
			resp.DTOs += len(pk.Services[i].DTOs)
		}
		resp.EnvVars = len(pk.Environment)
		for _, fm := range pk.Files {
			if fm.Status == manifest.StatusParseError {
				resp.ParseErrors++
			}
		}
	}

	if vs, vErr := vector.OpenStore(root, logger); vErr == nil {
		if fp, fpErr := vs.CurrentFingerprint(); fpErr == nil && fp != "" {
			resp.IndexBuilt = true
			resp.IndexCurrent = pk != nil && pk.Fingerprint() == fp
			resp.IndexChunks, _ = vs.ChunkCount()
		}
		vs.Close() //nolint:errcheck
	}

	if statusJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("apikb %s\n\n", resp.Version)
	if !resp.ManifestOK {
		fmt.Printf("Manifest: unavailable (%s)\n", resp.ManifestErr)
		os.Exit(0)
	}
	fmt.Printf("Manifest: generated %s\n", resp.GeneratedAt)
	fmt.Printf("  services: %d, endpoints: %d, schemas: %d, env vars: %d\n",
		resp.Services, resp.Endpoints, resp.DTOs, resp.EnvVars)
	fmt.Printf("  files: %d (%d with parse errors)\n", resp.Files, resp.ParseErrors)
	switch {
	case !resp.IndexBuilt:
		fmt.Println("Index: not built (run 'apikb index')")
	case resp.IndexCurrent:
		fmt.Printf("Index: current, %d chunks\n", resp.IndexChunks)
	default:
		fmt.Printf("Index: stale, %d chunks (run 'apikb index')\n", resp.IndexChunks)
	}
}
