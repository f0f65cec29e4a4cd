package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"apikb/internal/manifest"
	"apikb/internal/vector"
)

var (
	searchKind    string
	searchService string
	searchLimit   int
	searchBudget  int
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantically search the API knowledge base",
	Long: `Embed the query and return the most relevant endpoints, schemas, and
service summaries from the vector index, packed under a token budget.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "Restrict to a kind (endpoint, dto, service)")
	searchCmd.Flags().StringVar(&searchService, "service", "", "Restrict to one service")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	searchCmd.Flags().IntVar(&searchBudget, "budget", 2048, "Token budget across all results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
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

	retriever := vector.NewRetriever(engine, store, logger)
	api := manifest.NewAPI(pk, retriever.Searcher(pk, vector.Query{
		Kind:        searchKind,
		Service:     searchService,
		Limit:       searchLimit,
		TokenBudget: searchBudget,
	}))
	results, err := api.Search(ctx, strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error searching: %v\n", err)
		os.Exit(1)
	}

	if searchJSON {
		out, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.EntityID)
		for _, line := range strings.Split(strings.TrimRight(r.Text, "\n"), "\n") {
			fmt.Printf("   %s\n", line)
		}
		fmt.Println()
	}
}
