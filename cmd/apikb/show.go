package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"apikb/internal/manifest"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one entity from the manifest",
}

var showServiceCmd = &cobra.Command{
	Use:   "service <name>",
	Short: "Show a service with its endpoints and schemas",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		api := mustGetAPI()
		svc := api.GetService(args[0])
		if svc == nil {
			fmt.Fprintf(os.Stderr, "Service %q not found.\n", args[0])
			os.Exit(1)
		}
		printJSON(svc)
	},
}

var showEndpointCmd = &cobra.Command{
	Use:   "endpoint <method> <path>",
	Short: "Show a single endpoint by method and path template",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		api := mustGetAPI()
		ep := api.GetEndpoint(args[1], args[0])
		if ep == nil {
			fmt.Fprintf(os.Stderr, "Endpoint %s %s not found.\n", args[0], args[1])
			os.Exit(1)
		}
		printJSON(ep)
	},
}

var showDtoService string

var showDtoCmd = &cobra.Command{
	Use:   "dto <name>",
	Short: "Show a schema by name",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		api := mustGetAPI()
		dto := api.GetDTO(showDtoService, args[0])
		if dto == nil {
			fmt.Fprintf(os.Stderr, "Schema %q not found.\n", args[0])
			os.Exit(1)
		}
		printJSON(dto)
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List environment variables referenced by the codebase",
	Run: func(cmd *cobra.Command, args []string) {
		api := mustGetAPI()
		for _, ev := range api.EnvironmentVariables() {
			if ev.Default != "" {
				fmt.Printf("%-30s default=%-20s %s\n", ev.Name, ev.Default, ev.SourceFile)
			} else {
				fmt.Printf("%-30s %-28s %s\n", ev.Name, "", ev.SourceFile)
			}
		}
	},
}

func init() {
	showDtoCmd.Flags().StringVar(&showDtoService, "service", "", "Restrict lookup to one service")
	showCmd.AddCommand(showServiceCmd)
	showCmd.AddCommand(showEndpointCmd)
	showCmd.AddCommand(showDtoCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(envCmd)
}

func mustGetAPI() *manifest.API {
	root := mustGetProjectRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)
	pk := mustLoadManifest(root, logger)
	return manifest.NewAPI(pk, nil)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
