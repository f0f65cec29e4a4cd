package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"apikb/internal/manifest"
)

var (
	endpointsService string
	endpointsMethod  string
	endpointsPrefix  string
	endpointsAuth    bool
	endpointsJSON    bool
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List endpoints from the manifest",
	Run:   runEndpoints,
}

func init() {
	endpointsCmd.Flags().StringVar(&endpointsService, "service", "", "Filter by service")
	endpointsCmd.Flags().StringVar(&endpointsMethod, "method", "", "Filter by HTTP method")
	endpointsCmd.Flags().StringVar(&endpointsPrefix, "prefix", "", "Filter by path prefix")
	endpointsCmd.Flags().BoolVar(&endpointsAuth, "auth-only", false, "Only authenticated endpoints")
	endpointsCmd.Flags().BoolVar(&endpointsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(endpointsCmd)
}

func runEndpoints(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)

	pk := mustLoadManifest(root, logger)
	api := manifest.NewAPI(pk, nil)

	entries := api.ListEndpoints(manifest.EndpointFilter{
		Service:    endpointsService,
		Method:     endpointsMethod,
		PathPrefix: endpointsPrefix,
		AuthOnly:   endpointsAuth,
	})

	if endpointsJSON {
		out, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(entries) == 0 {
		fmt.Println("No endpoints found.")
		return
	}
	for _, e := range entries {
		ep := e.Endpoint
		var notes []string
		if ep.AuthRequired {
			if len(ep.Roles) > 0 {
				notes = append(notes, "auth:"+strings.Join(ep.Roles, "|"))
			} else {
				notes = append(notes, "auth")
			}
		}
		if ep.RequestDTO != "" {
			notes = append(notes, "req="+ep.RequestDTO)
		}
		if ep.ResponseDTO != "" {
			notes = append(notes, "resp="+ep.ResponseDTO)
		}
		suffix := ""
		if len(notes) > 0 {
			suffix = "  (" + strings.Join(notes, ", ") + ")"
		}
		fmt.Printf("%-8s %-40s %s%s\n", ep.Method, ep.Path, e.Service, suffix)
	}
}
