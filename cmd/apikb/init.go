package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"apikb/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default .apikb/config.json",
	Run:   runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	cfgPath := filepath.Join(root, config.StateDirName, "config.json")

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		return
	}

	cfg := config.DefaultConfig()
	cfg.ProjectRoot = root
	if err := cfg.Save(root); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", cfgPath)
}
