package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "skein",
	Short: "Skein is a task-orchestration and result-caching engine for LLM pipelines",
	Long:  `Skein runs model-backed tasks with deterministic result caching, schema validation, and durable run state. This CLI inspects persisted runs and task catalogs.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", "", "Directory holding persisted runs (default .skein/runs)")
}
