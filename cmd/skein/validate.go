package main

import (
	"fmt"
	"os"

	"github.com/aretw0/skein/pkg/catalog"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [catalog-file]",
	Short: "Check a task catalog for consistency",
	Long:  `Parses a tasks.yaml catalog and reports malformed tasks, unknown schema types, and duplicate ids.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "tasks.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		cat, err := catalog.Load(path)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Catalog is valid: %d task(s)\n", cat.Len())
		for _, id := range cat.IDs() {
			task, _ := cat.Task(id)
			fmt.Printf("  %s (model %s, prompt %s)\n", id, task.Model, task.PromptVersion)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
