package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/skein/pkg/adapters/file"
	"github.com/aretw0/skein/pkg/record"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted run IDs",
	Run: func(cmd *cobra.Command, args []string) {
		store := storeFromFlags(cmd)
		ids, err := store.List(cmd.Context())
		if err != nil {
			fmt.Printf("Failed to list runs: %v\n", err)
			os.Exit(1)
		}
		if len(ids) == 0 {
			fmt.Println("No runs found.")
			return
		}
		for _, id := range ids {
			line := id
			if data, err := store.Load(cmd.Context(), id); err == nil {
				if doc, err := record.Decode(data); err == nil {
					line = fmt.Sprintf("%s\t%s\t%d invocations", id, doc.Status, len(doc.Invocations))
				}
			}
			fmt.Println(line)
		}
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print one run document as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := storeFromFlags(cmd)
		data, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Failed to load run %q: %v\n", args[0], err)
			os.Exit(1)
		}
		doc, err := record.Decode(data)
		if err != nil {
			fmt.Printf("Failed to decode run %q: %v\n", args[0], err)
			os.Exit(1)
		}
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			fmt.Printf("Failed to render run %q: %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a persisted run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := storeFromFlags(cmd)
		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			fmt.Printf("Failed to delete run %q: %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("Run %q deleted.\n", args[0])
	},
}

func storeFromFlags(cmd *cobra.Command) *file.Store {
	dir, _ := cmd.Flags().GetString("dir")
	return file.New(dir)
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
