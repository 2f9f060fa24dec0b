// Recall: persistent memory engine for AI coding sessions.
//
// Runs as an MCP server (stdio transport) that agents talk to through
// hooks and tools, with a power-aware background daemon distilling raw
// activity into durable, searchable observations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Persistent memory for AI coding sessions",
	Long: `Recall records what AI coding agents actually did — sessions, prompts,
tool executions — and distills it in the background into durable
observations you can search, retrieve as task context, and sync
across machines.`,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <data dir>/recall.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}
