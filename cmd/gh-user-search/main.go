// Package main is the gh-user-search command: an interactive GitHub user
// search (the default) and a batch "search" subcommand for scripts.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gh-user-search [query]",
	Short: "Search GitHub users",
	Long: `Search GitHub users page by page. Without a subcommand an interactive
screen is started; results load as you scroll to the end of the list.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

func init() {
	bindFlags(rootCmd)
	rootCmd.Flags().StringVar(&tuiLogFile, "log-file", "", "Write logs to this file (logging is off otherwise)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
