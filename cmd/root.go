// Package cmd defines the CLI commands for the radar executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upwork-radar",
		Short: "Authenticated scraper and market analyzer for Upwork job listings.",
		Long: `upwork-radar drives a logged-in browser session to collect job
listings from the personalized feed and search pages, caches them in
Postgres with merge-on-write semantics, and serves the data plus
market analysis over HTTP.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults apply when omitted)")
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
