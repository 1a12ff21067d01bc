package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/radarworks/upwork-radar/internal/app"
	"github.com/radarworks/upwork-radar/internal/config"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP service
// until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the scraper API server",
		Long: `Starts the HTTP server exposing session control, scrape
operations, the cached listings and market analysis. The browser is
launched on demand via the session endpoints, not at startup.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}
