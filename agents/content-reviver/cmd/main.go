package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/yash21saraf/revival.ai/shared/config"
)

var cfg *config.Config

func main() {
	// Create context that responds to signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:   "reviver",
		Short: "Find what went stale in a YouTube video and plan its revival",
		Long: `Analyzes an older YouTube video with Gemini, flags the tools and topics that
have become outdated, and drafts a refreshed version with a script outline.

Configuration comes from config.yaml (or CONFIG_FILE), .env and the environment.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newAnalyzeCmd(),
		newOverlayCmd(),
		newReportsCmd(),
		newPruneCmd(),
		newKeyCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
