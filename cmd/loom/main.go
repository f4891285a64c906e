// Package main provides the CLI entry point for loom, a Slack bridge
// to stateful assistant conversations.
//
// Start the bridge:
//
//	loom serve --config loom.yaml
//
// Secrets are normally passed through the environment and referenced
// from the config file (${SLACK_BOT_TOKEN} and friends).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Slack to assistant conversation bridge",
		Long: `Loom binds Slack threads to stateful assistant sessions.

Each thread maps to one backend session. New thread messages are
replayed into the session exactly once, and at most one assistant run
is in flight per thread at any time.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildVersionCmd())
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("loom %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
