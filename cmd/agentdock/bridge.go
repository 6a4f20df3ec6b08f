package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/agentdock/internal/bridge"
	"github.com/szaher/agentdock/internal/config"
	"github.com/szaher/agentdock/internal/telemetry"
)

func newBridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the stdio-to-daemon protocol bridge",
		Long: `Reads line-delimited JSON-RPC requests on stdin, forwards tool calls to
the running daemon, and writes framed responses on stdout. Intended to be
launched by MCP stdio hosts. Diagnostics go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := telemetry.NewLogger(os.Stderr, level)

			dialer := &bridge.Dialer{
				Endpoint: cfg.Endpoint(),
				Logger:   logger,
			}
			client, err := dialer.Dial(cmd.Context())
			if err != nil {
				// Exhausted retries are fatal for the bridge.
				return err
			}
			defer closeClient(client)

			b := bridge.New(client, os.Stdin, os.Stdout,
				bridge.WithLogger(logger),
				bridge.WithServerInfo("agentdock", version),
			)
			return b.Run(cmd.Context())
		},
	}
}
