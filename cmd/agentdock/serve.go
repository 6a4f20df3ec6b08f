package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/agentdock/internal/agent"
	"github.com/szaher/agentdock/internal/config"
	"github.com/szaher/agentdock/internal/registry"
	"github.com/szaher/agentdock/internal/server"
	"github.com/szaher/agentdock/internal/tasks"
	"github.com/szaher/agentdock/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session daemon",
		Long: `Starts the daemon: the session registry, the idle reaper, the background
task coordinator, and the MCP tool endpoint over streamable HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			level := telemetry.ParseLevel(cfg.LogLevel)
			if verbose {
				level = slog.LevelDebug
			}
			logger := telemetry.NewLogger(os.Stderr, level)
			metrics := telemetry.NewMetrics()

			connector := agent.NewAnthropicConnector(cfg.Model, cfg.MaxTokens)
			reg := registry.New(connector,
				registry.WithLogger(logger),
				registry.WithMetrics(metrics),
			)
			reaper := registry.NewReaper(reg, cfg.IdleTimeout.Std(), cfg.SweepInterval.Std(), logger)
			coord := tasks.NewCoordinator(reg,
				tasks.WithLogger(logger),
				tasks.WithMetrics(metrics),
			)
			srv := server.New(reg, coord,
				server.WithLogger(logger),
				server.WithMetrics(metrics),
				server.WithVersion(version),
			)

			if err := reaper.Start(); err != nil {
				return err
			}

			if addr == "" {
				addr = cfg.Addr()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				err := srv.ListenAndServe(addr)
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})

			if configPath != "" {
				g.Go(func() error {
					return config.Watch(ctx, configPath, logger, func(c config.Config) {
						reaper.SetIdleTimeout(c.IdleTimeout.Std())
					})
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("server shutdown", "error", err)
				}
				reaper.Stop()
				closed := reg.RemoveAll()
				logger.Info("shutdown complete", "sessions_closed", closed)
				return nil
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config host:port)")

	return cmd
}
