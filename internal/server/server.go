// Package server exposes the session registry and task coordinator as MCP
// tools over streamable HTTP, alongside health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/szaher/agentdock/internal/registry"
	"github.com/szaher/agentdock/internal/tasks"
	"github.com/szaher/agentdock/internal/telemetry"
)

// Server is the daemon's tool surface.
type Server struct {
	registry    *registry.Registry
	coordinator *tasks.Coordinator
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	version     string
	startTime   time.Time
	server      *http.Server
	handler     http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics collector and enables /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by the MCP implementation info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates the daemon server over the given registry and coordinator.
func New(reg *registry.Registry, coord *tasks.Coordinator, opts ...Option) *Server {
	s := &Server{
		registry:    reg,
		coordinator: coord,
		logger:      slog.Default(),
		version:     "0.1.0",
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", s.mcpHandler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.handler = mux

	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}
	s.logger.Info("daemon listening", "addr", addr, "version", s.version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type healthStatus struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthStatus{
		Status:   "ok",
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Sessions: len(s.registry.Names()),
	}); err != nil {
		s.logger.Warn("healthz encode failed", "error", err)
	}
}
