package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the daemon. A nil *Metrics is
// valid and records nothing, so components can run unmetered in tests.
type Metrics struct {
	registry *prometheus.Registry

	sendsTotal      *prometheus.CounterVec
	sendDuration    prometheus.Histogram
	activeSessions  prometheus.Gauge
	backgroundTasks prometheus.Gauge
	evictionsTotal  prometheus.Counter
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentdock_sends_total",
			Help: "Messages delivered to agent sessions, by outcome.",
		}, []string{"status"}),
		sendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentdock_send_duration_seconds",
			Help:    "Duration of a full send exchange.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentdock_active_sessions",
			Help: "Live sessions in the registry.",
		}),
		backgroundTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentdock_background_tasks",
			Help: "Background tasks currently tracked by the coordinator.",
		}),
		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentdock_evictions_total",
			Help: "Sessions evicted by the idle reaper.",
		}),
	}
}

// RecordSend records one completed send exchange.
func (m *Metrics) RecordSend(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(status).Inc()
	m.sendDuration.Observe(duration.Seconds())
}

// SessionOpened increments the live-session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the live-session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// SessionEvicted counts an idle eviction.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.evictionsTotal.Inc()
}

// TaskStarted increments the tracked-task gauge.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.backgroundTasks.Inc()
}

// TaskUntracked decrements the tracked-task gauge.
func (m *Metrics) TaskUntracked() {
	if m == nil {
		return
	}
	m.backgroundTasks.Dec()
}

// Handler serves the collected metrics in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
