package registry

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper periodically sweeps the registry and evicts sessions idle longer
// than the configured timeout. The sweep runs on a fixed interval and never
// touches a session mid-send (see Registry.EvictIdle).
type Reaper struct {
	registry *Registry
	interval time.Duration
	idle     atomic.Int64 // idle timeout in nanoseconds
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewReaper creates a reaper; Start must be called to begin sweeping.
func NewReaper(r *Registry, idleTimeout, interval time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Reaper{
		registry: r,
		interval: interval,
		logger:   logger,
	}
	p.idle.Store(int64(idleTimeout))
	return p
}

// IdleTimeout returns the current idle timeout.
func (p *Reaper) IdleTimeout() time.Duration {
	return time.Duration(p.idle.Load())
}

// SetIdleTimeout adjusts the idle timeout for subsequent sweeps. Safe to call
// while the reaper is running; used by config hot-reload.
func (p *Reaper) SetIdleTimeout(d time.Duration) {
	p.idle.Store(int64(d))
	p.logger.Info("idle timeout updated", "idle_timeout", d)
}

// Start schedules the periodic sweep.
func (p *Reaper) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), p.sweep); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	c.Start()
	p.cron = c
	p.logger.Info("idle reaper started", "interval", p.interval, "idle_timeout", p.IdleTimeout())
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (p *Reaper) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.logger.Info("idle reaper stopped")
}

// Sweep runs one eviction pass immediately. Exposed for tests and for a final
// sweep on demand.
func (p *Reaper) Sweep() []string {
	return p.registry.EvictIdle(p.IdleTimeout())
}

func (p *Reaper) sweep() {
	if evicted := p.Sweep(); len(evicted) > 0 {
		p.logger.Info("reaper sweep complete", "evicted", len(evicted))
	}
}
