// Package tasks implements the background task coordinator: fan-out of
// non-blocking sends keyed by session name, and fan-in collection with
// per-name timeouts.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/szaher/agentdock/internal/registry"
	"github.com/szaher/agentdock/internal/telemetry"
)

// Status is the non-blocking view of a tracked task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusNotFound  Status = "not_found"
)

// OutcomeStatus classifies a collected result.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimedOut  OutcomeStatus = "timeout"
	OutcomeNotFound  OutcomeStatus = "not_found"
)

// Outcome is the per-name result of a Collect call.
type Outcome struct {
	Status OutcomeStatus
	Result *registry.SendResult
	Err    error
}

// Sender is the registry call path the coordinator fans out over.
type Sender interface {
	Send(ctx context.Context, req registry.SendRequest) (*registry.SendResult, error)
}

type task struct {
	done   chan struct{}
	result *registry.SendResult
	err    error
}

// Coordinator tracks in-flight background sends keyed by session name.
// Starting a second task under a tracked name replaces the tracked handle
// without cancelling the first; avoiding that is the caller's contract.
type Coordinator struct {
	sender  Sender
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu    sync.Mutex
	tasks map[string]*task
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a coordinator over the given send path.
func NewCoordinator(sender Sender, opts ...Option) *Coordinator {
	c := &Coordinator{
		sender: sender,
		logger: slog.Default(),
		tasks:  make(map[string]*task),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches req as an independent background send and returns
// immediately. The task outlives the caller's context: a timed-out or
// abandoned collect must not kill work already under way.
func (c *Coordinator) Start(ctx context.Context, req registry.SendRequest) {
	t := &task{done: make(chan struct{})}

	c.mu.Lock()
	_, replaced := c.tasks[req.Name]
	c.tasks[req.Name] = t
	c.mu.Unlock()

	if replaced {
		c.logger.Warn("background task replaced", "name", req.Name)
	} else {
		c.metrics.TaskStarted()
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		t.result, t.err = c.sender.Send(bg, req)
		close(t.done)
	}()

	c.logger.Info("background task started", "name", req.Name)
}

// Collect waits for each named task, bounded per name by timeout when it is
// positive. Collected names (success, failure, or timeout) leave tracking, so
// a second collect on the same name reports not_found. A timed-out task keeps
// running; it is abandoned, not cancelled. One name's failure or timeout
// never affects collection of the others.
func (c *Coordinator) Collect(ctx context.Context, names []string, timeout time.Duration) map[string]Outcome {
	results := make(map[string]Outcome, len(names))

	for _, name := range names {
		c.mu.Lock()
		t, ok := c.tasks[name]
		c.mu.Unlock()
		if !ok {
			results[name] = Outcome{Status: OutcomeNotFound}
			continue
		}

		var timer <-chan time.Time
		if timeout > 0 {
			timer = time.After(timeout)
		}

		select {
		case <-t.done:
			c.untrack(name, t)
			if t.err != nil {
				results[name] = Outcome{Status: OutcomeFailed, Err: t.err}
			} else {
				results[name] = Outcome{Status: OutcomeCompleted, Result: t.result}
			}
		case <-timer:
			c.untrack(name, t)
			results[name] = Outcome{Status: OutcomeTimedOut}
			c.logger.Warn("background task abandoned after timeout", "name", name, "timeout", timeout)
		case <-ctx.Done():
			c.untrack(name, t)
			results[name] = Outcome{Status: OutcomeFailed, Err: ctx.Err()}
		}
	}

	return results
}

// CheckStatus reports on the named tasks without blocking or mutating
// tracking state. With no names, every tracked task is reported.
func (c *Coordinator) CheckStatus(names []string) map[string]Status {
	c.mu.Lock()
	if len(names) == 0 {
		names = make([]string, 0, len(c.tasks))
		for name := range c.tasks {
			names = append(names, name)
		}
	}
	tracked := make(map[string]*task, len(names))
	for _, name := range names {
		tracked[name] = c.tasks[name]
	}
	c.mu.Unlock()

	statuses := make(map[string]Status, len(names))
	for _, name := range names {
		t := tracked[name]
		if t == nil {
			statuses[name] = StatusNotFound
			continue
		}
		select {
		case <-t.done:
			statuses[name] = StatusCompleted
		default:
			statuses[name] = StatusRunning
		}
	}
	return statuses
}

// untrack removes name from tracking if it still maps to t; a replacement
// started in the meantime stays tracked.
func (c *Coordinator) untrack(name string, t *task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.tasks[name]; ok && current == t {
		delete(c.tasks, name)
		c.metrics.TaskUntracked()
	}
}
