package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/szaher/agentdock/internal/agent"
	"github.com/szaher/agentdock/internal/telemetry"
)

// Sentinel errors returned by registry operations. Callers match with
// errors.Is and translate to structured results at the tool boundary.
var (
	ErrNotFound             = errors.New("session not found")
	ErrForkSourceIncomplete = errors.New("fork source has no session id yet")
	ErrNameCollision        = errors.New("session name already exists")
	ErrConnection           = errors.New("agent connection failed")
)

// SendRequest describes one message delivery to a named session.
type SendRequest struct {
	Name      string
	Message   string
	Verbosity Verbosity
	// ParentID resumes from an existing remote session when the name is
	// created by this request. Ignored for names that already exist.
	ParentID string
}

// SendResult is the outcome of a successful send.
type SendResult struct {
	Name            string        `json:"name"`
	Response        string        `json:"response"`
	RemoteSessionID string        `json:"session_id,omitempty"`
	Events          []agent.Event `json:"events,omitempty"`
}

// Registry is the shared map of named sessions.
type Registry struct {
	connector agent.Connector
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	group    singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty registry backed by the given connector.
func New(connector agent.Connector, opts ...Option) *Registry {
	r := &Registry{
		connector: connector,
		logger:    slog.Default(),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the session for name, refreshing its last-used timestamp.
// An absent name is created atomically: concurrent first-uses of the same
// name collapse onto one connection open, losers observing the winner's
// session. parentID, if set, is the resume point for a newly created session.
func (r *Registry) Resolve(ctx context.Context, name, parentID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[name]; ok {
		s.LastUsed = time.Now()
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		// Double-check after acquiring the flight: another caller may have
		// finished creating between our check and this callback.
		r.mu.Lock()
		if s, ok := r.sessions[name]; ok {
			s.LastUsed = time.Now()
			r.mu.Unlock()
			return s, nil
		}
		r.mu.Unlock()

		conn, err := r.connector.Connect(ctx, agent.Options{
			Resume: parentID,
			Fork:   parentID != "",
		})
		if err != nil {
			return nil, fmt.Errorf("%w: open %q: %v", ErrConnection, name, err)
		}

		now := time.Now()
		s := &Session{
			Name:            name,
			CreatedAt:       now,
			LastUsed:        now,
			ParentSessionID: parentID,
			conn:            conn,
		}

		r.mu.Lock()
		r.sessions[name] = s
		r.mu.Unlock()

		r.metrics.SessionOpened()
		r.logger.Info("session created", "session", name, "parent", parentID)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Send resolves (or creates) the named session and delivers one message,
// streaming the response to completion. Partial output from a dropped stream
// is discarded; the call reports failure, never partial success.
func (r *Registry) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	start := time.Now()
	res, err := r.send(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordSend(status, time.Since(start))
	return res, err
}

func (r *Registry) send(ctx context.Context, req SendRequest) (*SendResult, error) {
	s, err := r.Resolve(ctx, req.Name, req.ParentID)
	if err != nil {
		return nil, err
	}

	// Serialize against other senders and against the idle reaper.
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.conn.Send(ctx, req.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: send to %q: %v", ErrConnection, req.Name, err)
	}

	var text strings.Builder
	var collected []agent.Event
	var sessionID string

	for ev := range events {
		if req.Verbosity == VerbosityVerbose {
			collected = append(collected, ev)
		}
		switch ev.Type {
		case agent.EventText:
			text.WriteString(ev.Text)
		case agent.EventResult:
			sessionID = ev.SessionID
		case agent.EventError:
			// Drain the remainder so the producer can finish, then fail.
			for range events {
			}
			return nil, fmt.Errorf("%w: stream from %q: %v", ErrConnection, req.Name, ev.Err)
		}
	}

	r.mu.Lock()
	s.MessageCount++
	s.LastUsed = time.Now()
	if s.RemoteSessionID == "" && sessionID != "" {
		s.RemoteSessionID = sessionID
	}
	remoteID := s.RemoteSessionID
	r.mu.Unlock()

	r.logger.Debug("message delivered", "session", req.Name, "remote_id", remoteID)

	return &SendResult{
		Name:            req.Name,
		Response:        text.String(),
		RemoteSessionID: remoteID,
		Events:          collected,
	}, nil
}

// Fork derives a new, independent session from source's current remote
// session. With an empty forkName a synthetic <source>_fork_<timestamp> name
// is used. The new session is created through the usual Resolve path.
func (r *Registry) Fork(ctx context.Context, source, forkName string) (string, error) {
	r.mu.Lock()
	src, ok := r.sessions[source]
	if !ok {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrNotFound, source)
	}
	parentID := src.RemoteSessionID
	if parentID == "" {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %q (send at least one message first)", ErrForkSourceIncomplete, source)
	}
	if forkName == "" {
		forkName = fmt.Sprintf("%s_fork_%s", source, time.Now().Format("20060102_150405"))
	}
	if _, exists := r.sessions[forkName]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrNameCollision, forkName)
	}
	r.mu.Unlock()

	if _, err := r.Resolve(ctx, forkName, parentID); err != nil {
		return "", err
	}
	r.logger.Info("session forked", "source", source, "fork", forkName, "parent", parentID)
	return forkName, nil
}

// List returns summaries of all live sessions, ordered by creation time for
// deterministic output.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summaries := make([]Summary, 0, len(r.sessions))
	for _, s := range r.sessions {
		summaries = append(summaries, s.summaryLocked())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].Name < summaries[j].Name
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Names returns the live session names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns the summary for one session.
func (r *Registry) Status(name string) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[name]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s.summaryLocked(), nil
}

// Remove closes and deletes one session. Close errors are swallowed: cleanup
// always completes.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.sessions, name)
	r.mu.Unlock()

	s.mu.Lock()
	r.closeQuietly(s)
	s.mu.Unlock()

	r.metrics.SessionClosed()
	r.logger.Info("session removed", "session", name)
	return nil
}

// RemoveAll closes and deletes every session and reports how many were
// removed.
func (r *Registry) RemoveAll() int {
	r.mu.Lock()
	victims := make([]*Session, 0, len(r.sessions))
	for name, s := range r.sessions {
		victims = append(victims, s)
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	for _, s := range victims {
		s.mu.Lock()
		r.closeQuietly(s)
		s.mu.Unlock()
		r.metrics.SessionClosed()
	}
	r.logger.Info("all sessions removed", "count", len(victims))
	return len(victims)
}

// EvictIdle removes every session idle longer than olderThan, skipping any
// session currently mid-send. One session's close failure never aborts the
// sweep for the others. Returns the evicted names.
func (r *Registry) EvictIdle(olderThan time.Duration) []string {
	r.mu.Lock()
	candidates := make([]*Session, 0, len(r.sessions))
	now := time.Now()
	for _, s := range r.sessions {
		if now.Sub(s.LastUsed) > olderThan {
			candidates = append(candidates, s)
		}
	}
	r.mu.Unlock()

	var evicted []string
	for _, s := range candidates {
		// A session mid-send holds its own lock; skip it rather than block
		// the sweep behind a long-running exchange.
		if !s.mu.TryLock() {
			continue
		}

		r.mu.Lock()
		current, ok := r.sessions[s.Name]
		// Re-check under the registry lock: the session may have been
		// touched, removed, or replaced since the snapshot.
		if !ok || current != s || time.Since(s.LastUsed) <= olderThan {
			r.mu.Unlock()
			s.mu.Unlock()
			continue
		}
		delete(r.sessions, s.Name)
		r.mu.Unlock()

		r.closeQuietly(s)
		s.mu.Unlock()

		r.metrics.SessionClosed()
		r.metrics.SessionEvicted()
		r.logger.Info("idle session evicted", "session", s.Name, "idle", time.Since(s.LastUsed).Round(time.Second))
		evicted = append(evicted, s.Name)
	}
	return evicted
}

// closeQuietly closes a session's connection best-effort. The caller holds
// the session lock.
func (r *Registry) closeQuietly(s *Session) {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		r.logger.Warn("session close failed", "session", s.Name, "error", err)
	}
}
