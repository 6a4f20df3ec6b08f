package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/szaher/agentdock/internal/agent"
	"github.com/szaher/agentdock/internal/testutil"
)

func backdate(t *testing.T, reg *Registry, s *Session, idle time.Duration) {
	t.Helper()
	reg.mu.Lock()
	s.LastUsed = time.Now().Add(-idle)
	reg.mu.Unlock()
}

func TestEvictIdleRemovesStaleSessions(t *testing.T) {
	connector := agent.NewMockConnector()
	reg := newTestRegistry(connector)
	ctx := context.Background()

	stale, err := reg.Resolve(ctx, "stale", "")
	if err != nil {
		t.Fatalf("Resolve returned unexpected error: %v", err)
	}
	if _, err := reg.Resolve(ctx, "fresh", ""); err != nil {
		t.Fatalf("Resolve returned unexpected error: %v", err)
	}

	backdate(t, reg, stale, time.Hour)

	evicted := reg.EvictIdle(30 * time.Minute)
	if len(evicted) != 1 || evicted[0] != "stale" {
		t.Fatalf("evicted = %v, want [stale]", evicted)
	}

	if _, err := reg.Status("stale"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale session still present after eviction")
	}
	if _, err := reg.Status("fresh"); err != nil {
		t.Errorf("fresh session was evicted: %v", err)
	}
	if connector.Closes() != 1 {
		t.Errorf("closes = %d, want 1", connector.Closes())
	}
}

func TestEvictIdleSkipsSessionMidSend(t *testing.T) {
	connector := agent.NewMockConnector(agent.MockExchange{
		Events: []agent.Event{{Type: agent.EventText, Text: "slow"}},
		Delay:  150 * time.Millisecond,
	})
	reg := newTestRegistry(connector)
	ctx := context.Background()

	s, err := reg.Resolve(ctx, "busy", "")
	if err != nil {
		t.Fatalf("Resolve returned unexpected error: %v", err)
	}
	backdate(t, reg, s, time.Hour)

	sendDone := make(chan error, 1)
	go func() {
		_, err := reg.Send(ctx, SendRequest{Name: "busy", Message: "work"})
		sendDone <- err
	}()

	// Wait until the send holds the session lock.
	testutil.Eventually(t, time.Second, func() bool {
		if !s.mu.TryLock() {
			return true
		}
		s.mu.Unlock()
		return false
	}, "send never acquired the session lock")

	// Although hugely idle by timestamp, the in-flight session is skipped.
	if evicted := reg.EvictIdle(time.Millisecond); len(evicted) != 0 {
		t.Fatalf("evicted %v while session was mid-send", evicted)
	}

	if err := <-sendDone; err != nil {
		t.Fatalf("Send returned unexpected error: %v", err)
	}

	// Once the send finished, LastUsed is fresh and the session survives a
	// normal sweep...
	if evicted := reg.EvictIdle(30 * time.Minute); len(evicted) != 0 {
		t.Fatalf("evicted %v right after use", evicted)
	}

	// ...until it genuinely goes idle again.
	backdate(t, reg, s, time.Hour)
	if evicted := reg.EvictIdle(30 * time.Minute); len(evicted) != 1 {
		t.Fatalf("evicted = %v, want [busy]", evicted)
	}
}

func TestEvictIdleSurvivesCloseFailure(t *testing.T) {
	connector := agent.NewMockConnector()
	connector.FailClose(errors.New("close exploded"))
	reg := newTestRegistry(connector)
	ctx := context.Background()

	a, _ := reg.Resolve(ctx, "a", "")
	b, _ := reg.Resolve(ctx, "b", "")
	backdate(t, reg, a, time.Hour)
	backdate(t, reg, b, time.Hour)

	evicted := reg.EvictIdle(time.Minute)
	if len(evicted) != 2 {
		t.Fatalf("evicted %d sessions, want 2 despite close failures", len(evicted))
	}
	if len(reg.List()) != 0 {
		t.Errorf("sessions remain after sweep: %v", reg.Names())
	}
}

func TestReaperSweep(t *testing.T) {
	connector := agent.NewMockConnector()
	reg := newTestRegistry(connector)
	ctx := context.Background()

	s, err := reg.Resolve(ctx, "stale", "")
	if err != nil {
		t.Fatalf("Resolve returned unexpected error: %v", err)
	}
	backdate(t, reg, s, time.Hour)

	reaper := NewReaper(reg, 30*time.Minute, time.Minute, nil)
	if evicted := reaper.Sweep(); len(evicted) != 1 {
		t.Fatalf("Sweep evicted %v, want [stale]", evicted)
	}
}

func TestReaperSetIdleTimeout(t *testing.T) {
	reg := newTestRegistry(agent.NewMockConnector())
	reaper := NewReaper(reg, 30*time.Minute, time.Minute, nil)

	if got := reaper.IdleTimeout(); got != 30*time.Minute {
		t.Errorf("IdleTimeout = %v, want 30m", got)
	}

	reaper.SetIdleTimeout(5 * time.Minute)
	if got := reaper.IdleTimeout(); got != 5*time.Minute {
		t.Errorf("IdleTimeout after update = %v, want 5m", got)
	}

	// The new timeout takes effect on the next sweep.
	s, err := reg.Resolve(context.Background(), "idle", "")
	if err != nil {
		t.Fatalf("Resolve returned unexpected error: %v", err)
	}
	backdate(t, reg, s, 10*time.Minute)
	if evicted := reaper.Sweep(); len(evicted) != 1 {
		t.Fatalf("Sweep with tightened timeout evicted %v, want [idle]", evicted)
	}
}

func TestReaperStartStop(t *testing.T) {
	reg := newTestRegistry(agent.NewMockConnector())
	reaper := NewReaper(reg, time.Hour, time.Second, nil)

	if err := reaper.Start(); err != nil {
		t.Fatalf("Start returned unexpected error: %v", err)
	}
	reaper.Stop()

	// Stop on a never-started reaper is a no-op.
	NewReaper(reg, time.Hour, time.Second, nil).Stop()
}
