package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/szaher/agentdock/internal/registry"
	"github.com/szaher/agentdock/internal/testutil"
)

// fakeSender completes sends immediately unless a name is blocked on a
// channel the test controls.
type fakeSender struct {
	mu     sync.Mutex
	blocks map[string]chan struct{}
	errs   map[string]error
	calls  []registry.SendRequest
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		blocks: make(map[string]chan struct{}),
		errs:   make(map[string]error),
	}
}

func (f *fakeSender) block(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.blocks[name] = ch
	return ch
}

func (f *fakeSender) fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *fakeSender) sent() []registry.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.SendRequest(nil), f.calls...)
}

func (f *fakeSender) Send(_ context.Context, req registry.SendRequest) (*registry.SendResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.blocks[req.Name]
	err := f.errs[req.Name]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &registry.SendResult{Name: req.Name, Response: "done: " + req.Message}, nil
}

func TestStartAndCollect(t *testing.T) {
	sender := newFakeSender()
	coord := NewCoordinator(sender)
	ctx := context.Background()

	coord.Start(ctx, registry.SendRequest{Name: "a", Message: "work"})

	results := coord.Collect(ctx, []string{"a"}, 0)
	outcome, ok := results["a"]
	if !ok {
		t.Fatal("no outcome for a")
	}
	if outcome.Status != OutcomeCompleted {
		t.Fatalf("status = %q, want completed (err: %v)", outcome.Status, outcome.Err)
	}
	if outcome.Result.Response != "done: work" {
		t.Errorf("response = %q, want %q", outcome.Result.Response, "done: work")
	}
}

func TestCollectUntrackedName(t *testing.T) {
	coord := NewCoordinator(newFakeSender())

	results := coord.Collect(context.Background(), []string{"ghost"}, 0)
	if results["ghost"].Status != OutcomeNotFound {
		t.Fatalf("status = %q, want not_found", results["ghost"].Status)
	}
}

func TestCollectAtMostOnce(t *testing.T) {
	sender := newFakeSender()
	coord := NewCoordinator(sender)
	ctx := context.Background()

	coord.Start(ctx, registry.SendRequest{Name: "a", Message: "work"})

	first := coord.Collect(ctx, []string{"a"}, 0)
	if first["a"].Status != OutcomeCompleted {
		t.Fatalf("first collect status = %q, want completed", first["a"].Status)
	}

	second := coord.Collect(ctx, []string{"a"}, 0)
	if second["a"].Status != OutcomeNotFound {
		t.Fatalf("second collect status = %q, want not_found", second["a"].Status)
	}
}

func TestCollectFanInIndependence(t *testing.T) {
	sender := newFakeSender()
	gate := sender.block("slow")
	defer close(gate)

	coord := NewCoordinator(sender)
	ctx := context.Background()

	coord.Start(ctx, registry.SendRequest{Name: "fast", Message: "quick"})
	coord.Start(ctx, registry.SendRequest{Name: "slow", Message: "stuck"})

	results := coord.Collect(ctx, []string{"fast", "slow"}, 100*time.Millisecond)

	if results["fast"].Status != OutcomeCompleted {
		t.Errorf("fast status = %q, want completed", results["fast"].Status)
	}
	if results["fast"].Result == nil || results["fast"].Result.Response != "done: quick" {
		t.Errorf("fast result missing despite slow timing out: %+v", results["fast"].Result)
	}
	if results["slow"].Status != OutcomeTimedOut {
		t.Errorf("slow status = %q, want timeout", results["slow"].Status)
	}
}

func TestCollectTimeoutAbandonsNotCancels(t *testing.T) {
	sender := newFakeSender()
	gate := sender.block("slow")

	coord := NewCoordinator(sender)
	ctx := context.Background()

	coord.Start(ctx, registry.SendRequest{Name: "slow", Message: "stuck"})

	results := coord.Collect(ctx, []string{"slow"}, 50*time.Millisecond)
	if results["slow"].Status != OutcomeTimedOut {
		t.Fatalf("status = %q, want timeout", results["slow"].Status)
	}

	// The timed-out name leaves tracking entirely.
	if coord.CheckStatus([]string{"slow"})["slow"] != StatusNotFound {
		t.Error("timed-out task still tracked")
	}
	second := coord.Collect(ctx, []string{"slow"}, 0)
	if second["slow"].Status != OutcomeNotFound {
		t.Fatalf("second collect status = %q, want not_found", second["slow"].Status)
	}

	// The underlying work was not cancelled: it completes once unblocked.
	close(gate)
	testutil.Eventually(t, time.Second, func() bool {
		return len(sender.sent()) == 1
	}, "send was never delivered")
}

func TestCollectFailedTask(t *testing.T) {
	sender := newFakeSender()
	sender.fail("bad", errors.New("agent unreachable"))

	coord := NewCoordinator(sender)
	ctx := context.Background()

	coord.Start(ctx, registry.SendRequest{Name: "bad", Message: "x"})

	results := coord.Collect(ctx, []string{"bad"}, 0)
	if results["bad"].Status != OutcomeFailed {
		t.Fatalf("status = %q, want failed", results["bad"].Status)
	}
	testutil.AssertErrorContains(t, results["bad"].Err, "agent unreachable")
}

func TestCheckStatusDoesNotMutate(t *testing.T) {
	sender := newFakeSender()
	gate := sender.block("slow")
	defer close(gate)

	coord := NewCoordinator(sender)
	ctx := context.Background()

	coord.Start(ctx, registry.SendRequest{Name: "slow", Message: "stuck"})
	coord.Start(ctx, registry.SendRequest{Name: "fast", Message: "quick"})

	testutil.Eventually(t, time.Second, func() bool {
		return coord.CheckStatus([]string{"fast"})["fast"] == StatusCompleted
	}, "fast task never completed")

	statuses := coord.CheckStatus(nil)
	if statuses["slow"] != StatusRunning {
		t.Errorf("slow status = %q, want running", statuses["slow"])
	}
	if statuses["fast"] != StatusCompleted {
		t.Errorf("fast status = %q, want completed", statuses["fast"])
	}
	if statuses["ghost"] != "" {
		t.Errorf("unexpected entry for ghost: %q", statuses["ghost"])
	}

	// Repeated checks observe the same state; completed tasks stay
	// collectable.
	if coord.CheckStatus(nil)["fast"] != StatusCompleted {
		t.Error("second CheckStatus changed tracking state")
	}
	results := coord.Collect(ctx, []string{"fast"}, 0)
	if results["fast"].Status != OutcomeCompleted {
		t.Errorf("fast was not collectable after CheckStatus: %q", results["fast"].Status)
	}
}

func TestCheckStatusExplicitUnknownName(t *testing.T) {
	coord := NewCoordinator(newFakeSender())
	statuses := coord.CheckStatus([]string{"ghost"})
	if statuses["ghost"] != StatusNotFound {
		t.Fatalf("status = %q, want not_found", statuses["ghost"])
	}
}

func TestStartReplacesTrackedHandle(t *testing.T) {
	sender := newFakeSender()
	gate := sender.block("x")

	coord := NewCoordinator(sender)
	ctx := context.Background()

	coord.Start(ctx, registry.SendRequest{Name: "x", Message: "first"})
	coord.Start(ctx, registry.SendRequest{Name: "x", Message: "second"})
	close(gate)

	results := coord.Collect(ctx, []string{"x"}, 0)
	if results["x"].Status != OutcomeCompleted {
		t.Fatalf("status = %q, want completed", results["x"].Status)
	}

	// Both sends ran; only the replacement handle was collectable.
	testutil.Eventually(t, time.Second, func() bool {
		return len(sender.sent()) == 2
	}, "both sends should have been delivered")
	if coord.CheckStatus([]string{"x"})["x"] != StatusNotFound {
		t.Error("x still tracked after collection")
	}
}

func TestStartOutlivesCallerContext(t *testing.T) {
	sender := newFakeSender()
	gate := sender.block("x")

	coord := NewCoordinator(sender)
	ctx, cancel := context.WithCancel(context.Background())

	coord.Start(ctx, registry.SendRequest{Name: "x", Message: "work"})
	cancel()
	close(gate)

	results := coord.Collect(context.Background(), []string{"x"}, 0)
	if results["x"].Status != OutcomeCompleted {
		t.Fatalf("status = %q, want completed after caller context cancel (err: %v)", results["x"].Status, results["x"].Err)
	}
}
