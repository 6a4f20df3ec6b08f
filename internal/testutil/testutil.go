// Package testutil provides shared test helpers to reduce boilerplate across unit tests.
package testutil

import (
	"strings"
	"testing"
	"time"
)

// AssertErrorContains asserts that err is non-nil and its message contains substr.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("expected error containing %q, got %q", substr, err.Error())
	}
}

// Eventually polls cond until it returns true or the deadline passes.
func Eventually(t *testing.T, deadline time.Duration, cond func() bool, msg string) {
	t.Helper()
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", deadline, msg)
}
