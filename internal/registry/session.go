// Package registry owns the shared map of named agent sessions and defines
// its concurrency discipline: a coarse lock guards the map and session
// metadata, a singleflight group collapses concurrent first-use of a name
// into one connection open, and a per-session lock makes active use and
// eviction of the same name mutually exclusive.
package registry

import (
	"sync"
	"time"

	"github.com/szaher/agentdock/internal/agent"
)

// Verbosity controls how much of the response stream a send retains.
type Verbosity string

const (
	VerbosityQuiet   Verbosity = "quiet"
	VerbosityNormal  Verbosity = "normal"
	VerbosityVerbose Verbosity = "verbose"
)

// Session is a named, long-lived conversation. Exactly one live connection
// exists per name; metadata fields are guarded by the registry's lock, and
// the session's own lock serializes send against eviction.
type Session struct {
	mu sync.Mutex // held for the duration of a send or an eviction

	Name            string
	CreatedAt       time.Time
	LastUsed        time.Time
	MessageCount    int
	RemoteSessionID string
	ParentSessionID string

	conn agent.Conn
}

// Summary is the externally visible snapshot of a session.
type Summary struct {
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at"`
	LastUsed        time.Time `json:"last_used"`
	MessageCount    int       `json:"message_count"`
	RemoteSessionID string    `json:"session_id,omitempty"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`
}

// summaryLocked builds a Summary; the caller holds the registry lock.
func (s *Session) summaryLocked() Summary {
	return Summary{
		Name:            s.Name,
		CreatedAt:       s.CreatedAt,
		LastUsed:        s.LastUsed,
		MessageCount:    s.MessageCount,
		RemoteSessionID: s.RemoteSessionID,
		ParentSessionID: s.ParentSessionID,
	}
}
