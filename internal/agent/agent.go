// Package agent defines the conversational capability abstraction used by the
// session registry: an opaque connection that accepts messages and streams
// back tagged events.
package agent

import (
	"context"
)

// EventType tags a streamed event.
type EventType string

const (
	EventText       EventType = "text"
	EventThinking   EventType = "thinking"
	EventToolUse    EventType = "tool_use"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
	EventResult     EventType = "result"
)

// Event is a single tagged item in a response stream. Consumers inspect the
// Type tag; only the fields relevant to that tag are populated.
type Event struct {
	Type EventType `json:"type"`

	// EventText / EventThinking
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`

	// EventToolUse / EventToolResult
	ToolName  string                 `json:"tool_name,omitempty"`
	ToolInput map[string]interface{} `json:"tool_input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`

	// EventResult (terminal on success)
	SessionID  string `json:"session_id,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`

	// EventError (terminal on failure)
	Err error `json:"-"`
}

// Options configures how a connection is opened.
type Options struct {
	// Resume identifies a remote session whose transcript the new connection
	// continues from. Empty means a fresh conversation.
	Resume string

	// Fork marks the resumed connection as an independent branch.
	Fork bool
}

// Conn is an open conversation with the underlying capability. A Conn is not
// safe for concurrent Send calls; the registry serializes access per session.
type Conn interface {
	// Send issues a message and returns the response event stream. The
	// channel is closed after a terminal EventResult or EventError.
	Send(ctx context.Context, message string) (<-chan Event, error)

	// Close releases the connection.
	Close() error
}

// Connector opens connections to the underlying capability.
type Connector interface {
	Connect(ctx context.Context, opts Options) (Conn, error)
}
