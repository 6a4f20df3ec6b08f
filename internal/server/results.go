package server

import (
	"errors"

	"github.com/szaher/agentdock/internal/agent"
	"github.com/szaher/agentdock/internal/registry"
)

// Tool results mirror the daemon's JSON contract: failures are structured
// payloads with success=false, never protocol-level errors, so one session's
// failure cannot affect another caller.

// CallResult is the payload of agent_call.
type CallResult struct {
	Success   bool          `json:"success"`
	Name      string        `json:"name,omitempty"`
	Response  string        `json:"response,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Forked    bool          `json:"forked,omitempty"`
	Events    []agent.Event `json:"events,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
}

// AsyncResult is the payload of agent_call_async.
type AsyncResult struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// TaskResult is one entry in an agent_get_results payload.
type TaskResult struct {
	Success   bool          `json:"success"`
	Name      string        `json:"name,omitempty"`
	Response  string        `json:"response,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Events    []agent.Event `json:"events,omitempty"`
	Error     string        `json:"error,omitempty"`
	Status    string        `json:"status,omitempty"`
}

// ResultsResult is the payload of agent_get_results.
type ResultsResult struct {
	Success bool                  `json:"success"`
	Results map[string]TaskResult `json:"results"`
}

// CheckStatusResult is the payload of agent_check_status.
type CheckStatusResult struct {
	Success bool              `json:"success"`
	Tasks   map[string]string `json:"tasks"`
}

// ListResult is the payload of agent_list.
type ListResult struct {
	Success  bool               `json:"success"`
	Sessions []registry.Summary `json:"sessions"`
}

// StatusResult is the payload of agent_status.
type StatusResult struct {
	Success           bool              `json:"success"`
	Session           *registry.Summary `json:"session,omitempty"`
	Error             string            `json:"error,omitempty"`
	ErrorCode         string            `json:"error_code,omitempty"`
	AvailableSessions []string          `json:"available_sessions,omitempty"`
}

// CleanupResult is the payload of agent_cleanup.
type CleanupResult struct {
	Success   bool   `json:"success"`
	Name      string `json:"name,omitempty"`
	Count     int    `json:"count,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// errorCode maps registry sentinel errors to wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return "not_found"
	case errors.Is(err, registry.ErrForkSourceIncomplete):
		return "fork_source_incomplete"
	case errors.Is(err, registry.ErrNameCollision):
		return "name_collision"
	case errors.Is(err, registry.ErrConnection):
		return "connection_error"
	default:
		return "internal_error"
	}
}
