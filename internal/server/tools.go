package server

import (
	"context"
	"strconv"
	"time"

	"github.com/szaher/agentdock/internal/registry"
	"github.com/szaher/agentdock/internal/tasks"
	"github.com/szaher/agentdock/internal/telemetry"
)

// CallArgs are the arguments of agent_call.
type CallArgs struct {
	Name            string `json:"name"`
	Message         string `json:"message"`
	Verbosity       string `json:"verbosity,omitempty"`
	Fork            bool   `json:"fork,omitempty"`
	ForkName        string `json:"fork_name,omitempty"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
}

// AsyncArgs are the arguments of agent_call_async.
type AsyncArgs struct {
	Name            string `json:"name"`
	Message         string `json:"message"`
	Verbosity       string `json:"verbosity,omitempty"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
}

// ResultsArgs are the arguments of agent_get_results. Timeout is in seconds
// and applies per name, not to the whole batch.
type ResultsArgs struct {
	Names   []string `json:"names"`
	Timeout int      `json:"timeout,omitempty"`
}

// CheckStatusArgs are the arguments of agent_check_status. Empty names means
// every tracked task.
type CheckStatusArgs struct {
	Names []string `json:"names,omitempty"`
}

// ListArgs are the arguments of agent_list.
type ListArgs struct{}

// StatusArgs are the arguments of agent_status.
type StatusArgs struct {
	Name string `json:"name"`
}

// CleanupArgs are the arguments of agent_cleanup.
type CleanupArgs struct {
	Name string `json:"name,omitempty"`
	All  bool   `json:"all,omitempty"`
}

func verbosityOf(s string) registry.Verbosity {
	switch registry.Verbosity(s) {
	case registry.VerbosityQuiet:
		return registry.VerbosityQuiet
	case registry.VerbosityVerbose:
		return registry.VerbosityVerbose
	default:
		return registry.VerbosityNormal
	}
}

// call delivers one blocking message, optionally forking first.
func (s *Server) call(ctx context.Context, args CallArgs) CallResult {
	ctx = telemetry.WithCorrelationID(ctx, "")
	logger := telemetry.RequestLogger(s.logger, ctx, args.Name)

	name := args.Name
	forked := false
	if args.Fork {
		forkName, err := s.registry.Fork(ctx, args.Name, args.ForkName)
		if err != nil {
			logger.Warn("fork failed", "error", err)
			return CallResult{Success: false, Error: err.Error(), ErrorCode: errorCode(err)}
		}
		name = forkName
		forked = true
	}

	res, err := s.registry.Send(ctx, registry.SendRequest{
		Name:      name,
		Message:   args.Message,
		Verbosity: verbosityOf(args.Verbosity),
		ParentID:  args.ParentSessionID,
	})
	if err != nil {
		logger.Warn("call failed", "error", err)
		return CallResult{Success: false, Name: name, Error: err.Error(), ErrorCode: errorCode(err)}
	}

	return CallResult{
		Success:   true,
		Name:      res.Name,
		Response:  res.Response,
		SessionID: res.RemoteSessionID,
		Forked:    forked,
		Events:    res.Events,
	}
}

// callAsync fans a send out as a background task and returns immediately.
func (s *Server) callAsync(ctx context.Context, args AsyncArgs) AsyncResult {
	s.coordinator.Start(ctx, registry.SendRequest{
		Name:      args.Name,
		Message:   args.Message,
		Verbosity: verbosityOf(args.Verbosity),
		ParentID:  args.ParentSessionID,
	})
	return AsyncResult{
		Success: true,
		Name:    args.Name,
		Status:  string(tasks.StatusRunning),
		Message: "task '" + args.Name + "' started in background",
	}
}

// getResults fans in: waits for each named task, bounded per name by the
// timeout. Every requested name gets an entry; no outcome blocks another.
func (s *Server) getResults(ctx context.Context, args ResultsArgs) ResultsResult {
	timeout := time.Duration(args.Timeout) * time.Second
	outcomes := s.coordinator.Collect(ctx, args.Names, timeout)

	results := make(map[string]TaskResult, len(outcomes))
	for name, outcome := range outcomes {
		switch outcome.Status {
		case tasks.OutcomeCompleted:
			results[name] = TaskResult{
				Success:   true,
				Name:      outcome.Result.Name,
				Response:  outcome.Result.Response,
				SessionID: outcome.Result.RemoteSessionID,
				Events:    outcome.Result.Events,
			}
		case tasks.OutcomeTimedOut:
			results[name] = TaskResult{
				Success: false,
				Error:   "task '" + name + "' timed out",
				Status:  string(tasks.OutcomeTimedOut),
			}
		case tasks.OutcomeNotFound:
			results[name] = TaskResult{
				Success: false,
				Error:   "no background task found for '" + name + "'",
				Status:  string(tasks.OutcomeNotFound),
			}
		default:
			results[name] = TaskResult{
				Success: false,
				Error:   outcome.Err.Error(),
				Status:  string(tasks.OutcomeFailed),
			}
		}
	}
	return ResultsResult{Success: true, Results: results}
}

// checkStatus reports task states without blocking or consuming results.
func (s *Server) checkStatus(args CheckStatusArgs) CheckStatusResult {
	statuses := s.coordinator.CheckStatus(args.Names)
	out := make(map[string]string, len(statuses))
	for name, status := range statuses {
		out[name] = string(status)
	}
	return CheckStatusResult{Success: true, Tasks: out}
}

// list summarizes every live session.
func (s *Server) list() ListResult {
	return ListResult{Success: true, Sessions: s.registry.List()}
}

// status summarizes one session.
func (s *Server) status(args StatusArgs) StatusResult {
	summary, err := s.registry.Status(args.Name)
	if err != nil {
		return StatusResult{
			Success:           false,
			Error:             err.Error(),
			ErrorCode:         errorCode(err),
			AvailableSessions: s.registry.Names(),
		}
	}
	return StatusResult{Success: true, Session: &summary}
}

// cleanup removes one session, or all of them.
func (s *Server) cleanup(args CleanupArgs) CleanupResult {
	if args.All {
		count := s.registry.RemoveAll()
		return CleanupResult{
			Success: true,
			Count:   count,
			Message: "cleaned up " + strconv.Itoa(count) + " session(s)",
		}
	}

	if args.Name == "" {
		return CleanupResult{
			Success:   false,
			Error:     "session name is required",
			ErrorCode: "invalid_argument",
		}
	}

	if err := s.registry.Remove(args.Name); err != nil {
		return CleanupResult{
			Success:   false,
			Name:      args.Name,
			Error:     err.Error(),
			ErrorCode: errorCode(err),
		}
	}
	return CleanupResult{
		Success: true,
		Name:    args.Name,
		Count:   1,
		Message: "session '" + args.Name + "' cleaned up",
	}
}
