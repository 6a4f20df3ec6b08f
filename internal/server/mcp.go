package server

import (
	"context"
	"encoding/json"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// mcpHandler builds the MCP server with the seven agentdock tools and wraps
// it in the streamable HTTP transport.
func (s *Server) mcpHandler() http.Handler {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "agentdock",
		Version: s.version,
	}, nil)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "agent_call",
		Description: "Send a message to a persistent agent session, creating it on first use. " +
			"Blocking; use agent_call_async for parallel work. " +
			"Set fork=true to branch an existing session into an independent copy.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, args CallArgs) (*mcpsdk.CallToolResult, any, error) {
		return textResult(s.call(ctx, args)), nil, nil
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "agent_call_async",
		Description: "Start an agent task in the background and return immediately. " +
			"Collect results later with agent_get_results.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, args AsyncArgs) (*mcpsdk.CallToolResult, any, error) {
		return textResult(s.callAsync(ctx, args)), nil, nil
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "agent_get_results",
		Description: "Wait for background tasks by name and return their results. " +
			"The optional timeout (seconds) applies per name; timed-out tasks keep running but leave tracking.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, args ResultsArgs) (*mcpsdk.CallToolResult, any, error) {
		return textResult(s.getResults(ctx, args)), nil, nil
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "agent_check_status",
		Description: "Check whether background tasks are still running, without blocking or consuming results.",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, args CheckStatusArgs) (*mcpsdk.CallToolResult, any, error) {
		return textResult(s.checkStatus(args)), nil, nil
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "agent_list",
		Description: "List all active agent sessions with their metadata.",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListArgs) (*mcpsdk.CallToolResult, any, error) {
		return textResult(s.list()), nil, nil
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "agent_status",
		Description: "Get detailed status of one agent session.",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, args StatusArgs) (*mcpsdk.CallToolResult, any, error) {
		return textResult(s.status(args)), nil, nil
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "agent_cleanup",
		Description: "Remove one agent session by name, or all of them with all=true.",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, args CleanupArgs) (*mcpsdk.CallToolResult, any, error) {
		return textResult(s.cleanup(args)), nil, nil
	})

	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return srv
	}, nil)
}

// textResult wraps a result payload as a JSON text content block, matching
// the daemon's wire contract of JSON-string tool results.
func textResult(v any) *mcpsdk.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(`{"success":false,"error":"result serialization failed","error_code":"internal_error"}`)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}
}
