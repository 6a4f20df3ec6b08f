// Package agentdock provides a Go SDK client for the agentdock daemon.
//
// Usage:
//
//	client, err := agentdock.Dial(ctx, "http://localhost:8000")
//	resp, err := client.Call(ctx, "worker", "Hello!", nil)
//	fmt.Println(resp.Response)
package agentdock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Event is one tagged entry of a verbose response stream.
type Event struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// CallResponse is the result of a blocking call.
type CallResponse struct {
	Name      string  `json:"name"`
	Response  string  `json:"response"`
	SessionID string  `json:"session_id,omitempty"`
	Forked    bool    `json:"forked,omitempty"`
	Events    []Event `json:"events,omitempty"`
}

// TaskResult is the collected outcome of one background task.
type TaskResult struct {
	Success   bool    `json:"success"`
	Name      string  `json:"name,omitempty"`
	Response  string  `json:"response,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	Events    []Event `json:"events,omitempty"`
	Error     string  `json:"error,omitempty"`
	Status    string  `json:"status,omitempty"`
}

// SessionSummary describes one live session.
type SessionSummary struct {
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at"`
	LastUsed        time.Time `json:"last_used"`
	MessageCount    int       `json:"message_count"`
	SessionID       string    `json:"session_id,omitempty"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`
}

// HealthResponse is the response from the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
}

// ToolError is a structured failure reported by a daemon tool.
type ToolError struct {
	Code    string `json:"error_code"`
	Message string `json:"error"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("daemon error (%s): %s", e.Code, e.Message)
}

// CallOptions holds optional parameters for Call.
type CallOptions struct {
	// Verbosity selects how much of the response stream to return:
	// "quiet", "normal" (default), or "verbose".
	Verbosity string
	// Fork branches off the named session before sending.
	Fork bool
	// ForkName names the branch; empty derives a name from the source.
	ForkName string
	// ParentSessionID resumes a prior conversation when the named
	// session does not exist yet.
	ParentSessionID string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for health checks.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientInfo sets the name and version reported to the daemon.
func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.name = name
		c.version = version
	}
}

// Client is an agentdock daemon client over MCP streamable HTTP.
type Client struct {
	baseURL    string
	name       string
	version    string
	httpClient *http.Client
	session    *mcpsdk.ClientSession
}

// Dial connects to a daemon at baseURL, e.g. "http://localhost:8000".
func Dial(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		name:       "agentdock-sdk-go",
		version:    "0.1.0",
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: c.name, Version: c.version}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: c.baseURL + "/mcp"}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.baseURL, err)
	}
	c.session = session
	return c, nil
}

// Close closes the daemon session.
func (c *Client) Close() error {
	return c.session.Close()
}

// callTool invokes a daemon tool and decodes its JSON payload into result.
// Payloads with success=false become a *ToolError.
func (c *Client) callTool(ctx context.Context, tool string, args map[string]interface{}, result interface{}) error {
	res, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return fmt.Errorf("call %s: %w", tool, err)
	}

	var text string
	for _, content := range res.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			text += tc.Text
		}
	}
	if res.IsError {
		return fmt.Errorf("call %s: %s", tool, text)
	}

	var envelope struct {
		Success bool `json:"success"`
		ToolError
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", tool, err)
	}
	if !envelope.Success {
		return &ToolError{Code: envelope.Code, Message: envelope.Message}
	}
	if result != nil {
		if err := json.Unmarshal([]byte(text), result); err != nil {
			return fmt.Errorf("decode %s response: %w", tool, err)
		}
	}
	return nil
}

// Call sends a message to a named session and waits for the response. The
// session is created on first use.
func (c *Client) Call(ctx context.Context, name, message string, opts *CallOptions) (*CallResponse, error) {
	args := map[string]interface{}{"name": name, "message": message}
	if opts != nil {
		if opts.Verbosity != "" {
			args["verbosity"] = opts.Verbosity
		}
		if opts.Fork {
			args["fork"] = true
		}
		if opts.ForkName != "" {
			args["fork_name"] = opts.ForkName
		}
		if opts.ParentSessionID != "" {
			args["parent_session_id"] = opts.ParentSessionID
		}
	}

	var result CallResponse
	if err := c.callTool(ctx, "agent_call", args, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CallAsync starts a background send and returns immediately. Collect the
// outcome later with GetResults.
func (c *Client) CallAsync(ctx context.Context, name, message string) error {
	return c.callTool(ctx, "agent_call_async", map[string]interface{}{
		"name": name, "message": message,
	}, nil)
}

// GetResults collects the named background tasks, waiting up to timeout per
// name. Every requested name has an entry in the returned map.
func (c *Client) GetResults(ctx context.Context, names []string, timeout time.Duration) (map[string]TaskResult, error) {
	args := map[string]interface{}{"names": names}
	if timeout > 0 {
		args["timeout"] = int(timeout / time.Second)
	}

	var result struct {
		Results map[string]TaskResult `json:"results"`
	}
	if err := c.callTool(ctx, "agent_get_results", args, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// CheckStatus reports background task states without consuming results. With
// no names, every tracked task is reported.
func (c *Client) CheckStatus(ctx context.Context, names []string) (map[string]string, error) {
	args := map[string]interface{}{}
	if len(names) > 0 {
		args["names"] = names
	}

	var result struct {
		Tasks map[string]string `json:"tasks"`
	}
	if err := c.callTool(ctx, "agent_check_status", args, &result); err != nil {
		return nil, err
	}
	return result.Tasks, nil
}

// List returns summaries of all live sessions.
func (c *Client) List(ctx context.Context) ([]SessionSummary, error) {
	var result struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := c.callTool(ctx, "agent_list", map[string]interface{}{}, &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// Status returns the summary of one session.
func (c *Client) Status(ctx context.Context, name string) (*SessionSummary, error) {
	var result struct {
		Session *SessionSummary `json:"session"`
	}
	if err := c.callTool(ctx, "agent_status", map[string]interface{}{"name": name}, &result); err != nil {
		return nil, err
	}
	return result.Session, nil
}

// Cleanup removes one session and closes its connection.
func (c *Client) Cleanup(ctx context.Context, name string) error {
	return c.callTool(ctx, "agent_cleanup", map[string]interface{}{"name": name}, nil)
}

// CleanupAll removes every session and reports how many were closed.
func (c *Client) CleanupAll(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	if err := c.callTool(ctx, "agent_cleanup", map[string]interface{}{"all": true}, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// Health checks the daemon health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check: HTTP %d", resp.StatusCode)
	}

	var result HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &result, nil
}
