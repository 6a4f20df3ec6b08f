package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Dial defaults; the delay doubles after every failed attempt.
const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
)

// Dialer establishes the bridge's connection to the daemon's MCP endpoint
// with bounded exponential-backoff retries. Exhausting the attempts is fatal
// to the bridge.
type Dialer struct {
	Endpoint    string
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger

	// connect overrides the transport for tests.
	connect func(ctx context.Context) (ToolClient, error)
}

// Dial connects, retrying with exponential backoff until the attempt cap.
func (d *Dialer) Dial(ctx context.Context) (ToolClient, error) {
	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	delay := d.BaseDelay
	if delay <= 0 {
		delay = defaultBaseDelay
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connect := d.connect
	if connect == nil {
		connect = d.connectMCP
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := connect(ctx)
		if err == nil {
			return client, nil
		}
		lastErr = err

		if attempt < attempts {
			logger.Warn("connection attempt failed, retrying",
				"attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("connect to %s after %d attempts: %w", d.Endpoint, attempts, lastErr)
}

func (d *Dialer) connectMCP(ctx context.Context) (ToolClient, error) {
	impl := &mcpsdk.Implementation{
		Name:    "agentdock-bridge",
		Version: "0.1.0",
	}
	client := mcpsdk.NewClient(impl, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: d.Endpoint}, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp connect %s: %w", d.Endpoint, err)
	}
	return &MCPClient{session: session}, nil
}

// MCPClient is a ToolClient over an MCP client session.
type MCPClient struct {
	session *mcpsdk.ClientSession
}

// ListTools returns the remote tool descriptors.
func (c *MCPClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var tools []ToolDescriptor
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp list tools: %w", err)
		}
		var schema json.RawMessage
		if tool.InputSchema != nil {
			data, err := json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("marshal schema for %s: %w", tool.Name, err)
			}
			schema = data
		}
		tools = append(tools, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

// CallTool invokes a remote tool and returns its textual result.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp call tool %s: %w", name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool %s returned error", name)
	}

	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	return text, nil
}

// Close closes the underlying session.
func (c *MCPClient) Close() error {
	return c.session.Close()
}
