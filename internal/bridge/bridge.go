// Package bridge translates a line-delimited JSON-RPC request stream (MCP
// stdio framing) into tool invocations against a remote daemon and writes
// framed responses back. The loop handles one request at a time and survives
// any per-request failure; it terminates only on end of input.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// protocolVersion is the MCP protocol revision the bridge speaks.
const protocolVersion = "2024-11-05"

// ToolDescriptor describes a remote tool as exposed over the bridge.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolClient is the remote tool-invocation endpoint the bridge forwards to.
type ToolClient interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Bridge is the stdio-to-daemon protocol loop.
type Bridge struct {
	client  ToolClient
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	name    string
	version string
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger (diagnostics only, never the wire).
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(b *Bridge) {
		b.name = name
		b.version = version
	}
}

// New creates a bridge reading requests from in and writing responses to out.
func New(client ToolClient, in io.Reader, out io.Writer, opts ...Option) *Bridge {
	b := &Bridge{
		client:  client,
		in:      in,
		out:     out,
		logger:  slog.Default(),
		name:    "agentdock",
		version: "0.1.0",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run processes requests until end of input. A malformed line produces a
// parse-error response with a null id; a failing handler produces an error
// response keyed by the request id; neither stops the loop.
func (b *Bridge) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(b.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(b.out)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			b.write(writer, errorResponse(nil, codeParseError, fmt.Sprintf("Parse error: %v", err)))
			continue
		}

		b.write(writer, b.dispatch(ctx, req))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request stream: %w", err)
	}
	return nil
}

func (b *Bridge) dispatch(ctx context.Context, req request) (resp response) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("request handler panicked", "method", req.Method, "panic", r)
			resp = errorResponse(req.ID, codeInternalError, fmt.Sprintf("Internal error: %v", r))
		}
	}()

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    b.name,
				"version": b.version,
			},
		})

	case "tools/list":
		tools, err := b.client.ListTools(ctx)
		if err != nil {
			return errorResponse(req.ID, codeInternalError, fmt.Sprintf("Internal error: %v", err))
		}
		if tools == nil {
			tools = []ToolDescriptor{}
		}
		return resultResponse(req.ID, map[string]interface{}{"tools": tools})

	case "tools/call":
		var params struct {
			Name      string                 `json:"name"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return errorResponse(req.ID, codeInternalError, fmt.Sprintf("Internal error: %v", err))
			}
		}
		text, err := b.client.CallTool(ctx, params.Name, params.Arguments)
		if err != nil {
			return errorResponse(req.ID, codeInternalError, fmt.Sprintf("Internal error: %v", err))
		}
		return resultResponse(req.ID, map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": text},
			},
		})

	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (b *Bridge) write(w *bufio.Writer, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		b.logger.Error("response marshal failed", "error", err)
		return
	}
	if _, err := w.Write(data); err != nil {
		b.logger.Error("response write failed", "error", err)
		return
	}
	if err := w.WriteByte('\n'); err != nil {
		b.logger.Error("response write failed", "error", err)
		return
	}
	if err := w.Flush(); err != nil {
		b.logger.Error("response write failed", "error", err)
	}
}
