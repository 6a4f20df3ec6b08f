package integration_tests

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/szaher/agentdock/internal/agent"
	"github.com/szaher/agentdock/internal/bridge"
	"github.com/szaher/agentdock/internal/registry"
	"github.com/szaher/agentdock/internal/server"
	"github.com/szaher/agentdock/internal/tasks"
)

// startDaemon wires a full daemon over a mock agent capability and serves it
// from an httptest server.
func startDaemon(t *testing.T) (*httptest.Server, *agent.MockConnector) {
	t.Helper()
	connector := agent.NewMockConnector()
	reg := registry.New(connector)
	coord := tasks.NewCoordinator(reg)
	srv := server.New(reg, coord)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, connector
}

func dialDaemon(t *testing.T, ts *httptest.Server) bridge.ToolClient {
	t.Helper()
	d := &bridge.Dialer{Endpoint: ts.URL + "/mcp", MaxAttempts: 1}
	client, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial daemon: %v", err)
	}
	if closer, ok := client.(*bridge.MCPClient); ok {
		t.Cleanup(func() { closer.Close() })
	}
	return client
}

// callTool invokes a daemon tool over MCP and decodes its JSON payload.
func callTool(t *testing.T, client bridge.ToolClient, name string, args map[string]interface{}, out interface{}) {
	t.Helper()
	text, err := client.CallTool(context.Background(), name, args)
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("decode %s payload %q: %v", name, text, err)
	}
}

func TestDaemonExposesToolSurface(t *testing.T) {
	ts, _ := startDaemon(t)
	client := dialDaemon(t, ts)

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}

	want := map[string]bool{
		"agent_call":         false,
		"agent_call_async":   false,
		"agent_get_results":  false,
		"agent_check_status": false,
		"agent_list":         false,
		"agent_status":       false,
		"agent_cleanup":      false,
	}
	for _, tool := range tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
		if len(tool.InputSchema) == 0 {
			t.Errorf("tool %s has no input schema", tool.Name)
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s not advertised", name)
		}
	}
}

func TestSessionLifecycleOverMCP(t *testing.T) {
	ts, connector := startDaemon(t)
	client := dialDaemon(t, ts)

	var call struct {
		Success   bool   `json:"success"`
		Name      string `json:"name"`
		Response  string `json:"response"`
		SessionID string `json:"session_id"`
	}
	callTool(t, client, "agent_call", map[string]interface{}{
		"name": "worker", "message": "hello",
	}, &call)
	if !call.Success || call.Response != "echo: hello" {
		t.Fatalf("agent_call = %+v", call)
	}
	if call.SessionID == "" {
		t.Error("agent_call returned no session id")
	}

	// Second message reuses the connection.
	callTool(t, client, "agent_call", map[string]interface{}{
		"name": "worker", "message": "again",
	}, &call)
	if connector.Connects() != 1 {
		t.Errorf("connects = %d, want 1 for repeated sends", connector.Connects())
	}

	var status struct {
		Success bool `json:"success"`
		Session *struct {
			MessageCount int `json:"message_count"`
		} `json:"session"`
	}
	callTool(t, client, "agent_status", map[string]interface{}{"name": "worker"}, &status)
	if !status.Success || status.Session == nil || status.Session.MessageCount != 2 {
		t.Fatalf("agent_status = %+v", status)
	}

	var cleanup struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	callTool(t, client, "agent_cleanup", map[string]interface{}{"name": "worker"}, &cleanup)
	if !cleanup.Success || cleanup.Count != 1 {
		t.Fatalf("agent_cleanup = %+v", cleanup)
	}
	if connector.Closes() != 1 {
		t.Errorf("closes = %d, want 1 after cleanup", connector.Closes())
	}
}

func TestBackgroundTaskOverMCP(t *testing.T) {
	ts, _ := startDaemon(t)
	client := dialDaemon(t, ts)

	var async struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	callTool(t, client, "agent_call_async", map[string]interface{}{
		"name": "bg", "message": "long job",
	}, &async)
	if !async.Success || async.Status != "running" {
		t.Fatalf("agent_call_async = %+v", async)
	}

	var results struct {
		Success bool `json:"success"`
		Results map[string]struct {
			Success  bool   `json:"success"`
			Response string `json:"response"`
		} `json:"results"`
	}
	callTool(t, client, "agent_get_results", map[string]interface{}{
		"names": []string{"bg"}, "timeout": 10,
	}, &results)
	entry := results.Results["bg"]
	if !entry.Success || entry.Response != "echo: long job" {
		t.Fatalf("agent_get_results entry = %+v", entry)
	}
}

// TestBridgeAgainstLiveDaemon drives the stdio bridge loop end to end: framed
// JSON-RPC in, daemon tool call over HTTP, framed response out.
func TestBridgeAgainstLiveDaemon(t *testing.T) {
	ts, _ := startDaemon(t)
	client := dialDaemon(t, ts)

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"agent_call","arguments":{"name":"worker","message":"via bridge"}}}`,
	}, "\n") + "\n")
	var out bytes.Buffer

	if err := bridge.New(client, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("bridge run: %v", err)
	}

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("malformed response %q: %v", scanner.Text(), err)
		}
		lines = append(lines, resp)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d responses, want 3", len(lines))
	}
	for i, resp := range lines {
		if resp["error"] != nil {
			t.Fatalf("response %d carries error: %v", i, resp["error"])
		}
	}

	result := lines[2]["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	if !strings.Contains(text, "echo: via bridge") {
		t.Errorf("bridge tool response = %q", text)
	}
}
