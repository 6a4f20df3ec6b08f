package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/szaher/agentdock/internal/bridge"
	"github.com/szaher/agentdock/internal/config"
	"github.com/szaher/agentdock/internal/telemetry"
)

// callDaemonTool dials the daemon's MCP endpoint once (no retries; the
// daemon is expected to be running) and invokes a single tool, returning the
// JSON text the tool produced.
func callDaemonTool(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	dialer := &bridge.Dialer{
		Endpoint:    cfg.Endpoint(),
		MaxAttempts: 1,
		Logger:      telemetry.NewLogger(os.Stderr, level),
	}

	client, err := dialer.Dial(ctx)
	if err != nil {
		return "", fmt.Errorf("daemon not reachable at %s (is 'agentdock serve' running?): %w", cfg.Endpoint(), err)
	}
	defer closeClient(client)

	return client.CallTool(ctx, tool, args)
}

func closeClient(client bridge.ToolClient) {
	if closer, ok := client.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// printResult prints a tool's JSON payload. In quiet mode only the response
// text is printed; otherwise the full JSON is shown. Returns an error when
// the payload reports success=false so the command exits nonzero.
func printResult(text string, quiet bool) error {
	var payload struct {
		Success  bool   `json:"success"`
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		fmt.Println(text)
		return nil
	}

	if !payload.Success {
		fmt.Println(text)
		return fmt.Errorf("%s", payload.Error)
	}

	if quiet {
		fmt.Println(payload.Response)
		return nil
	}
	fmt.Println(text)
	return nil
}
