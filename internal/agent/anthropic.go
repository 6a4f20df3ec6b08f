package agent

import (
	"context"
	"fmt"
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConnector opens conversations backed by the Anthropic Messages
// API. Each connection carries its own transcript; completed exchanges are
// archived by remote session ID so a later connection can resume (fork) from
// that point.
type AnthropicConnector struct {
	client    anthropic.Client
	model     string
	maxTokens int

	mu      sync.Mutex
	archive map[string][]anthropic.MessageParam
}

// NewAnthropicConnector creates a connector that reads ANTHROPIC_API_KEY from
// the environment.
func NewAnthropicConnector(model string, maxTokens int) *AnthropicConnector {
	return &AnthropicConnector{
		client:    anthropic.NewClient(),
		model:     model,
		maxTokens: maxTokens,
		archive:   make(map[string][]anthropic.MessageParam),
	}
}

// NewAnthropicConnectorWithKey creates a connector with an explicit API key.
func NewAnthropicConnectorWithKey(apiKey, model string, maxTokens int) *AnthropicConnector {
	c := NewAnthropicConnector(model, maxTokens)
	c.client = anthropic.NewClient(option.WithAPIKey(apiKey))
	return c
}

// Connect opens a new conversation. With Options.Resume set, the new
// connection starts from the archived transcript of that remote session.
func (c *AnthropicConnector) Connect(_ context.Context, opts Options) (Conn, error) {
	conn := &anthropicConn{connector: c}
	if opts.Resume != "" {
		snapshot, ok := c.snapshot(opts.Resume)
		if !ok {
			return nil, fmt.Errorf("resume session %q: transcript not available", opts.Resume)
		}
		conn.history = snapshot
	}
	return conn, nil
}

func (c *AnthropicConnector) snapshot(sessionID string) ([]anthropic.MessageParam, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	transcript, ok := c.archive[sessionID]
	if !ok {
		return nil, false
	}
	cloned := make([]anthropic.MessageParam, len(transcript))
	copy(cloned, transcript)
	return cloned, true
}

func (c *AnthropicConnector) store(sessionID string, transcript []anthropic.MessageParam) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cloned := make([]anthropic.MessageParam, len(transcript))
	copy(cloned, transcript)
	c.archive[sessionID] = cloned
}

func (c *AnthropicConnector) drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.archive, sessionID)
}

type anthropicConn struct {
	connector *AnthropicConnector
	sessionID string
	history   []anthropic.MessageParam
}

// Send streams one exchange. Events are emitted as the model produces them;
// the terminal EventResult carries the remote session ID and stop reason.
func (a *anthropicConn) Send(ctx context.Context, message string) (<-chan Event, error) {
	messages := append(a.history, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.connector.model),
		Messages:  messages,
		MaxTokens: int64(a.connector.maxTokens),
	}

	stream := a.connector.client.Messages.NewStreaming(ctx, params)

	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		var accMsg anthropic.Message

		for stream.Next() {
			event := stream.Current()
			_ = accMsg.Accumulate(event)

			switch event.Type {
			case "content_block_delta":
				switch event.Delta.Type {
				case "text_delta":
					ch <- Event{Type: EventText, Text: event.Delta.Text}
				case "thinking_delta":
					ch <- Event{Type: EventThinking, Thinking: event.Delta.Thinking}
				}
			case "content_block_start":
				if event.ContentBlock.Type == "tool_use" {
					ch <- Event{
						Type:      EventToolUse,
						ToolUseID: event.ContentBlock.ID,
						ToolName:  event.ContentBlock.Name,
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			ch <- Event{Type: EventError, Err: err}
			return
		}

		if a.sessionID == "" {
			a.sessionID = newSessionID()
		}

		a.history = append(messages, accMsg.ToParam())
		a.connector.store(a.sessionID, a.history)

		ch <- Event{
			Type:       EventResult,
			SessionID:  a.sessionID,
			StopReason: string(accMsg.StopReason),
		}
	}()

	return ch, nil
}

// Close drops the archived transcript for this connection's session. The
// underlying HTTP client is shared and needs no teardown.
func (a *anthropicConn) Close() error {
	if a.sessionID != "" {
		a.connector.drop(a.sessionID)
	}
	return nil
}
