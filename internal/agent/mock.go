package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockExchange configures a single scripted exchange for a mock connection.
type MockExchange struct {
	Events  []Event
	SendErr error
	// Delay before the terminal event, to let tests hold a send in flight.
	Delay time.Duration
}

// MockConnector is a configurable fake capability for tests. Connections
// replay the configured script in order; with no script, each send echoes the
// message back as a single text event.
type MockConnector struct {
	mu           sync.Mutex
	script       []MockExchange
	connects     int
	closes       int
	connectErr   error
	connectDelay time.Duration
	closeErr     error
	resumed      []string
}

// NewMockConnector creates a mock connector with an optional exchange script.
func NewMockConnector(script ...MockExchange) *MockConnector {
	return &MockConnector{script: script}
}

// FailConnect makes subsequent Connect calls return err.
func (m *MockConnector) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// FailClose makes connection Close calls return err (after recording the
// close), to exercise best-effort cleanup paths.
func (m *MockConnector) FailClose(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// DelayConnect makes Connect sleep before returning, to widen races in
// concurrent first-use tests.
func (m *MockConnector) DelayConnect(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectDelay = d
}

// Connects reports how many connections were opened.
func (m *MockConnector) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Closes reports how many connections were closed.
func (m *MockConnector) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Resumed reports the Resume IDs passed to Connect, in order.
func (m *MockConnector) Resumed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.resumed...)
}

// Connect opens a mock connection.
func (m *MockConnector) Connect(ctx context.Context, opts Options) (Conn, error) {
	m.mu.Lock()
	delay := m.connectDelay
	connectErr := m.connectErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if opts.Resume != "" {
		m.resumed = append(m.resumed, opts.Resume)
	}
	return &MockConn{connector: m}, nil
}

// MockConn is a connection produced by MockConnector.
type MockConn struct {
	connector *MockConnector
	sessionID string
	exchange  int
	messages  []string
	closed    bool
}

// Messages returns the messages sent on this connection.
func (c *MockConn) Messages() []string {
	c.connector.mu.Lock()
	defer c.connector.mu.Unlock()
	return append([]string(nil), c.messages...)
}

// Closed reports whether Close was called.
func (c *MockConn) Closed() bool {
	c.connector.mu.Lock()
	defer c.connector.mu.Unlock()
	return c.closed
}

// Send replays the next scripted exchange, or echoes the message when no
// script is configured. The last scripted exchange repeats once exhausted.
func (c *MockConn) Send(_ context.Context, message string) (<-chan Event, error) {
	c.connector.mu.Lock()
	c.messages = append(c.messages, message)
	if c.closed {
		c.connector.mu.Unlock()
		return nil, fmt.Errorf("mock: send on closed connection")
	}

	var exchange MockExchange
	if len(c.connector.script) == 0 {
		exchange = MockExchange{Events: []Event{{Type: EventText, Text: "echo: " + message}}}
	} else {
		idx := c.exchange
		if idx >= len(c.connector.script) {
			idx = len(c.connector.script) - 1
		} else {
			c.exchange++
		}
		exchange = c.connector.script[idx]
	}

	if c.sessionID == "" {
		c.sessionID = newSessionID()
	}
	sessionID := c.sessionID
	c.connector.mu.Unlock()

	if exchange.SendErr != nil {
		return nil, exchange.SendErr
	}

	ch := make(chan Event, len(exchange.Events)+1)
	go func() {
		defer close(ch)
		terminal := false
		for _, ev := range exchange.Events {
			if ev.Type == EventError || ev.Type == EventResult {
				terminal = true
				if exchange.Delay > 0 {
					time.Sleep(exchange.Delay)
				}
			}
			if ev.Type == EventResult && ev.SessionID == "" {
				ev.SessionID = sessionID
			}
			ch <- ev
		}
		if !terminal {
			if exchange.Delay > 0 {
				time.Sleep(exchange.Delay)
			}
			ch <- Event{Type: EventResult, SessionID: sessionID, StopReason: "end_turn"}
		}
	}()

	return ch, nil
}

// Close marks the connection closed.
func (c *MockConn) Close() error {
	c.connector.mu.Lock()
	defer c.connector.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.connector.closes++
	}
	return c.connector.closeErr
}
