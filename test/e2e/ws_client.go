package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// WSEvent represents a received WebSocket message.
type WSEvent struct {
	Type     string          `json:"type"`
	Event    string          `json:"event"`
	Raw      json.RawMessage // Original JSON
	Parsed   map[string]any  // Parsed for assertions
	Received time.Time       // When we received it
}

// WSClient connects to the relay WebSocket endpoint and collects messages.
type WSClient struct {
	conn   *websocket.Conn
	events []WSEvent
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}
}

// WSConnect establishes a WebSocket connection from origin and starts
// collecting messages in a background goroutine.
func WSConnect(ctx context.Context, wsURL, origin string) (*WSClient, error) {
	header := http.Header{}
	header.Set("Origin", origin)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)
	c := &WSClient{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}

	// Start background reader.
	go c.readLoop()

	return c, nil
}

// Send writes one client action.
func (c *WSClient) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// Run starts an agent run on the connection.
func (c *WSClient) Run(messages []map[string]any) error {
	return c.Send(map[string]any{"action": "run", "messages": messages})
}

// Events returns a snapshot of all collected messages.
func (c *WSClient) Events() []WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WSEvent(nil), c.events...)
}

// WaitFor blocks until a message matching match arrives or timeout elapses.
func (c *WSClient) WaitFor(timeout time.Duration, match func(WSEvent) bool) (WSEvent, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range c.Events() {
			if match(ev) {
				return ev, nil
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return WSEvent{}, fmt.Errorf("timed out waiting for WebSocket message")
}

// Close closes the connection and waits for the reader to stop.
func (c *WSClient) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	<-c.doneCh
}

func (c *WSClient) readLoop() {
	defer close(c.doneCh)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		ev := WSEvent{Raw: data, Received: time.Now()}
		_ = json.Unmarshal(data, &ev)
		_ = json.Unmarshal(data, &ev.Parsed)
		c.mu.Lock()
		c.events = append(c.events, ev)
		c.mu.Unlock()
	}
}
