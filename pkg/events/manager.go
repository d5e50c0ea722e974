package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentrelay/pkg/sse"
)

// RunFunc starts one agent run and returns its event stream. The channel
// is closed after the terminal event. Cancelling ctx ends the run early.
type RunFunc func(ctx context.Context, messages []json.RawMessage) <-chan sse.Event

// ConnectionManager manages WebSocket connections that drive agent runs.
// Each process has one ConnectionManager instance.
type ConnectionManager struct {
	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
}

// Connection represents a single WebSocket client. At most one run is
// active per connection.
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	run    RunFunc
	ctx    context.Context
	cancel context.CancelFunc

	runMu  sync.Mutex
	active *activeRun // nil when no run is active
	runWG  sync.WaitGroup
}

// activeRun is the run currently owned by a connection.
type activeRun struct {
	cancel context.CancelFunc
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade with a RunFunc already
// bound to the caller's identity. Blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, run RunFunc) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:     connID,
		Conn:   conn,
		run:    run,
		ctx:    ctx,
		cancel: cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          WSTypeConnectionEstablished,
		"connection_id": connID,
	})

	// Read loop: process client messages until connection closes
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", connID, "error", err)
			m.sendError(c, "invalid message")
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// handleClientMessage dispatches a client message to the appropriate handler.
func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	action := msg.Action
	if action == "" && msg.Messages != nil {
		action = WSActionRun
	}

	switch action {
	case WSActionRun:
		if !m.startRun(c, msg.Messages) {
			m.sendError(c, "run already in progress")
		}

	case WSActionCancel:
		c.runMu.Lock()
		if c.active != nil {
			c.active.cancel()
		}
		c.runMu.Unlock()

	case WSActionPing:
		m.sendJSON(c, map[string]string{"type": WSTypePong})

	default:
		m.sendError(c, "unknown action")
	}
}

// startRun launches a run in the background so the read loop keeps serving
// cancel and ping. Returns false when a run is already active. The run is
// released just before its terminal event is written, so a client may start
// the next run as soon as it sees done or error.
func (m *ConnectionManager) startRun(c *Connection, messages []json.RawMessage) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.active != nil {
		return false
	}

	runCtx, runCancel := context.WithCancel(c.ctx)
	r := &activeRun{cancel: runCancel}
	c.active = r
	c.runWG.Add(1)

	release := func() {
		c.runMu.Lock()
		if c.active == r {
			c.active = nil
		}
		c.runMu.Unlock()
	}

	go func() {
		defer c.runWG.Done()
		defer runCancel()
		defer release()

		terminalSent := false
		// Drain to the end even after a failed write so the producer can
		// observe cancellation and release its upstream connection.
		for ev := range c.run(runCtx, messages) {
			if runCtx.Err() != nil {
				continue
			}
			terminal := IsTerminal(ev)
			if terminal {
				release()
			}
			if err := m.sendEvent(c, ev); err != nil {
				slog.Warn("Failed to send run event, cancelling run",
					"connection_id", c.ID, "event", ev.Name, "error", err)
				runCancel()
				continue
			}
			terminalSent = terminalSent || terminal
		}

		// A client cancel still gets exactly one terminal event.
		if !terminalSent && c.ctx.Err() == nil {
			release()
			if err := m.sendEvent(c, NewErrorEvent("run cancelled")); err != nil {
				slog.Warn("Failed to send cancellation event",
					"connection_id", c.ID, "error", err)
			}
		}
	}()
	return true
}

// registerConnection adds a connection to the tracking map.
func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// unregisterConnection cancels any active run, waits for it to finish and
// closes the socket.
func (m *ConnectionManager) unregisterConnection(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	c.runWG.Wait()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// sendEvent writes one run event as {event, data}.
func (m *ConnectionManager) sendEvent(c *Connection, ev sse.Event) error {
	data, err := marshalMessage(ev)
	if err != nil {
		return err
	}
	return m.sendRaw(c, data)
}

// sendError sends an error control message.
func (m *ConnectionManager) sendError(c *Connection, message string) {
	m.sendJSON(c, map[string]string{"type": WSTypeError, "message": message})
}

// sendJSON marshals and sends a JSON message to a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := marshalMessage(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.ID, "error", err)
	}
}

// sendRaw sends raw bytes to a single connection with a write timeout.
func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}

// marshalMessage encodes v without HTML escaping so relayed text is
// delivered unchanged.
func marshalMessage(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
