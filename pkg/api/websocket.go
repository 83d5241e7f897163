package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/wayfarer-ai/wayfarer/pkg/events"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
)

// ClientMessage is what WebSocket clients send.
type ClientMessage struct {
	Action    string `json:"action"`    // subscribe | unsubscribe | ping
	SessionID string `json:"sessionId"` // for subscribe/unsubscribe
}

// ConnectionManager owns all live WebSocket connections. Subscribing to a
// session replays its full event log before the live tail, so a client that
// attaches late (or reconnects) misses nothing.
type ConnectionManager struct {
	store        *session.Store
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*Connection
}

// Connection is a single WebSocket client.
//
// unsubs is only touched by the goroutine running HandleConnection (read
// loop plus deferred cleanup), so it needs no lock. writeMu serializes
// sends: session callbacks fire on emitter goroutines concurrently with the
// read loop's own replies.
type Connection struct {
	ID      string
	conn    *websocket.Conn
	ctx     context.Context
	writeMu sync.Mutex
	unsubs  map[string]func()
}

// NewConnectionManager creates a manager over the session store.
func NewConnectionManager(store *session.Store, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		store:        store,
		writeTimeout: writeTimeout,
		connections:  make(map[string]*Connection),
	}
}

// HandleConnection runs a connection's lifecycle. Called by the WebSocket
// handler after upgrade; blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	c := &Connection{
		ID:     uuid.New().String(),
		conn:   conn,
		ctx:    ctx,
		unsubs: make(map[string]func()),
	}
	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", c.ID, "error", err)
			continue
		}
		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the number of live connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.SessionID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "sessionId is required for subscribe"})
			return
		}
		if _, dup := c.unsubs[msg.SessionID]; dup {
			m.sendJSON(c, map[string]string{"type": "subscription.confirmed", "sessionId": msg.SessionID})
			return
		}
		sess, err := m.store.Get(msg.SessionID)
		if err != nil {
			m.sendJSON(c, map[string]string{
				"type":      "subscription.error",
				"sessionId": msg.SessionID,
				"message":   "session not found",
			})
			return
		}
		m.sendJSON(c, map[string]string{"type": "subscription.confirmed", "sessionId": msg.SessionID})
		// Subscribe replays the stored log synchronously before returning,
		// then keeps delivering the live tail through the same callback.
		c.unsubs[msg.SessionID] = sess.Subscribe(func(ev events.Event) {
			m.sendEvent(c, ev)
		})

	case "unsubscribe":
		if unsub, ok := c.unsubs[msg.SessionID]; ok {
			unsub()
			delete(c.unsubs, msg.SessionID)
		}

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})

	default:
		m.sendJSON(c, map[string]string{"type": "error", "message": "unknown action"})
	}
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregister(c *Connection) {
	for id, unsub := range c.unsubs {
		unsub()
		delete(c.unsubs, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, c.ID)
}

func (m *ConnectionManager) sendEvent(c *Connection, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal event for WebSocket", "connection_id", c.ID, "error", err)
		return
	}
	m.sendRaw(c, data)
}

func (m *ConnectionManager) sendJSON(c *Connection, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal WebSocket payload", "connection_id", c.ID, "error", err)
		return
	}
	m.sendRaw(c, data)
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("Failed to send to WebSocket client", "connection_id", c.ID, "error", err)
	}
}
