package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	// actionTimeout bounds store calls made on behalf of one inbound frame.
	actionTimeout = 5 * time.Second
)

// client is one WebSocket connection. nodeID is empty until the
// connection registers.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id      string
	tier    domain.Tier
	subject string

	mu         sync.RWMutex
	rooms      map[string]bool
	closed     bool
	nodeID     string
	reputation int
}

// inbound is the JSON frame clients send. Action selects the operation;
// the other fields are action-specific.
type inbound struct {
	Action string   `json:"action"` // subscribe | unsubscribe | register | heartbeat | publish
	Rooms  []string `json:"rooms,omitempty"`

	Node *struct {
		ID       string          `json:"id"`
		Watching domain.Watching `json:"watching"`
		Agents   map[string]bool `json:"agents,omitempty"`
	} `json:"node,omitempty"`

	Watching *domain.Watching `json:"watching,omitempty"`

	Signal *struct {
		Type     domain.SignalType     `json:"type"`
		Payload  domain.SignalPayload  `json:"payload"`
		Evidence domain.SignalEvidence `json:"evidence"`
	} `json:"signal,omitempty"`
}

// close marks the client dead and closes its send channel. Must only be
// called from the hub loop.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// enqueue offers a frame to the client without blocking. Returns false
// when the client is gone or its buffer is full.
func (c *client) enqueue(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) inAnyRoom(rooms []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range rooms {
		if c.rooms[r] {
			return true
		}
	}
	return false
}

func (c *client) currentNodeID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nodeID
}

// sendWelcome reports the negotiated tier so clients can surface the
// deferral behaviour they should expect.
func (c *client) sendWelcome() {
	data, err := envelope("welcome", map[string]any{
		"connId":         c.id,
		"tier":           c.tier,
		"uptimeSeconds":  int64(time.Since(c.hub.started).Seconds()),
		"freeDelayMs":    c.hub.cfg.FreeDelay.Milliseconds(),
		"deferArbitrage": !c.tier.Immediate(),
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *client) sendError(code, msg string) {
	data, err := envelope("error", map[string]any{
		"code":    code,
		"message": msg,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *client) sendAck(typ string, payload any) {
	data, err := envelope(typ, payload)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// readPump reads client frames and dispatches actions until the
// connection drops.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("conn_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("bad_message", "frame is not valid JSON")
			continue
		}
		c.handleAction(msg)
	}
}

func (c *client) handleAction(msg inbound) {
	switch msg.Action {
	case "subscribe":
		c.updateRooms(msg.Rooms, true)
		c.sendAck("subscribed", map[string]any{"rooms": msg.Rooms})
	case "unsubscribe":
		c.updateRooms(msg.Rooms, false)
		c.sendAck("unsubscribed", map[string]any{"rooms": msg.Rooms})
	case "register":
		c.handleRegister(msg)
	case "heartbeat":
		c.handleHeartbeat(msg)
	case "publish":
		c.handlePublish(msg)
	default:
		c.sendError("unknown_action", "unsupported action "+strings.TrimSpace(msg.Action))
	}
}

func (c *client) updateRooms(rooms []string, join bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range rooms {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if join {
			c.rooms[r] = true
		} else {
			delete(c.rooms, r)
		}
	}
}

func (c *client) handleRegister(msg inbound) {
	if msg.Node == nil || strings.TrimSpace(msg.Node.ID) == "" {
		c.sendError("bad_message", "register requires node.id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	node, err := c.hub.registrar.Register(ctx, msg.Node.ID, msg.Node.Watching, msg.Node.Agents)
	if err != nil {
		c.hub.logger.Error("ws: register failed",
			slog.String("node_id", msg.Node.ID),
			slog.String("error", err.Error()),
		)
		c.sendError("register_failed", err.Error())
		return
	}

	c.mu.Lock()
	c.nodeID = node.ID
	c.reputation = node.Reputation
	c.mu.Unlock()

	c.sendAck("registered", node)
}

func (c *client) handleHeartbeat(msg inbound) {
	nodeID := c.currentNodeID()
	if nodeID == "" {
		c.sendError("not_registered", "register before sending heartbeats")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	if err := c.hub.registrar.Heartbeat(ctx, nodeID, msg.Watching); err != nil {
		c.sendError("heartbeat_failed", err.Error())
		return
	}
	c.sendAck("heartbeat:ok", map[string]any{"nodeId": nodeID})
}

func (c *client) handlePublish(msg inbound) {
	nodeID := c.currentNodeID()
	if nodeID == "" {
		c.sendError("not_registered", "register before publishing signals")
		return
	}
	if msg.Signal == nil {
		c.sendError("bad_message", "publish requires a signal")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	key := "ratelimit:publish:" + nodeID
	allowed, err := c.hub.limiter.Allow(ctx, key, c.hub.cfg.PublishLimit, c.hub.cfg.PublishWindow)
	if err == nil && !allowed {
		c.sendError("rate_limited", "publish rate limit exceeded")
		return
	}

	sig, err := c.hub.publisher.Publish(ctx, msg.Signal.Type, nodeID, msg.Signal.Payload, msg.Signal.Evidence)
	if err != nil {
		c.sendError("publish_failed", err.Error())
		return
	}
	c.sendAck("published", map[string]any{"id": sig.ID, "expiresAt": sig.ExpiresAt})
}

// writePump flushes queued frames and keeps the connection alive with
// periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
