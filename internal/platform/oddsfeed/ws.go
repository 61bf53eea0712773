package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// OddsHandler is called for each odds snapshot the feed pushes.
type OddsHandler func(domain.GameOdds)

// WSClient streams odds snapshots from the provider's push feed. It
// manages the connection lifecycle and subscription state; reconnect
// policy belongs to the caller.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool
	sports []string

	handlerMu sync.RWMutex
	handlers  []OddsHandler

	done chan struct{}
}

// NewWSClient creates a WS client for the given feed endpoint.
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// OnOdds registers a handler called for every snapshot.
func (w *WSClient) OnOdds(h OddsHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Connect dials the feed and starts the read and ping loops. Previously
// subscribed sports are re-subscribed, so a caller reconnecting after a
// drop does not need to repeat Subscribe.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("oddsfeed/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("oddsfeed/ws: connect: %w", err)
	}

	w.conn = conn
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	if len(w.sports) > 0 {
		if err := w.sendCommand(wsCommand{Type: "subscribe", Sports: w.sports}); err != nil {
			return fmt.Errorf("oddsfeed/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe asks the feed for push updates on the given sports.
func (w *WSClient) Subscribe(ctx context.Context, sports []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("oddsfeed/ws: not connected")
	}

	if err := w.sendCommand(wsCommand{Type: "subscribe", Sports: sports}); err != nil {
		return fmt.Errorf("oddsfeed/ws: subscribe: %w", err)
	}
	w.sports = sports
	return nil
}

// Close shuts the client down. The client cannot be reused afterwards.
func (w *WSClient) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	if w.conn != nil {
		w.conn.Close()
	}
}

// Done is closed when the connection drops or the client is closed.
func (w *WSClient) Done() <-chan struct{} {
	return w.done
}

func (w *WSClient) sendCommand(cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer func() {
		w.mu.Lock()
		if !w.closed && w.conn == conn {
			w.closed = true
			close(w.done)
		}
		w.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "odds" || msg.Data == nil {
			continue
		}

		odds := msg.Data.ToDomain()
		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(odds)
		}
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
