package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/oddsmesh/oddsmesh/internal/crypto"
	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// Room names. Sport rooms are derived per game ("sport:nba").
const (
	RoomSignals   = "signals"
	RoomArbitrage = "arbitrage"
)

func sportRoom(sport string) string {
	return "sport:" + sport
}

// upgrader configures the WebSocket upgrade parameters. Origin checks
// are left to the CORS middleware in front of the mux.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Publisher accepts signals published by connected nodes. Satisfied by
// *signal.Bus.
type Publisher interface {
	Publish(ctx context.Context, typ domain.SignalType, nodeID string, payload domain.SignalPayload, evidence domain.SignalEvidence) (domain.Signal, error)
}

// Registrar manages node identity for connections that register over
// the socket. Satisfied by *registry.Ledger.
type Registrar interface {
	Register(ctx context.Context, id string, w domain.Watching, agents map[string]bool) (domain.Node, error)
	Heartbeat(ctx context.Context, id string, watching *domain.Watching) error
	Reputation(ctx context.Context, id string) int
}

// Config tunes delivery behaviour per subscription tier.
type Config struct {
	// FreeDelay is how long arbitrage events are held back from
	// free-tier connections.
	FreeDelay time.Duration

	// PublishLimit and PublishWindow cap how many signals one node may
	// publish through the gateway per window.
	PublishLimit  int
	PublishWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.FreeDelay <= 0 {
		c.FreeDelay = 30 * time.Second
	}
	if c.PublishLimit <= 0 {
		c.PublishLimit = 60
	}
	if c.PublishWindow <= 0 {
		c.PublishWindow = time.Minute
	}
	return c
}

// event is one outbound message routed through the hub loop. An empty
// rooms slice targets every connection.
type event struct {
	rooms []string
	gated bool // arbitrage events: free tier deferred
	data  []byte
}

// Hub fans signals, opportunities, and network stats out to connected
// WebSocket clients, and accepts register/heartbeat/publish actions
// from them. All client-map mutation happens on the Run goroutine.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	events     chan event

	registrar Registrar
	publisher Publisher
	limiter   domain.RateLimiter
	verifier  *crypto.TierVerifier
	cooldown  *cooldown
	cfg       Config
	logger    *slog.Logger
	started   time.Time
}

// NewHub builds a hub. verifier may be nil, in which case every
// connection is treated as free tier.
func NewHub(registrar Registrar, publisher Publisher, limiter domain.RateLimiter, verifier *crypto.TierVerifier, cfg Config, logger *slog.Logger) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		events:     make(chan event, 256),
		registrar:  registrar,
		publisher:  publisher,
		limiter:    limiter,
		verifier:   verifier,
		cooldown:   newCooldown(cfg.FreeDelay),
		cfg:        cfg,
		logger:     logger,
		started:    time.Now().UTC(),
	}
}

// Run drives client registration and event delivery until ctx is
// cancelled. Call it in a goroutine before serving /ws.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Info("ws: client connected",
				slog.String("conn_id", c.id),
				slog.String("tier", string(c.tier)),
				slog.Int("total_clients", len(h.clients)),
			)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
				h.cooldown.Forget(c.id)
			}
			h.logger.Info("ws: client disconnected",
				slog.String("conn_id", c.id),
				slog.Int("total_clients", len(h.clients)),
			)

		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// deliver routes one event to every matching connection. Arbitrage
// events reach pro and premium tiers immediately; free connections get
// at most one per cooldown window, delayed by FreeDelay, and later
// opportunities inside the same window are dropped for that connection.
func (h *Hub) deliver(ev event) {
	for c := range h.clients {
		if len(ev.rooms) > 0 && !c.inAnyRoom(ev.rooms) {
			continue
		}

		if ev.gated && !c.tier.Immediate() {
			if !h.cooldown.Reserve(c.id) {
				continue
			}
			time.AfterFunc(h.cfg.FreeDelay, func() {
				if !c.enqueue(ev.data) {
					h.logger.Warn("ws: dropping deferred message", slog.String("conn_id", c.id))
				}
			})
			continue
		}

		if !c.enqueue(ev.data) {
			h.logger.Warn("ws: dropping message for slow client", slog.String("conn_id", c.id))
		}
	}
}

// BroadcastSignal pushes a signal:new event to the signals room and the
// room for the signal's sport.
func (h *Hub) BroadcastSignal(sig domain.Signal) {
	data, err := envelope("signal:new", sig)
	if err != nil {
		return
	}
	rooms := []string{RoomSignals}
	if sig.Payload.Sport != "" {
		rooms = append(rooms, sportRoom(sig.Payload.Sport))
	}
	h.post(event{rooms: rooms, data: data})
}

// BroadcastOpportunity pushes an arbitrage:new event to the arbitrage
// room, tier-delayed for free connections.
func (h *Hub) BroadcastOpportunity(opp domain.ArbitrageOpportunity) {
	data, err := envelope("arbitrage:new", opp)
	if err != nil {
		return
	}
	h.post(event{rooms: []string{RoomArbitrage}, gated: true, data: data})
}

// BroadcastStats pushes a network:stats event to every connection.
func (h *Hub) BroadcastStats(stats domain.NetworkStats) {
	data, err := envelope("network:stats", stats)
	if err != nil {
		return
	}
	h.post(event{data: data})
}

func (h *Hub) post(ev event) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("ws: event queue full, dropping broadcast")
	}
}

// HandleWS upgrades the request and registers the connection. The tier
// comes from a signed token in the "token" query parameter or the
// Authorization header; absent or invalid tokens downgrade to free.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	tier, subject := h.connTier(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		id:      uuid.NewString(),
		tier:    tier,
		subject: subject,
		rooms: map[string]bool{
			RoomSignals:   true,
			RoomArbitrage: true,
		},
	}

	h.register <- c
	c.sendWelcome()

	go c.writePump()
	go c.readPump()
}

// connTier resolves the connection's tier from its credential.
func (h *Hub) connTier(r *http.Request) (domain.Tier, string) {
	if h.verifier == nil {
		return domain.TierFree, ""
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = requestBearer(r)
	}
	if token == "" {
		return domain.TierFree, ""
	}
	tier, subject, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warn("ws: rejecting tier token", slog.String("error", err.Error()))
		return domain.TierFree, ""
	}
	return tier, subject
}

func requestBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// envelope wraps payload in the {"type":..., "payload":...} shape every
// outbound frame uses.
func envelope(typ string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":    typ,
		"payload": payload,
	})
}
