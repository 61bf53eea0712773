// Package signal implements the distribution bus: it packages
// observations into typed, expiring signals, writes them to the shared
// store, publishes them across the cluster, and re-dispatches incoming
// signals to locally registered handlers with dedup and expiry checks.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// TypeAll subscribes a handler to every signal type.
const TypeAll = "all"

// LogStream is the durable stream every published signal is appended
// to, for replay and archival consumers.
const LogStream = "signals:log"

// Handler consumes a dispatched signal. Errors are logged; they never
// affect sibling handlers.
type Handler func(ctx context.Context, sig domain.Signal) error

// BusConfig tunes the bus. Zero values fall back to defaults.
type BusConfig struct {
	// DedupWindow suppresses republication of an identical
	// type/game/source combination. Default 5s.
	DedupWindow time.Duration
	// CleanupInterval drives periodic dedup-table compaction.
	// Default 60s.
	CleanupInterval time.Duration
}

func (c BusConfig) withDefaults() BusConfig {
	if c.DedupWindow <= 0 {
		c.DedupWindow = 5 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	return c
}

// Bus owns this process's signal flow. All mutable dispatch state
// (handler registry, dedup table) lives here rather than in globals, so
// the distribution logic is testable without a live connection.
type Bus struct {
	transport domain.SignalTransport
	store     domain.SignalStore
	nodes     domain.NodeStore
	dedup     *Dedup
	cfg       BusConfig
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates a Bus over the given transport and stores.
func NewBus(transport domain.SignalTransport, store domain.SignalStore, nodes domain.NodeStore, cfg BusConfig, logger *slog.Logger) *Bus {
	cfg = cfg.withDefaults()
	return &Bus{
		transport: transport,
		store:     store,
		nodes:     nodes,
		dedup:     NewDedup(cfg.DedupWindow),
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "signal_bus")),
		now:       time.Now,
		handlers:  make(map[string][]Handler),
	}
}

// Handle registers a handler for one signal type, or for TypeAll to
// receive everything.
func (b *Bus) Handle(typ string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typ] = append(b.handlers[typ], h)
}

func channelFor(typ domain.SignalType) string {
	return "signals:" + string(typ)
}

// Publish builds a full signal from the caller's type, source node,
// payload, and evidence, then distributes it: reputation stamp, TTL
// default, id assignment, store write, channel publish, stream append,
// and source counter increment. Store or transport failures degrade to
// process-local dispatch with a warning; they never fail the publish.
func (b *Bus) Publish(ctx context.Context, typ domain.SignalType, nodeID string, payload domain.SignalPayload, evidence domain.SignalEvidence) (domain.Signal, error) {
	now := b.now()
	sig := domain.Signal{
		Type:      typ,
		Source:    domain.SignalSource{NodeID: nodeID, Reputation: domain.DefaultReputation},
		Payload:   payload,
		Evidence:  evidence,
		CreatedAt: now,
	}
	if err := sig.Validate(); err != nil {
		return domain.Signal{}, err
	}

	node, err := b.nodes.Get(ctx, nodeID)
	switch {
	case err == nil:
		sig.Source.Reputation = node.Reputation
	case errors.Is(err, domain.ErrNotFound):
		// Unknown publishers keep the default reputation.
	default:
		b.logger.WarnContext(ctx, "reputation lookup failed, using default",
			slog.String("node_id", nodeID),
			slog.String("error", err.Error()),
		)
	}

	ttl := sig.TTL()
	sig.Payload.TTLSeconds = int(ttl / time.Second)
	sig.ID = uuid.Must(uuid.NewRandom()).String()
	sig.ExpiresAt = now.Add(ttl)
	if sig.Evidence.Timestamp.IsZero() {
		sig.Evidence.Timestamp = now
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("marshal signal: %w", err)
	}

	if err := b.store.Put(ctx, sig, ttl); err != nil {
		b.logger.WarnContext(ctx, "signal store write failed, continuing",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := b.transport.Publish(ctx, channelFor(sig.Type), data); err != nil {
		// Shared transport down: keep serving this process's handlers.
		b.logger.WarnContext(ctx, "transport publish failed, dispatching locally",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
		b.dispatch(ctx, sig)
	}

	// The replay log is appended regardless of the publish outcome, so
	// locally-dispatched signals still reach archival consumers.
	if err := b.transport.StreamAppend(ctx, LogStream, data); err != nil {
		b.logger.WarnContext(ctx, "signal stream append failed",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := b.nodes.IncrementPublished(ctx, nodeID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		b.logger.WarnContext(ctx, "publish counter increment failed",
			slog.String("node_id", nodeID),
			slog.String("error", err.Error()),
		)
	}

	b.logger.DebugContext(ctx, "signal published",
		slog.String("signal_id", sig.ID),
		slog.String("type", string(sig.Type)),
		slog.String("node_id", nodeID),
		slog.Float64("confidence", sig.Payload.Confidence),
	)
	return sig, nil
}

// Run subscribes to the shared transport and dispatches incoming
// signals to local handlers until ctx is cancelled. If the subscription
// cannot be established the bus degrades to process-local dispatch
// (driven by Publish fallbacks) and Run returns nil after a warning.
func (b *Bus) Run(ctx context.Context) error {
	ch, err := b.transport.Subscribe(ctx, "signals:*")
	if err != nil {
		b.logger.WarnContext(ctx, "transport subscribe failed, local dispatch only",
			slog.String("error", err.Error()),
		)
		return nil
	}
	b.logger.Info("signal bus started")
	defer b.logger.Info("signal bus stopped")

	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleMessage(ctx, data)
		case <-ticker.C:
			b.dedup.Cleanup()
		}
	}
}

func (b *Bus) handleMessage(ctx context.Context, data []byte) {
	var sig domain.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		b.logger.WarnContext(ctx, "dropping undecodable signal",
			slog.String("error", err.Error()),
		)
		return
	}
	b.dispatch(ctx, sig)
}

// dispatch applies the expiry and dedup gates, then invokes every
// handler registered for the signal's type and for TypeAll. Handler
// panics and errors are contained per handler.
func (b *Bus) dispatch(ctx context.Context, sig domain.Signal) {
	if sig.Expired(b.now()) {
		b.logger.DebugContext(ctx, "dropping expired signal",
			slog.String("signal_id", sig.ID),
			slog.String("type", string(sig.Type)),
		)
		return
	}
	if b.dedup.IsDuplicate(sig.Type, sig.Payload.GameID, sig.Source.NodeID) {
		b.logger.DebugContext(ctx, "dropping duplicate signal",
			slog.String("signal_id", sig.ID),
			slog.String("type", string(sig.Type)),
		)
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[string(sig.Type)])+len(b.handlers[TypeAll]))
	handlers = append(handlers, b.handlers[string(sig.Type)]...)
	handlers = append(handlers, b.handlers[TypeAll]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(ctx, sig, h)
	}
}

func (b *Bus) invoke(ctx context.Context, sig domain.Signal, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "signal handler panicked",
				slog.String("signal_id", sig.ID),
				slog.Any("panic", r),
			)
		}
	}()
	if err := h(ctx, sig); err != nil {
		b.logger.WarnContext(ctx, "signal handler failed",
			slog.String("signal_id", sig.ID),
			slog.String("type", string(sig.Type)),
			slog.String("error", err.Error()),
		)
	}
}
