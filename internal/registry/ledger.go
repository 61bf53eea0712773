// Package registry tracks mesh participants: identity, watched sports
// and books, liveness, and the bounded reputation ledger.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// Config tunes the ledger. Zero values fall back to defaults.
type Config struct {
	// Liveness is how long a node stays live after its last heartbeat.
	// Default 90s.
	Liveness time.Duration
}

func (c Config) withDefaults() Config {
	if c.Liveness <= 0 {
		c.Liveness = 90 * time.Second
	}
	return c
}

// Ledger owns node lifecycle and reputation over a NodeStore.
// Reputation is a bounded accumulator, not an audit log: adjustments
// are atomic clamped increments, and concurrent watching updates
// resolve last-write-wins.
type Ledger struct {
	nodes  domain.NodeStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a Ledger over the given store.
func NewLedger(nodes domain.NodeStore, cfg Config, logger *slog.Logger) *Ledger {
	return &Ledger{
		nodes:  nodes,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "registry")),
		now:    time.Now,
	}
}

// Register creates a node with the default reputation, or refreshes an
// existing node's watching declaration and agents while preserving its
// reputation and publish counter. Either way the node comes up live.
func (l *Ledger) Register(ctx context.Context, id string, w domain.Watching, agents map[string]bool) (domain.Node, error) {
	if id == "" {
		return domain.Node{}, fmt.Errorf("register node: missing id")
	}
	now := l.now()

	node, err := l.nodes.Get(ctx, id)
	switch {
	case err == nil:
		node.Watching = w
		node.Agents = agents
		node.LastSeen = now
	case errors.Is(err, domain.ErrNotFound):
		node = domain.Node{
			ID:           id,
			Watching:     w,
			Agents:       agents,
			Reputation:   domain.DefaultReputation,
			RegisteredAt: now,
			LastSeen:     now,
		}
	default:
		return domain.Node{}, fmt.Errorf("register node %s: %w", id, err)
	}

	if err := l.nodes.Register(ctx, node); err != nil {
		return domain.Node{}, fmt.Errorf("register node %s: %w", id, err)
	}
	if err := l.nodes.Heartbeat(ctx, id, now, l.cfg.Liveness); err != nil {
		l.logger.WarnContext(ctx, "liveness marker failed at registration",
			slog.String("node_id", id),
			slog.String("error", err.Error()),
		)
	}
	l.logger.InfoContext(ctx, "node registered",
		slog.String("node_id", id),
		slog.Int("reputation", node.Reputation),
		slog.Any("sports", w.Sports),
	)
	return node, nil
}

// Heartbeat refreshes a node's liveness marker and, when watching is
// non-nil, replaces its watched sports and books. Heartbeating an
// unknown node is a no-op with a warning, never an error, and never
// creates a record.
func (l *Ledger) Heartbeat(ctx context.Context, id string, watching *domain.Watching) error {
	err := l.nodes.Heartbeat(ctx, id, l.now(), l.cfg.Liveness)
	if errors.Is(err, domain.ErrNotFound) {
		l.logger.WarnContext(ctx, "heartbeat for unknown node",
			slog.String("node_id", id),
		)
		return nil
	}
	if err != nil {
		l.logger.WarnContext(ctx, "heartbeat write failed",
			slog.String("node_id", id),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if watching != nil {
		if err := l.nodes.SetWatching(ctx, id, *watching); err != nil && !errors.Is(err, domain.ErrNotFound) {
			l.logger.WarnContext(ctx, "watching update failed",
				slog.String("node_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Reputation returns a node's current reputation, or 0 for an unknown
// node.
func (l *Ledger) Reputation(ctx context.Context, id string) int {
	node, err := l.nodes.Get(ctx, id)
	if err != nil {
		return 0
	}
	return node.Reputation
}

// AdjustReputation applies a signed delta, clamped into [0,100], and
// returns the new value. Adjusting an unknown node returns 0 without
// error.
func (l *Ledger) AdjustReputation(ctx context.Context, id string, delta int, reason string) (int, error) {
	newRep, err := l.nodes.AdjustReputation(ctx, id, delta)
	if errors.Is(err, domain.ErrNotFound) {
		l.logger.WarnContext(ctx, "reputation adjust for unknown node",
			slog.String("node_id", id),
			slog.String("reason", reason),
		)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("adjust reputation for %s: %w", id, err)
	}
	l.logger.InfoContext(ctx, "reputation adjusted",
		slog.String("node_id", id),
		slog.Int("delta", delta),
		slog.Int("reputation", newRep),
		slog.String("reason", reason),
	)
	return newRep, nil
}

// OutcomeDelta maps a graded outcome to its reputation delta: plus or
// minus round(confidence/10) for correct/incorrect, zero for push and
// cancelled.
func OutcomeDelta(outcome domain.Outcome, confidence float64) int {
	step := int(math.Round(confidence / 10))
	switch outcome {
	case domain.OutcomeCorrect:
		return step
	case domain.OutcomeIncorrect:
		return -step
	default:
		return 0
	}
}

// RecordOutcome grades a published signal and applies the resulting
// reputation delta to its source node. The completed report (delta and
// timestamp filled in) is returned for persistence.
func (l *Ledger) RecordOutcome(ctx context.Context, report domain.OutcomeReport) (domain.OutcomeReport, error) {
	if !report.Outcome.Valid() {
		return domain.OutcomeReport{}, fmt.Errorf("record outcome: unknown outcome %q", report.Outcome)
	}
	if report.SignalID == "" || report.NodeID == "" {
		return domain.OutcomeReport{}, fmt.Errorf("record outcome: missing signal or node id")
	}

	report.Delta = OutcomeDelta(report.Outcome, report.Confidence)
	report.ReportedAt = l.now()

	if report.Delta != 0 {
		if _, err := l.AdjustReputation(ctx, report.NodeID, report.Delta, "signal "+string(report.Outcome)); err != nil {
			return domain.OutcomeReport{}, err
		}
	}
	return report, nil
}

// Node returns a node's ledger entry; ErrNotFound for unknown ids.
func (l *Ledger) Node(ctx context.Context, id string) (domain.Node, error) {
	return l.nodes.Get(ctx, id)
}

// TopNodes returns up to limit nodes ordered by descending reputation.
func (l *Ledger) TopNodes(ctx context.Context, limit int) ([]domain.Node, error) {
	if limit <= 0 {
		limit = 10
	}
	return l.nodes.TopByReputation(ctx, limit)
}

// Stats summarizes the live mesh: node count, average reputation (0
// when nothing is live), and the deduplicated union of watched sports
// and books. Used for observability, never for routing.
func (l *Ledger) Stats(ctx context.Context) (domain.NetworkStats, error) {
	live, err := l.nodes.Live(ctx)
	if err != nil {
		return domain.NetworkStats{}, fmt.Errorf("network stats: %w", err)
	}

	stats := domain.NetworkStats{
		ActiveNodes: len(live),
		GeneratedAt: l.now(),
		Coverage:    domain.Watching{Sports: []string{}, Books: []string{}},
	}
	if len(live) == 0 {
		return stats, nil
	}

	var sum int
	sports := make(map[string]struct{})
	books := make(map[string]struct{})
	for _, n := range live {
		sum += n.Reputation
		for _, s := range n.Watching.Sports {
			sports[s] = struct{}{}
		}
		for _, b := range n.Watching.Books {
			books[b] = struct{}{}
		}
	}
	stats.AvgReputation = float64(sum) / float64(len(live))
	stats.Coverage.Sports = sortedKeys(sports)
	stats.Coverage.Books = sortedKeys(books)
	return stats, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
