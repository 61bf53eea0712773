package detect

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/oddsmath"
)

const (
	defaultMinEdge       = 0.03
	defaultConsensusMin  = 3
	defaultValueCooldown = 60 * time.Second
)

// Value flags +EV moneyline prices: a book whose offered odds beat the
// consensus no-vig probability by at least the configured edge. Consensus is
// the mean of every book's own vig-stripped home probability, so one stale
// book cannot drag it far.
type Value struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastEmit map[string]time.Time
}

// NewValue creates a Value detector. The following keys are read from
// cfg.Params:
//
//   - "min_edge" (float64): minimum expected value per unit staked.
//     Defaults to 0.03 (3 %).
//   - "consensus_min" (int): minimum books required to form a consensus.
//     Defaults to 3.
//   - "cooldown_seconds" (float64): minimum gap between drafts for the same
//     game. Defaults to 60.
func NewValue(cfg Config, logger *slog.Logger) *Value {
	return &Value{
		cfg:      cfg,
		logger:   logger.With(slog.String("detector", "value")),
		now:      time.Now,
		lastEmit: make(map[string]time.Time),
	}
}

// Name returns the detector identifier.
func (v *Value) Name() string { return "value" }

// Init performs any one-time setup. For Value this is a no-op.
func (v *Value) Init(_ context.Context) error { return nil }

// OnOdds compares every book's moneyline against the cross-book consensus
// and proposes at most one draft per game, for the largest edge found.
func (v *Value) OnOdds(_ context.Context, odds domain.GameOdds) ([]Draft, error) {
	type quote struct {
		book     string
		homeDec  float64
		awayDec  float64
		fairHome float64
	}

	var quotes []quote
	for _, q := range odds.Books {
		if q.Bookmaker == "" {
			continue
		}
		homeDec, err := oddsmath.AmericanToDecimal(q.HomeOdds)
		if err != nil {
			continue
		}
		awayDec, err := oddsmath.AmericanToDecimal(q.AwayOdds)
		if err != nil {
			continue
		}
		fairHome, _ := oddsmath.FairProbabilities(oddsmath.Implied(homeDec), oddsmath.Implied(awayDec))
		quotes = append(quotes, quote{book: q.Bookmaker, homeDec: homeDec, awayDec: awayDec, fairHome: fairHome})
	}
	if len(quotes) < v.consensusMin() {
		return nil, nil
	}

	var sum float64
	for _, q := range quotes {
		sum += q.fairHome
	}
	consensusHome := sum / float64(len(quotes))

	// Best edge across every book and side.
	var (
		bestEdge    float64
		bestBook    string
		bestOutcome string
		bestFair    float64
		bestDec     float64
	)
	for _, q := range quotes {
		if edge := oddsmath.Edge(consensusHome, q.homeDec); edge > bestEdge {
			bestEdge, bestBook, bestFair, bestDec = edge, q.book, consensusHome, q.homeDec
			bestOutcome = odds.HomeTeam + " ML"
		}
		if edge := oddsmath.Edge(1-consensusHome, q.awayDec); edge > bestEdge {
			bestEdge, bestBook, bestFair, bestDec = edge, q.book, 1-consensusHome, q.awayDec
			bestOutcome = odds.AwayTeam + " ML"
		}
	}
	if bestEdge < v.minEdge() {
		return nil, nil
	}
	if !v.readyToEmit(odds.GameID) {
		return nil, nil
	}

	books := make([]string, 0, len(quotes))
	for _, q := range quotes {
		books = append(books, q.book)
	}
	sort.Strings(books)

	payload := domain.SignalPayload{
		GameID: odds.GameID,
		Sport:  odds.Sport,
		Description: fmt.Sprintf("%s at %s is +%.1f%% EV (fair %.1f%%, implied %.1f%%)",
			bestOutcome, bestBook, bestEdge*100, bestFair*100, oddsmath.Implied(bestDec)*100),
		Confidence: math.Min(100, bestEdge*1000),
	}
	evidence := domain.SignalEvidence{
		Books:     books,
		Profit:    oddsmath.Round2(bestEdge * 100),
		Timestamp: v.now(),
	}

	v.logger.Debug("value edge detected",
		slog.String("game_id", odds.GameID),
		slog.String("bookmaker", bestBook),
		slog.String("outcome", bestOutcome),
		slog.Float64("edge", bestEdge),
	)

	return []Draft{{
		Type:     domain.SignalEV,
		Payload:  payload,
		Evidence: evidence,
	}}, nil
}

// OnSignal is a no-op for Value; it does not react to mesh signals.
func (v *Value) OnSignal(_ context.Context, _ domain.Signal) ([]Draft, error) {
	return nil, nil
}

// Close releases resources. Value has nothing to release.
func (v *Value) Close() error { return nil }

// readyToEmit enforces the per-game cooldown and records the emit time when
// the game is clear.
func (v *Value) readyToEmit(gameID string) bool {
	cooldown := v.cooldown()
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()
	if last, ok := v.lastEmit[gameID]; ok && now.Sub(last) < cooldown {
		return false
	}
	v.lastEmit[gameID] = now
	return true
}

// minEdge returns the configured minimum edge or the default.
func (v *Value) minEdge() float64 {
	return v.cfg.floatParam("min_edge", defaultMinEdge)
}

// consensusMin returns the configured consensus size or the default.
func (v *Value) consensusMin() int {
	return v.cfg.intParam("consensus_min", defaultConsensusMin)
}

// cooldown returns the configured per-game cooldown or the default.
func (v *Value) cooldown() time.Duration {
	secs := v.cfg.floatParam("cooldown_seconds", defaultValueCooldown.Seconds())
	return time.Duration(secs * float64(time.Second))
}

// Compile-time interface check.
var _ Detector = (*Value)(nil)
