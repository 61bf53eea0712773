// Package arbitrage provides per-market arbitrage strategies and a
// scanner that runs them over normalized multi-book odds snapshots.
package arbitrage

import (
	"context"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// Strategy is a single-market arbitrage detector.
type Strategy interface {
	Name() string
	// Detect returns zero or more opportunities for the given game
	// snapshot. Books with malformed or missing prices are skipped,
	// never fatal.
	Detect(ctx context.Context, game domain.GameOdds) ([]domain.ArbitrageOpportunity, error)
}

// Config tunes opportunity qualification, shared by the market
// strategies.
type Config struct {
	// MinProfit is the minimum profit percentage an opportunity must
	// clear. Zero keeps any positive edge.
	MinProfit float64
	// Expiry is the validity horizon stamped on detections. Odds
	// staleness is not directly observable upstream, so a fixed
	// horizon stands in for it.
	Expiry time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{MinProfit: 0, Expiry: 30 * time.Second}
}
