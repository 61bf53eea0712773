package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/oddsmath"
)

// Spread detects arbitrage on the point-spread market. Quotes only pair
// within an identical line: home -3.5 at one book against away +3.5 at
// another, never across different lines.
type Spread struct {
	cfg    Config
	logger *slog.Logger
}

// NewSpread creates a spread strategy.
func NewSpread(cfg Config, logger *slog.Logger) *Spread {
	return &Spread{cfg: cfg, logger: logger.With(slog.String("market", "spread"))}
}

// Name returns the strategy identifier.
func (s *Spread) Name() string { return "spread" }

// Detect groups books by exact line value and runs the two-sided scan
// inside each group, returning at most one opportunity per line.
func (s *Spread) Detect(ctx context.Context, game domain.GameOdds) ([]domain.ArbitrageOpportunity, error) {
	groups := make(map[float64][]bookPrices)
	for _, q := range game.Books {
		if q.Bookmaker == "" || q.HomeSpread == nil || q.SpreadOdds == nil || q.AwaySpreadOdds == nil {
			continue
		}
		hd, err := oddsmath.AmericanToDecimal(*q.SpreadOdds)
		if err != nil {
			continue
		}
		ad, err := oddsmath.AmericanToDecimal(*q.AwaySpreadOdds)
		if err != nil {
			continue
		}
		line := *q.HomeSpread
		groups[line] = append(groups[line], bookPrices{
			book:      q.Bookmaker,
			homePrice: *q.SpreadOdds,
			homeDec:   hd,
			awayPrice: *q.AwaySpreadOdds,
			awayDec:   ad,
		})
	}

	lines := make([]float64, 0, len(groups))
	for line := range groups {
		lines = append(lines, line)
	}
	sort.Float64s(lines)

	var out []domain.ArbitrageOpportunity
	for _, line := range lines {
		p, ok := findPairing(groups[line], s.cfg.MinProfit)
		if !ok {
			continue
		}
		awayLine := -line
		if line == 0 {
			awayLine = 0
		}
		homeBet := fmt.Sprintf("%s %+g", game.HomeTeam, line)
		awayBet := fmt.Sprintf("%s %+g", game.AwayTeam, awayLine)
		opp := s.cfg.opportunity(game, domain.MarketSpread, line, p, homeBet, awayBet)
		out = append(out, opp)
		s.logger.DebugContext(ctx, "spread arbitrage detected",
			slog.String("game_id", game.GameID),
			slog.Float64("line", line),
			slog.Float64("profit_pct", opp.ProfitPct),
		)
	}
	return out, nil
}
