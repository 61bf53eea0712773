package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/oddsmath"
)

// Total detects arbitrage on the over/under market, grouped by exact
// total line. The over side plays the role of home in the shared scan.
type Total struct {
	cfg    Config
	logger *slog.Logger
}

// NewTotal creates an over/under strategy.
func NewTotal(cfg Config, logger *slog.Logger) *Total {
	return &Total{cfg: cfg, logger: logger.With(slog.String("market", "total"))}
}

// Name returns the strategy identifier.
func (t *Total) Name() string { return "total" }

// Detect groups books by exact total line and runs the two-sided scan
// inside each group.
func (t *Total) Detect(ctx context.Context, game domain.GameOdds) ([]domain.ArbitrageOpportunity, error) {
	groups := make(map[float64][]bookPrices)
	for _, q := range game.Books {
		if q.Bookmaker == "" || q.TotalLine == nil || q.OverUnderOdds == nil || q.UnderOdds == nil {
			continue
		}
		over, err := oddsmath.AmericanToDecimal(*q.OverUnderOdds)
		if err != nil {
			continue
		}
		under, err := oddsmath.AmericanToDecimal(*q.UnderOdds)
		if err != nil {
			continue
		}
		line := *q.TotalLine
		groups[line] = append(groups[line], bookPrices{
			book:      q.Bookmaker,
			homePrice: *q.OverUnderOdds,
			homeDec:   over,
			awayPrice: *q.UnderOdds,
			awayDec:   under,
		})
	}

	lines := make([]float64, 0, len(groups))
	for line := range groups {
		lines = append(lines, line)
	}
	sort.Float64s(lines)

	var out []domain.ArbitrageOpportunity
	for _, line := range lines {
		p, ok := findPairing(groups[line], t.cfg.MinProfit)
		if !ok {
			continue
		}
		overBet := fmt.Sprintf("Over %g", line)
		underBet := fmt.Sprintf("Under %g", line)
		opp := t.cfg.opportunity(game, domain.MarketTotal, line, p, overBet, underBet)
		out = append(out, opp)
		t.logger.DebugContext(ctx, "total arbitrage detected",
			slog.String("game_id", game.GameID),
			slog.Float64("line", line),
			slog.Float64("profit_pct", opp.ProfitPct),
		)
	}
	return out, nil
}
