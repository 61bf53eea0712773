package arbitrage

import (
	"context"
	"log/slog"
	"sort"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// Scanner runs every configured market strategy over a game snapshot.
type Scanner struct {
	reg     *Registry
	markets []string
	logger  *slog.Logger
}

// NewScanner creates a scanner over the named strategies.
func NewScanner(reg *Registry, markets []string, logger *slog.Logger) *Scanner {
	return &Scanner{
		reg:     reg,
		markets: markets,
		logger:  logger.With(slog.String("component", "arb_scanner")),
	}
}

// Scan returns the union of opportunities across all configured market
// types, in no particular order. Callers sort with SortByProfit when
// presentation matters. Strategy failures are logged and skipped, never
// fatal to the scan.
func (s *Scanner) Scan(ctx context.Context, game domain.GameOdds) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for _, name := range s.markets {
		strat, err := s.reg.Get(name)
		if err != nil {
			s.logger.WarnContext(ctx, "unknown market strategy", slog.String("name", name))
			continue
		}
		opps, err := strat.Detect(ctx, game)
		if err != nil {
			s.logger.WarnContext(ctx, "market scan failed",
				slog.String("strategy", name),
				slog.String("game_id", game.GameID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, opps...)
	}
	return out
}

// SortByProfit orders opportunities by descending profit, in place.
func SortByProfit(opps []domain.ArbitrageOpportunity) {
	sort.Slice(opps, func(i, j int) bool {
		return opps[i].ProfitPct > opps[j].ProfitPct
	})
}
