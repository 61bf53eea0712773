package arbitrage

import (
	"context"
	"log/slog"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/oddsmath"
)

// Moneyline detects two-sided arbitrage on the head-to-head market.
type Moneyline struct {
	cfg    Config
	logger *slog.Logger
}

// NewMoneyline creates a moneyline strategy.
func NewMoneyline(cfg Config, logger *slog.Logger) *Moneyline {
	return &Moneyline{cfg: cfg, logger: logger.With(slog.String("market", "moneyline"))}
}

// Name returns the strategy identifier.
func (m *Moneyline) Name() string { return "moneyline" }

// Detect returns at most one opportunity: the pairing of the best home
// and best away prices across books, when their combined implied
// probability is below 1.0.
func (m *Moneyline) Detect(ctx context.Context, game domain.GameOdds) ([]domain.ArbitrageOpportunity, error) {
	books := make([]bookPrices, 0, len(game.Books))
	for _, q := range game.Books {
		if q.Bookmaker == "" {
			continue
		}
		hd, err := oddsmath.AmericanToDecimal(q.HomeOdds)
		if err != nil {
			continue
		}
		ad, err := oddsmath.AmericanToDecimal(q.AwayOdds)
		if err != nil {
			continue
		}
		books = append(books, bookPrices{
			book:      q.Bookmaker,
			homePrice: q.HomeOdds,
			homeDec:   hd,
			awayPrice: q.AwayOdds,
			awayDec:   ad,
		})
	}
	p, ok := findPairing(books, m.cfg.MinProfit)
	if !ok {
		return nil, nil
	}
	opp := m.cfg.opportunity(game, domain.MarketMoneyline, 0, p, game.HomeTeam+" ML", game.AwayTeam+" ML")
	m.logger.DebugContext(ctx, "moneyline arbitrage detected",
		slog.String("game_id", game.GameID),
		slog.Float64("profit_pct", opp.ProfitPct),
		slog.String("home_book", p.home.book),
		slog.String("away_book", p.away.book),
	)
	return []domain.ArbitrageOpportunity{opp}, nil
}
