package domain

import "time"

// ArbLeg is one side of a two-leg arbitrage: the book to bet at, the
// outcome to back, and the share of total bankroll to stake on it.
type ArbLeg struct {
	Bookmaker    string  `json:"bookmaker"`
	Outcome      string  `json:"outcome"`
	Price        float64 `json:"price"`
	DecimalPrice float64 `json:"decimalPrice"`
	StakePct     float64 `json:"stakePct"`
}

// ArbitrageOpportunity is a guaranteed-profit pairing of two quotes on
// opposite sides of the same market at different books. ProfitPct and
// the leg stake percentages are rounded to two decimals; stakes sum to
// 100 up to rounding.
type ArbitrageOpportunity struct {
	ID           string     `json:"id"`
	GameID       string     `json:"gameId"`
	Game         string     `json:"game"`
	Sport        string     `json:"sport"`
	Market       MarketType `json:"market"`
	Line         float64    `json:"line,omitempty"`
	Legs         [2]ArbLeg  `json:"legs"`
	ImpliedTotal float64    `json:"impliedTotal"`
	ProfitPct    float64    `json:"profitPct"`
	DetectedAt   time.Time  `json:"detectedAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// Expired reports whether the opportunity's validity horizon has passed.
func (o ArbitrageOpportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}
