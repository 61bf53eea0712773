// Package oddsmath converts between American and decimal odds and
// computes the implied-probability quantities arbitrage detection is
// built on.
package oddsmath

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPrice marks an American price that no bookmaker would
// quote: zero, inside (-100, 100), or not a finite number.
var ErrInvalidPrice = errors.New("invalid american price")

// AmericanToDecimal converts an American price to decimal odds.
// +120 pays 1.20 profit per unit staked (decimal 2.20); -110 risks
// 1.10 to win 1 (decimal 1.909...).
func AmericanToDecimal(price float64) (float64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || math.Abs(price) < 100 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	if price > 0 {
		return price/100 + 1, nil
	}
	return 100/math.Abs(price) + 1, nil
}

// Implied returns the implied probability of a decimal price.
func Implied(decimal float64) float64 {
	return 1 / decimal
}

// ImpliedTotal sums the implied probabilities of two complementary
// decimal prices. Below 1.0 the pair is an arbitrage.
func ImpliedTotal(homeDecimal, awayDecimal float64) float64 {
	return 1/homeDecimal + 1/awayDecimal
}

// ProfitPct returns the guaranteed profit, as a percentage of total
// stake, locked in by betting both sides of a sub-1.0 implied total.
func ProfitPct(impliedTotal float64) float64 {
	return (1/impliedTotal - 1) * 100
}

// Stakes splits a bankroll across the two sides so both outcomes pay
// the same amount. The returned percentages sum to 100 before
// rounding.
func Stakes(homeDecimal, awayDecimal float64) (homePct, awayPct float64) {
	total := ImpliedTotal(homeDecimal, awayDecimal)
	homePct = Implied(homeDecimal) / total * 100
	awayPct = Implied(awayDecimal) / total * 100
	return homePct, awayPct
}

// Round2 rounds to two decimal places, the display precision for
// profit and stake percentages.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
