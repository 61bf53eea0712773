package oddsmath

// Overround returns the bookmaker margin baked into a two-way market,
// as a percentage. Fair markets are 0; a typical -110/-110 market is
// about 4.76.
func Overround(homeImplied, awayImplied float64) float64 {
	return (homeImplied + awayImplied - 1) * 100
}

// FairProbabilities strips the margin from a two-way market by
// normalizing both implied probabilities to sum to 1 (multiplicative
// no-vig method).
func FairProbabilities(homeImplied, awayImplied float64) (fairHome, fairAway float64) {
	total := homeImplied + awayImplied
	if total <= 0 {
		return 0, 0
	}
	return homeImplied / total, awayImplied / total
}

// Edge returns the expected value per unit staked when a price with
// true win probability fairProb is offered at the given decimal odds.
// Positive means the bet is +EV against that probability.
func Edge(fairProb, decimal float64) float64 {
	return fairProb*decimal - 1
}
