package arbitrage

import (
	"time"

	"github.com/google/uuid"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/oddsmath"
)

// bookPrices holds one book's valid decimal prices for both sides of a
// market at a single line. Books missing either side never make it into
// a group.
type bookPrices struct {
	book      string
	homePrice float64
	homeDec   float64
	awayPrice float64
	awayDec   float64
}

// legQuote is one side of a candidate pairing.
type legQuote struct {
	book    string
	price   float64
	decimal float64
}

// pairing is the best cross-book two-sided combination in a market
// group, with stakes and profit already computed.
type pairing struct {
	home         legQuote
	away         legQuote
	impliedTotal float64
	profitPct    float64
	homeStake    float64
	awayStake    float64
}

// findPairing scans the group once, tracking the best decimal on each
// side independently. A pairing qualifies only when the two maxima sit
// at different books and their combined implied probability is strictly
// below 1.0 with profit above minProfit.
func findPairing(books []bookPrices, minProfit float64) (pairing, bool) {
	if len(books) < 2 {
		return pairing{}, false
	}
	bestHome, bestAway := 0, 0
	for i := 1; i < len(books); i++ {
		if books[i].homeDec > books[bestHome].homeDec {
			bestHome = i
		}
		if books[i].awayDec > books[bestAway].awayDec {
			bestAway = i
		}
	}
	// No arbitrage against oneself.
	if books[bestHome].book == books[bestAway].book {
		return pairing{}, false
	}
	h, a := books[bestHome], books[bestAway]
	total := oddsmath.ImpliedTotal(h.homeDec, a.awayDec)
	if total >= 1 {
		return pairing{}, false
	}
	profit := oddsmath.ProfitPct(total)
	if profit <= minProfit {
		return pairing{}, false
	}
	homeStake, awayStake := oddsmath.Stakes(h.homeDec, a.awayDec)
	return pairing{
		home:         legQuote{book: h.book, price: h.homePrice, decimal: h.homeDec},
		away:         legQuote{book: a.book, price: a.awayPrice, decimal: a.awayDec},
		impliedTotal: total,
		profitPct:    oddsmath.Round2(profit),
		homeStake:    oddsmath.Round2(homeStake),
		awayStake:    oddsmath.Round2(awayStake),
	}, true
}

// opportunity assembles the domain object for a qualified pairing.
func (c Config) opportunity(game domain.GameOdds, market domain.MarketType, line float64, p pairing, homeBet, awayBet string) domain.ArbitrageOpportunity {
	now := time.Now()
	return domain.ArbitrageOpportunity{
		ID:     uuid.Must(uuid.NewRandom()).String(),
		GameID: game.GameID,
		Game:   game.Label(),
		Sport:  game.Sport,
		Market: market,
		Line:   line,
		Legs: [2]domain.ArbLeg{
			{Bookmaker: p.home.book, Outcome: homeBet, Price: p.home.price, DecimalPrice: p.home.decimal, StakePct: p.homeStake},
			{Bookmaker: p.away.book, Outcome: awayBet, Price: p.away.price, DecimalPrice: p.away.decimal, StakePct: p.awayStake},
		},
		ImpliedTotal: p.impliedTotal,
		ProfitPct:    p.profitPct,
		DetectedAt:   now,
		ExpiresAt:    now.Add(c.Expiry),
	}
}
