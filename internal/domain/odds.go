package domain

import "time"

// MarketType identifies which market of a game a quote or opportunity
// refers to.
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline"
	MarketSpread    MarketType = "spread"
	MarketTotal     MarketType = "total"
)

// BookQuote is one bookmaker's current prices for a game. Moneyline
// prices are always present; spread and total fields are optional and
// a side missing from the feed is simply not quoted by that book.
// Prices are American odds (-110, +120).
type BookQuote struct {
	Bookmaker      string    `json:"bookmaker"`
	HomeOdds       float64   `json:"homeOdds"`
	AwayOdds       float64   `json:"awayOdds"`
	HomeSpread     *float64  `json:"homeSpread,omitempty"`
	SpreadOdds     *float64  `json:"spreadOdds,omitempty"`
	AwaySpreadOdds *float64  `json:"awaySpreadOdds,omitempty"`
	TotalLine      *float64  `json:"totalLine,omitempty"`
	OverUnderOdds  *float64  `json:"overUnderOdds,omitempty"`
	UnderOdds      *float64  `json:"underOdds,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// GameOdds is a snapshot of every book's quotes for one game.
type GameOdds struct {
	GameID    string      `json:"gameId"`
	Game      string      `json:"game"`
	Sport     string      `json:"sport"`
	HomeTeam  string      `json:"homeTeam"`
	AwayTeam  string      `json:"awayTeam"`
	StartTime time.Time   `json:"startTime"`
	Books     []BookQuote `json:"books"`
}

// Label returns the feed's display name for the matchup, composing one
// from the team names when the feed omits it.
func (g GameOdds) Label() string {
	if g.Game != "" {
		return g.Game
	}
	return g.AwayTeam + " @ " + g.HomeTeam
}

// LineMovement records one bookmaker line change, the raw material for
// steam detection and movement history.
type LineMovement struct {
	ID         int64      `json:"id,omitempty"`
	GameID     string     `json:"gameId"`
	Sport      string     `json:"sport"`
	Bookmaker  string     `json:"bookmaker"`
	Market     MarketType `json:"market"`
	OldLine    float64    `json:"oldLine"`
	NewLine    float64    `json:"newLine"`
	Delta      float64    `json:"delta"`
	BookCount  int        `json:"bookCount"`
	RecordedAt time.Time  `json:"recordedAt"`
}
