package oddsfeed

import (
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// --------------------------------------------------------------------------
// Odds provider DTOs
// --------------------------------------------------------------------------

// Game is one game's odds as returned by the provider, REST and WS
// alike. Timestamps arrive as RFC3339 strings.
type Game struct {
	GameID    string `json:"gameId"`
	Game      string `json:"game"`
	Sport     string `json:"sport"`
	HomeTeam  string `json:"homeTeam"`
	AwayTeam  string `json:"awayTeam"`
	StartTime string `json:"startTime"`
	Books     []Book `json:"books"`
}

// Book is one bookmaker's quote block inside a Game. Spread and total
// fields are omitted when the book does not quote that market.
type Book struct {
	Bookmaker      string   `json:"bookmaker"`
	HomeOdds       float64  `json:"homeOdds"`
	AwayOdds       float64  `json:"awayOdds"`
	HomeSpread     *float64 `json:"homeSpread,omitempty"`
	SpreadOdds     *float64 `json:"spreadOdds,omitempty"`
	AwaySpreadOdds *float64 `json:"awaySpreadOdds,omitempty"`
	TotalLine      *float64 `json:"totalLine,omitempty"`
	OverUnderOdds  *float64 `json:"overUnderOdds,omitempty"`
	UnderOdds      *float64 `json:"underOdds,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// wsMessage is the WS feed envelope.
type wsMessage struct {
	Type string `json:"type"` // "odds", "ping", "subscribed", "error"
	Data *Game  `json:"data,omitempty"`
	Err  string `json:"error,omitempty"`
}

// wsCommand is a client-to-server WS frame.
type wsCommand struct {
	Type   string   `json:"type"` // "subscribe"
	Sports []string `json:"sports,omitempty"`
}

// ToDomain converts the wire representation into a domain snapshot.
// Unparseable timestamps fall back to now.
func (g Game) ToDomain() domain.GameOdds {
	out := domain.GameOdds{
		GameID:    g.GameID,
		Game:      g.Game,
		Sport:     g.Sport,
		HomeTeam:  g.HomeTeam,
		AwayTeam:  g.AwayTeam,
		StartTime: parseTime(g.StartTime),
		Books:     make([]domain.BookQuote, 0, len(g.Books)),
	}
	for _, b := range g.Books {
		out.Books = append(out.Books, domain.BookQuote{
			Bookmaker:      b.Bookmaker,
			HomeOdds:       b.HomeOdds,
			AwayOdds:       b.AwayOdds,
			HomeSpread:     b.HomeSpread,
			SpreadOdds:     b.SpreadOdds,
			AwaySpreadOdds: b.AwaySpreadOdds,
			TotalLine:      b.TotalLine,
			OverUnderOdds:  b.OverUnderOdds,
			UnderOdds:      b.UnderOdds,
			Timestamp:      parseTime(b.Timestamp),
		})
	}
	return out
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
