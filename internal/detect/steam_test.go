package detect

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fp(v float64) *float64 { return &v }

// spreadOdds builds a snapshot quoting only the spread market, one entry per
// book in the order given.
func spreadOdds(ts time.Time, lines map[string]float64, order []string) domain.GameOdds {
	odds := domain.GameOdds{
		GameID:   "game-1",
		Sport:    "nba",
		HomeTeam: "Celtics",
		AwayTeam: "Lakers",
	}
	for _, book := range order {
		line := lines[book]
		odds.Books = append(odds.Books, domain.BookQuote{
			Bookmaker:      book,
			HomeOdds:       -110,
			AwayOdds:       -110,
			HomeSpread:     fp(line),
			SpreadOdds:     fp(-110),
			AwaySpreadOdds: fp(-110),
			Timestamp:      ts,
		})
	}
	return odds
}

func newSteam(t *testing.T) *Steam {
	t.Helper()
	tracker := NewLineTracker(5 * time.Minute)
	return NewSteam(Config{Name: "steam"}, tracker, testLogger())
}

func TestSteamDetectsConfirmedMove(t *testing.T) {
	s := newSteam(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	order := []string{"fanduel", "draftkings", "betmgm"}

	drafts, err := s.OnOdds(ctx, spreadOdds(base, map[string]float64{
		"fanduel": -3.0, "draftkings": -3.0, "betmgm": -3.0,
	}, order))
	if err != nil {
		t.Fatalf("OnOdds: %v", err)
	}
	if len(drafts) != 0 {
		t.Fatalf("first snapshot has no baseline, got %d drafts", len(drafts))
	}

	// Two books move half a point the same direction.
	drafts, err = s.OnOdds(ctx, spreadOdds(base.Add(30*time.Second), map[string]float64{
		"fanduel": -3.5, "draftkings": -3.5, "betmgm": -3.0,
	}, order))
	if err != nil {
		t.Fatalf("OnOdds: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2 (one per moving book)", len(drafts))
	}

	d := drafts[0]
	if d.Type != domain.SignalSteam {
		t.Errorf("Type = %s, want steam", d.Type)
	}
	if d.Movement == nil {
		t.Fatal("steam draft must carry its movement")
	}
	if d.Movement.Market != domain.MarketSpread {
		t.Errorf("Market = %s, want spread", d.Movement.Market)
	}
	if d.Movement.OldLine != -3.0 || d.Movement.NewLine != -3.5 {
		t.Errorf("lines = %v to %v, want -3.0 to -3.5", d.Movement.OldLine, d.Movement.NewLine)
	}
	if d.Movement.Delta != -0.5 {
		t.Errorf("Delta = %v, want -0.5", d.Movement.Delta)
	}
	if d.Movement.BookCount != 2 {
		t.Errorf("BookCount = %d, want 2", d.Movement.BookCount)
	}
	// Confidence: |delta|*10 + books*10 = 5 + 20.
	if math.Abs(d.Payload.Confidence-25) > 1e-9 {
		t.Errorf("Confidence = %v, want 25", d.Payload.Confidence)
	}
	if !strings.Contains(d.Payload.Description, "spread") {
		t.Errorf("description should name the market: %q", d.Payload.Description)
	}
}

func TestSteamIgnoresLoneMove(t *testing.T) {
	s := newSteam(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	order := []string{"fanduel", "draftkings", "betmgm"}

	s.OnOdds(ctx, spreadOdds(base, map[string]float64{
		"fanduel": -3.0, "draftkings": -3.0, "betmgm": -3.0,
	}, order))

	drafts, err := s.OnOdds(ctx, spreadOdds(base.Add(30*time.Second), map[string]float64{
		"fanduel": -4.0, "draftkings": -3.0, "betmgm": -3.0,
	}, order))
	if err != nil {
		t.Fatalf("OnOdds: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("a single book repricing is not steam, got %d drafts", len(drafts))
	}
}

func TestSteamOppositeMovesDoNotConfirm(t *testing.T) {
	s := newSteam(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	order := []string{"fanduel", "draftkings"}

	s.OnOdds(ctx, spreadOdds(base, map[string]float64{
		"fanduel": -3.0, "draftkings": -3.0,
	}, order))

	drafts, _ := s.OnOdds(ctx, spreadOdds(base.Add(30*time.Second), map[string]float64{
		"fanduel": -3.5, "draftkings": -2.5,
	}, order))
	if len(drafts) != 0 {
		t.Errorf("books moving apart should not confirm each other, got %d drafts", len(drafts))
	}
}

func TestSteamBelowThresholdIgnored(t *testing.T) {
	s := newSteam(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	order := []string{"fanduel", "draftkings"}

	s.OnOdds(ctx, spreadOdds(base, map[string]float64{
		"fanduel": -3.0, "draftkings": -3.0,
	}, order))

	drafts, _ := s.OnOdds(ctx, spreadOdds(base.Add(30*time.Second), map[string]float64{
		"fanduel": -3.25, "draftkings": -3.25,
	}, order))
	if len(drafts) != 0 {
		t.Errorf("quarter-point drift is below the default threshold, got %d drafts", len(drafts))
	}
}

func TestSteamTracksTotalsIndependently(t *testing.T) {
	s := newSteam(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	totals := func(ts time.Time, a, b float64) domain.GameOdds {
		return domain.GameOdds{
			GameID:   "game-1",
			Sport:    "nba",
			HomeTeam: "Celtics",
			AwayTeam: "Lakers",
			Books: []domain.BookQuote{
				{Bookmaker: "fanduel", HomeOdds: -110, AwayOdds: -110, TotalLine: fp(a), OverUnderOdds: fp(-110), UnderOdds: fp(-110), Timestamp: ts},
				{Bookmaker: "draftkings", HomeOdds: -110, AwayOdds: -110, TotalLine: fp(b), OverUnderOdds: fp(-110), UnderOdds: fp(-110), Timestamp: ts},
			},
		}
	}

	s.OnOdds(ctx, totals(base, 218.5, 218.5))
	drafts, err := s.OnOdds(ctx, totals(base.Add(time.Minute), 221.0, 220.0))
	if err != nil {
		t.Fatalf("OnOdds: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}
	for _, d := range drafts {
		if d.Movement.Market != domain.MarketTotal {
			t.Errorf("Market = %s, want total", d.Movement.Market)
		}
		if d.Movement.Delta <= 0 {
			t.Errorf("totals moved up, Delta = %v", d.Movement.Delta)
		}
	}
}

func TestSteamRespectsConfiguredThreshold(t *testing.T) {
	tracker := NewLineTracker(5 * time.Minute)
	s := NewSteam(Config{
		Name:   "steam",
		Params: map[string]any{"move_threshold": 2.0, "confirm_books": 2},
	}, tracker, testLogger())
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	order := []string{"fanduel", "draftkings"}

	s.OnOdds(ctx, spreadOdds(base, map[string]float64{
		"fanduel": -3.0, "draftkings": -3.0,
	}, order))

	drafts, _ := s.OnOdds(ctx, spreadOdds(base.Add(30*time.Second), map[string]float64{
		"fanduel": -4.0, "draftkings": -4.0,
	}, order))
	if len(drafts) != 0 {
		t.Errorf("one-point move is below the 2.0 threshold, got %d drafts", len(drafts))
	}
}
