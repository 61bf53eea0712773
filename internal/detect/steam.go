package detect

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/signal"
)

const (
	defaultMoveThreshold = 0.5
	defaultConfirmBooks  = 2
)

// Steam detects coordinated line movement: a spread or total line that jumps
// at one book while other books travel the same direction inside the
// tracker's window. Sharp money tends to hit several books at once; a lone
// book repricing is noise.
type Steam struct {
	cfg     Config
	tracker *LineTracker
	logger  *slog.Logger
	now     func() time.Time
}

// NewSteam creates a Steam detector over the given line tracker. The
// following keys are read from cfg.Params:
//
//   - "move_threshold" (float64): minimum absolute line change at a single
//     book to trigger evaluation. Defaults to 0.5 points.
//   - "confirm_books" (int): minimum number of books moving the same
//     direction inside the window. Defaults to 2.
func NewSteam(cfg Config, tracker *LineTracker, logger *slog.Logger) *Steam {
	return &Steam{
		cfg:     cfg,
		tracker: tracker,
		logger:  logger.With(slog.String("detector", "steam")),
		now:     time.Now,
	}
}

// Name returns the detector identifier.
func (s *Steam) Name() string { return "steam" }

// Init performs any one-time setup. For Steam this is a no-op.
func (s *Steam) Init(_ context.Context) error { return nil }

// OnOdds tracks every book's spread and total lines and proposes steam
// drafts for moves that clear the threshold with cross-book confirmation.
func (s *Steam) OnOdds(_ context.Context, odds domain.GameOdds) ([]Draft, error) {
	var drafts []Draft
	drafts = append(drafts, s.scanMarket(odds, domain.MarketSpread)...)
	drafts = append(drafts, s.scanMarket(odds, domain.MarketTotal)...)
	return drafts, nil
}

// OnSignal is a no-op for Steam; it does not react to mesh signals.
func (s *Steam) OnSignal(_ context.Context, _ domain.Signal) ([]Draft, error) {
	return nil, nil
}

// Close releases resources. Steam has nothing to release.
func (s *Steam) Close() error { return nil }

type lineMove struct {
	book     string
	from, to float64
	at       time.Time
}

func (s *Steam) scanMarket(odds domain.GameOdds, market domain.MarketType) []Draft {
	threshold := s.moveThreshold()

	var moves []lineMove
	for _, q := range odds.Books {
		if q.Bookmaker == "" {
			continue
		}
		value, ok := lineValue(q, market)
		if !ok {
			continue
		}
		ts := q.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}

		key := lineKey(odds.GameID, market, q.Bookmaker)
		prev, seen := s.tracker.Last(key)
		s.tracker.Track(key, value, ts)

		if seen && math.Abs(value-prev) >= threshold {
			moves = append(moves, lineMove{book: q.Bookmaker, from: prev, to: value, at: ts})
		}
	}
	if len(moves) == 0 {
		return nil
	}

	confirm := s.confirmBooks()
	var drafts []Draft
	for _, m := range moves {
		count := s.confirming(odds, market, m.to-m.from)
		if count < confirm {
			continue
		}

		mv := domain.LineMovement{
			GameID:     odds.GameID,
			Sport:      odds.Sport,
			Bookmaker:  m.book,
			Market:     market,
			OldLine:    m.from,
			NewLine:    m.to,
			Delta:      m.to - m.from,
			BookCount:  count,
			RecordedAt: m.at,
		}
		payload, evidence := signal.SteamContent(mv)

		movement := mv
		drafts = append(drafts, Draft{
			Type:     domain.SignalSteam,
			Payload:  payload,
			Evidence: evidence,
			Movement: &movement,
		})

		s.logger.Debug("steam move detected",
			slog.String("game_id", odds.GameID),
			slog.String("market", string(market)),
			slog.String("bookmaker", m.book),
			slog.Float64("delta", mv.Delta),
			slog.Int("book_count", count),
		)
	}
	return drafts
}

// confirming counts books whose net movement inside the window shares the
// direction of the triggering move. The triggering book counts itself.
func (s *Steam) confirming(odds domain.GameOdds, market domain.MarketType, dir float64) int {
	count := 0
	for _, q := range odds.Books {
		if q.Bookmaker == "" {
			continue
		}
		if _, ok := lineValue(q, market); !ok {
			continue
		}
		delta, ok := s.tracker.WindowDelta(lineKey(odds.GameID, market, q.Bookmaker))
		if !ok || delta == 0 {
			continue
		}
		if (delta > 0) == (dir > 0) {
			count++
		}
	}
	return count
}

// lineValue extracts the tracked line for the market, when the book quotes
// it. Moneyline price moves are not steam; only point lines are tracked.
func lineValue(q domain.BookQuote, market domain.MarketType) (float64, bool) {
	switch market {
	case domain.MarketSpread:
		if q.HomeSpread != nil {
			return *q.HomeSpread, true
		}
	case domain.MarketTotal:
		if q.TotalLine != nil {
			return *q.TotalLine, true
		}
	}
	return 0, false
}

func lineKey(gameID string, market domain.MarketType, book string) string {
	return gameID + "|" + string(market) + "|" + book
}

// moveThreshold returns the configured move threshold or the default.
func (s *Steam) moveThreshold() float64 {
	return s.cfg.floatParam("move_threshold", defaultMoveThreshold)
}

// confirmBooks returns the configured confirmation count or the default.
func (s *Steam) confirmBooks() int {
	return s.cfg.intParam("confirm_books", defaultConfirmBooks)
}

// Compile-time interface check.
var _ Detector = (*Steam)(nil)
