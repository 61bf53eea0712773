package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// MovementStore implements domain.MovementStore using PostgreSQL.
type MovementStore struct {
	pool *pgxpool.Pool
}

// NewMovementStore creates a MovementStore backed by the given pool.
func NewMovementStore(pool *pgxpool.Pool) *MovementStore {
	return &MovementStore{pool: pool}
}

const movementSelectCols = `id, game_id, sport, bookmaker, market,
	old_line, new_line, delta, book_count, recorded_at`

// InsertBatch records a set of line movements in one round trip.
// Detectors batch per snapshot, so batches stay small.
func (s *MovementStore) InsertBatch(ctx context.Context, moves []domain.LineMovement) error {
	if len(moves) == 0 {
		return nil
	}

	const query = `
		INSERT INTO line_movements (
			game_id, sport, bookmaker, market,
			old_line, new_line, delta, book_count, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	batch := &pgx.Batch{}
	for _, mv := range moves {
		batch.Queue(query,
			mv.GameID, mv.Sport, mv.Bookmaker, string(mv.Market),
			mv.OldLine, mv.NewLine, mv.Delta, mv.BookCount, mv.RecordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range moves {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert movements: %w", err)
		}
	}
	return nil
}

// ListByGame returns one game's movements, newest first.
func (s *MovementStore) ListByGame(ctx context.Context, gameID string, opts domain.ListOpts) ([]domain.LineMovement, error) {
	query := `SELECT ` + movementSelectCols + ` FROM line_movements WHERE game_id = $1`
	args := []any{gameID}
	query, args = applyListOpts(query, args, opts, "recorded_at")

	return s.list(ctx, query, args)
}

// ListBefore returns up to limit movements recorded before the cutoff,
// oldest first, for archival sweeps.
func (s *MovementStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.LineMovement, error) {
	query := `SELECT ` + movementSelectCols + `
		FROM line_movements WHERE recorded_at < $1 ORDER BY recorded_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	return s.list(ctx, query, args)
}

// DeleteBefore removes movements recorded before the cutoff.
func (s *MovementStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM line_movements WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete movements before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func (s *MovementStore) list(ctx context.Context, query string, args []any) ([]domain.LineMovement, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list movements: %w", err)
	}
	defer rows.Close()

	var moves []domain.LineMovement
	for rows.Next() {
		var mv domain.LineMovement
		var market string
		if err := rows.Scan(
			&mv.ID, &mv.GameID, &mv.Sport, &mv.Bookmaker, &market,
			&mv.OldLine, &mv.NewLine, &mv.Delta, &mv.BookCount, &mv.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan movement: %w", err)
		}
		mv.Market = domain.MarketType(market)
		moves = append(moves, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list movements rows: %w", err)
	}
	return moves, nil
}
