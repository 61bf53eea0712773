package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// SignalHistoryStore implements domain.SignalHistoryStore using PostgreSQL.
type SignalHistoryStore struct {
	pool *pgxpool.Pool
}

// NewSignalHistoryStore creates a SignalHistoryStore backed by the given pool.
func NewSignalHistoryStore(pool *pgxpool.Pool) *SignalHistoryStore {
	return &SignalHistoryStore{pool: pool}
}

const signalSelectCols = `id, type, node_id, reputation, game_id, sport,
	description, confidence, ttl_seconds, evidence, created_at, expires_at`

// Insert records one published signal. Re-inserting the same id is a
// no-op so bus replays stay idempotent.
func (s *SignalHistoryStore) Insert(ctx context.Context, sig domain.Signal) error {
	evidence, err := json.Marshal(sig.Evidence)
	if err != nil {
		return fmt.Errorf("postgres: marshal evidence: %w", err)
	}

	const query = `
		INSERT INTO signal_history (
			id, type, node_id, reputation, game_id, sport,
			description, confidence, ttl_seconds, evidence, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		sig.ID, string(sig.Type), sig.Source.NodeID, sig.Source.Reputation,
		sig.Payload.GameID, sig.Payload.Sport, sig.Payload.Description,
		sig.Payload.Confidence, sig.Payload.TTLSeconds, evidence,
		sig.CreatedAt, sig.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

// GetByID returns one signal from history.
func (s *SignalHistoryStore) GetByID(ctx context.Context, id string) (domain.Signal, error) {
	const query = `SELECT ` + signalSelectCols + ` FROM signal_history WHERE id = $1`

	sig, err := scanSignal(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Signal{}, domain.ErrNotFound
		}
		return domain.Signal{}, fmt.Errorf("postgres: get signal %s: %w", id, err)
	}
	return sig, nil
}

// ListByNode returns a node's published signals, newest first.
func (s *SignalHistoryStore) ListByNode(ctx context.Context, nodeID string, opts domain.ListOpts) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM signal_history WHERE node_id = $1`
	args := []any{nodeID}
	query, args = applyListOpts(query, args, opts, "created_at")

	return s.list(ctx, query, args)
}

// ListByType returns signals of one type, newest first.
func (s *SignalHistoryStore) ListByType(ctx context.Context, typ domain.SignalType, opts domain.ListOpts) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM signal_history WHERE type = $1`
	args := []any{string(typ)}
	query, args = applyListOpts(query, args, opts, "created_at")

	return s.list(ctx, query, args)
}

// ListBefore returns up to limit signals created before the cutoff,
// oldest first, for archival sweeps.
func (s *SignalHistoryStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + `
		FROM signal_history WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	return s.list(ctx, query, args)
}

// DeleteBefore removes signals created before the cutoff and reports
// how many rows went away.
func (s *SignalHistoryStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signal_history WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of recorded signals.
func (s *SignalHistoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signal_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count signals: %w", err)
	}
	return n, nil
}

func (s *SignalHistoryStore) list(ctx context.Context, query string, args []any) ([]domain.Signal, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	var sigs []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list signals rows: %w", err)
	}
	return sigs, nil
}

func scanSignal(row pgx.Row) (domain.Signal, error) {
	var sig domain.Signal
	var typ string
	var evidence []byte

	if err := row.Scan(
		&sig.ID, &typ, &sig.Source.NodeID, &sig.Source.Reputation,
		&sig.Payload.GameID, &sig.Payload.Sport, &sig.Payload.Description,
		&sig.Payload.Confidence, &sig.Payload.TTLSeconds, &evidence,
		&sig.CreatedAt, &sig.ExpiresAt,
	); err != nil {
		return domain.Signal{}, err
	}

	sig.Type = domain.SignalType(typ)
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &sig.Evidence); err != nil {
			return domain.Signal{}, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	return sig, nil
}

// applyListOpts appends time filters, ordering, and pagination to a
// query that already has len(args) placeholders.
func applyListOpts(query string, args []any, opts domain.ListOpts, timeCol string) (string, []any) {
	idx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", timeCol, idx)
		args = append(args, *opts.Since)
		idx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", timeCol, idx)
		args = append(args, *opts.Until)
		idx++
	}

	query += fmt.Sprintf(" ORDER BY %s DESC", timeCol)

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, opts.Limit)
		idx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, opts.Offset)
	}

	return query, args
}
