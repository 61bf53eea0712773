package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates an OutcomeStore backed by the given pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

const outcomeSelectCols = `signal_id, node_id, signal_type, outcome, confidence, delta, reported_at`

// Insert records one graded outcome.
func (s *OutcomeStore) Insert(ctx context.Context, rep domain.OutcomeReport) error {
	const query = `
		INSERT INTO outcome_reports (
			signal_id, node_id, signal_type, outcome, confidence, delta, reported_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		rep.SignalID, rep.NodeID, string(rep.Type), string(rep.Outcome),
		rep.Confidence, rep.Delta, rep.ReportedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert outcome for %s: %w", rep.SignalID, err)
	}
	return nil
}

// ListByNode returns outcomes graded against one node, newest first.
func (s *OutcomeStore) ListByNode(ctx context.Context, nodeID string, opts domain.ListOpts) ([]domain.OutcomeReport, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM outcome_reports WHERE node_id = $1`
	args := []any{nodeID}
	query, args = applyListOpts(query, args, opts, "reported_at")

	return s.list(ctx, query, args)
}

// ListBefore returns up to limit outcomes reported before the cutoff,
// oldest first, for archival sweeps.
func (s *OutcomeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.OutcomeReport, error) {
	query := `SELECT ` + outcomeSelectCols + `
		FROM outcome_reports WHERE reported_at < $1 ORDER BY reported_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	return s.list(ctx, query, args)
}

// DeleteBefore removes outcomes reported before the cutoff.
func (s *OutcomeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM outcome_reports WHERE reported_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete outcomes before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Accuracy returns how many of a node's graded signals since the cutoff
// resolved correct, excluding pushes and cancellations from the total.
func (s *OutcomeStore) Accuracy(ctx context.Context, nodeID string, since time.Time) (correct, total int64, err error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'correct'),
			COUNT(*) FILTER (WHERE outcome IN ('correct', 'incorrect'))
		FROM outcome_reports
		WHERE node_id = $1 AND reported_at >= $2`

	if err := s.pool.QueryRow(ctx, query, nodeID, since).Scan(&correct, &total); err != nil {
		return 0, 0, fmt.Errorf("postgres: accuracy for %s: %w", nodeID, err)
	}
	return correct, total, nil
}

func (s *OutcomeStore) list(ctx context.Context, query string, args []any) ([]domain.OutcomeReport, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes: %w", err)
	}
	defer rows.Close()

	var reps []domain.OutcomeReport
	for rows.Next() {
		var rep domain.OutcomeReport
		var typ, outcome string
		if err := rows.Scan(
			&rep.SignalID, &rep.NodeID, &typ, &outcome,
			&rep.Confidence, &rep.Delta, &rep.ReportedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan outcome: %w", err)
		}
		rep.Type = domain.SignalType(typ)
		rep.Outcome = domain.Outcome(outcome)
		reps = append(reps, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list outcomes rows: %w", err)
	}
	return reps, nil
}
