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

// ArbHistoryStore implements domain.ArbHistoryStore using PostgreSQL.
type ArbHistoryStore struct {
	pool *pgxpool.Pool
}

// NewArbHistoryStore creates an ArbHistoryStore backed by the given pool.
func NewArbHistoryStore(pool *pgxpool.Pool) *ArbHistoryStore {
	return &ArbHistoryStore{pool: pool}
}

const arbSelectCols = `id, game_id, game, sport, market, line, legs,
	implied_total, profit_pct, detected_at, expires_at`

// Insert records one detected opportunity. The legs pair is stored as
// JSONB since nothing queries on individual leg fields.
func (s *ArbHistoryStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	legs, err := json.Marshal(opp.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs: %w", err)
	}

	const query = `
		INSERT INTO arb_history (
			id, game_id, game, sport, market, line, legs,
			implied_total, profit_pct, detected_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		opp.ID, opp.GameID, opp.Game, opp.Sport, string(opp.Market), opp.Line,
		legs, opp.ImpliedTotal, opp.ProfitPct, opp.DetectedAt, opp.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// GetByID returns one recorded opportunity.
func (s *ArbHistoryStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	const query = `SELECT ` + arbSelectCols + ` FROM arb_history WHERE id = $1`

	opp, err := scanOpportunity(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageOpportunity{}, domain.ErrNotFound
		}
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// ListRecent returns the most recently detected opportunities.
func (s *ArbHistoryStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + arbSelectCols + ` FROM arb_history ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	return s.list(ctx, query, args)
}

// ListByGame returns one game's opportunities, newest first.
func (s *ArbHistoryStore) ListByGame(ctx context.Context, gameID string, opts domain.ListOpts) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + arbSelectCols + ` FROM arb_history WHERE game_id = $1`
	args := []any{gameID}
	query, args = applyListOpts(query, args, opts, "detected_at")

	return s.list(ctx, query, args)
}

// BestSince returns the highest-profit opportunity detected since the
// cutoff.
func (s *ArbHistoryStore) BestSince(ctx context.Context, since time.Time) (domain.ArbitrageOpportunity, error) {
	const query = `SELECT ` + arbSelectCols + `
		FROM arb_history WHERE detected_at >= $1
		ORDER BY profit_pct DESC LIMIT 1`

	opp, err := scanOpportunity(s.pool.QueryRow(ctx, query, since))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageOpportunity{}, domain.ErrNotFound
		}
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: best opportunity since %s: %w", since, err)
	}
	return opp, nil
}

func (s *ArbHistoryStore) list(ctx context.Context, query string, args []any) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return opps, nil
}

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var opp domain.ArbitrageOpportunity
	var market string
	var legs []byte

	if err := row.Scan(
		&opp.ID, &opp.GameID, &opp.Game, &opp.Sport, &market, &opp.Line,
		&legs, &opp.ImpliedTotal, &opp.ProfitPct, &opp.DetectedAt, &opp.ExpiresAt,
	); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}

	opp.Market = domain.MarketType(market)
	if err := json.Unmarshal(legs, &opp.Legs); err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("unmarshal legs: %w", err)
	}
	return opp, nil
}
