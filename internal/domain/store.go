package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SignalHistoryStore persists every published signal for replay and
// post-hoc grading, independent of the live store's TTL eviction.
type SignalHistoryStore interface {
	Insert(ctx context.Context, sig Signal) error
	GetByID(ctx context.Context, id string) (Signal, error)
	ListByNode(ctx context.Context, nodeID string, opts ListOpts) ([]Signal, error)
	ListByType(ctx context.Context, typ SignalType, opts ListOpts) ([]Signal, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Signal, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// OutcomeStore persists graded signal outcomes.
type OutcomeStore interface {
	Insert(ctx context.Context, rep OutcomeReport) error
	ListByNode(ctx context.Context, nodeID string, opts ListOpts) ([]OutcomeReport, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]OutcomeReport, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Accuracy(ctx context.Context, nodeID string, since time.Time) (correct, total int64, err error)
}

// MovementStore persists bookmaker line changes.
type MovementStore interface {
	InsertBatch(ctx context.Context, moves []LineMovement) error
	ListByGame(ctx context.Context, gameID string, opts ListOpts) ([]LineMovement, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]LineMovement, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArbHistoryStore persists detected arbitrage opportunities.
type ArbHistoryStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	GetByID(ctx context.Context, id string) (ArbitrageOpportunity, error)
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListByGame(ctx context.Context, gameID string, opts ListOpts) ([]ArbitrageOpportunity, error)
	BestSince(ctx context.Context, since time.Time) (ArbitrageOpportunity, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
