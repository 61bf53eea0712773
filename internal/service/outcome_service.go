package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// OutcomeLedger applies graded outcomes to node reputation. Satisfied
// by *registry.Ledger.
type OutcomeLedger interface {
	RecordOutcome(ctx context.Context, report domain.OutcomeReport) (domain.OutcomeReport, error)
}

// OutcomeService grades reported outcomes: the ledger adjusts the
// publisher's reputation, then the graded report lands in history and
// the audit log.
type OutcomeService struct {
	ledger OutcomeLedger
	store  domain.OutcomeStore // optional
	audit  domain.AuditStore   // optional
	logger *slog.Logger
}

// NewOutcomeService creates an OutcomeService. store and audit may be
// nil in modes without Postgres.
func NewOutcomeService(ledger OutcomeLedger, store domain.OutcomeStore, audit domain.AuditStore, logger *slog.Logger) *OutcomeService {
	return &OutcomeService{
		ledger: ledger,
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// Record grades one outcome report and returns it with the applied
// reputation delta filled in.
func (s *OutcomeService) Record(ctx context.Context, report domain.OutcomeReport) (domain.OutcomeReport, error) {
	graded, err := s.ledger.RecordOutcome(ctx, report)
	if err != nil {
		return domain.OutcomeReport{}, fmt.Errorf("outcome_service: record: %w", err)
	}

	if s.store != nil {
		if err := s.store.Insert(ctx, graded); err != nil {
			s.logger.ErrorContext(ctx, "outcome_service: history insert failed",
				slog.String("signal_id", graded.SignalID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "outcome.recorded", map[string]any{
			"signal_id": graded.SignalID,
			"node_id":   graded.NodeID,
			"outcome":   string(graded.Outcome),
			"delta":     graded.Delta,
		}); err != nil {
			s.logger.WarnContext(ctx, "outcome_service: audit log failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "outcome_service: outcome recorded",
		slog.String("signal_id", graded.SignalID),
		slog.String("node_id", graded.NodeID),
		slog.String("outcome", string(graded.Outcome)),
		slog.Int("delta", graded.Delta),
	)

	return graded, nil
}
