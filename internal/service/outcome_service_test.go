package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

type fakeLedger struct {
	delta int
	err   error
}

func (l *fakeLedger) RecordOutcome(_ context.Context, report domain.OutcomeReport) (domain.OutcomeReport, error) {
	if l.err != nil {
		return domain.OutcomeReport{}, l.err
	}
	report.Delta = l.delta
	return report, nil
}

type memOutcomeStore struct {
	mu       sync.Mutex
	inserted []domain.OutcomeReport
	err      error
}

func (s *memOutcomeStore) Insert(_ context.Context, rep domain.OutcomeReport) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, rep)
	return nil
}

func (s *memOutcomeStore) ListByNode(context.Context, string, domain.ListOpts) ([]domain.OutcomeReport, error) {
	return nil, nil
}

func (s *memOutcomeStore) ListBefore(context.Context, time.Time, int) ([]domain.OutcomeReport, error) {
	return nil, nil
}

func (s *memOutcomeStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *memOutcomeStore) Accuracy(context.Context, string, time.Time) (int64, int64, error) {
	return 0, 0, nil
}

type memAuditStore struct {
	mu     sync.Mutex
	events []string
}

func (a *memAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAuditStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestRecordGradesAndPersists(t *testing.T) {
	store := &memOutcomeStore{}
	audit := &memAuditStore{}
	svc := NewOutcomeService(&fakeLedger{delta: 5}, store, audit, testLogger())

	report := domain.OutcomeReport{
		SignalID: "sig-1",
		NodeID:   "node-1",
		Type:     domain.SignalSteam,
		Outcome:  domain.OutcomeCorrect,
	}
	graded, err := svc.Record(context.Background(), report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if graded.Delta != 5 {
		t.Errorf("delta = %d, want 5", graded.Delta)
	}
	if len(store.inserted) != 1 || store.inserted[0].Delta != 5 {
		t.Errorf("store inserts = %v, want one graded report", store.inserted)
	}
	if len(audit.events) != 1 || audit.events[0] != "outcome.recorded" {
		t.Errorf("audit events = %v, want [outcome.recorded]", audit.events)
	}
}

func TestRecordLedgerErrorPropagates(t *testing.T) {
	store := &memOutcomeStore{}
	svc := NewOutcomeService(&fakeLedger{err: domain.ErrNotRegistered}, store, nil, testLogger())

	_, err := svc.Record(context.Background(), domain.OutcomeReport{SignalID: "sig-1", NodeID: "ghost"})
	if !errors.Is(err, domain.ErrNotRegistered) {
		t.Fatalf("error = %v, want ErrNotRegistered", err)
	}
	if len(store.inserted) != 0 {
		t.Errorf("store received an insert for a failed grade")
	}
}

func TestRecordStoreFailureIsNonFatal(t *testing.T) {
	store := &memOutcomeStore{err: errors.New("pg down")}
	svc := NewOutcomeService(&fakeLedger{delta: -3}, store, &memAuditStore{}, testLogger())

	graded, err := svc.Record(context.Background(), domain.OutcomeReport{
		SignalID: "sig-1",
		NodeID:   "node-1",
		Outcome:  domain.OutcomeIncorrect,
	})
	if err != nil {
		t.Fatalf("history failure must not fail the grade: %v", err)
	}
	if graded.Delta != -3 {
		t.Errorf("delta = %d, want -3", graded.Delta)
	}
}

func TestRecordWithoutStores(t *testing.T) {
	svc := NewOutcomeService(&fakeLedger{delta: 2}, nil, nil, testLogger())

	if _, err := svc.Record(context.Background(), domain.OutcomeReport{
		SignalID: "sig-1",
		NodeID:   "node-1",
		Outcome:  domain.OutcomeCorrect,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
