package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the time-ranged reads it actually performs,
// not the full history store interfaces. The Postgres stores satisfy
// these implicitly.
// ---------------------------------------------------------------------------

// ArchivePrefix is the key prefix every archive object lives under.
// Listing it enumerates the full cold store.
const ArchivePrefix = "archive/"

// jsonlContentType labels archive objects as newline-delimited JSON.
const jsonlContentType = "application/x-ndjson"

// SignalArchiveStore provides read access to signal history for archival.
type SignalArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Signal, error)
}

// OutcomeArchiveStore provides read access to outcome history for archival.
type OutcomeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.OutcomeReport, error)
}

// MovementArchiveStore provides read access to movement history for archival.
type MovementArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.LineMovement, error)
}

// ArchiveImpl implements domain.Archiver by reading aged history rows,
// serializing them to JSONL, and uploading the result to object storage.
//
// Deleting archived rows from the primary store is intentionally NOT
// done here; DeleteBefore is a separate, explicit step to run after the
// archive has been verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	signals   SignalArchiveStore
	outcomes  OutcomeArchiveStore
	movements MovementArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	signals SignalArchiveStore,
	outcomes OutcomeArchiveStore,
	movements MovementArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		signals:   signals,
		outcomes:  outcomes,
		movements: movements,
		audit:     audit,
	}
}

// ArchiveSignals uploads all signal history rows older than the cutoff
// to archive/signals/YYYY-MM.jsonl and returns the archived count.
func (a *ArchiveImpl) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	sigs, err := a.signals.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	if len(sigs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(sigs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals marshal: %w", err)
	}

	return a.upload(ctx, "signals", before, buf, int64(len(sigs)))
}

// ArchiveOutcomes uploads all outcome rows older than the cutoff to
// archive/outcomes/YYYY-MM.jsonl and returns the archived count.
func (a *ArchiveImpl) ArchiveOutcomes(ctx context.Context, before time.Time) (int64, error) {
	reps, err := a.outcomes.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes query: %w", err)
	}
	if len(reps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(reps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes marshal: %w", err)
	}

	return a.upload(ctx, "outcomes", before, buf, int64(len(reps)))
}

// ArchiveMovements uploads all line movement rows older than the cutoff
// to archive/movements/YYYY-MM.jsonl and returns the archived count.
func (a *ArchiveImpl) ArchiveMovements(ctx context.Context, before time.Time) (int64, error) {
	moves, err := a.movements.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive movements query: %w", err)
	}
	if len(moves) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(moves)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive movements marshal: %w", err)
	}

	return a.upload(ctx, "movements", before, buf, int64(len(moves)))
}

// upload writes the archive object and records the event in the audit
// log.
func (a *ArchiveImpl) upload(ctx context.Context, kind string, before time.Time, buf []byte, count int64) (int64, error) {
	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by
// the year-month of the cutoff time.
//
//	archive/signals/2026-08.jsonl
//	archive/outcomes/2026-08.jsonl
//	archive/movements/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("%s%s/%s.jsonl", ArchivePrefix, kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
