package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// OutcomeRecorder grades a signal's outcome and applies the reputation
// delta. Satisfied by the outcome service.
type OutcomeRecorder interface {
	Record(ctx context.Context, report domain.OutcomeReport) (domain.OutcomeReport, error)
}

// OutcomesHandler serves outcome reporting.
type OutcomesHandler struct {
	recorder OutcomeRecorder
	logger   *slog.Logger
}

// NewOutcomesHandler creates an OutcomesHandler.
func NewOutcomesHandler(recorder OutcomeRecorder, logger *slog.Logger) *OutcomesHandler {
	return &OutcomesHandler{recorder: recorder, logger: logHandler(logger, "outcomes")}
}

type outcomeRequest struct {
	SignalID   string         `json:"signalId"`
	NodeID     string         `json:"nodeId"`
	Outcome    domain.Outcome `json:"outcome"`
	Confidence float64        `json:"confidence"`
}

// Report grades a published signal.
// POST /api/outcomes
func (h *OutcomesHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SignalID == "" || req.NodeID == "" {
		writeError(w, http.StatusBadRequest, "signalId and nodeId are required")
		return
	}
	if !req.Outcome.Valid() {
		writeError(w, http.StatusBadRequest, "unknown outcome "+string(req.Outcome))
		return
	}

	report, err := h.recorder.Record(r.Context(), domain.OutcomeReport{
		SignalID:   req.SignalID,
		NodeID:     req.NodeID,
		Outcome:    req.Outcome,
		Confidence: req.Confidence,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotRegistered) || errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "node not registered")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: record outcome failed",
			slog.String("signal_id", req.SignalID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to record outcome")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
