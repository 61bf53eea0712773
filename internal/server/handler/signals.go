package handler

import (
	"log/slog"
	"net/http"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// SignalsHandler serves the live-signal query endpoints backed by the
// Redis signal store.
type SignalsHandler struct {
	store  domain.SignalStore
	logger *slog.Logger
}

// NewSignalsHandler creates a SignalsHandler.
func NewSignalsHandler(store domain.SignalStore, logger *slog.Logger) *SignalsHandler {
	return &SignalsHandler{store: store, logger: logHandler(logger, "signals")}
}

// ListRecent returns recent live signals of one type.
// GET /api/signals?type=steam&limit=20
func (h *SignalsHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	typ := domain.SignalType(r.URL.Query().Get("type"))
	if typ == "" {
		writeError(w, http.StatusBadRequest, "missing type parameter")
		return
	}
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, "unknown signal type "+string(typ))
		return
	}
	limit := parseLimit(r, 20, 200)

	sigs, err := h.store.Recent(r.Context(), typ, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list signals failed",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	if sigs == nil {
		sigs = []domain.Signal{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"signals": sigs})
}
