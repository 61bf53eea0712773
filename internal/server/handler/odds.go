package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// OddsIngestor accepts an odds snapshot into the detection pipeline.
// Satisfied by the scan service.
type OddsIngestor interface {
	Ingest(ctx context.Context, odds domain.GameOdds) error
}

// OddsHandler serves manual odds ingestion and cached odds reads.
type OddsHandler struct {
	ingestor OddsIngestor
	cache    domain.OddsCache
	logger   *slog.Logger
}

// NewOddsHandler creates an OddsHandler.
func NewOddsHandler(ingestor OddsIngestor, cache domain.OddsCache, logger *slog.Logger) *OddsHandler {
	return &OddsHandler{ingestor: ingestor, cache: cache, logger: logHandler(logger, "odds")}
}

// Ingest feeds one odds snapshot into the scanner and detectors, the
// same path feed updates take.
// POST /api/odds
func (h *OddsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var odds domain.GameOdds
	if err := decodeBody(r, &odds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if odds.GameID == "" || odds.Sport == "" {
		writeError(w, http.StatusBadRequest, "gameId and sport are required")
		return
	}
	if len(odds.Books) == 0 {
		writeError(w, http.StatusBadRequest, "at least one book quote is required")
		return
	}

	if err := h.ingestor.Ingest(r.Context(), odds); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: odds ingest failed",
			slog.String("game_id", odds.GameID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to ingest odds")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ListCached returns the live cached snapshots for one sport.
// GET /api/odds?sport=basketball_nba
func (h *OddsHandler) ListCached(w http.ResponseWriter, r *http.Request) {
	sport := r.URL.Query().Get("sport")
	if sport == "" {
		writeError(w, http.StatusBadRequest, "sport query parameter is required")
		return
	}

	games, err := h.cache.Games(r.Context(), sport)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: cached odds read failed",
			slog.String("sport", sport),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read cached odds")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}
