package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// OpportunitySource lists recently detected arbitrage opportunities.
// Satisfied by the scan service's in-memory recents and by the Postgres
// history store.
type OpportunitySource interface {
	RecentOpportunities(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
}

// ArbHandler serves the arbitrage query endpoints.
type ArbHandler struct {
	source OpportunitySource
	logger *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(source OpportunitySource, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{source: source, logger: logHandler(logger, "arbitrage")}
}

// ListRecent returns the most recent arbitrage opportunities.
// GET /api/arbitrage/recent?limit=20
func (h *ArbHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 200)

	opps, err := h.source.RecentOpportunities(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list arbitrage opportunities")
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}
