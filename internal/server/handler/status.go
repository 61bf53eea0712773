package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports the process mode and identity for dashboards.
type StatusHandler struct {
	Mode      string
	NodeID    string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, nodeID string, startedAt time.Time) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{Mode: mode, NodeID: nodeID, StartedAt: startedAt}
}

// GetStatus responds with the current mode, node identity, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"node_id":        h.NodeID,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
