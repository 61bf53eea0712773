package handler

import (
	"net/http"
)

// DetectorLister exposes the names of registered detectors. Satisfied
// by *detect.Engine.
type DetectorLister interface {
	Names() []string
}

// DetectorsHandler lists the detectors running in this process.
type DetectorsHandler struct {
	engine DetectorLister
}

// NewDetectorsHandler creates a DetectorsHandler.
func NewDetectorsHandler(engine DetectorLister) *DetectorsHandler {
	return &DetectorsHandler{engine: engine}
}

// List returns the names of active detectors.
// GET /api/detectors
func (h *DetectorsHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.engine.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"detectors": names})
}
