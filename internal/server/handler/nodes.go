package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// NodeRegistry is the slice of the reputation ledger the node endpoints
// need. Satisfied by *registry.Ledger.
type NodeRegistry interface {
	Register(ctx context.Context, id string, w domain.Watching, agents map[string]bool) (domain.Node, error)
	Heartbeat(ctx context.Context, id string, watching *domain.Watching) error
	Node(ctx context.Context, id string) (domain.Node, error)
	TopNodes(ctx context.Context, limit int) ([]domain.Node, error)
	Stats(ctx context.Context) (domain.NetworkStats, error)
}

// NodesHandler serves node registry and network endpoints.
type NodesHandler struct {
	registry NodeRegistry
	logger   *slog.Logger
}

// NewNodesHandler creates a NodesHandler.
func NewNodesHandler(registry NodeRegistry, logger *slog.Logger) *NodesHandler {
	return &NodesHandler{registry: registry, logger: logHandler(logger, "nodes")}
}

type registerRequest struct {
	ID       string          `json:"id"`
	Watching domain.Watching `json:"watching"`
	Agents   map[string]bool `json:"agents,omitempty"`
}

// Register creates or re-registers a node.
// POST /api/nodes
func (h *NodesHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "missing node id")
		return
	}

	node, err := h.registry.Register(r.Context(), req.ID, req.Watching, req.Agents)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: register failed",
			slog.String("node_id", req.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to register node")
		return
	}

	writeJSON(w, http.StatusCreated, node)
}

type heartbeatRequest struct {
	Watching *domain.Watching `json:"watching,omitempty"`
}

// Heartbeat refreshes a node's liveness and optionally its watching set.
// POST /api/nodes/{id}/heartbeat
func (h *NodesHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing node id")
		return
	}

	var req heartbeatRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// Unknown node ids are a no-op inside the ledger, not an error, so any
	// error here is a real store failure.
	if err := h.registry.Heartbeat(r.Context(), id, req.Watching); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: heartbeat failed",
			slog.String("node_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to record heartbeat")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Get returns one node's registry entry.
// GET /api/nodes/{id}
func (h *NodesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing node id")
		return
	}

	node, err := h.registry.Node(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get node failed",
			slog.String("node_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get node")
		return
	}

	writeJSON(w, http.StatusOK, node)
}

// Top returns the highest-reputation nodes.
// GET /api/nodes/top?limit=10
func (h *NodesHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10, 100)

	nodes, err := h.registry.TopNodes(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: top nodes failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}
	if nodes == nil {
		nodes = []domain.Node{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

// NetworkStats returns a live summary of the mesh.
// GET /api/network/stats
func (h *NodesHandler) NetworkStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.registry.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: network stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute network stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
