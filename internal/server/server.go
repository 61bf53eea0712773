package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/server/handler"
	"github.com/oddsmesh/oddsmesh/internal/server/middleware"
	"github.com/oddsmesh/oddsmesh/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil
// entries skip their routes so relay mode can serve a reduced surface.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Signals   *handler.SignalsHandler
	Arb       *handler.ArbHandler
	Nodes     *handler.NodesHandler
	Outcomes  *handler.OutcomesHandler
	Odds      *handler.OddsHandler
	Detectors *handler.DetectorsHandler
}

// Server is the HTTP + WebSocket API surface of an oddsmesh node.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux and wraps it in the
// middleware chain. limiter may be nil to disable API rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required by convention, but the auth
	// middleware wraps the whole mux; keep APIKey empty for open nodes).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Signals != nil {
		mux.HandleFunc("GET /api/signals", handlers.Signals.ListRecent)
	}
	if handlers.Arb != nil {
		mux.HandleFunc("GET /api/arbitrage/recent", handlers.Arb.ListRecent)
	}
	if handlers.Nodes != nil {
		mux.HandleFunc("POST /api/nodes", handlers.Nodes.Register)
		mux.HandleFunc("POST /api/nodes/{id}/heartbeat", handlers.Nodes.Heartbeat)
		mux.HandleFunc("GET /api/nodes/top", handlers.Nodes.Top)
		mux.HandleFunc("GET /api/nodes/{id}", handlers.Nodes.Get)
		mux.HandleFunc("GET /api/network/stats", handlers.Nodes.NetworkStats)
	}
	if handlers.Outcomes != nil {
		mux.HandleFunc("POST /api/outcomes", handlers.Outcomes.Report)
	}
	if handlers.Odds != nil {
		mux.HandleFunc("POST /api/odds", handlers.Odds.Ingest)
		mux.HandleFunc("GET /api/odds", handlers.Odds.ListCached)
	}
	if handlers.Detectors != nil {
		mux.HandleFunc("GET /api/detectors", handlers.Detectors.List)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware chain, outermost first: CORS, logging, auth, rate limit.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
