package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oddsmesh/oddsmesh/internal/arbitrage"
	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/notify"
)

// OddsChannel is the transport channel odds snapshots are republished
// on after ingest, for detector feeders in this and other processes.
const OddsChannel = "odds:updates"

// recentCap bounds the in-memory ring of recent opportunities.
const recentCap = 200

// ArbPublisher publishes an arb signal for a detected opportunity.
// Satisfied by *signal.Bus.
type ArbPublisher interface {
	PublishArb(ctx context.Context, nodeID string, opp domain.ArbitrageOpportunity) (domain.Signal, error)
}

// OpportunityBroadcaster pushes opportunities to connected WebSocket
// clients. Satisfied by *ws.Hub.
type OpportunityBroadcaster interface {
	BroadcastOpportunity(opp domain.ArbitrageOpportunity)
}

// Notifier sends out-of-band alerts. Satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ScanConfig holds scan service tunables.
type ScanConfig struct {
	NodeID string

	// NotifyMinProfit suppresses alerts for opportunities below this
	// profit percentage. Zero alerts on everything.
	NotifyMinProfit float64
}

// ScanService is the odds ingest path: every snapshot is cached,
// republished for detectors, and scanned for arbitrage. Detected
// opportunities fan out to the signal bus, history, gateway, and
// notifier.
type ScanService struct {
	cache     domain.OddsCache
	scanner   *arbitrage.Scanner
	transport domain.SignalTransport
	publisher ArbPublisher
	history   domain.ArbHistoryStore // optional
	hub       OpportunityBroadcaster // optional
	notifier  Notifier               // optional
	cfg       ScanConfig
	logger    *slog.Logger

	mu      sync.RWMutex
	recents []domain.ArbitrageOpportunity
}

// NewScanService creates a ScanService. history, hub, and notifier may
// be nil; the corresponding fan-out step is skipped.
func NewScanService(
	cache domain.OddsCache,
	scanner *arbitrage.Scanner,
	transport domain.SignalTransport,
	publisher ArbPublisher,
	history domain.ArbHistoryStore,
	hub OpportunityBroadcaster,
	notifier Notifier,
	cfg ScanConfig,
	logger *slog.Logger,
) *ScanService {
	return &ScanService{
		cache:     cache,
		scanner:   scanner,
		transport: transport,
		publisher: publisher,
		history:   history,
		hub:       hub,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ingest accepts one odds snapshot. Snapshots from the feed, the
// poller, and POST /api/odds all come through here.
func (s *ScanService) Ingest(ctx context.Context, odds domain.GameOdds) error {
	if err := s.cache.SetGame(ctx, odds); err != nil {
		return fmt.Errorf("scan_service: cache odds: %w", err)
	}

	// Republish for detector feeders. Failure here degrades steam and
	// value detection but never blocks the arbitrage scan.
	if data, err := json.Marshal(odds); err == nil {
		if err := s.transport.Publish(ctx, OddsChannel, data); err != nil {
			s.logger.WarnContext(ctx, "scan_service: odds republish failed",
				slog.String("game_id", odds.GameID),
				slog.String("error", err.Error()),
			)
		}
	}

	opps := s.scanner.Scan(ctx, odds)
	for _, opp := range opps {
		s.record(ctx, opp)
	}
	return nil
}

// record fans one detected opportunity out to every configured sink.
func (s *ScanService) record(ctx context.Context, opp domain.ArbitrageOpportunity) {
	s.mu.Lock()
	s.recents = append(s.recents, opp)
	if len(s.recents) > recentCap {
		s.recents = s.recents[len(s.recents)-recentCap:]
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "scan_service: opportunity detected",
		slog.String("opp_id", opp.ID),
		slog.String("game_id", opp.GameID),
		slog.String("market", string(opp.Market)),
		slog.Float64("profit_pct", opp.ProfitPct),
	)

	if s.history != nil {
		if err := s.history.Insert(ctx, opp); err != nil {
			s.logger.ErrorContext(ctx, "scan_service: history insert failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, err := s.publisher.PublishArb(ctx, s.cfg.NodeID, opp); err != nil {
		s.logger.ErrorContext(ctx, "scan_service: signal publish failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.hub != nil {
		s.hub.BroadcastOpportunity(opp)
	}

	if s.notifier != nil && opp.ProfitPct >= s.cfg.NotifyMinProfit {
		title, msg := notify.ArbAlert(opp)
		if err := s.notifier.Notify(ctx, notify.EventArbDetected, title, msg); err != nil {
			s.logger.WarnContext(ctx, "scan_service: notify failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RecentOpportunities returns the newest detected opportunities, newest
// first.
func (s *ScanService) RecentOpportunities(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.recents) {
		limit = len(s.recents)
	}
	out := make([]domain.ArbitrageOpportunity, 0, limit)
	for i := len(s.recents) - 1; i >= len(s.recents)-limit; i-- {
		out = append(out, s.recents[i])
	}
	return out, nil
}
