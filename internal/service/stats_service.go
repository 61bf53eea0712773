package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// StatsChannel is the transport channel network stats are published on.
const StatsChannel = "network:stats"

// statsLockKey guards stats publication so one process per cluster
// computes each interval.
const statsLockKey = "lock:stats:publisher"

// NetworkSource computes live network stats. Satisfied by
// *registry.Ledger.
type NetworkSource interface {
	Stats(ctx context.Context) (domain.NetworkStats, error)
}

// StatsBroadcaster pushes stats to connected WebSocket clients.
// Satisfied by *ws.Hub.
type StatsBroadcaster interface {
	BroadcastStats(stats domain.NetworkStats)
}

// StatsService periodically computes network stats under a distributed
// lock and relays published stats to this process's gateway clients.
// Every process runs the relay; the lock elects the publisher.
type StatsService struct {
	source    NetworkSource
	locks     domain.LockManager
	transport domain.SignalTransport
	hub       StatsBroadcaster // optional
	interval  time.Duration
	logger    *slog.Logger
}

// NewStatsService creates a StatsService. hub may be nil for headless
// modes that only publish.
func NewStatsService(
	source NetworkSource,
	locks domain.LockManager,
	transport domain.SignalTransport,
	hub StatsBroadcaster,
	interval time.Duration,
	logger *slog.Logger,
) *StatsService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatsService{
		source:    source,
		locks:     locks,
		transport: transport,
		hub:       hub,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, driving both the publish ticker
// and the relay subscription.
func (s *StatsService) Run(ctx context.Context) error {
	if s.hub != nil {
		go s.relay(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.publishOnce(ctx)
		}
	}
}

// publishOnce computes and publishes stats when this process wins the
// interval's lock. Losing the lock is the normal case on followers.
func (s *StatsService) publishOnce(ctx context.Context) {
	unlock, err := s.locks.Acquire(ctx, statsLockKey, s.interval)
	if err != nil {
		if !errors.Is(err, domain.ErrLockHeld) {
			s.logger.WarnContext(ctx, "stats_service: lock acquire failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	defer unlock()

	stats, err := s.source.Stats(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "stats_service: compute failed",
			slog.String("error", err.Error()),
		)
		return
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.transport.Publish(ctx, StatsChannel, data); err != nil {
		s.logger.ErrorContext(ctx, "stats_service: publish failed",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.DebugContext(ctx, "stats_service: published",
		slog.Int("active_nodes", stats.ActiveNodes),
		slog.Float64("avg_reputation", stats.AvgReputation),
	)
}

// relay forwards published stats to this process's gateway clients.
func (s *StatsService) relay(ctx context.Context) {
	msgs, err := s.transport.Subscribe(ctx, StatsChannel)
	if err != nil {
		s.logger.ErrorContext(ctx, "stats_service: subscribe failed",
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			var stats domain.NetworkStats
			if err := json.Unmarshal(data, &stats); err != nil {
				continue
			}
			s.hub.BroadcastStats(stats)
		}
	}
}
