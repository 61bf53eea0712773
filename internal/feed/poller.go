package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/platform/oddsfeed"
)

// Poller periodically fetches odds snapshots over REST, covering
// deployments where the provider has no push feed. It polls once
// immediately on start.
type Poller struct {
	client   *oddsfeed.Client
	sports   []string
	interval time.Duration
	onOdds   SnapshotHandler
	logger   *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(client *oddsfeed.Client, sports []string, interval time.Duration, onOdds SnapshotHandler, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		client:   client,
		sports:   sports,
		interval: interval,
		onOdds:   onOdds,
		logger:   logger.With(slog.String("component", "odds_poller")),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.sports) == 0 {
		p.logger.Info("no sports to poll, exiting")
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	for _, sport := range p.sports {
		games, err := p.client.Odds(ctx, sport)
		if err != nil {
			p.logger.Warn("poll failed",
				slog.String("sport", sport),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, g := range games {
			p.onOdds(ctx, g)
		}
		p.logger.Debug("polled sport",
			slog.String("sport", sport),
			slog.Int("games", len(games)),
		)
	}
}
