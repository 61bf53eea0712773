package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/platform/oddsfeed"
)

const (
	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// SnapshotHandler is called for each odds snapshot (the scan service's
// Ingest, in practice).
type SnapshotHandler func(ctx context.Context, odds domain.GameOdds)

// OddsWSFeed consumes the provider's push feed for the configured
// sports and invokes the handler on each snapshot. It reconnects with
// exponential backoff on disconnect.
type OddsWSFeed struct {
	wsURL     string
	sports    []string
	onOdds    SnapshotHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewOddsWSFeed creates a feed subscribed to the given sports.
func NewOddsWSFeed(wsURL string, sports []string, onOdds SnapshotHandler, logger *slog.Logger) *OddsWSFeed {
	return &OddsWSFeed{
		wsURL:  wsURL,
		sports: sports,
		onOdds: onOdds,
		logger: logger.With(slog.String("component", "odds_ws_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// backoff when the provider drops the connection.
func (f *OddsWSFeed) Run(ctx context.Context) error {
	if len(f.sports) == 0 {
		f.logger.Info("no sports to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		start := time.Now()
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that held for a while resets the backoff.
		if time.Since(start) > maxReconnectDelay {
			delay = reconnectDelay
		}

		f.logger.Warn("odds ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *OddsWSFeed) runConnection(ctx context.Context) error {
	client := oddsfeed.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnOdds(func(odds domain.GameOdds) {
		if f.onOdds != nil {
			f.onOdds(context.Background(), odds)
		}
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.Subscribe(ctx, f.sports); err != nil {
		return err
	}
	f.logger.Info("odds ws subscribed", slog.Int("sports", len(f.sports)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.Done():
		return domain.ErrWSDisconnect
	}
}

// Close stops the feed.
func (f *OddsWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
