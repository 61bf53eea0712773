package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/oddsmesh/oddsmesh/internal/detect"
	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// DetectorFeeder subscribes to the "odds:updates" channel and feeds
// each snapshot into the detection engine. Running it off the transport
// rather than the ingest path means headless detect processes see the
// same odds stream as the process that owns the feed.
type DetectorFeeder struct {
	transport domain.SignalTransport
	engine    *detect.Engine
	logger    *slog.Logger
}

// NewDetectorFeeder creates a DetectorFeeder.
func NewDetectorFeeder(transport domain.SignalTransport, engine *detect.Engine, logger *slog.Logger) *DetectorFeeder {
	return &DetectorFeeder{
		transport: transport,
		engine:    engine,
		logger:    logger.With(slog.String("component", "detector_feeder")),
	}
}

// Run subscribes and dispatches until ctx is cancelled.
func (f *DetectorFeeder) Run(ctx context.Context) error {
	ch, err := f.transport.Subscribe(ctx, "odds:updates")
	if err != nil {
		return err
	}
	f.logger.Info("detector feeder started")
	defer f.logger.Info("detector feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var odds domain.GameOdds
			if err := json.Unmarshal(data, &odds); err != nil {
				f.logger.Debug("detector feeder bad payload",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			if odds.GameID == "" {
				continue
			}
			if err := f.engine.HandleOdds(ctx, odds); err != nil {
				f.logger.Debug("detector feeder handle odds failed",
					slog.String("game_id", odds.GameID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
