package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// chanBuf is the per-detector channel depth. A detector that falls behind
// loses snapshots rather than stalling the feed.
const chanBuf = 32

// Publisher is the slice of the signal bus the engine publishes through.
type Publisher interface {
	Publish(ctx context.Context, typ domain.SignalType, nodeID string, payload domain.SignalPayload, evidence domain.SignalEvidence) (domain.Signal, error)
}

// Engine orchestrates the detection agents. It fans odds snapshots and mesh
// signals out to per-detector channels, publishes the drafts they propose
// under the host node's identity, and records line movements to history.
type Engine struct {
	registry  *Registry
	pub       Publisher
	nodeID    string
	movements domain.MovementStore
	logger    *slog.Logger

	// Detector channels are never closed: shutdown is context-driven, so a
	// fan-out send can race a stopping engine without panicking. Stale maps
	// replaced by SetActive are left for the GC.
	mu      sync.Mutex
	names   []string
	oddsChs map[string]chan domain.GameOdds
	sigChs  map[string]chan domain.Signal
}

// NewEngine creates an Engine. The movements store may be nil, in which case
// steam movements are published but not persisted.
func NewEngine(registry *Registry, pub Publisher, nodeID string, movements domain.MovementStore, logger *slog.Logger) *Engine {
	return &Engine{
		registry:  registry,
		pub:       pub,
		nodeID:    nodeID,
		movements: movements,
		logger:    logger.With(slog.String("component", "detect_engine")),
	}
}

// SetActive selects which detectors receive events. An empty list activates
// every registered detector. Names must be registered.
func (e *Engine) SetActive(names []string) error {
	if len(names) == 0 {
		names = e.registry.List()
	}
	for _, name := range names {
		if _, err := e.registry.Get(name); err != nil {
			return fmt.Errorf("activate detector: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = names
	e.oddsChs = make(map[string]chan domain.GameOdds, len(names))
	e.sigChs = make(map[string]chan domain.Signal, len(names))
	for _, name := range names {
		e.oddsChs[name] = make(chan domain.GameOdds, chanBuf)
		e.sigChs[name] = make(chan domain.Signal, chanBuf)
	}

	e.logger.Info("active detectors set", slog.Any("detectors", names))
	return nil
}

// Names returns the names of all registered detectors in sorted order.
func (e *Engine) Names() []string {
	return e.registry.List()
}

// HandleOdds fans an odds snapshot out to every active detector. Detectors
// whose buffers are full miss this snapshot.
func (e *Engine) HandleOdds(ctx context.Context, odds domain.GameOdds) error {
	e.mu.Lock()
	names := e.names
	oddsChs := e.oddsChs
	e.mu.Unlock()

	for _, name := range names {
		ch, ok := oddsChs[name]
		if !ok {
			continue
		}
		select {
		case ch <- odds:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Buffer full, skip this snapshot for this detector.
		}
	}
	return nil
}

// HandleSignal fans a mesh signal out to every active detector.
func (e *Engine) HandleSignal(ctx context.Context, sig domain.Signal) error {
	e.mu.Lock()
	names := e.names
	sigChs := e.sigChs
	e.mu.Unlock()

	for _, name := range names {
		ch, ok := sigChs[name]
		if !ok {
			continue
		}
		select {
		case ch <- sig:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// RunAll starts one goroutine per active detector. Each detector receives
// events on its channels and proposed drafts are published through the bus.
// Blocks until the context is cancelled.
func (e *Engine) RunAll(ctx context.Context) error {
	e.mu.Lock()
	names := make([]string, len(e.names))
	copy(names, e.names)
	e.mu.Unlock()
	if len(names) == 0 {
		e.logger.Info("no active detectors, blocking until context done")
		<-ctx.Done()
		return ctx.Err()
	}

	e.logger.Info("detect engine started", slog.Any("detectors", names))
	defer e.logger.Info("detect engine stopped")

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return e.runDetector(gctx, name)
		})
	}
	return g.Wait()
}

// runDetector runs a single detector in a loop, reading from its channels
// and publishing the drafts it proposes.
func (e *Engine) runDetector(ctx context.Context, name string) error {
	det, err := e.registry.Get(name)
	if err != nil {
		return err
	}
	if err := det.Init(ctx); err != nil {
		e.logger.Error("detector init failed", slog.String("detector", name), slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = det.Close() }()

	e.mu.Lock()
	oddsCh := e.oddsChs[name]
	sigCh := e.sigChs[name]
	e.mu.Unlock()
	if oddsCh == nil || sigCh == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case odds := <-oddsCh:
			drafts, err := det.OnOdds(ctx, odds)
			if err != nil {
				e.logger.Warn("detector OnOdds error", slog.String("detector", name), slog.String("error", err.Error()))
				continue
			}
			e.publish(ctx, name, drafts)
		case sig := <-sigCh:
			drafts, err := det.OnSignal(ctx, sig)
			if err != nil {
				e.logger.Warn("detector OnSignal error", slog.String("detector", name), slog.String("error", err.Error()))
				continue
			}
			e.publish(ctx, name, drafts)
		}
	}
}

// publish sends each draft through the bus and records any attached line
// movement. Failures are logged per draft; one bad draft does not block the
// rest.
func (e *Engine) publish(ctx context.Context, name string, drafts []Draft) {
	for _, d := range drafts {
		sig, err := e.pub.Publish(ctx, d.Type, e.nodeID, d.Payload, d.Evidence)
		if err != nil {
			e.logger.Warn("draft publish failed",
				slog.String("detector", name),
				slog.String("type", string(d.Type)),
				slog.String("error", err.Error()),
			)
			continue
		}

		if d.Movement != nil && e.movements != nil {
			if err := e.movements.InsertBatch(ctx, []domain.LineMovement{*d.Movement}); err != nil {
				e.logger.Warn("movement record failed",
					slog.String("detector", name),
					slog.String("game_id", d.Movement.GameID),
					slog.String("error", err.Error()),
				)
			}
		}

		e.logger.Debug("draft published",
			slog.String("detector", name),
			slog.String("signal_id", sig.ID),
			slog.String("type", string(sig.Type)),
		)
	}
}
