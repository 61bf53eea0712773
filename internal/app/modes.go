package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oddsmesh/oddsmesh/internal/arbitrage"
	s3blob "github.com/oddsmesh/oddsmesh/internal/blob/s3"
	"github.com/oddsmesh/oddsmesh/internal/crypto"
	"github.com/oddsmesh/oddsmesh/internal/detect"
	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/feed"
	"github.com/oddsmesh/oddsmesh/internal/platform/oddsfeed"
	"github.com/oddsmesh/oddsmesh/internal/registry"
	"github.com/oddsmesh/oddsmesh/internal/server"
	"github.com/oddsmesh/oddsmesh/internal/server/handler"
	"github.com/oddsmesh/oddsmesh/internal/server/ws"
	"github.com/oddsmesh/oddsmesh/internal/service"
	"github.com/oddsmesh/oddsmesh/internal/signal"
)

// steamTrackerWindow bounds how far back the steam detector looks for
// confirming line moves at other books.
const steamTrackerWindow = 5 * time.Minute

// ServeMode is the full node: odds ingest, arbitrage scanning, detection
// agents, the signal bus, the node ledger, stats, and the HTTP/WebSocket
// gateway.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	bus := a.buildBus(deps)
	ledger := a.buildLedger(deps)

	hub, err := a.buildHub(ledger, bus, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	g.Go(func() error {
		return hub.Run(ctx)
	})

	a.bridgeSignals(bus, deps, hub)

	// Detection agents: line movements and +EV prices.
	engine, err := a.buildDetectEngine(bus, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	g.Go(func() error {
		return engine.RunAll(ctx)
	})
	g.Go(func() error {
		return bus.Run(ctx)
	})

	feeder := feed.NewDetectorFeeder(deps.Transport, engine, a.logger)
	g.Go(func() error {
		return feeder.Run(ctx)
	})

	// Odds ingest path: cache, republish, scan for arbitrage.
	scanSvc := a.buildScanService(deps, bus, hub)
	a.startFeeds(ctx, g, scanSvc)

	// Network stats: lock-elected publisher plus local relay.
	statsSvc := service.NewStatsService(
		ledger, deps.LockManager, deps.Transport, hub,
		a.cfg.Stats.Interval.Duration, a.logger,
	)
	g.Go(func() error {
		return statsSvc.Run(ctx)
	})

	outcomeSvc := service.NewOutcomeService(ledger, deps.OutcomeStore, deps.AuditStore, a.logger)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub, serverHandlers{
			ledger:     ledger,
			scanSvc:    scanSvc,
			outcomeSvc: outcomeSvc,
			engine:     engine,
		})
	}

	return g.Wait()
}

// DetectMode runs the detection agents and arbitrage scanner headless: no
// gateway, no REST surface. Signals still reach the mesh through the bus,
// and another process's gateway fans them out.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode")

	g, ctx := errgroup.WithContext(ctx)

	bus := a.buildBus(deps)
	ledger := a.buildLedger(deps)

	a.bridgeSignals(bus, deps, nil)

	engine, err := a.buildDetectEngine(bus, deps)
	if err != nil {
		return fmt.Errorf("detect mode: %w", err)
	}
	g.Go(func() error {
		return engine.RunAll(ctx)
	})
	g.Go(func() error {
		return bus.Run(ctx)
	})

	feeder := feed.NewDetectorFeeder(deps.Transport, engine, a.logger)
	g.Go(func() error {
		return feeder.Run(ctx)
	})

	scanSvc := a.buildScanService(deps, bus, nil)
	a.startFeeds(ctx, g, scanSvc)

	// Headless nodes still contend for the stats publisher lock so the
	// mesh keeps its heartbeat when no gateway node is up.
	statsSvc := service.NewStatsService(
		ledger, deps.LockManager, deps.Transport, nil,
		a.cfg.Stats.Interval.Duration, a.logger,
	)
	g.Go(func() error {
		return statsSvc.Run(ctx)
	})

	return g.Wait()
}

// RelayMode runs only the fan-out side: the WebSocket gateway and a reduced
// REST surface backed by live Redis state. Detection happens elsewhere in
// the mesh.
func (a *App) RelayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting relay mode")

	g, ctx := errgroup.WithContext(ctx)

	bus := a.buildBus(deps)
	ledger := a.buildLedger(deps)

	hub, err := a.buildHub(ledger, bus, deps)
	if err != nil {
		return fmt.Errorf("relay mode: %w", err)
	}
	g.Go(func() error {
		return hub.Run(ctx)
	})

	a.bridgeSignals(bus, deps, hub)
	g.Go(func() error {
		return bus.Run(ctx)
	})

	statsSvc := service.NewStatsService(
		ledger, deps.LockManager, deps.Transport, hub,
		a.cfg.Stats.Interval.Duration, a.logger,
	)
	g.Go(func() error {
		return statsSvc.Run(ctx)
	})

	outcomeSvc := service.NewOutcomeService(ledger, deps.OutcomeStore, deps.AuditStore, a.logger)

	a.startHTTPServer(ctx, g, deps, hub, serverHandlers{
		ledger:     ledger,
		outcomeSvc: outcomeSvc,
	})

	return g.Wait()
}

// ArchiveMode is a one-shot job: move history rows older than the retention
// cutoff to object storage, then delete them from the database.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: requires postgres and s3 configuration")
	}

	retention := a.cfg.Archive.RetentionDays
	if retention <= 0 {
		retention = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retention)

	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", retention),
	)

	type step struct {
		kind    string
		archive func(context.Context, time.Time) (int64, error)
		purge   func(context.Context, time.Time) (int64, error)
	}
	steps := []step{
		{"signals", deps.Archiver.ArchiveSignals, deps.SignalHistory.DeleteBefore},
		{"outcomes", deps.Archiver.ArchiveOutcomes, deps.OutcomeStore.DeleteBefore},
		{"movements", deps.Archiver.ArchiveMovements, deps.MovementStore.DeleteBefore},
	}

	for _, s := range steps {
		archived, err := s.archive(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive mode: archive %s: %w", s.kind, err)
		}
		if archived == 0 {
			a.logger.InfoContext(ctx, "archive: nothing to move", slog.String("kind", s.kind))
			continue
		}
		// Rows are deleted only after the upload succeeded.
		purged, err := s.purge(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive mode: purge %s: %w", s.kind, err)
		}
		a.logger.InfoContext(ctx, "archive: batch complete",
			slog.String("kind", s.kind),
			slog.Int64("archived", archived),
			slog.Int64("purged", purged),
		)
	}

	if deps.BlobReader != nil {
		if infos, err := deps.BlobReader.List(ctx, s3blob.ArchivePrefix); err == nil {
			var total int64
			for _, info := range infos {
				total += info.Size
			}
			a.logger.InfoContext(ctx, "archive: store summary",
				slog.Int("objects", len(infos)),
				slog.Int64("total_bytes", total),
			)
		}
	}

	return nil
}

// buildBus creates the signal bus over the shared transport.
func (a *App) buildBus(deps *Dependencies) *signal.Bus {
	return signal.NewBus(deps.Transport, deps.SignalStore, deps.NodeStore, signal.BusConfig{
		DedupWindow:     a.cfg.Signal.DedupWindow.Duration,
		CleanupInterval: a.cfg.Signal.CleanupInterval.Duration,
	}, a.logger)
}

// buildLedger creates the node registry ledger.
func (a *App) buildLedger(deps *Dependencies) *registry.Ledger {
	return registry.NewLedger(deps.NodeStore, registry.Config{
		Liveness: a.cfg.Registry.LivenessWindow.Duration,
	}, a.logger)
}

// buildHub creates the WebSocket gateway. An empty tier secret disables
// token verification and every connection rides the free tier.
func (a *App) buildHub(ledger *registry.Ledger, bus *signal.Bus, deps *Dependencies) (*ws.Hub, error) {
	var verifier *crypto.TierVerifier
	if a.cfg.Gateway.TierSecret != "" {
		v, err := crypto.NewTierVerifier(a.cfg.Gateway.TierSecret)
		if err != nil {
			return nil, fmt.Errorf("build hub: %w", err)
		}
		verifier = v
	} else {
		a.logger.Warn("gateway: tier_secret not set, all connections treated as free tier")
	}

	return ws.NewHub(ledger, bus, deps.RateLimiter, verifier, ws.Config{
		FreeDelay:     a.cfg.Gateway.FreeDelay.Duration,
		PublishLimit:  a.cfg.Gateway.PublishLimit,
		PublishWindow: a.cfg.Gateway.PublishWindow.Duration,
	}, a.logger), nil
}

// buildDetectEngine registers the detection agents and selects the active
// set from config.
func (a *App) buildDetectEngine(bus *signal.Bus, deps *Dependencies) (*detect.Engine, error) {
	detCfg := detect.Config{Params: a.cfg.Detect.Params}

	reg := detect.NewRegistry()
	reg.Register("steam", detect.NewSteam(detCfg, detect.NewLineTracker(steamTrackerWindow), a.logger))
	reg.Register("value", detect.NewValue(detCfg, a.logger))

	engine := detect.NewEngine(reg, bus, a.cfg.Node.ID, deps.MovementStore, a.logger)
	if err := engine.SetActive(a.cfg.Detect.Active); err != nil {
		return nil, fmt.Errorf("build detect engine: %w", err)
	}
	return engine, nil
}

// buildScanService wires the odds ingest path. hub may be nil in headless
// modes.
func (a *App) buildScanService(deps *Dependencies, bus *signal.Bus, hub *ws.Hub) *service.ScanService {
	arbCfg := arbitrage.Config{
		MinProfit: a.cfg.Scanner.MinProfit,
		Expiry:    a.cfg.Scanner.ExpiryHorizon.Duration,
	}
	if arbCfg.Expiry <= 0 {
		arbCfg.Expiry = arbitrage.DefaultConfig().Expiry
	}

	reg := arbitrage.NewRegistry()
	reg.Register("moneyline", arbitrage.NewMoneyline(arbCfg, a.logger))
	reg.Register("spread", arbitrage.NewSpread(arbCfg, a.logger))
	reg.Register("total", arbitrage.NewTotal(arbCfg, a.logger))

	markets := a.cfg.Scanner.Markets
	if len(markets) == 0 {
		markets = reg.List()
	}
	scanner := arbitrage.NewScanner(reg, markets, a.logger)

	var broadcaster service.OpportunityBroadcaster
	if hub != nil {
		broadcaster = hub
	}
	var notifier service.Notifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}

	return service.NewScanService(
		deps.OddsCache, scanner, deps.Transport, bus,
		deps.ArbHistory, broadcaster, notifier,
		service.ScanConfig{
			NodeID:          a.cfg.Node.ID,
			NotifyMinProfit: a.cfg.Notify.MinProfit,
		},
		a.logger,
	)
}

// bridgeSignals subscribes one handler for every bus signal: persist it to
// history when Postgres is wired and fan it out to gateway clients when a
// hub is running.
func (a *App) bridgeSignals(bus *signal.Bus, deps *Dependencies, hub *ws.Hub) {
	bus.Handle(signal.TypeAll, func(ctx context.Context, sig domain.Signal) error {
		if deps.SignalHistory != nil {
			if err := deps.SignalHistory.Insert(ctx, sig); err != nil {
				a.logger.WarnContext(ctx, "signal history insert failed",
					slog.String("signal_id", sig.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if hub != nil {
			hub.BroadcastSignal(sig)
		}
		return nil
	})
}

// startFeeds launches the configured odds sources: the streaming consumer
// when feed.ws_url is set, the REST poller when feed.base_url is set with a
// poll interval. Running both is allowed; ingest dedups downstream.
func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, scanSvc *service.ScanService) {
	onOdds := func(ctx context.Context, odds domain.GameOdds) {
		if err := scanSvc.Ingest(ctx, odds); err != nil {
			a.logger.WarnContext(ctx, "odds ingest failed",
				slog.String("game_id", odds.GameID),
				slog.String("error", err.Error()),
			)
		}
	}

	if a.cfg.Feed.WSURL != "" {
		wsFeed := feed.NewOddsWSFeed(a.cfg.Feed.WSURL, a.cfg.Feed.Sports, onOdds, a.logger)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
	}

	if a.cfg.Feed.BaseURL != "" && a.cfg.Feed.PollInterval.Duration > 0 {
		client := oddsfeed.NewClient(a.cfg.Feed.BaseURL, a.cfg.Feed.APIKey)
		poller := feed.NewPoller(client, a.cfg.Feed.Sports, a.cfg.Feed.PollInterval.Duration, onOdds, a.logger)
		g.Go(func() error {
			return poller.Run(ctx)
		})
	}

	if a.cfg.Feed.WSURL == "" && a.cfg.Feed.BaseURL == "" {
		a.logger.InfoContext(ctx, "no odds feed configured, ingest limited to POST /api/odds")
	}
}

// serverHandlers carries the mode-specific services the REST surface is
// built from. Nil members skip their routes.
type serverHandlers struct {
	ledger     *registry.Ledger
	scanSvc    *service.ScanService
	outcomeSvc *service.OutcomeService
	engine     *detect.Engine
}

// startHTTPServer adds the HTTP server goroutines to the given errgroup. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, sh serverHandlers) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, a.cfg.Node.ID, time.Now().UTC()),
	}
	if deps.SignalStore != nil {
		handlers.Signals = handler.NewSignalsHandler(deps.SignalStore, a.logger)
	}
	if sh.ledger != nil {
		handlers.Nodes = handler.NewNodesHandler(sh.ledger, a.logger)
	}
	if sh.scanSvc != nil {
		handlers.Arb = handler.NewArbHandler(sh.scanSvc, a.logger)
		handlers.Odds = handler.NewOddsHandler(sh.scanSvc, deps.OddsCache, a.logger)
	}
	if sh.outcomeSvc != nil {
		handlers.Outcomes = handler.NewOutcomesHandler(sh.outcomeSvc, a.logger)
	}
	if sh.engine != nil {
		handlers.Detectors = handler.NewDetectorsHandler(sh.engine)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
