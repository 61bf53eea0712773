package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

type publishCall struct {
	typ    domain.SignalType
	nodeID string
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
}

func (p *fakePublisher) Publish(_ context.Context, typ domain.SignalType, nodeID string, _ domain.SignalPayload, _ domain.SignalEvidence) (domain.Signal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{typ: typ, nodeID: nodeID})
	return domain.Signal{ID: fmt.Sprintf("sig-%d", len(p.calls)), Type: typ}, nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePublisher) call(i int) publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

type fakeMovements struct {
	mu    sync.Mutex
	moves []domain.LineMovement
}

func (m *fakeMovements) InsertBatch(_ context.Context, moves []domain.LineMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves = append(m.moves, moves...)
	return nil
}

func (m *fakeMovements) ListByGame(_ context.Context, _ string, _ domain.ListOpts) ([]domain.LineMovement, error) {
	return nil, nil
}

func (m *fakeMovements) ListBefore(_ context.Context, _ time.Time, _ int) ([]domain.LineMovement, error) {
	return nil, nil
}

func (m *fakeMovements) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *fakeMovements) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.moves)
}

// scripted is a detector whose behaviour the test supplies.
type scripted struct {
	name     string
	onOdds   func(domain.GameOdds) ([]Draft, error)
	onSignal func(domain.Signal) ([]Draft, error)
}

func (s *scripted) Name() string                 { return s.name }
func (s *scripted) Init(_ context.Context) error { return nil }
func (s *scripted) Close() error                 { return nil }

func (s *scripted) OnOdds(_ context.Context, odds domain.GameOdds) ([]Draft, error) {
	if s.onOdds == nil {
		return nil, nil
	}
	return s.onOdds(odds)
}

func (s *scripted) OnSignal(_ context.Context, sig domain.Signal) ([]Draft, error) {
	if s.onSignal == nil {
		return nil, nil
	}
	return s.onSignal(sig)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func steamDraft(gameID string) Draft {
	mv := domain.LineMovement{
		GameID: gameID, Sport: "nba", Bookmaker: "fanduel",
		Market: domain.MarketSpread, OldLine: -3, NewLine: -3.5, Delta: -0.5, BookCount: 2,
	}
	return Draft{
		Type:     domain.SignalSteam,
		Payload:  domain.SignalPayload{GameID: gameID, Sport: "nba", Description: "test move", Confidence: 25},
		Movement: &mv,
	}
}

func TestEngineFansOutAndPublishes(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mover", &scripted{
		name: "mover",
		onOdds: func(odds domain.GameOdds) ([]Draft, error) {
			return []Draft{steamDraft(odds.GameID)}, nil
		},
	})
	reg.Register("quiet", &scripted{name: "quiet"})

	pub := &fakePublisher{}
	movements := &fakeMovements{}
	e := NewEngine(reg, pub, "node-self", movements, testLogger())
	if err := e.SetActive(nil); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.RunAll(ctx) }()

	if err := e.HandleOdds(ctx, domain.GameOdds{GameID: "game-1", Sport: "nba"}); err != nil {
		t.Fatalf("HandleOdds: %v", err)
	}

	waitFor(t, func() bool { return pub.count() == 1 }, "draft was never published")
	call := pub.call(0)
	if call.typ != domain.SignalSteam {
		t.Errorf("published type = %s, want steam", call.typ)
	}
	if call.nodeID != "node-self" {
		t.Errorf("published under node %q, want node-self", call.nodeID)
	}
	waitFor(t, func() bool { return movements.count() == 1 }, "movement was never recorded")

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("RunAll returned %v, want context.Canceled", err)
	}
}

func TestEngineIsolatesDetectorErrors(t *testing.T) {
	reg := NewRegistry()
	reg.Register("bad", &scripted{
		name: "bad",
		onOdds: func(domain.GameOdds) ([]Draft, error) {
			return nil, errors.New("boom")
		},
	})
	reg.Register("good", &scripted{
		name: "good",
		onOdds: func(odds domain.GameOdds) ([]Draft, error) {
			return []Draft{{Type: domain.SignalEV, Payload: domain.SignalPayload{GameID: odds.GameID, Confidence: 50}}}, nil
		},
	})

	pub := &fakePublisher{}
	e := NewEngine(reg, pub, "node-self", nil, testLogger())
	if err := e.SetActive(nil); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.RunAll(ctx) }()

	if err := e.HandleOdds(ctx, domain.GameOdds{GameID: "game-1"}); err != nil {
		t.Fatalf("HandleOdds: %v", err)
	}

	waitFor(t, func() bool { return pub.count() == 1 }, "good detector's draft was never published")
	if call := pub.call(0); call.typ != domain.SignalEV {
		t.Errorf("published type = %s, want ev", call.typ)
	}
}

func TestEngineRoutesSignalsToDetectors(t *testing.T) {
	reg := NewRegistry()
	reg.Register("reactor", &scripted{
		name: "reactor",
		onSignal: func(sig domain.Signal) ([]Draft, error) {
			if sig.Type != domain.SignalSteam {
				return nil, nil
			}
			return []Draft{{Type: domain.SignalPattern, Payload: domain.SignalPayload{GameID: sig.Payload.GameID, Confidence: 40}}}, nil
		},
	})

	pub := &fakePublisher{}
	e := NewEngine(reg, pub, "node-self", nil, testLogger())
	if err := e.SetActive([]string{"reactor"}); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.RunAll(ctx) }()

	sig := domain.Signal{ID: "s1", Type: domain.SignalSteam, Payload: domain.SignalPayload{GameID: "game-1"}}
	if err := e.HandleSignal(ctx, sig); err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	waitFor(t, func() bool { return pub.count() == 1 }, "reactor's draft was never published")
	if call := pub.call(0); call.typ != domain.SignalPattern {
		t.Errorf("published type = %s, want pattern", call.typ)
	}
}

func TestEngineShutdownDuringFanOut(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mover", &scripted{
		name: "mover",
		onOdds: func(odds domain.GameOdds) ([]Draft, error) {
			return []Draft{steamDraft(odds.GameID)}, nil
		},
	})

	e := NewEngine(reg, &fakePublisher{}, "node-self", nil, testLogger())
	if err := e.SetActive(nil); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	// Hammer the fan-out while the engine starts and stops repeatedly. A
	// send landing between cancel and RunAll's return must not panic.
	feedCtx, stopFeed := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; feedCtx.Err() == nil; i++ {
			_ = e.HandleOdds(feedCtx, domain.GameOdds{GameID: fmt.Sprintf("game-%d", i), Sport: "nba"})
		}
	}()

	for i := 0; i < 25; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- e.RunAll(ctx) }()
		time.Sleep(time.Millisecond)
		cancel()
		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Fatalf("RunAll returned %v, want context.Canceled", err)
		}
	}

	stopFeed()
	wg.Wait()
}

func TestEngineRejectsUnknownDetector(t *testing.T) {
	e := NewEngine(NewRegistry(), &fakePublisher{}, "node-self", nil, testLogger())
	if err := e.SetActive([]string{"nope"}); err == nil {
		t.Fatal("expected error activating an unregistered detector")
	}
}
