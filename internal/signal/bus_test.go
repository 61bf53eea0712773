package signal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type publishedMsg struct {
	channel string
	data    []byte
}

type fakeTransport struct {
	mu          sync.Mutex
	published   []publishedMsg
	streams     map[string][][]byte
	subs        []chan []byte
	failPublish bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{streams: make(map[string][][]byte)}
}

func (t *fakeTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failPublish {
		return errors.New("transport down")
	}
	t.published = append(t.published, publishedMsg{channel: channel, data: payload})
	for _, ch := range t.subs {
		ch <- payload
	}
	return nil
}

func (t *fakeTransport) Subscribe(ctx context.Context, pattern string) (<-chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan []byte, 64)
	t.subs = append(t.subs, ch)
	return ch, nil
}

func (t *fakeTransport) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streams[stream] = append(t.streams[stream], payload)
	return nil
}

func (t *fakeTransport) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (t *fakeTransport) subscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (t *fakeTransport) publishedTo(channel string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, m := range t.published {
		if m.channel == channel {
			n++
		}
	}
	return n
}

type storedSig struct {
	sig       domain.Signal
	expiresAt time.Time
}

type fakeStore struct {
	mu      sync.Mutex
	sigs    map[string]storedSig
	now     func() time.Time
	failPut bool
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{sigs: make(map[string]storedSig), now: now}
}

func (s *fakeStore) Put(ctx context.Context, sig domain.Signal, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return errors.New("store down")
	}
	s.sigs[sig.ID] = storedSig{sig: sig, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sigs[id]
	if !ok || s.now().After(entry.expiresAt) {
		return domain.Signal{}, domain.ErrNotFound
	}
	return entry.sig, nil
}

func (s *fakeStore) Recent(ctx context.Context, typ domain.SignalType, limit int) ([]domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Signal
	for _, entry := range s.sigs {
		if entry.sig.Type == typ && !s.now().After(entry.expiresAt) {
			out = append(out, entry.sig)
		}
	}
	return out, nil
}

type fakeNodes struct {
	mu        sync.Mutex
	nodes     map[string]domain.Node
	published map[string]int
}

func newFakeNodes() *fakeNodes {
	return &fakeNodes{nodes: make(map[string]domain.Node), published: make(map[string]int)}
}

func (f *fakeNodes) Register(ctx context.Context, node domain.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[node.ID] = node
	return nil
}

func (f *fakeNodes) Get(ctx context.Context, id string) (domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return domain.Node{}, domain.ErrNotFound
	}
	return n, nil
}

func (f *fakeNodes) Heartbeat(ctx context.Context, id string, at time.Time, liveness time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.LastSeen = at
	f.nodes[id] = n
	return nil
}

func (f *fakeNodes) SetWatching(ctx context.Context, id string, w domain.Watching) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Watching = w
	f.nodes[id] = n
	return nil
}

func (f *fakeNodes) AdjustReputation(ctx context.Context, id string, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	n.Reputation += delta
	if n.Reputation > 100 {
		n.Reputation = 100
	}
	if n.Reputation < 0 {
		n.Reputation = 0
	}
	f.nodes[id] = n
	return n.Reputation, nil
}

func (f *fakeNodes) IncrementPublished(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[id]; !ok {
		return domain.ErrNotFound
	}
	f.published[id]++
	return nil
}

func (f *fakeNodes) Live(ctx context.Context) ([]domain.Node, error) {
	return f.All(ctx)
}

func (f *fakeNodes) All(ctx context.Context) ([]domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeNodes) TopByReputation(ctx context.Context, limit int) ([]domain.Node, error) {
	out, _ := f.All(ctx)
	sort.Slice(out, func(i, j int) bool { return out[i].Reputation > out[j].Reputation })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeNodes) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, id)
	return nil
}

func newTestBus() (*Bus, *fakeTransport, *fakeStore, *fakeNodes, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0).UTC()}
	tr := newFakeTransport()
	st := newFakeStore(clock.Now)
	nd := newFakeNodes()
	b := NewBus(tr, st, nd, BusConfig{}, testLogger())
	b.now = clock.Now
	b.dedup.now = clock.Now
	return b, tr, st, nd, clock
}

func steamPayload(gameID string) domain.SignalPayload {
	return domain.SignalPayload{GameID: gameID, Sport: "nba", Description: "line move", Confidence: 60}
}

func TestPublishAssignsDefaults(t *testing.T) {
	b, tr, st, nd, clock := newTestBus()
	ctx := context.Background()

	nd.Register(ctx, domain.Node{ID: "node-1", Reputation: 73})

	sig, err := b.Publish(ctx, domain.SignalSteam, "node-1", steamPayload("g1"), domain.SignalEvidence{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if sig.ID == "" {
		t.Error("id not assigned")
	}
	if sig.Source.Reputation != 73 {
		t.Errorf("source reputation = %d, want 73", sig.Source.Reputation)
	}
	if sig.Payload.TTLSeconds != 60 {
		t.Errorf("ttl = %d, want steam default 60", sig.Payload.TTLSeconds)
	}
	if want := clock.Now().Add(60 * time.Second); !sig.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", sig.ExpiresAt, want)
	}
	if !sig.Evidence.Timestamp.Equal(clock.Now()) {
		t.Errorf("evidence timestamp = %v, want stamped %v", sig.Evidence.Timestamp, clock.Now())
	}

	if _, err := st.Get(ctx, sig.ID); err != nil {
		t.Errorf("signal not in store: %v", err)
	}
	if n := tr.publishedTo("signals:steam"); n != 1 {
		t.Errorf("published %d messages on signals:steam, want 1", n)
	}
	if n := len(tr.streams[LogStream]); n != 1 {
		t.Errorf("stream appended %d entries, want 1", n)
	}
	if nd.published["node-1"] != 1 {
		t.Errorf("published counter = %d, want 1", nd.published["node-1"])
	}
}

func TestPublishUnknownNodeUsesDefaultReputation(t *testing.T) {
	b, _, _, _, _ := newTestBus()

	sig, err := b.Publish(context.Background(), domain.SignalNews, "ghost", steamPayload("g1"), domain.SignalEvidence{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if sig.Source.Reputation != domain.DefaultReputation {
		t.Errorf("reputation = %d, want default %d", sig.Source.Reputation, domain.DefaultReputation)
	}
	if sig.Payload.TTLSeconds != 600 {
		t.Errorf("ttl = %d, want news default 600", sig.Payload.TTLSeconds)
	}
}

func TestPublishRespectsCallerTTL(t *testing.T) {
	b, _, _, _, clock := newTestBus()

	payload := steamPayload("g1")
	payload.TTLSeconds = 7
	sig, err := b.Publish(context.Background(), domain.SignalSteam, "n1", payload, domain.SignalEvidence{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if sig.Payload.TTLSeconds != 7 {
		t.Errorf("ttl = %d, want 7", sig.Payload.TTLSeconds)
	}
	if want := clock.Now().Add(7 * time.Second); !sig.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", sig.ExpiresAt, want)
	}
}

func TestPublishRejectsInvalidSignal(t *testing.T) {
	b, _, _, _, _ := newTestBus()
	ctx := context.Background()

	if _, err := b.Publish(ctx, domain.SignalType("bogus"), "n1", steamPayload("g1"), domain.SignalEvidence{}); !errors.Is(err, domain.ErrInvalidSignal) {
		t.Errorf("unknown type: got %v, want ErrInvalidSignal", err)
	}
	if _, err := b.Publish(ctx, domain.SignalSteam, "n1", domain.SignalPayload{}, domain.SignalEvidence{}); !errors.Is(err, domain.ErrInvalidSignal) {
		t.Errorf("missing game: got %v, want ErrInvalidSignal", err)
	}
	if _, err := b.Publish(ctx, domain.SignalSteam, "", steamPayload("g1"), domain.SignalEvidence{}); !errors.Is(err, domain.ErrInvalidSignal) {
		t.Errorf("missing node: got %v, want ErrInvalidSignal", err)
	}
}

func TestSteamConfidenceFormula(t *testing.T) {
	b, _, _, _, _ := newTestBus()
	ctx := context.Background()

	mv := domain.LineMovement{
		GameID: "g1", Sport: "nba", Bookmaker: "fanduel",
		Market: domain.MarketSpread, OldLine: -3.5, NewLine: -6.0,
		Delta: -2.5, BookCount: 3,
	}
	sig, err := b.PublishSteam(ctx, "n1", mv)
	if err != nil {
		t.Fatalf("publish steam: %v", err)
	}
	if sig.Payload.Confidence != 55 {
		t.Errorf("confidence = %v, want 2.5*10 + 3*10 = 55", sig.Payload.Confidence)
	}
	if sig.Evidence.OldLine != -3.5 || sig.Evidence.NewLine != -6.0 || sig.Evidence.Delta != -2.5 {
		t.Errorf("evidence lines = %+v", sig.Evidence)
	}

	mv.Delta = -12
	mv.BookCount = 5
	mv.GameID = "g2"
	sig, err = b.PublishSteam(ctx, "n1", mv)
	if err != nil {
		t.Fatalf("publish steam: %v", err)
	}
	if sig.Payload.Confidence != 100 {
		t.Errorf("confidence = %v, want capped at 100", sig.Payload.Confidence)
	}
}

func TestArbConfidenceFormula(t *testing.T) {
	b, _, _, _, _ := newTestBus()
	ctx := context.Background()

	opp := domain.ArbitrageOpportunity{
		ID: "opp-1", GameID: "g1", Game: "Lakers @ Celtics", Sport: "nba",
		Market: domain.MarketMoneyline, ProfitPct: 2.21,
		Legs: [2]domain.ArbLeg{
			{Bookmaker: "fanduel", Outcome: "Celtics ML"},
			{Bookmaker: "draftkings", Outcome: "Lakers ML"},
		},
	}
	sig, err := b.PublishArb(ctx, "n1", opp)
	if err != nil {
		t.Fatalf("publish arb: %v", err)
	}
	if want := 2.21 * 20; sig.Payload.Confidence != want {
		t.Errorf("confidence = %v, want %v", sig.Payload.Confidence, want)
	}
	if sig.Payload.TTLSeconds != 30 {
		t.Errorf("ttl = %d, want arb default 30", sig.Payload.TTLSeconds)
	}
	if len(sig.Evidence.Books) != 2 || sig.Evidence.Books[0] != "fanduel" || sig.Evidence.Books[1] != "draftkings" {
		t.Errorf("evidence books = %v", sig.Evidence.Books)
	}

	opp.ProfitPct = 6.5
	opp.GameID = "g2"
	sig, err = b.PublishArb(ctx, "n1", opp)
	if err != nil {
		t.Fatalf("publish arb: %v", err)
	}
	if sig.Payload.Confidence != 100 {
		t.Errorf("confidence = %v, want capped at 100", sig.Payload.Confidence)
	}
}

func TestDeadSignalRequiresResolvableReference(t *testing.T) {
	b, _, _, _, _ := newTestBus()
	ctx := context.Background()

	if _, err := b.PublishDead(ctx, "n1", "no-such-id", "line moved back"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound for unknown reference", err)
	}

	orig, err := b.Publish(ctx, domain.SignalSteam, "n1", steamPayload("g1"), domain.SignalEvidence{Books: []string{"fanduel"}})
	if err != nil {
		t.Fatalf("publish original: %v", err)
	}

	dead, err := b.PublishDead(ctx, "n2", orig.ID, "line moved back")
	if err != nil {
		t.Fatalf("publish dead: %v", err)
	}
	if dead.Type != domain.SignalDead {
		t.Errorf("type = %q, want dead", dead.Type)
	}
	if dead.Evidence.RefID != orig.ID {
		t.Errorf("refId = %q, want %q", dead.Evidence.RefID, orig.ID)
	}
	if dead.Payload.GameID != "g1" {
		t.Errorf("gameId = %q, want inherited g1", dead.Payload.GameID)
	}
}

func TestDeadSignalExpiredReference(t *testing.T) {
	b, _, _, _, clock := newTestBus()
	ctx := context.Background()

	orig, err := b.Publish(ctx, domain.SignalArb, "n1", steamPayload("g1"), domain.SignalEvidence{})
	if err != nil {
		t.Fatalf("publish original: %v", err)
	}

	// Arb default TTL is 30s; the store entry is gone at +31s.
	clock.Advance(31 * time.Second)
	if _, err := b.PublishDead(ctx, "n1", orig.ID, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound for expired reference", err)
	}
}

func mkSignal(id string, typ domain.SignalType, gameID, nodeID string, created time.Time, ttl time.Duration) domain.Signal {
	return domain.Signal{
		ID:        id,
		Type:      typ,
		Source:    domain.SignalSource{NodeID: nodeID, Reputation: 50},
		Payload:   domain.SignalPayload{GameID: gameID, Sport: "nba", TTLSeconds: int(ttl / time.Second)},
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
}

func TestDispatchDropsExpired(t *testing.T) {
	b, _, _, _, clock := newTestBus()
	ctx := context.Background()

	var calls int
	b.Handle(string(domain.SignalSteam), func(ctx context.Context, sig domain.Signal) error {
		calls++
		return nil
	})

	created := clock.Now()
	clock.Advance(2 * time.Second)

	// ttl=1 created two seconds ago: never delivered.
	b.dispatch(ctx, mkSignal("s1", domain.SignalSteam, "g1", "n1", created, time.Second))
	if calls != 0 {
		t.Fatalf("expired signal dispatched %d times, want 0", calls)
	}

	// A live one goes through.
	b.dispatch(ctx, mkSignal("s2", domain.SignalSteam, "g1", "n1", clock.Now(), time.Minute))
	if calls != 1 {
		t.Fatalf("live signal dispatched %d times, want 1", calls)
	}
}

func TestDispatchDeduplicatesWithinWindow(t *testing.T) {
	b, _, _, _, clock := newTestBus()
	ctx := context.Background()

	var calls int
	b.Handle(TypeAll, func(ctx context.Context, sig domain.Signal) error {
		calls++
		return nil
	})

	b.dispatch(ctx, mkSignal("s1", domain.SignalSteam, "g1", "n1", clock.Now(), time.Minute))
	b.dispatch(ctx, mkSignal("s2", domain.SignalSteam, "g1", "n1", clock.Now(), time.Minute))
	if calls != 1 {
		t.Fatalf("republished signal dispatched %d times, want exactly 1", calls)
	}

	// Outside the 5s window the same triple dispatches again.
	clock.Advance(6 * time.Second)
	b.dispatch(ctx, mkSignal("s3", domain.SignalSteam, "g1", "n1", clock.Now(), time.Minute))
	if calls != 2 {
		t.Fatalf("post-window dispatch count = %d, want 2", calls)
	}

	// A different game is not a duplicate.
	b.dispatch(ctx, mkSignal("s4", domain.SignalSteam, "g2", "n1", clock.Now(), time.Minute))
	if calls != 3 {
		t.Fatalf("distinct game dispatch count = %d, want 3", calls)
	}
}

func TestDispatchTypeAndWildcardHandlers(t *testing.T) {
	b, _, _, _, clock := newTestBus()
	ctx := context.Background()

	var arbCalls, allCalls int
	b.Handle(string(domain.SignalArb), func(ctx context.Context, sig domain.Signal) error {
		arbCalls++
		return nil
	})
	b.Handle(TypeAll, func(ctx context.Context, sig domain.Signal) error {
		allCalls++
		return nil
	})

	b.dispatch(ctx, mkSignal("s1", domain.SignalArb, "g1", "n1", clock.Now(), time.Minute))
	if arbCalls != 1 || allCalls != 1 {
		t.Errorf("arb signal: arbCalls=%d allCalls=%d, want 1/1", arbCalls, allCalls)
	}

	b.dispatch(ctx, mkSignal("s2", domain.SignalSteam, "g1", "n1", clock.Now(), time.Minute))
	if arbCalls != 1 || allCalls != 2 {
		t.Errorf("steam signal: arbCalls=%d allCalls=%d, want 1/2", arbCalls, allCalls)
	}
}

func TestDispatchContainsHandlerFailures(t *testing.T) {
	b, _, _, _, clock := newTestBus()
	ctx := context.Background()

	var survived int
	b.Handle(string(domain.SignalSteam), func(ctx context.Context, sig domain.Signal) error {
		panic("handler bug")
	})
	b.Handle(string(domain.SignalSteam), func(ctx context.Context, sig domain.Signal) error {
		return fmt.Errorf("handler error")
	})
	b.Handle(string(domain.SignalSteam), func(ctx context.Context, sig domain.Signal) error {
		survived++
		return nil
	})

	b.dispatch(ctx, mkSignal("s1", domain.SignalSteam, "g1", "n1", clock.Now(), time.Minute))
	if survived != 1 {
		t.Fatalf("handler after panic/error ran %d times, want 1", survived)
	}
}

func TestPublishFallsBackToLocalDispatch(t *testing.T) {
	b, tr, st, _, _ := newTestBus()
	ctx := context.Background()

	var calls int
	b.Handle(string(domain.SignalSteam), func(ctx context.Context, sig domain.Signal) error {
		calls++
		return nil
	})

	tr.failPublish = true
	sig, err := b.Publish(ctx, domain.SignalSteam, "n1", steamPayload("g1"), domain.SignalEvidence{})
	if err != nil {
		t.Fatalf("publish with dead transport should degrade, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("local dispatch ran %d times, want 1", calls)
	}
	if _, err := st.Get(ctx, sig.ID); err != nil {
		t.Errorf("signal not stored during degraded publish: %v", err)
	}
	if n := len(tr.streams[LogStream]); n != 1 {
		t.Errorf("replay log has %d entries after degraded publish, want 1", n)
	}
}

func TestRunDispatchesTransportMessages(t *testing.T) {
	b, tr, _, _, _ := newTestBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.Signal, 1)
	b.Handle(string(domain.SignalSteam), func(ctx context.Context, sig domain.Signal) error {
		got <- sig
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for tr.subscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bus never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sig, err := b.Publish(ctx, domain.SignalSteam, "n1", steamPayload("g1"), domain.SignalEvidence{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case dispatched := <-got:
		if dispatched.ID != sig.ID {
			t.Errorf("dispatched id = %q, want %q", dispatched.ID, sig.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal never dispatched from transport")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
