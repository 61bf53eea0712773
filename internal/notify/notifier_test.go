package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{EventArbDetected}, testLogger())

	if err := n.Notify(context.Background(), EventSteamDetected, "steam move", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 0 {
		t.Error("filtered event should not reach senders")
	}

	if err := n.Notify(context.Background(), EventArbDetected, "arb found", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 1 || sender.titles[0] != "arb found" {
		t.Errorf("titles = %v, want [arb found]", sender.titles)
	}
}

func TestArbAlertFormat(t *testing.T) {
	title, msg := ArbAlert(domain.ArbitrageOpportunity{
		Game: "Lakers @ Celtics", Sport: "nba",
		Market: domain.MarketMoneyline, ProfitPct: 2.21,
		Legs: [2]domain.ArbLeg{
			{Bookmaker: "fanduel", Outcome: "Celtics ML"},
			{Bookmaker: "draftkings", Outcome: "Lakers ML"},
		},
	})
	if title != "Arbitrage 2.21%: Lakers @ Celtics" {
		t.Errorf("title = %q", title)
	}
	if msg != "nba moneyline | Celtics ML @ fanduel vs Lakers ML @ draftkings" {
		t.Errorf("message = %q", msg)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Error("empty filter should pass every event")
	}
}

func TestDispatchIsolatesSenderFailures(t *testing.T) {
	failing := &recordingSender{name: "bad", err: errors.New("boom")}
	working := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{failing, working}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("expected combined error from failing sender")
	}
	if len(working.titles) != 1 {
		t.Error("failure in one sender must not block the others")
	}
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Fatalf("NotifyAll with no senders: %v", err)
	}
}
