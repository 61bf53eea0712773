package signal

import (
	"testing"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

func TestDedupWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	d := NewDedup(5 * time.Second)
	d.now = clock.Now

	if d.IsDuplicate(domain.SignalSteam, "g1", "n1") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.IsDuplicate(domain.SignalSteam, "g1", "n1") {
		t.Fatal("second sighting inside window not reported as duplicate")
	}

	// Different type, game, or node is a different key.
	if d.IsDuplicate(domain.SignalArb, "g1", "n1") {
		t.Error("different type treated as duplicate")
	}
	if d.IsDuplicate(domain.SignalSteam, "g2", "n1") {
		t.Error("different game treated as duplicate")
	}
	if d.IsDuplicate(domain.SignalSteam, "g1", "n2") {
		t.Error("different node treated as duplicate")
	}

	clock.Advance(6 * time.Second)
	if d.IsDuplicate(domain.SignalSteam, "g1", "n1") {
		t.Fatal("sighting after window still reported as duplicate")
	}
}

func TestDedupCleanup(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	d := NewDedup(5 * time.Second)
	d.now = clock.Now

	d.IsDuplicate(domain.SignalSteam, "g1", "n1")
	d.IsDuplicate(domain.SignalArb, "g2", "n2")
	if len(d.seen) != 2 {
		t.Fatalf("tracked %d entries, want 2", len(d.seen))
	}

	clock.Advance(3 * time.Second)
	d.IsDuplicate(domain.SignalEV, "g3", "n3")

	clock.Advance(3 * time.Second)
	d.Cleanup()
	// The first two are 6s old and gone; the third is 3s old and kept.
	if len(d.seen) != 1 {
		t.Fatalf("after cleanup tracked %d entries, want 1", len(d.seen))
	}
	if !d.IsDuplicate(domain.SignalEV, "g3", "n3") {
		t.Error("entry inside window lost by cleanup")
	}
}
