package signal

import (
	"sync"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// Dedup suppresses near-duplicate signals: a second signal with the
// same type, game, and source node inside the window is a duplicate.
// It is safe for concurrent use.
type Dedup struct {
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
}

// NewDedup creates a Dedup with the given suppression window.
func NewDedup(window time.Duration) *Dedup {
	return &Dedup{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

func dedupKey(typ domain.SignalType, gameID, nodeID string) string {
	return string(typ) + "|" + gameID + "|" + nodeID
}

// IsDuplicate returns true if an equivalent signal was seen within the
// window. A first sighting (or an expired one) is recorded and returns
// false.
func (d *Dedup) IsDuplicate(typ domain.SignalType, gameID, nodeID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey(typ, gameID, nodeID)
	now := d.now()
	if lastSeen, ok := d.seen[key]; ok {
		if now.Sub(lastSeen) < d.window {
			return true
		}
	}

	d.seen[key] = now
	return false
}

// Cleanup removes entries older than the window. Call periodically to
// prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.window {
			delete(d.seen, key)
		}
	}
}
