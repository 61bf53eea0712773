package ws

import (
	"sync"
	"time"
)

// cooldown grants each connection at most one delivery slot per window.
// The first reservation in a window wins; later attempts inside the
// same window are refused, so the oldest deferred opportunity is the
// one a free-tier connection receives.
type cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newCooldown(window time.Duration) *cooldown {
	return &cooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Reserve claims the current window's slot for id. Returns false when
// the slot is already taken.
func (c *cooldown) Reserve(id string) bool {
	if c.window <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[id]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[id] = now
	return true
}

// Forget drops id's state, typically on disconnect.
func (c *cooldown) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, id)
}
