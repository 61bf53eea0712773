package detect

import (
	"sync"
	"time"
)

// LinePoint records a single line observation at a point in time.
type LinePoint struct {
	Value float64
	Time  time.Time
}

// LineTracker maintains a sliding window of recent line values for each
// tracked key and answers the questions steam detection asks: what was the
// last value, and how far has the line travelled inside the window.
type LineTracker struct {
	history map[string][]LinePoint
	window  time.Duration
	mu      sync.RWMutex
}

// NewLineTracker creates a LineTracker. Points older than window relative to
// the newest observation are discarded on every Track call.
func NewLineTracker(window time.Duration) *LineTracker {
	return &LineTracker{
		history: make(map[string][]LinePoint),
		window:  window,
	}
}

// Track records a new line observation for the given key and trims points
// that have fallen outside the sliding window.
func (lt *LineTracker) Track(key string, value float64, ts time.Time) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.history[key] = append(lt.history[key], LinePoint{
		Value: value,
		Time:  ts,
	})
	lt.trim(key, ts)
}

// Last returns the most recent tracked value for the key, or false when the
// key has never been tracked.
func (lt *LineTracker) Last(key string) (float64, bool) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	pts := lt.history[key]
	if len(pts) == 0 {
		return 0, false
	}
	return pts[len(pts)-1].Value, true
}

// WindowDelta returns the net movement inside the window: the last value
// minus the first. The second return is false when fewer than two points are
// recorded.
func (lt *LineTracker) WindowDelta(key string) (float64, bool) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	pts := lt.history[key]
	if len(pts) < 2 {
		return 0, false
	}
	return pts[len(pts)-1].Value - pts[0].Value, true
}

// History returns a copy of the line history within the sliding window for
// the given key. The returned slice is safe to mutate.
func (lt *LineTracker) History(key string) []LinePoint {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	src := lt.history[key]
	if len(src) == 0 {
		return nil
	}
	out := make([]LinePoint, len(src))
	copy(out, src)
	return out
}

// trim removes all points older than the window relative to the reference
// time. The caller must hold lt.mu.
func (lt *LineTracker) trim(key string, now time.Time) {
	cutoff := now.Add(-lt.window)
	pts := lt.history[key]

	// Find the first index that is within the window.
	i := 0
	for i < len(pts) && pts[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		lt.history[key] = pts[i:]
	}
}
