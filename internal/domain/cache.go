package domain

import (
	"context"
	"time"
)

// SignalStore keeps live signals with their TTLs. Entries disappear on
// expiry; Get on an expired or unknown id returns ErrNotFound.
type SignalStore interface {
	Put(ctx context.Context, sig Signal, ttl time.Duration) error
	Get(ctx context.Context, id string) (Signal, error)
	Recent(ctx context.Context, typ SignalType, limit int) ([]Signal, error)
}

// NodeStore persists the node ledger: identity, watching declaration,
// reputation, and liveness.
type NodeStore interface {
	Register(ctx context.Context, node Node) error
	Get(ctx context.Context, id string) (Node, error)
	Heartbeat(ctx context.Context, id string, at time.Time, liveness time.Duration) error
	SetWatching(ctx context.Context, id string, w Watching) error
	AdjustReputation(ctx context.Context, id string, delta int) (int, error)
	IncrementPublished(ctx context.Context, id string) error
	Live(ctx context.Context) ([]Node, error)
	All(ctx context.Context) ([]Node, error)
	TopByReputation(ctx context.Context, limit int) ([]Node, error)
	Remove(ctx context.Context, id string) error
}

// OddsCache keeps the latest odds snapshot per game so API reads and
// movement comparisons do not depend on the upstream feed being live.
type OddsCache interface {
	SetGame(ctx context.Context, odds GameOdds) error
	Game(ctx context.Context, gameID string) (GameOdds, error)
	Games(ctx context.Context, sport string) ([]GameOdds, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalTransport provides pub/sub fan-out and durable streams. The
// channel pattern syntax ("signals:*") follows Redis PSUBSCRIBE.
type SignalTransport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, pattern string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
