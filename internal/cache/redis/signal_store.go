package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/redis/go-redis/v9"
)

// recentListMax bounds the per-type recency index. Expired ids stay in the
// list until trimmed out; readers skip them.
const recentListMax int64 = 256

// SignalStore implements domain.SignalStore using per-signal string keys with
// millisecond TTLs and a per-type recency list.
//
// Key schema:
//
//	signal:{id}            - JSON signal, expires with the signal's TTL
//	recent:signals:{type}  - list of recent signal ids, newest first
type SignalStore struct {
	rdb *redis.Client
}

// NewSignalStore creates a SignalStore backed by the given Client.
func NewSignalStore(c *Client) *SignalStore {
	return &SignalStore{rdb: c.Underlying()}
}

func signalKey(id string) string             { return "signal:" + id }
func recentKey(typ domain.SignalType) string { return "recent:signals:" + string(typ) }

// Put stores a signal with the given TTL and pushes its id onto the type's
// recency list. Once the TTL lapses the signal key disappears and Get
// returns domain.ErrNotFound.
func (ss *SignalStore) Put(ctx context.Context, sig domain.Signal, ttl time.Duration) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal %s: %w", sig.ID, err)
	}

	key := signalKey(sig.ID)
	recent := recentKey(sig.Type)

	pipe := ss.rdb.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.LPush(ctx, recent, sig.ID)
	pipe.LTrim(ctx, recent, 0, recentListMax-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put signal %s: %w", sig.ID, err)
	}
	return nil
}

// Get retrieves a live signal by id. It returns domain.ErrNotFound when the
// signal does not exist or has already expired.
func (ss *SignalStore) Get(ctx context.Context, id string) (domain.Signal, error) {
	data, err := ss.rdb.Get(ctx, signalKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Signal{}, domain.ErrNotFound
		}
		return domain.Signal{}, fmt.Errorf("redis: get signal %s: %w", id, err)
	}

	var sig domain.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return domain.Signal{}, fmt.Errorf("redis: unmarshal signal %s: %w", id, err)
	}
	return sig, nil
}

// Recent returns up to limit live signals of the given type, newest first.
// Ids whose signals have expired are skipped.
func (ss *SignalStore) Recent(ctx context.Context, typ domain.SignalType, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := ss.rdb.LRange(ctx, recentKey(typ), 0, recentListMax-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: recent signals %s: %w", typ, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := ss.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, signalKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: recent signals %s: %w", typ, err)
	}

	signals := make([]domain.Signal, 0, limit)
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var sig domain.Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			continue
		}
		signals = append(signals, sig)
		if len(signals) == limit {
			break
		}
	}

	return signals, nil
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
