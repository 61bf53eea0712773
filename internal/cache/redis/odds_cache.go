package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/redis/go-redis/v9"
)

// oddsTTL bounds how long a snapshot serves reads after the feed stops
// refreshing it. Stale odds are worse than no odds.
const oddsTTL = 5 * time.Minute

// OddsCache implements domain.OddsCache using JSON-serialized game snapshots
// and a per-sport membership index.
//
// Key schema:
//
//	odds:{gameID}      - JSON GameOdds with a 5-minute TTL
//	odds:sport:{sport} - set of game ids for the sport
type OddsCache struct {
	rdb *redis.Client
}

// NewOddsCache creates an OddsCache backed by the given Client.
func NewOddsCache(c *Client) *OddsCache {
	return &OddsCache{rdb: c.Underlying()}
}

func oddsKey(gameID string) string     { return "odds:" + gameID }
func oddsSportKey(sport string) string { return "odds:sport:" + sport }

// SetGame stores the latest odds snapshot for a game and refreshes the
// sport index.
func (oc *OddsCache) SetGame(ctx context.Context, odds domain.GameOdds) error {
	data, err := json.Marshal(odds)
	if err != nil {
		return fmt.Errorf("redis: marshal odds %s: %w", odds.GameID, err)
	}

	pipe := oc.rdb.TxPipeline()
	pipe.Set(ctx, oddsKey(odds.GameID), data, oddsTTL)
	if odds.Sport != "" {
		sportKey := oddsSportKey(odds.Sport)
		pipe.SAdd(ctx, sportKey, odds.GameID)
		pipe.Expire(ctx, sportKey, oddsTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set odds %s: %w", odds.GameID, err)
	}
	return nil
}

// Game retrieves the latest odds snapshot for a game. It returns
// domain.ErrNotFound when no fresh snapshot exists.
func (oc *OddsCache) Game(ctx context.Context, gameID string) (domain.GameOdds, error) {
	data, err := oc.rdb.Get(ctx, oddsKey(gameID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.GameOdds{}, domain.ErrNotFound
		}
		return domain.GameOdds{}, fmt.Errorf("redis: get odds %s: %w", gameID, err)
	}

	var odds domain.GameOdds
	if err := json.Unmarshal(data, &odds); err != nil {
		return domain.GameOdds{}, fmt.Errorf("redis: unmarshal odds %s: %w", gameID, err)
	}
	return odds, nil
}

// Games returns the fresh odds snapshots for a sport, ordered by game id.
// Games whose snapshots have expired are silently omitted.
func (oc *OddsCache) Games(ctx context.Context, sport string) ([]domain.GameOdds, error) {
	ids, err := oc.rdb.SMembers(ctx, oddsSportKey(sport)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: games %s: %w", sport, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := oc.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, oddsKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: games %s: %w", sport, err)
	}

	games := make([]domain.GameOdds, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var odds domain.GameOdds
		if err := json.Unmarshal(data, &odds); err != nil {
			continue
		}
		games = append(games, odds)
	}

	sort.Slice(games, func(i, j int) bool { return games[i].GameID < games[j].GameID })
	return games, nil
}

// Compile-time interface check.
var _ domain.OddsCache = (*OddsCache)(nil)
