package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/reputation_adjust.lua
var reputationAdjustLua string

// heartbeatLua refreshes a node's last-seen field and liveness marker only
// when the node hash already exists. A heartbeat must never create a record.
const heartbeatLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('HSET', KEYS[1], 'last_seen', ARGV[1])
redis.call('SET', KEYS[2], '1', 'EX', ARGV[2])
return 1
`

// setWatchingLua replaces a node's watching declaration only when the node
// hash already exists.
const setWatchingLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('HSET', KEYS[1], 'watching', ARGV[1])
return 1
`

// incrPublishedLua bumps the publish counter only when the node hash already
// exists. Returns -1 for unknown nodes.
const incrPublishedLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return -1
end
return redis.call('HINCRBY', KEYS[1], 'published', 1)
`

// NodeStore implements domain.NodeStore using a flat hash per node, a
// self-expiring liveness marker, and secondary indexes for membership and
// reputation ranking.
//
// Key schema:
//
//	node:{id}       - hash with fields watching, agents, rep, published,
//	                  registered_at, last_seen
//	node:live:{id}  - "1" with EX liveness; presence means the node is live
//	nodes:all       - set of all registered node ids
//	nodes:by_rep    - sorted set of node ids scored by reputation
type NodeStore struct {
	rdb           *redis.Client
	repAdjust     *redis.Script
	heartbeat     *redis.Script
	setWatching   *redis.Script
	incrPublished *redis.Script
}

// NewNodeStore creates a NodeStore backed by the given Client.
func NewNodeStore(c *Client) *NodeStore {
	return &NodeStore{
		rdb:           c.Underlying(),
		repAdjust:     redis.NewScript(reputationAdjustLua),
		heartbeat:     redis.NewScript(heartbeatLua),
		setWatching:   redis.NewScript(setWatchingLua),
		incrPublished: redis.NewScript(incrPublishedLua),
	}
}

func nodeKey(id string) string     { return "node:" + id }
func nodeLiveKey(id string) string { return "node:live:" + id }

const (
	nodesAllKey   = "nodes:all"
	nodesByRepKey = "nodes:by_rep"
)

// Register upserts the full node record and its index entries. Lifecycle
// decisions (defaulting, preserving reputation on re-registration) belong to
// the caller; this is a plain write of the record it is given.
func (ns *NodeStore) Register(ctx context.Context, node domain.Node) error {
	fields, err := nodeFields(node)
	if err != nil {
		return fmt.Errorf("redis: marshal node %s: %w", node.ID, err)
	}

	pipe := ns.rdb.TxPipeline()
	pipe.HSet(ctx, nodeKey(node.ID), fields)
	pipe.SAdd(ctx, nodesAllKey, node.ID)
	pipe.ZAdd(ctx, nodesByRepKey, redis.Z{Score: float64(node.Reputation), Member: node.ID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: register node %s: %w", node.ID, err)
	}
	return nil
}

// Get retrieves a node by id. It returns domain.ErrNotFound when the node
// does not exist.
func (ns *NodeStore) Get(ctx context.Context, id string) (domain.Node, error) {
	vals, err := ns.rdb.HGetAll(ctx, nodeKey(id)).Result()
	if err != nil {
		return domain.Node{}, fmt.Errorf("redis: get node %s: %w", id, err)
	}
	if len(vals) == 0 {
		return domain.Node{}, domain.ErrNotFound
	}
	return parseNode(id, vals)
}

// Heartbeat refreshes the node's last-seen timestamp and resets its liveness
// marker to expire after the given window. It returns domain.ErrNotFound for
// unknown nodes and never creates a record.
func (ns *NodeStore) Heartbeat(ctx context.Context, id string, at time.Time, liveness time.Duration) error {
	secs := int64(liveness / time.Second)
	if secs < 1 {
		secs = 1
	}

	res, err := ns.heartbeat.Run(
		ctx,
		ns.rdb,
		[]string{nodeKey(id), nodeLiveKey(id)},
		at.UnixNano(),
		secs,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis: heartbeat %s: %w", id, err)
	}
	if res == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetWatching replaces the node's watched sports and books. It returns
// domain.ErrNotFound for unknown nodes.
func (ns *NodeStore) SetWatching(ctx context.Context, id string, w domain.Watching) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("redis: marshal watching %s: %w", id, err)
	}

	res, err := ns.setWatching.Run(ctx, ns.rdb, []string{nodeKey(id)}, data).Int64()
	if err != nil {
		return fmt.Errorf("redis: set watching %s: %w", id, err)
	}
	if res == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AdjustReputation applies a clamped atomic increment to the node's
// reputation and keeps the reputation index in step. It returns the new
// value, or domain.ErrNotFound for unknown nodes.
func (ns *NodeStore) AdjustReputation(ctx context.Context, id string, delta int) (int, error) {
	res, err := ns.repAdjust.Run(
		ctx,
		ns.rdb,
		[]string{nodeKey(id), nodesByRepKey},
		id,
		delta,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: adjust reputation %s: %w", id, err)
	}
	if res < 0 {
		return 0, domain.ErrNotFound
	}
	return int(res), nil
}

// IncrementPublished bumps the node's lifetime publish counter. It returns
// domain.ErrNotFound for unknown nodes.
func (ns *NodeStore) IncrementPublished(ctx context.Context, id string) error {
	res, err := ns.incrPublished.Run(ctx, ns.rdb, []string{nodeKey(id)}).Int64()
	if err != nil {
		return fmt.Errorf("redis: increment published %s: %w", id, err)
	}
	if res < 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Live returns all nodes whose liveness marker has not yet expired.
func (ns *NodeStore) Live(ctx context.Context) ([]domain.Node, error) {
	ids, err := ns.rdb.SMembers(ctx, nodesAllKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: live nodes: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := ns.rdb.Pipeline()
	liveCmds := make([]*redis.IntCmd, len(ids))
	nodeCmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		liveCmds[i] = pipe.Exists(ctx, nodeLiveKey(id))
		nodeCmds[i] = pipe.HGetAll(ctx, nodeKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: live nodes: %w", err)
	}

	var nodes []domain.Node
	for i, id := range ids {
		if liveCmds[i].Val() == 0 {
			continue
		}
		vals, err := nodeCmds[i].Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		node, err := parseNode(id, vals)
		if err != nil {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// All returns every registered node, live or not.
func (ns *NodeStore) All(ctx context.Context) ([]domain.Node, error) {
	ids, err := ns.rdb.SMembers(ctx, nodesAllKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: all nodes: %w", err)
	}
	return ns.fetchNodes(ctx, ids)
}

// TopByReputation returns up to limit nodes ordered by reputation, highest
// first.
func (ns *NodeStore) TopByReputation(ctx context.Context, limit int) ([]domain.Node, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := ns.rdb.ZRevRange(ctx, nodesByRepKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: top nodes: %w", err)
	}
	return ns.fetchNodes(ctx, ids)
}

// Remove deletes the node record, its liveness marker, and its index entries.
// It returns domain.ErrNotFound when the node does not exist.
func (ns *NodeStore) Remove(ctx context.Context, id string) error {
	pipe := ns.rdb.TxPipeline()
	delCmd := pipe.Del(ctx, nodeKey(id))
	pipe.Del(ctx, nodeLiveKey(id))
	pipe.SRem(ctx, nodesAllKey, id)
	pipe.ZRem(ctx, nodesByRepKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: remove node %s: %w", id, err)
	}
	if delCmd.Val() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// fetchNodes pipelines HGetAll for the given ids, preserving order and
// skipping ids whose records are gone.
func (ns *NodeStore) fetchNodes(ctx context.Context, ids []string) ([]domain.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := ns.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, nodeKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: fetch nodes: %w", err)
	}

	nodes := make([]domain.Node, 0, len(ids))
	for i, id := range ids {
		vals, err := cmds[i].Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		node, err := parseNode(id, vals)
		if err != nil {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// nodeFields flattens a node into hash fields.
func nodeFields(node domain.Node) (map[string]interface{}, error) {
	watching, err := json.Marshal(node.Watching)
	if err != nil {
		return nil, err
	}
	agents, err := json.Marshal(node.Agents)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"watching":  watching,
		"agents":    agents,
		"rep":       strconv.Itoa(node.Reputation),
		"published": strconv.FormatInt(node.SignalsPublished, 10),
	}
	if !node.RegisteredAt.IsZero() {
		fields["registered_at"] = strconv.FormatInt(node.RegisteredAt.UnixNano(), 10)
	}
	if !node.LastSeen.IsZero() {
		fields["last_seen"] = strconv.FormatInt(node.LastSeen.UnixNano(), 10)
	}
	return fields, nil
}

// parseNode rebuilds a node from hash fields. Missing or malformed numeric
// fields fall back to zero values rather than failing the whole read.
func parseNode(id string, vals map[string]string) (domain.Node, error) {
	node := domain.Node{ID: id}

	if data, ok := vals["watching"]; ok && data != "" {
		if err := json.Unmarshal([]byte(data), &node.Watching); err != nil {
			return domain.Node{}, fmt.Errorf("redis: unmarshal watching %s: %w", id, err)
		}
	}
	if data, ok := vals["agents"]; ok && data != "" {
		if err := json.Unmarshal([]byte(data), &node.Agents); err != nil {
			return domain.Node{}, fmt.Errorf("redis: unmarshal agents %s: %w", id, err)
		}
	}
	if repStr, ok := vals["rep"]; ok {
		node.Reputation, _ = strconv.Atoi(repStr)
	}
	if pubStr, ok := vals["published"]; ok {
		node.SignalsPublished, _ = strconv.ParseInt(pubStr, 10, 64)
	}
	if tsStr, ok := vals["registered_at"]; ok {
		if nano, err := strconv.ParseInt(tsStr, 10, 64); err == nil && nano != 0 {
			node.RegisteredAt = time.Unix(0, nano)
		}
	}
	if tsStr, ok := vals["last_seen"]; ok {
		if nano, err := strconv.ParseInt(tsStr, 10, 64); err == nil && nano != 0 {
			node.LastSeen = time.Unix(0, nano)
		}
	}

	return node, nil
}

// Compile-time interface check.
var _ domain.NodeStore = (*NodeStore)(nil)
