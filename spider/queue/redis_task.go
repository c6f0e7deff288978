// Package queue implements the external pop-based Work Source variant
// (component G's Redis case), ported from original_source/pycurl_session/
// spider/task.py's RedisSpider: LPOP/SPOP-based seed pulling with put() to
// push URLs back on graceful shutdown. go-redis/v9 is a named, out-of-pack
// dependency (no Redis client appears anywhere in the retrieval pack); see
// DESIGN.md for the justification.
package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Mode selects how seeds are popped from Redis.
type Mode int

const (
	// ModeList pops via LPOP (FIFO queue semantics).
	ModeList Mode = iota
	// ModeSet pops via SPOP (unordered set semantics).
	ModeSet
)

// RedisTask is the Redis-backed external Work Source.
type RedisTask struct {
	client   *redis.Client
	key      string
	mode     Mode
	spiderID string
}

// NewRedisTask constructs a RedisTask popping seeds from key using mode.
func NewRedisTask(client *redis.Client, spiderID, key string, mode Mode) *RedisTask {
	return &RedisTask{client: client, key: key, mode: mode, spiderID: spiderID}
}

// Pop retrieves one seed URL, or ("", false) if the key is empty.
func (r *RedisTask) Pop(ctx context.Context) (string, bool, error) {
	var cmd *redis.StringCmd
	switch r.mode {
	case ModeList:
		cmd = r.client.LPop(ctx, r.key)
	case ModeSet:
		cmd = r.client.SPop(ctx, r.key)
	default:
		return "", false, fmt.Errorf("queue: unknown mode %d", r.mode)
	}

	val, err := cmd.Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("queue: pop %s: %w", r.key, err)
	}
	return val, true, nil
}

// Put pushes originURL back onto the queue (RPUSH/SADD depending on mode),
// used by the Scheduler's first-interrupt drain to preserve at-least-once
// delivery for externally-queued seeds across process restarts
// (SPEC_FULL.md §10).
func (r *RedisTask) Put(ctx context.Context, originURL string) error {
	var err error
	switch r.mode {
	case ModeList:
		err = r.client.RPush(ctx, r.key, originURL).Err()
	case ModeSet:
		err = r.client.SAdd(ctx, r.key, originURL).Err()
	default:
		return fmt.Errorf("queue: unknown mode %d", r.mode)
	}
	if err != nil {
		return fmt.Errorf("queue: put %s: %w", r.key, err)
	}
	return nil
}

// SpiderID returns the spider this queue feeds.
func (r *RedisTask) SpiderID() string { return r.spiderID }
