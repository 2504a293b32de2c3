// Package rediscache implements execution/clientorderid.SequenceProvider and a
// position snapshot cache on Redis, grounded on the teacher's
// RedisPositionStateRepository (internal/database/redis_position_state.go):
// same in-memory fallback posture when Redis is unreachable, so client order
// ID generation never blocks trading on a Redis outage.
package rediscache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const sequenceKeyPrefix = "marketcore:seq"

// SequenceCache implements execution/clientorderid.SequenceProvider against
// Redis INCR, falling back to an in-memory counter when Redis is down.
type SequenceCache struct {
	client    *redis.Client
	available atomic.Bool

	mu       sync.Mutex
	fallback map[string]int64
}

// NewSequenceCache wraps an existing Redis client.
func NewSequenceCache(client *redis.Client) *SequenceCache {
	c := &SequenceCache{
		client:   client,
		fallback: make(map[string]int64),
	}
	c.available.Store(true)
	return c
}

// Next returns the next sequence number for strategy.
func (c *SequenceCache) Next(ctx context.Context, strategy string) (int64, error) {
	if c.available.Load() {
		key := fmt.Sprintf("%s:%s", sequenceKeyPrefix, strategy)
		seq, err := c.client.Incr(ctx, key).Result()
		if err == nil {
			return seq, nil
		}
		c.available.Store(false)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback[strategy]++
	return c.fallback[strategy], nil
}

// IsHealthy reports whether the last Redis call succeeded.
func (c *SequenceCache) IsHealthy() bool {
	return c.available.Load()
}
