package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koshedu/marketcore/internal/position"
)

const positionKeyPrefix = "marketcore:position"
const positionTTL = 7 * 24 * time.Hour

// PositionSnapshotCache persists the current open position per instrument
// to Redis so a restarted engine can warm-start its PositionManager instead
// of treating every instrument as flat, mirroring the teacher's
// RedisPositionStateRepository restart-recovery use case.
type PositionSnapshotCache struct {
	client *redis.Client
}

// NewPositionSnapshotCache wraps an existing Redis client.
func NewPositionSnapshotCache(client *redis.Client) *PositionSnapshotCache {
	return &PositionSnapshotCache{client: client}
}

// Save writes the current position snapshot, keyed by instrument.
func (c *PositionSnapshotCache) Save(ctx context.Context, p position.Position) error {
	key := fmt.Sprintf("%s:%s", positionKeyPrefix, p.Instrument.String())
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position snapshot: %w", err)
	}
	if err := c.client.Set(ctx, key, data, positionTTL).Err(); err != nil {
		return fmt.Errorf("save position snapshot: %w", err)
	}
	return nil
}

// Load reads back a previously saved position snapshot, if any.
func (c *PositionSnapshotCache) Load(ctx context.Context, instrumentName string) (position.Position, bool, error) {
	key := fmt.Sprintf("%s:%s", positionKeyPrefix, instrumentName)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return position.Position{}, false, nil
	}
	if err != nil {
		return position.Position{}, false, fmt.Errorf("load position snapshot: %w", err)
	}
	var p position.Position
	if err := json.Unmarshal(data, &p); err != nil {
		return position.Position{}, false, fmt.Errorf("unmarshal position snapshot: %w", err)
	}
	return p, true, nil
}
