package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

const (
	instrumentCacheKey = "feed:subscribed_instruments"
	instrumentCacheTTL = 10 * time.Minute
)

// InstrumentCache implements domain.InstrumentCache, letting a
// newly-elected leader warm up its feed subscriptions before the first
// store read of active triggers completes.
type InstrumentCache struct {
	rdb *redis.Client
}

// NewInstrumentCache creates an InstrumentCache backed by the given Client.
func NewInstrumentCache(c *Client) *InstrumentCache {
	return &InstrumentCache{rdb: c.Underlying()}
}

// SetSubscribed overwrites the cached subscribed-instrument set.
func (ic *InstrumentCache) SetSubscribed(ctx context.Context, tokens []uint32) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("redis: marshal subscribed instruments: %w", err)
	}
	if err := ic.rdb.Set(ctx, instrumentCacheKey, data, instrumentCacheTTL).Err(); err != nil {
		return fmt.Errorf("redis: set subscribed instruments: %w", err)
	}
	return nil
}

// GetSubscribed returns the cached subscribed-instrument set, or an empty
// slice if nothing has been cached yet.
func (ic *InstrumentCache) GetSubscribed(ctx context.Context) ([]uint32, error) {
	data, err := ic.rdb.Get(ctx, instrumentCacheKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get subscribed instruments: %w", err)
	}

	var tokens []uint32
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("redis: unmarshal subscribed instruments: %w", err)
	}
	return tokens, nil
}

// Compile-time interface check.
var _ domain.InstrumentCache = (*InstrumentCache)(nil)
