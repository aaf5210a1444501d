package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

const webhookKeyCacheTTL = 5 * time.Minute

// WebhookKeyCache implements domain.WebhookKeyCache, short-circuiting the
// webhook key lookup for high-frequency signal sources that otherwise hit
// the store on every inbound request.
type WebhookKeyCache struct {
	rdb *redis.Client
}

// NewWebhookKeyCache creates a WebhookKeyCache backed by the given Client.
func NewWebhookKeyCache(c *Client) *WebhookKeyCache {
	return &WebhookKeyCache{rdb: c.Underlying()}
}

func webhookKeyCacheKey(keyHash string) string {
	return "webhookkey:" + keyHash
}

// Set caches key under keyHash.
func (wc *WebhookKeyCache) Set(ctx context.Context, keyHash string, key domain.WebhookKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("redis: marshal webhook key: %w", err)
	}
	if err := wc.rdb.Set(ctx, webhookKeyCacheKey(keyHash), data, webhookKeyCacheTTL).Err(); err != nil {
		return fmt.Errorf("redis: set webhook key %s: %w", keyHash, err)
	}
	return nil
}

// Get retrieves a cached webhook key, returning domain.ErrNotFound on a
// cache miss so callers fall through to the store.
func (wc *WebhookKeyCache) Get(ctx context.Context, keyHash string) (domain.WebhookKey, error) {
	data, err := wc.rdb.Get(ctx, webhookKeyCacheKey(keyHash)).Bytes()
	if err == redis.Nil {
		return domain.WebhookKey{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.WebhookKey{}, fmt.Errorf("redis: get webhook key %s: %w", keyHash, err)
	}

	var key domain.WebhookKey
	if err := json.Unmarshal(data, &key); err != nil {
		return domain.WebhookKey{}, fmt.Errorf("redis: unmarshal webhook key %s: %w", keyHash, err)
	}
	return key, nil
}

// Invalidate removes a cached webhook key, e.g. after it is deactivated.
func (wc *WebhookKeyCache) Invalidate(ctx context.Context, keyHash string) error {
	if err := wc.rdb.Del(ctx, webhookKeyCacheKey(keyHash)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate webhook key %s: %w", keyHash, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.WebhookKeyCache = (*WebhookKeyCache)(nil)
