package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. The Supervisor does not use
// this for its own singleton election (that lives in the durable store,
// see EngineStateStore), and the webhook gateway does not use it either;
// redis.LockManager is its only implementation.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// InstrumentCache caches the Trigger Index's subscribed-instrument set so
// a restarting leader can warm up its feed subscriptions from the
// last-known set. The Supervisor reads it once the feed connect and the
// first store read have both completed.
type InstrumentCache interface {
	SetSubscribed(ctx context.Context, tokens []uint32) error
	GetSubscribed(ctx context.Context) ([]uint32, error)
}

// WebhookKeyCache short-circuits the webhook key lookup for high-frequency
// signal sources.
type WebhookKeyCache interface {
	Set(ctx context.Context, keyHash string, key WebhookKey) error
	Get(ctx context.Context, keyHash string) (WebhookKey, error)
	Invalidate(ctx context.Context, keyHash string) error
}
