package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TriggerStore persists trigger records (the hmt_gtt_orders table) and
// exposes the atomic status transitions the State Writer relies on.
type TriggerStore interface {
	Create(ctx context.Context, t Trigger) error
	Update(ctx context.Context, t Trigger) error
	GetByID(ctx context.Context, id string) (Trigger, error)
	ListActive(ctx context.Context) ([]Trigger, error)
	List(ctx context.Context, opts ListOpts) ([]Trigger, error)

	// MarkTriggered unconditionally transitions a trigger to Triggered and
	// records the firing audit fields.
	MarkTriggered(ctx context.Context, id string, leg int, price float64, orderID string) error

	// MarkFailed unconditionally transitions a trigger to Failed with a
	// human-readable reason.
	MarkFailed(ctx context.Context, id string, reason string) error

	// CancelIfActive transitions a trigger to Cancelled only if its
	// current status is still Active. It reports whether the cancel was
	// actually applied (false means a concurrent writer already moved the
	// trigger out of Active — the OCO atomicity guard).
	CancelIfActive(ctx context.Context, id string, reason string) (bool, error)
}

// TradeLogStore persists the best-effort per-fire audit rows.
type TradeLogStore interface {
	Append(ctx context.Context, entry TradeLogEntry) error
	ListBefore(ctx context.Context, before time.Time) ([]TradeLogEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BrokerConnectionStore is the engine's read-only view of broker accounts.
type BrokerConnectionStore interface {
	ListActive(ctx context.Context) ([]BrokerConnection, error)
	GetByID(ctx context.Context, id string) (BrokerConnection, error)
}

// EngineStateStore implements the singleton-election and heartbeat
// primitives backing the Supervisor, against the hmt_engine_state row.
type EngineStateStore interface {
	// TryAcquire attempts to become leader. It succeeds if no row exists
	// or the existing row's heartbeat is older than staleThreshold.
	TryAcquire(ctx context.Context, instanceID string, staleThreshold time.Duration) (bool, error)
	Heartbeat(ctx context.Context, instanceID string, stats EngineStats) error
	Release(ctx context.Context, instanceID string) error
	Get(ctx context.Context) (EngineStateRow, error)
	SetEngineError(ctx context.Context, instanceID string, reason string) error
}

// PositionStore is the read-only position source used for breakeven
// hints.
type PositionStore interface {
	GetOpen(ctx context.Context, brokerAccountID string) ([]Position, error)
}

// OrderStore persists broker order records.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
}

// RiskLimitStore is the read-only (from the engine's perspective) risk
// bookkeeping source, plus the counter increments the firing pipeline
// performs on successful fires.
type RiskLimitStore interface {
	Get(ctx context.Context, userID string) (RiskLimits, error)
	IncrementDailyTradeCount(ctx context.Context, userID string) error
}

// NotificationStore persists outbound notifications (independent of
// whether a Sender successfully delivers them).
type NotificationStore interface {
	Create(ctx context.Context, n Notification) error
}

// WebhookKeyStore validates and tracks webhook gateway keys.
type WebhookKeyStore interface {
	GetByKeyHash(ctx context.Context, keyHash string) (WebhookKey, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// NFOInstrumentStore resolves derivatives contracts for an underlying.
type NFOInstrumentStore interface {
	// ListActiveFutures returns futures contracts for underlying with
	// expiry on or after asOf, ordered by expiry ascending.
	ListActiveFutures(ctx context.Context, underlying string, asOf time.Time) ([]NFOInstrument, error)
}

// WebhookLogStore is the append-only audit trail for the gateway.
type WebhookLogStore interface {
	Append(ctx context.Context, entry WebhookLogEntry) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists a general-purpose append-only audit log, used by
// the archiver to record each archival run.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
