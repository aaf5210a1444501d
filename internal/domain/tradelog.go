package domain

import "time"

// TradeLogEntry is a best-effort audit row written once per fired
// trigger leg, independent of the trigger's own status transition.
type TradeLogEntry struct {
	ID            int64
	TriggerID     string
	Leg           int
	ObservedPrice float64
	BrokerOrderID string
	Status        string
	CreatedAt     time.Time
}

// WebhookLogEntry records every inbound webhook request, accepted or
// rejected, for audit purposes.
type WebhookLogEntry struct {
	ID         int64
	SourceIP   string
	RawPayload string
	Outcome    string // "success" | "rejected"
	Reason     string
	CreatedAt  time.Time
}
