package domain

import "time"

// WebhookKey authorizes an external strategy signal source (e.g. a
// charting-platform alert) to drive the gateway on behalf of one or more
// broker accounts. The raw key is only ever held by the caller; the store
// holds a hash.
type WebhookKey struct {
	ID               string
	KeyHash          string
	BrokerAccountIDs []string
	Active           bool
	LastUsedAt       *time.Time
}
