package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// WebhookLogStore implements domain.WebhookLogStore against
// tradingview_webhook_logs, the append-only audit trail for the gateway.
type WebhookLogStore struct {
	pool *pgxpool.Pool
}

// NewWebhookLogStore creates a new WebhookLogStore backed by the given
// connection pool.
func NewWebhookLogStore(pool *pgxpool.Pool) *WebhookLogStore {
	return &WebhookLogStore{pool: pool}
}

// Append records one inbound webhook request, accepted or rejected.
func (s *WebhookLogStore) Append(ctx context.Context, entry domain.WebhookLogEntry) error {
	const query = `
		INSERT INTO tradingview_webhook_logs (source_ip, raw_payload, outcome, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())`

	_, err := s.pool.Exec(ctx, query, entry.SourceIP, entry.RawPayload, entry.Outcome, entry.Reason)
	if err != nil {
		return fmt.Errorf("postgres: append webhook log: %w", err)
	}
	return nil
}
