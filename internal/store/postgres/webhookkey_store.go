package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// WebhookKeyStore implements domain.WebhookKeyStore against the
// webhook_keys table.
type WebhookKeyStore struct {
	pool *pgxpool.Pool
}

// NewWebhookKeyStore creates a new WebhookKeyStore backed by the given
// connection pool.
func NewWebhookKeyStore(pool *pgxpool.Pool) *WebhookKeyStore {
	return &WebhookKeyStore{pool: pool}
}

// GetByKeyHash looks up a webhook key by the SHA-256 digest of its raw
// value (a deterministic digest, unlike bcrypt, so it can be looked up
// by equality).
func (s *WebhookKeyStore) GetByKeyHash(ctx context.Context, keyHash string) (domain.WebhookKey, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, key_hash, broker_account_ids, active, last_used_at
		 FROM webhook_keys WHERE key_hash = $1`, keyHash)

	var k domain.WebhookKey
	err := row.Scan(&k.ID, &k.KeyHash, &k.BrokerAccountIDs, &k.Active, &k.LastUsedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WebhookKey{}, domain.ErrNotFound
		}
		return domain.WebhookKey{}, fmt.Errorf("postgres: get webhook key: %w", err)
	}
	return k, nil
}

// TouchLastUsed records the current time as the key's last-used moment.
func (s *WebhookKeyStore) TouchLastUsed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE webhook_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: touch webhook key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
