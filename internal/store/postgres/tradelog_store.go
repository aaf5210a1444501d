package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// TradeLogStore implements domain.TradeLogStore against hmt_trade_log.
type TradeLogStore struct {
	pool *pgxpool.Pool
}

// NewTradeLogStore creates a new TradeLogStore backed by the given
// connection pool.
func NewTradeLogStore(pool *pgxpool.Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

// Append inserts a best-effort audit row for a fired trigger leg.
func (s *TradeLogStore) Append(ctx context.Context, entry domain.TradeLogEntry) error {
	const query = `
		INSERT INTO hmt_trade_log (trigger_id, leg, observed_price, broker_order_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	_, err := s.pool.Exec(ctx, query, entry.TriggerID, entry.Leg, entry.ObservedPrice, entry.BrokerOrderID, entry.Status)
	if err != nil {
		return fmt.Errorf("postgres: append trade log for trigger %s: %w", entry.TriggerID, err)
	}
	return nil
}

// ListBefore returns trade log rows older than the given timestamp, for
// the archiver to export before deletion.
func (s *TradeLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeLogEntry, error) {
	const query = `
		SELECT id, trigger_id, leg, observed_price, broker_order_id, status, created_at
		FROM hmt_trade_log WHERE created_at < $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade log before %s: %w", before, err)
	}
	defer rows.Close()

	var entries []domain.TradeLogEntry
	for rows.Next() {
		var e domain.TradeLogEntry
		if err := rows.Scan(&e.ID, &e.TriggerID, &e.Leg, &e.ObservedPrice, &e.BrokerOrderID, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteBefore removes trade log rows older than the given timestamp,
// returning the number of rows removed.
func (s *TradeLogStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hmt_trade_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trade log before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}
