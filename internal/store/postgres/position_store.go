package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. The
// engine only ever reads from this store, for breakeven hints; positions
// are written by the broker's own back office feed, out of scope here.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// GetOpen returns all open positions for the given broker account.
func (s *PositionStore) GetOpen(ctx context.Context, brokerAccountID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, exchange, broker_account, avg_price, quantity
		 FROM positions
		 WHERE broker_account = $1 AND quantity != 0`, brokerAccountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.Symbol, &p.Exchange, &p.BrokerAccount, &p.AvgPrice, &p.Quantity); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}
