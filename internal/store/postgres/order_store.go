package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, broker_account_id, trading_symbol, exchange,
	transaction_type, quantity, product, status, broker_order_id,
	price, source, created_at`

// Create inserts a new order into the database.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, broker_account_id, trading_symbol, exchange,
			transaction_type, quantity, product, status, broker_order_id,
			price, source, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.BrokerAccountID, o.TradingSymbol, o.Exchange,
		string(o.TransactionType), o.Quantity, o.Product, string(o.Status), o.BrokerOrderID,
		o.Price, o.Source, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

func scanOrderRow(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var side, status string

	err := row.Scan(
		&o.ID, &o.BrokerAccountID, &o.TradingSymbol, &o.Exchange,
		&side, &o.Quantity, &o.Product, &status, &o.BrokerOrderID,
		&o.Price, &o.Source, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.TransactionType = domain.TransactionType(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}
