package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// BrokerConnectionStore implements domain.BrokerConnectionStore, the
// engine's read-only view of broker_connections.
type BrokerConnectionStore struct {
	pool *pgxpool.Pool
}

// NewBrokerConnectionStore creates a new BrokerConnectionStore backed by
// the given connection pool.
func NewBrokerConnectionStore(pool *pgxpool.Pool) *BrokerConnectionStore {
	return &BrokerConnectionStore{pool: pool}
}

const brokerConnSelectCols = `id, user_id, api_key, access_token, is_live, expires_at`

func scanBrokerConnection(scanner interface{ Scan(dest ...any) error }) (domain.BrokerConnection, error) {
	var b domain.BrokerConnection
	err := scanner.Scan(&b.ID, &b.UserID, &b.APIKey, &b.AccessToken, &b.IsLive, &b.ExpiresAt)
	return b, err
}

// ListActive returns every broker connection flagged as live.
func (s *BrokerConnectionStore) ListActive(ctx context.Context) ([]domain.BrokerConnection, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+brokerConnSelectCols+` FROM broker_connections WHERE is_live = true`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active broker connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.BrokerConnection
	for rows.Next() {
		b, err := scanBrokerConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan broker connection: %w", err)
		}
		conns = append(conns, b)
	}
	return conns, rows.Err()
}

// GetByID retrieves a single broker connection by ID.
func (s *BrokerConnectionStore) GetByID(ctx context.Context, id string) (domain.BrokerConnection, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+brokerConnSelectCols+` FROM broker_connections WHERE id = $1`, id)
	b, err := scanBrokerConnection(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.BrokerConnection{}, domain.ErrNotFound
		}
		return domain.BrokerConnection{}, fmt.Errorf("postgres: get broker connection %s: %w", id, err)
	}
	return b, nil
}
