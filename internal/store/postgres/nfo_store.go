package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// NFOInstrumentStore implements domain.NFOInstrumentStore against the
// nfo_instruments contract master.
type NFOInstrumentStore struct {
	pool *pgxpool.Pool
}

// NewNFOInstrumentStore creates a new NFOInstrumentStore backed by the
// given connection pool.
func NewNFOInstrumentStore(pool *pgxpool.Pool) *NFOInstrumentStore {
	return &NFOInstrumentStore{pool: pool}
}

// ListActiveFutures returns futures contracts for underlying with expiry
// on or after asOf, ordered by expiry ascending (nearest month first).
func (s *NFOInstrumentStore) ListActiveFutures(ctx context.Context, underlying string, asOf time.Time) ([]domain.NFOInstrument, error) {
	const query = `
		SELECT underlying, trading_symbol, exchange, instrument_token, expiry, lot_size
		FROM nfo_instruments
		WHERE underlying = $1 AND instrument_type = 'FUT' AND expiry >= $2
		ORDER BY expiry ASC`

	rows, err := s.pool.Query(ctx, query, underlying, asOf)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active futures for %s: %w", underlying, err)
	}
	defer rows.Close()

	var out []domain.NFOInstrument
	for rows.Next() {
		var n domain.NFOInstrument
		if err := rows.Scan(&n.Underlying, &n.TradingSymbol, &n.Exchange, &n.InstrumentToken, &n.Expiry, &n.LotSize); err != nil {
			return nil, fmt.Errorf("postgres: scan nfo instrument: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
