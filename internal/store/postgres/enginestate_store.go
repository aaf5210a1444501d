package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// EngineStateStore implements domain.EngineStateStore against the single
// well-known hmt_engine_state row (id = 1). Leader election is a
// conditional UPDATE, the same compare-and-swap shape the Redis
// LockManager uses, reimplemented here since the election must survive a
// Redis outage independent of the engine's own liveness.
type EngineStateStore struct {
	pool *pgxpool.Pool
}

// NewEngineStateStore creates a new EngineStateStore backed by the given
// connection pool.
func NewEngineStateStore(pool *pgxpool.Pool) *EngineStateStore {
	return &EngineStateStore{pool: pool}
}

// TryAcquire attempts to become leader. It succeeds if no row exists yet,
// or the existing row's heartbeat is older than staleThreshold.
func (s *EngineStateStore) TryAcquire(ctx context.Context, instanceID string, staleThreshold time.Duration) (bool, error) {
	const query = `
		INSERT INTO hmt_engine_state (id, instance_id, is_running, last_heartbeat, stats, engine_error)
		VALUES (1, $1, true, NOW(), '{}'::jsonb, '')
		ON CONFLICT (id) DO UPDATE SET
			instance_id = EXCLUDED.instance_id,
			is_running = true,
			last_heartbeat = NOW(),
			engine_error = ''
		WHERE hmt_engine_state.is_running = false
			OR hmt_engine_state.last_heartbeat < NOW() - make_interval(secs => $2)
		RETURNING instance_id`

	var winner string
	err := s.pool.QueryRow(ctx, query, instanceID, staleThreshold.Seconds()).Scan(&winner)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("postgres: try acquire engine lock: %w", err)
	}
	return winner == instanceID, nil
}

// Heartbeat refreshes the leader's heartbeat and stats in one call. It is
// a no-op (and returns domain.ErrNotFound) if instanceID is no longer the
// recorded leader, which signals the caller to step down.
func (s *EngineStateStore) Heartbeat(ctx context.Context, instanceID string, stats domain.EngineStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("postgres: marshal engine stats: %w", err)
	}

	const query = `
		UPDATE hmt_engine_state SET
			last_heartbeat = NOW(), is_running = true, stats = $2
		WHERE id = 1 AND instance_id = $1`

	tag, err := s.pool.Exec(ctx, query, instanceID, statsJSON)
	if err != nil {
		return fmt.Errorf("postgres: heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Release relinquishes leadership, only if instanceID currently holds it.
func (s *EngineStateStore) Release(ctx context.Context, instanceID string) error {
	const query = `
		UPDATE hmt_engine_state SET is_running = false
		WHERE id = 1 AND instance_id = $1`

	_, err := s.pool.Exec(ctx, query, instanceID)
	if err != nil {
		return fmt.Errorf("postgres: release engine lock: %w", err)
	}
	return nil
}

// SetEngineError records a non-fatal error string on the current leader's
// row, surfaced on /health.
func (s *EngineStateStore) SetEngineError(ctx context.Context, instanceID string, reason string) error {
	const query = `
		UPDATE hmt_engine_state SET engine_error = $2
		WHERE id = 1 AND instance_id = $1`

	_, err := s.pool.Exec(ctx, query, instanceID, reason)
	if err != nil {
		return fmt.Errorf("postgres: set engine error: %w", err)
	}
	return nil
}

// Get returns the current hmt_engine_state row.
func (s *EngineStateStore) Get(ctx context.Context) (domain.EngineStateRow, error) {
	const query = `
		SELECT instance_id, is_running, last_heartbeat, stats, engine_error
		FROM hmt_engine_state WHERE id = 1`

	var row domain.EngineStateRow
	var statsJSON []byte

	err := s.pool.QueryRow(ctx, query).Scan(
		&row.InstanceID, &row.IsRunning, &row.LastHeartbeat, &statsJSON, &row.EngineError,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.EngineStateRow{}, domain.ErrNotFound
		}
		return domain.EngineStateRow{}, fmt.Errorf("postgres: get engine state: %w", err)
	}

	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &row.Stats); err != nil {
			return domain.EngineStateRow{}, fmt.Errorf("postgres: unmarshal engine stats: %w", err)
		}
	}

	return row, nil
}
