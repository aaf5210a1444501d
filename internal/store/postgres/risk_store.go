package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// RiskLimitStore implements domain.RiskLimitStore against risk_limits.
// Daily counters are reset out of band by the reset_daily_risk_counters
// procedure, invoked on a cron outside the engine.
type RiskLimitStore struct {
	pool *pgxpool.Pool
}

// NewRiskLimitStore creates a new RiskLimitStore backed by the given
// connection pool.
func NewRiskLimitStore(pool *pgxpool.Pool) *RiskLimitStore {
	return &RiskLimitStore{pool: pool}
}

// Get retrieves the current risk configuration and counters for userID.
func (s *RiskLimitStore) Get(ctx context.Context, userID string) (domain.RiskLimits, error) {
	const query = `
		SELECT user_id, max_daily_trades, daily_trade_count, daily_pnl_floor, daily_pnl, kill_switch, cutoff_time
		FROM risk_limits WHERE user_id = $1`

	var r domain.RiskLimits
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&r.UserID, &r.MaxDailyTrades, &r.DailyTradeCount, &r.DailyPnLFloor, &r.DailyPnL, &r.KillSwitch, &r.CutoffTime,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.RiskLimits{}, domain.ErrNotFound
		}
		return domain.RiskLimits{}, fmt.Errorf("postgres: get risk limits for %s: %w", userID, err)
	}
	return r, nil
}

// IncrementDailyTradeCount atomically bumps a user's trade counter,
// called by the firing pipeline once an order placement succeeds.
func (s *RiskLimitStore) IncrementDailyTradeCount(ctx context.Context, userID string) error {
	const query = `UPDATE risk_limits SET daily_trade_count = daily_trade_count + 1 WHERE user_id = $1`
	tag, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("postgres: increment daily trade count for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
