package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// TriggerStore implements domain.TriggerStore using PostgreSQL's
// hmt_gtt_orders table.
type TriggerStore struct {
	pool *pgxpool.Pool
}

// NewTriggerStore creates a new TriggerStore backed by the given
// connection pool.
func NewTriggerStore(pool *pgxpool.Pool) *TriggerStore {
	return &TriggerStore{pool: pool}
}

const triggerSelectCols = `id, user_id, broker_account_id, exchange, trading_symbol,
	instrument_token, condition_type, transaction_type,
	leg1_product_type, leg1_trigger_price, leg1_order_price, leg1_quantity,
	leg2_product_type, leg2_trigger_price, leg2_order_price, leg2_quantity,
	parent_id, reference_price, reference_price_set_at, status,
	triggered_leg, triggered_price, triggered_order_id, failure_reason,
	created_at, updated_at`

func scanTrigger(scanner interface{ Scan(dest ...any) error }) (domain.Trigger, error) {
	var t domain.Trigger
	var conditionType, transactionType, status string
	var leg2Product *string
	var leg2Trigger, leg2Order *float64
	var leg2Qty *int

	err := scanner.Scan(
		&t.ID, &t.UserID, &t.BrokerAccountID, &t.Exchange, &t.TradingSymbol,
		&t.InstrumentToken, &conditionType, &transactionType,
		&t.Leg1.ProductType, &t.Leg1.TriggerPrice, &t.Leg1.OrderPrice, &t.Leg1.Quantity,
		&leg2Product, &leg2Trigger, &leg2Order, &leg2Qty,
		&t.ParentID, &t.ReferencePrice, &t.ReferencePriceSetAt, &status,
		&t.TriggeredLeg, &t.TriggeredPrice, &t.TriggeredOrderID, &t.FailureReason,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.Trigger{}, err
	}

	t.ConditionType = domain.ConditionType(conditionType)
	t.TransactionType = domain.TransactionType(transactionType)
	t.Status = domain.TriggerStatus(status)

	if leg2Product != nil {
		t.Leg2 = &domain.Leg{
			ProductType:  *leg2Product,
			TriggerPrice: derefFloat(leg2Trigger),
			OrderPrice:   derefFloat(leg2Order),
			Quantity:     derefInt(leg2Qty),
		}
	}

	return t, nil
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Create inserts a new trigger row.
func (s *TriggerStore) Create(ctx context.Context, t domain.Trigger) error {
	const query = `
		INSERT INTO hmt_gtt_orders (
			id, user_id, broker_account_id, exchange, trading_symbol,
			instrument_token, condition_type, transaction_type,
			leg1_product_type, leg1_trigger_price, leg1_order_price, leg1_quantity,
			leg2_product_type, leg2_trigger_price, leg2_order_price, leg2_quantity,
			parent_id, reference_price, reference_price_set_at, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22
		)`

	var leg2Product *string
	var leg2Trigger, leg2Order *float64
	var leg2Qty *int
	if t.Leg2 != nil {
		leg2Product = &t.Leg2.ProductType
		leg2Trigger = &t.Leg2.TriggerPrice
		leg2Order = &t.Leg2.OrderPrice
		leg2Qty = &t.Leg2.Quantity
	}

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.UserID, t.BrokerAccountID, t.Exchange, t.TradingSymbol,
		t.InstrumentToken, string(t.ConditionType), string(t.TransactionType),
		t.Leg1.ProductType, t.Leg1.TriggerPrice, t.Leg1.OrderPrice, t.Leg1.Quantity,
		leg2Product, leg2Trigger, leg2Order, leg2Qty,
		t.ParentID, t.ReferencePrice, t.ReferencePriceSetAt, string(t.Status),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trigger %s: %w", t.ID, err)
	}
	return nil
}

// Update replaces the mutable fields of a trigger. reference_price and
// reference_price_set_at are written exactly as given; Update does not
// refresh them when either leg's trigger price changes.
func (s *TriggerStore) Update(ctx context.Context, t domain.Trigger) error {
	const query = `
		UPDATE hmt_gtt_orders SET
			leg1_product_type = $2, leg1_trigger_price = $3, leg1_order_price = $4, leg1_quantity = $5,
			leg2_product_type = $6, leg2_trigger_price = $7, leg2_order_price = $8, leg2_quantity = $9,
			reference_price = $10, reference_price_set_at = $11, status = $12,
			updated_at = NOW()
		WHERE id = $1`

	var leg2Product *string
	var leg2Trigger, leg2Order *float64
	var leg2Qty *int
	if t.Leg2 != nil {
		leg2Product = &t.Leg2.ProductType
		leg2Trigger = &t.Leg2.TriggerPrice
		leg2Order = &t.Leg2.OrderPrice
		leg2Qty = &t.Leg2.Quantity
	}

	tag, err := s.pool.Exec(ctx, query,
		t.ID,
		t.Leg1.ProductType, t.Leg1.TriggerPrice, t.Leg1.OrderPrice, t.Leg1.Quantity,
		leg2Product, leg2Trigger, leg2Order, leg2Qty,
		t.ReferencePrice, t.ReferencePriceSetAt, string(t.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update trigger %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single trigger by ID.
func (s *TriggerStore) GetByID(ctx context.Context, id string) (domain.Trigger, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+triggerSelectCols+` FROM hmt_gtt_orders WHERE id = $1`, id)
	t, err := scanTrigger(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Trigger{}, domain.ErrNotFound
		}
		return domain.Trigger{}, fmt.Errorf("postgres: get trigger %s: %w", id, err)
	}
	return t, nil
}

// ListActive returns every trigger currently in the Active status, used
// to rebuild the in-memory index on startup.
func (s *TriggerStore) ListActive(ctx context.Context) ([]domain.Trigger, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+triggerSelectCols+` FROM hmt_gtt_orders WHERE status = $1`, string(domain.TriggerActive))
	if err != nil {
		return nil, fmt.Errorf("postgres: list active triggers: %w", err)
	}
	defer rows.Close()
	return scanTriggerRows(rows)
}

// List returns triggers with pagination and optional time filtering.
func (s *TriggerStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Trigger, error) {
	query := `SELECT ` + triggerSelectCols + ` FROM hmt_gtt_orders WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list triggers: %w", err)
	}
	defer rows.Close()
	return scanTriggerRows(rows)
}

func scanTriggerRows(rows pgx.Rows) ([]domain.Trigger, error) {
	var triggers []domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trigger: %w", err)
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// MarkTriggered unconditionally transitions a trigger to Triggered and
// records the firing audit fields.
func (s *TriggerStore) MarkTriggered(ctx context.Context, id string, leg int, price float64, orderID string) error {
	const query = `
		UPDATE hmt_gtt_orders SET
			status = $2, triggered_leg = $3, triggered_price = $4,
			triggered_order_id = $5, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(domain.TriggerTriggered), leg, price, orderID)
	if err != nil {
		return fmt.Errorf("postgres: mark triggered %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed unconditionally transitions a trigger to Failed with a
// human-readable reason.
func (s *TriggerStore) MarkFailed(ctx context.Context, id string, reason string) error {
	const query = `
		UPDATE hmt_gtt_orders SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(domain.TriggerFailed), reason)
	if err != nil {
		return fmt.Errorf("postgres: mark failed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CancelIfActive transitions a trigger to Cancelled only if its current
// status is still Active, the atomicity guard that keeps an OCO sibling
// from firing after its pair has already resolved.
func (s *TriggerStore) CancelIfActive(ctx context.Context, id string, reason string) (bool, error) {
	const query = `
		UPDATE hmt_gtt_orders SET status = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, id, string(domain.TriggerActive), string(domain.TriggerCancelled), reason)
	if err != nil {
		return false, fmt.Errorf("postgres: cancel if active %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
