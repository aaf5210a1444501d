// Package statewriter issues the atomic status transitions the firing
// pipeline relies on (C5): mark a trigger triggered or failed, cancel a
// sibling leg conditionally, and append a best-effort trade log row.
package statewriter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// Writer persists trigger status transitions against the durable store.
type Writer struct {
	triggers  domain.TriggerStore
	tradeLogs domain.TradeLogStore
	logger    *slog.Logger
}

// New creates a Writer backed by the given stores.
func New(triggers domain.TriggerStore, tradeLogs domain.TradeLogStore, logger *slog.Logger) *Writer {
	return &Writer{
		triggers:  triggers,
		tradeLogs: tradeLogs,
		logger:    logger.With(slog.String("component", "statewriter")),
	}
}

// MarkTriggered unconditionally transitions a trigger to Triggered and
// records the firing audit fields.
func (w *Writer) MarkTriggered(ctx context.Context, id string, leg int, price float64, orderID string) error {
	if err := w.triggers.MarkTriggered(ctx, id, leg, price, orderID); err != nil {
		return fmt.Errorf("statewriter: mark triggered %s: %w", id, err)
	}
	w.logger.Info("trigger fired",
		slog.String("trigger_id", id),
		slog.Int("leg", leg),
		slog.Float64("price", price),
		slog.String("order_id", orderID),
	)
	return nil
}

// MarkFailed unconditionally transitions a trigger to Failed with a
// human-readable reason.
func (w *Writer) MarkFailed(ctx context.Context, id string, reason string) error {
	if err := w.triggers.MarkFailed(ctx, id, reason); err != nil {
		return fmt.Errorf("statewriter: mark failed %s: %w", id, err)
	}
	w.logger.Warn("trigger failed",
		slog.String("trigger_id", id),
		slog.String("reason", reason),
	)
	return nil
}

// CancelSibling cancels the other leg of a two-leg trigger, but only if it
// is still active. It reports whether the cancel actually applied; false
// means the sibling already transitioned out of active on its own (it
// fired first), which is the expected OCO race outcome, not an error.
func (w *Writer) CancelSibling(ctx context.Context, siblingID string, reason string) (bool, error) {
	applied, err := w.triggers.CancelIfActive(ctx, siblingID, reason)
	if err != nil {
		return false, fmt.Errorf("statewriter: cancel sibling %s: %w", siblingID, err)
	}
	if applied {
		w.logger.Info("sibling leg cancelled",
			slog.String("trigger_id", siblingID),
			slog.String("reason", reason),
		)
	} else {
		w.logger.Info("sibling leg cancel was a no-op, already terminal",
			slog.String("trigger_id", siblingID),
		)
	}
	return applied, nil
}

// AppendTradeLog writes a best-effort audit row for a fired leg. Callers
// should log and continue on error rather than fail the firing pipeline.
func (w *Writer) AppendTradeLog(ctx context.Context, entry domain.TradeLogEntry) error {
	if err := w.tradeLogs.Append(ctx, entry); err != nil {
		return fmt.Errorf("statewriter: append trade log for %s: %w", entry.TriggerID, err)
	}
	return nil
}
