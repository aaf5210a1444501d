// Package executor implements the retrying, non-blocking order-dispatch
// path (C4). It is stateless across calls; concurrency is bounded by the
// caller via the Trigger Index's single-flight guard, one in-flight
// attempt per trigger id.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// Broker places a single order against the upstream brokerage API and
// reports the outcome. Implementations translate domain.OrderPayload into
// the broker's wire format (form-encoded POST per spec).
type Broker interface {
	PlaceOrder(ctx context.Context, payload domain.OrderPayload) (domain.OrderResult, error)
}

// Config controls the Executor's retry policy.
type Config struct {
	MaxRetries      int           // additional attempts beyond the first; negative values fall back to 2
	RetryBackoff    time.Duration // base backoff; default 1s
}

// Executor dispatches one execution descriptor to the broker with bounded
// retry and error classification.
type Executor struct {
	broker Broker
	cfg    Config
	logger *slog.Logger
}

// New creates an Executor backed by broker.
func New(broker Broker, cfg Config, logger *slog.Logger) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Executor{
		broker: broker,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Execute dispatches descriptor to the broker, retrying up to
// MaxRetries+1 total attempts with exponential backoff
// (RetryBackoff * 2^(attempt-1), attempt starting at 1) unless the
// broker's rejection is classified non-retryable, in which case it aborts
// after the first attempt.
func (e *Executor) Execute(ctx context.Context, desc domain.ExecutionDescriptor) (domain.OrderResult, error) {
	log := e.logger.With(
		slog.String("trigger_id", desc.TriggerID),
		slog.Int("leg", desc.TriggeredLeg),
	)

	var last domain.OrderResult
	var lastErr error

	maxAttempts := e.cfg.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := e.broker.PlaceOrder(ctx, desc.OrderPayload)
		if err != nil {
			lastErr = err
			log.Warn("broker call failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		} else {
			last = result
			lastErr = nil
			if result.Success {
				log.Info("order placed",
					slog.Int("attempt", attempt),
					slog.String("order_id", result.OrderID),
				)
				return result, nil
			}

			log.Warn("order rejected",
				slog.Int("attempt", attempt),
				slog.String("message", result.Message),
			)

			if !result.Retryable || isNonRetryable(result.Message) {
				return result, nil
			}
		}

		if attempt == maxAttempts {
			break
		}

		backoff := e.cfg.RetryBackoff * time.Duration(1<<uint(attempt-1))
		select {
		case <-ctx.Done():
			return domain.OrderResult{}, fmt.Errorf("executor: execute %s: %w", desc.TriggerID, ctx.Err())
		case <-time.After(backoff):
		}
	}

	if lastErr != nil {
		return domain.OrderResult{}, fmt.Errorf("executor: execute %s: %w", desc.TriggerID, lastErr)
	}
	return last, nil
}
