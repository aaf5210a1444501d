package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// RiskService gates a fired trigger against the user's configured limits
// immediately before the Executor is invoked. It is a thin read-through
// over the risk limit store; the counters themselves are only ever
// incremented here, never reset (reset is an out-of-band operational job).
type RiskService struct {
	limits domain.RiskLimitStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRiskService creates a RiskService backed by limits.
func NewRiskService(limits domain.RiskLimitStore, logger *slog.Logger) *RiskService {
	return &RiskService{
		limits: limits,
		logger: logger.With(slog.String("component", "risk_service")),
		now:    time.Now,
	}
}

// Check loads the user's risk limits and returns a non-empty reason if
// trading is currently blocked. An empty reason means the caller may
// proceed to place the order.
func (s *RiskService) Check(ctx context.Context, userID string) (string, error) {
	limits, err := s.limits.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("risk_service: get risk limits for %s: %w", userID, err)
	}

	nowHHMM := s.now().Format("15:04")
	if reason := limits.Breach(nowHHMM); reason != "" {
		s.logger.Warn("trade blocked by risk limits",
			slog.String("user_id", userID),
			slog.String("reason", reason),
		)
		return reason, nil
	}
	return "", nil
}

// RecordFire increments the user's daily trade counter after a
// successful fire. Failure to record is logged but never blocks the
// caller; the fire has already happened.
func (s *RiskService) RecordFire(ctx context.Context, userID string) {
	if err := s.limits.IncrementDailyTradeCount(ctx, userID); err != nil {
		s.logger.Warn("failed to increment daily trade count",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
