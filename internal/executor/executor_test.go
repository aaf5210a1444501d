package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

type stubBroker struct {
	calls     int
	responses []domain.OrderResult
	err       error
}

func (s *stubBroker) PlaceOrder(ctx context.Context, payload domain.OrderPayload) (domain.OrderResult, error) {
	idx := s.calls
	s.calls++
	if s.err != nil {
		return domain.OrderResult{}, s.err
	}
	if idx >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[idx], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteSuccessOnFirstAttempt(t *testing.T) {
	b := &stubBroker{responses: []domain.OrderResult{{Success: true, OrderID: "ord-1"}}}
	e := New(b, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, testLogger())

	res, err := e.Execute(context.Background(), domain.ExecutionDescriptor{TriggerID: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.OrderID != "ord-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if b.calls != 1 {
		t.Fatalf("expected 1 call, got %d", b.calls)
	}
}

func TestExecuteNonRetryableAbortsEarly(t *testing.T) {
	b := &stubBroker{responses: []domain.OrderResult{
		{Success: false, Message: "Insufficient margin", Retryable: true},
	}}
	e := New(b, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, testLogger())

	res, err := e.Execute(context.Background(), domain.ExecutionDescriptor{TriggerID: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure result")
	}
	if b.calls != 1 {
		t.Fatalf("expected exactly 1 call for non-retryable rejection, got %d", b.calls)
	}
}

func TestExecuteRetriesUpToBudget(t *testing.T) {
	b := &stubBroker{responses: []domain.OrderResult{
		{Success: false, Message: "temporary outage", Retryable: true},
		{Success: false, Message: "temporary outage", Retryable: true},
		{Success: true, OrderID: "ord-2"},
	}}
	e := New(b, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, testLogger())

	res, err := e.Execute(context.Background(), domain.ExecutionDescriptor{TriggerID: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.OrderID != "ord-2" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if b.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", b.calls)
	}
}

func TestExecuteExhaustsRetryBudget(t *testing.T) {
	b := &stubBroker{responses: []domain.OrderResult{
		{Success: false, Message: "temporary outage", Retryable: true},
	}}
	e := New(b, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, testLogger())

	res, err := e.Execute(context.Background(), domain.ExecutionDescriptor{TriggerID: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure after exhausting retries")
	}
	if b.calls != 3 {
		t.Fatalf("expected 3 attempts total, got %d", b.calls)
	}
}
