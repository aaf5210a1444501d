package statewriter

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

type fakeTriggerStore struct {
	domain.TriggerStore
	status          map[string]domain.TriggerStatus
	markTriggeredErr error
	markFailedErr    error
	cancelErr        error
}

func newFakeTriggerStore() *fakeTriggerStore {
	return &fakeTriggerStore{status: make(map[string]domain.TriggerStatus)}
}

func (f *fakeTriggerStore) MarkTriggered(ctx context.Context, id string, leg int, price float64, orderID string) error {
	if f.markTriggeredErr != nil {
		return f.markTriggeredErr
	}
	f.status[id] = domain.TriggerTriggered
	return nil
}

func (f *fakeTriggerStore) MarkFailed(ctx context.Context, id string, reason string) error {
	if f.markFailedErr != nil {
		return f.markFailedErr
	}
	f.status[id] = domain.TriggerFailed
	return nil
}

func (f *fakeTriggerStore) CancelIfActive(ctx context.Context, id string, reason string) (bool, error) {
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	if f.status[id] != domain.TriggerActive && f.status[id] != "" {
		return false, nil
	}
	f.status[id] = domain.TriggerCancelled
	return true, nil
}

type fakeTradeLogStore struct {
	domain.TradeLogStore
	entries []domain.TradeLogEntry
	err     error
}

func (f *fakeTradeLogStore) Append(ctx context.Context, entry domain.TradeLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMarkTriggeredSetsStatus(t *testing.T) {
	triggers := newFakeTriggerStore()
	w := New(triggers, &fakeTradeLogStore{}, testLogger())

	if err := w.MarkTriggered(context.Background(), "t1", 1, 101.5, "ord-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if triggers.status["t1"] != domain.TriggerTriggered {
		t.Fatalf("expected triggered status, got %s", triggers.status["t1"])
	}
}

func TestMarkFailedSetsStatus(t *testing.T) {
	triggers := newFakeTriggerStore()
	w := New(triggers, &fakeTradeLogStore{}, testLogger())

	if err := w.MarkFailed(context.Background(), "t1", "risk"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if triggers.status["t1"] != domain.TriggerFailed {
		t.Fatalf("expected failed status, got %s", triggers.status["t1"])
	}
}

func TestCancelSiblingNoOpWhenAlreadyTerminal(t *testing.T) {
	triggers := newFakeTriggerStore()
	triggers.status["leg2"] = domain.TriggerTriggered
	w := New(triggers, &fakeTradeLogStore{}, testLogger())

	applied, err := w.CancelSibling(context.Background(), "leg2", "sibling fired")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Fatal("expected cancel to be a no-op for an already-terminal sibling")
	}
}

func TestCancelSiblingAppliesWhenActive(t *testing.T) {
	triggers := newFakeTriggerStore()
	triggers.status["leg2"] = domain.TriggerActive
	w := New(triggers, &fakeTradeLogStore{}, testLogger())

	applied, err := w.CancelSibling(context.Background(), "leg2", "sibling fired")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatal("expected cancel to apply for an active sibling")
	}
	if triggers.status["leg2"] != domain.TriggerCancelled {
		t.Fatalf("expected cancelled status, got %s", triggers.status["leg2"])
	}
}

func TestAppendTradeLogPropagatesError(t *testing.T) {
	logs := &fakeTradeLogStore{err: context.DeadlineExceeded}
	w := New(newFakeTriggerStore(), logs, testLogger())

	err := w.AppendTradeLog(context.Background(), domain.TradeLogEntry{TriggerID: "t1"})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
