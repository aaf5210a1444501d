package triggerindex

import (
	"testing"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

func activeTrigger(id string, token uint32) domain.Trigger {
	return domain.Trigger{ID: id, InstrumentToken: token, Status: domain.TriggerActive}
}

func TestAddOnlyIndexesActive(t *testing.T) {
	idx := New()
	idx.Add(domain.Trigger{ID: "t1", InstrumentToken: 1, Status: domain.TriggerCancelled})
	if idx.Count() != 0 {
		t.Fatalf("expected cancelled trigger to be skipped, count=%d", idx.Count())
	}

	idx.Add(activeTrigger("t2", 1))
	if idx.Count() != 1 {
		t.Fatalf("expected 1 indexed trigger, got %d", idx.Count())
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	idx := New()
	idx.Add(activeTrigger("t1", 256265))
	idx.Add(activeTrigger("t2", 256265))

	if got := len(idx.ForInstrument(256265)); got != 2 {
		t.Fatalf("expected 2 triggers for instrument, got %d", got)
	}

	idx.Remove("t1")
	if got := len(idx.ForInstrument(256265)); got != 1 {
		t.Fatalf("expected 1 trigger after remove, got %d", got)
	}

	idx.Remove("t2")
	if got := len(idx.ForInstrument(256265)); got != 0 {
		t.Fatalf("expected empty bucket after removing last trigger, got %d", got)
	}
	if _, ok := idx.byInstrument[256265]; ok {
		t.Fatalf("expected bucket to be pruned on last removal")
	}
	if idx.Count() != 0 {
		t.Fatalf("index should be empty after add/remove round trip, count=%d", idx.Count())
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	idx := New()
	idx.Remove("missing")
	idx.Add(activeTrigger("t1", 1))
	idx.Remove("t1")
	idx.Remove("t1")
	if idx.Count() != 0 {
		t.Fatalf("expected count 0, got %d", idx.Count())
	}
}

func TestMarkProcessingSingleFlight(t *testing.T) {
	idx := New()
	idx.Add(activeTrigger("t1", 1))

	if !idx.MarkProcessing("t1") {
		t.Fatalf("expected first markProcessing to succeed")
	}
	if idx.MarkProcessing("t1") {
		t.Fatalf("expected second markProcessing to fail while in flight")
	}

	idx.UnmarkProcessing("t1")
	if !idx.MarkProcessing("t1") {
		t.Fatalf("expected markProcessing to succeed again after unmark")
	}
}

func TestOcoSibling(t *testing.T) {
	idx := New()
	parent := "group-1"
	leg1 := domain.Trigger{ID: "leg1", InstrumentToken: 1, Status: domain.TriggerActive, ParentID: &parent}
	leg2 := domain.Trigger{ID: "leg2", InstrumentToken: 1, Status: domain.TriggerActive, ParentID: &parent}
	idx.Add(leg1)
	idx.Add(leg2)

	sibling, ok := idx.OcoSibling("leg1")
	if !ok || sibling != "leg2" {
		t.Fatalf("expected leg2 as sibling of leg1, got %q ok=%v", sibling, ok)
	}

	single := activeTrigger("solo", 2)
	idx.Add(single)
	if _, ok := idx.OcoSibling("solo"); ok {
		t.Fatalf("single-leg trigger should have no sibling")
	}
}

func TestSubscribedInstrumentsDistinct(t *testing.T) {
	idx := New()
	idx.Add(activeTrigger("t1", 1))
	idx.Add(activeTrigger("t2", 1))
	idx.Add(activeTrigger("t3", 2))

	tokens := idx.SubscribedInstruments()
	if len(tokens) != 2 {
		t.Fatalf("expected 2 distinct instruments, got %d", len(tokens))
	}
}
