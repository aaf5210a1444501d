package changelistener

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

type fakeIndex struct {
	added   []domain.Trigger
	removed []string
	byID    map[string]domain.Trigger
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{byID: make(map[string]domain.Trigger)}
}

func (f *fakeIndex) Add(t domain.Trigger) {
	f.added = append(f.added, t)
	f.byID[t.ID] = t
}

func (f *fakeIndex) Remove(id string) {
	f.removed = append(f.removed, id)
	delete(f.byID, id)
}

func (f *fakeIndex) Get(id string) (domain.Trigger, bool) {
	t, ok := f.byID[id]
	return t, ok
}

type fakeTriggerGetter struct {
	domain.TriggerStore
	triggers map[string]domain.Trigger
}

func (f *fakeTriggerGetter) GetByID(ctx context.Context, id string) (domain.Trigger, error) {
	t, ok := f.triggers[id]
	if !ok {
		return domain.Trigger{}, domain.ErrNotFound
	}
	return t, nil
}

type fakeFeed struct {
	subscribed []uint32
}

func (f *fakeFeed) Subscribe(tokens []uint32) error {
	f.subscribed = append(f.subscribed, tokens...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleNotificationDeleteRemovesFromIndex(t *testing.T) {
	idx := newFakeIndex()
	idx.byID["t1"] = domain.Trigger{ID: "t1"}

	l := New(nil, &fakeTriggerGetter{}, idx, nil, testLogger())
	l.handleNotification(context.Background(), `{"op":"DELETE","id":"t1"}`)

	if _, ok := idx.Get("t1"); ok {
		t.Fatal("expected trigger to be removed from index")
	}
}

func TestHandleNotificationInsertActiveAddsAndSubscribes(t *testing.T) {
	idx := newFakeIndex()
	store := &fakeTriggerGetter{triggers: map[string]domain.Trigger{
		"t1": {ID: "t1", Status: domain.TriggerActive, InstrumentToken: 42},
	}}
	feed := &fakeFeed{}

	l := New(nil, store, idx, feed, testLogger())
	l.handleNotification(context.Background(), `{"op":"INSERT","id":"t1"}`)

	if _, ok := idx.Get("t1"); !ok {
		t.Fatal("expected trigger to be added to index")
	}
	if len(feed.subscribed) != 1 || feed.subscribed[0] != 42 {
		t.Fatalf("expected subscribe([42]), got %v", feed.subscribed)
	}
}

func TestHandleNotificationUpdateToNonActiveRemoves(t *testing.T) {
	idx := newFakeIndex()
	idx.byID["t1"] = domain.Trigger{ID: "t1", Status: domain.TriggerActive}
	store := &fakeTriggerGetter{triggers: map[string]domain.Trigger{
		"t1": {ID: "t1", Status: domain.TriggerTriggered},
	}}

	l := New(nil, store, idx, nil, testLogger())
	l.handleNotification(context.Background(), `{"op":"UPDATE","id":"t1"}`)

	if _, ok := idx.Get("t1"); ok {
		t.Fatal("expected trigger to be removed once no longer active")
	}
}

func TestHandleNotificationUpdateAlreadyIndexedDoesNotResubscribe(t *testing.T) {
	idx := newFakeIndex()
	idx.byID["t1"] = domain.Trigger{ID: "t1", Status: domain.TriggerActive, InstrumentToken: 7}
	store := &fakeTriggerGetter{triggers: map[string]domain.Trigger{
		"t1": {ID: "t1", Status: domain.TriggerActive, InstrumentToken: 7},
	}}
	feed := &fakeFeed{}

	l := New(nil, store, idx, feed, testLogger())
	l.handleNotification(context.Background(), `{"op":"UPDATE","id":"t1"}`)

	if len(feed.subscribed) != 0 {
		t.Fatalf("expected no resubscribe for an already-indexed instrument, got %v", feed.subscribed)
	}
}

func TestHandleNotificationMalformedPayloadIsIgnored(t *testing.T) {
	idx := newFakeIndex()
	l := New(nil, &fakeTriggerGetter{}, idx, nil, testLogger())

	l.handleNotification(context.Background(), `not json`)

	if len(idx.added) != 0 || len(idx.removed) != 0 {
		t.Fatal("expected malformed payload to be a no-op")
	}
}

func TestHandleNotificationDeletedUpstreamRemovesFromIndex(t *testing.T) {
	idx := newFakeIndex()
	idx.byID["t1"] = domain.Trigger{ID: "t1", Status: domain.TriggerActive}

	l := New(nil, &fakeTriggerGetter{}, idx, nil, testLogger())
	l.handleNotification(context.Background(), `{"op":"UPDATE","id":"t1"}`)

	if _, ok := idx.Get("t1"); ok {
		t.Fatal("expected trigger missing from store to be removed from index")
	}
}
