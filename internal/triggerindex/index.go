// Package triggerindex is the in-memory store of active triggers keyed
// by instrument, with a per-trigger single-flight execution guard (C1).
// The store owns durable truth; the index is a cache the Change Listener
// can rebuild at any moment.
package triggerindex

import (
	"sync"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// Index maintains byId, byInstrument and inFlight mappings behind a
// single mutex. All operations are O(1) or O(triggers-per-instrument).
type Index struct {
	mu           sync.Mutex
	byId         map[string]domain.Trigger
	byInstrument map[uint32]map[string]struct{}
	inFlight     map[string]struct{}
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		byId:         make(map[string]domain.Trigger),
		byInstrument: make(map[uint32]map[string]struct{}),
		inFlight:     make(map[string]struct{}),
	}
}

// Add indexes trigger into byId and byInstrument, but only if its status
// is Active. Re-adding an existing id replaces its record.
func (idx *Index) Add(t domain.Trigger) {
	if t.Status != domain.TriggerActive {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.byId[t.ID]; ok {
		idx.removeFromInstrumentLocked(existing.InstrumentToken, existing.ID)
	}

	idx.byId[t.ID] = t
	bucket, ok := idx.byInstrument[t.InstrumentToken]
	if !ok {
		bucket = make(map[string]struct{})
		idx.byInstrument[t.InstrumentToken] = bucket
	}
	bucket[t.ID] = struct{}{}
}

// Remove deletes id from all maps. Idempotent.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	t, ok := idx.byId[id]
	if !ok {
		delete(idx.inFlight, id)
		return
	}
	delete(idx.byId, id)
	idx.removeFromInstrumentLocked(t.InstrumentToken, id)
	delete(idx.inFlight, id)
}

// removeFromInstrumentLocked prunes id from its instrument bucket,
// deleting the bucket entirely once it is empty. Callers must hold mu.
func (idx *Index) removeFromInstrumentLocked(token uint32, id string) {
	bucket, ok := idx.byInstrument[token]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(idx.byInstrument, token)
	}
}

// ForInstrument returns a snapshot slice of triggers indexed under token,
// safe to iterate while concurrent mutations happen on the index.
func (idx *Index) ForInstrument(token uint32) []domain.Trigger {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket, ok := idx.byInstrument[token]
	if !ok || len(bucket) == 0 {
		return nil
	}

	out := make([]domain.Trigger, 0, len(bucket))
	for id := range bucket {
		out = append(out, idx.byId[id])
	}
	return out
}

// MarkProcessing atomically inserts id into inFlight, returning true iff
// the caller is now the sole processor.
func (idx *Index) MarkProcessing(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.inFlight[id]; ok {
		return false
	}
	idx.inFlight[id] = struct{}{}
	return true
}

// UnmarkProcessing removes id from inFlight.
func (idx *Index) UnmarkProcessing(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.inFlight, id)
}

// OcoSibling returns the other leg of id's two-leg pair (same ParentID,
// different id), or false if id is not part of a pair currently indexed.
func (idx *Index) OcoSibling(id string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	t, ok := idx.byId[id]
	if !ok || t.ParentID == nil {
		return "", false
	}
	for otherID, other := range idx.byId {
		if otherID == id {
			continue
		}
		if other.ParentID != nil && *other.ParentID == *t.ParentID {
			return otherID, true
		}
	}
	return "", false
}

// SubscribedInstruments returns the distinct instrument tokens currently
// indexed, used for feed subscription.
func (idx *Index) SubscribedInstruments() []uint32 {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]uint32, 0, len(idx.byInstrument))
	for token := range idx.byInstrument {
		out = append(out, token)
	}
	return out
}

// Count returns the size of byId.
func (idx *Index) Count() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byId)
}

// Get returns the indexed trigger by id, if present.
func (idx *Index) Get(id string) (domain.Trigger, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	t, ok := idx.byId[id]
	return t, ok
}

// Clear empties the index. Used on Supervisor shutdown so a subsequent
// leadership acquisition starts from a clean rebuild rather than stale
// entries from the previous session.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byId = make(map[string]domain.Trigger)
	idx.byInstrument = make(map[uint32]map[string]struct{})
	idx.inFlight = make(map[string]struct{})
}
