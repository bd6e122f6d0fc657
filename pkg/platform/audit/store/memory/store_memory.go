package memory

import (
	"context"
	"sort"
	"sync"

	audit "ssot/pkg/platform/audit"
	txcontext "ssot/pkg/platform/tx"
)

// InMemoryStore is an append-only audit store. Inside a MemoryRunner transaction
// appends are deferred until commit.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, entry audit.Entry) error {
	if j, ok := txcontext.JournalFrom(ctx); ok {
		j.Defer(func() { s.append(entry) })
		return nil
	}
	s.append(entry)
	return nil
}

func (s *InMemoryStore) append(entry audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// ListRecent returns up to limit entries, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := newestFirst(s.entries)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByEntity returns entries about or referencing the entity, newest first.
func (s *InMemoryStore) ListByEntity(_ context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Entry
	for _, e := range s.entries {
		if e.Touches(entityType, entityID) {
			matched = append(matched, e)
		}
	}
	return newestFirst(matched), nil
}

func newestFirst(entries []audit.Entry) []audit.Entry {
	out := make([]audit.Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
