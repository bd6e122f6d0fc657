package store

import (
	"context"
	"sync"

	"ssot/internal/calibration/models"
	"ssot/internal/matching/comparator"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
)

// InMemoryStore keeps calibration parameters and their version counter in memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	version int64
	params  map[comparator.Field]models.Parameter
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{params: make(map[comparator.Field]models.Parameter)}
}

func (s *InMemoryStore) Version(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, nil
}

func (s *InMemoryStore) Load(_ context.Context) (int64, []models.Parameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Parameter, 0, len(s.params))
	for _, p := range s.params {
		out = append(out, p)
	}
	return s.version, out, nil
}

// Save writes params and bumps the version. It fails with sentinel.ErrConflict
// when the stored version is no longer expectedVersion. With replace, fields
// absent from params are removed.
func (s *InMemoryStore) Save(ctx context.Context, expectedVersion int64, params []models.Parameter, replace bool) (int64, error) {
	saved := append([]models.Parameter(nil), params...)
	next := expectedVersion + 1

	if j, ok := txcontext.JournalFrom(ctx); ok {
		current, err := s.Version(ctx)
		if err != nil {
			return 0, err
		}
		if current != expectedVersion {
			return 0, sentinel.ErrConflict
		}
		j.Defer(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.applyLocked(next, saved, replace)
		})
		return next, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != expectedVersion {
		return 0, sentinel.ErrConflict
	}
	s.applyLocked(next, saved, replace)
	return next, nil
}

func (s *InMemoryStore) applyLocked(version int64, params []models.Parameter, replace bool) {
	if replace {
		s.params = make(map[comparator.Field]models.Parameter, len(params))
	}
	for _, p := range params {
		s.params[p.Field] = p
	}
	s.version = version
}
