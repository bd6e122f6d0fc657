// Package lock provides the per-submission resolution lock. The lock only
// turns concurrent attempts into fast conflicts; the conditional status
// transition in the store remains the authority on who won.
package lock

import (
	"context"
	"sync"
)

// Release gives a held lock back. Releasing twice is harmless.
type Release func(ctx context.Context) error

// Locker acquires named, non-blocking locks. Acquire returns
// sentinel.ErrConflict when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Memory is an in-process Locker for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) Acquire(_ context.Context, key string) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.held[key]; busy {
		return nil, errHeld(key)
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
		return nil
	}, nil
}
