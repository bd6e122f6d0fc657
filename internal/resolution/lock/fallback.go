package lock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ssot/pkg/platform/circuit"
	"ssot/pkg/platform/sentinel"
)

const defaultRetryInterval = 5 * time.Second

// Fallback uses a shared primary locker (Redis) and degrades to a local one
// while the primary is unreachable. Degraded mode only weakens the fast-conflict
// path across instances; the store's conditional transition still decides.
type Fallback struct {
	primary   Locker
	secondary Locker
	breaker   *circuit.Breaker
	logger    *slog.Logger
	retry     time.Duration
	now       func() time.Time

	mu        sync.Mutex
	lastRetry time.Time
}

type FallbackOption func(*Fallback)

func WithRetryInterval(d time.Duration) FallbackOption {
	return func(f *Fallback) {
		if d > 0 {
			f.retry = d
		}
	}
}

func WithFallbackLogger(logger *slog.Logger) FallbackOption {
	return func(f *Fallback) {
		f.logger = logger
	}
}

func NewFallback(primary, secondary Locker, breaker *circuit.Breaker, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		primary:   primary,
		secondary: secondary,
		breaker:   breaker,
		logger:    slog.Default(),
		retry:     defaultRetryInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fallback) Acquire(ctx context.Context, key string) (Release, error) {
	if f.breaker.IsOpen() && !f.shouldRetry() {
		return f.secondary.Acquire(ctx, key)
	}

	release, err := f.primary.Acquire(ctx, key)
	if err != nil && errors.Is(err, sentinel.ErrUnavailable) {
		useFallback, change := f.breaker.RecordFailure()
		if change.Opened {
			f.logger.WarnContext(ctx, "resolution lock degraded to local",
				"breaker", f.breaker.Name(),
				"error", err,
			)
		}
		if useFallback {
			return f.secondary.Acquire(ctx, key)
		}
		return nil, err
	}

	// a held key still proves the primary is reachable
	if _, change := f.breaker.RecordSuccess(); change.Closed {
		f.logger.InfoContext(ctx, "resolution lock restored", "breaker", f.breaker.Name())
	}
	return release, err
}

func (f *Fallback) shouldRetry() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if now.Sub(f.lastRetry) < f.retry {
		return false
	}
	f.lastRetry = now
	return true
}
