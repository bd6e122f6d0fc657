package tx

import (
	"context"
	"sync"
	"time"

	dErrors "ssot/pkg/domain-errors"
)

type journalKey struct{}

// Journal collects the writes of in-memory stores taking part in a transaction.
// Writes are validated when recorded and applied together on commit, so readers
// outside the transaction never observe a partial unit of work.
type Journal struct {
	ops []func()
}

// Defer records a write to apply on commit.
func (j *Journal) Defer(op func()) {
	j.ops = append(j.ops, op)
}

func (j *Journal) apply() {
	for _, op := range j.ops {
		op()
	}
}

// JournalFrom returns the journal of the enclosing in-memory transaction, if any.
func JournalFrom(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalKey{}).(*Journal)
	return j, ok
}

// MemoryRunner serializes in-memory units of work behind one writer lock.
// Validation performed while a journal is open sees committed state that no
// other writer can change until the journal is applied.
type MemoryRunner struct {
	mu      sync.Mutex
	timeout time.Duration
}

// NewMemoryRunner returns a runner for in-memory stores. A zero timeout uses DefaultTimeout.
func NewMemoryRunner(timeout time.Duration) *MemoryRunner {
	return &MemoryRunner{timeout: timeout}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := JournalFrom(ctx); ok {
		return fn(ctx)
	}

	ctx, cancel, err := bound(ctx, r.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	j := &Journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	j.apply()
	return nil
}
