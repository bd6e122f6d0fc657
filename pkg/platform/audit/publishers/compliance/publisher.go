// Package compliance provides a fail-closed audit publisher.
//
// Emit writes synchronously through the audit store. When called with a
// transactional context the entry commits or rolls back together with the
// business change; if the write fails the caller's operation MUST fail.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	id "ssot/pkg/domain"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/requestcontext"
)

// Publisher emits audit entries with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and appends an entry, filling ID, category, timestamp and
// request ID from the context when they are unset.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) error {
	start := time.Now()

	if entry.Actor == "" {
		return fmt.Errorf("audit entry requires Actor")
	}
	if entry.Action == "" {
		return fmt.Errorf("audit entry requires Action")
	}
	if entry.EntityType == "" || entry.EntityID == "" {
		return fmt.Errorf("audit entry requires EntityType and EntityID")
	}

	if entry.ID.IsNil() {
		entry.ID = id.NewAuditID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	entry.Category = entry.Action.Category()

	if err := p.store.Append(ctx, entry); err != nil {
		p.metrics.IncPersistFailures()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit append failed",
				"action", entry.Action,
				"entity_type", entry.EntityType,
				"entity_id", entry.EntityID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	p.metrics.IncEventsEmitted(entry.Action)
	return nil
}
