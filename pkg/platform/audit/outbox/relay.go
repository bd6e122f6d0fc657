// Package outbox relays committed audit entries from the PostgreSQL outbox table
// to a Kafka topic consumed by reporting and data-quality pipelines.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Message is one pending outbox row.
type Message struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Relay polls the outbox and publishes rows at least once. Rows are locked with
// SKIP LOCKED so several server instances can relay concurrently.
type Relay struct {
	db        *sql.DB
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func New(db *sql.DB, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		db:        db,
		producer:  producer,
		topic:     topic,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run publishes batches until ctx is cancelled. Batches run on every tick and
// whenever wake fires; a nil or closed wake leaves the relay on the ticker.
func (r *Relay) Run(ctx context.Context, wake <-chan struct{}) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
		case <-ticker.C:
		}
		if err := r.drain(ctx); err != nil {
			return err
		}
	}
}

// drain publishes full batches back to back so a burst clears without waiting
// for further ticks.
func (r *Relay) drain(ctx context.Context) error {
	for {
		n, err := r.PublishBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.ErrorContext(ctx, "outbox relay batch failed", "error", err)
			return nil
		}
		if n > 0 {
			r.logger.DebugContext(ctx, "outbox relay published", "count", n)
		}
		if n < r.batchSize {
			return nil
		}
	}
}

// PublishBatch publishes one batch and marks it published. A produce failure
// rolls the batch back for the next attempt.
func (r *Relay) PublishBatch(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox: %w", err)
	}
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox: %w", err)
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, len(msgs))
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		records[i] = ToRecord(r.topic, m)
		ids[i] = m.ID
	}
	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, fmt.Errorf("produce audit records: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`,
		pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(msgs), nil
}

// ToRecord keys records by aggregate so entries about one entity stay ordered
// within a partition.
func ToRecord(topic string, m Message) *kgo.Record {
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(m.AggregateID),
		Value: m.Payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(m.EventType)},
			{Key: "aggregate_type", Value: []byte(m.AggregateType)},
			{Key: "outbox_id", Value: []byte(m.ID)},
		},
	}
}

// EnsureTopic creates the audit topic when it does not exist.
func EnsureTopic(ctx context.Context, admin *kadm.Client, topic string, partitions int32, replication int16) error {
	resp, err := admin.CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		if errors.Is(err, kerr.TopicAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
