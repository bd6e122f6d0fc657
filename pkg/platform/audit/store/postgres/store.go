package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "ssot/pkg/domain"
	audit "ssot/pkg/platform/audit"
	txcontext "ssot/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL. Each append writes the queryable
// audit_entries row and an outbox row in the caller's transaction; the outbox
// relay publishes the latter to Kafka for downstream reporting.
// audit_entries rejects UPDATE and DELETE at the schema level.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

// Append inserts the entry and its outbox message.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, category, occurred_at, actor, action,
			entity_type, entity_id, related_id, old_data, new_data, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(entry.ID),
		string(entry.Category),
		entry.Timestamp,
		entry.Actor,
		string(entry.Action),
		string(entry.EntityType),
		entry.EntityID,
		nullString(entry.RelatedID),
		nullJSON(entry.OldData),
		nullJSON(entry.NewData),
		entry.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		string(entry.EntityType),
		entry.EntityID,
		string(entry.Action),
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, category, occurred_at, actor, action,
		   entity_type, entity_id, related_id, old_data, new_data, request_id
	FROM audit_entries
`

// ListRecent returns the N most recent entries.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectColumns+`
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListByEntity returns entries about or referencing the entity.
func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectColumns+`
		WHERE (entity_type = $1 AND entity_id = $2) OR related_id = $2
		ORDER BY occurred_at DESC, seq DESC
	`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			entryID    uuid.UUID
			category   string
			action     string
			entityType string
			relatedID  sql.NullString
			oldData    []byte
			newData    []byte
		)
		if err := rows.Scan(&entryID, &category, &e.Timestamp, &e.Actor, &action,
			&entityType, &e.EntityID, &relatedID, &oldData, &newData, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.AuditID(entryID)
		e.Category = audit.EventCategory(category)
		e.Action = audit.Action(action)
		e.EntityType = audit.EntityType(entityType)
		e.RelatedID = relatedID.String
		if len(oldData) > 0 {
			e.OldData = json.RawMessage(oldData)
		}
		if len(newData) > 0 {
			e.NewData = json.RawMessage(newData)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
