package store

import (
	"context"
	"database/sql"
	"fmt"

	"ssot/internal/calibration/models"
	"ssot/internal/matching/comparator"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
)

// PostgresStore persists calibration in calibration_parameters, with the version
// counter in the single-row calibration_meta table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

func (s *PostgresStore) Version(ctx context.Context) (int64, error) {
	var version int64
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT version FROM calibration_meta WHERE id = 1`).Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("read calibration version: %w", err)
	}
	return version, nil
}

// Load reads the version and every parameter in one statement so the pair
// always comes from the same committed calibration.
func (s *PostgresStore) Load(ctx context.Context) (int64, []models.Parameter, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT m.version, p.field_name, p.m_probability, p.u_probability, p.updated_at
		FROM calibration_meta m
		LEFT JOIN calibration_parameters p ON TRUE
		WHERE m.id = 1
		ORDER BY p.field_name
	`)
	if err != nil {
		return 0, nil, fmt.Errorf("query calibration: %w", err)
	}
	defer rows.Close()

	var (
		version int64
		params  []models.Parameter
	)
	for rows.Next() {
		var (
			field     sql.NullString
			m, u      sql.NullFloat64
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&version, &field, &m, &u, &updatedAt); err != nil {
			return 0, nil, fmt.Errorf("scan calibration parameter: %w", err)
		}
		if !field.Valid {
			continue
		}
		params = append(params, models.Parameter{
			Field:     comparator.Field(field.String),
			M:         m.Float64,
			U:         u.Float64,
			UpdatedAt: updatedAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterate calibration parameters: %w", err)
	}
	return version, params, nil
}

// Save must run inside a transaction; the meta row lock serializes writers
// across instances.
func (s *PostgresStore) Save(ctx context.Context, expectedVersion int64, params []models.Parameter, replace bool) (int64, error) {
	exec := s.execer(ctx)

	var current int64
	err := exec.QueryRowContext(ctx, `SELECT version FROM calibration_meta WHERE id = 1 FOR UPDATE`).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("lock calibration version: %w", err)
	}
	if current != expectedVersion {
		return 0, sentinel.ErrConflict
	}

	if replace {
		if _, err := exec.ExecContext(ctx, `DELETE FROM calibration_parameters`); err != nil {
			return 0, fmt.Errorf("clear calibration parameters: %w", err)
		}
	}
	for _, p := range params {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO calibration_parameters (field_name, m_probability, u_probability, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (field_name) DO UPDATE
			SET m_probability = EXCLUDED.m_probability,
				u_probability = EXCLUDED.u_probability,
				updated_at = EXCLUDED.updated_at
		`, string(p.Field), p.M, p.U, p.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("upsert calibration parameter %s: %w", p.Field, err)
		}
	}

	next := current + 1
	if _, err := exec.ExecContext(ctx, `UPDATE calibration_meta SET version = $1, updated_at = NOW() WHERE id = 1`, next); err != nil {
		return 0, fmt.Errorf("bump calibration version: %w", err)
	}
	return next, nil
}
