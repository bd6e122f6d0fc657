//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"ssot/internal/platform/postgres"
)

// PostgresContainer is a migrated PostgreSQL instance shared by integration suites.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

func startPostgres() (*PostgresContainer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ssot"),
		tcpostgres.WithUsername("ssot"),
		tcpostgres.WithPassword("ssot"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connection string: %w", err)
	}
	db, err := postgres.Open(ctx, url, postgres.DefaultOptions)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if _, err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &PostgresContainer{Container: container, URL: url, DB: db}, nil
}

// TruncateTables empties the named tables. TRUNCATE bypasses the row triggers
// that keep audit_entries append-only.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" CASCADE")
	return err
}

// ResetCalibration returns the calibration tables to their freshly migrated state.
func (p *PostgresContainer) ResetCalibration(ctx context.Context) error {
	if err := p.TruncateTables(ctx, "calibration_parameters"); err != nil {
		return err
	}
	_, err := p.DB.ExecContext(ctx, `UPDATE calibration_meta SET version = 0 WHERE id = 1`)
	return err
}

// Exec runs a statement, for fixtures.
func (p *PostgresContainer) Exec(ctx context.Context, query string, args ...any) error {
	_, err := p.DB.ExecContext(ctx, query, args...)
	return err
}
