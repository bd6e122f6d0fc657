package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"time"

	calservice "ssot/internal/calibration/service"
	calstore "ssot/internal/calibration/store"
	identitystore "ssot/internal/identity/store"
	"ssot/internal/platform/postgres"
	resservice "ssot/internal/resolution/service"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/audit/publishers/compliance"
	auditpostgres "ssot/pkg/platform/audit/store/postgres"
	txcontext "ssot/pkg/platform/tx"
)

// backend is what the commands operate on.
type backend struct {
	db          *sql.DB
	calibration *calservice.Service
	resolution  *resservice.Service
	audits      audit.Store
}

func (b *backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

type openFunc func(ctx context.Context, databaseURL string) (*backend, error)

func openPostgresBackend(ctx context.Context, databaseURL string) (*backend, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required (--database-url or DATABASE_URL)")
	}
	db, err := postgres.Open(ctx, databaseURL, postgres.DefaultOptions)
	if err != nil {
		return nil, err
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := txcontext.NewSQLRunner(db, 10*time.Second)
	audits := auditpostgres.New(db)
	auditor := compliance.New(audits, compliance.WithLogger(quiet))
	cal := calservice.New(calstore.NewPostgres(db), runner, auditor, calservice.WithLogger(quiet))

	return &backend{
		db:          db,
		calibration: cal,
		resolution:  resservice.New(identitystore.NewPostgres(db), runner, cal, auditor, resservice.WithLogger(quiet)),
		audits:      audits,
	}, nil
}
