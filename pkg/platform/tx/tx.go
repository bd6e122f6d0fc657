package tx

import (
	"context"
	"database/sql"
)

type sqlTxKey struct{}

// Executor is the query surface shared by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx binds a SQL transaction to ctx so PostgreSQL stores join it.
func WithTx(ctx context.Context, sqlTx *sql.Tx) context.Context {
	if sqlTx == nil {
		return ctx
	}
	return context.WithValue(ctx, sqlTxKey{}, sqlTx)
}

// From returns the SQL transaction bound to ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	sqlTx, ok := ctx.Value(sqlTxKey{}).(*sql.Tx)
	return sqlTx, ok
}

// ExecutorFor picks the transaction bound to ctx, falling back to db for
// statements that run on their own.
func ExecutorFor(ctx context.Context, db *sql.DB) Executor {
	if sqlTx, ok := From(ctx); ok {
		return sqlTx
	}
	return db
}
