package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// NotifyChannel is raised by a statement trigger on outbox inserts. Postgres
// delivers it only after the inserting transaction commits.
const NotifyChannel = "audit_outbox"

const reconnectDelay = 5 * time.Second

// Listen holds a dedicated connection LISTENing on NotifyChannel and signals
// the returned channel once per notification burst. The channel has room for
// one pending signal and closes when ctx is done. A dropped connection is
// re-established every reconnectDelay until it succeeds.
func Listen(ctx context.Context, databaseURL string, logger *slog.Logger) (<-chan struct{}, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse outbox listener config: %w", err)
	}
	conn, err := listen(ctx, cfg)
	if err != nil {
		return nil, err
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer close(wake)
		for {
			if conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectDelay):
				}
				c, err := listen(ctx, cfg)
				if err != nil {
					logger.WarnContext(ctx, "outbox listener reconnect failed", "error", err)
					continue
				}
				conn = c
				signal(wake)
			}
			if _, err := conn.WaitForNotification(ctx); err != nil {
				_ = conn.Close(context.Background())
				conn = nil
				if ctx.Err() != nil {
					return
				}
				logger.WarnContext(ctx, "outbox listener connection lost", "error", err)
				continue
			}
			signal(wake)
		}
	}()
	return wake, nil
}

func listen(ctx context.Context, cfg *pgx.ConnConfig) (*pgx.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect outbox listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	return conn, nil
}

func signal(wake chan<- struct{}) {
	select {
	case wake <- struct{}{}:
	default:
	}
}
