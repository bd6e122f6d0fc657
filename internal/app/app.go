// Package app assembles the engine from configuration: storage, locking,
// audit, services and the HTTP router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	calhandler "ssot/internal/calibration/handler"
	calmetrics "ssot/internal/calibration/metrics"
	calservice "ssot/internal/calibration/service"
	calstore "ssot/internal/calibration/store"
	identitystore "ssot/internal/identity/store"
	"ssot/internal/platform/config"
	"ssot/internal/platform/metrics"
	"ssot/internal/platform/middleware"
	"ssot/internal/platform/postgres"
	platformredis "ssot/internal/platform/redis"
	reshandler "ssot/internal/resolution/handler"
	"ssot/internal/resolution/lock"
	resmetrics "ssot/internal/resolution/metrics"
	resservice "ssot/internal/resolution/service"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/audit/outbox"
	"ssot/pkg/platform/audit/publishers/compliance"
	auditmemory "ssot/pkg/platform/audit/store/memory"
	auditpostgres "ssot/pkg/platform/audit/store/postgres"
	"ssot/pkg/platform/circuit"
	"ssot/pkg/platform/httputil"
	"ssot/pkg/platform/middleware/admin"
	"ssot/pkg/platform/middleware/metadata"
	request "ssot/pkg/platform/middleware/request"
	"ssot/pkg/platform/middleware/requesttime"
	txcontext "ssot/pkg/platform/tx"
)

// App is a fully wired engine.
type App struct {
	Router      http.Handler
	Calibration *calservice.Service
	Resolution  *resservice.Service
	Engine      *config.EngineLoader
	Audits      audit.Store

	db     *sql.DB
	redis  *platformredis.Client
	kafka  *kgo.Client
	relay  *outbox.Relay
	logger *slog.Logger

	databaseURL string
}

// New builds the engine. PostgreSQL, Redis and Kafka are each optional: without
// DATABASE_URL everything runs in memory, without REDIS_URL resolution locks
// are process-local, and the audit relay needs both a database and brokers.
func New(ctx context.Context, cfg config.Server, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger, databaseURL: cfg.DatabaseURL}
	reg := metrics.NewRegistry()

	engine, err := config.NewEngineLoader(cfg.EngineConfig, logger)
	if err != nil {
		return nil, err
	}
	a.Engine = engine
	current := engine.Current()
	logger.InfoContext(ctx, "engine config loaded",
		"path", cfg.EngineConfig,
		"blocking_keys", current.BlockingKeys,
		"upper", current.Thresholds.Upper,
		"lower", current.Thresholds.Lower,
	)

	var (
		runner     txcontext.Runner
		identities resservice.Store
		calStore   calservice.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.DefaultOptions)
		if err != nil {
			return nil, err
		}
		a.db = db
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			a.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.InfoContext(ctx, "database migrated", "versions", applied)
		}
		runner = txcontext.NewSQLRunner(db, cfg.TxTimeout)
		identities = identitystore.NewPostgres(db)
		calStore = calstore.NewPostgres(db)
		a.Audits = auditpostgres.New(db)
	} else {
		logger.WarnContext(ctx, "DATABASE_URL not set; using in-memory storage")
		runner = txcontext.NewMemoryRunner(cfg.TxTimeout)
		identities = identitystore.NewInMemory()
		calStore = calstore.NewInMemory()
		a.Audits = auditmemory.NewInMemoryStore()
	}

	auditor := compliance.New(a.Audits,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)

	a.Calibration = calservice.New(calStore, runner, auditor,
		calservice.WithLogger(logger),
		calservice.WithMetrics(calmetrics.New(reg)),
	)

	resMetrics := resmetrics.New(reg)
	resMetrics.SetThresholds(current.Thresholds.Upper, current.Thresholds.Lower)
	engine.OnChange(func(e *config.Engine) {
		resMetrics.SetThresholds(e.Thresholds.Upper, e.Thresholds.Lower)
	})
	resOpts := []resservice.Option{
		resservice.WithLogger(logger),
		resservice.WithMetrics(resMetrics),
		resservice.WithSettings(engineSettings{loader: engine}),
	}
	if cfg.RedisURL != "" {
		client, err := platformredis.New(ctx, platformredis.Config{URL: cfg.RedisURL})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		locker := lock.NewFallback(
			lock.NewRedis(client.Client, cfg.LockTTL),
			lock.NewMemory(),
			circuit.New("redis-lock"),
			lock.WithFallbackLogger(logger),
		)
		resOpts = append(resOpts, resservice.WithLocker(locker))
	}
	a.Resolution = resservice.New(identities, runner, a.Calibration, auditor, resOpts...)

	if a.db != nil && len(cfg.KafkaBrokers) > 0 {
		if err := a.startKafka(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Router = a.router(cfg, reg)
	return a, nil
}

func (a *App) startKafka(ctx context.Context, cfg config.Server) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	a.kafka = client
	if err := outbox.EnsureTopic(ctx, kadm.NewClient(client), cfg.AuditTopic, 3, 1); err != nil {
		return err
	}
	a.relay = outbox.New(a.db, client, cfg.AuditTopic, outbox.WithLogger(a.logger))
	return nil
}

func (a *App) router(cfg config.Server, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.AccessLog(a.logger, metrics.NewHTTP(reg)))
	r.Use(middleware.Recover(a.logger))

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", metrics.Handler(reg))

	resolution := reshandler.New(a.Resolution, a.Audits, a.logger)
	r.Group(func(r chi.Router) {
		r.Use(request.Actor(resservice.RegistrationActor))
		resolution.RegisterIntake(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(request.Actor(""))
		r.Use(admin.RequireAdminToken(cfg.AdminCheck(), a.logger))
		resolution.RegisterReview(r)
		calhandler.New(a.Calibration, a.Engine, a.logger).Register(r)
	})
	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if a.db != nil {
		if err := a.db.PingContext(r.Context()); err != nil {
			status["postgres"], status["status"], code = err.Error(), "degraded", http.StatusServiceUnavailable
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(r.Context()); err != nil {
			status["redis"], status["status"], code = err.Error(), "degraded", http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, code, status)
}

// Run starts the background workers (engine config watcher, audit relay) and
// blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.Engine.Watch(ctx); err != nil {
		return err
	}
	if a.relay == nil {
		<-ctx.Done()
		return nil
	}
	wake, err := outbox.Listen(ctx, a.databaseURL, a.logger)
	if err != nil {
		a.logger.WarnContext(ctx, "outbox notifications unavailable, relay will poll only", "error", err)
	}
	if err := a.relay.Run(ctx, wake); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases connections.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
