// Package service owns calibration parameters: validated batch updates,
// first-run defaults and the snapshot every scorer reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ssot/internal/calibration/metrics"
	"ssot/internal/calibration/models"
	"ssot/internal/matching/comparator"
	dErrors "ssot/pkg/domain-errors"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
	"ssot/pkg/requestcontext"
)

var tracer = otel.Tracer("ssot/calibration")

// calibrationEntityID is the audit entity id of the (single) calibration set.
const calibrationEntityID = "fellegi_sunter"

type Store interface {
	Version(ctx context.Context) (int64, error)
	Load(ctx context.Context) (int64, []models.Parameter, error)
	Save(ctx context.Context, expectedVersion int64, params []models.Parameter, replace bool) (int64, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Service manages calibration. Readers get immutable snapshots that are only
// published after the write that produced them commits.
type Service struct {
	store   Store
	tx      txcontext.Runner
	auditor AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics

	current atomic.Pointer[models.Snapshot]
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, tx txcontext.Runner, auditor AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tx:      tx,
		auditor: auditor,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current calibration. The cached snapshot is reused while
// the stored version is unchanged; another instance's commit triggers a reload.
func (s *Service) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	version, err := s.store.Version(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read calibration version")
	}
	if cached := s.current.Load(); cached != nil && cached.Version() == version {
		return cached, nil
	}

	version, params, err := s.store.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load calibration")
	}
	snap := models.NewSnapshot(version, params)
	s.publish(snap)
	return snap, nil
}

// UpdateParameter sets the m/u pair of one existing field.
func (s *Service) UpdateParameter(ctx context.Context, field string, m, u float64) (*models.Snapshot, error) {
	return s.UpdateParameters(ctx, []models.ParameterInput{{Field: field, M: m, U: u}})
}

// UpdateParameters validates every pair first and rejects the whole batch on the
// first failure. On success all pairs are written, the version is bumped and one
// audit entry records the full before and after sets.
func (s *Service) UpdateParameters(ctx context.Context, inputs []models.ParameterInput) (*models.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "calibration.UpdateParameters",
		trace.WithAttributes(attribute.Int("calibration.fields", len(inputs))))
	defer span.End()

	actor := requestcontext.Actor(ctx)
	params, err := s.validateInputs(ctx, actor, inputs)
	if err != nil {
		s.reject(err)
		return nil, err
	}

	var snap *models.Snapshot
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		version, stored, err := s.store.Load(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load calibration")
		}
		before := models.NewSnapshot(version, stored)
		for _, p := range params {
			if _, ok := before.Get(p.Field); !ok {
				return dErrors.NewField(dErrors.CodeNotFound, string(p.Field),
					fmt.Sprintf("no calibration parameter for field %s; initialize defaults first", p.Field))
			}
		}

		next, err := s.store.Save(ctx, version, params, false)
		if err != nil {
			return translateSaveErr(err)
		}
		snap = models.NewSnapshot(next, before.Merge(params))

		return s.emit(ctx, actor, audit.ActionCalibrationUpdated, before, snap)
	})
	if err != nil {
		s.reject(err)
		return nil, err
	}

	s.publish(snap)
	s.metrics.IncUpdate("update")
	s.logger.InfoContext(ctx, "calibration updated",
		"event", string(audit.ActionCalibrationUpdated),
		"log_type", "audit",
		"actor", actor,
		"version", snap.Version(),
		"fields", fieldNames(params),
		"request_id", requestcontext.RequestID(ctx),
	)
	return snap, nil
}

// InitializeDefaults writes the default parameter set. On a deployment that
// already has parameters it is refused unless confirm is set, in which case the
// whole set is replaced and audited like any other change.
func (s *Service) InitializeDefaults(ctx context.Context, confirm bool) (*models.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "calibration.InitializeDefaults",
		trace.WithAttributes(attribute.Bool("calibration.confirm", confirm)))
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		err := dErrors.New(dErrors.CodeValidation, "actor is required")
		s.reject(err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	defaults := make([]models.Parameter, len(models.Defaults))
	for i, p := range models.Defaults {
		p.UpdatedAt = now
		defaults[i] = p
	}

	var snap *models.Snapshot
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		version, stored, err := s.store.Load(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load calibration")
		}
		before := models.NewSnapshot(version, stored)
		if !before.Empty() && !confirm {
			return dErrors.New(dErrors.CodeConflict,
				"calibration already initialized; confirm to overwrite existing parameters")
		}

		next, err := s.store.Save(ctx, version, defaults, true)
		if err != nil {
			return translateSaveErr(err)
		}
		snap = models.NewSnapshot(next, defaults)
		return s.emit(ctx, actor, audit.ActionCalibrationInitialized, before, snap)
	})
	if err != nil {
		s.reject(err)
		return nil, err
	}

	s.publish(snap)
	s.metrics.IncUpdate("initialize")
	s.logger.InfoContext(ctx, "calibration initialized",
		"event", string(audit.ActionCalibrationInitialized),
		"log_type", "audit",
		"actor", actor,
		"version", snap.Version(),
		"overwrite", confirm,
		"request_id", requestcontext.RequestID(ctx),
	)
	return snap, nil
}

func (s *Service) validateInputs(ctx context.Context, actor string, inputs []models.ParameterInput) ([]models.Parameter, error) {
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if len(inputs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one parameter is required")
	}

	now := requestcontext.Now(ctx)
	seen := make(map[comparator.Field]bool, len(inputs))
	params := make([]models.Parameter, 0, len(inputs))
	for _, in := range inputs {
		field, err := comparator.ParseField(in.Field)
		if err != nil {
			return nil, err
		}
		if seen[field] {
			return nil, dErrors.NewField(dErrors.CodeValidation, in.Field, "field listed more than once")
		}
		seen[field] = true

		p := models.Parameter{Field: field, M: in.M, U: in.U, UpdatedAt: now}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func (s *Service) emit(ctx context.Context, actor string, action audit.Action, before, after *models.Snapshot) error {
	oldData, err := audit.Snapshot(calibrationState(before))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot calibration")
	}
	newData, err := audit.Snapshot(calibrationState(after))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot calibration")
	}
	err = s.auditor.Emit(ctx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: audit.EntityCalibration,
		EntityID:   calibrationEntityID,
		OldData:    oldData,
		NewData:    newData,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrity, "failed to record calibration change")
	}
	return nil
}

type stateView struct {
	Version    int64              `json:"version"`
	Parameters []models.Parameter `json:"parameters"`
}

func calibrationState(s *models.Snapshot) stateView {
	return stateView{Version: s.Version(), Parameters: s.Parameters()}
}

func (s *Service) publish(snap *models.Snapshot) {
	for {
		cur := s.current.Load()
		if cur != nil && cur.Version() >= snap.Version() {
			return
		}
		if s.current.CompareAndSwap(cur, snap) {
			s.metrics.SetVersion(snap.Version())
			return
		}
	}
}

func (s *Service) reject(err error) {
	s.metrics.IncRejection(string(dErrors.CodeOf(err)))
}

func translateSaveErr(err error) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeConflict, "calibration changed concurrently; reload and retry")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save calibration")
}

func fieldNames(params []models.Parameter) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = string(p.Field)
	}
	return out
}
