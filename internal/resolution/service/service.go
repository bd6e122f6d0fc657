// Package service runs the quarantine workflow: submissions are scored against
// existing master identities and held until they are accepted as new
// identities or merged into an existing one.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	calmodels "ssot/internal/calibration/models"
	"ssot/internal/identity/models"
	"ssot/internal/matching/blocking"
	"ssot/internal/matching/comparator"
	"ssot/internal/matching/scoring"
	"ssot/internal/resolution/candidates"
	"ssot/internal/resolution/lock"
	"ssot/internal/resolution/metrics"
	id "ssot/pkg/domain"
	dErrors "ssot/pkg/domain-errors"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
)

var tracer = otel.Tracer("ssot/resolution")

// RegistrationActor submits identities when the caller names no operator.
const RegistrationActor = "registration"

const (
	DefaultReviewLimit = 50
	MaxReviewLimit     = 500
	DefaultMasterLimit = 50
	MaxMasterLimit     = 500
)

type Store interface {
	candidates.MasterReader
	CreateMaster(ctx context.Context, m *models.Master) error
	UpdateMaster(ctx context.Context, m *models.Master) error
	FindMaster(ctx context.Context, masterID id.MasterID) (*models.Master, error)
	FindMasterForUpdate(ctx context.Context, masterID id.MasterID) (*models.Master, error)
	ListMasters(ctx context.Context, nameQuery string, limit int) ([]*models.Master, error)

	CreateSubmission(ctx context.Context, sub *models.Submission) error
	FindSubmission(ctx context.Context, submissionID id.SubmissionID) (*models.Submission, error)
	TransitionSubmission(ctx context.Context, sub *models.Submission) error
	AdvanceScoringRun(ctx context.Context, submissionID id.SubmissionID, from int) error

	CreateCandidates(ctx context.Context, cs []*models.Candidate) error
	FindCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error)
	ListCandidates(ctx context.Context, submissionID id.SubmissionID, run int) ([]*models.Candidate, error)
	ListReview(ctx context.Context, limit int) ([]models.ReviewItem, error)
	CountReview(ctx context.Context) (int, error)
}

type CalibrationSource interface {
	Snapshot(ctx context.Context) (*calmodels.Snapshot, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Settings is the engine configuration in force for one operation.
type Settings struct {
	Thresholds    scoring.Thresholds
	NameAgreement float64
	BlockingKeys  []blocking.Kind
	MaxBlockSize  int
	AutoAccept    bool
	AutoMerge     bool
}

func DefaultSettings() Settings {
	return Settings{
		Thresholds:    scoring.DefaultThresholds,
		NameAgreement: comparator.DefaultNameAgreement,
		BlockingKeys:  blocking.DefaultKinds,
		MaxBlockSize:  candidates.DefaultMaxBlockSize,
	}
}

// SettingsSource supplies the current settings. Implementations may change
// their answer between calls (hot reload); each operation reads it once.
type SettingsSource interface {
	Settings() Settings
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings Settings

func (s StaticSettings) Settings() Settings { return Settings(s) }

type Service struct {
	store       Store
	tx          txcontext.Runner
	calibration CalibrationSource
	auditor     AuditPublisher
	locker      lock.Locker
	settings    SettingsSource
	generator   *candidates.Generator
	logger      *slog.Logger
	metrics     *metrics.Metrics
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

// WithLocker replaces the in-process lock, e.g. with a Redis lock shared by
// several instances.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithSettings(src SettingsSource) Option {
	return func(s *Service) {
		s.settings = src
	}
}

func New(store Store, tx txcontext.Runner, calibration CalibrationSource, auditor AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tx:          tx,
		calibration: calibration,
		auditor:     auditor,
		locker:      lock.NewMemory(),
		settings:    StaticSettings(DefaultSettings()),
		generator:   candidates.NewGenerator(store),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) candidateSettings(cfg Settings) candidates.Settings {
	return candidates.Settings{
		Kinds:        cfg.BlockingKeys,
		MaxBlockSize: cfg.MaxBlockSize,
		Thresholds:   cfg.Thresholds,
		Comparators:  comparator.NewSet(comparator.WithNameAgreement(cfg.NameAgreement)),
	}
}

func (s *Service) emit(ctx context.Context, entry audit.Entry) error {
	if err := s.auditor.Emit(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrity, "failed to record audit entry; operation rolled back")
	}
	return nil
}

// acquire takes the per-submission lock.
func (s *Service) acquire(ctx context.Context, submissionID id.SubmissionID) (lock.Release, error) {
	release, err := s.locker.Acquire(ctx, "submission:"+submissionID.String())
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "submission is being resolved by someone else")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire resolution lock")
	}
	return release, nil
}

func (s *Service) releaseLock(ctx context.Context, release lock.Release) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.logger.WarnContext(ctx, "failed to release resolution lock", "error", err)
	}
}

func (s *Service) loadSubmission(ctx context.Context, submissionID id.SubmissionID) (*models.Submission, error) {
	sub, err := s.store.FindSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewField(dErrors.CodeNotFound, "submission_id", "submission not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load submission")
	}
	return sub, nil
}

func (s *Service) loadMaster(ctx context.Context, masterID id.MasterID, field string) (*models.Master, error) {
	m, err := s.store.FindMaster(ctx, masterID)
	if err != nil {
		return nil, translateMasterErr(err, masterID, field)
	}
	return m, nil
}

// lockMaster loads a master for a read-modify-write inside the caller's
// transaction; merges into the same master apply one after another.
func (s *Service) lockMaster(ctx context.Context, masterID id.MasterID, field string) (*models.Master, error) {
	m, err := s.store.FindMasterForUpdate(ctx, masterID)
	if err != nil {
		return nil, translateMasterErr(err, masterID, field)
	}
	return m, nil
}

func translateMasterErr(err error, masterID id.MasterID, field string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.NewField(dErrors.CodeNotFound, field, "master identity "+masterID.String()+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load master identity")
}

// translateTransitionErr maps store facts from the conditional status update.
func translateTransitionErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, "submission already resolved")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NewField(dErrors.CodeNotFound, "submission_id", "submission not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update submission")
	}
}

func storeErr(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
