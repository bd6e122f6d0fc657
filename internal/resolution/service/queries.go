package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ssot/internal/identity/models"
	id "ssot/pkg/domain"
	dErrors "ssot/pkg/domain-errors"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/sentinel"
	"ssot/pkg/requestcontext"
)

// SubmissionView is a submission with the candidates of its latest scoring run.
type SubmissionView struct {
	Submission *models.Submission  `json:"submission"`
	Candidates []*models.Candidate `json:"candidates"`
}

func (s *Service) GetSubmission(ctx context.Context, submissionID id.SubmissionID) (*SubmissionView, error) {
	sub, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	cands, err := s.store.ListCandidates(ctx, sub.ID, sub.ScoringRun)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load match candidates")
	}
	return &SubmissionView{Submission: sub, Candidates: cands}, nil
}

func (s *Service) GetMaster(ctx context.Context, masterID id.MasterID) (*models.Master, error) {
	return s.loadMaster(ctx, masterID, "master_id")
}

// ReviewPage is one page of the review queue plus the size of the whole queue.
type ReviewPage struct {
	Items []models.ReviewItem `json:"items"`
	Total int                 `json:"total"`
}

// ReviewQueue lists possible matches awaiting an operator, best score first.
func (s *Service) ReviewQueue(ctx context.Context, limit int) (*ReviewPage, error) {
	if limit <= 0 {
		limit = DefaultReviewLimit
	}
	if limit > MaxReviewLimit {
		return nil, dErrors.NewField(dErrors.CodeValidation, "limit", "limit must not exceed 500")
	}
	items, err := s.store.ListReview(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load review queue")
	}
	total, err := s.store.CountReview(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count review queue")
	}
	return &ReviewPage{Items: items, Total: max(total, len(items))}, nil
}

// ListMasters lists master identities by name. nameQuery filters to names
// containing it, ignoring case.
func (s *Service) ListMasters(ctx context.Context, nameQuery string, limit int) ([]*models.Master, error) {
	if limit <= 0 {
		limit = DefaultMasterLimit
	}
	if limit > MaxMasterLimit {
		return nil, dErrors.NewField(dErrors.CodeValidation, "limit", "limit must not exceed 500")
	}
	masters, err := s.store.ListMasters(ctx, strings.TrimSpace(nameQuery), limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list master identities")
	}
	return masters, nil
}

// Rescore scores a pending submission again, typically after recalibration.
// The new run's candidates become active; earlier runs stay stored unchanged.
func (s *Service) Rescore(ctx context.Context, submissionID id.SubmissionID) (*SubmissionView, error) {
	ctx, span := tracer.Start(ctx, "resolution.Rescore",
		trace.WithAttributes(attribute.String("submission.id", submissionID.String())))
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}

	release, err := s.acquire(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, release)

	sub, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := sub.CanResolve(); err != nil {
		return nil, err
	}

	run := sub.ScoringRun + 1
	cands, err := s.score(ctx, sub, run, s.settings.Settings())
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.AdvanceScoringRun(ctx, sub.ID, sub.ScoringRun); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeConflict, "submission changed while rescoring; reload and retry")
			}
			return translateTransitionErr(err)
		}
		if len(cands) > 0 {
			if err := s.store.CreateCandidates(ctx, cands); err != nil {
				return storeErr(err, "failed to store match candidates")
			}
		}

		oldData, err := audit.Snapshot(runView{ScoringRun: sub.ScoringRun})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot submission")
		}
		newData, err := audit.Snapshot(runView{ScoringRun: run, CalibrationVersion: runVersion(cands), Candidates: summarize(cands)})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot submission")
		}
		return s.emit(ctx, audit.Entry{
			Actor:      actor,
			Action:     audit.ActionSubmissionRescored,
			EntityType: audit.EntitySubmission,
			EntityID:   sub.ID.String(),
			OldData:    oldData,
			NewData:    newData,
		})
	})
	if err != nil {
		return nil, err
	}

	for _, c := range cands {
		s.metrics.IncCandidate(string(c.Classification))
	}
	s.logger.InfoContext(ctx, "submission rescored",
		"event", string(audit.ActionSubmissionRescored),
		"log_type", "audit",
		"actor", actor,
		"submission_id", sub.ID.String(),
		"scoring_run", run,
		"candidates", len(cands),
		"request_id", requestcontext.RequestID(ctx),
	)

	next := *sub
	next.ScoringRun = run
	return &SubmissionView{Submission: &next, Candidates: cands}, nil
}

type runView struct {
	ScoringRun         int                `json:"scoring_run"`
	CalibrationVersion int64              `json:"calibration_version,omitempty"`
	Candidates         []candidateSummary `json:"candidates,omitempty"`
}
