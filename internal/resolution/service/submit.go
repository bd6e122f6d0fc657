package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ssot/internal/identity/models"
	"ssot/internal/matching/scoring"
	id "ssot/pkg/domain"
	dErrors "ssot/pkg/domain-errors"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/requestcontext"
)

// SubmitResult is the stored submission with the candidates of its first run.
// AutoResolution is set when the engine resolved the submission itself.
type SubmitResult struct {
	Submission     *models.Submission  `json:"submission"`
	Candidates     []*models.Candidate `json:"candidates"`
	AutoResolution *Outcome            `json:"auto_resolution,omitempty"`
}

// Submit quarantines a new identity. Blocking and scoring happen before the
// write; the submission, its candidates and the audit entry are committed
// together or not at all.
func (s *Service) Submit(ctx context.Context, payload models.Payload) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "resolution.Submit")
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		actor = RegistrationActor
	}
	now := requestcontext.Now(ctx)

	sub, err := models.NewSubmission(id.NewSubmissionID(), payload, actor, now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("submission.id", sub.ID.String()))

	settings := s.settings.Settings()
	cands, err := s.score(ctx, sub, sub.ScoringRun, settings)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("submission.candidates", len(cands)))

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateSubmission(ctx, sub); err != nil {
			return storeErr(err, "failed to store submission")
		}
		if len(cands) > 0 {
			if err := s.store.CreateCandidates(ctx, cands); err != nil {
				return storeErr(err, "failed to store match candidates")
			}
		}
		newData, err := audit.Snapshot(submissionState{
			Submission:         sub,
			Candidates:         summarize(cands),
			CalibrationVersion: runVersion(cands),
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot submission")
		}
		return s.emit(ctx, audit.Entry{
			Actor:      actor,
			Action:     audit.ActionIdentitySubmitted,
			EntityType: audit.EntitySubmission,
			EntityID:   sub.ID.String(),
			NewData:    newData,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncSubmission()
	for _, c := range cands {
		s.metrics.IncCandidate(string(c.Classification))
	}
	s.logger.InfoContext(ctx, "identity submitted",
		"event", string(audit.ActionIdentitySubmitted),
		"log_type", "audit",
		"actor", actor,
		"submission_id", sub.ID.String(),
		"candidates", len(cands),
		"request_id", requestcontext.RequestID(ctx),
	)

	result := &SubmitResult{Submission: sub, Candidates: cands}
	if out := s.autoResolve(ctx, sub, cands, settings); out != nil {
		result.AutoResolution = out
		if stored, err := s.store.FindSubmission(ctx, sub.ID); err == nil {
			result.Submission = stored
		}
	}
	return result, nil
}

// score runs candidate generation for one scoring run of sub.
func (s *Service) score(ctx context.Context, sub *models.Submission, run int, settings Settings) ([]*models.Candidate, error) {
	ctx, span := tracer.Start(ctx, "resolution.score")
	defer span.End()

	cal, err := s.calibration.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("calibration.version", cal.Version()))

	start := time.Now()
	scored, err := s.generator.Generate(ctx, sub.Payload.Record(), s.candidateSettings(settings), cal)
	if err != nil {
		return nil, storeErr(err, "failed to generate match candidates")
	}
	s.metrics.ObserveScoring(time.Since(start).Seconds())

	now := requestcontext.Now(ctx)
	out := make([]*models.Candidate, 0, len(scored))
	for _, sc := range scored {
		out = append(out, models.NewCandidate(id.NewCandidateID(), sub.ID, sc.Master.ID, run, sc.Result, now))
	}
	return out, nil
}

// autoResolve applies the configured automatic decision, if any. Failures are
// logged; the submission simply stays pending for an operator.
func (s *Service) autoResolve(ctx context.Context, sub *models.Submission, cands []*models.Candidate, settings Settings) *Outcome {
	req, ok := automaticDecision(sub.ID, cands, settings)
	if !ok {
		return nil
	}
	sysCtx := requestcontext.WithActor(ctx, requestcontext.SystemActor)
	out, err := s.Resolve(sysCtx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "automatic resolution skipped",
			"submission_id", sub.ID.String(),
			"decision", string(req.Decision),
			"error", err,
		)
		return nil
	}
	out.Automatic = true
	s.metrics.IncAutoResolution(string(req.Decision))
	return out
}

// automaticDecision accepts a submission with no plausible duplicate and merges
// one with exactly one certain match and nothing else plausible.
func automaticDecision(submissionID id.SubmissionID, cands []*models.Candidate, settings Settings) (ResolveRequest, bool) {
	matches := models.WithClassification(cands, scoring.Match)
	possibles := models.WithClassification(cands, scoring.Possible)

	switch {
	case settings.AutoAccept && len(matches) == 0 && len(possibles) == 0:
		return ResolveRequest{SubmissionID: submissionID, Decision: DecisionAccept}, true
	case settings.AutoMerge && len(matches) == 1 && len(possibles) == 0:
		target := matches[0].MasterID
		return ResolveRequest{SubmissionID: submissionID, Decision: DecisionMerge, TargetMasterID: &target}, true
	}
	return ResolveRequest{}, false
}

type candidateSummary struct {
	CandidateID    id.CandidateID         `json:"candidate_id"`
	MasterID       id.MasterID            `json:"master_id"`
	Score          float64                `json:"score"`
	Classification scoring.Classification `json:"classification"`
}

type submissionState struct {
	Submission         *models.Submission `json:"submission"`
	Candidates         []candidateSummary `json:"candidates"`
	CalibrationVersion int64              `json:"calibration_version,omitempty"`
}

func summarize(cands []*models.Candidate) []candidateSummary {
	out := make([]candidateSummary, 0, len(cands))
	for _, c := range cands {
		out = append(out, candidateSummary{
			CandidateID:    c.ID,
			MasterID:       c.MasterID,
			Score:          c.Score,
			Classification: c.Classification,
		})
	}
	return out
}

// runVersion is the calibration version a candidate set was scored with.
func runVersion(cands []*models.Candidate) int64 {
	if len(cands) == 0 {
		return 0
	}
	return cands[0].CalibrationVersion
}
