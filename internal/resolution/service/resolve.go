package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ssot/internal/identity/models"
	"ssot/internal/matching/scoring"
	"ssot/internal/resolution/merge"
	id "ssot/pkg/domain"
	dErrors "ssot/pkg/domain-errors"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/sentinel"
	"ssot/pkg/requestcontext"
)

// Decision is an operator's verdict on a quarantined submission.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionMerge  Decision = "merge"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionAccept, DecisionMerge:
		return d, nil
	case "":
		return "", dErrors.NewField(dErrors.CodeValidation, "decision", "decision is required")
	default:
		return "", dErrors.NewField(dErrors.CodeValidation, "decision", "decision must be accept or merge")
	}
}

// ResolveRequest carries one resolution.
//   - TargetMasterID is required for merge and refused for accept
//   - FieldOverrides apply to merge only
//   - Override acknowledges possible matches when accepting
type ResolveRequest struct {
	SubmissionID   id.SubmissionID
	Decision       Decision
	TargetMasterID *id.MasterID
	FieldOverrides map[string]string
	Override       bool
}

// Outcome describes a committed resolution.
type Outcome struct {
	SubmissionID id.SubmissionID `json:"submission_id"`
	Decision     Decision        `json:"decision"`
	Status       models.Status   `json:"status"`
	Master       *models.Master  `json:"master"`
	Merge        *merge.Report   `json:"merge,omitempty"`
	Automatic    bool            `json:"automatic,omitempty"`
}

// Resolve accepts or merges a pending submission. A per-submission lock turns
// concurrent attempts into immediate conflicts and the conditional status
// transition guarantees at most one resolution ever commits. The master
// write, the transition and the audit entry share one transaction.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "resolution.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("submission.id", req.SubmissionID.String()),
		attribute.String("resolution.decision", string(req.Decision)),
	)

	out, err := s.resolve(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.metrics.IncConflict()
		}
	}
	s.metrics.IncResolution(string(req.Decision), outcome)
	return out, err
}

func (s *Service) resolve(ctx context.Context, req ResolveRequest) (*Outcome, error) {
	actor := requestcontext.Actor(ctx)
	if err := validateResolve(actor, req); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, release)

	now := requestcontext.Now(ctx)
	var out *Outcome
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		sub, err := s.loadSubmission(ctx, req.SubmissionID)
		if err != nil {
			return err
		}
		if err := sub.CanResolve(); err != nil {
			return err
		}

		switch req.Decision {
		case DecisionAccept:
			out, err = s.accept(ctx, sub, req, actor, now)
		case DecisionMerge:
			out, err = s.merge(ctx, sub, req, actor, now)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	action := audit.ActionSubmissionAccepted
	if out.Decision == DecisionMerge {
		action = audit.ActionSubmissionMerged
	}
	s.logger.InfoContext(ctx, "submission resolved",
		"event", string(action),
		"log_type", "audit",
		"actor", actor,
		"submission_id", out.SubmissionID.String(),
		"master_id", out.Master.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return out, nil
}

func validateResolve(actor string, req ResolveRequest) error {
	if actor == "" {
		return dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if req.SubmissionID.IsNil() {
		return dErrors.NewField(dErrors.CodeValidation, "submission_id", "submission id is required")
	}
	if _, err := ParseDecision(string(req.Decision)); err != nil {
		return err
	}
	switch req.Decision {
	case DecisionMerge:
		if req.TargetMasterID == nil || req.TargetMasterID.IsNil() {
			return dErrors.NewField(dErrors.CodeValidation, "target_master_id", "target_master_id is required for merge")
		}
		return merge.ValidateOverrides(req.FieldOverrides)
	case DecisionAccept:
		if req.TargetMasterID != nil {
			return dErrors.NewField(dErrors.CodeValidation, "target_master_id", "target_master_id is only valid for merge")
		}
		if len(req.FieldOverrides) > 0 {
			return dErrors.NewField(dErrors.CodeValidation, "field_overrides", "field_overrides are only valid for merge")
		}
	}
	return nil
}

// checkAccept refuses to create a second master for someone already on record.
// A certain match can only be merged; possible matches need an explicit override.
func checkAccept(active []*models.Candidate, override bool) error {
	if matches := models.WithClassification(active, scoring.Match); len(matches) > 0 {
		best := matches[0]
		return dErrors.NewField(dErrors.CodeValidation, "decision", fmt.Sprintf(
			"submission matches master identity %s (score %.3f); merge instead of accepting",
			best.MasterID, best.Score))
	}
	if possibles := models.WithClassification(active, scoring.Possible); len(possibles) > 0 && !override {
		best := possibles[0]
		return dErrors.NewField(dErrors.CodeValidation, "override", fmt.Sprintf(
			"submission possibly matches master identity %s (candidate %s, score %.3f); set override to accept it as a new identity",
			best.MasterID, best.ID, best.Score))
	}
	return nil
}

func (s *Service) accept(ctx context.Context, sub *models.Submission, req ResolveRequest, actor string, now time.Time) (*Outcome, error) {
	active, err := s.store.ListCandidates(ctx, sub.ID, sub.ScoringRun)
	if err != nil {
		return nil, storeErr(err, "failed to load match candidates")
	}
	if err := checkAccept(active, req.Override); err != nil {
		return nil, err
	}

	master := models.NewMasterFromSubmission(id.NewMasterID(), sub, requestcontext.IsHuman(actor), now)
	resolved := sub.Resolved(models.Resolution{Status: models.StatusResolved, MasterID: master.ID, Actor: actor, At: now})

	if err := s.store.TransitionSubmission(ctx, resolved); err != nil {
		return nil, translateTransitionErr(err)
	}
	if err := s.store.CreateMaster(ctx, master); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, "master identity id collision")
		}
		return nil, storeErr(err, "failed to create master identity")
	}

	oldData, err := audit.Snapshot(statusView{Status: sub.Status})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot submission")
	}
	newData, err := audit.Snapshot(acceptView{
		Status:     resolved.Status,
		Master:     master,
		Override:   req.Override,
		Candidates: summarize(active),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot master identity")
	}
	if err := s.emit(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionSubmissionAccepted,
		EntityType: audit.EntitySubmission,
		EntityID:   sub.ID.String(),
		RelatedID:  master.ID.String(),
		OldData:    oldData,
		NewData:    newData,
	}); err != nil {
		return nil, err
	}

	return &Outcome{SubmissionID: sub.ID, Decision: DecisionAccept, Status: resolved.Status, Master: master}, nil
}

func (s *Service) merge(ctx context.Context, sub *models.Submission, req ResolveRequest, actor string, now time.Time) (*Outcome, error) {
	master, err := s.lockMaster(ctx, *req.TargetMasterID, "target_master_id")
	if err != nil {
		return nil, err
	}
	merged, report, err := merge.Apply(master, sub.Payload, req.FieldOverrides, actor, now)
	if err != nil {
		return nil, err
	}
	resolved := sub.Resolved(models.Resolution{Status: models.StatusMerged, MasterID: master.ID, Actor: actor, At: now})

	if err := s.store.TransitionSubmission(ctx, resolved); err != nil {
		return nil, translateTransitionErr(err)
	}
	if report.Changed() {
		if err := s.store.UpdateMaster(ctx, merged); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.NewField(dErrors.CodeNotFound, "target_master_id", "master identity "+master.ID.String()+" not found")
			}
			return nil, storeErr(err, "failed to update master identity")
		}
	}

	oldData, err := audit.Snapshot(mergeView{Status: sub.Status, Master: fieldValues(master)})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot master identity")
	}
	newData, err := audit.Snapshot(mergeView{Status: resolved.Status, Master: fieldValues(merged), Merge: &report})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot master identity")
	}
	if err := s.emit(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionSubmissionMerged,
		EntityType: audit.EntitySubmission,
		EntityID:   sub.ID.String(),
		RelatedID:  master.ID.String(),
		OldData:    oldData,
		NewData:    newData,
	}); err != nil {
		return nil, err
	}

	return &Outcome{SubmissionID: sub.ID, Decision: DecisionMerge, Status: resolved.Status, Master: merged, Merge: &report}, nil
}

// ResolveCandidate resolves the submission a candidate row belongs to. Merge
// targets the candidate's master; accept overrides the candidate's possible
// classification.
func (s *Service) ResolveCandidate(ctx context.Context, candidateID id.CandidateID, decision Decision) (*Outcome, error) {
	if _, err := ParseDecision(string(decision)); err != nil {
		return nil, err
	}
	cand, err := s.store.FindCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewField(dErrors.CodeNotFound, "candidate_id", "match candidate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load match candidate")
	}
	sub, err := s.loadSubmission(ctx, cand.SubmissionID)
	if err != nil {
		return nil, err
	}
	if sub.IsPending() && sub.ScoringRun != cand.ScoringRun {
		return nil, dErrors.NewField(dErrors.CodeConflict, "candidate_id",
			"candidate belongs to an earlier scoring run; reload the submission")
	}

	req := ResolveRequest{SubmissionID: cand.SubmissionID, Decision: decision}
	if decision == DecisionMerge {
		target := cand.MasterID
		req.TargetMasterID = &target
	} else {
		req.Override = true
	}
	return s.Resolve(ctx, req)
}

type statusView struct {
	Status models.Status `json:"status"`
}

type acceptView struct {
	Status     models.Status      `json:"status"`
	Master     *models.Master     `json:"master"`
	Override   bool               `json:"override"`
	Candidates []candidateSummary `json:"active_candidates"`
}

// mergeView renders master fields with explicit nulls for empty values so the
// trail shows a field going from null to a value.
type mergeView struct {
	Status models.Status      `json:"status"`
	Master map[string]*string `json:"master"`
	Merge  *merge.Report      `json:"merge,omitempty"`
}

func fieldValues(m *models.Master) map[string]*string {
	out := make(map[string]*string, len(merge.Fields)+1)
	idStr := m.ID.String()
	out["id"] = &idStr
	for _, f := range merge.Fields {
		if v := m.Value(f); v != "" {
			out[f] = &v
		} else {
			out[f] = nil
		}
	}
	return out
}
