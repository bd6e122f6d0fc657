package models

import (
	"time"

	id "ssot/pkg/domain"
	dErrors "ssot/pkg/domain-errors"
)

// Status is the lifecycle state of a quarantined submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusMerged   Status = "merged"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusResolved || s == StatusMerged
}

// CanTransitionTo reports whether s may move to next. Only pending submissions
// move, and both resolved and merged are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusResolved || next == StatusMerged)
}

// Submission is a candidate identity held in quarantine until an operator (or
// the automatic resolver) accepts or merges it.
//
// Invariants:
//   - Payload is never modified after construction
//   - Status transitions: pending → resolved | pending → merged only
//   - ResolvedAt, ResolvedBy and ResolvedMasterID are set exactly when Status is terminal
//   - ScoringRun identifies the latest candidate set; older runs stay stored
type Submission struct {
	ID               id.SubmissionID `json:"id"`
	Payload          Payload         `json:"payload"`
	Status           Status          `json:"status"`
	SubmittedBy      string          `json:"submitted_by"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy       string          `json:"resolved_by,omitempty"`
	ResolvedMasterID *id.MasterID    `json:"resolved_master_id,omitempty"`
	ScoringRun       int             `json:"scoring_run"`
}

func NewSubmission(submissionID id.SubmissionID, payload Payload, submittedBy string, now time.Time) (*Submission, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &Submission{
		ID:          submissionID,
		Payload:     payload,
		Status:      StatusPending,
		SubmittedBy: submittedBy,
		SubmittedAt: now,
		ScoringRun:  1,
	}, nil
}

func (s *Submission) IsPending() bool {
	return s.Status == StatusPending
}

// CanResolve checks that the submission is still waiting for a decision.
func (s *Submission) CanResolve() error {
	if !s.IsPending() {
		return dErrors.New(dErrors.CodeConflict, "submission already "+string(s.Status))
	}
	return nil
}

// Resolution is the terminal transition applied to a pending submission.
type Resolution struct {
	Status   Status
	MasterID id.MasterID
	Actor    string
	At       time.Time
}

// Resolved returns a copy of s with the resolution applied. Call CanResolve first.
func (s *Submission) Resolved(r Resolution) *Submission {
	c := *s
	at := r.At
	masterID := r.MasterID
	c.Status = r.Status
	c.ResolvedAt = &at
	c.ResolvedBy = r.Actor
	c.ResolvedMasterID = &masterID
	return &c
}
