package models

import (
	"sort"
	"time"

	"ssot/internal/matching/scoring"
	id "ssot/pkg/domain"
)

// Candidate is one scored (submission, master) pair. Candidates are never
// mutated; rescoring inserts a new run instead.
type Candidate struct {
	ID                 id.CandidateID         `json:"id"`
	SubmissionID       id.SubmissionID        `json:"submission_id"`
	MasterID           id.MasterID            `json:"master_id"`
	Score              float64                `json:"score"`
	Classification     scoring.Classification `json:"classification"`
	ScoringRun         int                    `json:"scoring_run"`
	CalibrationVersion int64                  `json:"calibration_version"`
	Contributions      []scoring.Contribution `json:"contributions"`
	CreatedAt          time.Time              `json:"created_at"`
}

func NewCandidate(candidateID id.CandidateID, submissionID id.SubmissionID, masterID id.MasterID, run int, result scoring.Result, now time.Time) *Candidate {
	return &Candidate{
		ID:                 candidateID,
		SubmissionID:       submissionID,
		MasterID:           masterID,
		Score:              result.Score,
		Classification:     result.Classification,
		ScoringRun:         run,
		CalibrationVersion: result.CalibrationVersion,
		Contributions:      result.Contributions,
		CreatedAt:          now,
	}
}

// SortByScore orders candidates best first, ties broken by master id for
// deterministic output.
func SortByScore(cs []*Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].MasterID.String() < cs[j].MasterID.String()
	})
}

// WithClassification returns the candidates classified as c.
func WithClassification(cs []*Candidate, c scoring.Classification) []*Candidate {
	var out []*Candidate
	for _, cand := range cs {
		if cand.Classification == c {
			out = append(out, cand)
		}
	}
	return out
}

// ReviewItem is a possible match awaiting an operator, with both sides attached.
type ReviewItem struct {
	Candidate  *Candidate  `json:"candidate"`
	Submission *Submission `json:"submission"`
	Master     *Master     `json:"master"`
}
