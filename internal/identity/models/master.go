package models

import (
	"time"

	"ssot/internal/matching/comparator"
	id "ssot/pkg/domain"
)

// Master is the canonical record of one real-world individual.
//
// Invariants:
//   - at most one Master exists per individual (enforced procedurally by resolution)
//   - a Master is never deleted; it changes only through merge
//   - CreatedAt and SourceSubmissionID are immutable after construction
type Master struct {
	ID                 id.MasterID     `json:"id"`
	FullName           string          `json:"full_name"`
	BirthDate          string          `json:"birth_date,omitempty"`
	Region             string          `json:"region,omitempty"`
	Phone              string          `json:"phone,omitempty"`
	Email              string          `json:"email,omitempty"`
	Address            string          `json:"address,omitempty"`
	Verified           bool            `json:"verified"`
	SourceSubmissionID id.SubmissionID `json:"source_submission_id"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewMasterFromSubmission builds the master created by accepting sub.
// Verified marks that a human operator adjudicated the submission.
func NewMasterFromSubmission(masterID id.MasterID, sub *Submission, verified bool, now time.Time) *Master {
	m := &Master{
		ID:                 masterID,
		Address:            sub.Payload.Address(),
		Verified:           verified,
		SourceSubmissionID: sub.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.SetRecord(sub.Payload.Record())
	return m
}

// Record returns the comparable fields.
func (m *Master) Record() comparator.Record {
	return comparator.Record{
		FullName:  m.FullName,
		BirthDate: m.BirthDate,
		Region:    m.Region,
		Phone:     m.Phone,
		Email:     m.Email,
	}
}

func (m *Master) SetRecord(r comparator.Record) {
	m.FullName = r.FullName
	m.BirthDate = r.BirthDate
	m.Region = r.Region
	m.Phone = r.Phone
	m.Email = r.Email
}

// Value returns the value of a mergeable field (any comparable field or address).
func (m *Master) Value(field string) string {
	if field == AddressKey {
		return m.Address
	}
	return m.Record().Value(comparator.Field(field))
}

// SetValue sets a mergeable field.
func (m *Master) SetValue(field, v string) {
	if field == AddressKey {
		m.Address = v
		return
	}
	m.SetRecord(m.Record().With(comparator.Field(field), v))
}

// Clone returns a copy safe to mutate.
func (m *Master) Clone() *Master {
	c := *m
	return &c
}
