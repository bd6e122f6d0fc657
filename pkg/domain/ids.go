// Package domain holds typed identifiers shared across bounded contexts.
//
// Each ID wraps a UUID so that a MasterID can never be passed where a
// SubmissionID is expected. Parse functions are the trust boundary for IDs that
// arrive over HTTP or the CLI.
package domain

import (
	"github.com/google/uuid"

	dErrors "ssot/pkg/domain-errors"
)

type (
	MasterID     uuid.UUID
	SubmissionID uuid.UUID
	CandidateID  uuid.UUID
	AuditID      uuid.UUID
)

func NewMasterID() MasterID         { return MasterID(uuid.New()) }
func NewSubmissionID() SubmissionID { return SubmissionID(uuid.New()) }
func NewCandidateID() CandidateID   { return CandidateID(uuid.New()) }
func NewAuditID() AuditID           { return AuditID(uuid.New()) }

func (id MasterID) String() string     { return uuid.UUID(id).String() }
func (id SubmissionID) String() string { return uuid.UUID(id).String() }
func (id CandidateID) String() string  { return uuid.UUID(id).String() }
func (id AuditID) String() string      { return uuid.UUID(id).String() }

func (id MasterID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id SubmissionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CandidateID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id AuditID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

func (id MasterID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id SubmissionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id CandidateID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id AuditID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }

func (id *MasterID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SubmissionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CandidateID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }

// ParseMasterID parses a non-nil master identity ID.
func ParseMasterID(s string) (MasterID, error) {
	u, err := parseUUID(s, "master id")
	return MasterID(u), err
}

// ParseSubmissionID parses a non-nil quarantined submission ID.
func ParseSubmissionID(s string) (SubmissionID, error) {
	u, err := parseUUID(s, "submission id")
	return SubmissionID(u), err
}

// ParseCandidateID parses a non-nil match candidate ID.
func ParseCandidateID(s string) (CandidateID, error) {
	u, err := parseUUID(s, "candidate id")
	return CandidateID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be nil")
	}
	return u, nil
}
