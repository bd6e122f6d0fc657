package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssot/internal/matching/comparator"
	"ssot/internal/matching/scoring"
	id "ssot/pkg/domain"
	dErrors "ssot/pkg/domain-errors"
	"ssot/pkg/testutil"
)

func TestPayloadRecordAcceptsLegacyKeys(t *testing.T) {
	p, err := ParsePayload(json.RawMessage(`{
		"nama_lengkap": " Siti Nurhaliza ",
		"tanggal_lahir": "1990-04-12",
		"id_wijk": "W-07",
		"no_telp": 6281234567890,
		"alamat": "Jl. Melati 3"
	}`))
	require.NoError(t, err)

	r := p.Record()
	assert.Equal(t, "Siti Nurhaliza", r.FullName)
	assert.Equal(t, "1990-04-12", r.BirthDate)
	assert.Equal(t, "W-07", r.Region)
	assert.Equal(t, "6281234567890", r.Phone)
	assert.Empty(t, r.Email)
	assert.Equal(t, "Jl. Melati 3", p.Address())
}

func TestPayloadCanonicalKeyWins(t *testing.T) {
	p := Payload{"full_name": "Budi", "nama_lengkap": "Other"}
	assert.Equal(t, "Budi", p.Record().FullName)
}

func TestParsePayloadRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"x"`, `null`, `{`} {
		_, err := ParsePayload(json.RawMessage(raw))
		require.Error(t, err, raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), raw)
	}
}

func TestPayloadValidate(t *testing.T) {
	t.Run("requires a name", func(t *testing.T) {
		err := Payload{"email": "a@b.c"}.Validate()
		require.Error(t, err)
		assert.Equal(t, "full_name", dErrors.FieldOf(err))
	})

	t.Run("rejects an unparseable birth date", func(t *testing.T) {
		err := Payload{"full_name": "A", "birth_date": "someday"}.Validate()
		require.Error(t, err)
		assert.Equal(t, "birth_date", dErrors.FieldOf(err))
	})

	t.Run("accepts a minimal payload", func(t *testing.T) {
		assert.NoError(t, Payload{"full_name": "A"}.Validate())
	})
}

func TestSubmissionLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sub, err := NewSubmission(id.NewSubmissionID(), Payload{"full_name": "A"}, "registration", now)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sub.Status)
	assert.Equal(t, 1, sub.ScoringRun)
	require.NoError(t, sub.CanResolve())

	masterID := id.NewMasterID()
	resolved := sub.Resolved(Resolution{Status: StatusMerged, MasterID: masterID, Actor: "op-1", At: now})
	assert.Equal(t, StatusPending, sub.Status, "original is untouched")
	assert.Equal(t, StatusMerged, resolved.Status)
	assert.Equal(t, "op-1", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedMasterID)
	assert.Equal(t, masterID, *resolved.ResolvedMasterID)

	err = resolved.CanResolve()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusResolved))
	assert.True(t, StatusPending.CanTransitionTo(StatusMerged))
	assert.False(t, StatusResolved.CanTransitionTo(StatusMerged))
	assert.False(t, StatusMerged.CanTransitionTo(StatusResolved))
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))
}

func TestNewMasterFromSubmission(t *testing.T) {
	now := time.Now()
	sub, err := NewSubmission(id.NewSubmissionID(), Payload{
		"full_name": "Siti", "no_telp": "0812", "alamat": "Jl. Mawar",
	}, "registration", now)
	require.NoError(t, err)

	m := NewMasterFromSubmission(id.NewMasterID(), sub, true, now)
	assert.Equal(t, "Siti", m.FullName)
	assert.Equal(t, "0812", m.Phone)
	assert.Equal(t, "Jl. Mawar", m.Address)
	assert.Equal(t, sub.ID, m.SourceSubmissionID)
	assert.True(t, m.Verified)

	c := m.Clone()
	c.SetValue(string(comparator.Email), "s@example.org")
	c.SetValue(AddressKey, "Jl. Baru")
	assert.Empty(t, m.Email)
	assert.Equal(t, "s@example.org", c.Value("email"))
	assert.Equal(t, "Jl. Baru", c.Value(AddressKey))
}

func TestSortByScore(t *testing.T) {
	a := &Candidate{MasterID: id.NewMasterID(), Score: 1, Classification: scoring.Possible}
	b := &Candidate{MasterID: id.NewMasterID(), Score: 9, Classification: scoring.Match}
	c := &Candidate{MasterID: id.NewMasterID(), Score: -9, Classification: scoring.NonMatch}
	cs := []*Candidate{a, b, c}

	SortByScore(cs)
	assert.Equal(t, []*Candidate{b, a, c}, cs)
	assert.Equal(t, []*Candidate{b}, WithClassification(cs, scoring.Match))
}

func TestResolvedSubmissionIsTerminal(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	testutil.Given(t, "a submission accepted as a new master", func(t *testing.T) {
		sub, err := NewSubmission(id.NewSubmissionID(), Payload{"full_name": "Dewi Lestari"}, "registration", now)
		require.NoError(t, err)
		accepted := sub.Resolved(Resolution{Status: StatusResolved, MasterID: id.NewMasterID(), Actor: "op-1", At: now})

		testutil.When(t, "a merge is attempted", func(t *testing.T) {
			err := accepted.CanResolve()

			testutil.Then(t, "it conflicts and names the current status", func(t *testing.T) {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
				assert.Contains(t, err.Error(), "resolved")
				assert.False(t, accepted.Status.CanTransitionTo(StatusMerged))
			})
		})
	})
}
