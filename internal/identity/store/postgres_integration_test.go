//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ssot/internal/identity/models"
	"ssot/internal/matching/scoring"
	id "ssot/pkg/domain"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
	"ssot/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	store  *PostgresStore
	runner *txcontext.SQLRunner
	ctx    context.Context
	now    time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.runner = txcontext.NewSQLRunner(s.pg.DB, 5*time.Second)
	s.ctx = context.Background()
	s.now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx,
		"match_candidates", "quarantined_submissions", "master_blocking_keys", "master_identities"))
}

func (s *PostgresStoreSuite) newMaster(name, region string) *models.Master {
	m := &models.Master{
		ID:                 id.NewMasterID(),
		FullName:           name,
		Region:             region,
		SourceSubmissionID: id.NewSubmissionID(),
		CreatedAt:          s.now,
		UpdatedAt:          s.now,
	}
	s.Require().NoError(s.store.CreateMaster(s.ctx, m))
	return m
}

func (s *PostgresStoreSuite) newSubmission(payload models.Payload) *models.Submission {
	sub, err := models.NewSubmission(id.NewSubmissionID(), payload, "registration", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateSubmission(s.ctx, sub))
	return sub
}

func (s *PostgresStoreSuite) TestMasters() {
	m := s.newMaster("Siti Nurhaliza", "W-07")

	found, err := s.store.FindMaster(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal("Siti Nurhaliza", found.FullName)
	s.True(found.CreatedAt.Equal(s.now))

	_, err = s.store.FindMaster(s.ctx, id.NewMasterID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.CreateMaster(s.ctx, m), sentinel.ErrAlreadyUsed)
	s.ErrorIs(s.store.UpdateMaster(s.ctx, &models.Master{ID: id.NewMasterID()}), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestBlockMembersFollowUpdates() {
	a := s.newMaster("Ana Lim", "R1")
	b := s.newMaster("Ari Lee", "R2")

	members, err := s.store.BlockMembers(s.ctx, "name_initials:al", 10)
	s.Require().NoError(err)
	s.ElementsMatch([]id.MasterID{a.ID, b.ID}, members)

	moved := a.Clone()
	moved.Region = "R9"
	s.Require().NoError(s.store.UpdateMaster(s.ctx, moved))

	members, err = s.store.BlockMembers(s.ctx, "region:r1", 10)
	s.Require().NoError(err)
	s.Empty(members)
	members, err = s.store.BlockMembers(s.ctx, "region:r9", 10)
	s.Require().NoError(err)
	s.Equal([]id.MasterID{a.ID}, members)

	found, err := s.store.FindMasters(s.ctx, []id.MasterID{a.ID, id.NewMasterID(), b.ID})
	s.Require().NoError(err)
	s.Len(found, 2)
}

func (s *PostgresStoreSuite) TestSubmissionRoundTrip() {
	sub := s.newSubmission(models.Payload{"full_name": "Dewi Lestari", "phone": "0812"})

	stored, err := s.store.FindSubmission(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
	s.Equal("Dewi Lestari", stored.Payload["full_name"])
	s.Equal(1, stored.ScoringRun)
	s.Nil(stored.ResolvedAt)
}

func (s *PostgresStoreSuite) TestTransitionWithinTransaction() {
	sub := s.newSubmission(models.Payload{"full_name": "A"})
	masterID := id.NewMasterID()
	resolved := sub.Resolved(models.Resolution{Status: models.StatusResolved, MasterID: masterID, Actor: "op", At: s.now})

	// accept transitions first and creates the master second; the deferred
	// foreign key only checks at commit
	err := s.runner.RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.store.TransitionSubmission(ctx, resolved); err != nil {
			return err
		}
		return s.store.CreateMaster(ctx, &models.Master{
			ID: masterID, FullName: "A", SourceSubmissionID: sub.ID, CreatedAt: s.now, UpdatedAt: s.now,
		})
	})
	s.Require().NoError(err)

	stored, err := s.store.FindSubmission(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, stored.Status)
	s.Require().NotNil(stored.ResolvedMasterID)
	s.Equal(masterID, *stored.ResolvedMasterID)

	s.ErrorIs(s.store.TransitionSubmission(s.ctx, resolved), sentinel.ErrInvalidState)

	ghost := &models.Submission{ID: id.NewSubmissionID(), Status: models.StatusMerged}
	s.ErrorIs(s.store.TransitionSubmission(s.ctx, ghost), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRolledBackTransitionLeavesPending() {
	sub := s.newSubmission(models.Payload{"full_name": "A"})
	m := s.newMaster("A", "R")
	boom := errors.New("audit failed")

	err := s.runner.RunInTx(s.ctx, func(ctx context.Context) error {
		next := sub.Resolved(models.Resolution{Status: models.StatusMerged, MasterID: m.ID, Actor: "op", At: s.now})
		if err := s.store.TransitionSubmission(ctx, next); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	stored, err := s.store.FindSubmission(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
}

func (s *PostgresStoreSuite) TestConcurrentTransitionsWinOnce() {
	sub := s.newSubmission(models.Payload{"full_name": "Race"})
	m := s.newMaster("Race", "R")

	const goroutines = 20
	var wg sync.WaitGroup
	var wins, lost atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := sub.Resolved(models.Resolution{Status: models.StatusMerged, MasterID: m.ID, Actor: "op", At: s.now})
			err := s.runner.RunInTx(s.ctx, func(ctx context.Context) error {
				return s.store.TransitionSubmission(ctx, next)
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrInvalidState):
				lost.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), lost.Load())
}

func (s *PostgresStoreSuite) TestCandidatesAndReview() {
	sub := s.newSubmission(models.Payload{"full_name": "A"})
	m1 := s.newMaster("A One", "R")
	m2 := s.newMaster("A Two", "R")

	cand := func(m *models.Master, run int, score float64, class scoring.Classification) *models.Candidate {
		return models.NewCandidate(id.NewCandidateID(), sub.ID, m.ID, run,
			scoring.Result{Score: score, Classification: class, CalibrationVersion: 1}, s.now)
	}
	first := []*models.Candidate{cand(m1, 1, 1.5, scoring.Possible), cand(m2, 1, 9, scoring.Match)}
	s.Require().NoError(s.store.CreateCandidates(s.ctx, first))

	s.ErrorIs(s.store.CreateCandidates(s.ctx, []*models.Candidate{cand(m1, 1, 0, scoring.Possible)}), sentinel.ErrAlreadyUsed)

	list, err := s.store.ListCandidates(s.ctx, sub.ID, 1)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(m2.ID, list[0].MasterID)

	items, err := s.store.ListReview(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(m1.ID, items[0].Candidate.MasterID)
	s.Require().NotNil(items[0].Master)
	s.Equal("A One", items[0].Master.FullName)
	total, err := s.store.CountReview(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, total)

	s.Require().NoError(s.store.AdvanceScoringRun(s.ctx, sub.ID, 1))
	s.ErrorIs(s.store.AdvanceScoringRun(s.ctx, sub.ID, 1), sentinel.ErrInvalidState)

	items, err = s.store.ListReview(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(items)
	total, err = s.store.CountReview(s.ctx)
	s.Require().NoError(err)
	s.Zero(total)

	found, err := s.store.FindCandidate(s.ctx, first[0].ID)
	s.Require().NoError(err)
	s.Equal(1.5, found.Score)
	s.Equal(scoring.Possible, found.Classification)
}

// Two merges that both fill an empty field must not both believe it was empty.
func (s *PostgresStoreSuite) TestLockedMasterReadSerializesMerges() {
	m := s.newMaster("Dewi Lestari", "W-03")

	phones := []string{"+6281100000001", "+6281100000002", "+6281100000003", "+6281100000004"}
	var wg sync.WaitGroup
	var adopted atomic.Int32
	winner := make(chan string, len(phones))
	for _, phone := range phones {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.runner.RunInTx(s.ctx, func(ctx context.Context) error {
				current, err := s.store.FindMasterForUpdate(ctx, m.ID)
				if err != nil {
					return err
				}
				time.Sleep(20 * time.Millisecond)
				if current.Phone != "" {
					return nil
				}
				current.Phone = phone
				current.UpdatedAt = s.now.Add(time.Minute)
				if err := s.store.UpdateMaster(ctx, current); err != nil {
					return err
				}
				adopted.Add(1)
				winner <- phone
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()
	close(winner)

	s.Equal(int32(1), adopted.Load())
	stored, err := s.store.FindMaster(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(<-winner, stored.Phone)

	_, err = s.store.FindMasterForUpdate(s.ctx, id.NewMasterID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListMasters() {
	s.newMaster("Siti Nurhaliza", "W-07")
	s.newMaster("Budi Santoso", "W-01")
	s.newMaster("Siti Aminah", "W-02")
	s.newMaster("Hadi 100%_Wijaya", "W-02")

	all, err := s.store.ListMasters(s.ctx, "", 10)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	s.Equal("Budi Santoso", all[0].FullName)

	sitis, err := s.store.ListMasters(s.ctx, "siti", 10)
	s.Require().NoError(err)
	s.Require().Len(sitis, 2)
	s.Equal("Siti Aminah", sitis[0].FullName)
	s.Equal("Siti Nurhaliza", sitis[1].FullName)

	limited, err := s.store.ListMasters(s.ctx, "siti", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)

	literal, err := s.store.ListMasters(s.ctx, "%_", 10)
	s.Require().NoError(err)
	s.Require().Len(literal, 1, "wildcards in the query match literally")
	s.Equal("Hadi 100%_Wijaya", literal[0].FullName)
}
