package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"ssot/internal/calibration/metrics"
	"ssot/internal/calibration/models"
	"ssot/internal/calibration/store"
	"ssot/internal/matching/comparator"
	dErrors "ssot/pkg/domain-errors"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/audit/publishers/compliance"
	auditmemory "ssot/pkg/platform/audit/store/memory"
	txcontext "ssot/pkg/platform/tx"
	"ssot/pkg/requestcontext"
)

type failingAuditStore struct {
	*auditmemory.InMemoryStore
}

func (failingAuditStore) Append(context.Context, audit.Entry) error {
	return errors.New("audit backend down")
}

type CalibrationServiceSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.InMemoryStore
	audits *auditmemory.InMemoryStore
	runner *txcontext.MemoryRunner
	svc    *Service
}

func TestCalibrationServiceSuite(t *testing.T) {
	suite.Run(t, new(CalibrationServiceSuite))
}

func (s *CalibrationServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithActor(context.Background(), "operator-7")
	s.ctx = requestcontext.WithTime(s.ctx, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.audits = auditmemory.NewInMemoryStore()
	s.runner = txcontext.NewMemoryRunner(0)
	s.svc = New(s.store, s.runner, compliance.New(s.audits),
		WithMetrics(metrics.New(prometheus.NewRegistry())))
}

func (s *CalibrationServiceSuite) initDefaults() {
	_, err := s.svc.InitializeDefaults(s.ctx, false)
	s.Require().NoError(err)
}

func (s *CalibrationServiceSuite) auditEntries() []audit.Entry {
	entries, err := s.audits.ListRecent(context.Background(), 100)
	s.Require().NoError(err)
	return entries
}

func (s *CalibrationServiceSuite) TestInitializeDefaults() {
	s.Run("first run writes defaults with one audit entry", func() {
		snap, err := s.svc.InitializeDefaults(s.ctx, false)
		s.Require().NoError(err)
		s.Equal(int64(1), snap.Version())
		s.Len(snap.Parameters(), len(comparator.Fields))

		entries := s.auditEntries()
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionCalibrationInitialized, entries[0].Action)
		s.Equal("operator-7", entries[0].Actor)
		s.NotEmpty(entries[0].NewData)
	})

	s.Run("second run without confirm conflicts and changes nothing", func() {
		_, err := s.svc.InitializeDefaults(s.ctx, false)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		version, _, err := s.store.Load(context.Background())
		s.Require().NoError(err)
		s.Equal(int64(1), version)
		s.Len(s.auditEntries(), 1)
	})

	s.Run("confirmed run replaces and audits previous values", func() {
		_, err := s.svc.UpdateParameter(s.ctx, "region", 0.7, 0.3)
		s.Require().NoError(err)

		snap, err := s.svc.InitializeDefaults(s.ctx, true)
		s.Require().NoError(err)
		p, _ := snap.Get(comparator.Region)
		s.Equal(0.60, p.M)

		latest := s.auditEntries()[0]
		s.Equal(audit.ActionCalibrationInitialized, latest.Action)
		var before stateView
		s.Require().NoError(json.Unmarshal(latest.OldData, &before))
		for _, bp := range before.Parameters {
			if bp.Field == comparator.Region {
				s.Equal(0.7, bp.M)
			}
		}
	})
}

func (s *CalibrationServiceSuite) TestUpdateRejectsMNotAboveU() {
	s.initDefaults()

	_, err := s.svc.UpdateParameter(s.ctx, "email", 0.4, 0.4)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("email", dErrors.FieldOf(err))

	snap, err := s.svc.Snapshot(s.ctx)
	s.Require().NoError(err)
	p, _ := snap.Get(comparator.Email)
	s.Equal(0.99, p.M)
	s.Equal(0.01, p.U)
	s.Len(s.auditEntries(), 1, "rejected update must not be audited")
}

func (s *CalibrationServiceSuite) TestBatchIsAllOrNothing() {
	s.initDefaults()

	_, err := s.svc.UpdateParameters(s.ctx, []models.ParameterInput{
		{Field: "full_name", M: 0.97, U: 0.03},
		{Field: "phone", M: 0.2, U: 0.5},
	})
	s.Require().Error(err)
	s.Equal("phone", dErrors.FieldOf(err))

	snap, err := s.svc.Snapshot(s.ctx)
	s.Require().NoError(err)
	p, _ := snap.Get(comparator.FullName)
	s.Equal(0.95, p.M)
}

func (s *CalibrationServiceSuite) TestUpdateValidation() {
	s.Run("unknown field", func() {
		_, err := s.svc.UpdateParameter(s.ctx, "nickname", 0.9, 0.1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate field", func() {
		_, err := s.svc.UpdateParameters(s.ctx, []models.ParameterInput{
			{Field: "email", M: 0.9, U: 0.1},
			{Field: "email", M: 0.8, U: 0.1},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing actor", func() {
		_, err := s.svc.UpdateParameter(context.Background(), "email", 0.9, 0.1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("empty batch", func() {
		_, err := s.svc.UpdateParameters(s.ctx, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("field without stored parameter", func() {
		_, err := s.svc.UpdateParameter(s.ctx, "email", 0.9, 0.1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal("email", dErrors.FieldOf(err))
	})
}

func (s *CalibrationServiceSuite) TestUpdateAuditsBeforeAndAfter() {
	s.initDefaults()

	snap, err := s.svc.UpdateParameter(s.ctx, "region", 0.65, 0.35)
	s.Require().NoError(err)
	s.Equal(int64(2), snap.Version())

	entry := s.auditEntries()[0]
	s.Equal(audit.ActionCalibrationUpdated, entry.Action)
	s.Equal(audit.EntityCalibration, entry.EntityType)

	var before, after stateView
	s.Require().NoError(json.Unmarshal(entry.OldData, &before))
	s.Require().NoError(json.Unmarshal(entry.NewData, &after))
	s.Equal(int64(1), before.Version)
	s.Equal(int64(2), after.Version)
	s.Len(after.Parameters, len(comparator.Fields))
	for _, p := range after.Parameters {
		if p.Field == comparator.Region {
			s.Equal(0.65, p.M)
		}
	}
}

func (s *CalibrationServiceSuite) TestAuditFailureRollsBack() {
	s.initDefaults()
	failing := New(s.store, s.runner, compliance.New(failingAuditStore{}))

	_, err := failing.UpdateParameter(s.ctx, "region", 0.65, 0.35)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))

	version, params, err := s.store.Load(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), version)
	snap := models.NewSnapshot(version, params)
	p, _ := snap.Get(comparator.Region)
	s.Equal(0.60, p.M)
}

func (s *CalibrationServiceSuite) TestSnapshotFollowsOtherInstances() {
	s.initDefaults()
	first, err := s.svc.Snapshot(s.ctx)
	s.Require().NoError(err)

	other := New(s.store, s.runner, compliance.New(s.audits))
	_, err = other.UpdateParameter(s.ctx, "phone", 0.85, 0.05)
	s.Require().NoError(err)

	refreshed, err := s.svc.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Greater(refreshed.Version(), first.Version())
	p, _ := refreshed.Get(comparator.Phone)
	s.Equal(0.85, p.M)

	old, _ := first.Get(comparator.Phone)
	s.Equal(0.90, old.M, "published snapshots are immutable")
}
