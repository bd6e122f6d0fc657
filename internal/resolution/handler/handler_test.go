package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ssot/internal/identity/models"
	"ssot/internal/resolution/handler/mocks"
	"ssot/internal/resolution/service"
	id "ssot/pkg/domain"
	dErrors "ssot/pkg/domain-errors"
	audit "ssot/pkg/platform/audit"
	request "ssot/pkg/platform/middleware/request"
	"ssot/pkg/requestcontext"
	"ssot/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/resolution-mocks.go -package=mocks Service,AuditReader
type ResolutionHandlerSuite struct {
	suite.Suite
	svc    *mocks.MockService
	audits *mocks.MockAuditReader
	router http.Handler
}

func TestResolutionHandlerSuite(t *testing.T) {
	suite.Run(t, new(ResolutionHandlerSuite))
}

func (s *ResolutionHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.svc = mocks.NewMockService(ctrl)
	s.audits = mocks.NewMockAuditReader(ctrl)
	h := New(s.svc, s.audits, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(request.Actor(service.RegistrationActor))
		h.RegisterIntake(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(request.Actor(""))
		h.RegisterReview(r)
	})
	s.router = r
}

func (s *ResolutionHandlerSuite) TestSubmit() {
	s.Run("normalizes aliases and returns 201", func() {
		sub := &models.Submission{ID: id.NewSubmissionID(), Status: models.StatusPending}
		s.svc.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, p models.Payload) (*service.SubmitResult, error) {
				s.Equal("Siti Nurhaliza", p.Record().FullName)
				return &service.SubmitResult{Submission: sub}, nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/submissions", map[string]any{"nama_lengkap": "Siti Nurhaliza"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)

		body := testutil.UnmarshalResponse[service.SubmitResult](s.T(), rr)
		s.Equal(sub.ID, body.Submission.ID)
	})

	s.Run("non-object payload is rejected", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/submissions", `["x"]`)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("uncalibrated field maps to 422", func() {
		s.svc.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.NewField(dErrors.CodeUncalibrated, "region", "field region has no calibration"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/submissions", map[string]any{"full_name": "X"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "uncalibrated_field")
	})
}

func (s *ResolutionHandlerSuite) TestSubmitUsesRegistrationActorByDefault() {
	s.svc.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ models.Payload) (*service.SubmitResult, error) {
			s.Equal(service.RegistrationActor, requestcontext.Actor(ctx))
			return &service.SubmitResult{Submission: &models.Submission{}}, nil
		})
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/submissions", map[string]any{"full_name": "X"})
	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusCreated)
}

func (s *ResolutionHandlerSuite) TestResolve() {
	subID := id.NewSubmissionID()
	masterID := id.NewMasterID()
	path := "/submissions/" + subID.String() + "/resolve"

	s.Run("merge request is passed through", func() {
		s.svc.EXPECT().Resolve(gomock.Any(), service.ResolveRequest{
			SubmissionID:   subID,
			Decision:       service.DecisionMerge,
			TargetMasterID: &masterID,
			FieldOverrides: map[string]string{"phone": "0812"},
		}).Return(&service.Outcome{SubmissionID: subID, Decision: service.DecisionMerge, Status: models.StatusMerged, Master: &models.Master{ID: masterID}}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"decision":         "merge",
			"target_master_id": masterID.String(),
			"field_overrides":  map[string]string{"phone": "0812"},
		})
		req.Header.Set(request.HeaderActorID, "operator-7")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "merged")
	})

	s.Run("unknown decision is rejected before the service", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "reject"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertFieldError(s.T(), rr, http.StatusBadRequest, "validation_error", "decision")
	})

	s.Run("malformed target names the field", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "merge", "target_master_id": "nope"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertFieldError(s.T(), rr, http.StatusBadRequest, "validation_error", "target_master_id")
	})

	s.Run("already resolved maps to 409", func() {
		s.svc.EXPECT().Resolve(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "submission already resolved"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "accept", "override": true})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("audit failure does not leak the cause", func() {
		s.svc.EXPECT().Resolve(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("disk full"), dErrors.CodeIntegrity, "failed to record audit entry; operation rolled back"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "accept"})
		rr := testutil.DoRequest(s.router, req)
		s.NotContains(rr.Body.String(), "disk full")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "integrity_error")
	})

	s.Run("invalid submission id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/submissions/abc/resolve", map[string]any{"decision": "accept"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}

func (s *ResolutionHandlerSuite) TestResolveCandidate() {
	candID := id.NewCandidateID()
	s.svc.EXPECT().ResolveCandidate(gomock.Any(), candID, service.DecisionAccept).
		Return(&service.Outcome{Decision: service.DecisionAccept, Status: models.StatusResolved, Master: &models.Master{}}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/candidates/"+candID.String()+"/resolve", map[string]string{"decision": "accept"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "resolved")
}

func (s *ResolutionHandlerSuite) TestRescoreAndGet() {
	subID := id.NewSubmissionID()
	view := &service.SubmissionView{Submission: &models.Submission{ID: subID, ScoringRun: 2}}

	s.svc.EXPECT().Rescore(gomock.Any(), subID).Return(view, nil)
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/submissions/"+subID.String()+"/rescore"))
	testutil.AssertStatusOK(s.T(), rr)

	s.svc.EXPECT().GetSubmission(gomock.Any(), subID).Return(view, nil)
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/submissions/"+subID.String()))
	testutil.AssertStatusOK(s.T(), rr)
	body := testutil.UnmarshalResponse[service.SubmissionView](s.T(), rr)
	s.Equal(2, body.Submission.ScoringRun)

	masterID := id.NewMasterID()
	s.svc.EXPECT().GetMaster(gomock.Any(), masterID).
		Return(nil, dErrors.NewField(dErrors.CodeNotFound, "master_id", "master identity not found"))
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/masters/"+masterID.String()))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *ResolutionHandlerSuite) TestReviewQueue() {
	s.Run("passes the limit", func() {
		s.svc.EXPECT().ReviewQueue(gomock.Any(), 10).
			Return(&service.ReviewPage{Items: []models.ReviewItem{{}, {}}, Total: 37}, nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/review-queue?limit=10"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "count", float64(2))
		testutil.AssertJSONContains(s.T(), rr, "total", float64(37))
	})

	s.Run("rejects a malformed limit", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/review-queue?limit=-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *ResolutionHandlerSuite) TestListMasters() {
	s.Run("passes the name query and limit", func() {
		s.svc.EXPECT().ListMasters(gomock.Any(), "siti", 5).
			Return([]*models.Master{{FullName: "Siti Aminah"}, {FullName: "Siti Nurhaliza"}}, nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/masters?q=siti&limit=5"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "count", float64(2))
	})

	s.Run("empty result is an empty list", func() {
		s.svc.EXPECT().ListMasters(gomock.Any(), "", 0).Return(nil, nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/masters"))
		testutil.AssertStatusOK(s.T(), rr)
		body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal([]any{}, (*body)["masters"])
	})

	s.Run("limit above the maximum is a field error", func() {
		s.svc.EXPECT().ListMasters(gomock.Any(), "", 900).
			Return(nil, dErrors.NewField(dErrors.CodeValidation, "limit", "limit must not exceed 500"))
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/masters?limit=900"))
		testutil.AssertFieldError(s.T(), rr, http.StatusBadRequest, "validation_error", "limit")
	})
}

func (s *ResolutionHandlerSuite) TestAudit() {
	s.Run("recent entries", func() {
		s.audits.EXPECT().ListRecent(gomock.Any(), defaultAuditLimit).
			Return([]audit.Entry{{Action: audit.ActionSubmissionMerged}}, nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "count", float64(1))
	})

	s.Run("entries of one record", func() {
		masterID := id.NewMasterID().String()
		s.audits.EXPECT().ListByEntity(gomock.Any(), audit.EntityMaster, masterID).Return(nil, nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/audit?entity_type=master_identity&entity_id="+masterID))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "count", float64(0))
	})

	s.Run("half an entity filter is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit?entity_type=master_identity"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("store failure is internal", func() {
		s.audits.EXPECT().ListRecent(gomock.Any(), 5).Return(nil, errors.New("connection reset"))
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit?limit=5"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
	})
}
