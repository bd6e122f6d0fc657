package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ssot/internal/identity/models"
	"ssot/internal/resolution/service"
	id "ssot/pkg/domain"
	dErrors "ssot/pkg/domain-errors"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/httputil"
	request "ssot/pkg/platform/middleware/request"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// Service defines the quarantine and resolution operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, payload models.Payload) (*service.SubmitResult, error)
	GetSubmission(ctx context.Context, submissionID id.SubmissionID) (*service.SubmissionView, error)
	Resolve(ctx context.Context, req service.ResolveRequest) (*service.Outcome, error)
	ResolveCandidate(ctx context.Context, candidateID id.CandidateID, decision service.Decision) (*service.Outcome, error)
	Rescore(ctx context.Context, submissionID id.SubmissionID) (*service.SubmissionView, error)
	ReviewQueue(ctx context.Context, limit int) (*service.ReviewPage, error)
	GetMaster(ctx context.Context, masterID id.MasterID) (*models.Master, error)
	ListMasters(ctx context.Context, nameQuery string, limit int) ([]*models.Master, error)
}

// AuditReader reads the audit trail.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Entry, error)
	ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error)
}

// Handler serves registration intake and the operator review endpoints.
type Handler struct {
	svc    Service
	audits AuditReader
	logger *slog.Logger
}

func New(svc Service, audits AuditReader, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, audits: audits, logger: logger}
}

// RegisterIntake registers the route registration systems submit identities to.
func (h *Handler) RegisterIntake(r chi.Router) {
	r.Post("/submissions", h.handleSubmit)
}

// RegisterReview registers the operator routes. Callers mount them behind
// admin authentication.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Get("/submissions/{id}", h.handleGetSubmission)
	r.Post("/submissions/{id}/resolve", h.handleResolve)
	r.Post("/submissions/{id}/rescore", h.handleRescore)
	r.Post("/candidates/{id}/resolve", h.handleResolveCandidate)
	r.Get("/review-queue", h.handleReviewQueue)
	r.Get("/masters", h.handleListMasters)
	r.Get("/masters/{id}", h.handleGetMaster)
	r.Get("/audit", h.handleAudit)
}

type resolveRequest struct {
	Decision       string            `json:"decision"`
	TargetMasterID *string           `json:"target_master_id,omitempty"`
	FieldOverrides map[string]string `json:"field_overrides,omitempty"`
	Override       bool              `json:"override,omitempty"`
}

type candidateResolveRequest struct {
	Decision string `json:"decision"`
}

// reviewQueueResponse carries one page; Total counts the whole queue.
type reviewQueueResponse struct {
	Items []models.ReviewItem `json:"items"`
	Count int                 `json:"count"`
	Total int                 `json:"total"`
}

type mastersResponse struct {
	Masters []*models.Master `json:"masters"`
	Count   int              `json:"count"`
}

type auditResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := httputil.DecodeJSON(r, &raw); err != nil {
		httputil.WriteError(w, err)
		return
	}
	payload, err := models.ParsePayload(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.svc.Submit(r.Context(), payload)
	if err != nil {
		h.fail(w, r, "submission rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, err := id.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.svc.GetSubmission(r.Context(), submissionID)
	if err != nil {
		h.fail(w, r, "failed to load submission", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	submissionID, err := id.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body resolveRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := body.toServiceRequest(submissionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.svc.Resolve(r.Context(), req)
	if err != nil {
		h.fail(w, r, "resolution rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (b resolveRequest) toServiceRequest(submissionID id.SubmissionID) (service.ResolveRequest, error) {
	decision, err := service.ParseDecision(b.Decision)
	if err != nil {
		return service.ResolveRequest{}, err
	}
	req := service.ResolveRequest{
		SubmissionID:   submissionID,
		Decision:       decision,
		FieldOverrides: b.FieldOverrides,
		Override:       b.Override,
	}
	if b.TargetMasterID != nil {
		target, err := id.ParseMasterID(*b.TargetMasterID)
		if err != nil {
			return service.ResolveRequest{}, dErrors.NewField(dErrors.CodeValidation, "target_master_id", "target_master_id must be a master identity id")
		}
		req.TargetMasterID = &target
	}
	return req, nil
}

func (h *Handler) handleResolveCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID, err := id.ParseCandidateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body candidateResolveRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	decision, err := service.ParseDecision(body.Decision)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.svc.ResolveCandidate(r.Context(), candidateID, decision)
	if err != nil {
		h.fail(w, r, "resolution rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRescore(w http.ResponseWriter, r *http.Request) {
	submissionID, err := id.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.svc.Rescore(r.Context(), submissionID)
	if err != nil {
		h.fail(w, r, "rescore rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.svc.ReviewQueue(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "failed to load review queue", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reviewQueueResponse{Items: page.Items, Count: len(page.Items), Total: page.Total})
}

// handleListMasters lists master identities by name; ?q= filters by name.
func (h *Handler) handleListMasters(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	masters, err := h.svc.ListMasters(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, r, "failed to list master identities", err)
		return
	}
	if masters == nil {
		masters = []*models.Master{}
	}
	httputil.WriteJSON(w, http.StatusOK, mastersResponse{Masters: masters, Count: len(masters)})
}

func (h *Handler) handleGetMaster(w http.ResponseWriter, r *http.Request) {
	masterID, err := id.ParseMasterID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	m, err := h.svc.GetMaster(r.Context(), masterID)
	if err != nil {
		h.fail(w, r, "failed to load master identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// handleAudit lists recent entries, or every entry touching one record when
// entity_type and entity_id are given.
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityType, entityID := q.Get("entity_type"), q.Get("entity_id")

	var (
		entries []audit.Entry
		err     error
	)
	switch {
	case entityType != "" && entityID != "":
		entries, err = h.audits.ListByEntity(r.Context(), audit.EntityType(entityType), entityID)
	case entityType != "" || entityID != "":
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "entity_type and entity_id must be given together"))
		return
	default:
		limit, lerr := queryLimit(r, defaultAuditLimit)
		if lerr != nil {
			httputil.WriteError(w, lerr)
			return
		}
		if limit > maxAuditLimit {
			httputil.WriteError(w, dErrors.NewField(dErrors.CodeValidation, "limit", "limit must not exceed 1000"))
			return
		}
		entries, err = h.audits.ListRecent(r.Context(), limit)
	}
	if err != nil {
		h.fail(w, r, "failed to read audit trail", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail"))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, auditResponse{Entries: entries, Count: len(entries)})
}

func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, dErrors.NewField(dErrors.CodeValidation, "limit", "limit must be a positive integer")
	}
	return n, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeIntegrity:
		h.logger.ErrorContext(ctx, msg, "request_id", request.GetRequestID(ctx), "error", err)
	default:
		h.logger.WarnContext(ctx, msg, "request_id", request.GetRequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
