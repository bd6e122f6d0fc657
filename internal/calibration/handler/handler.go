package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ssot/internal/calibration/models"
	"ssot/internal/matching/scoring"
	dErrors "ssot/pkg/domain-errors"
	"ssot/pkg/platform/httputil"
	request "ssot/pkg/platform/middleware/request"
)

// Service defines the calibration operations exposed over HTTP.
type Service interface {
	Snapshot(ctx context.Context) (*models.Snapshot, error)
	UpdateParameter(ctx context.Context, field string, m, u float64) (*models.Snapshot, error)
	UpdateParameters(ctx context.Context, inputs []models.ParameterInput) (*models.Snapshot, error)
	InitializeDefaults(ctx context.Context, confirm bool) (*models.Snapshot, error)
}

// ThresholdSource reports the decision thresholds currently in force.
type ThresholdSource interface {
	Thresholds() scoring.Thresholds
}

// Handler serves the operator calibration endpoints. Callers mount it behind
// admin authentication.
type Handler struct {
	svc        Service
	thresholds ThresholdSource
	logger     *slog.Logger
}

func New(svc Service, thresholds ThresholdSource, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, thresholds: thresholds, logger: logger}
}

// Register registers the calibration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/calibration", h.handleGet)
	r.Put("/calibration", h.handleUpdateBatch)
	r.Put("/calibration/{field}", h.handleUpdateField)
	r.Post("/calibration/initialize", h.handleInitialize)
}

type parameterView struct {
	Field          string    `json:"field"`
	M              float64   `json:"m"`
	U              float64   `json:"u"`
	AgreeWeight    float64   `json:"agree_weight"`
	DisagreeWeight float64   `json:"disagree_weight"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type snapshotResponse struct {
	Version    int64               `json:"version"`
	Parameters []parameterView     `json:"parameters"`
	Thresholds *scoring.Thresholds `json:"thresholds,omitempty"`
}

type batchRequest struct {
	Parameters []models.ParameterInput `json:"parameters"`
}

type fieldRequest struct {
	M *float64 `json:"m"`
	U *float64 `json:"u"`
}

type initializeRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		h.fail(w, r, "failed to load calibration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.toResponse(snap))
}

func (h *Handler) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	snap, err := h.svc.UpdateParameters(r.Context(), req.Parameters)
	if err != nil {
		h.fail(w, r, "calibration update rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.toResponse(snap))
}

func (h *Handler) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	field := chi.URLParam(r, "field")
	var req fieldRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.M == nil {
		httputil.WriteError(w, dErrors.NewField(dErrors.CodeValidation, "m", "m is required"))
		return
	}
	if req.U == nil {
		httputil.WriteError(w, dErrors.NewField(dErrors.CodeValidation, "u", "u is required"))
		return
	}

	snap, err := h.svc.UpdateParameter(r.Context(), field, *req.M, *req.U)
	if err != nil {
		h.fail(w, r, "calibration update rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.toResponse(snap))
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	snap, err := h.svc.InitializeDefaults(r.Context(), req.Confirm)
	if err != nil {
		h.fail(w, r, "calibration initialization rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.toResponse(snap))
}

func (h *Handler) toResponse(snap *models.Snapshot) snapshotResponse {
	resp := snapshotResponse{Version: snap.Version()}
	for _, p := range snap.Parameters() {
		sp := scoring.Parameter{M: p.M, U: p.U}
		resp.Parameters = append(resp.Parameters, parameterView{
			Field:          string(p.Field),
			M:              p.M,
			U:              p.U,
			AgreeWeight:    sp.AgreeWeight(),
			DisagreeWeight: sp.DisagreeWeight(),
			UpdatedAt:      p.UpdatedAt,
		})
	}
	if h.thresholds != nil {
		t := h.thresholds.Thresholds()
		resp.Thresholds = &t
	}
	return resp
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal || dErrors.CodeOf(err) == dErrors.CodeIntegrity {
		h.logger.ErrorContext(ctx, msg, "request_id", request.GetRequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", request.GetRequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
