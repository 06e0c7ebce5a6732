package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/delayq/internal/api/dto"
	"github.com/cuongbtq/delayq/internal/domain"
)

// LowPrecisionHandler handles approximate-tier job requests
type LowPrecisionHandler struct {
	logger *slog.Logger
	store  LowPrecisionStore
	now    func() time.Time
}

func NewLowPrecisionHandler(deps *Dependencies) *LowPrecisionHandler {
	return &LowPrecisionHandler{
		logger: deps.Logger.With(slog.String("component", "low_precision_handler")),
		store:  deps.LowPrecision,
		now:    deps.now,
	}
}

// params converts the shared request fields. It writes a 400 and returns false
// when the target time is not in the future or the callback type is unknown.
func (h *LowPrecisionHandler) params(c *gin.Context, eventID, rawType, url string, target time.Time) (domain.LowPrecisionParams, bool) {
	if !target.After(h.now()) {
		badRequest(c, "target_execution_time must be in the future")
		return domain.LowPrecisionParams{}, false
	}

	callbackType, err := domain.ParseCallbackType(rawType)
	if err != nil {
		respondError(c, h.logger, "Invalid callback type", err)
		return domain.LowPrecisionParams{}, false
	}

	return domain.LowPrecisionParams{
		EventID:             eventID,
		CallbackType:        callbackType,
		CallbackURL:         url,
		TargetExecutionTime: target,
	}, true
}

// CreateJob handles POST /api/v1/low-precision-jobs
func (h *LowPrecisionHandler) CreateJob(c *gin.Context) {
	var req dto.CreateLowPrecisionJobRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	params, ok := h.params(c, req.EventID, req.CallbackType, req.CallbackURL, req.TargetExecutionTime)
	if !ok {
		return
	}
	params.CallbackPayload = req.CallbackPayload

	job, err := h.store.Create(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, "Failed to create low-precision job", err)
		return
	}

	c.Header("Location", "/api/v1/low-precision-jobs/"+job.EventID)
	c.JSON(http.StatusCreated, dto.NewLowPrecisionJobDTO(job))
}

// GetJob handles GET /api/v1/low-precision-jobs/:event_id
func (h *LowPrecisionHandler) GetJob(c *gin.Context) {
	job, err := h.store.Get(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		respondError(c, h.logger, "Failed to get low-precision job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewLowPrecisionJobDTO(job))
}

// UpdateJob handles PUT /api/v1/low-precision-jobs/:event_id
func (h *LowPrecisionHandler) UpdateJob(c *gin.Context) {
	var req dto.UpdateLowPrecisionJobRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	params, ok := h.params(c, c.Param("event_id"), req.CallbackType, req.CallbackURL, req.TargetExecutionTime)
	if !ok {
		return
	}
	params.CallbackPayload = req.CallbackPayload
	if req.Status != nil {
		status, err := domain.ParseStatus(*req.Status)
		if err != nil {
			respondError(c, h.logger, "Invalid status", err)
			return
		}
		params.Status = &status
	}

	job, err := h.store.Update(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, "Failed to update low-precision job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewLowPrecisionJobDTO(job))
}

// CancelJob handles DELETE /api/v1/low-precision-jobs/:event_id
func (h *LowPrecisionHandler) CancelJob(c *gin.Context) {
	eventID := c.Param("event_id")
	ctx := c.Request.Context()

	ok, err := h.store.Cancel(ctx, eventID)
	if err != nil {
		respondError(c, h.logger, "Failed to cancel low-precision job", err)
		return
	}
	if ok {
		c.JSON(http.StatusOK, dto.CancelResponse{
			Success: true,
			EventID: eventID,
			Status:  domain.StatusCancelled.String(),
		})
		return
	}

	job, err := h.store.Get(ctx, eventID)
	if err != nil {
		respondError(c, h.logger, "Failed to cancel low-precision job", err)
		return
	}
	respondError(c, h.logger, "Failed to cancel low-precision job",
		errors.Wrapf(domain.ErrInvalidState, "job %q is %s", eventID, job.Status))
}

// ListByDate handles GET /api/v1/low-precision-jobs/by-date/:date
func (h *LowPrecisionHandler) ListByDate(c *gin.Context) {
	raw := c.Param("date")
	day, err := time.Parse(domain.DayLayout, raw)
	if err != nil {
		badRequest(c, "date must be formatted as YYYY-MM-DD")
		return
	}

	jobs, err := h.store.ListByDate(c.Request.Context(), day)
	if err != nil {
		respondError(c, h.logger, "Failed to list low-precision jobs", err)
		return
	}

	out := make([]dto.LowPrecisionJobDTO, len(jobs))
	for i, job := range jobs {
		out[i] = dto.NewLowPrecisionJobDTO(job)
	}
	c.JSON(http.StatusOK, dto.ListLowPrecisionJobsResponse{Date: raw, Jobs: out})
}
