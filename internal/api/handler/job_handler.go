package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/delayq/internal/api/dto"
	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobHandler handles exact-tier job requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobStore
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger.With(slog.String("component", "job_handler")),
		jobs:   deps.Jobs,
	}
}

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	callbackType, err := domain.ParseCallbackType(req.CallbackType)
	if err != nil {
		respondError(c, h.logger, "Invalid callback type", err)
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), domain.JobParams{
		EventID:         req.EventID,
		CallbackPayload: req.CallbackPayload,
		CallbackType:    callbackType,
		CallbackURL:     req.CallbackURL,
		TargetTimestamp: req.TargetTimestamp,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to create job", err)
		return
	}

	c.Header("Location", "/api/v1/jobs/"+job.EventID)
	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:event_id
// An optional ?timestamp= (RFC 3339) selects the exact (event_id, timestamp) row.
func (h *JobHandler) GetJob(c *gin.Context) {
	eventID := c.Param("event_id")

	var (
		job *domain.Job
		err error
	)
	if raw := c.Query("timestamp"); raw != "" {
		ts, perr := time.Parse(time.RFC3339Nano, raw)
		if perr != nil {
			badRequest(c, "timestamp must be an RFC 3339 instant")
			return
		}
		job, err = h.jobs.GetByEventIDAndTimestamp(c.Request.Context(), eventID, ts)
	} else {
		job, err = h.jobs.GetByEventID(c.Request.Context(), eventID)
	}
	if err != nil {
		respondError(c, h.logger, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// With from and to it returns every job in [from, to). Otherwise it pages
// through all jobs in target timestamp order.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		badRequest(c, "Invalid query parameters")
		return
	}

	if req.From != "" || req.To != "" {
		h.listRange(c, req)
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "Invalid cursor")
		return
	}

	filter := storage.JobFilter{
		PageSize: req.PageSize,
		Cursor:   cursor,
	}
	if req.Status != "" {
		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			respondError(c, h.logger, "Invalid status", err)
			return
		}
		filter.Status = &status
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "Failed to list jobs", err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: toJobDTOs(jobs)}
	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			TargetTimestamp: last.TargetTimestamp,
			EventID:         last.EventID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) listRange(c *gin.Context, req dto.ListJobsRequest) {
	from, ferr := time.Parse(time.RFC3339Nano, req.From)
	to, terr := time.Parse(time.RFC3339Nano, req.To)
	if ferr != nil || terr != nil {
		badRequest(c, "from and to must both be RFC 3339 instants")
		return
	}

	jobs, err := h.jobs.ListByDateRange(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.logger, "Failed to list jobs", err)
		return
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: toJobDTOs(jobs)})
}

// UpdateJob handles PUT /api/v1/jobs/:event_id
func (h *JobHandler) UpdateJob(c *gin.Context) {
	var req dto.UpdateJobRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	callbackType, err := domain.ParseCallbackType(req.CallbackType)
	if err != nil {
		respondError(c, h.logger, "Invalid callback type", err)
		return
	}

	params := domain.JobParams{
		EventID:         c.Param("event_id"),
		CallbackPayload: req.CallbackPayload,
		CallbackType:    callbackType,
		CallbackURL:     req.CallbackURL,
		TargetTimestamp: req.TargetTimestamp,
	}
	if req.Status != nil {
		status, err := domain.ParseStatus(*req.Status)
		if err != nil {
			respondError(c, h.logger, "Invalid status", err)
			return
		}
		params.Status = &status
	}

	job, err := h.jobs.Update(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, "Failed to update job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// CancelJob handles DELETE /api/v1/jobs/:event_id
// A refused cancel is re-checked to tell a missing job (404) from a terminal one (409).
func (h *JobHandler) CancelJob(c *gin.Context) {
	eventID := c.Param("event_id")
	ctx := c.Request.Context()

	ok, err := h.jobs.Cancel(ctx, eventID)
	if err != nil {
		respondError(c, h.logger, "Failed to cancel job", err)
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

	job, err := h.jobs.GetByEventID(ctx, eventID)
	if err != nil {
		respondError(c, h.logger, "Failed to cancel job", err)
		return
	}
	respondError(c, h.logger, "Failed to cancel job",
		errors.Wrapf(domain.ErrInvalidState, "job %q is %s", eventID, job.Status))
}

func toJobDTOs(jobs []domain.Job) []dto.JobDTO {
	out := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		out[i] = dto.NewJobDTO(&jobs[i])
	}
	return out
}
