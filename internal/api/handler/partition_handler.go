package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/delayq/internal/api/dto"
	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/partition"
)

// DefaultNumberOfDays is used when a partition request omits number_of_days.
const DefaultNumberOfDays = 7

// PartitionHandler handles partition maintenance requests
type PartitionHandler struct {
	logger     *slog.Logger
	partitions PartitionManager
	publisher  Publisher
}

func NewPartitionHandler(deps *Dependencies) *PartitionHandler {
	return &PartitionHandler{
		logger:     deps.Logger.With(slog.String("component", "partition_handler")),
		partitions: deps.Partitions,
		publisher:  deps.Publisher,
	}
}

// ReportStatus is 200 when no day failed, 207 when some did and 500 when all did.
func ReportStatus(r *partition.Report) int {
	switch {
	case r.Failed == 0:
		return http.StatusOK
	case r.AllFailed():
		return http.StatusInternalServerError
	default:
		return http.StatusMultiStatus
	}
}

func (h *PartitionHandler) respondReport(c *gin.Context, report *partition.Report, err error) {
	if report == nil {
		respondError(c, h.logger, "Failed to ensure partitions", err)
		return
	}
	if err != nil {
		h.logger.Error("Partition run failed for every day",
			slog.Int("failed", report.Failed),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(ReportStatus(report), dto.PartitionReportResponse{
		Success: report.Success(),
		Message: fmt.Sprintf("created %d, skipped %d, failed %d of %d partitions",
			report.Created, report.Skipped, report.Failed, report.TotalPartitionsRequested),
		Report: report,
	})
}

// EnsurePartitions handles POST /api/v1/partitions
func (h *PartitionHandler) EnsurePartitions(c *gin.Context) {
	var req dto.EnsurePartitionsRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	start, _ := time.Parse(domain.DayLayout, req.StartDate)
	report, err := h.partitions.EnsureDailyPartitions(c.Request.Context(), start, req.Days(DefaultNumberOfDays))
	h.respondReport(c, report, err)
}

// EnsurePartitionRange handles POST /api/v1/partitions/range
func (h *PartitionHandler) EnsurePartitionRange(c *gin.Context) {
	var req dto.EnsurePartitionRangeRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	from, _ := time.Parse(domain.DayLayout, req.FromDate)
	to, _ := time.Parse(domain.DayLayout, req.ToDate)
	report, err := h.partitions.EnsurePartitions(c.Request.Context(), from, to)
	h.respondReport(c, report, err)
}

// ListPartitions handles GET /api/v1/partitions
func (h *PartitionHandler) ListPartitions(c *gin.Context) {
	infos, err := h.partitions.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to list partitions", err)
		return
	}

	out := make([]dto.PartitionDTO, len(infos))
	for i, info := range infos {
		out[i] = dto.NewPartitionDTO(info)
	}
	c.JSON(http.StatusOK, dto.ListPartitionsResponse{
		BaseTable:  h.partitions.BaseTable(),
		Partitions: out,
	})
}

// DropPartition handles DELETE /api/v1/partitions/:name
func (h *PartitionHandler) DropPartition(c *gin.Context) {
	name := c.Param("name")

	dropped, err := h.partitions.Drop(c.Request.Context(), name)
	if err != nil {
		respondError(c, h.logger, "Failed to drop partition", err)
		return
	}
	if !dropped {
		respondError(c, h.logger, "Failed to drop partition",
			errors.Wrapf(domain.ErrNotFound, "partition %q", name))
		return
	}

	h.logger.Info("Partition dropped", slog.String("partition", name))
	c.JSON(http.StatusOK, gin.H{"dropped": name})
}

// SchedulePartitions handles POST /api/v1/partitions/schedule
// The request is queued for the maintenance worker and answered with 202.
func (h *PartitionHandler) SchedulePartitions(c *gin.Context) {
	var req dto.EnsurePartitionsRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "partition scheduling is not configured"})
		return
	}

	msg := domain.PartitionRequest{
		RequestID:    uuid.NewString(),
		StartDate:    req.StartDate,
		NumberOfDays: req.Days(DefaultNumberOfDays),
	}
	if err := h.publisher.PublishJSON(c.Request.Context(), msg); err != nil {
		h.logger.Error("Failed to publish partition request",
			slog.String("request_id", msg.RequestID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Failed to schedule partition maintenance"})
		return
	}

	h.logger.Info("Partition request queued",
		slog.String("request_id", msg.RequestID),
		slog.String("start_date", msg.StartDate),
		slog.Int("number_of_days", msg.NumberOfDays),
	)
	c.JSON(http.StatusAccepted, dto.ScheduleResponse{
		RequestID:    msg.RequestID,
		StartDate:    msg.StartDate,
		NumberOfDays: msg.NumberOfDays,
	})
}
