package dto

import (
	"github.com/cuongbtq/delayq/internal/partition"
)

// EnsurePartitionsRequest is the body of POST /api/v1/partitions and
// POST /api/v1/partitions/schedule. An omitted NumberOfDays defaults to 7;
// an explicit value must be at least 1.
type EnsurePartitionsRequest struct {
	StartDate    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	NumberOfDays *int   `json:"number_of_days" validate:"omitempty,min=1,max=3660"`
}

// Days returns the requested day count, or def when the field was omitted.
func (r *EnsurePartitionsRequest) Days(def int) int {
	if r.NumberOfDays == nil {
		return def
	}
	return *r.NumberOfDays
}

// EnsurePartitionRangeRequest is the body of POST /api/v1/partitions/range.
// ToDate is exclusive.
type EnsurePartitionRangeRequest struct {
	FromDate string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate   string `json:"to_date" validate:"required,datetime=2006-01-02"`
}

// PartitionReportResponse wraps a report with its overall verdict.
type PartitionReportResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*partition.Report
}

type ScheduleResponse struct {
	RequestID    string `json:"request_id"`
	StartDate    string `json:"start_date"`
	NumberOfDays int    `json:"number_of_days"`
}

type PartitionDTO struct {
	Name     string  `json:"name"`
	Schema   string  `json:"schema"`
	Bound    string  `json:"bound"`
	Size     string  `json:"size"`
	RowCount int64   `json:"row_count"`
	From     *string `json:"from,omitempty"`
	To       *string `json:"to,omitempty"`
}

type ListPartitionsResponse struct {
	BaseTable  string         `json:"base_table"`
	Partitions []PartitionDTO `json:"partitions"`
}

func NewPartitionDTO(info partition.Info) PartitionDTO {
	return PartitionDTO{
		Name:     info.Name,
		Schema:   info.Schema,
		Bound:    info.Bound,
		Size:     info.Size,
		RowCount: info.RowCount,
		From:     formatTimePtr(info.From),
		To:       formatTimePtr(info.To),
	}
}
