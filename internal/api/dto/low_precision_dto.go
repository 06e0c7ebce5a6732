package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/delayq/internal/domain"
)

// CreateLowPrecisionJobRequest is the body of POST /api/v1/low-precision-jobs.
type CreateLowPrecisionJobRequest struct {
	EventID             string          `json:"event_id" validate:"required,max=255"`
	CallbackPayload     json.RawMessage `json:"callback_payload"`
	CallbackType        string          `json:"callback_type" validate:"required,callback_type"`
	CallbackURL         string          `json:"callback_url" validate:"required,url"`
	TargetExecutionTime time.Time       `json:"target_execution_time" validate:"required"`
}

// UpdateLowPrecisionJobRequest is the body of PUT /api/v1/low-precision-jobs/:event_id.
type UpdateLowPrecisionJobRequest struct {
	CallbackPayload     json.RawMessage `json:"callback_payload"`
	CallbackType        string          `json:"callback_type" validate:"required,callback_type"`
	CallbackURL         string          `json:"callback_url" validate:"required,url"`
	TargetExecutionTime time.Time       `json:"target_execution_time" validate:"required"`
	Status              *string         `json:"status" validate:"omitempty,job_status"`
}

type LowPrecisionJobDTO struct {
	EventID             string          `json:"event_id"`
	CallbackPayload     json.RawMessage `json:"callback_payload"`
	CallbackType        string          `json:"callback_type"`
	CallbackURL         string          `json:"callback_url"`
	TargetExecutionTime string          `json:"target_execution_time"`
	TTLExpiry           int64           `json:"ttl_expiry"`
	PartitionKey        string          `json:"partition_key"`
	SortKey             string          `json:"sort_key"`
	CreatedAt           string          `json:"created_at"`
	ExecutedAt          *string         `json:"executed_at"`
	Status              string          `json:"status"`
}

type ListLowPrecisionJobsResponse struct {
	Date string               `json:"date"`
	Jobs []LowPrecisionJobDTO `json:"jobs"`
}

func NewLowPrecisionJobDTO(job *domain.LowPrecisionJob) LowPrecisionJobDTO {
	return LowPrecisionJobDTO{
		EventID:             job.EventID,
		CallbackPayload:     payloadOrNull(job.CallbackPayload),
		CallbackType:        string(job.CallbackType),
		CallbackURL:         job.CallbackURL,
		TargetExecutionTime: formatTime(job.TargetExecutionTime),
		TTLExpiry:           job.TTLExpiry,
		PartitionKey:        job.PartitionKey,
		SortKey:             job.SortKey,
		CreatedAt:           formatTime(job.CreatedAt),
		ExecutedAt:          formatTimePtr(job.ExecutedAt),
		Status:              job.Status.String(),
	}
}
