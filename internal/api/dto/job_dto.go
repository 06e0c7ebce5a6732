package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/delayq/internal/domain"
)

// CreateJobRequest is the body of POST /api/v1/jobs.
type CreateJobRequest struct {
	EventID         string          `json:"event_id" validate:"required,max=255"`
	CallbackPayload json.RawMessage `json:"callback_payload"`
	CallbackType    string          `json:"callback_type" validate:"required,callback_type"`
	CallbackURL     string          `json:"callback_url" validate:"required,url"`
	TargetTimestamp time.Time       `json:"target_timestamp" validate:"required"`
}

// UpdateJobRequest is the body of PUT /api/v1/jobs/:event_id. It replaces
// every mutable field; Status is optional.
type UpdateJobRequest struct {
	CallbackPayload json.RawMessage `json:"callback_payload"`
	CallbackType    string          `json:"callback_type" validate:"required,callback_type"`
	CallbackURL     string          `json:"callback_url" validate:"required,url"`
	TargetTimestamp time.Time       `json:"target_timestamp" validate:"required"`
	Status          *string         `json:"status" validate:"omitempty,job_status"`
}

type ListJobsRequest struct {
	From     string `form:"from"`
	To       string `form:"to"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	EventID         string          `json:"event_id"`
	CallbackPayload json.RawMessage `json:"callback_payload"`
	CallbackType    string          `json:"callback_type"`
	CallbackURL     string          `json:"callback_url"`
	TargetTimestamp string          `json:"target_timestamp"`
	CreatedAt       string          `json:"created_at"`
	ExecutedAt      *string         `json:"executed_at"`
	Status          string          `json:"status"`
}

// CancelResponse is returned by a successful cancel.
type CancelResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

func NewJobDTO(job *domain.Job) JobDTO {
	return JobDTO{
		EventID:         job.EventID,
		CallbackPayload: payloadOrNull(job.CallbackPayload),
		CallbackType:    string(job.CallbackType),
		CallbackURL:     job.CallbackURL,
		TargetTimestamp: formatTime(job.TargetTimestamp),
		CreatedAt:       formatTime(job.CreatedAt),
		ExecutedAt:      formatTimePtr(job.ExecutedAt),
		Status:          job.Status.String(),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func payloadOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
