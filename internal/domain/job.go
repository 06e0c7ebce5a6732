package domain

import (
	"encoding/json"
	"time"
)

// DayLayout is the calendar-day format used for partition keys and API dates.
const DayLayout = "2006-01-02"

// Job is an exact-tier job. The pair (EventID, TargetTimestamp) is the row
// identity and TargetTimestamp is the partitioning key.
type Job struct {
	EventID         string          `db:"event_id" json:"event_id"`
	CallbackPayload json.RawMessage `db:"callback_payload" json:"callback_payload"`
	CallbackType    CallbackType    `db:"callback_type" json:"callback_type"`
	CallbackURL     string          `db:"callback_url" json:"callback_url"`
	TargetTimestamp time.Time       `db:"target_timestamp" json:"target_timestamp"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	ExecutedAt      *time.Time      `db:"executed_at" json:"executed_at"`
	Status          Status          `db:"status" json:"status"`
}

// JobParams carries the caller-supplied fields of a create or update.
type JobParams struct {
	EventID         string
	CallbackPayload json.RawMessage
	CallbackType    CallbackType
	CallbackURL     string
	TargetTimestamp time.Time

	// Status is only honoured by updates. Nil leaves the status unchanged.
	Status *Status
}

// LowPrecisionJob is an approximate-tier job. TTLExpiry and PartitionKey are
// derived from TargetExecutionTime and only ever change through Schedule.
type LowPrecisionJob struct {
	EventID             string          `json:"event_id"`
	CallbackPayload     json.RawMessage `json:"callback_payload"`
	CallbackType        CallbackType    `json:"callback_type"`
	CallbackURL         string          `json:"callback_url"`
	TargetExecutionTime time.Time       `json:"target_execution_time"`
	TTLExpiry           int64           `json:"ttl_expiry"`
	PartitionKey        string          `json:"partition_key"`
	SortKey             string          `json:"sort_key"`
	CreatedAt           time.Time       `json:"created_at"`
	ExecutedAt          *time.Time      `json:"executed_at"`
	Status              Status          `json:"status"`
}

// LowPrecisionParams carries the caller-supplied fields of an approximate-tier
// create or update.
type LowPrecisionParams struct {
	EventID             string
	CallbackPayload     json.RawMessage
	CallbackType        CallbackType
	CallbackURL         string
	TargetExecutionTime time.Time
	Status              *Status
}

// DeriveExpiry returns the ttl expiry (unix seconds) and day partition key of t, both in UTC.
func DeriveExpiry(t time.Time) (int64, string) {
	u := t.UTC()
	return u.Unix(), u.Format(DayLayout)
}

// Schedule sets the target execution time and re-derives the expiry marker
// and partition key from it.
func (j *LowPrecisionJob) Schedule(target time.Time) {
	j.TargetExecutionTime = target.UTC()
	j.TTLExpiry, j.PartitionKey = DeriveExpiry(target)
}

// NewLowPrecisionJob builds a pending approximate-tier job from params.
func NewLowPrecisionJob(params LowPrecisionParams, now time.Time) *LowPrecisionJob {
	job := &LowPrecisionJob{
		EventID:         params.EventID,
		CallbackPayload: cloneRaw(params.CallbackPayload),
		CallbackType:    params.CallbackType,
		CallbackURL:     params.CallbackURL,
		SortKey:         params.EventID,
		CreatedAt:       now.UTC(),
		Status:          StatusPending,
	}
	job.Schedule(params.TargetExecutionTime)
	return job
}

// Clone returns a deep copy of j.
func (j *LowPrecisionJob) Clone() *LowPrecisionJob {
	if j == nil {
		return nil
	}
	c := *j
	c.CallbackPayload = cloneRaw(j.CallbackPayload)
	if j.ExecutedAt != nil {
		t := *j.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

// PartitionRequest asks the maintenance worker to ensure daily partitions.
type PartitionRequest struct {
	RequestID    string `json:"request_id"`
	StartDate    string `json:"start_date"`
	NumberOfDays int    `json:"number_of_days"`
}
