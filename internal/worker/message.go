package worker

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/partition"
)

// DefaultNumberOfDays is applied when a message omits number_of_days.
const DefaultNumberOfDays = 7

// maintenanceMessage is a decoded partition request with its delivery.
type maintenanceMessage struct {
	request  domain.PartitionRequest
	start    time.Time
	delivery amqp.Delivery
}

// decodeMessage parses and validates a delivery body. Errors are marked
// ErrInvalidMessage.
func decodeMessage(d amqp.Delivery) (*maintenanceMessage, error) {
	var body struct {
		RequestID    string `json:"request_id"`
		StartDate    string `json:"start_date"`
		NumberOfDays *int   `json:"number_of_days"`
	}
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse message JSON"), ErrInvalidMessage)
	}

	req := domain.PartitionRequest{
		RequestID:    body.RequestID,
		StartDate:    body.StartDate,
		NumberOfDays: DefaultNumberOfDays,
	}
	if body.NumberOfDays != nil {
		req.NumberOfDays = *body.NumberOfDays
	}

	start, err := time.Parse(domain.DayLayout, req.StartDate)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid start_date %q", req.StartDate), ErrInvalidMessage)
	}

	if req.NumberOfDays < 1 || req.NumberOfDays > partition.MaxDaysPerRun {
		return nil, errors.Mark(errors.Newf("number_of_days %d out of range", req.NumberOfDays), ErrInvalidMessage)
	}

	return &maintenanceMessage{request: req, start: start, delivery: d}, nil
}
