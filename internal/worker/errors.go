package worker

import (
	"github.com/cockroachdb/errors"
)

// ErrInvalidMessage marks maintenance messages that can never succeed.
var ErrInvalidMessage = errors.New("invalid maintenance message")

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// shouldRequeue decides the Nack requeue flag. Only retryable errors are
// requeued, and only on first delivery so a persistently failing request is
// dropped after one retry.
func shouldRequeue(err error, redelivered bool) bool {
	if errors.Is(err, ErrInvalidMessage) {
		return false
	}

	var retryable *RetryableError
	if !errors.As(err, &retryable) {
		return false
	}
	return !redelivered
}
