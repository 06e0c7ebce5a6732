package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// CallbackType selects how a due job is delivered.
type CallbackType string

const (
	CallbackHTTP  CallbackType = "HTTP"
	CallbackQueue CallbackType = "QUEUE"
)

// ParseCallbackType accepts HTTP and QUEUE in any case. SQS is kept as an
// alias of QUEUE for clients written against the first API revision.
func ParseCallbackType(s string) (CallbackType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HTTP":
		return CallbackHTTP, nil
	case "QUEUE", "SQS":
		return CallbackQueue, nil
	default:
		return "", errors.Wrapf(ErrInvalidCallbackType, "%q", s)
	}
}
