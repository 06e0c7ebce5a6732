package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Status is the lifecycle state of a job in either tier.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusExecuted  Status = "Executed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// ParseStatus maps a free-form status string onto the closed set,
// ignoring case and surrounding whitespace.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "executed":
		return StatusExecuted, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// terminalStatuses permit no further transition.
var terminalStatuses = []Status{StatusExecuted, StatusCompleted, StatusCancelled}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	for _, t := range terminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Scan implements sql.Scanner. Stored values are compared case-insensitively.
func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = StatusPending
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}

	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	if s == "" {
		return string(StatusPending), nil
	}
	return string(s), nil
}

// TerminalStatusesLower lists the terminal statuses in lower case, for
// case-insensitive guards evaluated by the storage layer.
func TerminalStatusesLower() []string {
	out := make([]string, len(terminalStatuses))
	for i, t := range terminalStatuses {
		out[i] = strings.ToLower(string(t))
	}
	return out
}
