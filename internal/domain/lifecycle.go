package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Job lifecycle:
//
//	Pending --cancel--> Cancelled
//	Pending --update(status=Executed|Completed)--> Executed / Completed
//	Cancelled, Executed, Completed: no transition succeeds
//
// Both tiers apply these rules; the exact tier evaluates the same guard in SQL.

// CanCancel reports whether a job in status s may be cancelled.
func CanCancel(s Status) bool {
	return !s.IsTerminal()
}

// CheckUpdate returns ErrInvalidState when a job in status current may not be updated.
func CheckUpdate(current Status) error {
	if current.IsTerminal() {
		return errors.Wrapf(ErrInvalidState, "status %s", current)
	}
	return nil
}

// NextStatus resolves the status written by an update. A nil requested
// status keeps current.
func NextStatus(current Status, requested *Status) Status {
	if requested == nil {
		return current
	}
	return *requested
}

// ExecutionStamp returns the executedAt value after moving into next.
// Entering a terminal status stamps now; otherwise prev is kept.
func ExecutionStamp(next Status, prev *time.Time, now time.Time) *time.Time {
	if next.IsTerminal() {
		t := now.UTC()
		return &t
	}
	return prev
}

// Cancel moves j to Cancelled. It reports false and leaves j untouched when
// j is already terminal.
func (j *LowPrecisionJob) Cancel(now time.Time) bool {
	if !CanCancel(j.Status) {
		return false
	}
	j.Status = StatusCancelled
	j.ExecutedAt = ExecutionStamp(StatusCancelled, j.ExecutedAt, now)
	return true
}

// Apply replaces the mutable fields of j with params, re-deriving the expiry
// marker and partition key. It refuses terminal jobs with ErrInvalidState.
func (j *LowPrecisionJob) Apply(params LowPrecisionParams, now time.Time) error {
	if err := CheckUpdate(j.Status); err != nil {
		return err
	}

	next := NextStatus(j.Status, params.Status)
	j.CallbackPayload = cloneRaw(params.CallbackPayload)
	j.CallbackType = params.CallbackType
	j.CallbackURL = params.CallbackURL
	j.Schedule(params.TargetExecutionTime)
	j.ExecutedAt = ExecutionStamp(next, j.ExecutedAt, now)
	j.Status = next
	return nil
}
