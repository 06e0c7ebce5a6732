package domain

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicateJob is returned when a job with the same event id already exists
	ErrDuplicateJob = errors.New("job already exists")

	// ErrNotFound is returned when the addressed job does not exist
	ErrNotFound = errors.New("job not found")

	// ErrInvalidState is returned when a transition is attempted on a terminal job
	ErrInvalidState = errors.New("job is in a terminal state")

	// ErrInvalidStatus is returned when a status string does not name a known status
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrInvalidCallbackType is returned for callback types other than HTTP and QUEUE
	ErrInvalidCallbackType = errors.New("invalid callback type")

	// ErrInvalidRange is returned for empty or inverted date ranges and malformed partition names
	ErrInvalidRange = errors.New("invalid partition range")

	// ErrPartitionExists is returned by a catalog when the partition table is already present
	ErrPartitionExists = errors.New("partition already exists")

	// ErrPartitionFailure marks a partition run in which no requested day succeeded
	ErrPartitionFailure = errors.New("partition creation failed")

	// ErrNoPartition is returned when a job row falls outside every existing partition.
	// It is always also marked ErrStorage.
	ErrNoPartition = errors.New("no partition covers target timestamp")

	// ErrStorage marks failures of the underlying persistence layer
	ErrStorage = errors.New("storage failure")
)

// StorageError wraps err with msg and marks it as a storage failure.
// A nil err stays nil.
func StorageError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrStorage)
}
