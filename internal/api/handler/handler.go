package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/partition"
	"github.com/cuongbtq/delayq/internal/storage"
)

// JobStore is the exact-tier store used by JobHandler.
type JobStore interface {
	Create(ctx context.Context, params domain.JobParams) (*domain.Job, error)
	GetByEventID(ctx context.Context, eventID string) (*domain.Job, error)
	GetByEventIDAndTimestamp(ctx context.Context, eventID string, ts time.Time) (*domain.Job, error)
	Update(ctx context.Context, params domain.JobParams) (*domain.Job, error)
	Cancel(ctx context.Context, eventID string) (bool, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

// LowPrecisionStore is the approximate-tier store used by LowPrecisionHandler.
type LowPrecisionStore interface {
	Create(ctx context.Context, params domain.LowPrecisionParams) (*domain.LowPrecisionJob, error)
	Get(ctx context.Context, eventID string) (*domain.LowPrecisionJob, error)
	Update(ctx context.Context, params domain.LowPrecisionParams) (*domain.LowPrecisionJob, error)
	Cancel(ctx context.Context, eventID string) (bool, error)
	ListByDate(ctx context.Context, day time.Time) ([]*domain.LowPrecisionJob, error)
}

// PartitionManager creates, lists and drops daily partitions.
type PartitionManager interface {
	BaseTable() string
	EnsureDailyPartitions(ctx context.Context, fromDate time.Time, numberOfDays int) (*partition.Report, error)
	EnsurePartitions(ctx context.Context, fromDate, toDate time.Time) (*partition.Report, error)
	List(ctx context.Context) ([]partition.Info, error)
	Drop(ctx context.Context, name string) (bool, error)
}

// Publisher sends partition maintenance requests to the worker.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Jobs         JobStore
	LowPrecision LowPrecisionStore
	Partitions   PartitionManager
	Publisher    Publisher

	// HealthChecks are probed by GET /health, keyed by service name.
	HealthChecks map[string]HealthChecker

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
