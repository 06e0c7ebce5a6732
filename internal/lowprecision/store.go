// Package lowprecision implements the approximate tier: jobs keyed by event
// id, carrying a ttl expiry and a calendar-day partition key derived from the
// target execution time.
package lowprecision

import (
	"context"
	"time"

	"github.com/cuongbtq/delayq/internal/domain"
)

// Store is the approximate-tier job store.
type Store interface {
	Create(ctx context.Context, params domain.LowPrecisionParams) (*domain.LowPrecisionJob, error)
	Get(ctx context.Context, eventID string) (*domain.LowPrecisionJob, error)
	Update(ctx context.Context, params domain.LowPrecisionParams) (*domain.LowPrecisionJob, error)
	Cancel(ctx context.Context, eventID string) (bool, error)
	ListByDate(ctx context.Context, day time.Time) ([]*domain.LowPrecisionJob, error)
	HealthCheck(ctx context.Context) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
