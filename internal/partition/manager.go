package partition

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/metrics"
)

// MaxDaysPerRun bounds a single ensure run.
const MaxDaysPerRun = 3660

// createTimeout bounds a shared create. It is detached from the caller that
// started it, so it cannot fail the callers waiting on the same name.
const createTimeout = 30 * time.Second

// Manager keeps one partition per UTC calendar day of the exact-tier table.
// It never reads or writes job rows.
type Manager struct {
	catalog Catalog
	base    string
	logger  *slog.Logger
	metrics metrics.Sink

	// creates coalesces concurrent creates of the same partition in this process.
	creates singleflight.Group
}

// NewManager returns a Manager for partitions of base.
func NewManager(catalog Catalog, base string, logger *slog.Logger, sink metrics.Sink) *Manager {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Manager{
		catalog: catalog,
		base:    base,
		logger:  logger,
		metrics: sink,
	}
}

// BaseTable returns the partitioned table name.
func (m *Manager) BaseTable() string {
	return m.base
}

// EnsureDailyPartitions ensures partitions for the numberOfDays days starting
// at fromDate. See EnsurePartitions for the result contract.
func (m *Manager) EnsureDailyPartitions(ctx context.Context, fromDate time.Time, numberOfDays int) (*Report, error) {
	if numberOfDays < 1 {
		return nil, errors.Wrapf(domain.ErrInvalidRange, "number of days must be at least 1, got %d", numberOfDays)
	}
	from := TruncateDay(fromDate)
	return m.EnsurePartitions(ctx, from, from.AddDate(0, 0, numberOfDays))
}

// EnsurePartitions ensures a partition exists for every day in [fromDate, toDate).
// Both bounds are truncated to UTC days.
//
// A day that already exists, or that a concurrent caller creates first, is
// skipped. A day whose creation fails is recorded and the run continues.
// When every day failed the report is returned together with an error marked
// domain.ErrPartitionFailure.
func (m *Manager) EnsurePartitions(ctx context.Context, fromDate, toDate time.Time) (*Report, error) {
	from, to := TruncateDay(fromDate), TruncateDay(toDate)
	if !from.Before(to) {
		return nil, errors.Wrapf(domain.ErrInvalidRange, "from %s must be before to %s",
			from.Format(domain.DayLayout), to.Format(domain.DayLayout))
	}

	days := Days(m.base, from, to)
	if len(days) > MaxDaysPerRun {
		return nil, errors.Wrapf(domain.ErrInvalidRange, "%d days requested, at most %d allowed", len(days), MaxDaysPerRun)
	}

	start := time.Now()
	report := newReport(from, to, len(days))

	for _, p := range days {
		if err := ctx.Err(); err != nil {
			report.failed(p.Name, err)
			m.metrics.PartitionOutcome(metrics.OutcomeFailed)
			continue
		}

		outcome, err := m.ensureDay(ctx, p)
		switch outcome {
		case metrics.OutcomeCreated:
			report.created(p.Name)
			m.logger.Info("Created partition",
				slog.String("partition", p.Name),
			)
		case metrics.OutcomeSkipped:
			report.skipped(p.Name)
			m.logger.Info("Partition already exists, skipping",
				slog.String("partition", p.Name),
			)
		default:
			report.failed(p.Name, err)
			m.logger.Error("Failed to create partition",
				slog.String("partition", p.Name),
				slog.Any("error", err),
			)
		}
		m.metrics.PartitionOutcome(outcome)
	}

	var runErr error
	if report.AllFailed() {
		runErr = errors.Mark(
			errors.Newf("all %d partitions failed", report.TotalPartitionsRequested),
			domain.ErrPartitionFailure,
		)
	}
	m.metrics.PartitionRunCompleted(time.Since(start), runErr)

	m.logger.Info("Partition ensure finished",
		slog.String("from", from.Format(domain.DayLayout)),
		slog.String("to", to.Format(domain.DayLayout)),
		slog.Int("total", report.TotalPartitionsRequested),
		slog.Int("created", report.Created),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)

	return report, runErr
}

// ensureDay is a check-then-act sequence. The create itself may still find
// the table present, which is classified as skipped.
func (m *Manager) ensureDay(ctx context.Context, p Partition) (string, error) {
	exists, err := m.catalog.Exists(ctx, p.Name)
	if err != nil {
		return metrics.OutcomeFailed, err
	}
	if exists {
		return metrics.OutcomeSkipped, nil
	}

	ran := false
	results := m.creates.DoChan(p.Name, func() (interface{}, error) {
		ran = true
		createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()

		err := m.catalog.Create(createCtx, p)
		switch {
		case errors.Is(err, domain.ErrPartitionExists):
			return metrics.OutcomeSkipped, nil
		case err != nil:
			return nil, err
		default:
			return metrics.OutcomeCreated, nil
		}
	})

	select {
	case <-ctx.Done():
		return metrics.OutcomeFailed, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return metrics.OutcomeFailed, res.Err
		}
		outcome := res.Val.(string)
		// Only the caller whose create ran may count the partition as created.
		if outcome == metrics.OutcomeCreated && !ran {
			outcome = metrics.OutcomeSkipped
		}
		return outcome, nil
	}
}

// List returns the partitions attached to the base table.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	return m.catalog.List(ctx)
}

// Drop drops the daily partition name. Names other than "<base>_YYYYMMDD" are
// rejected with domain.ErrInvalidRange. It reports false when no such
// partition exists.
func (m *Manager) Drop(ctx context.Context, name string) (bool, error) {
	if _, err := ParseName(m.base, name); err != nil {
		return false, err
	}

	exists, err := m.catalog.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if err := m.catalog.Drop(ctx, name); err != nil {
		return false, err
	}

	m.logger.Warn("Dropped partition",
		slog.String("partition", name),
	)
	return true, nil
}
