package worker

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/cuongbtq/delayq/internal/domain"
)

// processRequest ensures the partitions named by one message. A run in which
// every day failed is retryable; partial failures are reported and acked.
func (w *Worker) processRequest(ctx context.Context, msg *maintenanceMessage) error {
	req := msg.request
	w.logger.Info("Processing partition request",
		slog.String("request_id", req.RequestID),
		slog.String("start_date", req.StartDate),
		slog.Int("number_of_days", req.NumberOfDays),
	)

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	report, err := w.partitions.EnsureDailyPartitions(ctx, msg.start, req.NumberOfDays)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidRange):
		return errors.Mark(err, ErrInvalidMessage)
	case errors.Is(err, domain.ErrPartitionFailure):
		return NewRetryableError(err)
	default:
		return NewRetryableError(errors.Wrap(err, "ensure partitions"))
	}

	attrs := []any{
		slog.String("request_id", req.RequestID),
		slog.Int("created", report.Created),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	}
	if report.Failed > 0 {
		w.logger.Warn("Partition request completed with failures",
			append(attrs, slog.Any("failed_partitions", report.FailedPartitions))...)
		return nil
	}
	w.logger.Info("Partition request completed", attrs...)
	return nil
}
