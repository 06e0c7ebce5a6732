package worker

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/cuongbtq/delayq/internal/metrics"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop processes requests until jobsChan is closed. In-flight requests
// are finished even after ctx is canceled, bounded by the job timeout.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := w.workerID + "-" + strconv.Itoa(workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for msg := range w.jobsChan {
		requestID := msg.request.RequestID
		err := w.processRequest(context.WithoutCancel(ctx), msg)

		if err == nil {
			if ackErr := msg.delivery.Ack(false); ackErr != nil {
				logger.Error("Failed to ACK message",
					slog.String("request_id", requestID),
					slog.String("error", ackErr.Error()),
				)
				continue
			}
			w.metrics.MaintenanceMessage(metrics.MessageAcked)
			continue
		}

		requeue := shouldRequeue(err, msg.delivery.Redelivered)
		logger.Error("Partition request failed",
			slog.String("request_id", requestID),
			slog.Bool("redelivered", msg.delivery.Redelivered),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)

		if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
			logger.Error("Failed to NACK message",
				slog.String("request_id", requestID),
				slog.String("error", nackErr.Error()),
			)
			continue
		}
		if requeue {
			w.metrics.MaintenanceMessage(metrics.MessageRequeued)
		} else {
			w.metrics.MaintenanceMessage(metrics.MessageRejected)
		}
	}

	logger.Debug("Worker goroutine stopping - jobsChan closed")
}
