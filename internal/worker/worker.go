// Package worker runs partition maintenance: it consumes partition requests
// from RabbitMQ and keeps a rolling window of daily partitions ahead of today.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/delayq/internal/metrics"
	"github.com/cuongbtq/delayq/internal/partition"
)

// Consumer delivers partition requests.
type Consumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Ensurer creates daily partitions.
type Ensurer interface {
	EnsureDailyPartitions(ctx context.Context, fromDate time.Time, numberOfDays int) (*partition.Report, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Consumer      Consumer
	Partitions    Ensurer
	Metrics       metrics.Sink
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	QueueName     string

	// Janitor is optional. When set it runs alongside the consumer.
	Janitor *Janitor
}

// Worker represents the partition maintenance worker
type Worker struct {
	logger            *slog.Logger
	consumer          Consumer
	partitions        Ensurer
	metrics           metrics.Sink
	janitor           *Janitor
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	rabbitMQQueueName string
	workerID          string

	jobsChan chan *maintenanceMessage
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Consumer == nil || cfg.Partitions == nil {
		return nil, errors.New("worker requires a consumer and a partition ensurer")
	}
	if cfg.Concurrency < 1 {
		return nil, errors.Newf("concurrency must be positive, got %d", cfg.Concurrency)
	}

	sink := cfg.Metrics
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	prefetch := cfg.PrefetchCount
	if prefetch < 1 {
		prefetch = cfg.Concurrency
	}

	workerID := "worker-" + uuid.NewString()
	return &Worker{
		logger:            cfg.Logger.With(slog.String("component", "worker"), slog.String("worker_id", workerID)),
		consumer:          cfg.Consumer,
		partitions:        cfg.Partitions,
		metrics:           sink,
		janitor:           cfg.Janitor,
		concurrency:       cfg.Concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        cfg.JobTimeout,
		rabbitMQQueueName: cfg.QueueName,
		workerID:          workerID,
		jobsChan:          make(chan *maintenanceMessage),
		stopChan:          make(chan struct{}),
	}, nil
}

// ID returns the worker id, also used as the consumer tag.
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes partition requests until ctx is canceled, Stop is called or
// the delivery channel closes. It returns after every in-flight request has
// been acked or nacked.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	if w.janitor != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.janitor.Run(ctx)
		}()
	}

	dispatchErr := w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	cancel()
	w.wg.Wait()

	w.logger.Info("Worker stopped")
	return dispatchErr
}

// Stop asks a running Start to return. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
