package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink with the Prometheus client library.
// Registration errors are logged and never propagated.
type PrometheusSink struct {
	partitionOutcomes  *prometheus.CounterVec
	partitionRuns      *prometheus.CounterVec
	partitionDuration  prometheus.Histogram
	jobTransitions     *prometheus.CounterVec
	storeErrors        *prometheus.CounterVec
	maintenanceMessage *prometheus.CounterVec

	logger *slog.Logger
}

// NewPrometheusSink creates the collectors and registers them with reg.
func NewPrometheusSink(reg prometheus.Registerer, logger *slog.Logger) *PrometheusSink {
	s := &PrometheusSink{logger: logger}

	s.partitionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayq_partition_outcomes_total",
		Help: "Daily partitions processed, by outcome.",
	}, []string{"outcome"})
	s.partitionRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayq_partition_runs_total",
		Help: "Partition ensure runs, by result.",
	}, []string{"result"})
	s.partitionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "delayq_partition_run_duration_seconds",
		Help:    "Duration of partition ensure runs in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.jobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayq_job_transitions_total",
		Help: "Job lifecycle transitions, by tier and transition.",
	}, []string{"tier", "transition"})
	s.storeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayq_store_errors_total",
		Help: "Storage failures, by tier and operation.",
	}, []string{"tier", "operation"})
	s.maintenanceMessage = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayq_maintenance_messages_total",
		Help: "Partition maintenance messages handled by the worker, by outcome.",
	}, []string{"outcome"})

	s.register(reg, s.partitionOutcomes, "delayq_partition_outcomes_total")
	s.register(reg, s.partitionRuns, "delayq_partition_runs_total")
	s.register(reg, s.partitionDuration, "delayq_partition_run_duration_seconds")
	s.register(reg, s.jobTransitions, "delayq_job_transitions_total")
	s.register(reg, s.storeErrors, "delayq_store_errors_total")
	s.register(reg, s.maintenanceMessage, "delayq_maintenance_messages_total")

	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("Failed to register metric",
			slog.String("metric", name),
			slog.Any("error", err),
		)
	}
}

func (s *PrometheusSink) PartitionOutcome(outcome string) {
	s.partitionOutcomes.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) PartitionRunCompleted(duration time.Duration, err error) {
	s.partitionDuration.Observe(duration.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.partitionRuns.WithLabelValues(result).Inc()
}

func (s *PrometheusSink) JobTransition(tier, transition string) {
	s.jobTransitions.WithLabelValues(tier, transition).Inc()
}

func (s *PrometheusSink) StoreError(tier, operation string) {
	s.storeErrors.WithLabelValues(tier, operation).Inc()
}

func (s *PrometheusSink) MaintenanceMessage(outcome string) {
	s.maintenanceMessage.WithLabelValues(outcome).Inc()
}
