package metrics

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusSink(reg, slog.New(slog.NewTextHandler(io.Discard, nil))), reg
}

func TestPrometheusSink_PartitionOutcome(t *testing.T) {
	sink, _ := newTestSink(t)

	sink.PartitionOutcome(OutcomeCreated)
	sink.PartitionOutcome(OutcomeCreated)
	sink.PartitionOutcome(OutcomeSkipped)

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.partitionOutcomes.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.partitionOutcomes.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.partitionOutcomes.WithLabelValues(OutcomeFailed)))
}

func TestPrometheusSink_PartitionRunCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.PartitionRunCompleted(120*time.Millisecond, nil)
	sink.PartitionRunCompleted(time.Second, errors.New("all failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.partitionRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.partitionRuns.WithLabelValues("error")))

	count, err := testutil.GatherAndCount(reg, "delayq_partition_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusSink_JobTransitionAndStoreError(t *testing.T) {
	sink, _ := newTestSink(t)

	sink.JobTransition(TierExact, TransitionCreated)
	sink.JobTransition(TierApproximate, TransitionCancelled)
	sink.StoreError(TierExact, "create")

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.jobTransitions.WithLabelValues(TierExact, TransitionCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.jobTransitions.WithLabelValues(TierApproximate, TransitionCancelled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.storeErrors.WithLabelValues(TierExact, "create")))
}

func TestPrometheusSink_MaintenanceMessage(t *testing.T) {
	sink, _ := newTestSink(t)

	sink.MaintenanceMessage(MessageAcked)
	sink.MaintenanceMessage(MessageRequeued)

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.maintenanceMessage.WithLabelValues(MessageAcked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.maintenanceMessage.WithLabelValues(MessageRequeued)))
}

func TestPrometheusSink_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first := NewPrometheusSink(reg, logger)
	second := NewPrometheusSink(reg, logger)

	// The second sink stays usable even though its collectors were rejected.
	assert.NotPanics(t, func() { second.PartitionOutcome(OutcomeCreated) })
	assert.Equal(t, 0.0, testutil.ToFloat64(first.partitionOutcomes.WithLabelValues(OutcomeCreated)))
}

func TestNoopSink(t *testing.T) {
	var s Sink = NewNoopSink()
	assert.NotPanics(t, func() {
		s.PartitionOutcome(OutcomeFailed)
		s.PartitionRunCompleted(time.Second, nil)
		s.JobTransition(TierExact, TransitionRefused)
		s.StoreError(TierApproximate, "update")
		s.MaintenanceMessage(MessageRejected)
	})
}
