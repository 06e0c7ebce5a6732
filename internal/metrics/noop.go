package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) PartitionOutcome(outcome string)                         {}
func (n *NoopSink) PartitionRunCompleted(duration time.Duration, err error) {}
func (n *NoopSink) JobTransition(tier, transition string)                   {}
func (n *NoopSink) StoreError(tier, operation string)                       {}
func (n *NoopSink) MaintenanceMessage(outcome string)                       {}
