package metrics

import "time"

// Sink records delayq metrics.
// Implementations must not block or propagate errors.
type Sink interface {
	// Partition maintenance
	PartitionOutcome(outcome string)
	PartitionRunCompleted(duration time.Duration, err error)

	// Job stores
	JobTransition(tier, transition string)
	StoreError(tier, operation string)

	// Maintenance worker
	MaintenanceMessage(outcome string)
}

// Partition outcomes.
const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Store tiers.
const (
	TierExact       = "exact"
	TierApproximate = "approximate"
)

// Job transitions.
const (
	TransitionCreated   = "created"
	TransitionUpdated   = "updated"
	TransitionCancelled = "cancelled"
	TransitionRefused   = "refused"
)

// Maintenance message outcomes.
const (
	MessageAcked    = "acked"
	MessageRejected = "rejected"
	MessageRequeued = "requeued"
)
