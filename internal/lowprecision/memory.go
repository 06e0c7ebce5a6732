package lowprecision

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/metrics"
)

// DefaultShards is used when a non-positive shard count is configured.
const DefaultShards = 32

// MemoryStore is a process-local approximate-tier store. Jobs are spread
// over independently locked shards by event id; each shard keeps a day
// index so ListByDate touches only matching entries.
//
// Entries are not shared across processes.
type MemoryStore struct {
	shards  []*shard
	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.Sink
}

type shard struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.LowPrecisionJob
	byDay map[string]map[string]struct{}
}

// NewMemoryStore returns an empty store with the given shard count.
func NewMemoryStore(shards int, logger *slog.Logger, opts ...Option) *MemoryStore {
	if shards <= 0 {
		shards = DefaultShards
	}

	o := applyOptions(opts)
	s := &MemoryStore{
		shards:  make([]*shard, shards),
		now:     o.now,
		logger:  logger,
		metrics: o.metrics,
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			jobs:  make(map[string]*domain.LowPrecisionJob),
			byDay: make(map[string]map[string]struct{}),
		}
	}
	return s
}

func (s *MemoryStore) shardFor(eventID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(eventID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (sh *shard) index(job *domain.LowPrecisionJob) {
	ids, ok := sh.byDay[job.PartitionKey]
	if !ok {
		ids = make(map[string]struct{})
		sh.byDay[job.PartitionKey] = ids
	}
	ids[job.EventID] = struct{}{}
}

func (sh *shard) unindex(day, eventID string) {
	ids, ok := sh.byDay[day]
	if !ok {
		return
	}
	delete(ids, eventID)
	if len(ids) == 0 {
		delete(sh.byDay, day)
	}
}

// put stores job, moving its day index entry if the key changed.
func (sh *shard) put(job *domain.LowPrecisionJob) {
	if old, ok := sh.jobs[job.EventID]; ok && old.PartitionKey != job.PartitionKey {
		sh.unindex(old.PartitionKey, job.EventID)
	}
	sh.jobs[job.EventID] = job
	sh.index(job)
}

// Create stores a new pending job, replacing any job with the same event id.
func (s *MemoryStore) Create(ctx context.Context, params domain.LowPrecisionParams) (*domain.LowPrecisionJob, error) {
	job := domain.NewLowPrecisionJob(params, s.now())

	sh := s.shardFor(params.EventID)
	sh.mu.Lock()
	_, replaced := sh.jobs[params.EventID]
	sh.put(job)
	out := job.Clone()
	sh.mu.Unlock()

	s.metrics.JobTransition(metrics.TierApproximate, metrics.TransitionCreated)
	s.logger.Info("Low-precision job stored",
		slog.String("event_id", job.EventID),
		slog.String("partition_key", job.PartitionKey),
		slog.Int64("ttl_expiry", job.TTLExpiry),
		slog.Bool("replaced", replaced),
	)
	return out, nil
}

// Get returns the job with eventID.
func (s *MemoryStore) Get(ctx context.Context, eventID string) (*domain.LowPrecisionJob, error) {
	sh := s.shardFor(eventID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	job, ok := sh.jobs[eventID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "event id %q", eventID)
	}
	return job.Clone(), nil
}

// Update replaces the mutable fields of a non-terminal job and re-derives its
// expiry marker and partition key.
func (s *MemoryStore) Update(ctx context.Context, params domain.LowPrecisionParams) (*domain.LowPrecisionJob, error) {
	sh := s.shardFor(params.EventID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.jobs[params.EventID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "event id %q", params.EventID)
	}

	next := current.Clone()
	if err := next.Apply(params, s.now()); err != nil {
		s.metrics.JobTransition(metrics.TierApproximate, metrics.TransitionRefused)
		s.logger.Warn("Update refused, job is terminal",
			slog.String("event_id", params.EventID),
			slog.String("status", current.Status.String()),
		)
		return nil, err
	}
	sh.put(next)

	s.metrics.JobTransition(metrics.TierApproximate, metrics.TransitionUpdated)
	return next.Clone(), nil
}

// Cancel moves a non-terminal job to Cancelled. It reports false when the job
// is missing or already terminal.
func (s *MemoryStore) Cancel(ctx context.Context, eventID string) (bool, error) {
	sh := s.shardFor(eventID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	job, ok := sh.jobs[eventID]
	if !ok || !job.Cancel(s.now()) {
		s.metrics.JobTransition(metrics.TierApproximate, metrics.TransitionRefused)
		s.logger.Warn("Cancel refused, job missing or terminal",
			slog.String("event_id", eventID),
		)
		return false, nil
	}

	s.metrics.JobTransition(metrics.TierApproximate, metrics.TransitionCancelled)
	return true, nil
}

// ListByDate returns the jobs whose partition key is the UTC calendar day of
// day, ordered by target execution time. Each shard is read under its own
// read lock; writers are never blocked for the whole scan.
func (s *MemoryStore) ListByDate(ctx context.Context, day time.Time) ([]*domain.LowPrecisionJob, error) {
	_, key := domain.DeriveExpiry(day)

	out := []*domain.LowPrecisionJob{}
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id := range sh.byDay[key] {
			out = append(out, sh.jobs[id].Clone())
		}
		sh.mu.RUnlock()
	}

	sortJobs(out)
	return out, nil
}

// PurgeExpired removes jobs whose ttl expiry plus grace lies before now and
// returns how many were removed.
func (s *MemoryStore) PurgeExpired(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace).Unix()

	removed := 0
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		sh.mu.Lock()
		for id, job := range sh.jobs {
			if job.TTLExpiry < cutoff {
				sh.unindex(job.PartitionKey, id)
				delete(sh.jobs, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	if removed > 0 {
		s.logger.Info("Purged expired low-precision jobs",
			slog.Int("removed", removed),
		)
	}
	return removed, nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Len returns the number of stored jobs.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.jobs)
		sh.mu.RUnlock()
	}
	return n
}

func sortJobs(jobs []*domain.LowPrecisionJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].TargetExecutionTime.Equal(jobs[j].TargetExecutionTime) {
			return jobs[i].TargetExecutionTime.Before(jobs[j].TargetExecutionTime)
		}
		return jobs[i].EventID < jobs[j].EventID
	})
}
