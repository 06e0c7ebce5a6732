package lowprecision

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/metrics"
)

const (
	// DefaultKeyPrefix namespaces every key written by RedisStore.
	DefaultKeyPrefix = "delayq:lp"

	maxTxRetries = 16
)

// RedisStore keeps approximate-tier jobs in Redis so several API replicas
// share one view. Each job is a JSON string under <prefix>:job:<event_id>;
// each day keeps a set of event ids under <prefix>:day:<YYYY-MM-DD>.
//
// Single-key mutations run as WATCH/MULTI transactions and are retried when
// a concurrent writer touches the same job.
type RedisStore struct {
	rdb     goredis.UniversalClient
	prefix  string
	grace   time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.Sink
}

// NewRedisStore builds a store over rdb. When grace is positive, job keys
// expire at ttl expiry plus grace.
func NewRedisStore(rdb goredis.UniversalClient, prefix string, grace time.Duration, logger *slog.Logger, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	o := applyOptions(opts)
	return &RedisStore{
		rdb:     rdb,
		prefix:  prefix,
		grace:   grace,
		now:     o.now,
		logger:  logger,
		metrics: o.metrics,
	}
}

func (s *RedisStore) jobKey(eventID string) string {
	return s.prefix + ":job:" + eventID
}

func (s *RedisStore) dayKey(day string) string {
	return s.prefix + ":day:" + day
}

// load reads a job inside a transaction. A missing key returns nil, nil.
func (s *RedisStore) load(ctx context.Context, tx *goredis.Tx, eventID string) (*domain.LowPrecisionJob, error) {
	raw, err := tx.Get(ctx, s.jobKey(eventID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeJob(raw)
}

func decodeJob(raw []byte) (*domain.LowPrecisionJob, error) {
	var job domain.LowPrecisionJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, errors.Wrap(err, "failed to decode low-precision job")
	}
	return &job, nil
}

// write queues the commands that persist job and keep the day index in step.
func (s *RedisStore) write(ctx context.Context, pipe goredis.Pipeliner, job *domain.LowPrecisionJob, previousDay string) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "failed to encode low-precision job")
	}

	key := s.jobKey(job.EventID)
	pipe.Set(ctx, key, data, 0)
	if previousDay != "" && previousDay != job.PartitionKey {
		pipe.SRem(ctx, s.dayKey(previousDay), job.EventID)
	}
	dayKey := s.dayKey(job.PartitionKey)
	pipe.SAdd(ctx, dayKey, job.EventID)

	if s.grace > 0 {
		pipe.ExpireAt(ctx, key, time.Unix(job.TTLExpiry, 0).Add(s.grace))

		dayStart, _ := time.Parse(domain.DayLayout, job.PartitionKey)
		pipe.ExpireAt(ctx, dayKey, dayStart.AddDate(0, 0, 1).Add(s.grace))
	}
	return nil
}

// transact runs fn under WATCH on the job key, retrying optimistic failures.
func (s *RedisStore) transact(ctx context.Context, op, eventID string, fn func(tx *goredis.Tx) error) error {
	key := s.jobKey(eventID)
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, fn, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		s.logger.Debug("Optimistic transaction conflict, retrying",
			slog.String("operation", op),
			slog.String("event_id", eventID),
			slog.Int("attempt", attempt+1),
		)
	}
	return errors.Newf("%s %q: too many concurrent writers", op, eventID)
}

func (s *RedisStore) storageFailure(op string, err error) error {
	s.metrics.StoreError(metrics.TierApproximate, op)
	s.logger.Error("Redis operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return domain.StorageError(err, "low-precision "+op)
}

// Create stores a new pending job, replacing any job with the same event id.
func (s *RedisStore) Create(ctx context.Context, params domain.LowPrecisionParams) (*domain.LowPrecisionJob, error) {
	job := domain.NewLowPrecisionJob(params, s.now())

	err := s.transact(ctx, "create", params.EventID, func(tx *goredis.Tx) error {
		previous, err := s.load(ctx, tx, params.EventID)
		if err != nil {
			return err
		}
		previousDay := ""
		if previous != nil {
			previousDay = previous.PartitionKey
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return s.write(ctx, pipe, job, previousDay)
		})
		return err
	})
	if err != nil {
		return nil, s.storageFailure("create", err)
	}

	s.metrics.JobTransition(metrics.TierApproximate, metrics.TransitionCreated)
	s.logger.Info("Low-precision job stored",
		slog.String("event_id", job.EventID),
		slog.String("partition_key", job.PartitionKey),
		slog.Int64("ttl_expiry", job.TTLExpiry),
	)
	return job, nil
}

// Get returns the job with eventID.
func (s *RedisStore) Get(ctx context.Context, eventID string) (*domain.LowPrecisionJob, error) {
	raw, err := s.rdb.Get(ctx, s.jobKey(eventID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, errors.Wrapf(domain.ErrNotFound, "event id %q", eventID)
	}
	if err != nil {
		return nil, s.storageFailure("get", err)
	}

	job, err := decodeJob(raw)
	if err != nil {
		return nil, s.storageFailure("get", err)
	}
	return job, nil
}

// Update replaces the mutable fields of a non-terminal job and re-derives its
// expiry marker and partition key.
func (s *RedisStore) Update(ctx context.Context, params domain.LowPrecisionParams) (*domain.LowPrecisionJob, error) {
	var (
		updated *domain.LowPrecisionJob
		refusal error
	)

	err := s.transact(ctx, "update", params.EventID, func(tx *goredis.Tx) error {
		updated, refusal = nil, nil

		current, err := s.load(ctx, tx, params.EventID)
		if err != nil {
			return err
		}
		if current == nil {
			refusal = errors.Wrapf(domain.ErrNotFound, "event id %q", params.EventID)
			return nil
		}

		previousDay := current.PartitionKey
		if err := current.Apply(params, s.now()); err != nil {
			refusal = err
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return s.write(ctx, pipe, current, previousDay)
		})
		if err == nil {
			updated = current
		}
		return err
	})
	if err != nil {
		return nil, s.storageFailure("update", err)
	}
	if refusal != nil {
		s.metrics.JobTransition(metrics.TierApproximate, metrics.TransitionRefused)
		s.logger.Warn("Update refused",
			slog.String("event_id", params.EventID),
			slog.String("reason", refusal.Error()),
		)
		return nil, refusal
	}

	s.metrics.JobTransition(metrics.TierApproximate, metrics.TransitionUpdated)
	return updated, nil
}

// Cancel moves a non-terminal job to Cancelled. It reports false when the job
// is missing or already terminal.
func (s *RedisStore) Cancel(ctx context.Context, eventID string) (bool, error) {
	var cancelled bool

	err := s.transact(ctx, "cancel", eventID, func(tx *goredis.Tx) error {
		cancelled = false

		job, err := s.load(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if job == nil || !job.Cancel(s.now()) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return s.write(ctx, pipe, job, job.PartitionKey)
		})
		if err == nil {
			cancelled = true
		}
		return err
	})
	if err != nil {
		return false, s.storageFailure("cancel", err)
	}

	if !cancelled {
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
// day, ordered by target execution time. Index entries whose job has expired
// or moved to another day are skipped.
func (s *RedisStore) ListByDate(ctx context.Context, day time.Time) ([]*domain.LowPrecisionJob, error) {
	_, key := domain.DeriveExpiry(day)

	ids, err := s.rdb.SMembers(ctx, s.dayKey(key)).Result()
	if err != nil {
		return nil, s.storageFailure("list_by_date", err)
	}

	out := []*domain.LowPrecisionJob{}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.storageFailure("list_by_date", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			return nil, s.storageFailure("list_by_date", err)
		}
		if job.PartitionKey == key {
			out = append(out, job)
		}
	}

	sortJobs(out)
	return out, nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return domain.StorageError(err, "redis health check failed")
	}
	return nil
}
