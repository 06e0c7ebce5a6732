package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/metrics"
	"github.com/cuongbtq/delayq/shared/postgresql"
)

const jobColumns = `event_id, callback_payload, callback_type, callback_url,
	target_timestamp, created_at, executed_at, status`

// terminalGuard is true for rows whose status permits no further transition.
var terminalGuard = buildTerminalGuard(domain.TerminalStatusesLower())

func buildTerminalGuard(statuses []string) string {
	quoted := make([]string, len(statuses))
	for i, st := range statuses {
		quoted[i] = pq.QuoteLiteral(st)
	}
	return "lower(status) IN (" + strings.Join(quoted, ", ") + ")"
}

// JobStore is the exact-tier store over the day-partitioned jobs table.
type JobStore struct {
	client  *postgresql.Client
	table   string
	logger  *slog.Logger
	metrics metrics.Sink
	now     func() time.Time
}

// Option configures a JobStore.
type Option func(*JobStore)

// WithClock replaces the clock used for createdAt and executedAt.
func WithClock(now func() time.Time) Option {
	return func(s *JobStore) { s.now = now }
}

// WithMetrics sets the metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(s *JobStore) { s.metrics = sink }
}

// NewJobStore returns a store for schema.table.
func NewJobStore(client *postgresql.Client, schema, table string, logger *slog.Logger, opts ...Option) *JobStore {
	s := &JobStore{
		client:  client,
		table:   pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table),
		logger:  logger,
		metrics: metrics.NewNoopSink(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JobFilter narrows ListJobs. Zero values disable a filter; PageSize 0
// returns every matching row.
type JobFilter struct {
	From     *time.Time
	To       *time.Time
	Status   *domain.Status
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position after the last returned row.
type JobCursor struct {
	TargetTimestamp time.Time
	EventID         string
}

// Create inserts a pending job. The event id must not exist at any target
// timestamp; the check and insert run under a per-event transaction lock.
// The partition covering params.TargetTimestamp must already exist.
func (s *JobStore) Create(ctx context.Context, params domain.JobParams) (*domain.Job, error) {
	now := s.now().UTC()

	var job domain.Job
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, params.EventID); err != nil {
			return domain.StorageError(err, "failed to lock event id")
		}

		var exists bool
		probe := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE event_id = $1)`, s.table)
		if err := tx.GetContext(ctx, &exists, probe, params.EventID); err != nil {
			return domain.StorageError(err, "failed to probe event id")
		}
		if exists {
			return errors.Wrapf(domain.ErrDuplicateJob, "event id %q", params.EventID)
		}

		insert := fmt.Sprintf(`
			INSERT INTO %s (
				event_id, callback_payload, callback_type, callback_url,
				target_timestamp, created_at, executed_at, status
			) VALUES (
				$1, $2::jsonb, $3, $4,
				$5, $6, NULL, $7
			)
			RETURNING %s`, s.table, jobColumns)

		err := tx.GetContext(ctx, &job, insert,
			params.EventID,
			payloadArg(params.CallbackPayload),
			string(params.CallbackType),
			params.CallbackURL,
			params.TargetTimestamp.UTC(),
			now,
			domain.StatusPending,
		)
		return s.classifyWrite(err, "insert")
	})
	if err != nil {
		s.recordFailure("create", err)
		return nil, err
	}

	s.metrics.JobTransition(metrics.TierExact, metrics.TransitionCreated)
	s.logger.Info("Job created",
		slog.String("event_id", job.EventID),
		slog.Time("target_timestamp", job.TargetTimestamp),
	)
	return &job, nil
}

// GetByEventID returns the job with eventID.
func (s *JobStore) GetByEventID(ctx context.Context, eventID string) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE event_id = $1 ORDER BY target_timestamp LIMIT 1`, jobColumns, s.table)
	return s.getOne(ctx, query, eventID)
}

// GetByEventIDAndTimestamp returns the job with the composite identity (eventID, ts).
func (s *JobStore) GetByEventIDAndTimestamp(ctx context.Context, eventID string, ts time.Time) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE event_id = $1 AND target_timestamp = $2`, jobColumns, s.table)
	return s.getOne(ctx, query, eventID, ts.UTC())
}

func (s *JobStore) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Job, error) {
	var job domain.Job
	if err := s.client.GetContext(ctx, &job, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrNotFound, "event id %v", args[0])
		}
		s.metrics.StoreError(metrics.TierExact, "get")
		return nil, domain.StorageError(err, "failed to get job")
	}
	return &job, nil
}

// Update replaces the mutable fields of a non-terminal job in one statement.
// Moving into a terminal status stamps executedAt. Terminal jobs are refused
// with ErrInvalidState and missing ones with ErrNotFound.
func (s *JobStore) Update(ctx context.Context, params domain.JobParams) (*domain.Job, error) {
	var stamp *time.Time
	if params.Status != nil && params.Status.IsTerminal() {
		stamp = domain.ExecutionStamp(*params.Status, nil, s.now())
	}

	var status interface{}
	if params.Status != nil {
		status = string(*params.Status)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET callback_payload = $2::jsonb,
			callback_type = $3,
			callback_url = $4,
			target_timestamp = $5,
			status = COALESCE($6::text, status),
			executed_at = COALESCE($7::timestamptz, executed_at)
		WHERE event_id = $1
		  AND NOT (%s)
		RETURNING %s`, s.table, terminalGuard, jobColumns)

	var job domain.Job
	err := s.client.GetContext(ctx, &job, query,
		params.EventID,
		payloadArg(params.CallbackPayload),
		string(params.CallbackType),
		params.CallbackURL,
		params.TargetTimestamp.UTC(),
		status,
		stamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainRefusal(ctx, params.EventID, "update")
		}
		err = s.classifyWrite(err, "update")
		s.recordFailure("update", err)
		return nil, err
	}

	s.metrics.JobTransition(metrics.TierExact, metrics.TransitionUpdated)
	s.logger.Info("Job updated",
		slog.String("event_id", job.EventID),
		slog.String("status", job.Status.String()),
	)
	return &job, nil
}

// Cancel moves a non-terminal job to Cancelled and stamps executedAt. It
// reports false when the job is missing or already terminal.
func (s *JobStore) Cancel(ctx context.Context, eventID string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, executed_at = $3
		WHERE event_id = $1
		  AND NOT (%s)`, s.table, terminalGuard)

	n, err := s.client.ExecContext(ctx, query, eventID, domain.StatusCancelled, s.now().UTC())
	if err != nil {
		s.metrics.StoreError(metrics.TierExact, "cancel")
		return false, domain.StorageError(err, "failed to cancel job")
	}

	if n == 0 {
		s.metrics.JobTransition(metrics.TierExact, metrics.TransitionRefused)
		s.logger.Warn("Cancel refused, job missing or terminal",
			slog.String("event_id", eventID),
		)
		return false, nil
	}

	s.metrics.JobTransition(metrics.TierExact, metrics.TransitionCancelled)
	s.logger.Info("Job cancelled",
		slog.String("event_id", eventID),
	)
	return true, nil
}

// List returns every job ordered by target timestamp.
func (s *JobStore) List(ctx context.Context) ([]domain.Job, error) {
	return s.ListJobs(ctx, JobFilter{})
}

// ListByDateRange returns jobs with target timestamp in [from, to), ordered by target timestamp.
func (s *JobStore) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Job, error) {
	if from.After(to) {
		return nil, errors.Wrapf(domain.ErrInvalidRange, "from %s is after to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return s.ListJobs(ctx, JobFilter{From: &from, To: &to})
}

// ListJobs returns jobs matching filter in (target_timestamp, event_id) order.
// With a page size, one extra row is fetched so callers can detect a next page.
func (s *JobStore) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.From != nil {
		conds = append(conds, "target_timestamp >= "+arg(filter.From.UTC()))
	}
	if filter.To != nil {
		conds = append(conds, "target_timestamp < "+arg(filter.To.UTC()))
	}
	if filter.Status != nil {
		conds = append(conds, "lower(status) = "+arg(strings.ToLower(filter.Status.String())))
	}
	if filter.Cursor != nil {
		ts := arg(filter.Cursor.TargetTimestamp.UTC())
		id := arg(filter.Cursor.EventID)
		conds = append(conds, fmt.Sprintf("(target_timestamp, event_id) > (%s, %s)", ts, id))
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, jobColumns, s.table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY target_timestamp ASC, event_id ASC"
	if filter.PageSize > 0 {
		query += " LIMIT " + arg(filter.PageSize+1)
	}

	jobs := []domain.Job{}
	if err := s.client.SelectContext(ctx, &jobs, query, args...); err != nil {
		s.metrics.StoreError(metrics.TierExact, "list")
		return nil, domain.StorageError(err, "failed to list jobs")
	}
	return jobs, nil
}

// explainRefusal distinguishes a missing job from a terminal one after a
// guarded write matched no row.
func (s *JobStore) explainRefusal(ctx context.Context, eventID, op string) error {
	var status domain.Status
	query := fmt.Sprintf(`SELECT status FROM %s WHERE event_id = $1 LIMIT 1`, s.table)
	if err := s.client.GetContext(ctx, &status, query, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(domain.ErrNotFound, "event id %q", eventID)
		}
		s.metrics.StoreError(metrics.TierExact, op)
		return domain.StorageError(err, "failed to probe job")
	}

	s.metrics.JobTransition(metrics.TierExact, metrics.TransitionRefused)
	s.logger.Warn("Write refused, job is terminal",
		slog.String("event_id", eventID),
		slog.String("operation", op),
		slog.String("status", status.String()),
	)
	return errors.Wrapf(domain.ErrInvalidState, "event id %q is %s", eventID, status)
}

// classifyWrite maps PostgreSQL write errors onto the domain taxonomy.
func (s *JobStore) classifyWrite(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDuplicateJob), errors.Is(err, domain.ErrStorage):
		return err
	case postgresql.IsUniqueViolation(err):
		return errors.Wrap(domain.ErrDuplicateJob, op)
	case postgresql.IsNoPartition(err):
		return errors.Mark(errors.Mark(errors.Wrapf(err, "failed to %s job", op), domain.ErrNoPartition), domain.ErrStorage)
	default:
		return domain.StorageError(err, "failed to "+op+" job")
	}
}

func (s *JobStore) recordFailure(op string, err error) {
	if errors.Is(err, domain.ErrStorage) {
		s.metrics.StoreError(metrics.TierExact, op)
		s.logger.Error("Job store write failed",
			slog.String("operation", op),
			slog.Any("error", err),
		)
	}
}

func payloadArg(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
