package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/delayq/internal/partition"
)

// Janitor keeps [today, today+lookahead) partitioned on a cron schedule.
// Schedules are evaluated in UTC.
type Janitor struct {
	partitions Ensurer
	schedule   cron.Schedule
	lookahead  int
	runOnStart bool
	logger     *slog.Logger
	clock      func() time.Time
}

// JanitorConfig configures a Janitor.
type JanitorConfig struct {
	Schedule      string
	LookaheadDays int
	RunOnStart    bool
}

// NewJanitor parses the standard five-field cron expression or descriptor
// (e.g. "@daily") in cfg.Schedule.
func NewJanitor(partitions Ensurer, cfg JanitorConfig, logger *slog.Logger) (*Janitor, error) {
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid janitor schedule %q", cfg.Schedule)
	}
	if cfg.LookaheadDays < 1 {
		return nil, errors.Newf("lookahead days must be positive, got %d", cfg.LookaheadDays)
	}

	return &Janitor{
		partitions: partitions,
		schedule:   sched,
		lookahead:  cfg.LookaheadDays,
		runOnStart: cfg.RunOnStart,
		logger:     logger.With(slog.String("component", "janitor")),
		clock:      time.Now,
	}, nil
}

// RunOnce ensures partitions for the lookahead window starting today.
func (j *Janitor) RunOnce(ctx context.Context) (*partition.Report, error) {
	today := partition.TruncateDay(j.clock())

	report, err := j.partitions.EnsureDailyPartitions(ctx, today, j.lookahead)
	if err != nil {
		j.logger.Error("Janitor run failed",
			slog.Time("from", today),
			slog.Int("days", j.lookahead),
			slog.String("error", err.Error()),
		)
		return report, err
	}

	j.logger.Info("Janitor run completed",
		slog.Time("from", today),
		slog.Int("created", report.Created),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// Run blocks until ctx is canceled, running RunOnce at every scheduled time.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("Janitor started", slog.Int("lookahead_days", j.lookahead))

	if j.runOnStart {
		_, _ = j.RunOnce(ctx)
	}

	for {
		now := j.clock().UTC()
		next := j.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("Janitor stopped")
			return
		case <-timer.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}
