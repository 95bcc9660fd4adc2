package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/logger"
	"github.com/angelmondragon/stockmonitor/pkg/outbox"
)

const (
	outboxRetentionDays     = 30
	outboxMinAttempts       = 10
	outboxDeleteBatch       = 1000
	maxOutboxDeleteBatches  = 50
	defaultOutboxStallAfter = 15 * time.Minute
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// Retention is in days.
	Retention   int
	MinAttempts int
	BatchSize   int
	// StallAfter is the pending-row age that gets reported as a stalled
	// publisher.
	StallAfter time.Duration
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error)
	Backlog(ctx context.Context) (outbox.Backlog, error)
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	retention   time.Duration
	minAttempts int
	batch       int
	stallAfter  time.Duration
	now         func() time.Time
}

// NewOutboxRetentionJob prunes old published (or dead-lettered) outbox rows
// in bounded batches and reports the unpublished backlog.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   time.Duration(orDefault(params.Retention, outboxRetentionDays)) * 24 * time.Hour,
		minAttempts: orDefault(params.MinAttempts, outboxMinAttempts),
		batch:       orDefault(params.BatchSize, outboxDeleteBatch),
		stallAfter:  params.StallAfter,
		now:         time.Now,
	}
	if job.stallAfter <= 0 {
		job.stallAfter = defaultOutboxStallAfter
	}
	return job, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)

	var deleted int64
	for pass := 0; pass < maxOutboxDeleteBatches; pass++ {
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", deleted, err)
		}
		deleted += n
		if n < int64(j.batch) || ctx.Err() != nil {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	j.reportBacklog(logCtx, now)
	return nil
}

// reportBacklog is informational; a failed count never fails the job.
func (j *outboxRetentionJob) reportBacklog(ctx context.Context, now time.Time) {
	backlog, err := j.repo.Backlog(ctx)
	if err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "read outbox backlog")
		return
	}
	if backlog.Oldest == nil {
		return
	}
	age := now.Sub(*backlog.Oldest)
	if age < j.stallAfter {
		return
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"pending":            backlog.Pending,
		"oldest_age_seconds": int64(age.Seconds()),
	}), "outbox publisher appears stalled")
}
