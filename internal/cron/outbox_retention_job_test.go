package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/logger"
	"github.com/angelmondragon/stockmonitor/pkg/outbox"
)

var retentionNow = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func TestOutboxRetentionJobDeletesPublishedRows(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{batches: []int64{7}}
	job, _ := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{})

	require.NoError(t, job.Run(context.Background()))
	require.True(t, repo.lastCutoff.Equal(retentionNow.Add(-outboxRetentionDays*24*time.Hour)))
	require.Equal(t, outboxMinAttempts, repo.minAttempts)
	require.Equal(t, outboxDeleteBatch, repo.limit)
	require.Equal(t, 1, repo.called)
}

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{}
	job, _ := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{Retention: 7, MinAttempts: 4})

	require.NoError(t, job.Run(context.Background()))
	require.True(t, repo.lastCutoff.Equal(retentionNow.Add(-7*24*time.Hour)))
	require.Equal(t, 4, repo.minAttempts)
}

func TestOutboxRetentionJobDrainsFullBatches(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{batches: []int64{2, 2, 1}}
	job, _ := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{BatchSize: 2})

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 3, repo.called, "a short batch ends the run")
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job, _ := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{})
	require.ErrorContains(t, job.Run(context.Background()), "boom")
}

func TestOutboxRetentionJobToleratesBacklogFailure(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{backlogErr: errors.New("timeout")}
	job, _ := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{})
	require.NoError(t, job.Run(context.Background()))
}

func TestOutboxRetentionJobWarnsOnStalledPublisher(t *testing.T) {
	stale := retentionNow.Add(-time.Hour)
	repo := &fakeOutboxRetentionRepo{backlog: outbox.Backlog{Pending: 12, Oldest: &stale}}
	job, out := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{StallAfter: 10 * time.Minute})

	require.NoError(t, job.Run(context.Background()))
	require.Contains(t, out.String(), "outbox publisher appears stalled")
	require.Contains(t, out.String(), `"pending":12`)

	fresh := retentionNow.Add(-time.Minute)
	repo.backlog.Oldest = &fresh
	out.Reset()
	require.NoError(t, job.Run(context.Background()))
	require.NotContains(t, out.String(), "stalled")
}

func TestNewOutboxRetentionJobRequiresDeps(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{})
	require.Error(t, err)
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, params OutboxRetentionJobParams) (*outboxRetentionJob, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: out})
	params.DB = passthroughTxRunner{}
	params.Repository = repo
	jobIface, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok, "unexpected job type %T", jobIface)
	job.now = func() time.Time { return retentionNow }
	return job, out
}

type fakeOutboxRetentionRepo struct {
	lastCutoff  time.Time
	minAttempts int
	limit       int
	called      int
	batches     []int64
	backlog     outbox.Backlog
	err         error
	backlogErr  error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.minAttempts = minAttempts
	f.limit = limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakeOutboxRetentionRepo) Backlog(context.Context) (outbox.Backlog, error) {
	return f.backlog, f.backlogErr
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
