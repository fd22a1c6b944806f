package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
)

func newRepo(t *testing.T) *jobs.Repository {
	t.Helper()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	return jobs.NewRepository(os_)
}

func TestRunSavesStartedAndStoppedJob(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	j, err := r.Run(ctx, "Crawl", "acme", func(ctx context.Context, j *jobs.Job) error {
		j.Done = 3
		return nil
	})
	require.NoError(t, err)
	assert.False(t, j.Running)
	assert.Equal(t, 3, j.Done)
	assert.Equal(t, 0, j.Errors)
	require.NotNil(t, j.Started)
	require.NotNil(t, j.Stopped)

	saved, err := r.Get(ctx, "Crawl", j.RunID)
	require.NoError(t, err)
	assert.Equal(t, j.RunID, saved.RunID)
	assert.Equal(t, 3, saved.Done)
}

func TestRunRecordsFailure(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	wantErr := errors.New("boom")
	j, err := r.Run(ctx, "Crawl", "acme", func(ctx context.Context, j *jobs.Job) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, j.Errors)
	assert.Equal(t, "boom", j.Exc)
}

func TestLatestReturnsMostRecentlyStartedRun(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	_, err := r.Run(ctx, "Crawl", "acme", func(ctx context.Context, j *jobs.Job) error { return nil })
	require.NoError(t, err)
	second, err := r.Run(ctx, "Crawl", "acme", func(ctx context.Context, j *jobs.Job) error { return nil })
	require.NoError(t, err)

	latest, err := r.Latest(ctx, "Crawl")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.RunID, latest.RunID)
}

func TestLatestReturnsNilWhenNoRuns(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	latest, err := r.Latest(ctx, "Crawl")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestJobTouchUpdatesLastUpdated(t *testing.T) {
	j := jobs.New("Crawl", "acme")
	assert.Nil(t, j.LastUpdated)
	j.Touch()
	assert.NotNil(t, j.LastUpdated)
}
