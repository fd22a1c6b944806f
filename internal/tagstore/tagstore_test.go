package tagstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

func newStore(t *testing.T) *tagstore.Store {
	t.Helper()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	return tagstore.New(os_)
}

func TestGetUnsetReturnsFalse(t *testing.T) {
	s := newStore(t)
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetThenGetRoundtrips(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stored, err := s.Set(ctx, "statements/last_updated", ts)
	require.NoError(t, err)
	assert.Equal(t, ts, stored)

	got, ok, err := s.Get(ctx, "statements/last_updated")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ts, got)
}

func TestScopeCommitWritesTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	sc := s.Touch("journal/last_updated")
	require.NoError(t, sc.Commit(ctx))

	_, ok, err := s.Get(ctx, "journal/last_updated")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScopeRollbackWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	sc := s.Touch("journal/last_updated")
	sc.Rollback()

	_, ok, err := s.Get(ctx, "journal/last_updated")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsLatestFalseWhenTargetUnset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	latest, err := s.IsLatest(ctx, "statements/last_updated", []string{"journal/last_updated"})
	require.NoError(t, err)
	assert.False(t, latest)
}

func TestIsLatestFalseWhenAllDepsUndefined(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Set(ctx, "statements/last_updated", time.Now().UTC())
	require.NoError(t, err)

	latest, err := s.IsLatest(ctx, "statements/last_updated", []string{"journal/last_updated"})
	require.NoError(t, err)
	assert.False(t, latest)
}

func TestIsLatestTrueWhenNewerThanAllDefinedDeps(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.Set(ctx, "journal/last_updated", base)
	require.NoError(t, err)
	_, err = s.Set(ctx, "statements/last_updated", base.Add(time.Hour))
	require.NoError(t, err)

	latest, err := s.IsLatest(ctx, "statements/last_updated", []string{"journal/last_updated"})
	require.NoError(t, err)
	assert.True(t, latest)
}

func TestIsLatestFalseWhenOlderThanADep(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.Set(ctx, "journal/last_updated", base.Add(time.Hour))
	require.NoError(t, err)
	_, err = s.Set(ctx, "statements/last_updated", base)
	require.NoError(t, err)

	latest, err := s.IsLatest(ctx, "statements/last_updated", []string{"journal/last_updated"})
	require.NoError(t, err)
	assert.False(t, latest)
}

func TestIsLatestTrueWithNoDeps(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Set(ctx, "operations/crawl/last_run", time.Now().UTC())
	require.NoError(t, err)

	latest, err := s.IsLatest(ctx, "operations/crawl/last_run", nil)
	require.NoError(t, err)
	assert.True(t, latest)
}
