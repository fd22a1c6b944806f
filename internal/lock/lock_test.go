package lock_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/lock"
)

func TestAcquireAndRelease(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".LOCK")
	l, err := lock.Acquire(p)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestAcquireFailsWhenAlreadyHeld(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".LOCK")
	l1, err := lock.Acquire(p)
	require.NoError(t, err)
	defer l1.Release()

	_, err = lock.Acquire(p)
	require.Error(t, err)
	assert.True(t, lakeerrors.Is(err, lakeerrors.Conflict))
}

func TestReacquireAfterRelease(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".LOCK")
	l1, err := lock.Acquire(p)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	l2, err := lock.Acquire(p)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".LOCK")
	l, err := lock.Acquire(p)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
}
