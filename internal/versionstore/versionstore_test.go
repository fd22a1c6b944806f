package versionstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
	"github.com/openaleph/lakehouse-go/internal/versionstore"
)

type model struct {
	Name string `json:"name" yaml:"name"`
}

func newStore(t *testing.T) (*versionstore.Store, objectstore.Store) {
	t.Helper()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	tags := tagstore.New(os_)
	return versionstore.New(os_, tags), os_
}

func TestMakeJSONWritesCurrentAndVersionedCopy(t *testing.T) {
	ctx := context.Background()
	vs, os_ := newStore(t)

	vp, err := vs.Make(ctx, "index.json", model{Name: "acme"})
	require.NoError(t, err)
	assert.Contains(t, vp, "versions/")
	assert.Contains(t, vp, "index.json")

	ok, err := os_.Exists(ctx, "index.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = os_.Exists(ctx, vp)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os_.Get(ctx, "index.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "acme")
}

func TestMakeYAMLSerializesAsYAML(t *testing.T) {
	ctx := context.Background()
	vs, os_ := newStore(t)

	_, err := vs.Make(ctx, "config.yml", model{Name: "acme"})
	require.NoError(t, err)

	data, err := os_.Get(ctx, "config.yml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: acme")
}

func TestMakeUnsupportedExtensionFails(t *testing.T) {
	ctx := context.Background()
	vs, _ := newStore(t)
	_, err := vs.Make(ctx, "config.toml", model{Name: "acme"})
	require.Error(t, err)
}

func TestMakeTouchesTag(t *testing.T) {
	ctx := context.Background()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	tags := tagstore.New(os_)
	vs := versionstore.New(os_, tags)

	_, err = vs.Make(ctx, "index.json", model{Name: "acme"})
	require.NoError(t, err)

	_, ok, err := tags.Get(ctx, "index.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListVersionsAccumulates(t *testing.T) {
	ctx := context.Background()
	vs, _ := newStore(t)

	_, err := vs.Make(ctx, "index.json", model{Name: "a"})
	require.NoError(t, err)
	_, err = vs.Make(ctx, "index.json", model{Name: "b"})
	require.NoError(t, err)

	versions, err := vs.ListVersions(ctx, "index.json")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}
