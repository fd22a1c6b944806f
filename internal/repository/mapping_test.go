package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/mapping"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/repository"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

func newMappingRepo(t *testing.T) *repository.MappingRepository {
	t.Helper()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	tags := tagstore.New(os_)
	return repository.NewMappingRepository("acme", os_, tags)
}

func TestMappingPutGetRoundtrips(t *testing.T) {
	ctx := context.Background()
	r := newMappingRepo(t)

	m := mapping.DatasetMapping{
		Dataset:     "acme",
		ContentHash: "abc123",
		Queries: []mapping.Mapping{{
			Entities: map[string]mapping.EntityMapping{
				"company": {Schema: "Company", Keys: []string{"id"}},
			},
		}},
	}
	require.NoError(t, r.Put(ctx, m))

	got, err := r.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Dataset)
	assert.Len(t, got.Queries, 1)
}

func TestMappingPutTouchesTag(t *testing.T) {
	ctx := context.Background()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	tags := tagstore.New(os_)
	r := repository.NewMappingRepository("acme", os_, tags)

	m := mapping.DatasetMapping{ContentHash: "abc123"}
	require.NoError(t, r.Put(ctx, m))

	_, ok, err := tags.Get(ctx, "mappings/abc123/mapping.yml")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMappingListAndIterate(t *testing.T) {
	ctx := context.Background()
	r := newMappingRepo(t)

	require.NoError(t, r.Put(ctx, mapping.DatasetMapping{ContentHash: "hash1"}))
	require.NoError(t, r.Put(ctx, mapping.DatasetMapping{ContentHash: "hash2"}))

	hashes, err := r.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hash1", "hash2"}, hashes)

	all, err := r.Iterate(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
