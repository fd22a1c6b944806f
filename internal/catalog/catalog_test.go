package catalog_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/catalog"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
)

func TestAddResourceAppends(t *testing.T) {
	d := catalog.Dataset{Name: "acme"}
	d.AddResource(catalog.Resource{Name: "statements", URI: "statements.csv"})
	d.AddResource(catalog.Resource{Name: "entities", URI: "entities.ftm.json"})
	require.Len(t, d.Resources, 2)
	assert.Equal(t, "statements", d.Resources[0].Name)
}

func TestDatasetJSONOmitsEmptyStatistics(t *testing.T) {
	d := catalog.Dataset{Name: "acme"}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "statistics")
}

func TestDatasetJSONIncludesStatisticsWhenSet(t *testing.T) {
	d := catalog.Dataset{
		Name:       "acme",
		Statistics: &catalog.Stats{EntityCount: 42},
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entity_count":42`)
}

func TestMigrateStatisticsPathMovesLegacyFile(t *testing.T) {
	ctx := context.Background()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os_.Put(ctx, "statistics.json", []byte(`{"entity_count":1}`)))

	require.NoError(t, catalog.MigrateStatisticsPath(ctx, os_))

	exists, err := os_.Exists(ctx, "exports/statistics.json")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = os_.Exists(ctx, "statistics.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigrateStatisticsPathNoOpWhenCanonicalExists(t *testing.T) {
	ctx := context.Background()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os_.Put(ctx, "exports/statistics.json", []byte(`{"entity_count":2}`)))
	require.NoError(t, os_.Put(ctx, "statistics.json", []byte(`{"entity_count":1}`)))

	require.NoError(t, catalog.MigrateStatisticsPath(ctx, os_))

	data, err := os_.Get(ctx, "exports/statistics.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "2")

	exists, err := os_.Exists(ctx, "statistics.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMigrateStatisticsPathNoOpWhenNeitherExists(t *testing.T) {
	ctx := context.Background()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, catalog.MigrateStatisticsPath(ctx, os_))

	exists, err := os_.Exists(ctx, "exports/statistics.json")
	require.NoError(t, err)
	assert.False(t, exists)
}
