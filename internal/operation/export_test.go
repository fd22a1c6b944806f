package operation_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/catalog"
	"github.com/openaleph/lakehouse-go/internal/journal"
	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/operation"
	"github.com/openaleph/lakehouse-go/internal/repository"
	"github.com/openaleph/lakehouse-go/internal/statement"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
	"github.com/openaleph/lakehouse-go/internal/versionstore"
)

func newExportEnv(t *testing.T) (objectstore.Store, *repository.EntityRepository, *repository.DocumentRepository, *tagstore.Store, *versionstore.Store) {
	t.Helper()
	dir := t.TempDir()
	os_, err := objectstore.NewLocal(dir)
	require.NoError(t, err)
	j, err := journal.Open(context.Background(), dir+"/journal.db")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	p := lakeparquet.New(os_, t.TempDir())
	tags := tagstore.New(os_)
	entities := repository.NewEntityRepository("acme", os_, j, p, tags)
	docs := repository.NewDocumentRepository("acme", os_, p, tags, "")
	versions := versionstore.New(os_, tags)
	return os_, entities, docs, tags, versions
}

func seedPerson(t *testing.T, ctx context.Context, entities *repository.EntityRepository) {
	t.Helper()
	e := statement.NewEntity("e1", "Person")
	e.Add(statement.Statement{Schema: "Person", Prop: "name", Value: "Alice", Origin: "crawl"})
	require.NoError(t, entities.Add(ctx, e, "crawl"))
}

func TestExportStatementsOperationWritesCSV(t *testing.T) {
	ctx := context.Background()
	os_, entities, _, _, _ := newExportEnv(t)
	seedPerson(t, ctx, entities)

	op := &operation.ExportStatementsOperation{Entities: entities, Objects: os_}
	job := jobs.New("ExportStatements", "acme")
	require.NoError(t, op.Handle(ctx, job))

	data, err := os_.Get(ctx, "exports/statements.csv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Alice")
}

func TestExportEntitiesOperationWritesNDJSONAndDiff(t *testing.T) {
	ctx := context.Background()
	os_, entities, _, _, _ := newExportEnv(t)
	seedPerson(t, ctx, entities)

	op := &operation.ExportEntitiesOperation{Entities: entities, Objects: os_, WithDiff: true}
	job := jobs.New("ExportEntities", "acme")
	require.NoError(t, op.Handle(ctx, job))

	data, err := os_.Get(ctx, "entities.ftm.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"id\":\"e1\"")

	exists, err := os_.Exists(ctx, "diffs/entities.ftm.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestExportDocumentsOperationWritesCSV(t *testing.T) {
	ctx := context.Background()
	os_, entities, docs, _, _ := newExportEnv(t)

	doc := statement.NewEntity("doc1", "Document")
	doc.Add(statement.Statement{Schema: "Document", Prop: "fileName", Value: "a.txt", Origin: "crawl"})
	doc.Add(statement.Statement{Schema: "Document", Prop: "contentHash", Value: "abc", Origin: "crawl"})
	require.NoError(t, entities.Add(ctx, doc, "crawl"))

	op := &operation.ExportDocumentsOperation{Entities: entities, Documents: docs, WithDiff: true}
	job := jobs.New("ExportDocuments", "acme")
	require.NoError(t, op.Handle(ctx, job))

	data, err := os_.Get(ctx, "exports/documents.csv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "a.txt")
}

func TestExportStatisticsOperationWritesVersionedJSON(t *testing.T) {
	ctx := context.Background()
	os_, entities, _, _, versions := newExportEnv(t)
	seedPerson(t, ctx, entities)

	op := &operation.ExportStatisticsOperation{Entities: entities, Versions: versions}
	job := jobs.New("ExportStatistics", "acme")
	require.NoError(t, op.Handle(ctx, job))

	data, err := os_.Get(ctx, "exports/statistics.json")
	require.NoError(t, err)
	var stats repository.Stats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 1, stats.EntityCount)
}

func TestExportIndexOperationComposesFromAvailableExports(t *testing.T) {
	ctx := context.Background()
	os_, entities, _, tags, versions := newExportEnv(t)
	seedPerson(t, ctx, entities)
	require.NoError(t, entities.EnsureFlush(ctx))

	statsOp := &operation.ExportStatisticsOperation{Entities: entities, Versions: versions}
	require.NoError(t, statsOp.Handle(ctx, jobs.New("ExportStatistics", "acme")))

	entitiesOp := &operation.ExportEntitiesOperation{Entities: entities, Objects: os_}
	require.NoError(t, entitiesOp.Handle(ctx, jobs.New("ExportEntities", "acme")))

	op := &operation.ExportIndexOperation{
		Dataset:  "acme",
		Title:    "Acme",
		Objects:  os_,
		Entities: entities,
		Versions: versions,
	}
	job := jobs.New("ExportIndex", "acme")
	require.NoError(t, op.Handle(ctx, job))

	data, err := os_.Get(ctx, "index.json")
	require.NoError(t, err)
	var ds catalog.Dataset
	require.NoError(t, json.Unmarshal(data, &ds))
	assert.Equal(t, "acme", ds.Name)
	require.NotNil(t, ds.Statistics)
	assert.Equal(t, 1, ds.Statistics.EntityCount)

	var names []string
	for _, r := range ds.Resources {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"entities", "statistics"}, names)
	_ = tags
}
