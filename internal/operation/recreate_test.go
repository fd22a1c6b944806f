package operation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/archive"
	"github.com/openaleph/lakehouse-go/internal/journal"
	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/operation"
	"github.com/openaleph/lakehouse-go/internal/repository"
	"github.com/openaleph/lakehouse-go/internal/statement"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

func TestRecreateOperationFromEntitiesExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	os_, err := objectstore.NewLocal(dir)
	require.NoError(t, err)
	j, err := journal.Open(ctx, dir+"/journal.db")
	require.NoError(t, err)
	defer j.Close()
	p := lakeparquet.New(os_, t.TempDir())
	tags := tagstore.New(os_)

	archiveStore := archive.New(os_)
	archiveRepo := repository.NewArchiveRepository("acme", archiveStore, tags)
	entities := repository.NewEntityRepository("acme", os_, j, p, tags)

	e := statement.NewEntity("e1", "Person")
	e.Add(statement.Statement{Schema: "Person", Prop: "name", Value: "Alice", Origin: "crawl"})
	require.NoError(t, entities.Add(ctx, e, "crawl"))
	require.NoError(t, entities.EnsureFlush(ctx))

	exportOp := &operation.ExportEntitiesOperation{Entities: entities, Objects: os_}
	job := jobs.New("ExportEntities", "acme")
	require.NoError(t, exportOp.Handle(ctx, job))

	op := &operation.RecreateOperation{
		Dataset:  "acme",
		Source:   operation.RecreateEntities,
		Tags:     tags,
		Objects:  os_,
		Entities: entities,
		Archive:  archiveRepo,
	}
	job2 := jobs.New("Recreate", "acme")
	require.NoError(t, op.Handle(ctx, job2))
	assert.Equal(t, 1, op.EntitiesImported)

	got, err := entities.Query(ctx, lakeparquet.Filter{}, true)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecreateOperationAutoFailsWithoutAnyExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	os_, err := objectstore.NewLocal(dir)
	require.NoError(t, err)
	j, err := journal.Open(ctx, dir+"/journal.db")
	require.NoError(t, err)
	defer j.Close()
	p := lakeparquet.New(os_, t.TempDir())
	tags := tagstore.New(os_)
	archiveStore := archive.New(os_)
	archiveRepo := repository.NewArchiveRepository("acme", archiveStore, tags)
	entities := repository.NewEntityRepository("acme", os_, j, p, tags)

	op := &operation.RecreateOperation{
		Dataset:  "acme",
		Source:   operation.RecreateAuto,
		Tags:     tags,
		Objects:  os_,
		Entities: entities,
		Archive:  archiveRepo,
	}
	job := jobs.New("Recreate", "acme")
	err = op.Handle(ctx, job)
	require.Error(t, err)
}
