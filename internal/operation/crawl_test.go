package operation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/archive"
	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/journal"
	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/operation"
	"github.com/openaleph/lakehouse-go/internal/repository"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

func newCrawlEnv(t *testing.T) (objectstore.Store, *repository.ArchiveRepository, *repository.EntityRepository) {
	t.Helper()
	dir := t.TempDir()
	os_, err := objectstore.NewLocal(dir)
	require.NoError(t, err)
	j, err := journal.Open(context.Background(), dir+"/journal.db")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	p := lakeparquet.New(os_, t.TempDir())
	tags := tagstore.New(os_)
	archiveStore := archive.New(os_)
	archiveRepo := repository.NewArchiveRepository("acme", archiveStore, tags)
	entities := repository.NewEntityRepository("acme", os_, j, p, tags)
	return os_, archiveRepo, entities
}

func TestCrawlOperationArchivesFilesAndMakesEntities(t *testing.T) {
	ctx := context.Background()
	_, archiveRepo, entities := newCrawlEnv(t)

	srcDir := t.TempDir()
	source, err := objectstore.NewLocal(srcDir)
	require.NoError(t, err)
	require.NoError(t, source.Put(ctx, "a.txt", []byte("hello")))
	require.NoError(t, source.Put(ctx, "b.txt", []byte("world")))

	op := &operation.CrawlOperation{
		Dataset:      "acme",
		Source:       source,
		Archive:      archiveRepo,
		Entities:     entities,
		MakeEntities: true,
		Existing:     operation.ExistingOverwrite,
	}
	job := jobs.New("Crawl", "acme")
	require.NoError(t, op.Handle(ctx, job))
	assert.Equal(t, 2, job.Done)

	files, err := archiveRepo.IterateFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	entityList, err := entities.Query(ctx, lakeparquet.Filter{}, true)
	require.NoError(t, err)
	assert.Len(t, entityList, 2)
}

func TestCrawlOperationSkipChecksumAvoidsReArchiving(t *testing.T) {
	ctx := context.Background()
	_, archiveRepo, entities := newCrawlEnv(t)

	srcDir := t.TempDir()
	source, err := objectstore.NewLocal(srcDir)
	require.NoError(t, err)
	require.NoError(t, source.Put(ctx, "a.txt", []byte("hello")))

	op := &operation.CrawlOperation{
		Dataset:  "acme",
		Source:   source,
		Archive:  archiveRepo,
		Entities: entities,
		Existing: operation.ExistingOverwrite,
	}
	job := jobs.New("Crawl", "acme")
	require.NoError(t, op.Handle(ctx, job))

	op.Existing = operation.ExistingSkipChecksum
	job2 := jobs.New("Crawl", "acme")
	require.NoError(t, op.Handle(ctx, job2))

	files, err := archiveRepo.IterateFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
