package repository

import (
	"context"
	"io"
	"time"

	"github.com/openaleph/lakehouse-go/internal/archive"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

// ArchiveRepository wraps archive.Store with the dataset/tag bookkeeping
// spec.md §4.9's Crawl operation relies on (archive/last_updated).
type ArchiveRepository struct {
	Dataset string
	Archive *archive.Store
	Tags    *tagstore.Store
}

// NewArchiveRepository wires an archive store for one dataset.
func NewArchiveRepository(dataset string, store *archive.Store, tags *tagstore.Store) *ArchiveRepository {
	return &ArchiveRepository{Dataset: dataset, Archive: store, Tags: tags}
}

// IterateFiles returns every metadata record in the archive, a passthrough
// used by operation.Recreate to re-ingest file entities from archive
// metadata per spec.md §4.9's Recreate row.
func (r *ArchiveRepository) IterateFiles(ctx context.Context) ([]archive.File, error) {
	return r.Archive.IterateFiles(ctx)
}

// StoreFile ingests one source's bytes and touches archive/last_updated.
func (r *ArchiveRepository) StoreFile(ctx context.Context, src io.Reader, meta archive.File) (archive.File, error) {
	meta.Dataset = r.Dataset
	f, err := r.Archive.Store(ctx, src, meta)
	if err != nil {
		return archive.File{}, err
	}
	if _, err := r.Tags.Set(ctx, "archive/last_updated", time.Time{}); err != nil {
		return archive.File{}, err
	}
	return f, nil
}
