package operation

import (
	"context"
	"io"

	"github.com/openaleph/lakehouse-go/internal/archive"
	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/repository"
)

// DownloadArchiveOperation streams every exported document's blob out of
// the archive into DestStore, skipping paths that already exist there, per
// spec.md §4.9's DownloadArchive row and operation/download.py.
type DownloadArchiveOperation struct {
	Archive   *archive.Store
	Documents *repository.DocumentRepository
	DestStore objectstore.Store

	Skipped int
}

func (o *DownloadArchiveOperation) Type() string          { return "DownloadArchive" }
func (o *DownloadArchiveOperation) Target() string        { return "operations/download_archive/last_run" }
func (o *DownloadArchiveOperation) Dependencies() []string { return []string{"exports/documents.csv"} }
func (o *DownloadArchiveOperation) NeedsLock() bool       { return true }

func (o *DownloadArchiveOperation) Handle(ctx context.Context, job *jobs.Job) error {
	rows, err := o.Documents.StreamRows(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		job.Pending++
		job.Touch()
		if row.Checksum == "" {
			job.Pending--
			continue
		}
		relPath := row.Path + "/" + row.Name

		exists, err := o.DestStore.Exists(ctx, relPath)
		if err != nil {
			return err
		}
		if exists {
			o.Skipped++
			job.Pending--
			continue
		}

		rc, err := o.Archive.Stream(ctx, row.Checksum)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}
		if err := o.DestStore.Put(ctx, relPath, data); err != nil {
			return err
		}
		job.Pending--
		job.Done++
	}
	return nil
}
