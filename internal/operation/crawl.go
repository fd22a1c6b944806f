package operation

import (
	"bytes"
	"context"
	"io"
	"mime"
	"path/filepath"

	"github.com/openaleph/lakehouse-go/internal/archive"
	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/repository"
)

// ExistingMode mirrors the Python original's HandleExistingMode enum:
// what to do when a crawled source path has already been archived.
type ExistingMode string

const (
	ExistingOverwrite    ExistingMode = "overwrite"
	ExistingSkipPath     ExistingMode = "skip_path"
	ExistingSkipChecksum ExistingMode = "skip_checksum"
)

// CrawlOperation archives every file under Source matching the glob
// filters into the Archive, optionally enqueuing Document entities for
// each into the Entities journal, per spec.md §4.9's Crawl row and
// operation/crawl.py.
type CrawlOperation struct {
	Dataset      string
	Source       objectstore.Store
	Archive      *repository.ArchiveRepository
	Entities     *repository.EntityRepository
	Prefix       string
	Glob         string
	ExcludeGlob  string
	MakeEntities bool
	Existing     ExistingMode
}

func (o *CrawlOperation) Type() string          { return "Crawl" }
func (o *CrawlOperation) Target() string        { return "operations/crawl/last_run" }
func (o *CrawlOperation) Dependencies() []string { return nil }
func (o *CrawlOperation) NeedsLock() bool       { return true }

func (o *CrawlOperation) Handle(ctx context.Context, job *jobs.Job) error {
	yield, err := o.Source.IterateKeys(ctx, o.Prefix, o.Glob, "")
	if err != nil {
		return err
	}

	var iterErr error
	ix := 0
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		if o.ExcludeGlob != "" {
			if ok, _ := filepath.Match(o.ExcludeGlob, filepath.Base(key)); ok {
				return true
			}
		}
		job.Pending++
		job.Touch()
		if herr := o.handleOne(ctx, key); herr != nil {
			iterErr = herr
			return false
		}
		job.Pending--
		job.Done++
		ix++
		if ix%1000 == 0 {
			job.Touch()
		}
		return true
	})
	if iterErr != nil {
		return iterErr
	}

	if o.MakeEntities {
		if _, err := o.Entities.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *CrawlOperation) handleOne(ctx context.Context, key string) error {
	checksum, _ := o.Source.Checksum(ctx, key)
	if o.shouldSkip(ctx, key, checksum) {
		return nil
	}

	rc, err := o.Source.Open(ctx, key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return err
	}

	meta := archive.File{
		Checksum: checksum,
		Key:      key,
		Path:     key,
		Size:     int64(len(data)),
		MimeType: mime.TypeByExtension(filepath.Ext(key)),
		Origin:   "crawl",
	}
	file, err := o.Archive.StoreFile(ctx, bytes.NewReader(data), meta)
	if err != nil {
		return err
	}
	if o.MakeEntities {
		if err := o.Entities.AddMany(ctx, file.MakeEntities(), "crawl"); err != nil {
			return err
		}
	}
	return nil
}

func (o *CrawlOperation) shouldSkip(ctx context.Context, key, checksum string) bool {
	if o.Existing == "" || o.Existing == ExistingOverwrite {
		return false
	}
	if checksum == "" {
		return false
	}
	exists, err := o.Archive.Archive.Exists(ctx, checksum)
	if err != nil || !exists {
		return false
	}
	if o.Existing == ExistingSkipChecksum {
		return true
	}
	// ExistingSkipPath: only skip if this exact source path was archived
	// before under the same checksum.
	files, err := o.Archive.Archive.GetAllFiles(ctx, checksum)
	if err != nil {
		return false
	}
	for _, f := range files {
		if f.Key == key {
			return true
		}
	}
	return false
}
