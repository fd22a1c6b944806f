package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openaleph/lakehouse-go/internal/catalog"
	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/repository"
	"github.com/openaleph/lakehouse-go/internal/versionstore"
)

var exportDeps = []string{"statements/last_updated", "journal/last_updated"}

// ExportStatementsOperation writes exports/statements.csv, per spec.md
// §4.9's ExportStatements row.
type ExportStatementsOperation struct {
	Entities *repository.EntityRepository
	Objects  objectstore.Store
}

func (o *ExportStatementsOperation) Type() string          { return "ExportStatements" }
func (o *ExportStatementsOperation) Target() string        { return "exports/statements.csv" }
func (o *ExportStatementsOperation) Dependencies() []string { return exportDeps }
func (o *ExportStatementsOperation) NeedsLock() bool       { return true }

func (o *ExportStatementsOperation) Handle(ctx context.Context, job *jobs.Job) error {
	if err := o.Entities.EnsureFlush(ctx); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := o.Entities.Parquet.ExportCSV(ctx, &buf); err != nil {
		return err
	}
	return o.Objects.Put(ctx, "exports/statements.csv", buf.Bytes())
}

// ExportEntitiesOperation writes entities.ftm.json (NDJSON) and optionally
// its CDC diff, per spec.md §4.9's ExportEntities row.
type ExportEntitiesOperation struct {
	Entities *repository.EntityRepository
	Objects  objectstore.Store
	WithDiff bool
}

func (o *ExportEntitiesOperation) Type() string          { return "ExportEntities" }
func (o *ExportEntitiesOperation) Target() string        { return "entities.ftm.json" }
func (o *ExportEntitiesOperation) Dependencies() []string { return exportDeps }
func (o *ExportEntitiesOperation) NeedsLock() bool       { return true }

func (o *ExportEntitiesOperation) Handle(ctx context.Context, job *jobs.Job) error {
	if err := o.Entities.EnsureFlush(ctx); err != nil {
		return err
	}
	entities, err := o.Entities.Parquet.Query(ctx, lakeparquet.Filter{})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, e := range entities {
		env := e.ToEnvelope()
		line, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal entity %s: %w", e.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := o.Objects.Put(ctx, "entities.ftm.json", buf.Bytes()); err != nil {
		return err
	}

	if o.WithDiff {
		if _, _, err := o.Entities.ExportEntities(ctx, entities); err != nil {
			return err
		}
	}
	return nil
}

// ExportDocumentsOperation writes exports/documents.csv and optionally its
// CDC diff, per spec.md §4.9's ExportDocuments row.
type ExportDocumentsOperation struct {
	Entities  *repository.EntityRepository
	Documents *repository.DocumentRepository
	WithDiff  bool
}

func (o *ExportDocumentsOperation) Type() string          { return "ExportDocuments" }
func (o *ExportDocumentsOperation) Target() string        { return "exports/documents.csv" }
func (o *ExportDocumentsOperation) Dependencies() []string { return exportDeps }
func (o *ExportDocumentsOperation) NeedsLock() bool       { return true }

func (o *ExportDocumentsOperation) Handle(ctx context.Context, job *jobs.Job) error {
	if err := o.Entities.EnsureFlush(ctx); err != nil {
		return err
	}
	if err := o.Documents.ExportCSV(ctx); err != nil {
		return err
	}
	if o.WithDiff {
		entities, err := o.Entities.Parquet.Query(ctx, lakeparquet.Filter{})
		if err != nil {
			return err
		}
		rows, err := o.Documents.Rows(ctx, entities)
		if err != nil {
			return err
		}
		if _, _, err := o.Documents.ExportDocuments(ctx, rows); err != nil {
			return err
		}
	}
	return nil
}

// ExportStatisticsOperation computes and versions exports/statistics.json,
// per spec.md §4.9's ExportStatistics row.
type ExportStatisticsOperation struct {
	Entities *repository.EntityRepository
	Versions *versionstore.Store
}

func (o *ExportStatisticsOperation) Type() string          { return "ExportStatistics" }
func (o *ExportStatisticsOperation) Target() string        { return catalog.CanonicalStatisticsPath }
func (o *ExportStatisticsOperation) Dependencies() []string { return exportDeps }
func (o *ExportStatisticsOperation) NeedsLock() bool       { return true }

func (o *ExportStatisticsOperation) Handle(ctx context.Context, job *jobs.Job) error {
	if err := o.Entities.EnsureFlush(ctx); err != nil {
		return err
	}
	stats, err := o.Entities.MakeStatistics(ctx)
	if err != nil {
		return err
	}
	_, err = o.Versions.Make(ctx, catalog.CanonicalStatisticsPath, stats)
	return err
}

// ExportIndexOperation composes index.json from the other exports' outputs
// plus dataset statistics, per spec.md §4.9's ExportIndex row.
type ExportIndexOperation struct {
	Dataset         string
	Title           string
	Objects         objectstore.Store
	Entities        *repository.EntityRepository
	Versions        *versionstore.Store
	PublicURLPrefix string
}

func (o *ExportIndexOperation) Type() string      { return "ExportIndex" }
func (o *ExportIndexOperation) Target() string    { return "index.json" }
func (o *ExportIndexOperation) Dependencies() []string {
	return []string{"config.yml", catalog.CanonicalStatisticsPath, "entities.ftm.json", "exports/documents.csv"}
}
func (o *ExportIndexOperation) NeedsLock() bool { return true }

func (o *ExportIndexOperation) Handle(ctx context.Context, job *jobs.Job) error {
	stats, err := o.Entities.MakeStatistics(ctx)
	if err != nil {
		return err
	}

	ds := catalog.Dataset{
		Name:  o.Dataset,
		Title: o.Title,
		Statistics: &catalog.Stats{
			EntityCount:   stats.EntityCount,
			SchemaCount:   stats.SchemaCount,
			CountryCount:  stats.CountryCount,
			OriginCount:   stats.OriginCount,
			DateRangeFrom: stats.DateRangeFrom,
			DateRangeTo:   stats.DateRangeTo,
		},
	}

	for _, res := range []struct{ name, path, mime string }{
		{"entities", "entities.ftm.json", "application/json+ftm"},
		{"statements", "exports/statements.csv", "text/csv"},
		{"documents", "exports/documents.csv", "text/csv"},
		{"statistics", catalog.CanonicalStatisticsPath, "application/json"},
	} {
		exists, err := o.Objects.Exists(ctx, res.path)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		r := catalog.Resource{Name: res.name, URI: res.path, MimeType: res.mime}
		if o.PublicURLPrefix != "" {
			r.PublicURL = o.PublicURLPrefix + "/" + res.path
		}
		ds.AddResource(r)
	}

	_, err = o.Versions.Make(ctx, "index.json", ds)
	return err
}
