package operation

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/repository"
	"github.com/openaleph/lakehouse-go/internal/statement"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

// RecreateSource picks which export RecreateOperation rebuilds the parquet
// store from, per spec.md §4.9's Recreate row.
type RecreateSource string

const (
	RecreateAuto       RecreateSource = "auto"
	RecreateEntities   RecreateSource = "entities"
	RecreateStatements RecreateSource = "statements"
)

// RecreateOperation destructively rebuilds the parquet statement store from
// its most recent export, then re-ingests archived "crawl" file entities.
// Always runs: its Dependencies are empty, so operation.Run never
// skip-checks it. Ported from operation/recreate.py.
type RecreateOperation struct {
	Dataset  string
	Source   RecreateSource
	Tags     *tagstore.Store
	Objects  objectstore.Store
	Entities *repository.EntityRepository
	Archive  *repository.ArchiveRepository

	StatementsImported int
	EntitiesImported   int
	FilesImported      int
}

func (o *RecreateOperation) Type() string          { return "Recreate" }
func (o *RecreateOperation) Target() string        { return "operations/recreate/last_run" }
func (o *RecreateOperation) Dependencies() []string { return nil }
func (o *RecreateOperation) NeedsLock() bool       { return true }

func (o *RecreateOperation) getSource(ctx context.Context) (RecreateSource, error) {
	if o.Source != "" && o.Source != RecreateAuto {
		return o.Source, nil
	}

	entitiesExist, err := o.Objects.Exists(ctx, "entities.ftm.json")
	if err != nil {
		return "", err
	}
	statementsExist, err := o.Objects.Exists(ctx, "exports/statements.csv")
	if err != nil {
		return "", err
	}
	if !entitiesExist && !statementsExist {
		return "", fmt.Errorf("recreate: no export files found, need entities.ftm.json or exports/statements.csv")
	}
	if !entitiesExist {
		return RecreateStatements, nil
	}
	if !statementsExist {
		return RecreateEntities, nil
	}

	entitiesTS, entitiesOK, err := o.Tags.Get(ctx, "entities.ftm.json")
	if err != nil {
		return "", err
	}
	statementsTS, statementsOK, err := o.Tags.Get(ctx, "exports/statements.csv")
	if err != nil {
		return "", err
	}
	switch {
	case !entitiesOK && !statementsOK:
		return RecreateStatements, nil
	case !entitiesOK:
		return RecreateStatements, nil
	case !statementsOK:
		return RecreateEntities, nil
	case entitiesTS.Before(statementsTS):
		return RecreateStatements, nil
	default:
		return RecreateEntities, nil
	}
}

func (o *RecreateOperation) Handle(ctx context.Context, job *jobs.Job) error {
	source, err := o.getSource(ctx)
	if err != nil {
		return err
	}

	if err := o.Entities.Parquet.Destroy(ctx); err != nil {
		return err
	}

	switch source {
	case RecreateStatements:
		if err := o.importFromStatements(ctx, job); err != nil {
			return err
		}
	default:
		if err := o.importFromEntities(ctx, job); err != nil {
			return err
		}
	}

	if err := o.importFromArchive(ctx, job); err != nil {
		return err
	}

	_, err = o.Entities.Flush(ctx)
	return err
}

func (o *RecreateOperation) importFromEntities(ctx context.Context, job *jobs.Job) error {
	envelopes, err := o.Entities.Stream(ctx)
	if err != nil {
		return err
	}
	scope, err := o.Entities.Bulk(ctx, "recreate")
	if err != nil {
		return err
	}
	defer scope.Close()
	for _, env := range envelopes {
		e := statement.NewEntity(env.ID, env.Schema)
		for prop, vals := range env.Properties {
			e.Properties[prop] = vals
		}
		if err := scope.AddEntity(ctx, e); err != nil {
			return err
		}
		o.EntitiesImported++
		job.Done++
		if o.EntitiesImported%10000 == 0 {
			job.Touch()
		}
	}
	return scope.Commit(ctx)
}

func (o *RecreateOperation) importFromStatements(ctx context.Context, job *jobs.Job) error {
	data, err := o.Objects.Get(ctx, "exports/statements.csv")
	if err != nil {
		return err
	}
	rows, err := parseStatementsCSV(data)
	if err != nil {
		return err
	}
	scope, err := o.Entities.Bulk(ctx, "recreate")
	if err != nil {
		return err
	}
	defer scope.Close()
	for _, s := range rows {
		if err := scope.AddStatement(ctx, s); err != nil {
			return err
		}
		o.StatementsImported++
		job.Done++
		if o.StatementsImported%100000 == 0 {
			job.Touch()
		}
	}
	return scope.Commit(ctx)
}

func (o *RecreateOperation) importFromArchive(ctx context.Context, job *jobs.Job) error {
	files, err := o.Archive.IterateFiles(ctx)
	if err != nil {
		return err
	}
	scope, err := o.Entities.Bulk(ctx, "crawl")
	if err != nil {
		return err
	}
	defer scope.Close()
	for _, f := range files {
		if f.Origin == "crawl" {
			for _, e := range f.MakeEntities() {
				if err := scope.AddEntity(ctx, e); err != nil {
					return err
				}
			}
		}
		o.FilesImported++
		job.Done++
		if o.FilesImported%1000 == 0 {
			job.Touch()
		}
	}
	return scope.Commit(ctx)
}

// parseStatementsCSV is the inverse of lakeparquet.Store.ExportCSV's
// encoding.
func parseStatementsCSV(data []byte) ([]statement.Statement, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	out := make([]statement.Statement, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 12 {
			continue
		}
		external, _ := strconv.ParseBool(rec[9])
		firstSeen, _ := time.Parse(time.RFC3339, rec[10])
		lastSeen, _ := time.Parse(time.RFC3339, rec[11])
		out = append(out, statement.Statement{
			ID:          rec[0],
			EntityID:    rec[1],
			CanonicalID: rec[2],
			Schema:      rec[3],
			Prop:        rec[4],
			Value:       rec[5],
			Dataset:     rec[6],
			Lang:        rec[7],
			Origin:      rec[8],
			External:    external,
			FirstSeen:   firstSeen,
			LastSeen:    lastSeen,
			Bucket:      statement.BucketFor(rec[3]),
		})
	}
	return out, nil
}
