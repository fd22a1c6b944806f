package operation

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/mapping"
	"github.com/openaleph/lakehouse-go/internal/repository"
	"github.com/openaleph/lakehouse-go/internal/statement"
)

// MappingOperation reads the archived CSV source at ContentHash, runs its
// stored mapping template over every row, and streams the resulting
// entities into the journal under origin "mapping:<hash>", per spec.md
// §4.9's Mapping row. There is no Python source for this operation in the
// retrieval pack; it's authored directly from the spec row and the
// mapping model's Origin/Mapper contracts.
type MappingOperation struct {
	ContentHash string
	Mappings    *repository.MappingRepository
	Archive     *repository.ArchiveRepository
	Entities    *repository.EntityRepository
	Mapper      mapping.Mapper
}

func (o *MappingOperation) Type() string   { return "Mapping" }
func (o *MappingOperation) Target() string { return fmt.Sprintf("mappings/%s/last_processed", o.ContentHash) }
func (o *MappingOperation) Dependencies() []string {
	return []string{fmt.Sprintf("mappings/%s/mapping.yml", o.ContentHash)}
}
func (o *MappingOperation) NeedsLock() bool { return true }

func (o *MappingOperation) Handle(ctx context.Context, job *jobs.Job) error {
	m, err := o.Mappings.Get(ctx, o.ContentHash)
	if err != nil {
		return err
	}

	rc, err := o.Archive.Archive.Stream(ctx, o.ContentHash)
	if err != nil {
		return err
	}
	defer rc.Close()

	rows, err := readCSVRows(rc)
	if err != nil {
		return err
	}

	origin := mapping.Origin(o.ContentHash)
	mapper := o.Mapper
	if mapper == nil {
		mapper = mapping.PassthroughMapper{}
	}

	scope, err := o.Entities.Bulk(ctx, origin)
	if err != nil {
		return err
	}
	defer scope.Close()

	for _, row := range rows {
		job.Pending++
		job.Touch()
		for _, query := range m.Queries {
			mapped, err := mapper.Map(row, query)
			if err != nil {
				return err
			}
			for _, me := range mapped {
				e := statement.NewEntity(me.ID, me.Schema)
				for prop, vals := range me.Properties {
					e.Properties[prop] = vals
				}
				if err := scope.AddEntity(ctx, e); err != nil {
					return err
				}
			}
		}
		job.Pending--
		job.Done++
	}

	return scope.Commit(ctx)
}

// readCSVRows parses an RFC 4180 CSV stream into column-name-keyed rows
// using the first record as the header.
func readCSVRows(r io.Reader) ([]mapping.Row, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	out := make([]mapping.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(mapping.Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		out = append(out, row)
	}
	return out, nil
}
