// Package repository composes the lower layers (journal, parquet store,
// archive, tag/version stores) into the dataset-facing operations spec.md
// §4.6-§4.8 describes, ported class-for-class from the Python original's
// repository/entity.py, repository/documents.py and repository/mixins.py.
package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openaleph/lakehouse-go/internal/journal"
	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/statement"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

const entitiesExportPath = "entities.ftm.json"

// EntityRepository composes the journal and parquet store into the
// bulk-write/flush/query contract of spec.md §4.6.
type EntityRepository struct {
	Dataset string
	Objects objectstore.Store
	Journal *journal.Journal
	Parquet *lakeparquet.Store
	Tags    *tagstore.Store

	DiffExporter
}

// NewEntityRepository wires the journal, parquet store and tag store for
// one dataset.
func NewEntityRepository(dataset string, objects objectstore.Store, j *journal.Journal, p *lakeparquet.Store, tags *tagstore.Store) *EntityRepository {
	r := &EntityRepository{Dataset: dataset, Objects: objects, Journal: j, Parquet: p, Tags: tags}
	r.DiffExporter = DiffExporter{
		objects:  objects,
		versions: p,
		basePath: "diffs/" + entitiesExportPath,
		stateKey: "diffs/" + entitiesExportPath + "/last_exported",
		tags:     tags,
	}
	return r
}

// BulkScope batches writes into one journal transaction, matching spec.md
// §4.6's "bulk(origin) -> scope" contract: flush on normal exit, discard on
// error.
type BulkScope struct {
	r      *EntityRepository
	w      *journal.Writer
	origin string
}

// Bulk opens a batching scope for origin. Callers must defer scope.Close()
// immediately and call scope.Commit(ctx) on the success path.
func (r *EntityRepository) Bulk(ctx context.Context, origin string) (*BulkScope, error) {
	w, err := r.Journal.Writer(ctx, origin)
	if err != nil {
		return nil, err
	}
	return &BulkScope{r: r, w: w, origin: origin}, nil
}

// AddEntity enqueues one entity's statements in the scope's batch.
func (s *BulkScope) AddEntity(ctx context.Context, e *statement.Entity) error {
	return s.w.AddEntity(ctx, s.r.Dataset, e)
}

// AddStatement enqueues one raw statement in the scope's batch.
func (s *BulkScope) AddStatement(ctx context.Context, st statement.Statement) error {
	return s.w.AddStatement(ctx, st)
}

// Commit flushes the batch and touches journal/last_updated.
func (s *BulkScope) Commit(ctx context.Context) error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	_, err := s.r.Tags.Set(ctx, "journal/last_updated", time.Time{})
	return err
}

// Close discards the batch if Commit was never called.
func (s *BulkScope) Close() error {
	return s.w.Close()
}

// Add is the single-entity convenience wrapper over Bulk/Commit.
func (r *EntityRepository) Add(ctx context.Context, e *statement.Entity, origin string) error {
	scope, err := r.Bulk(ctx, origin)
	if err != nil {
		return err
	}
	defer scope.Close()
	if err := scope.AddEntity(ctx, e); err != nil {
		return err
	}
	return scope.Commit(ctx)
}

// AddMany batches a slice of entities into one journal transaction.
func (r *EntityRepository) AddMany(ctx context.Context, entities []*statement.Entity, origin string) error {
	scope, err := r.Bulk(ctx, origin)
	if err != nil {
		return err
	}
	defer scope.Close()
	for _, e := range entities {
		if err := scope.AddEntity(ctx, e); err != nil {
			return err
		}
	}
	return scope.Commit(ctx)
}

// Flush drains the journal in (bucket, origin, canonical_id, id) order into
// the parquet store, opening a new parquet writer each time the
// (bucket, origin) partition changes, per spec.md §4.6. Returns the number
// of statements moved and touches journal/flushed + statements/last_updated.
func (r *EntityRepository) Flush(ctx context.Context) (int, error) {
	seq, flushTx, err := r.Journal.Drain(ctx)
	if err != nil {
		return 0, err
	}

	var (
		ids          []string
		n            int
		curBucket    string
		curOrigin    string
		curWriter    *lakeparquet.Writer
		havePartition bool
		iterErr      error
	)
	flushPartition := func() error {
		if curWriter == nil {
			return nil
		}
		_, err := curWriter.Flush(ctx)
		curWriter = nil
		return err
	}

	seq(func(row journal.Row, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		if !havePartition || row.Bucket != curBucket || row.Origin != curOrigin {
			if ferr := flushPartition(); ferr != nil {
				iterErr = ferr
				return false
			}
			curBucket, curOrigin = row.Bucket, row.Origin
			curWriter = r.Parquet.NewWriter()
			havePartition = true
		}
		curWriter.Add(row.Statement)
		ids = append(ids, row.ID)
		n++
		return true
	})
	if iterErr != nil {
		flushTx.Abort()
		return 0, iterErr
	}
	if err := flushPartition(); err != nil {
		flushTx.Abort()
		return 0, err
	}
	if err := flushTx.Commit(ctx, ids); err != nil {
		return 0, err
	}

	if _, err := r.Tags.Set(ctx, "journal/flushed", time.Time{}); err != nil {
		return n, err
	}
	if _, err := r.Tags.Set(ctx, "statements/last_updated", time.Time{}); err != nil {
		return n, err
	}
	return n, nil
}

// EnsureFlush implements spec.md §4.9's ensure_flush helper, exposed for
// operations that need it directly rather than through Query: flush only
// if journal/flushed is stale relative to journal/last_updated.
func (r *EntityRepository) EnsureFlush(ctx context.Context) error {
	return r.ensureFlush(ctx)
}

// ensureFlush implements spec.md §4.9's ensure_flush helper: flush only if
// journal/flushed is stale relative to journal/last_updated.
func (r *EntityRepository) ensureFlush(ctx context.Context) error {
	latest, err := r.Tags.IsLatest(ctx, "journal/flushed", []string{"journal/last_updated"})
	if err != nil {
		return err
	}
	if latest {
		return nil
	}
	_, err = r.Flush(ctx)
	return err
}

// Query runs a parquet filter query, optionally ensuring a flush first.
func (r *EntityRepository) Query(ctx context.Context, f lakeparquet.Filter, flushFirst bool) ([]*statement.Entity, error) {
	if flushFirst {
		if err := r.ensureFlush(ctx); err != nil {
			return nil, err
		}
	}
	return r.Parquet.Query(ctx, f)
}

// Get returns one entity by id, or a NotFound error.
func (r *EntityRepository) Get(ctx context.Context, entityID, origin string) (*statement.Entity, error) {
	f := lakeparquet.Filter{EntityIDs: []string{entityID}}
	if origin != "" {
		f.Origin = origin
	}
	entities, err := r.Parquet.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, lakeerrors.WrapKey(lakeerrors.NotFound, "EntityRepository.Get", entityID, fmt.Errorf("no such entity"))
	}
	return entities[0], nil
}

// Stream reads entities from the exported entities.ftm.json file rather
// than the parquet store, per spec.md §4.6's "stream() -> lazy entities:
// from the exported JSON file (not the store)".
func (r *EntityRepository) Stream(ctx context.Context) ([]statement.EntityEnvelope, error) {
	data, err := r.Objects.Get(ctx, entitiesExportPath)
	if err != nil {
		return nil, err
	}
	return decodeEnvelopes(data)
}

func decodeEnvelopes(data []byte) ([]statement.EntityEnvelope, error) {
	var out []statement.EntityEnvelope
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var env statement.EntityEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, lakeerrors.Wrap(lakeerrors.Corruption, "EntityRepository.Stream", err)
		}
		out = append(out, env)
	}
	if err := sc.Err(); err != nil {
		return nil, lakeerrors.Wrap(lakeerrors.Corruption, "EntityRepository.Stream", err)
	}
	return out, nil
}

// Stats is the parquet-derived statistics.json shape of spec.md §6.
type Stats struct {
	EntityCount    int            `json:"entity_count"`
	SchemaCount    map[string]int `json:"schema_count"`
	CountryCount   map[string]int `json:"country_count,omitempty"`
	DateRangeFrom  string         `json:"date_range_from,omitempty"`
	DateRangeTo    string         `json:"date_range_to,omitempty"`
	OriginCount    map[string]int `json:"origin_count"`
}

// MakeStatistics computes dataset-wide statistics from the current parquet
// contents, per spec.md §4.6's "make_statistics() -> Stats: delegates to
// the parquet store".
func (r *EntityRepository) MakeStatistics(ctx context.Context) (Stats, error) {
	entities, err := r.Parquet.Query(ctx, lakeparquet.Filter{})
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		SchemaCount: make(map[string]int),
		OriginCount: make(map[string]int),
	}
	var from, to string
	for _, e := range entities {
		stats.EntityCount++
		stats.SchemaCount[e.Schema]++
		for _, o := range e.OriginSlice() {
			stats.OriginCount[o]++
		}
		for _, c := range e.Properties["country"] {
			if stats.CountryCount == nil {
				stats.CountryCount = make(map[string]int)
			}
			stats.CountryCount[c]++
		}
		for _, v := range e.Properties["date"] {
			if from == "" || v < from {
				from = v
			}
			if to == "" || v > to {
				to = v
			}
		}
	}
	stats.DateRangeFrom = from
	stats.DateRangeTo = to
	return stats, nil
}
