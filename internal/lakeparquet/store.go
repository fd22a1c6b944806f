package lakeparquet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	pqparquet "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/statement"
)

// Store is the partitioned parquet statement table for one dataset.
type Store struct {
	store objectstore.Store
	// localRoot is required: xitongsys/parquet-go-source/local needs a real
	// filesystem path, so every parquet file is first written to a scratch
	// file under localRoot and then Put through the object store.
	localRoot string
}

// New builds a Store over an already-opened objectstore.Store rooted at
// localRoot (the dataset directory on a local filesystem, or a scratch
// directory for non-local backends).
func New(store objectstore.Store, localRoot string) *Store {
	return &Store{store: store, localRoot: localRoot}
}

// Version returns the most recently committed version, or -1 if the store
// has never been flushed.
func (s *Store) Version(ctx context.Context) (int, error) {
	return currentVersion(ctx, s.store)
}

func partitionDir(bucket, origin string) string {
	return fmt.Sprintf("statements/bucket=%s/origin=%s", bucket, origin)
}

// Writer buffers statements per (bucket, origin) partition and flushes them
// into one new parquet file plus one commit record per partition.
type Writer struct {
	s       *Store
	pending map[string][]statement.Statement // bucket|origin -> rows
}

// NewWriter opens a writer over the store.
func (s *Store) NewWriter() *Writer {
	return &Writer{s: s, pending: make(map[string][]statement.Statement)}
}

func partKey(bucket, origin string) string { return bucket + "\x00" + origin }

// Add buffers one statement in its (bucket, origin) partition.
func (w *Writer) Add(s statement.Statement) {
	k := partKey(s.Bucket, s.Origin)
	w.pending[k] = append(w.pending[k], s)
}

// Flush writes one new parquet file per dirty partition and appends one
// commit entry per partition to the transaction log, each at its own,
// strictly increasing version number — a single shared version across
// partitions would make the second appendCommit in a multi-partition flush
// collide on the same log key and fail with Conflict. Returns the highest
// version written, i.e. the store's version once every partition's commit
// has landed.
func (w *Writer) Flush(ctx context.Context) (int, error) {
	if len(w.pending) == 0 {
		return w.s.Version(ctx)
	}
	next, err := w.s.Version(ctx)
	if err != nil {
		return -1, err
	}

	keys := make([]string, 0, len(w.pending))
	for k := range w.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		rows := w.pending[k]
		idx := indexOfNull(k)
		bucket, origin := k[:idx], k[idx+1:]

		fileKey := fmt.Sprintf("%s/part-%s.parquet", partitionDir(bucket, origin), uuid.NewString())
		if err := w.s.writeParquetFile(fileKey, rows); err != nil {
			return -1, err
		}
		next++
		if err := appendCommit(ctx, w.s.store, commit{
			Version:   next,
			Timestamp: time.Now().UTC(),
			Bucket:    bucket,
			Origin:    origin,
			Add:       []string{fileKey},
		}); err != nil {
			return -1, err
		}
	}
	w.pending = make(map[string][]statement.Statement)
	return next, nil
}

func indexOfNull(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return i
		}
	}
	return len(s)
}

// writeParquetFile writes rows to a new parquet file at key, going through
// a local scratch file since xitongsys/parquet-go-source/local requires a
// real path, then Put-ing the bytes through the object store.
func (s *Store) writeParquetFile(key string, rows []statement.Statement) error {
	tmpPath := s.localRoot + "/." + uuid.NewString() + ".parquet.tmp"
	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return fmt.Errorf("open parquet file writer: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(row), 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = pqparquet.CompressionCodec_SNAPPY

	for _, st := range rows {
		r := toRow(st)
		if err := pw.Write(r); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("read scratch parquet file: %w", err)
	}
	os.Remove(tmpPath)
	return s.store.Put(context.Background(), key, data)
}

func readAllRows(s *Store, key string) ([]statement.Statement, error) {
	path, release, err := s.store.LocalPath(context.Background(), key)
	if err != nil {
		return nil, err
	}
	defer release()

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, lakeerrors.Wrap(lakeerrors.Corruption, "lakeparquet.readAllRows", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(row), 4)
	if err != nil {
		return nil, lakeerrors.Wrap(lakeerrors.Corruption, "lakeparquet.readAllRows", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]row, n)
	if err := pr.Read(&rows); err != nil {
		return nil, lakeerrors.Wrap(lakeerrors.Corruption, "lakeparquet.readAllRows", err)
	}
	out := make([]statement.Statement, n)
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

// Filter selects statements read by Query/QueryStatements, matching
// spec.md §4.3's predicate push-down set.
type Filter struct {
	EntityIDs []string
	Origin    string
	Bucket    string
	Schema    string
}

func (f Filter) matches(s statement.Statement) bool {
	if f.Origin != "" && s.Origin != f.Origin {
		return false
	}
	if f.Schema != "" && s.Schema != f.Schema {
		return false
	}
	if len(f.EntityIDs) > 0 {
		found := false
		for _, id := range f.EntityIDs {
			if id == s.EntityID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// partitions lists the bucket/origin directories currently present,
// optionally restricted by the filter's Bucket/Origin.
func (s *Store) partitions(ctx context.Context, f Filter) ([][2]string, error) {
	seen := make(map[[2]string]bool)
	yield, err := s.store.IterateKeys(ctx, "statements", "*.parquet", "")
	if err != nil {
		return nil, err
	}
	var iterErr error
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		b, o, ok := parsePartitionKey(key)
		if !ok {
			return true
		}
		if f.Bucket != "" && b != f.Bucket {
			return true
		}
		if f.Origin != "" && o != f.Origin {
			return true
		}
		seen[[2]string{b, o}] = true
		return true
	})
	if iterErr != nil {
		return nil, iterErr
	}
	out := make([][2]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out, nil
}

func parsePartitionKey(key string) (bucket, origin string, ok bool) {
	rest, found := strings.CutPrefix(key, "statements/bucket=")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 {
		return "", "", false
	}
	bucket = parts[0]
	originPart, found := strings.CutPrefix(parts[1], "origin=")
	if !found {
		return "", "", false
	}
	return bucket, originPart, true
}

// QueryStatements streams every statement matching f across all matching
// partitions, without entity assembly.
func (s *Store) QueryStatements(ctx context.Context, f Filter) ([]statement.Statement, error) {
	parts, err := s.partitions(ctx, f)
	if err != nil {
		return nil, err
	}
	var out []statement.Statement
	seen := make(map[string]statement.Statement) // dedup by id, the file sorting last by key wins
	for _, p := range parts {
		dir := partitionDir(p[0], p[1])
		yield, err := s.store.IterateKeys(ctx, dir, "*.parquet", "")
		if err != nil {
			return nil, err
		}
		var files []string
		yield(func(key string, err error) bool {
			if err == nil {
				files = append(files, key)
			}
			return true
		})
		sort.Strings(files)
		for _, file := range files {
			rows, err := readAllRows(s, file)
			if err != nil {
				return nil, err
			}
			for _, st := range rows {
				if !f.matches(st) {
					continue
				}
				seen[st.ID] = st
			}
		}
	}
	for _, st := range seen {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CanonicalID != out[j].CanonicalID {
			return out[i].CanonicalID < out[j].CanonicalID
		}
		if out[i].Prop != out[j].Prop {
			return out[i].Prop < out[j].Prop
		}
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Origin < out[j].Origin
	})
	return out, nil
}

// Query executes QueryStatements then reassembles rows into entities
// grouped by canonical_id.
func (s *Store) Query(ctx context.Context, f Filter) ([]*statement.Entity, error) {
	stmts, err := s.QueryStatements(ctx, f)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*statement.Entity)
	var order []string
	for _, st := range stmts {
		e, ok := byID[st.CanonicalID]
		if !ok {
			e = statement.NewEntity(st.CanonicalID, st.Schema)
			byID[st.CanonicalID] = e
			order = append(order, st.CanonicalID)
		}
		e.Add(st)
	}
	sort.Strings(order)
	out := make([]*statement.Entity, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// ExportCSV streams every statement ordered by (canonical_id, prop, value,
// origin), de-duplicated on id, to w as RFC 4180 CSV with the header from
// spec.md §6.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	stmts, err := s.QueryStatements(ctx, Filter{})
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := []string{"id", "entity_id", "canonical_id", "schema", "prop", "value", "dataset", "lang", "origin", "external", "first_seen", "last_seen"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, st := range stmts {
		row := []string{
			st.ID, st.EntityID, st.CanonicalID, st.Schema, st.Prop, st.Value,
			st.Dataset, st.Lang, st.Origin, strconv.FormatBool(st.External),
			st.FirstSeen.UTC().Format(time.RFC3339), st.LastSeen.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Destroy irreversibly deletes every parquet file and the transaction log.
func (s *Store) Destroy(ctx context.Context) error {
	yield, err := s.store.IterateKeys(ctx, "statements", "", "")
	if err != nil {
		return err
	}
	var keys []string
	yield(func(key string, err error) bool {
		if err == nil {
			keys = append(keys, key)
		}
		return true
	})
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
