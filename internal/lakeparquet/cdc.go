package lakeparquet

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openaleph/lakehouse-go/internal/statement"
)

// ChangeType mirrors spec.md §4.3's change_type enum. Only Insert and
// UpdatePostimage are exposed to the diff exporter.
type ChangeType string

const (
	ChangeInsert          ChangeType = "insert"
	ChangeUpdatePreimage  ChangeType = "update_preimage"
	ChangeUpdatePostimage ChangeType = "update_postimage"
	ChangeDelete          ChangeType = "delete"
)

// Change is one CDC record.
type Change struct {
	Timestamp  string
	ChangeType ChangeType
	Statement  statement.Statement
}

// GetChanges reads the transaction log in [vFrom, vTo] and synthesizes
// insert/update/delete records from each commit's add/remove sets. A row
// whose id appears in both a partition's prior-version remove set and the
// new version's add set is reported as an update_preimage/update_postimage
// pair, matching Delta Lake's change-data-feed semantics the Python
// original relies on via load_cdf.
func (s *Store) GetChanges(ctx context.Context, vFrom, vTo int) ([]Change, error) {
	commits, err := readCommitsRange(ctx, s.store, vFrom, vTo)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, c := range commits {
		removedIDs := make(map[string]statement.Statement)
		for _, rf := range c.Remove {
			rows, err := readAllRows(s, rf)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				removedIDs[row.ID] = row
			}
		}
		for _, af := range c.Add {
			rows, err := readAllRows(s, af)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				if pre, ok := removedIDs[row.ID]; ok {
					changes = append(changes,
						Change{Timestamp: c.Timestamp.Format("2006-01-02T15:04:05Z"), ChangeType: ChangeUpdatePreimage, Statement: pre},
						Change{Timestamp: c.Timestamp.Format("2006-01-02T15:04:05Z"), ChangeType: ChangeUpdatePostimage, Statement: row},
					)
					delete(removedIDs, row.ID)
					continue
				}
				changes = append(changes, Change{
					Timestamp:  c.Timestamp.Format("2006-01-02T15:04:05Z"),
					ChangeType: ChangeInsert,
					Statement:  row,
				})
			}
		}
		for _, row := range removedIDs {
			changes = append(changes, Change{
				Timestamp:  c.Timestamp.Format("2006-01-02T15:04:05Z"),
				ChangeType: ChangeDelete,
				Statement:  row,
			})
		}
	}
	return changes, nil
}

// Optimize compacts small files within matching partitions into fewer,
// larger ones, recording each partition's swap as its own commit. Partitions
// are independent I/O (disjoint directories, disjoint files), so the
// compaction loop fans out across an errgroup instead of running serially;
// each partition is pre-assigned a distinct version before the group starts
// so concurrent appendCommit calls never race over the same log key. If
// vacuum, it also deletes the backing objects of files removed by commits
// older than keepHours — a file removed by a commit newer than the cutoff
// survives until a later vacuum call catches up to it. The commit records
// that name the deleted files stay in the log unchanged.
func (s *Store) Optimize(ctx context.Context, vacuum bool, keepHours int, bucket, origin string) error {
	parts, err := s.partitions(ctx, Filter{Bucket: bucket, Origin: origin})
	if err != nil {
		return err
	}
	v, err := s.Version(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		p := p
		version := v + 1 + i
		g.Go(func() error {
			return s.compactPartition(gctx, p, version)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if vacuum {
		if err := s.vacuumPartitions(ctx, keepHours, parts); err != nil {
			return err
		}
	}
	return nil
}

// compactPartition merges every parquet file in one (bucket, origin)
// partition into a single new file and records the swap at version,
// skipping partitions that are already a single file.
func (s *Store) compactPartition(ctx context.Context, p [2]string, version int) error {
	dir := partitionDir(p[0], p[1])
	yield, err := s.store.IterateKeys(ctx, dir, "*.parquet", "")
	if err != nil {
		return err
	}
	var files []string
	yield(func(key string, err error) bool {
		if err == nil {
			files = append(files, key)
		}
		return true
	})
	sort.Strings(files)
	if len(files) <= 1 {
		return nil
	}
	var allRows []statement.Statement
	for _, f := range files {
		rows, err := readAllRows(s, f)
		if err != nil {
			return err
		}
		allRows = append(allRows, rows...)
	}
	newKey := dir + "/part-" + uuid.NewString() + ".parquet"
	if err := s.writeParquetFile(newKey, allRows); err != nil {
		return err
	}
	return appendCommit(ctx, s.store, commit{
		Version:   version,
		Timestamp: time.Now().UTC(),
		Bucket:    p[0],
		Origin:    p[1],
		Add:       []string{newKey},
		Remove:    files,
	})
}

// vacuumPartitions deletes the backing parquet objects of files whose
// removing commit is older than keepHours, skipping any file a later commit
// re-added (compaction output reusing a superseded key never happens in
// practice, but the check keeps vacuum safe if it ever does). The log
// itself is not rewritten.
func (s *Store) vacuumPartitions(ctx context.Context, keepHours int, parts [][2]string) error {
	v, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if v < 0 {
		return nil
	}
	commits, err := readCommitsRange(ctx, s.store, 0, v)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-time.Duration(keepHours) * time.Hour)
	for _, p := range parts {
		lastAdded := make(map[string]int)
		for _, c := range commits {
			if c.Bucket != p[0] || c.Origin != p[1] {
				continue
			}
			for _, a := range c.Add {
				if v, ok := lastAdded[a]; !ok || c.Version > v {
					lastAdded[a] = c.Version
				}
			}
		}
		for _, c := range commits {
			if c.Bucket != p[0] || c.Origin != p[1] {
				continue
			}
			if c.Timestamp.After(cutoff) {
				continue
			}
			for _, f := range c.Remove {
				if lastAdded[f] > c.Version {
					continue
				}
				if err := s.store.Delete(ctx, f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
