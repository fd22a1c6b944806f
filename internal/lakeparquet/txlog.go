package lakeparquet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
)

// commit is one transaction-log entry: a delta-lake-style "add"/"remove"
// record. It is grounded on storage/parquet.py's LakeStore/deltatable
// semantics in the Python original — there is no Go "delta-rs" binding in
// the retrieval pack, so the log is hand-rolled as atomic JSON objects
// instead, per SPEC_FULL.md §5.
type commit struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Bucket    string    `json:"bucket"`
	Origin    string    `json:"origin"`
	Add       []string  `json:"add"`    // parquet file keys added by this commit
	Remove    []string  `json:"remove"` // parquet file keys superseded (compaction/vacuum)
}

const logPrefix = "statements/_delta_log"

func logKey(version int) string {
	return fmt.Sprintf("%s/%020d.json", logPrefix, version)
}

// currentVersion returns the highest committed version number, or -1 if
// the log is empty (spec.md §4.3's "version -> int | null").
func currentVersion(ctx context.Context, store objectstore.Store) (int, error) {
	yield, err := store.IterateKeys(ctx, logPrefix, "*.json", "")
	if err != nil {
		return -1, err
	}
	best := -1
	var iterErr error
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		base := key[strings.LastIndex(key, "/")+1:]
		base = strings.TrimSuffix(base, ".json")
		v, cerr := strconv.Atoi(base)
		if cerr != nil {
			return true
		}
		if v > best {
			best = v
		}
		return true
	})
	if iterErr != nil {
		return -1, iterErr
	}
	return best, nil
}

// appendCommit writes the log entry for c.Version, returning a Conflict
// error without retrying if that version file already exists. The
// existence check and the Put are separate calls, not one atomic step.
func appendCommit(ctx context.Context, store objectstore.Store, c commit) error {
	key := logKey(c.Version)
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return lakeerrors.Wrap(lakeerrors.Conflict, "lakeparquet.appendCommit", fmt.Errorf("version %d already committed", c.Version))
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal commit: %w", err)
	}
	return store.Put(ctx, key, data)
}

// readCommit loads the log entry at version v.
func readCommit(ctx context.Context, store objectstore.Store, v int) (commit, error) {
	data, err := store.Get(ctx, logKey(v))
	if err != nil {
		return commit{}, err
	}
	var c commit
	if err := json.Unmarshal(data, &c); err != nil {
		return commit{}, lakeerrors.Wrap(lakeerrors.Corruption, "lakeparquet.readCommit", err)
	}
	return c, nil
}

// readCommitsRange loads every commit in [from, to] inclusive, sorted by
// version ascending.
func readCommitsRange(ctx context.Context, store objectstore.Store, from, to int) ([]commit, error) {
	var commits []commit
	for v := from; v <= to; v++ {
		c, err := readCommit(ctx, store, v)
		if err != nil {
			if lakeerrors.Is(err, lakeerrors.NotFound) {
				continue
			}
			return nil, err
		}
		commits = append(commits, c)
	}
	sort.Slice(commits, func(i, j int) bool { return commits[i].Version < commits[j].Version })
	return commits, nil
}
