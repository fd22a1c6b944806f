// Package tagstore implements the timestamped dependency markers of
// spec.md §4.5: a (key -> timestamp) mapping under tags/<tenant>/**, driving
// the skip-if-latest check every operation runs before doing work.
package tagstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/openaleph/lakehouse-go/internal/objectstore"
)

const tenant = "lakehouse"

func keyFor(tag string) string {
	return fmt.Sprintf("tags/%s/%s", tenant, tag)
}

// Store is the tag store over an object store.
type Store struct {
	store objectstore.Store
}

// New wraps store as a tag store.
func New(store objectstore.Store) *Store {
	return &Store{store: store}
}

// Get returns the timestamp for key, or the zero time and false if unset.
func (s *Store) Get(ctx context.Context, key string) (time.Time, bool, error) {
	exists, err := s.store.Exists(ctx, keyFor(key))
	if err != nil {
		return time.Time{}, false, err
	}
	if !exists {
		return time.Time{}, false, nil
	}
	data, err := s.store.Get(ctx, keyFor(key))
	if err != nil {
		return time.Time{}, false, err
	}
	nanos, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse tag %s: %w", key, err)
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

// Set stores ts (or now, if zero) for key and returns the stored value.
func (s *Store) Set(ctx context.Context, key string, ts time.Time) (time.Time, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if err := s.store.Put(ctx, keyFor(key), []byte(strconv.FormatInt(ts.UnixNano(), 10))); err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

// Scope is returned by Touch: the captured-at-entry timestamp commits on
// Commit, or is discarded on Rollback, matching spec.md §4.5's
// context-manager "touch" semantics ported to explicit
// acquire/commit/rollback primitives (SPEC_FULL.md §9's design note on
// context managers).
type Scope struct {
	s       *Store
	key     string
	ts      time.Time
	decided bool
}

// Touch begins a tag update: the current UTC time is captured immediately,
// committed to storage only when Commit is called.
func (s *Store) Touch(key string) *Scope {
	return &Scope{s: s, key: key, ts: time.Now().UTC()}
}

// Commit writes the captured timestamp.
func (sc *Scope) Commit(ctx context.Context) error {
	if sc.decided {
		return nil
	}
	sc.decided = true
	_, err := sc.s.Set(ctx, sc.key, sc.ts)
	return err
}

// Rollback discards the scope without writing anything.
func (sc *Scope) Rollback() {
	sc.decided = true
}

// IsLatest implements spec.md §4.5's conservative rule (Open Question 1,
// resolved): true iff tag[key] is defined and strictly greater than every
// non-null tag[d] for d in deps; if every dependency is undefined, the
// result is false.
func (s *Store) IsLatest(ctx context.Context, key string, deps []string) (bool, error) {
	ts, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	anyDefined := false
	for _, d := range deps {
		dts, dok, err := s.Get(ctx, d)
		if err != nil {
			return false, err
		}
		if !dok {
			continue
		}
		anyDefined = true
		if !ts.After(dts) {
			return false, nil
		}
	}
	if !anyDefined && len(deps) > 0 {
		return false, nil
	}
	return true, nil
}
