// Package versionstore implements the keep-forever timestamped snapshots of
// spec.md §4.5: Make writes a serialised model to its current path and also
// to a dated versions/ copy, then touches the tag for that path.
package versionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

// Store is the version store over an object store, sharing the tag store
// of the same dataset so Make can touch the tag for the written path.
type Store struct {
	objects objectstore.Store
	tags    *tagstore.Store
}

// New wraps store/tags as a version store.
func New(store objectstore.Store, tags *tagstore.Store) *Store {
	return &Store{objects: store, tags: tags}
}

// versionedPath renders "versions/YYYY/MM/<TS_FORMAT>/<p>".
func versionedPath(p string, ts time.Time) string {
	u := ts.UTC()
	stamp := u.Format("20060102T150405") + fmt.Sprintf(".%06d", u.Nanosecond()/1000) + "Z"
	return path.Join("versions", fmt.Sprintf("%04d", u.Year()), fmt.Sprintf("%02d", u.Month()), stamp, p)
}

// Make serialises model (JSON for a ".json" path, YAML for ".yml"/".yaml"),
// writes it to p and to its dated versions/ copy, and touches the tag for
// p. Returns the versioned path written.
func (s *Store) Make(ctx context.Context, p string, model any) (string, error) {
	var data []byte
	var err error
	switch {
	case strings.HasSuffix(p, ".json"):
		data, err = json.Marshal(model)
	case strings.HasSuffix(p, ".yml"), strings.HasSuffix(p, ".yaml"):
		data, err = yaml.Marshal(model)
	default:
		return "", fmt.Errorf("versionstore.Make: unsupported extension for %s", p)
	}
	if err != nil {
		return "", fmt.Errorf("serialise %s: %w", p, err)
	}

	if err := s.objects.Put(ctx, p, data); err != nil {
		return "", err
	}
	vp := versionedPath(p, time.Now().UTC())
	if err := s.objects.Put(ctx, vp, data); err != nil {
		return "", err
	}
	scope := s.tags.Touch(p)
	if err := scope.Commit(ctx); err != nil {
		return "", err
	}
	return vp, nil
}

// ListVersions returns every versioned path recorded for p, oldest first.
func (s *Store) ListVersions(ctx context.Context, p string) ([]string, error) {
	yield, err := s.objects.IterateKeys(ctx, "versions", "", "")
	if err != nil {
		return nil, err
	}
	var out []string
	var iterErr error
	suffix := "/" + p
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		if strings.HasSuffix(key, suffix) {
			out = append(out, key)
		}
		return true
	})
	return out, iterErr
}
