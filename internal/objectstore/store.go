// Package objectstore implements the uniform key-value storage abstraction
// (spec.md §4.1) over pluggable backends: local filesystem, HTTP range-GET,
// and S3-compatible object storage. It is Layer 1 — every higher layer
// (journal, parquet store, archive) reads and writes through a Store.
package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
)

// Store is the uniform interface every backend implements, per spec.md
// §4.1's operation list.
type Store interface {
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Get reads the entire object at key. Returns a NotFound-kind error if
	// missing.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes bytes to key, atomically at object granularity: concurrent
	// Put calls to the same key pick one winner, readers never see a torn
	// value.
	Put(ctx context.Context, key string, data []byte) error
	// Open returns a streaming reader for key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenRange returns a streaming reader for the byte range [offset,
	// offset+length) of key; length<0 means "to EOF". Backends that can't
	// support ranges (none currently) would reject it; local/http/s3 all can.
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	// IterateKeys lists keys under prefix whose base name matches glob and
	// does not match exclude (both may be empty to mean "match
	// everything"/"exclude nothing"). The keys are collected in full before
	// the sequence is returned; the sequence only replays them.
	IterateKeys(ctx context.Context, prefix, glob, exclude string) (func(yield func(string, error) bool), error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// LocalPath returns a filesystem path usable to read key directly. For
	// the local backend this is the real path; for non-local backends the
	// object is downloaded to a scoped temporary location, released by the
	// returned Release func.
	LocalPath(ctx context.Context, key string) (path string, release func(), err error)
	// Checksum returns the hex SHA-1 of key's contents. Every backend
	// computes it by reading the whole object.
	Checksum(ctx context.Context, key string) (string, error)
}

// retryPolicy implements spec.md §7's Transient I/O retry rule: 3 attempts,
// bounded exponential backoff, applied only at the store layer.
func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)
}

// withRetry runs op up to 3 attempts total, retrying only errors tagged
// lakeerrors.Transient.
func withRetry(ctx context.Context, op string, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if lakeerrors.Is(err, lakeerrors.Transient) {
			return err
		}
		return backoff.Permanent(err)
	}, retryPolicy(ctx))
}
