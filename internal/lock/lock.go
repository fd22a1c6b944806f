// Package lock implements the dataset-wide advisory .LOCK guarding
// destructive operations (flush, optimize, recreate) per the concurrency
// model: a single writer process per dataset, non-blocking acquisition that
// fails fast rather than queuing.
package lock

import (
	"errors"
	"fmt"
	"os"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
)

// ErrBusy is returned when the dataset lock is held by another process.
var ErrBusy = errors.New("dataset lock busy")

// Lock represents an acquired advisory lock on a dataset's .LOCK file.
type Lock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive, non-blocking lock on path. Callers that get
// ErrBusy should fail fast rather than retry/queue (spec.md §5).
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}
	if err := flockExclusiveNonBlock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrBusy) {
			return nil, lakeerrors.Wrap(lakeerrors.Conflict, "acquire dataset lock", ErrBusy)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &Lock{path: path, f: f}, nil
}

// Release unlocks and closes the underlying file handle. Calling it again
// after that is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := flockUnlock(l.f)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return cerr
}
