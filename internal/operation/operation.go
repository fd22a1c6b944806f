// Package operation implements the Operation wrapper of spec.md §4.9: a
// thin binding of a Job to a (target, dependencies) tag-freshness check and
// a handle routine, plus the dataset-wide advisory lock every destructive
// operation acquires first. Ported from the original's operation/*.py one
// concrete type per file.
package operation

import (
	"context"

	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/lock"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

// Operation is one concrete unit of work: a target tag, the tags it
// depends on for freshness, whether it needs the dataset lock, and the
// handler itself.
type Operation interface {
	// Type names the operation for the job record (e.g. "ExportEntities").
	Type() string
	// Target is the tag touched on success; Run skips the freshness check,
	// and so always runs Handle, when Target or Dependencies is empty.
	Target() string
	// Dependencies are the tags Target must be strictly newer than to be
	// considered up to date.
	Dependencies() []string
	// NeedsLock reports whether Handle must hold the dataset .LOCK.
	NeedsLock() bool
	// Handle performs the work, given the running job record to update
	// progress counters on.
	Handle(ctx context.Context, job *jobs.Job) error
}

// Deps bundles the shared collaborators every Run call needs.
type Deps struct {
	Jobs     *jobs.Repository
	Tags     *tagstore.Store
	LockPath string
}

// Run implements spec.md §4.9's pseudocode verbatim: skip if not forced and
// already latest; otherwise acquire the lock if needed, run the job,
// touching the target tag only on success.
func Run(ctx context.Context, deps Deps, dataset string, op Operation, force bool) (*jobs.Job, error) {
	if !force && op.Target() != "" && len(op.Dependencies()) > 0 {
		latest, err := deps.Tags.IsLatest(ctx, op.Target(), op.Dependencies())
		if err != nil {
			return nil, err
		}
		if latest {
			return deps.Jobs.Latest(ctx, op.Type())
		}
	}

	var scope *tagstore.Scope
	if op.Target() != "" {
		scope = deps.Tags.Touch(op.Target())
	}

	var heldLock *lock.Lock
	if op.NeedsLock() {
		l, err := lock.Acquire(deps.LockPath)
		if err != nil {
			return nil, err
		}
		heldLock = l
		defer heldLock.Release()
	}

	run, err := deps.Jobs.Run(ctx, op.Type(), dataset, func(ctx context.Context, j *jobs.Job) error {
		return op.Handle(ctx, j)
	})
	if err != nil {
		if scope != nil {
			scope.Rollback()
		}
		return run, err
	}
	if scope != nil {
		if cerr := scope.Commit(ctx); cerr != nil {
			return run, cerr
		}
	}
	return run, nil
}
