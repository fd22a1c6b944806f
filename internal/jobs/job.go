// Package jobs implements the Job record of spec.md §3: bookkeeping for one
// operation execution, persisted under jobs/runs/<JobType>/<run_id>.json.
// Ported from the Python original's JobModel/DatasetJobModel (model.py).
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/lakelog"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
)

// Job is one operation execution record.
type Job struct {
	RunID       string        `json:"run_id"`
	Type        string        `json:"type"`
	Dataset     string        `json:"dataset"`
	Started     *time.Time    `json:"started,omitempty"`
	Stopped     *time.Time    `json:"stopped,omitempty"`
	LastUpdated *time.Time    `json:"last_updated,omitempty"`
	Pending     int           `json:"pending"`
	Done        int           `json:"done"`
	Errors      int           `json:"errors"`
	Running     bool          `json:"running"`
	Exc         string        `json:"exc,omitempty"`
	Took        time.Duration `json:"took"`
}

// New creates a Job record with a fresh run_id, matching JobModel.make.
func New(jobType, dataset string) *Job {
	return &Job{RunID: uuid.NewString(), Type: jobType, Dataset: dataset}
}

// Start marks the job as running, recording the start time.
func (j *Job) Start() *Job {
	now := time.Now().UTC()
	j.Started = &now
	j.Running = true
	j.Touch()
	return j
}

// Touch updates LastUpdated, used to emit periodic progress on long
// iterations per spec.md §5's "long iterations periodically emit progress
// to the Job record" rule.
func (j *Job) Touch() {
	now := time.Now().UTC()
	j.LastUpdated = &now
}

// Stop marks the job finished, recording the error (if any) and elapsed
// duration.
func (j *Job) Stop(err error) {
	j.Running = false
	now := time.Now().UTC()
	j.Stopped = &now
	if err != nil {
		j.Exc = err.Error()
		j.Errors++
	}
	if j.Started != nil {
		j.Took = now.Sub(*j.Started)
	}
}

// path returns the storage key for a job run record.
func path(jobType, runID string) string {
	return fmt.Sprintf("jobs/runs/%s/%s.json", jobType, runID)
}

// Repository persists Job records to an object store.
type Repository struct {
	store objectstore.Store
}

// NewRepository wraps store as a job repository.
func NewRepository(store objectstore.Store) *Repository {
	return &Repository{store: store}
}

// Save writes the current state of j.
func (r *Repository) Save(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return r.store.Put(ctx, path(j.Type, j.RunID), data)
}

// Get reads one job run by type and id.
func (r *Repository) Get(ctx context.Context, jobType, runID string) (*Job, error) {
	data, err := r.store.Get(ctx, path(jobType, runID))
	if err != nil {
		return nil, err
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, lakeerrors.Wrap(lakeerrors.Corruption, "jobs.Get", err)
	}
	return &j, nil
}

// Latest returns the most recently started run for jobType, or nil if none
// exist.
func (r *Repository) Latest(ctx context.Context, jobType string) (*Job, error) {
	yield, err := r.store.IterateKeys(ctx, fmt.Sprintf("jobs/runs/%s", jobType), "*.json", "")
	if err != nil {
		return nil, err
	}
	var best *Job
	var iterErr error
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		data, gerr := r.store.Get(ctx, key)
		if gerr != nil {
			iterErr = gerr
			return false
		}
		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			iterErr = lakeerrors.Wrap(lakeerrors.Corruption, "jobs.Latest", err)
			return false
		}
		if best == nil || (j.Started != nil && (best.Started == nil || j.Started.After(*best.Started))) {
			best = &j
		}
		return true
	})
	return best, iterErr
}

// Run executes fn under a started/stopped Job record, saving state before
// and after, and logging start/stop with the run_id/dataset fields per
// lakelog's convention.
func (r *Repository) Run(ctx context.Context, jobType, dataset string, fn func(ctx context.Context, j *Job) error) (*Job, error) {
	j := New(jobType, dataset).Start()
	log := lakelog.ForRun(dataset, j.RunID, jobType, nil)
	log.Info("job started")
	if err := r.Save(ctx, j); err != nil {
		return nil, err
	}
	err := fn(ctx, j)
	j.Stop(err)
	if err != nil {
		log.Errorw("job failed", "error", err)
	} else {
		log.Info("job finished")
	}
	if serr := r.Save(ctx, j); serr != nil && err == nil {
		return j, serr
	}
	return j, err
}
