package operation

import (
	"context"

	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
)

// OptimizeOperation compacts small parquet files into fewer larger ones,
// optionally vacuuming superseded files, per spec.md §4.9's Optimize row.
type OptimizeOperation struct {
	Parquet   *lakeparquet.Store
	Vacuum    bool
	KeepHours int
	Bucket    string
	Origin    string
}

func (o *OptimizeOperation) Type() string          { return "Optimize" }
func (o *OptimizeOperation) Target() string        { return "statements/store_optimized" }
func (o *OptimizeOperation) Dependencies() []string { return []string{"statements/last_updated"} }
func (o *OptimizeOperation) NeedsLock() bool       { return true }

func (o *OptimizeOperation) Handle(ctx context.Context, job *jobs.Job) error {
	return o.Parquet.Optimize(ctx, o.Vacuum, o.KeepHours, o.Bucket, o.Origin)
}
