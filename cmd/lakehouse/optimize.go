package main

import (
	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/operation"
)

var (
	optimizeVacuum bool
	optimizeForce  bool
	optimizeBucket string
	optimizeOrigin string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Compact small parquet files into fewer, larger ones",
	RunE:  runOptimize,
}

func init() {
	optimizeCmd.Flags().BoolVar(&optimizeVacuum, "vacuum", false, "also delete superseded files")
	optimizeCmd.Flags().BoolVar(&optimizeForce, "force", false, "run even if the target tag looks fresh")
	optimizeCmd.Flags().StringVar(&optimizeBucket, "bucket", "", "restrict to one bucket")
	optimizeCmd.Flags().StringVar(&optimizeOrigin, "origin", "", "restrict to one origin")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	op := &operation.OptimizeOperation{
		Parquet:   e.parquet,
		Vacuum:    optimizeVacuum,
		KeepHours: 0,
		Bucket:    optimizeBucket,
		Origin:    optimizeOrigin,
	}
	_, err = operation.Run(cmd.Context(), *e.jobs, dataset, op, optimizeForce)
	return err
}
