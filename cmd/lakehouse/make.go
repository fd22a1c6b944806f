package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/operation"
)

var (
	makeFull     bool
	makeForce    bool
	makeRecreate bool
)

var makeCmd = &cobra.Command{
	Use:   "make",
	Short: "Flush the journal and (re)run every export",
	Long: `make ensures the journal is flushed into the parquet store, then
runs the statements/entities/documents/statistics/index exports in order.

--full additionally runs optimize after the exports.
--force re-runs every step even if its target tag looks fresh.
--recreate runs the destructive Recreate operation first, rebuilding the
parquet store from its most recent export before the normal export chain.`,
	RunE: runMake,
}

func init() {
	makeCmd.Flags().BoolVar(&makeFull, "full", false, "also optimize the parquet store")
	makeCmd.Flags().BoolVar(&makeForce, "force", false, "ignore freshness tags and re-run everything")
	makeCmd.Flags().BoolVar(&makeRecreate, "recreate", false, "recreate the parquet store from exports first")
	rootCmd.AddCommand(makeCmd)
}

func runMake(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	if makeRecreate {
		recreate := &operation.RecreateOperation{
			Dataset:  dataset,
			Source:   operation.RecreateAuto,
			Tags:     e.tags,
			Objects:  e.objects,
			Entities: e.entities,
			Archive:  e.archiveR,
		}
		if _, err := operation.Run(ctx, *e.jobs, dataset, recreate, true); err != nil {
			return fmt.Errorf("recreate: %w", err)
		}
	}

	if _, err := e.entities.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	ops := []operation.Operation{
		&operation.ExportStatementsOperation{Entities: e.entities, Objects: e.objects},
		&operation.ExportEntitiesOperation{Entities: e.entities, Objects: e.objects, WithDiff: true},
		&operation.ExportDocumentsOperation{Entities: e.entities, Documents: e.documents, WithDiff: true},
		&operation.ExportStatisticsOperation{Entities: e.entities, Versions: e.versions},
		&operation.ExportIndexOperation{
			Dataset:         dataset,
			Objects:         e.objects,
			Entities:        e.entities,
			Versions:        e.versions,
			PublicURLPrefix: e.settings.PublicURL(dataset),
		},
	}
	for _, op := range ops {
		if _, err := operation.Run(ctx, *e.jobs, dataset, op, makeForce); err != nil {
			return fmt.Errorf("%s: %w", op.Type(), err)
		}
	}

	if makeFull {
		opt := &operation.OptimizeOperation{Parquet: e.parquet, Vacuum: false}
		if _, err := operation.Run(ctx, *e.jobs, dataset, opt, makeForce); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
	}
	return nil
}
