package main

import (
	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/operation"
)

var exportForce bool

var exportStatementsCmd = &cobra.Command{
	Use:   "export-statements",
	Short: "Export the statement store to exports/statements.csv",
	RunE:  runExport("statements"),
}

var exportEntitiesCmd = &cobra.Command{
	Use:   "export-entities",
	Short: "Export entities to entities.ftm.json",
	RunE:  runExport("entities"),
}

var exportDocumentsCmd = &cobra.Command{
	Use:   "export-documents",
	Short: "Export documents to exports/documents.csv",
	RunE:  runExport("documents"),
}

var exportStatisticsCmd = &cobra.Command{
	Use:   "export-statistics",
	Short: "Compute and version exports/statistics.json",
	RunE:  runExport("statistics"),
}

func init() {
	for _, c := range []*cobra.Command{exportStatementsCmd, exportEntitiesCmd, exportDocumentsCmd, exportStatisticsCmd} {
		c.Flags().BoolVar(&exportForce, "force", false, "re-export even if the target tag looks fresh")
		rootCmd.AddCommand(c)
	}
}

func runExport(kind string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		var op operation.Operation
		switch kind {
		case "statements":
			op = &operation.ExportStatementsOperation{Entities: e.entities, Objects: e.objects}
		case "entities":
			op = &operation.ExportEntitiesOperation{Entities: e.entities, Objects: e.objects, WithDiff: true}
		case "documents":
			op = &operation.ExportDocumentsOperation{Entities: e.entities, Documents: e.documents, WithDiff: true}
		case "statistics":
			op = &operation.ExportStatisticsOperation{Entities: e.entities, Versions: e.versions}
		}
		_, err = operation.Run(cmd.Context(), *e.jobs, dataset, op, exportForce)
		return err
	}
}
