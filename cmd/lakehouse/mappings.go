package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/mapping"
	"github.com/openaleph/lakehouse-go/internal/operation"
)

var mappingsForce bool

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage dataset mapping configurations",
}

var mappingsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every stored mapping's content hash",
	RunE:  runMappingsLs,
}

var mappingsGetCmd = &cobra.Command{
	Use:   "get <content-hash>",
	Short: "Print one mapping's configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappingsGet,
}

var mappingsProcessCmd = &cobra.Command{
	Use:   "process <content-hash>",
	Short: "Run a stored mapping over its archived CSV source",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappingsProcess,
}

func init() {
	mappingsProcessCmd.Flags().BoolVar(&mappingsForce, "force", false, "re-run even if the target tag looks fresh")
	mappingsCmd.AddCommand(mappingsLsCmd, mappingsGetCmd, mappingsProcessCmd)
	rootCmd.AddCommand(mappingsCmd)
}

func runMappingsLs(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	hashes, err := e.mappings.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, h := range hashes {
		fmt.Println(h)
	}
	return nil
}

func runMappingsGet(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	m, err := e.mappings.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func runMappingsProcess(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	op := &operation.MappingOperation{
		ContentHash: args[0],
		Mappings:    e.mappings,
		Archive:     e.archiveR,
		Entities:    e.entities,
		Mapper:      mapping.PassthroughMapper{},
	}
	_, err = operation.Run(cmd.Context(), *e.jobs, dataset, op, mappingsForce)
	return err
}
