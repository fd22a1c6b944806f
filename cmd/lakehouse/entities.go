package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/statement"
)

var (
	writeEntitiesInput  string
	writeEntitiesOrigin string

	streamEntitiesOutput string
)

var writeEntitiesCmd = &cobra.Command{
	Use:   "write-entities",
	Short: "Write NDJSON entities into the journal",
	Long: `Reads one minified JSON entity per line — {"id","schema",
"properties"} — from -i (or stdin) and enqueues each into the journal
under the given origin, flushing once at the end.`,
	RunE: runWriteEntities,
}

var streamEntitiesCmd = &cobra.Command{
	Use:   "stream-entities",
	Short: "Stream the exported entities.ftm.json",
	RunE:  runStreamEntities,
}

func init() {
	writeEntitiesCmd.Flags().StringVarP(&writeEntitiesInput, "input", "i", "-", "input file, or - for stdin")
	writeEntitiesCmd.Flags().StringVar(&writeEntitiesOrigin, "origin", "cli", "provenance origin recorded for every written entity")
	rootCmd.AddCommand(writeEntitiesCmd)

	streamEntitiesCmd.Flags().StringVarP(&streamEntitiesOutput, "output", "o", "-", "output file, or - for stdout")
	rootCmd.AddCommand(streamEntitiesCmd)
}

type entityLine struct {
	ID         string              `json:"id"`
	Schema     string              `json:"schema"`
	Properties map[string][]string `json:"properties"`
}

func runWriteEntities(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	in := os.Stdin
	if writeEntitiesInput != "-" {
		f, err := os.Open(writeEntitiesInput)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	scope, err := e.entities.Bulk(ctx, writeEntitiesOrigin)
	if err != nil {
		return err
	}
	defer scope.Close()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var n int
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var el entityLine
		if err := json.Unmarshal(line, &el); err != nil {
			return fmt.Errorf("decode entity line %d: %w", n+1, err)
		}
		ent := statement.NewEntity(el.ID, el.Schema)
		for prop, vals := range el.Properties {
			ent.Properties[prop] = vals
		}
		if err := scope.AddEntity(ctx, ent); err != nil {
			return err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if err := scope.Commit(ctx); err != nil {
		return err
	}
	if _, err := e.entities.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d entities\n", n)
	return nil
}

func runStreamEntities(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	envelopes, err := e.entities.Stream(cmd.Context())
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if streamEntitiesOutput != "-" {
		f, err := os.Create(streamEntitiesOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	defer w.Flush()
	for _, env := range envelopes {
		line, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
	}
	return nil
}
