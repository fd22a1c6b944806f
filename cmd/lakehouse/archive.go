package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/operation"
)

var archiveFileID string

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect and download the content-addressed blob archive",
}

var archiveGetCmd = &cobra.Command{
	Use:   "get <checksum>",
	Short: "Stream a blob's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveGet,
}

var archiveHeadCmd = &cobra.Command{
	Use:   "head <checksum>",
	Short: "Print a blob's metadata record",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveHead,
}

var archiveLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every metadata record in the archive",
	RunE:  runArchiveLs,
}

var (
	archiveDownloadTo string
)

var archiveDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download every exported document to a target directory",
	RunE:  runArchiveDownload,
}

func init() {
	archiveHeadCmd.Flags().StringVar(&archiveFileID, "file-id", "", "disambiguate among several files sharing a checksum")
	archiveGetCmd.Flags().StringVar(&archiveFileID, "file-id", "", "unused for get, accepted for symmetry with head")

	archiveDownloadCmd.Flags().StringVar(&archiveDownloadTo, "to", "", "destination directory (required)")

	archiveCmd.AddCommand(archiveGetCmd, archiveHeadCmd, archiveLsCmd, archiveDownloadCmd)
	rootCmd.AddCommand(archiveCmd)
}

func runArchiveGet(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	rc, err := e.archive.Stream(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(os.Stdout, rc)
	return err
}

func runArchiveHead(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	f, err := e.archive.GetFile(cmd.Context(), args[0], archiveFileID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

func runArchiveLs(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	files, err := e.archive.IterateFiles(cmd.Context())
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("%s\t%s\t%s\t%d\n", f.Checksum, f.Key, f.Origin, f.Size)
	}
	return nil
}

func runArchiveDownload(cmd *cobra.Command, args []string) error {
	if archiveDownloadTo == "" {
		return fmt.Errorf("--to is required")
	}
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	target, err := objectstore.NewLocal(archiveDownloadTo)
	if err != nil {
		return err
	}

	op := &operation.DownloadArchiveOperation{
		Archive:   e.archive,
		Documents: e.documents,
		DestStore: target,
	}
	_, err = operation.Run(cmd.Context(), *e.jobs, dataset, op, true)
	return err
}
