// Command lakehouse is the CLI surface of spec.md §6: one dataset-scoped
// engine exposed as cobra subcommands, following the teacher's cmd/bd
// package-level rootCmd + per-file subcommand convention.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/archive"
	"github.com/openaleph/lakehouse-go/internal/catalog"
	"github.com/openaleph/lakehouse-go/internal/jobs"
	"github.com/openaleph/lakehouse-go/internal/journal"
	"github.com/openaleph/lakehouse-go/internal/lakeconfig"
	"github.com/openaleph/lakehouse-go/internal/lakelog"
	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/operation"
	"github.com/openaleph/lakehouse-go/internal/repository"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
	"github.com/openaleph/lakehouse-go/internal/versionstore"
)

var (
	dataset string
	uriFlag string
	debug   bool

	rootCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:   "lakehouse",
	Short: "Entity-graph statement lakehouse engine",
	Long: `lakehouse manages one dataset's statement journal, parquet
store, blob archive and exports: crawl sources into the archive, write
entities, flush and export, and recreate a corrupted store from its
own exports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		lakelog.Configure(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataset, "dataset", "", "dataset name (required by most commands)")
	rootCmd.PersistentFlags().StringVar(&uriFlag, "uri", "", "override LAKEHOUSE_URI for this invocation")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose debug logging")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCtx = ctx

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env bundles every collaborator a dataset-scoped command needs, built once
// per invocation from lakeconfig.Settings.
type env struct {
	settings *lakeconfig.Settings
	dataset  string
	root     string

	objects  objectstore.Store
	journal  *journal.Journal
	parquet  *lakeparquet.Store
	archive  *archive.Store
	tags     *tagstore.Store
	versions *versionstore.Store

	entities  *repository.EntityRepository
	documents *repository.DocumentRepository
	archiveR  *repository.ArchiveRepository
	mappings  *repository.MappingRepository

	jobs *operation.Deps
}

func requireDataset() error {
	if dataset == "" {
		return fmt.Errorf("--dataset is required")
	}
	return nil
}

func newEnv(ctx context.Context) (*env, error) {
	if err := requireDataset(); err != nil {
		return nil, err
	}
	settings, err := lakeconfig.Load()
	if err != nil {
		return nil, err
	}
	if uriFlag != "" {
		settings.URI = uriFlag
	}

	root := settings.DatasetRoot(dataset)
	objects, err := objectstore.NewLocal(root)
	if err != nil {
		return nil, err
	}

	scratch := filepath.Join(root, ".parquet-scratch")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir parquet scratch: %w", err)
	}
	parquetStore := lakeparquet.New(objects, scratch)

	if err := catalog.MigrateStatisticsPath(ctx, objects); err != nil {
		return nil, fmt.Errorf("migrate statistics path: %w", err)
	}

	dsn := settings.JournalDSN(dataset)
	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir journal dir: %w", err)
	}
	j, err := journal.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	archiveStore := archive.New(objects)
	tags := tagstore.New(objects)
	versions := versionstore.New(objects, tags)

	e := &env{
		settings: settings,
		dataset:  dataset,
		root:     root,
		objects:  objects,
		journal:  j,
		parquet:  parquetStore,
		archive:  archiveStore,
		tags:     tags,
		versions: versions,

		entities:  repository.NewEntityRepository(dataset, objects, j, parquetStore, tags),
		documents: repository.NewDocumentRepository(dataset, objects, parquetStore, tags, settings.PublicURL(dataset)),
		archiveR:  repository.NewArchiveRepository(dataset, archiveStore, tags),
		mappings:  repository.NewMappingRepository(dataset, objects, tags),
	}

	e.jobs = &operation.Deps{
		Jobs:     jobs.NewRepository(objects),
		Tags:     tags,
		LockPath: filepath.Join(root, ".LOCK"),
	}
	return e, nil
}

func (e *env) Close() {
	if e.journal != nil {
		e.journal.Close()
	}
	lakelog.Sync()
}
