package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/operation"
)

var (
	crawlGlob        string
	crawlExclude     string
	crawlPrefix      string
	crawlNoEntities  bool
	crawlExistingFlag string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <uri>",
	Short: "Archive every file under a source location",
	Long: `crawl lists keys under the given source (a local directory path or
an http(s):// base URL), archives each one into the dataset's blob
archive, and — unless --no-entities is set — enqueues a Document entity
per file under origin "crawl".`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().StringVar(&crawlGlob, "glob", "", "only crawl keys matching this glob")
	crawlCmd.Flags().StringVar(&crawlExclude, "exclude", "", "skip keys whose base name matches this glob")
	crawlCmd.Flags().StringVar(&crawlPrefix, "prefix", "", "restrict crawl to this key prefix")
	crawlCmd.Flags().BoolVar(&crawlNoEntities, "no-entities", false, "archive files without enqueuing Document entities")
	crawlCmd.Flags().StringVar(&crawlExistingFlag, "existing", "overwrite", "overwrite|skip_path|skip_checksum: behavior for already-archived files")
	rootCmd.AddCommand(crawlCmd)
}

func sourceStoreForURI(uri string) (objectstore.Store, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return objectstore.NewHTTP(uri), nil
	case strings.HasPrefix(uri, "file://"):
		return objectstore.NewLocal(strings.TrimPrefix(uri, "file://"))
	case strings.HasPrefix(uri, "s3://"):
		return nil, fmt.Errorf("crawl: s3:// sources are not wired into the CLI yet, use a local mirror")
	default:
		return objectstore.NewLocal(uri)
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	source, err := sourceStoreForURI(args[0])
	if err != nil {
		return err
	}

	op := &operation.CrawlOperation{
		Dataset:      dataset,
		Source:       source,
		Archive:      e.archiveR,
		Entities:     e.entities,
		Prefix:       crawlPrefix,
		Glob:         crawlGlob,
		ExcludeGlob:  crawlExclude,
		MakeEntities: !crawlNoEntities,
		Existing:     operation.ExistingMode(crawlExistingFlag),
	}
	_, err = operation.Run(cmd.Context(), *e.jobs, dataset, op, true)
	return err
}
