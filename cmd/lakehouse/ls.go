package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openaleph/lakehouse-go/internal/lakeconfig"
)

var (
	lsPrefix string
	lsGlob   string
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List keys under the current dataset",
	RunE:  runLs,
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List every dataset under LAKEHOUSE_URI",
	RunE:  runDatasets,
}

func init() {
	lsCmd.Flags().StringVar(&lsPrefix, "prefix", "", "restrict listing to this key prefix")
	lsCmd.Flags().StringVar(&lsGlob, "glob", "", "restrict listing to keys matching this glob")
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(datasetsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	yield, err := e.objects.IterateKeys(cmd.Context(), lsPrefix, lsGlob, "")
	if err != nil {
		return err
	}
	var keys []string
	var iterErr error
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		keys = append(keys, key)
		return true
	})
	if iterErr != nil {
		return iterErr
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runDatasets(cmd *cobra.Command, args []string) error {
	settings, err := lakeconfig.Load()
	if err != nil {
		return err
	}
	if uriFlag != "" {
		settings.URI = uriFlag
	}
	entries, err := os.ReadDir(settings.URI)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var names []string
	for _, ent := range entries {
		if ent.IsDir() {
			names = append(names, filepath.Base(ent.Name()))
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
