// Package lakeconfig loads dataset-engine settings from environment
// variables and an optional config.yml, following the teacher's viper
// usage (cmd/bd/config.go's v := viper.New(); v.SetConfigType("yaml"))
// and the Python original's Settings(BaseSettings) env-prefix convention
// (ftm_lakehouse/core/settings.py: env prefix "lakehouse_").
package lakeconfig

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for every Settings field,
// per spec.md §6: LAKEHOUSE_URI, LAKEHOUSE_JOURNAL_URI, LAKEHOUSE_PUBLIC_URL_PREFIX.
const EnvPrefix = "LAKEHOUSE"

// Settings holds process-wide configuration, constructed once from the
// environment and passed explicitly into constructors — per SPEC_FULL.md's
// "no process-wide mutable state" design note, a thin top-level factory
// (Load) builds it for CLI convenience, but library code never reaches for
// a package-level singleton.
type Settings struct {
	URI             string `mapstructure:"uri"`
	JournalURI      string `mapstructure:"journal_uri"`
	PublicURLPrefix string `mapstructure:"public_url_prefix"`
}

// DatasetConfig is the per-dataset config.yml contents living at
// <root>/config.yml, versioned like any other model (see internal/versionstore).
type DatasetConfig struct {
	Name     string            `yaml:"name"`
	Title    string            `yaml:"title,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// Load builds Settings from the environment, defaulting URI to "data" and
// JournalURI to "sqlite:///data/journal.db" exactly per spec.md §6.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("uri", "data")
	v.SetDefault("journal_uri", "sqlite:///data/journal.db")
	v.SetDefault("public_url_prefix", "")

	var s Settings
	if err := v.BindEnv("uri"); err != nil {
		return nil, fmt.Errorf("bind uri: %w", err)
	}
	if err := v.BindEnv("journal_uri"); err != nil {
		return nil, fmt.Errorf("bind journal_uri: %w", err)
	}
	if err := v.BindEnv("public_url_prefix"); err != nil {
		return nil, fmt.Errorf("bind public_url_prefix: %w", err)
	}
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &s, nil
}

// DatasetRoot resolves the filesystem root for a named dataset under the
// configured URI, matching the "<root>/" tree spec.md §6 documents.
func (s *Settings) DatasetRoot(dataset string) string {
	return filepath.Join(s.URI, dataset)
}

// PublicURL renders the public URL prefix template for a dataset, replacing
// the "{dataset}" placeholder per spec.md §6's templated env var.
func (s *Settings) PublicURL(dataset string) string {
	if s.PublicURLPrefix == "" {
		return ""
	}
	return strings.ReplaceAll(s.PublicURLPrefix, "{dataset}", dataset)
}

// JournalDSN resolves the per-dataset sqlite file path the journal package
// opens, stripping the "sqlite://" scheme from JournalURI and rooting the
// file under the dataset's own directory (so every dataset gets an
// independent journal even though JournalURI names a single default path).
func (s *Settings) JournalDSN(dataset string) string {
	p := strings.TrimPrefix(s.JournalURI, "sqlite://")
	p = strings.TrimPrefix(p, "/")
	dir := filepath.Dir(p)
	base := filepath.Base(p)
	return filepath.Join(dir, dataset, base)
}
