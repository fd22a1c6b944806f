// Package catalog implements the index.json composition of spec.md §4.9's
// ExportIndex operation row: a small resource-list-plus-statistics model,
// ported from the Python original's model/dataset.py (DatasetModel/Catalog)
// trimmed to the fields the core engine actually produces — the ontology
// and query-language richness of ftmq's Dataset model is an external
// collaborator concern.
package catalog

import (
	"context"

	"github.com/openaleph/lakehouse-go/internal/objectstore"
)

// legacyStatisticsPath is the bare top-level path earlier dataset layouts
// wrote statistics.json to, before it moved under exports/ alongside the
// other export artifacts.
const legacyStatisticsPath = "statistics.json"

// CanonicalStatisticsPath is the path ExportStatisticsOperation writes to.
const CanonicalStatisticsPath = "exports/statistics.json"

// MigrateStatisticsPath moves a dataset's statistics.json from its legacy
// bare path to exports/statistics.json the first time the dataset is
// opened, per spec.md §9's statistics-path migration. A no-op if the
// canonical path already exists or the legacy one doesn't.
func MigrateStatisticsPath(ctx context.Context, objects objectstore.Store) error {
	canonicalExists, err := objects.Exists(ctx, CanonicalStatisticsPath)
	if err != nil {
		return err
	}
	if canonicalExists {
		return nil
	}
	legacyExists, err := objects.Exists(ctx, legacyStatisticsPath)
	if err != nil {
		return err
	}
	if !legacyExists {
		return nil
	}
	data, err := objects.Get(ctx, legacyStatisticsPath)
	if err != nil {
		return err
	}
	if err := objects.Put(ctx, CanonicalStatisticsPath, data); err != nil {
		return err
	}
	return objects.Delete(ctx, legacyStatisticsPath)
}

// Resource describes one exported artifact, e.g. statements.csv or
// entities.ftm.json, per the original's helpers/dataset.py make_*_resource
// functions.
type Resource struct {
	Name      string `json:"name"`
	URI       string `json:"uri"`
	PublicURL string `json:"public_url,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

// Stats mirrors repository.Stats without importing the repository package,
// so catalog stays a leaf dependency of operation rather than cycling back
// through it.
type Stats struct {
	EntityCount   int            `json:"entity_count"`
	SchemaCount   map[string]int `json:"schema_count,omitempty"`
	CountryCount  map[string]int `json:"country_count,omitempty"`
	OriginCount   map[string]int `json:"origin_count,omitempty"`
	DateRangeFrom string         `json:"date_range_from,omitempty"`
	DateRangeTo   string         `json:"date_range_to,omitempty"`
}

// Dataset is the index.json document written by ExportIndexOperation.
type Dataset struct {
	Name       string     `json:"name"`
	Title      string     `json:"title,omitempty"`
	Resources  []Resource `json:"resources,omitempty"`
	Statistics *Stats     `json:"statistics,omitempty"`
}

// AddResource appends r to d's resource list.
func (d *Dataset) AddResource(r Resource) {
	d.Resources = append(d.Resources, r)
}
