// Package mapping implements the dataset mapping configuration model of
// spec.md §4.9's Mapping operation row, ported from the original's
// model/mapping.py. The ontology mapping template language itself (jinja-
// style value transforms, cross-row key lookups) is out of scope — Mapper
// is the seam a full template engine would implement; PassthroughMapper is
// a minimal, literal column->property implementation usable for tests and
// the simplest mappings.
package mapping

import "fmt"

// PropertyMapping binds one FTM property to a CSV column (optionally a
// literal instead).
type PropertyMapping struct {
	Column  string `yaml:"column,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// EntityMapping describes how to build one entity type from a CSV row.
type EntityMapping struct {
	Schema     string                     `yaml:"schema"`
	Keys       []string                   `yaml:"keys"`
	Properties map[string]PropertyMapping `yaml:"properties"`
}

// Mapping is one query: a named set of entities built from the same row.
type Mapping struct {
	Entities map[string]EntityMapping `yaml:"entities"`
}

// DatasetMapping is the mapping.yml contents for one archived CSV source,
// keyed by its content hash.
type DatasetMapping struct {
	Dataset     string    `yaml:"dataset"`
	ContentHash string    `yaml:"content_hash"`
	Queries     []Mapping `yaml:"queries"`
}

// Origin renders the statement origin tag every entity produced by this
// mapping is recorded under, per the original's model/mapping.py
// mapping_origin().
func Origin(contentHash string) string {
	return fmt.Sprintf("mapping:%s", contentHash)
}

// Row is one CSV record as a column-name-keyed map.
type Row map[string]string

// MappedEntity is one entity a Mapper produced from a row, in the shape the
// caller (operation.MappingOperation) folds into a statement.Entity.
type MappedEntity struct {
	ID         string
	Schema     string
	Properties map[string][]string
}

// Mapper turns one CSV row into zero or more entities under one Mapping
// query. Implementations beyond PassthroughMapper (value transforms,
// cross-row entity merging via keys, literal templating) belong to the
// external mapping-template engine and are out of scope here.
type Mapper interface {
	Map(row Row, m Mapping) ([]MappedEntity, error)
}

// PassthroughMapper implements the simplest possible mapping: each
// EntityMapping's Properties are read literally from the row's named
// columns (or a Literal value when given), and the entity id is the
// colon-joined values of its Keys columns.
type PassthroughMapper struct{}

// Map implements Mapper.
func (PassthroughMapper) Map(row Row, m Mapping) ([]MappedEntity, error) {
	out := make([]MappedEntity, 0, len(m.Entities))
	for name, em := range m.Entities {
		id := ""
		for i, k := range em.Keys {
			if i > 0 {
				id += ":"
			}
			id += row[k]
		}
		if id == "" {
			return nil, fmt.Errorf("mapping entity %q: empty key from row", name)
		}
		props := make(map[string][]string, len(em.Properties))
		for prop, pm := range em.Properties {
			var v string
			if pm.Literal != "" {
				v = pm.Literal
			} else {
				v = row[pm.Column]
			}
			if v == "" {
				continue
			}
			props[prop] = append(props[prop], v)
		}
		out = append(out, MappedEntity{ID: id, Schema: em.Schema, Properties: props})
	}
	return out, nil
}
