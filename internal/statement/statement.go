// Package statement implements the shared Statement/Entity data model: the
// atomic subject-property-value tuple every other layer (journal, parquet
// store, repositories) builds on, plus the deterministic ID hashing and
// bucket-partitioning rules it's defined by.
package statement

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// DefaultOrigin is used whenever a caller does not specify a provenance tag.
const DefaultOrigin = "default"

// TSFormat is the Go time.Format layout equivalent of the Python
// "%Y%m%dT%H%M%S%fZ" convention used throughout the on-disk layout (version
// directories, diff file names). Go's time package has no native
// microsecond "%f" verb, so FormatTS below renders it by hand.
const TSFormat = "20060102T150405"

// FormatTS renders t in the dataset's canonical compact-UTC timestamp
// format, e.g. "20240102T150405.123456Z" — six fractional digits to match
// the Python original's microsecond precision exactly.
func FormatTS(t time.Time) string {
	u := t.UTC()
	return u.Format(TSFormat) + "." + fmt.Sprintf("%06d", u.Nanosecond()/1000) + "Z"
}

// Statement is the atomic unit of persistence: an immutable assertion about
// one property of one entity, as seen from one provenance origin.
type Statement struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entity_id"`
	CanonicalID string    `json:"canonical_id"`
	Schema      string    `json:"schema"`
	Prop        string    `json:"prop"`
	Value       string    `json:"value"`
	Dataset     string    `json:"dataset"`
	Origin      string    `json:"origin"`
	Lang        string    `json:"lang,omitempty"`
	External    bool      `json:"external,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Bucket      string    `json:"bucket"`
}

// MakeID computes the deterministic SHA-1 hex id of a statement from its
// identity-defining fields: (canonical_id, prop, value, dataset, lang,
// origin, external). Re-inserting an otherwise-identical statement yields
// the same id, which is what makes journal/parquet upsert idempotent.
func MakeID(canonicalID, prop, value, dataset, lang, origin string, external bool) string {
	if origin == "" {
		origin = DefaultOrigin
	}
	h := sha1.New()
	fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1f%s\x1f%s\x1f%s",
		canonicalID, prop, value, dataset, lang, origin, strconv.FormatBool(external))
	return hex.EncodeToString(h.Sum(nil))
}

// New builds a Statement with its ID computed and Origin defaulted, and
// FirstSeen/LastSeen both set to now.
func New(entityID, schema, prop, value, dataset, lang, origin string, external bool, now time.Time) Statement {
	if origin == "" {
		origin = DefaultOrigin
	}
	canonicalID := entityID
	s := Statement{
		EntityID:    entityID,
		CanonicalID: canonicalID,
		Schema:      schema,
		Prop:        prop,
		Value:       value,
		Dataset:     dataset,
		Origin:      origin,
		Lang:        lang,
		External:    external,
		FirstSeen:   now,
		LastSeen:    now,
		Bucket:      BucketFor(schema),
	}
	s.ID = MakeID(canonicalID, prop, value, dataset, lang, origin, external)
	return s
}

// bucketBySchema is the static schema->bucket partition table. thing is the
// fallback default for any schema not listed here, matching the ftmq
// convention that most concrete entities (Person, Company, Document, ...)
// live in "thing" while relationship-like schemata partition separately.
var bucketBySchema = map[string]string{
	"Interval":       "intervals",
	"Membership":     "intervals",
	"Ownership":      "intervals",
	"Directorship":   "intervals",
	"Employment":     "intervals",
	"Family":         "intervals",
	"Associate":      "intervals",
	"UnknownLink":    "intervals",
	"Document":       "documents",
	"Folder":         "documents",
	"Pages":          "documents",
	"Email":          "documents",
	"PlainText":      "documents",
	"HyperText":      "documents",
	"Table":          "documents",
	"Workbook":       "documents",
	"Image":          "documents",
	"Audio":          "documents",
	"Video":          "documents",
	"Archive":        "documents",
	"Package":        "documents",
	"PlainContract":  "documents",
}

// BucketDefault is the fallback bucket for schemata absent from the table.
const BucketDefault = "thing"

// BucketFor resolves a schema name to its storage partition bucket.
func BucketFor(schema string) string {
	if b, ok := bucketBySchema[schema]; ok {
		return b
	}
	return BucketDefault
}

// Entity is a read-only, materialized set-view over every statement sharing
// a canonical_id. It is never stored directly; repositories build it on
// read from the statement stream.
type Entity struct {
	ID         string
	Schema     string
	Properties map[string][]string
	Origins    map[string]struct{}
}

// NewEntity creates an empty materialized entity for the given id/schema.
func NewEntity(id, schema string) *Entity {
	return &Entity{
		ID:         id,
		Schema:     schema,
		Properties: make(map[string][]string),
		Origins:    make(map[string]struct{}),
	}
}

// Add folds one statement into the entity view: the value is added to the
// property's set (deduplicated) and the origin is recorded. The sentinel
// "id" property marks entity existence without contributing a value.
func (e *Entity) Add(s Statement) {
	if s.Schema != "" {
		e.Schema = s.Schema
	}
	e.Origins[s.Origin] = struct{}{}
	if s.Prop == "id" {
		return
	}
	for _, v := range e.Properties[s.Prop] {
		if v == s.Value {
			return
		}
	}
	e.Properties[s.Prop] = append(e.Properties[s.Prop], s.Value)
}

// OriginSlice returns the entity's origins sorted for deterministic output.
func (e *Entity) OriginSlice() []string {
	out := make([]string, 0, len(e.Origins))
	for o := range e.Origins {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// SortedProps returns property names in sorted order, for deterministic
// JSON/NDJSON serialization.
func (e *Entity) SortedProps() []string {
	out := make([]string, 0, len(e.Properties))
	for p := range e.Properties {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// EntityEnvelope is the NDJSON shape written to entities.ftm.json, matching
// spec.md §6's "entities.ftm.json" and "entities delta" file formats.
type EntityEnvelope struct {
	ID         string              `json:"id"`
	Schema     string              `json:"schema"`
	Properties map[string][]string `json:"properties"`
	Context    EntityContext       `json:"context,omitempty"`
}

// EntityContext carries the provenance side-channel of an exported entity.
type EntityContext struct {
	Origin []string `json:"origin,omitempty"`
}

// ToEnvelope renders the materialized entity into its exported NDJSON shape.
func (e *Entity) ToEnvelope() EntityEnvelope {
	props := make(map[string][]string, len(e.Properties))
	for _, p := range e.SortedProps() {
		props[p] = e.Properties[p]
	}
	return EntityEnvelope{
		ID:         e.ID,
		Schema:     e.Schema,
		Properties: props,
		Context:    EntityContext{Origin: e.OriginSlice()},
	}
}
