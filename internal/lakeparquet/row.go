// Package lakeparquet implements the partitioned columnar statement store
// of spec.md §4.3: one parquet file per flush inside a
// bucket/origin partition directory, plus a hand-rolled JSON transaction
// log giving delta-lake-style commit versioning, time travel and CDC.
//
// Backed by github.com/xitongsys/parquet-go, the same parquet encoder the
// teacher depends on (transitively, via its Dolt storage engine).
package lakeparquet

import (
	"time"

	"github.com/openaleph/lakehouse-go/internal/statement"
)

// row is the on-disk parquet schema for one statement. xitongsys/parquet-go
// derives the physical schema from these struct tags.
type row struct {
	ID          string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	EntityID    string `parquet:"name=entity_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CanonicalID string `parquet:"name=canonical_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Schema      string `parquet:"name=schema, type=BYTE_ARRAY, convertedtype=UTF8"`
	Prop        string `parquet:"name=prop, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value       string `parquet:"name=value, type=BYTE_ARRAY, convertedtype=UTF8"`
	Dataset     string `parquet:"name=dataset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Origin      string `parquet:"name=origin, type=BYTE_ARRAY, convertedtype=UTF8"`
	Lang        string `parquet:"name=lang, type=BYTE_ARRAY, convertedtype=UTF8"`
	External    bool   `parquet:"name=external, type=BOOLEAN"`
	FirstSeen   int64  `parquet:"name=first_seen, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	LastSeen    int64  `parquet:"name=last_seen, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Bucket      string `parquet:"name=bucket, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func toRow(s statement.Statement) row {
	return row{
		ID:          s.ID,
		EntityID:    s.EntityID,
		CanonicalID: s.CanonicalID,
		Schema:      s.Schema,
		Prop:        s.Prop,
		Value:       s.Value,
		Dataset:     s.Dataset,
		Origin:      s.Origin,
		Lang:        s.Lang,
		External:    s.External,
		FirstSeen:   s.FirstSeen.UnixMicro(),
		LastSeen:    s.LastSeen.UnixMicro(),
		Bucket:      s.Bucket,
	}
}

func fromRow(r row) statement.Statement {
	return statement.Statement{
		ID:          r.ID,
		EntityID:    r.EntityID,
		CanonicalID: r.CanonicalID,
		Schema:      r.Schema,
		Prop:        r.Prop,
		Value:       r.Value,
		Dataset:     r.Dataset,
		Origin:      r.Origin,
		Lang:        r.Lang,
		External:    r.External,
		FirstSeen:   time.UnixMicro(r.FirstSeen).UTC(),
		LastSeen:    time.UnixMicro(r.LastSeen).UTC(),
		Bucket:      r.Bucket,
	}
}
