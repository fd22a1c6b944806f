// Package journal implements the durable write-ahead buffer of spec.md
// §4.2: a single SQLite table accepting bursts of statement writes under
// transactional semantics, drained in deterministic order by flush.
//
// Backed by modernc.org/sqlite (pure-Go, no cgo), the same driver the
// teacher uses for its own embedded storage (cmd/bd/migrate.go:
// sql.Open("sqlite", dbPath)).
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/statement"
)

const schema = `
CREATE TABLE IF NOT EXISTS statements (
	id TEXT PRIMARY KEY,
	bucket TEXT NOT NULL,
	origin TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_statements_bucket_origin_canonical
	ON statements(bucket, origin, canonical_id);
`

// Journal wraps the SQLite-backed statement buffer for one dataset.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if necessary) the journal database at dsn, a path
// like "data/mydataset/journal.db" derived from LAKEHOUSE_JOURNAL_URI.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // single-writer per dataset, per spec.md §5
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Count returns the number of buffered rows.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM statements`).Scan(&n)
	if err != nil {
		return 0, lakeerrors.Wrap(lakeerrors.Corruption, "journal.Count", err)
	}
	return n, nil
}

// Clear removes every buffered row unconditionally, returning the number
// removed. Used by operation.Recreate when starting over.
func (j *Journal) Clear(ctx context.Context) (int, error) {
	n, err := j.Count(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := j.db.ExecContext(ctx, `DELETE FROM statements`); err != nil {
		return 0, lakeerrors.Wrap(lakeerrors.Corruption, "journal.Clear", err)
	}
	return n, nil
}

// Writer is a batching context over an open transaction. AddStatement and
// AddEntity enqueue rows; Flush commits; Rollback discards; Close is
// idempotent and safe to call after either, matching spec.md §4.2's
// "leaving the writer scope normally must commit; on abnormal exit it must
// roll back" rule (callers are expected to `defer w.Close()` immediately
// after NewWriter and call Flush explicitly on the success path).
type Writer struct {
	tx     *sql.Tx
	origin string
	done   bool
}

// Writer opens a new batching transaction for origin.
func (j *Journal) Writer(ctx context.Context, origin string) (*Writer, error) {
	if origin == "" {
		origin = statement.DefaultOrigin
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin journal writer: %w", err)
	}
	return &Writer{tx: tx, origin: origin}, nil
}

// AddStatement upserts one row: a repeat id replaces the stored data,
// matching invariant (a) of spec.md §4.2.
func (w *Writer) AddStatement(ctx context.Context, s statement.Statement) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal statement %s: %w", s.ID, err)
	}
	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO statements (id, bucket, origin, canonical_id, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data=excluded.data, bucket=excluded.bucket, canonical_id=excluded.canonical_id
	`, s.ID, s.Bucket, s.Origin, s.CanonicalID, data)
	if err != nil {
		return lakeerrors.Wrap(lakeerrors.Corruption, "journal.AddStatement", err)
	}
	return nil
}

// AddEntity expands an already-materialized entity's properties into
// individual statements and enqueues each.
func (w *Writer) AddEntity(ctx context.Context, dataset string, e *statement.Entity) error {
	now := time.Now().UTC()
	for _, prop := range e.SortedProps() {
		for _, value := range e.Properties[prop] {
			s := statement.New(e.ID, e.Schema, prop, value, dataset, "", w.origin, false, now)
			if err := w.AddStatement(ctx, s); err != nil {
				return err
			}
		}
	}
	idStmt := statement.New(e.ID, e.Schema, "id", "", dataset, "", w.origin, false, now)
	return w.AddStatement(ctx, idStmt)
}

// Flush commits the pending batch and finishes the Writer; a further batch
// needs a new Writer from Journal.Writer.
func (w *Writer) Flush() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.tx.Commit(); err != nil {
		return lakeerrors.Wrap(lakeerrors.Corruption, "journal.Writer.Flush", err)
	}
	return nil
}

// Rollback discards the pending batch.
func (w *Writer) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.tx.Rollback()
}

// Close rolls back if neither Flush nor Rollback has run yet, per the
// "abnormal exit rolls back" contract. Safe to call multiple times.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	return w.Rollback()
}

// Row is one buffered statement as read by Drain.
type Row struct {
	ID          string
	Bucket      string
	Origin      string
	CanonicalID string
	Statement   statement.Statement
}

// FlushTx is the handle returned by Drain: the caller must call Commit
// after successfully consuming every row, or the rows remain buffered.
type FlushTx struct {
	tx   *sql.Tx
	done bool
}

// Commit deletes the rows that were streamed, finalizing the flush. Must be
// called only after the consumer has drained the sequence without error.
func (f *FlushTx) Commit(ctx context.Context, ids []string) error {
	if f.done {
		return nil
	}
	f.done = true
	for _, id := range ids {
		if _, err := f.tx.ExecContext(ctx, `DELETE FROM statements WHERE id = ?`, id); err != nil {
			f.tx.Rollback()
			return lakeerrors.Wrap(lakeerrors.Corruption, "journal.FlushTx.Commit", err)
		}
	}
	return f.tx.Commit()
}

// Abort rolls back the flush transaction, leaving every row in place —
// used when the consumer encountered an error mid-drain.
func (f *FlushTx) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	return f.tx.Rollback()
}

// Drain opens a snapshot transaction and returns an iterator over every
// buffered row ordered by (bucket, origin, canonical_id, id), plus the
// FlushTx the caller must Commit (with the consumed ids) once done. The
// transaction holds a lock for its lifetime, matching spec.md §4.2's
// "removed only after the consumer drains without error."
func (j *Journal) Drain(ctx context.Context) (iter.Seq2[Row, error], *FlushTx, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin drain: %w", err)
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, bucket, origin, canonical_id, data FROM statements
		ORDER BY bucket, origin, canonical_id, id
	`)
	if err != nil {
		tx.Rollback()
		return nil, nil, lakeerrors.Wrap(lakeerrors.Corruption, "journal.Drain", err)
	}

	seq := func(yield func(Row, error) bool) {
		defer rows.Close()
		for rows.Next() {
			var r Row
			var data []byte
			if err := rows.Scan(&r.ID, &r.Bucket, &r.Origin, &r.CanonicalID, &data); err != nil {
				yield(Row{}, lakeerrors.Wrap(lakeerrors.Corruption, "journal.Drain.Scan", err))
				return
			}
			var s statement.Statement
			if err := json.Unmarshal(data, &s); err != nil {
				yield(Row{}, lakeerrors.Wrap(lakeerrors.Corruption, "journal.Drain.Unmarshal", err))
				return
			}
			r.Statement = s
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Row{}, lakeerrors.Wrap(lakeerrors.Corruption, "journal.Drain.rows", err))
		}
	}
	return seq, &FlushTx{tx: tx}, nil
}
