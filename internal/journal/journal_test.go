package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/journal"
	"github.com/openaleph/lakehouse-go/internal/statement"
)

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestWriterFlushPersistsStatements(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	w, err := j.Writer(ctx, "crawl")
	require.NoError(t, err)
	defer w.Close()

	s := statement.New("e1", "Person", "name", "Alice", "ds", "", "crawl", false, time.Now())
	require.NoError(t, w.AddStatement(ctx, s))
	require.NoError(t, w.Flush())

	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestWriterRollbackDiscardsStatements(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	w, err := j.Writer(ctx, "crawl")
	require.NoError(t, err)
	s := statement.New("e1", "Person", "name", "Alice", "ds", "", "crawl", false, time.Now())
	require.NoError(t, w.AddStatement(ctx, s))
	require.NoError(t, w.Rollback())

	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestWriterCloseWithoutFlushRollsBack(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	w, err := j.Writer(ctx, "crawl")
	require.NoError(t, err)
	s := statement.New("e1", "Person", "name", "Alice", "ds", "", "crawl", false, time.Now())
	require.NoError(t, w.AddStatement(ctx, s))
	require.NoError(t, w.Close())

	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestAddStatementUpsertsByID(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	w, err := j.Writer(ctx, "crawl")
	require.NoError(t, err)
	defer w.Close()

	now := time.Now()
	s1 := statement.New("e1", "Person", "name", "Alice", "ds", "", "crawl", false, now)
	s2 := statement.New("e1", "Person", "name", "Alice", "ds", "", "crawl", false, now.Add(time.Hour))
	require.Equal(t, s1.ID, s2.ID)

	require.NoError(t, w.AddStatement(ctx, s1))
	require.NoError(t, w.AddStatement(ctx, s2))
	require.NoError(t, w.Flush())

	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestAddEntityExpandsProperties(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	w, err := j.Writer(ctx, "crawl")
	require.NoError(t, err)
	defer w.Close()

	e := statement.NewEntity("e1", "Person")
	e.Add(statement.Statement{Schema: "Person", Prop: "name", Value: "Alice", Origin: "crawl"})
	e.Add(statement.Statement{Schema: "Person", Prop: "name", Value: "Bob", Origin: "crawl"})

	require.NoError(t, w.AddEntity(ctx, "ds", e))
	require.NoError(t, w.Flush())

	// two "name" values plus the synthetic "id" row
	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestDrainOrdersAndFlushTxCommitRemoves(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	w, err := j.Writer(ctx, "crawl")
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, w.AddStatement(ctx, statement.New("e2", "Person", "name", "Zed", "ds", "", "crawl", false, now)))
	require.NoError(t, w.AddStatement(ctx, statement.New("e1", "Person", "name", "Alice", "ds", "", "crawl", false, now)))
	require.NoError(t, w.Flush())

	seq, ftx, err := j.Drain(ctx)
	require.NoError(t, err)

	var ids []string
	var canonicalIDs []string
	for row, err := range seq {
		require.NoError(t, err)
		ids = append(ids, row.ID)
		canonicalIDs = append(canonicalIDs, row.CanonicalID)
	}
	require.Equal(t, []string{"e1", "e2"}, canonicalIDs)

	require.NoError(t, ftx.Commit(ctx, ids))

	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestDrainAbortLeavesRowsBuffered(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	w, err := j.Writer(ctx, "crawl")
	require.NoError(t, err)
	require.NoError(t, w.AddStatement(ctx, statement.New("e1", "Person", "name", "Alice", "ds", "", "crawl", false, time.Now())))
	require.NoError(t, w.Flush())

	_, ftx, err := j.Drain(ctx)
	require.NoError(t, err)
	require.NoError(t, ftx.Abort())

	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	w, err := j.Writer(ctx, "crawl")
	require.NoError(t, err)
	require.NoError(t, w.AddStatement(ctx, statement.New("e1", "Person", "name", "Alice", "ds", "", "crawl", false, time.Now())))
	require.NoError(t, w.Flush())

	n, err := j.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
