package archive_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/archive"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
)

func newArchive(t *testing.T) *archive.Store {
	t.Helper()
	os_, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	return archive.New(os_)
}

func TestStoreBlobIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)

	sum1, err := a.StoreBlob(ctx, bytes.NewReader([]byte("hello")), "")
	require.NoError(t, err)

	sum2, err := a.StoreBlob(ctx, bytes.NewReader([]byte("hello")), "")
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)

	ok, err := a.Exists(ctx, sum1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreBlobChecksumMismatchFails(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)

	_, err := a.StoreBlob(ctx, bytes.NewReader([]byte("hello")), "deadbeef")
	require.Error(t, err)
}

func TestStoreAndGetFile(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)

	meta := archive.File{Key: "doc.txt", Path: "docs/doc.txt", Size: 5, MimeType: "text/plain", Origin: "crawl"}
	stored, err := a.Store(ctx, bytes.NewReader([]byte("hello")), meta)
	require.NoError(t, err)
	require.NotEmpty(t, stored.Checksum)

	got, err := a.GetFile(ctx, stored.Checksum, stored.ID())
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", got.Key)
	assert.Equal(t, "crawl", got.Origin)
}

func TestGetAllFilesReturnsEveryRecordForChecksum(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)

	meta1 := archive.File{Key: "a.txt", Path: "p/a.txt", Origin: "crawl"}
	meta2 := archive.File{Key: "b.txt", Path: "p/b.txt", Origin: "mapping"}
	stored1, err := a.Store(ctx, bytes.NewReader([]byte("same")), meta1)
	require.NoError(t, err)
	stored2, err := a.Store(ctx, bytes.NewReader([]byte("same")), meta2)
	require.NoError(t, err)
	assert.Equal(t, stored1.Checksum, stored2.Checksum)

	all, err := a.GetAllFiles(ctx, stored1.Checksum)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTxtAndDataSidecars(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)

	require.NoError(t, a.PutTxt(ctx, "abc123", "crawl", "extracted text"))
	text, err := a.GetTxt(ctx, "abc123", "crawl")
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)

	require.NoError(t, a.PutData(ctx, "abc123", "preview.png", []byte{1, 2, 3}))
	data, err := a.GetData(ctx, "abc123", "preview.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestFileMakeEntities(t *testing.T) {
	f := archive.File{Checksum: "abc", Key: "report.pdf", Size: 1024, MimeType: "application/pdf", Origin: "crawl"}
	entities := f.MakeEntities()
	require.Len(t, entities, 1)
	e := entities[0]
	assert.Equal(t, "Document", e.Schema)
	assert.Equal(t, []string{"abc"}, e.Properties["contentHash"])
	assert.Equal(t, []string{"report.pdf"}, e.Properties["fileName"])
	assert.Equal(t, []string{"1024"}, e.Properties["fileSize"])
	assert.Equal(t, []string{"application/pdf"}, e.Properties["mimeType"])
	_, hasOrigin := e.Origins["crawl"]
	assert.True(t, hasOrigin)
}

func TestFileIDIsDeterministic(t *testing.T) {
	f1 := archive.File{Path: "p/a.txt", Checksum: "abc"}
	f2 := archive.File{Path: "p/a.txt", Checksum: "abc"}
	f3 := archive.File{Path: "p/b.txt", Checksum: "abc"}
	assert.Equal(t, f1.ID(), f2.ID())
	assert.NotEqual(t, f1.ID(), f3.ID())
}
