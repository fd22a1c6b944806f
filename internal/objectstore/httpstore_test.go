package objectstore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
)

func newHTTPFixture(t *testing.T) *objectstore.HTTPStore {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	})
	mux.HandleFunc("/missing.txt", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return objectstore.NewHTTP(srv.URL)
}

func TestHTTPStoreGetRoundtrips(t *testing.T) {
	ctx := context.Background()
	s := newHTTPFixture(t)

	data, err := s.Get(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestHTTPStoreGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newHTTPFixture(t)

	_, err := s.Get(ctx, "missing.txt")
	require.Error(t, err)
	assert.True(t, lakeerrors.Is(err, lakeerrors.NotFound))
}

func TestHTTPStoreExists(t *testing.T) {
	ctx := context.Background()
	s := newHTTPFixture(t)

	ok, err := s.Exists(ctx, "a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPStoreOpenRangeHonorsRangeHeader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a.txt", func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		assert.Equal(t, "bytes=2-5", rng)
		w.Write([]byte("llo "))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	s := objectstore.NewHTTP(srv.URL)

	rc, err := s.OpenRange(context.Background(), "a.txt", 2, 4)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "llo ", string(data))
}

func TestHTTPStorePutIsReadOnly(t *testing.T) {
	s := newHTTPFixture(t)
	err := s.Put(context.Background(), "a.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, lakeerrors.Is(err, lakeerrors.BadInput))
}

func TestHTTPStoreContentLength(t *testing.T) {
	ctx := context.Background()
	s := newHTTPFixture(t)

	n, err := s.ContentLength(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), n)
}

func TestHTTPStoreChecksum(t *testing.T) {
	ctx := context.Background()
	s := newHTTPFixture(t)

	sum, err := s.Checksum(ctx, "a.txt")
	require.NoError(t, err)
	assert.Len(t, sum, 40)
}
