// Package archive implements the content-addressed blob store of spec.md
// §4.4: write-once blobs keyed by SHA-1 checksum, with per-source metadata
// and extracted-text sidecars, ported from conventions/path.py's
// archive_prefix/archive_blob/archive_meta/archive_txt layout functions.
package archive

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/statement"
)

// File is the per-source metadata record, one per unique (path, checksum)
// pair, per spec.md §3.
type File struct {
	Checksum  string            `json:"checksum"`
	Key       string            `json:"key"`
	Path      string            `json:"path"`
	Size      int64             `json:"size"`
	MimeType  string            `json:"mimetype"`
	Dataset   string            `json:"dataset"`
	Origin    string            `json:"origin"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// ID computes the disambiguating file_id = "file-" + sha1hex(path|checksum)
// per spec.md's File.id convention.
func (f File) ID() string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s", f.Path, f.Checksum)
	return "file-" + hex.EncodeToString(h.Sum(nil))
}

func prefix(checksum string) string {
	return fmt.Sprintf("archive/%s/%s/%s/%s", checksum[0:2], checksum[2:4], checksum[4:6], checksum)
}

// BlobPath returns the key of the content blob for checksum.
func BlobPath(checksum string) string { return prefix(checksum) + "/blob" }

// MetaPath returns the key of the metadata record for (checksum, fileID).
func MetaPath(checksum, fileID string) string { return prefix(checksum) + "/" + fileID + ".json" }

// TextPath returns the key of the extracted-text sidecar for (checksum, origin).
func TextPath(checksum, origin string) string { return prefix(checksum) + "/" + origin + ".txt" }

// DataPath returns the key of an auxiliary data artifact at subpath.
func DataPath(checksum, subpath string) string { return prefix(checksum) + "/" + subpath }

// Store is the archive over an object store.
type Store struct {
	store objectstore.Store
}

// New wraps store as an archive.
func New(store objectstore.Store) *Store {
	return &Store{store: store}
}

// Exists reports blob presence for checksum.
func (s *Store) Exists(ctx context.Context, checksum string) (bool, error) {
	return s.store.Exists(ctx, BlobPath(checksum))
}

// StoreBlob idempotently writes blob content read from r under its SHA-1
// checksum. It reads r fully and always computes the SHA-1; a non-empty
// checksum must equal the computed one or a BadInput error is returned.
// Returns the checksum.
func (s *Store) StoreBlob(ctx context.Context, r io.Reader, checksum string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	sum := sha1.Sum(data)
	computed := hex.EncodeToString(sum[:])
	if checksum != "" && checksum != computed {
		return "", lakeerrors.Wrap(lakeerrors.BadInput, "archive.StoreBlob", fmt.Errorf("checksum mismatch: want %s got %s", checksum, computed))
	}
	exists, err := s.Exists(ctx, computed)
	if err != nil {
		return "", err
	}
	if exists {
		return computed, nil // write-once: short-circuit, per spec.md §4.4 (iii)
	}
	if err := s.store.Put(ctx, BlobPath(computed), data); err != nil {
		return "", err
	}
	return computed, nil
}

// Store streams sourceURI's bytes (already fetched into r by the caller —
// this package doesn't itself resolve URIs, that's operation.Crawl's job),
// computing the checksum, writing the metadata sidecar and touching
// archive/last_updated (left to the caller/repository layer, which owns
// the tag store).
func (s *Store) Store(ctx context.Context, r io.Reader, meta File) (File, error) {
	checksum, err := s.StoreBlob(ctx, r, meta.Checksum)
	if err != nil {
		return File{}, err
	}
	meta.Checksum = checksum
	now := time.Now().UTC()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	data, err := json.Marshal(meta)
	if err != nil {
		return File{}, fmt.Errorf("marshal file meta: %w", err)
	}
	if err := s.store.Put(ctx, MetaPath(checksum, meta.ID()), data); err != nil {
		return File{}, err
	}
	return meta, nil
}

// GetFile returns one metadata record for checksum: fileID if given,
// otherwise the first match found.
func (s *Store) GetFile(ctx context.Context, checksum, fileID string) (File, error) {
	if fileID != "" {
		data, err := s.store.Get(ctx, MetaPath(checksum, fileID))
		if err != nil {
			return File{}, err
		}
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			return File{}, lakeerrors.Wrap(lakeerrors.Corruption, "archive.GetFile", err)
		}
		return f, nil
	}
	files, err := s.GetAllFiles(ctx, checksum)
	if err != nil {
		return File{}, err
	}
	if len(files) == 0 {
		return File{}, lakeerrors.WrapKey(lakeerrors.NotFound, "archive.GetFile", checksum, fmt.Errorf("no metadata"))
	}
	return files[0], nil
}

// GetAllFiles returns every metadata record for checksum.
func (s *Store) GetAllFiles(ctx context.Context, checksum string) ([]File, error) {
	yield, err := s.store.IterateKeys(ctx, prefix(checksum), "*.json", "")
	if err != nil {
		return nil, err
	}
	var out []File
	var iterErr error
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		data, gerr := s.store.Get(ctx, key)
		if gerr != nil {
			iterErr = gerr
			return false
		}
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			iterErr = lakeerrors.Wrap(lakeerrors.Corruption, "archive.GetAllFiles", err)
			return false
		}
		out = append(out, f)
		return true
	})
	return out, iterErr
}

// IterateFiles returns every metadata object in the archive.
func (s *Store) IterateFiles(ctx context.Context) ([]File, error) {
	yield, err := s.store.IterateKeys(ctx, "archive", "*.json", "")
	if err != nil {
		return nil, err
	}
	var out []File
	var iterErr error
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		data, gerr := s.store.Get(ctx, key)
		if gerr != nil {
			iterErr = gerr
			return false
		}
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			iterErr = lakeerrors.Wrap(lakeerrors.Corruption, "archive.IterateFiles", err)
			return false
		}
		out = append(out, f)
		return true
	})
	return out, iterErr
}

// Stream opens the blob for checksum.
func (s *Store) Stream(ctx context.Context, checksum string) (io.ReadCloser, error) {
	return s.store.Open(ctx, BlobPath(checksum))
}

// LocalPath resolves a local filesystem path for the blob at checksum.
func (s *Store) LocalPath(ctx context.Context, checksum string) (string, func(), error) {
	return s.store.LocalPath(ctx, BlobPath(checksum))
}

// PutTxt writes an extracted-text sidecar.
func (s *Store) PutTxt(ctx context.Context, checksum, origin, text string) error {
	return s.store.Put(ctx, TextPath(checksum, origin), []byte(text))
}

// GetTxt reads an extracted-text sidecar.
func (s *Store) GetTxt(ctx context.Context, checksum, origin string) (string, error) {
	data, err := s.store.Get(ctx, TextPath(checksum, origin))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutData writes an auxiliary artifact.
func (s *Store) PutData(ctx context.Context, checksum, subpath string, data []byte) error {
	return s.store.Put(ctx, DataPath(checksum, subpath), data)
}

// GetData reads an auxiliary artifact.
func (s *Store) GetData(ctx context.Context, checksum, subpath string) ([]byte, error) {
	return s.store.Get(ctx, DataPath(checksum, subpath))
}

// Delete removes a metadata record; it never removes the blob (spec.md §9 Q3:
// blob garbage collection is a non-goal, deletion is metadata-only).
func (s *Store) Delete(ctx context.Context, f File) error {
	return s.store.Delete(ctx, MetaPath(f.Checksum, f.ID()))
}

// MakeEntities builds the file entity spec.md §4.9's Crawl operation
// optionally enqueues into the journal: one Document-schema entity per
// File record, keyed by the file's id, carrying the properties the
// document exporter (§4.7) reads back out (contentHash, fileName,
// fileSize, mimeType).
func (f File) MakeEntities() []*statement.Entity {
	e := statement.NewEntity(f.ID(), "Document")
	if f.Origin != "" {
		e.Origins[f.Origin] = struct{}{}
	}
	add := func(prop, val string) {
		if val == "" {
			return
		}
		e.Properties[prop] = append(e.Properties[prop], val)
	}
	add("contentHash", f.Checksum)
	add("fileName", f.Key)
	if f.Size > 0 {
		add("fileSize", strconv.FormatInt(f.Size, 10))
	}
	add("mimeType", f.MimeType)
	return []*statement.Entity{e}
}
