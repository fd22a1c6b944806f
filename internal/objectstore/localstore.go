package objectstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
)

// LocalStore is the filesystem-backed Store: the default for every dataset
// under LAKEHOUSE_URI, matching spec.md §6's "<root>/" layout.
type LocalStore struct {
	root string
}

// NewLocal creates a LocalStore rooted at root, creating it if necessary.
func NewLocal(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) abs(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.abs(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(s.abs(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, lakeerrors.WrapKey(lakeerrors.NotFound, "objectstore.Get", key, err)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// Put writes via a temp file + rename, giving atomic-at-object-granularity
// semantics: readers see either the whole old file or the whole new one.
func (s *LocalStore) Put(_ context.Context, key string, data []byte) error {
	dst := s.abs(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place for %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.abs(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, lakeerrors.WrapKey(lakeerrors.NotFound, "objectstore.Open", key, err)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

func (s *LocalStore) OpenRange(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(s.abs(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, lakeerrors.WrapKey(lakeerrors.NotFound, "objectstore.OpenRange", key, err)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s: %w", key, err)
	}
	if length < 0 {
		return f, nil
	}
	return &limitedReadCloser{r: io.LimitReader(f, length), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

func (s *LocalStore) IterateKeys(_ context.Context, prefix, glob, exclude string) (func(yield func(string, error) bool), error) {
	root := s.abs(prefix)
	var keys []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if glob != "" {
			ok, merr := filepath.Match(glob, filepath.Base(rel))
			if merr != nil {
				return merr
			}
			if !ok {
				return nil
			}
		}
		if exclude != "" {
			ok, merr := filepath.Match(exclude, filepath.Base(rel))
			if merr == nil && ok {
				return nil
			}
		}
		keys = append(keys, rel)
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("walk %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return func(yield func(string, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.abs(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) LocalPath(_ context.Context, key string) (string, func(), error) {
	return s.abs(key), func() {}, nil
}

func (s *LocalStore) Checksum(_ context.Context, key string) (string, error) {
	f, err := os.Open(s.abs(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", lakeerrors.WrapKey(lakeerrors.NotFound, "objectstore.Checksum", key, err)
		}
		return "", fmt.Errorf("open %s: %w", key, err)
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", key, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Watch follows the teacher's optional daemon-mode use of fsnotify,
// surfacing filesystem events under prefix. No operation calls it. The
// returned watcher must be closed by the caller.
func (s *LocalStore) Watch(prefix string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new watcher: %w", err)
	}
	root := s.abs(prefix)
	if err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	}); err != nil {
		w.Close()
		if errors.Is(err, os.ErrNotExist) {
			if err := w.Add(filepath.Dir(root)); err != nil {
				w.Close()
				return nil, err
			}
			return w, nil
		}
		return nil, fmt.Errorf("watch %s: %w", prefix, err)
	}
	return w, nil
}
