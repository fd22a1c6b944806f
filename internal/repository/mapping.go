package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
	"github.com/openaleph/lakehouse-go/internal/mapping"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

// MappingRepository persists dataset mapping configurations under
// mappings/<content_hash>/mapping.yml, per spec.md §4.9's Mapping operation
// row and supplemented from the original's repository/mapping.py.
type MappingRepository struct {
	Dataset string
	Objects objectstore.Store
	Tags    *tagstore.Store
}

// NewMappingRepository wires an object store for one dataset's mappings.
func NewMappingRepository(dataset string, objects objectstore.Store, tags *tagstore.Store) *MappingRepository {
	return &MappingRepository{Dataset: dataset, Objects: objects, Tags: tags}
}

func mappingPath(contentHash string) string {
	return fmt.Sprintf("mappings/%s/mapping.yml", contentHash)
}

// Put writes m's mapping.yml and touches its dependency tag, so
// operation.MappingOperation's freshness check sees a fresh mapping.yml
// whenever it changes.
func (r *MappingRepository) Put(ctx context.Context, m mapping.DatasetMapping) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	path := mappingPath(m.ContentHash)
	if err := r.Objects.Put(ctx, path, data); err != nil {
		return err
	}
	if r.Tags == nil {
		return nil
	}
	_, err = r.Tags.Set(ctx, path, time.Time{})
	return err
}

// Get reads the mapping configuration for contentHash.
func (r *MappingRepository) Get(ctx context.Context, contentHash string) (mapping.DatasetMapping, error) {
	data, err := r.Objects.Get(ctx, mappingPath(contentHash))
	if err != nil {
		return mapping.DatasetMapping{}, err
	}
	var m mapping.DatasetMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return mapping.DatasetMapping{}, lakeerrors.Wrap(lakeerrors.Corruption, "MappingRepository.Get", err)
	}
	return m, nil
}

// List returns every content hash with a stored mapping.
func (r *MappingRepository) List(ctx context.Context) ([]string, error) {
	yield, err := r.Objects.IterateKeys(ctx, "mappings", "mapping.yml", "")
	if err != nil {
		return nil, err
	}
	var out []string
	var iterErr error
	yield(func(key string, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		rest, ok := strings.CutPrefix(key, "mappings/")
		if !ok {
			return true
		}
		hash, _, ok := strings.Cut(rest, "/")
		if ok {
			out = append(out, hash)
		}
		return true
	})
	return out, iterErr
}

// Iterate returns every stored mapping configuration.
func (r *MappingRepository) Iterate(ctx context.Context) ([]mapping.DatasetMapping, error) {
	hashes, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]mapping.DatasetMapping, 0, len(hashes))
	for _, h := range hashes {
		m, err := r.Get(ctx, h)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
