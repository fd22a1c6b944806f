package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/statement"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

// DiffExporter implements spec.md §4.8's CDC-driven diff algorithm, mixed
// into both EntityRepository and DocumentRepository: the first export of a
// base path is a self-contained initial diff (a full copy wrapped in
// envelopes), every subsequent export is strictly incremental over the
// parquet store's transaction log.
type DiffExporter struct {
	objects  objectstore.Store
	versions *lakeparquet.Store
	basePath string // e.g. "diffs/entities.ftm.json"
	stateKey string // object key holding the last exported {version, name}
	tags     *tagstore.Store
}

type diffState struct {
	Version int      `json:"version"`
	Name    string   `json:"name"`
	Known   []string `json:"known,omitempty"` // canonical ids already emitted by a prior entities diff
}

func (d *DiffExporter) loadState(ctx context.Context) (*diffState, error) {
	exists, err := d.objects.Exists(ctx, d.stateKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	data, err := d.objects.Get(ctx, d.stateKey)
	if err != nil {
		return nil, err
	}
	var st diffState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode diff state %s: %w", d.stateKey, err)
	}
	return &st, nil
}

func (d *DiffExporter) saveState(ctx context.Context, st diffState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode diff state: %w", err)
	}
	if err := d.objects.Put(ctx, d.stateKey, data); err != nil {
		return err
	}
	if d.tags != nil {
		_, err = d.tags.Set(ctx, d.basePath+"/last_exported", time.Time{})
		return err
	}
	return nil
}

// DiffOp is one of the ADD/MOD/DEL envelope operations of spec.md §4.8
// invariant (c).
type DiffOp string

const (
	DiffAdd DiffOp = "ADD"
	DiffMod DiffOp = "MOD"
	DiffDel DiffOp = "DEL"
)

// EntityDiffEnvelope is one NDJSON line of an entities delta file.
type EntityDiffEnvelope struct {
	Op     DiffOp                    `json:"op"`
	Entity *statement.EntityEnvelope `json:"entity,omitempty"`
}

// ExportEntities writes the next entities diff file, given the current full
// set of entities (for an initial diff) and access to the parquet store's
// change feed (for an incremental one). Returns the path written and
// whether anything was written at all (false when the store has never been
// flushed, or nothing changed since the last export).
func (d *DiffExporter) ExportEntities(ctx context.Context, current []*statement.Entity) (string, bool, error) {
	v, err := d.versions.Version(ctx)
	if err != nil {
		return "", false, err
	}
	if v < 0 {
		return "", false, nil
	}
	name := fmt.Sprintf("v%d_%s", v, statement.FormatTS(time.Now()))
	path := d.basePath + "/" + name + ".delta.json"

	state, err := d.loadState(ctx)
	if err != nil {
		return "", false, err
	}

	if state == nil {
		envs := make([]EntityDiffEnvelope, 0, len(current))
		known := make([]string, 0, len(current))
		for _, e := range current {
			env := e.ToEnvelope()
			envs = append(envs, EntityDiffEnvelope{Op: DiffAdd, Entity: &env})
			known = append(known, e.ID)
		}
		if err := writeEntityDiff(ctx, d.objects, path, envs); err != nil {
			return "", false, err
		}
		if err := d.saveState(ctx, diffState{Version: v, Name: name, Known: known}); err != nil {
			return "", false, err
		}
		return path, true, nil
	}

	if state.Version >= v {
		return "", false, nil
	}

	changes, err := d.versions.GetChanges(ctx, state.Version+1, v)
	if err != nil {
		return "", false, err
	}

	touched := make(map[string]bool)
	for _, c := range changes {
		if c.ChangeType == lakeparquet.ChangeInsert || c.ChangeType == lakeparquet.ChangeUpdatePostimage {
			touched[c.Statement.CanonicalID] = true
		}
	}
	if len(touched) == 0 {
		return "", false, nil
	}

	byID := make(map[string]*statement.Entity, len(current))
	for _, e := range current {
		byID[e.ID] = e
	}

	knownBefore := make(map[string]bool, len(state.Known))
	for _, id := range state.Known {
		knownBefore[id] = true
	}

	envs := make([]EntityDiffEnvelope, 0, len(touched))
	for id := range touched {
		if e, ok := byID[id]; ok {
			op := DiffMod
			if !knownBefore[id] {
				op = DiffAdd
			}
			env := e.ToEnvelope()
			envs = append(envs, EntityDiffEnvelope{Op: op, Entity: &env})
		} else {
			envs = append(envs, EntityDiffEnvelope{Op: DiffDel, Entity: &statement.EntityEnvelope{ID: id}})
		}
	}

	known := make([]string, 0, len(knownBefore)+len(touched))
	for id := range knownBefore {
		if _, deleted := touched[id]; deleted {
			if _, stillPresent := byID[id]; !stillPresent {
				continue
			}
		}
		known = append(known, id)
	}
	for id := range touched {
		if _, ok := byID[id]; ok && !knownBefore[id] {
			known = append(known, id)
		}
	}

	if err := writeEntityDiff(ctx, d.objects, path, envs); err != nil {
		return "", false, err
	}
	if err := d.saveState(ctx, diffState{Version: v, Name: name, Known: known}); err != nil {
		return "", false, err
	}
	return path, true, nil
}

func writeEntityDiff(ctx context.Context, store objectstore.Store, path string, envs []EntityDiffEnvelope) error {
	var buf []byte
	for _, env := range envs {
		line, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal diff envelope: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return store.Put(ctx, path, buf)
}

// ExportDocuments writes the next documents diff file, restricted to
// Document-schema entities (excluding Folder) whose contentHash changed —
// spec.md §9 Q2's explicit "no" on origin-only changes triggering a row.
func (d *DiffExporter) ExportDocuments(ctx context.Context, rows []DocumentRow) (string, bool, error) {
	v, err := d.versions.Version(ctx)
	if err != nil {
		return "", false, err
	}
	if v < 0 {
		return "", false, nil
	}
	name := fmt.Sprintf("v%d_%s", v, statement.FormatTS(time.Now()))
	path := d.basePath + "/" + name + ".diff.csv"

	state, err := d.loadState(ctx)
	if err != nil {
		return "", false, err
	}

	if state == nil {
		if err := writeDocumentRows(ctx, d.objects, path, rows); err != nil {
			return "", false, err
		}
		if err := d.saveState(ctx, diffState{Version: v, Name: name}); err != nil {
			return "", false, err
		}
		return path, true, nil
	}

	if state.Version >= v {
		return "", false, nil
	}

	changes, err := d.versions.GetChanges(ctx, state.Version+1, v)
	if err != nil {
		return "", false, err
	}

	touched := make(map[string]bool)
	for _, c := range changes {
		if c.Statement.Prop != "contentHash" {
			continue
		}
		if c.Statement.Schema == "Folder" {
			continue
		}
		if c.ChangeType == lakeparquet.ChangeInsert || c.ChangeType == lakeparquet.ChangeUpdatePostimage {
			touched[c.Statement.CanonicalID] = true
		}
	}
	if len(touched) == 0 {
		return "", false, nil
	}

	var filtered []DocumentRow
	for _, r := range rows {
		if touched[r.ID] {
			filtered = append(filtered, r)
		}
	}
	if err := writeDocumentRows(ctx, d.objects, path, filtered); err != nil {
		return "", false, err
	}
	if err := d.saveState(ctx, diffState{Version: v, Name: name}); err != nil {
		return "", false, err
	}
	return path, true, nil
}

func writeDocumentRows(ctx context.Context, store objectstore.Store, path string, rows []DocumentRow) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(documentCSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return store.Put(ctx, path, buf.Bytes())
}
