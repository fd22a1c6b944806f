package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"sort"
	"strconv"
	"time"

	"github.com/openaleph/lakehouse-go/internal/lakeparquet"
	"github.com/openaleph/lakehouse-go/internal/objectstore"
	"github.com/openaleph/lakehouse-go/internal/statement"
	"github.com/openaleph/lakehouse-go/internal/tagstore"
)

const documentsExportPath = "exports/documents.csv"

var documentCSVHeader = []string{"id", "checksum", "name", "path", "size", "mimetype", "updated_at", "public_url"}

// DocumentRow is one row of documents.csv, per spec.md §6.
type DocumentRow struct {
	ID        string
	Checksum  string
	Name      string
	Path      string
	Size      int64
	MimeType  string
	UpdatedAt string
	PublicURL string
}

func (r DocumentRow) record() []string {
	return []string{
		r.ID, r.Checksum, r.Name, r.Path,
		strconv.FormatInt(r.Size, 10), r.MimeType, r.UpdatedAt, r.PublicURL,
	}
}

// DocumentRepository builds documents.csv from Document-schema entities in
// the parquet store, resolving each document's folder path by walking its
// parent chain, per spec.md §4.7.
type DocumentRepository struct {
	Dataset         string
	Objects         objectstore.Store
	Parquet         *lakeparquet.Store
	Tags            *tagstore.Store
	PublicURLPrefix string

	DiffExporter
}

// NewDocumentRepository wires the parquet store for one dataset's document
// export.
func NewDocumentRepository(dataset string, objects objectstore.Store, p *lakeparquet.Store, tags *tagstore.Store, publicURLPrefix string) *DocumentRepository {
	r := &DocumentRepository{Dataset: dataset, Objects: objects, Parquet: p, Tags: tags, PublicURLPrefix: publicURLPrefix}
	r.DiffExporter = DiffExporter{
		objects:  objects,
		versions: p,
		basePath: "diffs/" + documentsExportPath,
		stateKey: "diffs/" + documentsExportPath + "/last_exported",
		tags:     tags,
	}
	return r
}

type folder struct {
	caption  string
	parentID string
}

// resolvePaths scans every Folder entity, builds the id -> (caption,
// parent) table, then walks each folder's parent chain to a slash-separated
// path, breaking cycles with a visited set, ported from the original's
// repository/documents.py make_paths.
func resolvePaths(entities []*statement.Entity) map[string]string {
	folders := make(map[string]folder)
	for _, e := range entities {
		if e.Schema != "Folder" {
			continue
		}
		caption := e.ID
		if names := e.Properties["fileName"]; len(names) > 0 {
			caption = names[0]
		} else if names := e.Properties["name"]; len(names) > 0 {
			caption = names[0]
		}
		parentID := ""
		if parents := e.Properties["parent"]; len(parents) > 0 {
			parentID = parents[0]
		}
		folders[e.ID] = folder{caption: caption, parentID: parentID}
	}

	paths := make(map[string]string, len(folders))
	var resolve func(id string) string
	resolve = func(id string) string {
		if p, ok := paths[id]; ok {
			return p
		}
		f, ok := folders[id]
		if !ok {
			return ""
		}
		visited := map[string]bool{id: true}
		segments := []string{f.caption}
		cur := f.parentID
		for cur != "" {
			if visited[cur] {
				break // cyclic reference, per spec.md §9
			}
			visited[cur] = true
			pf, ok := folders[cur]
			if !ok {
				break
			}
			segments = append([]string{pf.caption}, segments...)
			cur = pf.parentID
		}
		p := joinSlash(segments)
		paths[id] = p
		return p
	}
	for id := range folders {
		resolve(id)
	}
	return paths
}

func joinSlash(segments []string) string {
	out := ""
	for i, s := range segments {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}

// Rows resolves folder paths and returns one row per Document-schema entity
// (Folder included has no row of its own; it only contributes to path
// resolution), ordered by contentHash.
func (r *DocumentRepository) Rows(ctx context.Context, entities []*statement.Entity) ([]DocumentRow, error) {
	paths := resolvePaths(entities)

	var rows []DocumentRow
	for _, e := range entities {
		if e.Schema == "Folder" || bucketOf(e) != "documents" {
			continue
		}
		parentPath := ""
		if parents := e.Properties["parent"]; len(parents) > 0 {
			parentPath = paths[parents[0]]
		}
		name := e.ID
		if names := e.Properties["fileName"]; len(names) > 0 {
			name = names[0]
		}
		checksum := ""
		if cs := e.Properties["contentHash"]; len(cs) > 0 {
			checksum = cs[0]
		}
		var size int64
		if sizes := e.Properties["fileSize"]; len(sizes) > 0 {
			size, _ = strconv.ParseInt(sizes[0], 10, 64)
		}
		mimeType := ""
		if mts := e.Properties["mimeType"]; len(mts) > 0 {
			mimeType = mts[0]
		}
		publicURL := ""
		if r.PublicURLPrefix != "" && checksum != "" {
			publicURL = r.PublicURLPrefix + "/" + checksum
		}
		rows = append(rows, DocumentRow{
			ID:        e.ID,
			Checksum:  checksum,
			Name:      name,
			Path:      parentPath,
			Size:      size,
			MimeType:  mimeType,
			UpdatedAt: "",
			PublicURL: publicURL,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Checksum < rows[j].Checksum })
	return rows, nil
}

func bucketOf(e *statement.Entity) string {
	return statement.BucketFor(e.Schema)
}

// ExportCSV writes documents.csv, ordered by contentHash per spec.md §4.7.
func (r *DocumentRepository) ExportCSV(ctx context.Context) error {
	entities, err := r.Parquet.Query(ctx, lakeparquet.Filter{})
	if err != nil {
		return err
	}
	rows, err := r.Rows(ctx, entities)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(documentCSVHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if err := r.Objects.Put(ctx, documentsExportPath, buf.Bytes()); err != nil {
		return err
	}
	_, err = r.Tags.Set(ctx, documentsExportPath, time.Time{})
	return err
}

// Stream reads the current documents.csv.
func (r *DocumentRepository) Stream(ctx context.Context) ([]byte, error) {
	return r.Objects.Get(ctx, documentsExportPath)
}

// StreamRows reads and parses the current documents.csv, used by
// operation.DownloadArchive to walk every exported document.
func (r *DocumentRepository) StreamRows(ctx context.Context) ([]DocumentRow, error) {
	data, err := r.Stream(ctx)
	if err != nil {
		return nil, err
	}
	return ParseDocumentsCSV(data)
}

// ParseDocumentsCSV decodes documents.csv back into rows, the inverse of
// ExportCSV's encoding.
func ParseDocumentsCSV(data []byte) ([]DocumentRow, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	out := make([]DocumentRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 8 {
			continue
		}
		size, _ := strconv.ParseInt(rec[4], 10, 64)
		out = append(out, DocumentRow{
			ID:        rec[0],
			Checksum:  rec[1],
			Name:      rec[2],
			Path:      rec[3],
			Size:      size,
			MimeType:  rec[5],
			UpdatedAt: rec[6],
			PublicURL: rec[7],
		})
	}
	return out, nil
}
