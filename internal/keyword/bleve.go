package keyword

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// Fields matched by a text query.
var searchFields = []string{"text", "heading", "title", "norm_codes", "work_types", "source"}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	path  string
	mu    sync.RWMutex
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory to force a re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	index, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{path: path, index: index}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming): Turkish and Russian terms
	// must match the way they are written.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	for _, f := range []string{"text", "heading", "title", "filename", "norm_codes", "work_types"} {
		docMapping.AddFieldMappingsAt(f, text)
	}

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keywordanalyzer.Name
	for _, f := range []string{"chunk_id", "document_id", "source", "project", "unit", "locale", "created_at"} {
		docMapping.AddFieldMappingsAt(f, exact)
	}

	docMapping.AddFieldMappingsAt("vector_id", bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

func openOrCreate(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return index, nil
	}
	index, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, nil
}

// Index adds entries in one batch, keyed by chunk id.
func (b *BleveIndex) Index(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	batch := b.index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(e.ChunkID, toDocument(e)); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", e.ChunkID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to commit text index batch: %w", err)
	}
	return nil
}

func toDocument(e *Entry) map[string]any {
	return map[string]any{
		"chunk_id":    e.ChunkID,
		"document_id": e.DocumentID,
		"vector_id":   float64(e.VectorID),
		"source":      e.Source,
		"title":       e.Title,
		"filename":    e.Filename,
		"project":     e.Project,
		"heading":     e.Heading,
		"text":        e.Text,
		"unit":        e.Unit,
		"locale":      e.Locale,
		"work_types":  e.WorkTypes,
		"norm_codes":  e.NormCodes,
		"created_at":  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Search runs a disjunction of match queries over the searchable fields and returns up to
// limit hits by descending BM25 score.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	if limit <= 0 {
		return []*Result{}, nil
	}
	queries := make([]blevequery.Query, 0, len(searchFields))
	for _, f := range searchFields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(f)
		queries = append(queries, mq)
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit
	req.Fields = []string{"*"}

	b.mu.RLock()
	res, err := b.index.SearchInContext(ctx, req)
	b.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := &Result{Entry: fromFields(hit.Fields), Score: hit.Score}
		if r.ChunkID == "" {
			r.ChunkID = hit.ID
		}
		out = append(out, r)
	}
	return out, nil
}

func fromFields(f map[string]any) Entry {
	e := Entry{
		ChunkID:    fieldString(f, "chunk_id"),
		DocumentID: fieldString(f, "document_id"),
		VectorID:   -1,
		Source:     fieldString(f, "source"),
		Title:      fieldString(f, "title"),
		Filename:   fieldString(f, "filename"),
		Project:    fieldString(f, "project"),
		Heading:    fieldString(f, "heading"),
		Text:       fieldString(f, "text"),
		Unit:       fieldString(f, "unit"),
		Locale:     fieldString(f, "locale"),
		WorkTypes:  fieldStrings(f, "work_types"),
		NormCodes:  fieldStrings(f, "norm_codes"),
	}
	if v, ok := f["vector_id"].(float64); ok {
		e.VectorID = int64(v)
	}
	if ts, err := time.Parse(time.RFC3339Nano, fieldString(f, "created_at")); err == nil {
		e.CreatedAt = ts
	}
	return e
}

func fieldString(f map[string]any, name string) string {
	s, _ := f[name].(string)
	return s
}

// fieldStrings reads an array field; Bleve returns a bare value for single-element arrays.
func fieldStrings(f map[string]any, name string) []string {
	switch v := f[name].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Reset drops every entry by recreating the index directory.
func (b *BleveIndex) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("failed to close Bleve index: %w", err)
	}
	if err := os.RemoveAll(b.path); err != nil {
		return fmt.Errorf("failed to remove Bleve index: %w", err)
	}
	index, err := openOrCreate(b.path)
	if err != nil {
		return err
	}
	b.index = index
	return nil
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
