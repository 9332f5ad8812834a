// Package keyword provides the BM25 text index over chunks.
package keyword

import (
	"context"
	"time"
)

// Entry is the indexed form of one chunk. VectorID is the chunk's vector store id, or -1
// when the chunk was not embedded.
type Entry struct {
	ChunkID    string
	DocumentID string
	VectorID   int64
	Source     string
	Title      string
	Filename   string
	Project    string
	Heading    string
	Text       string
	Unit       string
	Locale     string
	WorkTypes  []string
	NormCodes  []string
	CreatedAt  time.Time
}

// Meta returns the entry's fields in the shape stored beside vector records.
func (e *Entry) Meta() map[string]any {
	m := map[string]any{
		"chunk_id":    e.ChunkID,
		"document_id": e.DocumentID,
		"source":      e.Source,
		"title":       e.Title,
		"filename":    e.Filename,
		"heading":     e.Heading,
		"unit":        e.Unit,
		"locale":      e.Locale,
		"work_types":  stringsOrEmpty(e.WorkTypes),
		"norm_codes":  stringsOrEmpty(e.NormCodes),
	}
	if e.Project != "" {
		m["project"] = e.Project
	}
	return m
}

// Result is a single text search hit with the stored entry.
type Result struct {
	Entry
	Score float64
}

// Index defines text index operations.
type Index interface {
	Index(ctx context.Context, entries []*Entry) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	DocCount() (uint64, error)
	Reset() error
	Close() error
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
