package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/embedding"
	"github.com/hyperjump/normlab/internal/keyword"
	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/internal/vector"
	"github.com/hyperjump/normlab/pkg/utils"
)

// reindexPageSize is how many documents Reindex loads per page.
const reindexPageSize = 100

// Pipeline ingests documents and indexes their chunks in the text index and, when an
// embedder is configured, the vector store.
type Pipeline struct {
	indexer  *Indexer
	text     keyword.Index
	vectors  *vector.Store
	embedder embedding.Embedder
	logger   *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline wires an indexer to the text index, the vector store, and an optional embedder.
// embedder may be nil, in which case chunks are only text-indexed.
func NewPipeline(idx *Indexer, text keyword.Index, vectors *vector.Store, embedder embedding.Embedder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{indexer: idx, text: text, vectors: vectors, embedder: embedder}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	return p
}

// Indexer returns the underlying document indexer.
func (p *Pipeline) Indexer() *Indexer {
	return p.indexer
}

// Result summarises one IngestAndIndex call.
type Result struct {
	DocumentID string  `json:"document_id"`
	Chunks     int     `json:"chunks"`
	VectorIDs  []int64 `json:"vector_ids"`
	Skipped    bool    `json:"skipped,omitempty"`
}

// IngestAndIndex ingests a document and indexes its chunks.
func (p *Pipeline) IngestAndIndex(ctx context.Context, input *models.DocumentInput) (*Result, error) {
	ing, err := p.indexer.IngestDocument(ctx, input)
	if err != nil {
		return resultOf(ing), err
	}
	return p.index(ctx, ing)
}

// IngestFileAndIndex ingests a file and indexes its chunks. Already ingested files are skipped.
func (p *Pipeline) IngestFileAndIndex(ctx context.Context, path string, meta FileMeta) (*Result, error) {
	ing, err := p.indexer.IngestFile(ctx, path, meta)
	if err != nil {
		return resultOf(ing), err
	}
	if ing.Skipped {
		return resultOf(ing), nil
	}
	return p.index(ctx, ing)
}

func resultOf(ing *Ingested) *Result {
	if ing == nil {
		return nil
	}
	return &Result{DocumentID: ing.Document.ID, Chunks: len(ing.Chunks), VectorIDs: []int64{}, Skipped: ing.Skipped}
}

// index embeds the chunks, appends them to the vector store, then adds them to the text
// index with their vector ids.
func (p *Pipeline) index(ctx context.Context, ing *Ingested) (*Result, error) {
	res := resultOf(ing)
	if len(ing.Chunks) == 0 {
		return res, nil
	}
	entries := make([]*keyword.Entry, len(ing.Chunks))
	for i, ch := range ing.Chunks {
		entries[i] = entryFor(ing, ch)
	}

	if p.embedder != nil && p.vectors != nil {
		texts := make([]string, len(ing.Chunks))
		metas := make([]map[string]any, len(ing.Chunks))
		for i, ch := range ing.Chunks {
			texts[i] = ch.Text
			metas[i] = entries[i].Meta()
		}
		embeddings, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		ids, err := p.vectors.AddRecords(ctx, texts, metas, embeddings)
		if err != nil {
			return res, fmt.Errorf("failed to index vectors: %w", err)
		}
		for i, id := range ids {
			entries[i].VectorID = id
		}
		res.VectorIDs = ids
	}

	if p.text != nil {
		if err := p.text.Index(ctx, entries); err != nil {
			return res, fmt.Errorf("failed to index text: %w", err)
		}
	}
	p.logger.Debug("pipeline document indexed",
		zap.String("document_id", res.DocumentID),
		zap.Int("chunks", res.Chunks),
		zap.Int("vectors", len(res.VectorIDs)))
	return res, nil
}

func entryFor(ing *Ingested, ch *models.Chunk) *keyword.Entry {
	return &keyword.Entry{
		ChunkID:    ch.ID,
		DocumentID: ing.Document.ID,
		VectorID:   -1,
		Source:     ing.Document.Source,
		Title:      ing.Document.Title,
		Filename:   ing.Document.Title,
		Project:    ing.Document.Project,
		Heading:    ch.Heading,
		Text:       ch.Text,
		Unit:       ch.Unit,
		Locale:     ch.Locale,
		WorkTypes:  ch.WorkTypes,
		NormCodes:  ch.NormCodes,
		CreatedAt:  ch.CreatedAt,
	}
}

// Reindex rebuilds the text and vector indices from the stored documents and chunks.
// Call it after the indices were reset; it does not clear them first.
func (p *Pipeline) Reindex(ctx context.Context) (int, error) {
	n := 0
	for offset := 0; ; offset += reindexPageSize {
		docs, err := p.indexer.storage.ListDocuments(ctx, offset, reindexPageSize)
		if err != nil {
			return n, err
		}
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			chunks, err := p.indexer.storage.GetChunksByDocumentID(ctx, doc.ID)
			if err != nil {
				return n, err
			}
			if _, err := p.index(ctx, &Ingested{Document: doc, Chunks: chunks}); err != nil {
				return n, err
			}
			n++
		}
		if len(docs) < reindexPageSize {
			return n, nil
		}
	}
}
