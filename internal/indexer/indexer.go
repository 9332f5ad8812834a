package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/extract"
	"github.com/hyperjump/normlab/internal/fileid"
	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/internal/storage"
)

// Ingested is the outcome of one ingestion. Chunks holds only the chunks that were persisted.
// Skipped is set when a file's source already has a document.
type Ingested struct {
	Document *models.Document
	Chunks   []*models.Chunk
	Skipped  bool
}

// FileMeta carries the document attributes that cannot be derived from a file.
type FileMeta struct {
	Country  string
	DocType  string
	Language string
	Title    string
	Project  string
}

// Indexer stores documents and their annotated chunks.
type Indexer struct {
	storage   storage.Storage
	chunker   *Chunker
	annotator *Annotator
	extractor *extract.Extractor
	logger    *zap.Logger // optional; when set, logs ingestion events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events and partial-state errors.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtractor overrides the file text extractor.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// NewIndexer creates an indexer that chunks content into windows of maxTokens.
func NewIndexer(store storage.Storage, maxTokens int, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		storage:   store,
		chunker:   NewChunker(maxTokens),
		annotator: NewAnnotator(),
		extractor: extract.NewExtractor(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest stores the document and its chunks and returns the generated document id.
func (idx *Indexer) Ingest(ctx context.Context, input *models.DocumentInput) (string, error) {
	res, err := idx.IngestDocument(ctx, input)
	if res == nil {
		return "", err
	}
	return res.Document.ID, err
}

// IngestDocument persists the document, then each chunk with auto-commit.
// If the document insert fails nothing is visible. If a chunk insert fails after the document
// committed, the partial state is logged and returned together with the error; it is not rolled back.
func (idx *Indexer) IngestDocument(ctx context.Context, input *models.DocumentInput) (*Ingested, error) {
	if input == nil || strings.TrimSpace(input.Source) == "" {
		return nil, fmt.Errorf("%w: source is required", models.ErrValidation)
	}
	doc := &models.Document{
		Source:     strings.TrimSpace(input.Source),
		Country:    input.Country,
		DocType:    input.DocType,
		Title:      input.Title,
		Language:   input.Language,
		RawContent: input.Content,
		Project:    input.Project,
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	chunks := idx.chunker.Chunk(doc.ID, doc.RawContent)
	locale := chunkLocale(doc)
	res := &Ingested{Document: doc, Chunks: make([]*models.Chunk, 0, len(chunks))}
	for _, ch := range chunks {
		idx.annotator.Annotate(ch, doc.Language, locale)
		if err := idx.storage.CreateChunk(ctx, ch); err != nil {
			if idx.logger != nil {
				idx.logger.Error("partial ingestion: document stored but chunk insert failed",
					zap.String("document_id", doc.ID),
					zap.Int("chunk_index", ch.ChunkIndex),
					zap.Int("chunks_persisted", len(res.Chunks)),
					zap.Int("chunks_total", len(chunks)),
					zap.Error(err))
			}
			return res, fmt.Errorf("failed to store chunk %d of document %s: %w", ch.ChunkIndex, doc.ID, err)
		}
		res.Chunks = append(res.Chunks, ch)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer document ingested",
			zap.String("document_id", doc.ID),
			zap.String("source", doc.Source),
			zap.Int("chunks", len(res.Chunks)))
	}
	return res, nil
}

// chunkLocale is the country when known, otherwise the document language.
func chunkLocale(doc *models.Document) string {
	if doc.Country != "" {
		return doc.Country
	}
	return doc.Language
}

// IngestFile extracts text from path and ingests it under the file's stable source key.
// Documents are write-once: a file whose source key already has a document is skipped and the
// existing document is returned with Skipped set.
func (idx *Indexer) IngestFile(ctx context.Context, path string, meta FileMeta) (*Ingested, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !extract.Supported(filepath.Ext(absPath)) {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrValidation, absPath)
	}

	source := fileid.SourceKey(absPath)
	existing, err := idx.storage.FindDocumentBySource(ctx, source)
	switch {
	case err == nil:
		if idx.logger != nil {
			idx.logger.Debug("indexer skipping already ingested file", zap.String("path", absPath), zap.String("document_id", existing.ID))
		}
		return &Ingested{Document: existing, Skipped: true}, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	title := meta.Title
	if title == "" {
		title = filepath.Base(absPath)
	}
	res, err := idx.IngestDocument(ctx, &models.DocumentInput{
		Source:   source,
		Country:  meta.Country,
		DocType:  meta.DocType,
		Title:    title,
		Language: meta.Language,
		Content:  text,
		Project:  meta.Project,
	})
	if err == nil && idx.logger != nil {
		idx.logger.Info("file ingested", zap.String("path", absPath), zap.String("document_id", res.Document.ID), zap.Int("chunks", len(res.Chunks)))
	}
	return res, err
}

// WalkFiles calls fn for every regular file under dir whose extension can be extracted.
func WalkFiles(dir string, fn func(path string) error) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", absDir)
	}
	return filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != absDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !extract.Supported(filepath.Ext(path)) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		return fn(path)
	})
}
