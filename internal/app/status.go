package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/storage"
	"github.com/hyperjump/normlab/internal/vector"
)

// StatusConfig is the configuration excerpt reported by Status.
type StatusConfig struct {
	EmbeddingProvider string `json:"embedding_provider"`
	VectorIndexType   string `json:"vector_index_type"`
	MaxTokens         int    `json:"max_tokens"`
	DefaultTopK       int    `json:"default_top_k"`
	DatabasePath      string `json:"database_path,omitempty"`
	BleveIndexPath    string `json:"bleve_index_path,omitempty"`
	VectorDir         string `json:"vector_dir,omitempty"`
}

// Status is the diagnostic view of a Backend. Consistent mirrors the vector store's own check.
type Status struct {
	Documents   int64          `json:"documents"`
	Chunks      int64          `json:"chunks"`
	TextEntries uint64         `json:"text_entries"`
	Vector      vector.Status  `json:"vector"`
	Consistent  bool           `json:"consistent"`
	Disk        *storage.Usage `json:"disk_usage,omitempty"`
	Config      StatusConfig   `json:"config"`
}

// Status gathers counts from the database, the text index, and the vector store.
func (b *Backend) Status(ctx context.Context) (*Status, error) {
	docs, err := b.Storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	chunks, err := b.Storage.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	entries, err := b.Text.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count text entries: %w", err)
	}
	vs := b.Vectors.Status()
	st := &Status{
		Documents:   docs,
		Chunks:      chunks,
		TextEntries: entries,
		Vector:      vs,
		Consistent:  vs.Consistent,
		Config: StatusConfig{
			EmbeddingProvider: b.Config.Embedding.Provider,
			VectorIndexType:   vs.IndexType,
			MaxTokens:         b.Config.Ingest.MaxTokens,
			DefaultTopK:       b.Config.Retrieval.DefaultTopK,
			DatabasePath:      b.Config.Storage.DatabasePath,
			BleveIndexPath:    b.Config.Storage.BleveIndexPath,
			VectorDir:         b.Config.Storage.VectorDir,
		},
	}
	usage, err := storage.MeasureUsage(b.Config.Storage.DatabasePath, b.Config.Storage.BleveIndexPath, b.Config.Storage.VectorDir)
	if err != nil {
		b.logger.Warn("disk usage unavailable", zap.Error(err))
	} else {
		st.Disk = &usage
	}
	return st, nil
}
