// Package app wires the stores, indexes, and services of normlab into one explicit handle.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/config"
	"github.com/hyperjump/normlab/internal/embedding"
	"github.com/hyperjump/normlab/internal/importer"
	"github.com/hyperjump/normlab/internal/indexer"
	"github.com/hyperjump/normlab/internal/keyword"
	"github.com/hyperjump/normlab/internal/norms"
	"github.com/hyperjump/normlab/internal/report"
	"github.com/hyperjump/normlab/internal/retriever"
	"github.com/hyperjump/normlab/internal/storage"
	"github.com/hyperjump/normlab/internal/vector"
	"github.com/hyperjump/normlab/internal/watcher"
	"github.com/hyperjump/normlab/pkg/utils"
)

// Backend owns every store and service for one data directory. Operations take the Backend
// explicitly; there is no package-level state. The files it opens must not be shared with
// another process.
type Backend struct {
	Config    *config.Config
	Storage   *storage.SQLiteStorage
	Text      *keyword.BleveIndex
	Vectors   *vector.Store
	Embedder  embedding.Embedder // nil when the provider is "none"
	Indexer   *indexer.Indexer
	Pipeline  *indexer.Pipeline
	Retriever *retriever.Retriever
	Resolver  *norms.Resolver
	Reporter  *report.Reporter
	Importer  *importer.Importer

	logger *zap.Logger
}

// Open opens (or creates) the database, the text index, and the vector store named in cfg and
// builds the services over them. On failure everything already opened is closed.
func Open(cfg *config.Config, logger *zap.Logger) (_ *Backend, err error) {
	logger = utils.OrNop(logger)
	b := &Backend{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	if b.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if b.Embedder, err = embedding.New(cfg.Embedding); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	dim := cfg.Embedding.Dimensions
	if b.Embedder != nil {
		dim = b.Embedder.Dimensions()
	}
	if b.Vectors, err = openVectors(cfg.Storage, dim, logger); err != nil {
		return nil, err
	}
	if b.Text, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath); err != nil {
		return nil, fmt.Errorf("failed to initialize text index: %w", err)
	}

	b.Indexer = indexer.NewIndexer(b.Storage, cfg.Ingest.MaxTokens, indexer.WithLogger(logger))
	b.Pipeline = indexer.NewPipeline(b.Indexer, b.Text, b.Vectors, b.Embedder, indexer.WithPipelineLogger(logger))
	b.Retriever = retriever.New(b.Vectors, b.Text, b.Embedder, cfg.Retrieval,
		retriever.WithLogger(logger), retriever.WithRetrievalLog(b.Storage))
	b.Resolver = norms.NewResolver(b.Storage, cfg.Norms.Multipliers, norms.WithLogger(logger))
	b.Reporter = report.New(b.Storage, b.Resolver, report.WithLogger(logger))
	b.Importer = importer.New(b.Storage, importer.WithLogger(logger))

	logger.Info("backend opened",
		zap.String("database", cfg.Storage.DatabasePath),
		zap.String("vector_dir", cfg.Storage.VectorDir),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("vector_dim", b.Vectors.Dim()),
		zap.Int("vector_count", b.Vectors.Count()))
	return b, nil
}

// openVectors opens the vector store, falling back to the memory index when the configured
// type is unavailable in this build.
func openVectors(cfg config.StorageConfig, dim int, logger *zap.Logger) (*vector.Store, error) {
	store, err := vector.OpenStore(cfg.VectorDir, dim,
		vector.WithIndexType(cfg.VectorIndexType), vector.WithStoreLogger(logger))
	if err == nil {
		return store, nil
	}
	if cfg.VectorIndexType == "" || cfg.VectorIndexType == string(vector.IndexTypeMemory) {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	logger.Warn("failed to create vector index, falling back to memory",
		zap.String("requested_type", cfg.VectorIndexType),
		zap.Error(err))
	store, err = vector.OpenStore(cfg.VectorDir, dim,
		vector.WithIndexType(string(vector.IndexTypeMemory)), vector.WithStoreLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	return store, nil
}

// Close releases every open resource. It is safe on a partially opened Backend.
func (b *Backend) Close() error {
	var errs []error
	if b.Text != nil {
		errs = append(errs, b.Text.Close())
	}
	if b.Vectors != nil {
		errs = append(errs, b.Vectors.Close())
	}
	if b.Embedder != nil {
		errs = append(errs, b.Embedder.Close())
	}
	if b.Storage != nil {
		errs = append(errs, b.Storage.Close())
	}
	return errors.Join(errs...)
}

// Reset clears the vector store and the text index. Documents, chunks, norms, and site
// records stay in the database; call Reindex to rebuild the indexes from them.
func (b *Backend) Reset(ctx context.Context) error {
	if err := b.Vectors.Reset(); err != nil {
		return fmt.Errorf("failed to reset vector store: %w", err)
	}
	if err := b.Text.Reset(); err != nil {
		return fmt.Errorf("failed to reset text index: %w", err)
	}
	b.logger.Info("indexes reset")
	return nil
}

// Reindex rebuilds both indexes from the stored chunks and returns the number of documents indexed.
func (b *Backend) Reindex(ctx context.Context) (int, error) {
	return b.Pipeline.Reindex(ctx)
}

// Migrate imports a legacy JSONL vector store file into the vector store.
func (b *Backend) Migrate(ctx context.Context, path string) (*importer.MigrationResult, error) {
	return importer.NewMigrator(b.Vectors, importer.WithMigratorLogger(b.logger)).MigrateFile(ctx, path)
}

// FileMeta returns the document attributes used for files without explicit metadata.
func (b *Backend) FileMeta() indexer.FileMeta {
	return indexer.FileMeta{
		Country:  b.Config.Ingest.Country,
		Language: b.Config.Ingest.Language,
		DocType:  b.Config.Ingest.DocType,
	}
}

// NewWatcher returns an inbox watcher over the configured directories that ingests and
// indexes each settled file. It is not started.
func (b *Backend) NewWatcher(opts ...watcher.WatcherOption) *watcher.Watcher {
	meta := b.FileMeta()
	handle := func(ctx context.Context, path string) {
		res, err := b.Pipeline.IngestFileAndIndex(ctx, path, meta)
		if err != nil {
			b.logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			return
		}
		if res.Skipped {
			b.logger.Debug("watch ingest skipped existing document", zap.String("path", path))
		}
	}
	return watcher.NewWatcher(
		b.Config.Watch.Directories,
		b.Config.Watch.Extensions,
		b.Config.Watch.RecursiveOrDefault(),
		handle,
		opts...,
	)
}
