// Package retriever ranks candidate norm chunks by embedding similarity or by text match.
package retriever

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/config"
	"github.com/hyperjump/normlab/internal/embedding"
	"github.com/hyperjump/normlab/internal/keyword"
	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/internal/vector"
	"github.com/hyperjump/normlab/pkg/utils"
)

// LogWriter appends retrieval log rows.
type LogWriter interface {
	AppendRetrievalLog(ctx context.Context, entry *models.RetrievalLog) error
}

// Retriever runs vector and text searches. Every search returns (hits, error); an empty
// slice means nothing matched, never that something failed.
type Retriever struct {
	vectors  *vector.Store
	text     keyword.Index
	embedder embedding.Embedder
	cfg      config.RetrievalConfig
	logs     LogWriter
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithRetrievalLog records every search in w when cfg.LogQueries is set.
func WithRetrievalLog(w LogWriter) Option {
	return func(r *Retriever) { r.logs = w }
}

// New creates a retriever. text and embedder may be nil; the searches that need them then fail.
func New(vectors *vector.Store, text keyword.Index, embedder embedding.Embedder, cfg config.RetrievalConfig, opts ...Option) *Retriever {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 6
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = 5
	}
	if cfg.MaxPerSource <= 0 {
		cfg.MaxPerSource = 2
	}
	r := &Retriever{vectors: vectors, text: text, embedder: embedder, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r
}

// Run validates q and dispatches it: text mode matches q.Query in the text index; vector mode
// uses q.Embedding, or embeds q.Query when no embedding is given.
func (r *Retriever) Run(ctx context.Context, q *models.SearchQuery) ([]models.SearchHit, error) {
	if err := q.Validate(r.cfg.DefaultTopK); err != nil {
		return nil, err
	}
	switch {
	case q.Mode == models.SearchModeText:
		return r.MatchText(ctx, q.Query, q.TopK, q.Filters)
	case len(q.Embedding) > 0:
		hits, err := r.search(ctx, q.Embedding, q.TopK, q.Filters)
		r.record(ctx, q.Query, len(q.Embedding), hits, err)
		return hits, err
	default:
		return r.SearchText(ctx, q.Query, q.TopK, q.Filters)
	}
}

// Search returns up to topK records nearest to queryEmbedding that satisfy every filter.
// Without filters exactly topK candidates are requested; with filters topK*overfetch_factor,
// capped at the record count. Results are never padded.
func (r *Retriever) Search(ctx context.Context, queryEmbedding []float32, topK int, filters map[string]string) ([]models.SearchHit, error) {
	hits, err := r.search(ctx, queryEmbedding, topK, filters)
	r.record(ctx, "", len(queryEmbedding), hits, err)
	return hits, err
}

// SearchText embeds query with the configured embedder, then runs Search.
func (r *Retriever) SearchText(ctx context.Context, query string, topK int, filters map[string]string) ([]models.SearchHit, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", models.ErrValidation)
	}
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := r.search(ctx, emb, topK, filters)
	r.record(ctx, query, len(emb), hits, err)
	return hits, err
}

func (r *Retriever) search(ctx context.Context, queryEmbedding []float32, topK int, filters map[string]string) ([]models.SearchHit, error) {
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is required", models.ErrValidation)
	}
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}
	k := topK
	if len(filters) > 0 {
		k = topK * r.cfg.OverfetchFactor
		if n := r.vectors.Count(); k > n {
			k = n
		}
	}
	cands, err := r.vectors.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	hits := make([]models.SearchHit, 0, min(topK, len(cands)))
	for _, c := range cands {
		if !Match(c.Meta, filters) {
			continue
		}
		hits = append(hits, models.SearchHit{ID: c.ID, Text: c.Text, Meta: c.Meta, Score: c.Score})
		if len(hits) == topK {
			break
		}
	}
	r.logger.Debug("vector search",
		zap.Int("top_k", topK),
		zap.Int("requested", k),
		zap.Int("candidates", len(cands)),
		zap.Int("returned", len(hits)))
	return hits, nil
}

// record appends a retrieval log row when logging is enabled. Failed searches are not logged.
func (r *Retriever) record(ctx context.Context, query string, dim int, hits []models.SearchHit, err error) {
	if err != nil || r.logs == nil || !r.cfg.LogQueries {
		return
	}
	if query == "" {
		query = "<embedding dim=" + strconv.Itoa(dim) + ">"
	}
	entry := &models.RetrievalLog{
		Query:         query,
		ReturnedCount: len(hits),
		ChunkIDs:      make([]string, len(hits)),
		Scores:        make([]float64, len(hits)),
		Accepted:      len(hits) > 0,
	}
	for i, h := range hits {
		entry.ChunkIDs[i] = chunkID(h)
		entry.Scores[i] = h.Score
	}
	if logErr := r.logs.AppendRetrievalLog(ctx, entry); logErr != nil {
		r.logger.Warn("failed to append retrieval log", zap.Error(logErr))
	}
}

func chunkID(h models.SearchHit) string {
	if id, ok := h.Meta["chunk_id"].(string); ok && id != "" {
		return id
	}
	return strconv.FormatInt(h.ID, 10)
}
