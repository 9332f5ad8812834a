// Package embedding turns chunk and query text into vectors for the vector store.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/normlab/internal/config"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Providers accepted in embedding.provider.
const (
	ProviderMock   = "mock"
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// New builds the embedder named by cfg.Provider. Provider "none" returns a nil embedder:
// callers then accept only precomputed embeddings.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case ProviderMock, "":
		return NewMockEmbedder(cfg.Dimensions), nil
	case ProviderONNX:
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderOpenAI:
		e, err := NewHTTPEmbedder(HTTPConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
			CacheSize:  cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, onnx, openai, none)", cfg.Provider)
	}
}

func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
