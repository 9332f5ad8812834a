// Package vector provides the flat inner-product vector index and its persisted record store.
package vector

import "context"

// Index is an append-only vector index. Entries are addressed by their insertion
// position, starting at 0; there is no removal.
type Index interface {
	Add(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Result is a single vector search hit. Position is the entry's insertion position.
type Result struct {
	Position int64
	Score    float64 // Inner product (cosine similarity for normalized vectors)
}
