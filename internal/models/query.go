package models

import (
	"fmt"
	"time"
)

// Search modes.
const (
	SearchModeVector = "vector"
	SearchModeText   = "text"
)

// SearchQuery is a retrieval request. Either Embedding or Query must be set; Query alone is
// embedded with the configured provider in vector mode or matched as text in text mode.
type SearchQuery struct {
	Query     string            `json:"query,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
	TopK      int               `json:"top_k,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	Mode      string            `json:"mode,omitempty"`
}

// Validate ensures the query is usable and applies defaults.
func (q *SearchQuery) Validate(defaultTopK int) error {
	if q.Query == "" && len(q.Embedding) == 0 {
		return fmt.Errorf("%w: query or embedding is required", ErrValidation)
	}
	if q.Mode == "" {
		q.Mode = SearchModeVector
	}
	if q.Mode != SearchModeVector && q.Mode != SearchModeText {
		return fmt.Errorf("%w: unknown search mode %q", ErrValidation, q.Mode)
	}
	if q.Mode == SearchModeText && q.Query == "" {
		return fmt.Errorf("%w: text search requires a query", ErrValidation)
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if q.TopK <= 0 {
		q.TopK = 6
	}
	return nil
}

// SearchHit is one ranked retrieval result.
type SearchHit struct {
	ID    int64          `json:"id"`
	Text  string         `json:"text"`
	Meta  map[string]any `json:"meta"`
	Score float64        `json:"score"`
}

// RetrievalLog is an append-only audit row for one search.
type RetrievalLog struct {
	ID            int64     `json:"id" db:"id"`
	Query         string    `json:"query" db:"query"`
	ReturnedCount int       `json:"returned_count" db:"returned_count"`
	ChunkIDs      []string  `json:"chunk_ids" db:"chunk_ids"`
	Scores        []float64 `json:"scores" db:"scores"`
	Accepted      bool      `json:"accepted" db:"accepted"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
