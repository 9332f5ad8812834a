package models

import (
	"errors"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name     string
		query    *SearchQuery
		wantErr  bool
		wantMode string
		wantTopK int
	}{
		{"empty query", &SearchQuery{}, true, "", 0},
		{"text query defaults to vector mode", &SearchQuery{Query: "beton"}, false, SearchModeVector, 6},
		{"embedding only", &SearchQuery{Embedding: []float32{1, 0}}, false, SearchModeVector, 6},
		{"text mode needs query", &SearchQuery{Embedding: []float32{1}, Mode: SearchModeText}, true, "", 0},
		{"unknown mode", &SearchQuery{Query: "x", Mode: "hybrid"}, true, "", 0},
		{"keeps explicit top_k", &SearchQuery{Query: "x", TopK: 3, Mode: SearchModeText}, false, SearchModeText, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(6)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("error should wrap ErrValidation: %v", err)
				}
				return
			}
			if tt.query.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", tt.query.Mode, tt.wantMode)
			}
			if tt.query.TopK != tt.wantTopK {
				t.Errorf("top_k = %d, want %d", tt.query.TopK, tt.wantTopK)
			}
		})
	}
}
