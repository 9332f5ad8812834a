package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/keyword"
	"github.com/hyperjump/normlab/internal/models"
)

// Text match buckets, best first.
const (
	bucketText = iota
	bucketHeading
	bucketOther
)

// MatchText is the text-only variant. Hits from the BM25 index are bucketed (query found in the
// chunk text, then in the heading, then the rest), each bucket ordered by recency with the BM25
// score breaking ties, and diversified so no source holds more than max_per_source of the
// leading slots. Leftover slots are filled from the remaining hits in bucket order.
func (r *Retriever) MatchText(ctx context.Context, query string, topK int, filters map[string]string) ([]models.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: text query is required", models.ErrValidation)
	}
	if r.text == nil {
		return nil, fmt.Errorf("%w: no text index configured", models.ErrValidation)
	}
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}
	// Recency outranks BM25 inside a bucket, so every match has to be considered.
	total, err := r.text.DocCount()
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	results, err := r.text.Search(ctx, query, int(total))
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	type candidate struct {
		res    *keyword.Result
		meta   map[string]any
		bucket int
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	cands := make([]candidate, 0, len(results))
	for _, res := range results {
		meta := res.Meta()
		if !Match(meta, filters) {
			continue
		}
		b := bucketOther
		switch {
		case strings.Contains(strings.ToLower(res.Text), needle):
			b = bucketText
		case strings.Contains(strings.ToLower(res.Heading), needle):
			b = bucketHeading
		}
		cands = append(cands, candidate{res: res, meta: meta, bucket: b})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.bucket != b.bucket {
			return a.bucket < b.bucket
		}
		if !a.res.CreatedAt.Equal(b.res.CreatedAt) {
			return a.res.CreatedAt.After(b.res.CreatedAt)
		}
		return a.res.Score > b.res.Score
	})

	ordered := make([]models.SearchHit, len(cands))
	sources := make([]string, len(cands))
	for i, c := range cands {
		ordered[i] = models.SearchHit{ID: c.res.VectorID, Text: c.res.Text, Meta: c.meta, Score: c.res.Score}
		sources[i] = c.res.Source
	}
	hits := Diversify(ordered, sources, topK, r.cfg.MaxPerSource)
	r.logger.Debug("text search",
		zap.String("query", query),
		zap.Int("candidates", len(results)),
		zap.Int("returned", len(hits)))
	r.record(ctx, query, 0, hits, nil)
	return hits, nil
}

// Diversify takes up to topK hits in order, admitting at most maxPerSource per source on the
// first pass; a second pass fills the remaining slots with the skipped hits in their order.
// sources[i] is the source of hits[i].
func Diversify(hits []models.SearchHit, sources []string, topK, maxPerSource int) []models.SearchHit {
	if topK > len(hits) {
		topK = len(hits)
	}
	out := make([]models.SearchHit, 0, topK)
	taken := make([]bool, len(hits))
	perSource := make(map[string]int)
	for i, h := range hits {
		if len(out) == topK {
			break
		}
		if maxPerSource > 0 && perSource[sources[i]] >= maxPerSource {
			continue
		}
		perSource[sources[i]]++
		taken[i] = true
		out = append(out, h)
	}
	for i, h := range hits {
		if len(out) == topK {
			break
		}
		if !taken[i] {
			out = append(out, h)
		}
	}
	return out
}
