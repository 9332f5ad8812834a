package vector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/pkg/utils"
)

// File names inside the store directory.
const (
	IndexFileName    = "index.bin"
	MetadataFileName = "metadata.jsonl"
	SummaryFileName  = "summary.json"
)

// Record is one metadata line: the id shared with the index entry, the chunk text, and free-form meta.
type Record struct {
	ID   int64          `json:"id"`
	Text string         `json:"text"`
	Meta map[string]any `json:"meta"`
}

// Candidate is a record returned by a vector search with its similarity score.
type Candidate struct {
	Record
	Score float64
}

// Summary is the persisted index summary.
type Summary struct {
	Dim    int   `json:"dim"`
	Count  int   `json:"count"`
	NextID int64 `json:"next_id"`
}

// Status reports the store's counters. Consistent is false when the metadata line count,
// the index size, and the summary count disagree.
type Status struct {
	Dim           int    `json:"dim"`
	Count         int    `json:"count"`
	MetadataLines int    `json:"metadata_lines"`
	IndexSize     int    `json:"index_size"`
	NextID        int64  `json:"next_id"`
	IndexType     string `json:"index_type"`
	Consistent    bool   `json:"consistent"`
}

// Store is the persisted vector index plus its parallel id-to-metadata mapping.
// The directory is owned by one process; there is no cross-process locking.
type Store struct {
	dir        string
	indexType  string
	defaultDim int
	logger     *zap.Logger

	mu      sync.RWMutex
	index   Index
	records []Record
	summary Summary
	nextID  int64
	// metaLines counts metadata.jsonl lines, including ones whose vectors never made it
	// into the index.
	metaLines int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// WithIndexType selects the index implementation ("memory" or "faiss").
func WithIndexType(indexType string) StoreOption {
	return func(s *Store) {
		s.indexType = indexType
	}
}

// OpenStore loads the store in dir, creating an empty index at defaultDim when nothing is persisted.
func OpenStore(dir string, defaultDim int, opts ...StoreOption) (*Store, error) {
	if defaultDim <= 0 {
		return nil, fmt.Errorf("%w: default dimension must be positive", models.ErrValidation)
	}
	s := &Store{dir: dir, defaultDim: defaultDim, indexType: string(IndexTypeMemory)}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, models.StorageError("create vector dir", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) load() error {
	summary, hasSummary, err := readSummary(s.path(SummaryFileName))
	if err != nil {
		return err
	}
	records, err := readMetadata(s.path(MetadataFileName))
	if err != nil {
		return err
	}

	dim := s.defaultDim
	if hasSummary && summary.Dim > 0 {
		dim = summary.Dim
	}
	idx, err := NewIndex(s.indexType, dim)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	if err := idx.Load(s.path(IndexFileName)); err != nil {
		_ = idx.Close()
		return models.StorageError("load vector index", err)
	}

	s.index = idx
	s.records = records
	s.metaLines = len(records)
	if hasSummary {
		s.summary = summary
		s.nextID = summary.NextID
	} else {
		// No summary: recover the counter from the metadata lines.
		s.summary = Summary{Dim: idx.Dimensions(), Count: idx.Size()}
		for _, r := range records {
			if r.ID+1 > s.nextID {
				s.nextID = r.ID + 1
			}
		}
		s.summary.NextID = s.nextID
	}
	s.logger.Debug("vector store loaded",
		zap.String("dir", s.dir),
		zap.Int("dim", idx.Dimensions()),
		zap.Int("records", len(records)),
		zap.Int64("next_id", s.nextID))
	return nil
}

// AddRecords appends records to the index and returns their ids. Inputs must be equal-length
// with a single embedding width. The first insert into an empty index binds its dimension;
// afterwards a different width fails with a DimensionMismatchError and nothing is written.
func (s *Store) AddRecords(ctx context.Context, texts []string, metas []map[string]any, embeddings [][]float32) ([]int64, error) {
	if len(texts) != len(embeddings) || (metas != nil && len(metas) != len(texts)) {
		return nil, fmt.Errorf("%w: texts (%d), metadatas (%d), and embeddings (%d) must have equal length",
			models.ErrValidation, len(texts), len(metas), len(embeddings))
	}
	if len(texts) == 0 {
		return []int64{}, nil
	}
	width := len(embeddings[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: embeddings must not be empty", models.ErrValidation)
	}
	for i, e := range embeddings {
		if len(e) != width {
			return nil, fmt.Errorf("%w: embedding %d has width %d, expected %d", models.ErrValidation, i, len(e), width)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if width != s.index.Dimensions() {
		if s.index.Size() > 0 || len(s.records) > 0 {
			return nil, &models.DimensionMismatchError{Expected: s.index.Dimensions(), Got: width}
		}
		idx, err := NewIndex(s.indexType, width)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector index: %w", err)
		}
		_ = s.index.Close()
		s.index = idx
	}

	vectors := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		vectors[i] = utils.NormalizedCopy(e)
	}
	ids := make([]int64, len(texts))
	batch := make([]Record, len(texts))
	for i := range texts {
		ids[i] = s.nextID + int64(i)
		var meta map[string]any
		if metas != nil {
			meta = metas[i]
		}
		if meta == nil {
			meta = map[string]any{}
		}
		batch[i] = Record{ID: ids[i], Text: texts[i], Meta: meta}
	}

	if err := appendMetadata(s.path(MetadataFileName), batch); err != nil {
		return nil, err
	}
	// The ids are on disk now and must not be handed out again.
	s.nextID += int64(len(batch))
	s.metaLines += len(batch)
	if err := s.index.Add(ctx, vectors); err != nil {
		summary := Summary{Dim: s.index.Dimensions(), Count: s.index.Size(), NextID: s.nextID}
		if werr := writeSummary(s.path(SummaryFileName), summary); werr == nil {
			s.summary = summary
		}
		s.logger.Error("vector add failed after metadata append",
			zap.Int64("next_id", s.nextID),
			zap.Int("metadata_lines", s.metaLines),
			zap.Int("index_size", s.index.Size()),
			zap.Error(err))
		return nil, models.StorageError("add vectors", err)
	}
	s.records = append(s.records, batch...)
	if err := s.persist(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) persist() error {
	if err := s.index.Save(s.path(IndexFileName)); err != nil {
		return models.StorageError("save vector index", err)
	}
	summary := Summary{Dim: s.index.Dimensions(), Count: s.index.Size(), NextID: s.nextID}
	if err := writeSummary(s.path(SummaryFileName), summary); err != nil {
		return err
	}
	s.summary = summary
	return nil
}

// Search returns up to k records nearest to query. An empty index yields an empty list.
// The query must have the bound dimension; it is normalized like stored vectors.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index.Size() == 0 || len(s.records) == 0 {
		return []Candidate{}, nil
	}
	if len(query) != s.index.Dimensions() {
		return nil, &models.DimensionMismatchError{Expected: s.index.Dimensions(), Got: len(query)}
	}
	results, err := s.index.Search(ctx, utils.NormalizedCopy(query), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		// Index entries without a metadata line are left over from an interrupted write.
		if r.Position < 0 || int(r.Position) >= len(s.records) {
			continue
		}
		out = append(out, Candidate{Record: s.records[r.Position], Score: r.Score})
	}
	return out, nil
}

// Count returns the number of indexed vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Size()
}

// Dim returns the index dimension.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Dimensions()
}

// Status returns the store counters for diagnostics.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Dim:           s.index.Dimensions(),
		Count:         s.summary.Count,
		MetadataLines: s.metaLines,
		IndexSize:     s.index.Size(),
		NextID:        s.nextID,
		IndexType:     s.index.Type(),
	}
	st.Consistent = st.Count == st.MetadataLines && st.MetadataLines == st.IndexSize
	return st
}

// Reset clears the index, metadata, and summary, and starts a fresh empty index at the
// previously known dimension.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.index.Dimensions()
	if dim <= 0 {
		dim = s.defaultDim
	}
	for _, name := range []string{IndexFileName, MetadataFileName, SummaryFileName} {
		if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
			return models.StorageError("remove "+name, err)
		}
	}
	idx, err := NewIndex(s.indexType, dim)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	_ = s.index.Close()
	s.index = idx
	s.records = nil
	s.metaLines = 0
	s.nextID = 0
	if err := s.persist(); err != nil {
		return err
	}
	s.logger.Info("vector store reset", zap.Int("dim", dim))
	return nil
}

// Close releases the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

func readSummary(path string) (Summary, bool, error) {
	var sum Summary
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sum, false, nil
		}
		return sum, false, models.StorageError("read summary", err)
	}
	if err := json.Unmarshal(data, &sum); err != nil {
		return sum, false, models.StorageError("parse summary", err)
	}
	return sum, true, nil
}

func writeSummary(path string, sum Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return models.StorageError("write summary", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return models.StorageError("rename summary", err)
	}
	return nil
}

func readMetadata(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, models.StorageError("open metadata", err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, models.StorageError(fmt.Sprintf("parse metadata line %d", line), err)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, models.StorageError("read metadata", err)
	}
	return records, nil
}

func appendMetadata(path string, batch []Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range batch {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return models.StorageError("open metadata", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return models.StorageError("append metadata", err)
	}
	return models.StorageError("close metadata", errors.Join(f.Sync(), f.Close()))
}
