// Package importer loads externally curated records (norms, quantities, site observations) and
// migrates a legacy JSONL vector store.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/pkg/utils"
)

// DefaultBatchSize is the number of legacy records added per AddRecords call.
const DefaultBatchSize = 256

// RecordAdder receives migrated records.
type RecordAdder interface {
	AddRecords(ctx context.Context, texts []string, metas []map[string]any, embeddings [][]float32) ([]int64, error)
}

// LegacyRecord is one line of the legacy store.
type LegacyRecord struct {
	Text      string         `json:"text"`
	Meta      map[string]any `json:"meta"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// MigrationResult counts migrated records and records skipped for lacking an embedding.
type MigrationResult struct {
	Migrated int     `json:"migrated"`
	Skipped  int     `json:"skipped"`
	IDs      []int64 `json:"-"`
}

// Migrator copies a legacy JSONL store into a vector store.
type Migrator struct {
	dst       RecordAdder
	batchSize int
	logger    *zap.Logger
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithMigratorLogger sets the logger.
func WithMigratorLogger(l *zap.Logger) MigratorOption {
	return func(m *Migrator) { m.logger = l }
}

// WithBatchSize sets how many records go into one AddRecords call.
func WithBatchSize(n int) MigratorOption {
	return func(m *Migrator) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// NewMigrator creates a Migrator writing into dst.
func NewMigrator(dst RecordAdder, opts ...MigratorOption) *Migrator {
	m := &Migrator{dst: dst, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = utils.OrNop(m.logger)
	return m
}

// MigrateFile migrates the JSONL file at path.
func (m *Migrator) MigrateFile(ctx context.Context, path string) (*MigrationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy store: %w", err)
	}
	defer f.Close()
	return m.Migrate(ctx, f)
}

// Migrate reads one JSON record per line. Records without an embedding are skipped and counted.
// A malformed line stops the migration; batches already added stay in the store.
func (m *Migrator) Migrate(ctx context.Context, r io.Reader) (*MigrationResult, error) {
	res := &MigrationResult{IDs: []int64{}}
	var (
		texts  []string
		metas  []map[string]any
		embeds [][]float32
	)
	flush := func() error {
		if len(texts) == 0 {
			return nil
		}
		ids, err := m.dst.AddRecords(ctx, texts, metas, embeds)
		if err != nil {
			return err
		}
		res.Migrated += len(ids)
		res.IDs = append(res.IDs, ids...)
		texts, metas, embeds = nil, nil, nil
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec LegacyRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return res, fmt.Errorf("%w: legacy line %d: %v", models.ErrValidation, line, err)
		}
		if len(rec.Embedding) == 0 {
			res.Skipped++
			continue
		}
		texts = append(texts, rec.Text)
		metas = append(metas, rec.Meta)
		embeds = append(embeds, rec.Embedding)
		if len(texts) >= m.batchSize {
			if err := flush(); err != nil {
				return res, fmt.Errorf("failed to migrate batch ending at line %d: %w", line, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("failed to read legacy store: %w", err)
	}
	if err := flush(); err != nil {
		return res, fmt.Errorf("failed to migrate final batch: %w", err)
	}
	m.logger.Info("legacy migration finished",
		zap.Int("migrated", res.Migrated),
		zap.Int("skipped", res.Skipped))
	return res, nil
}
