package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/normlab/internal/config"
	"github.com/hyperjump/normlab/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:   filepath.Join(dir, "db", "normlab.db"),
			BleveIndexPath: filepath.Join(dir, "bleve"),
			VectorDir:      filepath.Join(dir, "vector"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: 16},
		Ingest:    config.IngestConfig{MaxTokens: 8},
		Retrieval: config.RetrievalConfig{LogQueries: true},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func openTestBackend(t *testing.T, cfg *config.Config) *Backend {
	t.Helper()
	b, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func ingest(t *testing.T, b *Backend) string {
	t.Helper()
	res, err := b.Pipeline.IngestAndIndex(context.Background(), &models.DocumentInput{
		Source:   "poz-2024",
		Country:  "tr",
		Title:    "Poz 2024",
		Language: "tr",
		Content:  "# Beton\nPoz 15.150.1003 beton dökümü m3 başına\n# Kalıp\nahşap kalıp m2 işçilik saat",
	})
	if err != nil {
		t.Fatalf("IngestAndIndex: %v", err)
	}
	return res.DocumentID
}

func TestBackend_ingestSearchStatus(t *testing.T) {
	b := openTestBackend(t, testConfig(t))
	ctx := context.Background()
	ingest(t, b)

	hits, err := b.Retriever.MatchText(ctx, "kalıp", 3, nil)
	if err != nil {
		t.Fatalf("MatchText: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected text hits")
	}
	if hits[0].ID < 0 {
		t.Errorf("text hit should carry a vector id, got %d", hits[0].ID)
	}

	vhits, err := b.Retriever.SearchText(ctx, "beton dökümü", 2, map[string]string{"source": "poz"})
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(vhits) == 0 {
		t.Fatal("expected vector hits")
	}

	st, err := b.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Documents != 1 || st.Chunks == 0 {
		t.Errorf("status counts: %+v", st)
	}
	if int64(st.Vector.Count) != st.Chunks || int64(st.TextEntries) != st.Chunks {
		t.Errorf("index counts should match chunks: %+v", st)
	}
	if !st.Consistent {
		t.Error("fresh backend should be consistent")
	}
	if st.Disk == nil || st.Disk.Total() == 0 {
		t.Error("expected disk usage")
	}

	logs, err := b.Storage.ListRetrievalLogs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Errorf("expected 2 retrieval logs, got %d", len(logs))
	}
}

func TestBackend_resetAndReindex(t *testing.T) {
	b := openTestBackend(t, testConfig(t))
	ctx := context.Background()
	ingest(t, b)
	chunks, _ := b.Storage.CountChunks(ctx)

	if err := b.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if b.Vectors.Count() != 0 {
		t.Errorf("vector count after reset = %d", b.Vectors.Count())
	}
	if n, _ := b.Text.DocCount(); n != 0 {
		t.Errorf("text entries after reset = %d", n)
	}
	hits, err := b.Retriever.Search(ctx, make([]float32, 16), 5, nil)
	if err != nil || len(hits) != 0 {
		t.Errorf("search on reset index: %v %v", hits, err)
	}

	docs, err := b.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if docs != 1 {
		t.Errorf("reindexed %d documents", docs)
	}
	if int64(b.Vectors.Count()) != chunks {
		t.Errorf("vector count after reindex = %d, want %d", b.Vectors.Count(), chunks)
	}
}

func TestBackend_reopenKeepsIDs(t *testing.T) {
	cfg := testConfig(t)
	b, err := Open(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ingest(t, b)
	before := b.Vectors.Count()
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b = openTestBackend(t, cfg)
	if b.Vectors.Count() != before {
		t.Fatalf("count after reopen = %d, want %d", b.Vectors.Count(), before)
	}
	ids, err := b.Vectors.AddRecords(context.Background(), []string{"x"}, nil, [][]float32{make([]float32, 16)})
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != int64(before) {
		t.Errorf("next id = %d, want %d", ids[0], before)
	}
}

func TestBackend_resolveAndReport(t *testing.T) {
	b := openTestBackend(t, testConfig(t))
	ctx := context.Background()
	if err := b.Storage.UpsertNorm(ctx, &models.NormRecord{
		WorkItemKey: "CONC.BEAM", Unit: "m3", Locale: "tr", LaborHoursPerUnit: 0.5, Source: models.SourcePoz,
	}); err != nil {
		t.Fatal(err)
	}
	hours, err := b.Resolver.LaborHours(ctx, "CONC.BEAM", 10, "m3", "tr")
	if err != nil {
		t.Fatal(err)
	}
	if hours != 5 {
		t.Errorf("labor hours = %v, want 5", hours)
	}
}

func TestOpen_unknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "word2vec"
	if _, err := Open(cfg, nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	// The database was closed on failure, so it can be opened again.
	cfg.Embedding.Provider = "mock"
	openTestBackend(t, cfg)
}

func TestOpen_providerNone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "none"
	b := openTestBackend(t, cfg)
	if b.Embedder != nil {
		t.Fatal("provider none should leave the embedder unset")
	}
	res, err := b.Pipeline.IngestAndIndex(context.Background(), &models.DocumentInput{Source: "s", Content: "beton"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.VectorIDs) != 0 {
		t.Errorf("no vectors expected without embedder: %v", res.VectorIDs)
	}
	_, err = b.Retriever.SearchText(context.Background(), "beton", 3, nil)
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("SearchText without embedder: %v", err)
	}
}
