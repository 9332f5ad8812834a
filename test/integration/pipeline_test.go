// Package integration exercises the full backend over real storage and indexes.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/config"
	"github.com/hyperjump/normlab/internal/importer"
	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/internal/norms"
)

func newConfig(dir string) *config.Config {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:   filepath.Join(dir, "db.sqlite"),
			BleveIndexPath: filepath.Join(dir, "bleve"),
			VectorDir:      filepath.Join(dir, "vector"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: 32},
		Ingest:    config.IngestConfig{MaxTokens: 14, Country: "tr", Language: "tr"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

const pozDocument = `# Betonarme
## Kalıp
Poz 15.180.1003 ahşap kalıp yapılması m2 başına 1,2 saat işçilik.
## Donatı
Poz 15.160.1003 nervürlü donatı çeliği kesilmesi, bükülmesi ve yerine konması kg.
## Beton
Poz 15.150.1005 C30 hazır beton dökülmesi m3 başına 0,5 saat.`

func TestIntegration_Pipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	ctx := context.Background()

	b, err := app.Open(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := b.Pipeline.IngestAndIndex(ctx, &models.DocumentInput{
		Source: "poz-2024", Country: "TR", Title: "Poz 2024", Language: "tr", Content: pozDocument, Project: "tower-a",
	})
	if err != nil {
		t.Fatalf("IngestAndIndex: %v", err)
	}
	if res.Chunks != 3 || len(res.VectorIDs) != res.Chunks {
		t.Fatalf("unexpected result: %+v", res)
	}

	file := filepath.Join(dir, "fer-06.txt")
	if err := os.WriteFile(file, []byte("ФЕР06-01-001 Устройство бетонной подготовки м3"), 0600); err != nil {
		t.Fatal(err)
	}
	fres, err := b.Pipeline.IngestFileAndIndex(ctx, file, b.FileMeta())
	if err != nil {
		t.Fatalf("IngestFileAndIndex: %v", err)
	}
	again, err := b.Pipeline.IngestFileAndIndex(ctx, file, b.FileMeta())
	if err != nil || !again.Skipped || again.DocumentID != fres.DocumentID {
		t.Fatalf("re-ingesting a file should be skipped: %+v, %v", again, err)
	}

	hits, err := b.Retriever.Run(ctx, &models.SearchQuery{Query: "donatı", Mode: models.SearchModeText, TopK: 3})
	if err != nil {
		t.Fatalf("text search: %v", err)
	}
	if len(hits) == 0 || hits[0].Meta["heading"] != "Donatı" {
		t.Fatalf("text search should rank the rebar section first: %+v", hits)
	}

	vhits, err := b.Retriever.Run(ctx, &models.SearchQuery{Query: "hazır beton", TopK: 10, Filters: map[string]string{"project": "tower-a"}})
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(vhits) != res.Chunks {
		t.Errorf("project filter: got %d hits, want %d", len(vhits), res.Chunks)
	}

	if _, err := b.Importer.ImportRows(ctx, importer.KindNorms, []map[string]any{
		{"wbs_key": "CONC.SLAB", "unit": "m3", "locale": "tr", "rate": 0.5, "source": "poz", "code": "15.150.1005"},
		{"wbs_key": "CONC.SLAB", "unit": "m3", "locale": "tr", "rate": 0.7, "source": "fer"},
		{"wbs_key": "FORM.SLAB", "unit": "m2", "locale": "tr", "rate": 1.2, "source": "internal"},
	}); err != nil {
		t.Fatalf("import norms: %v", err)
	}
	march := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if _, err := b.Importer.ImportRows(ctx, importer.KindQuantities, []map[string]any{
		{"wbs_key": "CONC.SLAB", "qty": 20.0, "unit": "m³", "locale": "tr", "recorded_at": march.Format(time.DateOnly)},
		{"wbs_key": "FORM.SLAB", "qty": 50.0, "unit": "m2", "locale": "tr", "recorded_at": march.Format(time.DateOnly)},
	}); err != nil {
		t.Fatalf("import quantities: %v", err)
	}
	if _, err := b.Importer.ImportRows(ctx, importer.KindObservations, []map[string]any{
		{"wbs_key": "CONC.SLAB", "hours": 12.0, "date": "2024-03-06"},
		{"wbs_key": "FORM.SLAB", "hours": 54.0, "date": "2024-03-07"},
	}); err != nil {
		t.Fatalf("import observations: %v", err)
	}

	r, err := b.Resolver.Resolve(ctx, norms.Request{WorkItemKey: "CONC.SLAB", Quantity: 20, Unit: "m3", Locale: "tr"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Norm.Source != models.SourcePoz || r.LaborHours != 10 {
		t.Errorf("resolve: %+v", r)
	}

	rows, err := b.Reporter.Variance(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: %+v", rows)
	}
	if rows[0].WorkItemKey != "CONC.SLAB" || rows[0].Theoretical != 10 || rows[0].Observed != 12 || rows[0].DeltaPercent != 20 {
		t.Errorf("concrete row: %+v", rows[0])
	}
	if rows[1].WorkItemKey != "FORM.SLAB" || rows[1].Theoretical != 60 || rows[1].Delta != -6 {
		t.Errorf("formwork row: %+v", rows[1])
	}

	before := b.Vectors.Count()
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = app.Open(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	st, err := b.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 2 || st.Vector.Count != before || st.Vector.NextID != int64(before) || !st.Consistent {
		t.Errorf("status after reopen: %+v", st)
	}
}
