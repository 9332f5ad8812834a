package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/config"
	"github.com/hyperjump/normlab/internal/models"
)

const testDim = 8

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func newTestServer(t *testing.T, watch WatchService) (*Server, *app.Backend) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:   filepath.Join(dir, "db.sqlite"),
			BleveIndexPath: filepath.Join(dir, "bleve"),
			VectorDir:      filepath.Join(dir, "vector"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: testDim},
		Retrieval: config.RetrievalConfig{LogQueries: true},
	}
	config.ApplyDefaults(cfg)
	b, err := app.Open(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return NewServer(b, &cfg.Server, zap.NewNop(), watch), b
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func unit(i int) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	return v
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv.Router(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleDocuments(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	w := do(t, h, http.MethodPost, "/api/v1/documents", models.DocumentInput{
		Source:   "poz-2024",
		Country:  "tr",
		Title:    "Poz",
		Language: "tr",
		Content:  "# Beton\nPoz 15.150.1003 beton dökümü m3",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest status: got %d (%s)", w.Code, w.Body.String())
	}
	var created struct {
		ID        string  `json:"id"`
		Chunks    int     `json:"chunks"`
		VectorIDs []int64 `json:"vector_ids"`
	}
	decodeBody(t, w, &created)
	if created.ID == "" || created.Chunks != 1 || len(created.VectorIDs) != 1 {
		t.Fatalf("unexpected ingest response: %+v", created)
	}

	w = do(t, h, http.MethodGet, "/api/v1/documents/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status: got %d", w.Code)
	}
	var doc models.Document
	decodeBody(t, w, &doc)
	if doc.Source != "poz-2024" {
		t.Errorf("source: got %q", doc.Source)
	}

	w = do(t, h, http.MethodGet, "/api/v1/documents/"+created.ID+"/chunks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("chunks status: got %d", w.Code)
	}
	var chunks struct {
		Chunks []models.Chunk `json:"chunks"`
	}
	decodeBody(t, w, &chunks)
	if len(chunks.Chunks) != 1 || len(chunks.Chunks[0].NormCodes) != 1 {
		t.Errorf("chunks: %+v", chunks.Chunks)
	}
}

func TestHandleDocuments_errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/v1/documents", "{", http.StatusBadRequest},
		{"missing source", http.MethodPost, "/api/v1/documents", models.DocumentInput{Content: "x"}, http.StatusBadRequest},
		{"unknown document", http.MethodGet, "/api/v1/documents/nope", nil, http.StatusNotFound},
		{"chunks of unknown document", http.MethodGet, "/api/v1/documents/nope/chunks", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleAddRecordsAndSearch(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	w := do(t, h, http.MethodPost, "/api/v1/search", models.SearchQuery{Embedding: unit(0)})
	if w.Code != http.StatusOK {
		t.Fatalf("empty search status: got %d", w.Code)
	}
	var empty struct {
		Hits  []models.SearchHit `json:"hits"`
		Count int                `json:"count"`
	}
	decodeBody(t, w, &empty)
	if empty.Hits == nil || empty.Count != 0 {
		t.Errorf("empty index should return an empty list: %+v", empty)
	}

	w = do(t, h, http.MethodPost, "/api/v1/records", addRecordsRequest{
		Texts:      []string{"a", "b", "c"},
		Metadatas:  []map[string]any{{"project": "p1"}, {"project": "p2"}, {"project": "p1"}},
		Embeddings: [][]float32{unit(0), unit(1), unit(2)},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add records status: got %d (%s)", w.Code, w.Body.String())
	}
	var added struct {
		IDs []int64 `json:"ids"`
	}
	decodeBody(t, w, &added)
	if fmt.Sprint(added.IDs) != "[0 1 2]" {
		t.Errorf("ids: got %v", added.IDs)
	}

	w = do(t, h, http.MethodPost, "/api/v1/search", models.SearchQuery{
		Embedding: unit(1),
		TopK:      2,
		Filters:   map[string]string{"project": "p1"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("search status: got %d", w.Code)
	}
	var res struct {
		Hits []models.SearchHit `json:"hits"`
	}
	decodeBody(t, w, &res)
	if len(res.Hits) != 2 {
		t.Fatalf("hits: %+v", res.Hits)
	}
	for _, hit := range res.Hits {
		if hit.Meta["project"] != "p1" {
			t.Errorf("filter not applied: %+v", hit)
		}
	}

	w = do(t, h, http.MethodPost, "/api/v1/search", models.SearchQuery{Embedding: []float32{1, 0}})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("dimension mismatch status: got %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/v1/records", addRecordsRequest{
		Texts:      []string{"x"},
		Embeddings: [][]float32{{1, 0}},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("add mismatch status: got %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/v1/records", addRecordsRequest{
		Texts:      []string{"x", "y"},
		Embeddings: [][]float32{unit(0)},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("length mismatch status: got %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/v1/search", models.SearchQuery{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query status: got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/v1/retrieval-logs?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logs status: got %d", w.Code)
	}
	var logs struct {
		Logs []models.RetrievalLog `json:"logs"`
	}
	decodeBody(t, w, &logs)
	if len(logs.Logs) != 2 {
		t.Errorf("expected 2 logged searches, got %d", len(logs.Logs))
	}
}

func TestHandleSearch_textMode(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()
	for i, content := range []string{"# Kalıp\nahşap kalıp işçiliği", "# Donatı\nnervürlü donatı kg"} {
		w := do(t, h, http.MethodPost, "/api/v1/documents", models.DocumentInput{
			Source: fmt.Sprintf("src-%d", i), Language: "tr", Content: content,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("ingest: %d", w.Code)
		}
	}
	w := do(t, h, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "donatı", Mode: models.SearchModeText})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", w.Code, w.Body.String())
	}
	var res struct {
		Hits []models.SearchHit `json:"hits"`
	}
	decodeBody(t, w, &res)
	if len(res.Hits) == 0 || !strings.Contains(res.Hits[0].Text, "donatı") {
		t.Errorf("hits: %+v", res.Hits)
	}
}

func TestHandleReset(t *testing.T) {
	srv, b := newTestServer(t, nil)
	h := srv.Router()
	do(t, h, http.MethodPost, "/api/v1/documents", models.DocumentInput{Source: "s", Content: "beton döküm"})
	if b.Vectors.Count() != 1 {
		t.Fatalf("vector count: %d", b.Vectors.Count())
	}

	w := do(t, h, http.MethodPost, "/api/v1/index/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status: got %d", w.Code)
	}
	if b.Vectors.Count() != 0 {
		t.Errorf("vector count after reset: %d", b.Vectors.Count())
	}

	w = do(t, h, http.MethodPost, "/api/v1/index/reset?reindex=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset+reindex status: got %d", w.Code)
	}
	var out struct {
		Reindexed int `json:"reindexed_documents"`
	}
	decodeBody(t, w, &out)
	if out.Reindexed != 1 || b.Vectors.Count() != 1 {
		t.Errorf("reindexed=%d count=%d", out.Reindexed, b.Vectors.Count())
	}
}

func TestHandleNorms(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	w := do(t, h, http.MethodPost, "/api/v1/norms", []models.NormRecord{
		{WorkItemKey: "CONC.BEAM", Unit: "m3", Locale: "tr", LaborHoursPerUnit: 0.8, Source: models.SourceFER},
		{WorkItemKey: "CONC.BEAM", Unit: "m³", Locale: "TR", LaborHoursPerUnit: 0.5, Source: models.SourcePoz},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("load status: got %d (%s)", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/v1/norms/resolve", map[string]any{
		"work_item_key": "CONC.BEAM",
		"quantity":      10,
		"unit":          "m3",
		"locale":        "tr",
		"conditions":    map[string]string{"height": ">3m", "weather": "cold"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status: got %d (%s)", w.Code, w.Body.String())
	}
	var res struct {
		LaborHours float64 `json:"labor_hours"`
		Found      bool    `json:"found"`
		Norm       struct {
			Source string `json:"source"`
		} `json:"norm"`
	}
	decodeBody(t, w, &res)
	if !res.Found || res.Norm.Source != models.SourcePoz {
		t.Errorf("resolution: %+v", res)
	}
	if d := res.LaborHours - 6.9; d > 1e-9 || d < -1e-9 {
		t.Errorf("labor hours: got %v, want 6.9", res.LaborHours)
	}

	w = do(t, h, http.MethodPost, "/api/v1/norms/resolve", map[string]any{"work_item_key": "PLASTER", "quantity": 1, "unit": "m2"})
	if w.Code != http.StatusOK {
		t.Fatalf("not found should not be an error: %d", w.Code)
	}
	decodeBody(t, w, &res)
	if res.Found || res.LaborHours != 0 {
		t.Errorf("missing norm: %+v", res)
	}

	w = do(t, h, http.MethodPost, "/api/v1/norms", []models.NormRecord{{Unit: "m3"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid norm status: got %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/v1/norms/resolve", map[string]any{"quantity": 1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid resolve status: got %d", w.Code)
	}
}

func TestHandleVarianceReport(t *testing.T) {
	srv, b := newTestServer(t, nil)
	h := srv.Router()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	march := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := errors.Join(
		b.Storage.UpsertNorm(ctx, &models.NormRecord{WorkItemKey: "CONC.BEAM", Unit: "m3", Locale: "tr", LaborHoursPerUnit: 0.5, Source: models.SourcePoz}),
		b.Storage.CreateQuantity(ctx, &models.Quantity{WorkItemKey: "CONC.BEAM", Quantity: 10, Unit: "m3", Locale: "tr", RecordedAt: march}),
		b.Storage.CreateObservation(ctx, &models.SiteObservation{WorkItemKey: "CONC.BEAM", Hours: 6, Date: march}),
	); err != nil {
		t.Fatal(err)
	}

	w := do(t, h, http.MethodGet, "/api/v1/reports/variance?from=2024-03-01&to=2024-04-01&format=csv", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("csv status: got %d (%s)", w.Code, w.Body.String())
	}
	want := "period;wbs_key;qty;unit;LH_theo;LH_actual;delta;delta_%;productivity\n" +
		"2024-03-01/2024-04-01;CONC.BEAM;10;m3;5.00;6.00;1.00;20.0;1.667\n"
	if w.Body.String() != want {
		t.Errorf("csv:\n%s\nwant:\n%s", w.Body.String(), want)
	}

	w = do(t, h, http.MethodGet, "/api/v1/reports/variance?from=2024-03-01&to=2024-04-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("json status: got %d", w.Code)
	}
	var out struct {
		Rows []struct {
			WorkItemKey string  `json:"wbs_key"`
			Delta       float64 `json:"delta"`
		} `json:"rows"`
	}
	decodeBody(t, w, &out)
	if len(out.Rows) != 1 || out.Rows[0].Delta != 1 {
		t.Errorf("rows: %+v", out.Rows)
	}

	w = do(t, h, http.MethodGet, "/api/v1/reports/variance?from=2024-03-01&to=2024-04-01&format=xlsx", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("xlsx status: got %d", w.Code)
	}
	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("variance")
	if err != nil || len(rows) != 2 {
		t.Errorf("xlsx rows: %v %v", rows, err)
	}

	for _, q := range []string{"from=2024-03-01", "from=march&to=april", "from=2024-04-01&to=2024-03-01", "from=2024-03-01&to=2024-04-01&format=pdf"} {
		w = do(t, h, http.MethodGet, "/api/v1/reports/variance?"+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, w.Code)
		}
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()
	do(t, h, http.MethodPost, "/api/v1/documents", models.DocumentInput{Source: "s", Content: "beton döküm"})

	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var st app.Status
	decodeBody(t, w, &st)
	if st.Documents != 1 || st.Chunks != 1 || st.Vector.Count != 1 || st.Vector.Dim != testDim {
		t.Errorf("status: %+v", st)
	}
	if !st.Consistent {
		t.Error("expected consistent status")
	}
	if st.Config.VectorIndexType != "memory" {
		t.Errorf("index type: %q", st.Config.VectorIndexType)
	}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	srv, _ := newTestServer(t, &mockWatchService{dirs: []string{"/tmp/inbox"}})
	w := do(t, srv.Router(), http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	decodeBody(t, w, &out)
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/inbox" {
		t.Errorf("directories: %v", out.Directories)
	}
}

func TestHandleWatchDirectoriesList_NotEnabled(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv.Router(), http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", models.ErrValidation), http.StatusBadRequest},
		{&models.DimensionMismatchError{Expected: 3, Got: 2}, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: doc", models.ErrNotFound), http.StatusNotFound},
		{models.StorageError("write", errors.New("disk")), http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
