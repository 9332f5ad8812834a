package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/internal/norms"
	"github.com/hyperjump/normlab/internal/report"
)

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if !s.decode(w, r, &input) {
		return
	}
	s.logger.Debug("ingest document request", zap.String("source", input.Source), zap.String("title", input.Title))
	res, err := s.backend.Pipeline.IngestAndIndex(r.Context(), &input)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("source", input.Source), zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"id":         res.DocumentID,
		"chunks":     res.Chunks,
		"vector_ids": res.VectorIDs,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.backend.Storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.backend.Storage.GetDocument(r.Context(), id); err != nil {
		s.respondFailure(w, err)
		return
	}
	chunks, err := s.backend.Storage.GetChunksByDocumentID(r.Context(), id)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if chunks == nil {
		chunks = []*models.Chunk{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"document_id": id, "chunks": chunks})
}

type addRecordsRequest struct {
	Texts      []string         `json:"texts"`
	Metadatas  []map[string]any `json:"metadatas"`
	Embeddings [][]float32      `json:"embeddings"`
}

func (s *Server) handleAddRecords(w http.ResponseWriter, r *http.Request) {
	var req addRecordsRequest
	if !s.decode(w, r, &req) {
		return
	}
	ids, err := s.backend.Vectors.AddRecords(r.Context(), req.Texts, req.Metadatas, req.Embeddings)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.logger.Info("index reset request")
	if err := s.backend.Reset(ctx); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	resp := map[string]any{"status": "reset"}
	if reindex, _ := strconv.ParseBool(r.URL.Query().Get("reindex")); reindex {
		n, err := s.backend.Reindex(ctx)
		if err != nil {
			s.logger.Error("reindex failed", zap.Error(err))
			s.respondFailure(w, err)
			return
		}
		resp["reindexed_documents"] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if !s.decode(w, r, &query) {
		return
	}
	s.logger.Debug("search request",
		zap.String("query", query.Query),
		zap.Int("embedding_dim", len(query.Embedding)),
		zap.String("mode", query.Mode),
		zap.Int("top_k", query.TopK))
	hits, err := s.backend.Retriever.Run(r.Context(), &query)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"hits": hits, "count": len(hits)})
}

func (s *Server) handleRetrievalLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	logs, err := s.backend.Storage.ListRetrievalLogs(r.Context(), limit)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if logs == nil {
		logs = []*models.RetrievalLog{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleLoadNorms(w http.ResponseWriter, r *http.Request) {
	var records []*models.NormRecord
	if !s.decode(w, r, &records) {
		return
	}
	for i, n := range records {
		if n == nil || strings.TrimSpace(n.WorkItemKey) == "" || strings.TrimSpace(n.Unit) == "" {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("norm %d: work_item_key and unit are required", i))
			return
		}
		if n.LaborHoursPerUnit < 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("norm %d: labor_hours_per_unit must not be negative", i))
			return
		}
	}
	for _, n := range records {
		if err := s.backend.Storage.UpsertNorm(r.Context(), n); err != nil {
			s.respondFailure(w, err)
			return
		}
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"loaded": len(records)})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req norms.Request
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.backend.Resolver.Resolve(r.Context(), req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleVarianceReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.DateOnly, q.Get("from"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse(time.DateOnly, q.Get("to"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	rows, err := s.backend.Reporter.Variance(r.Context(), from, to)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	switch format := q.Get("format"); format {
	case "", "json":
		s.respondJSON(w, http.StatusOK, map[string]any{"period": report.Period(from, to), "rows": rows})
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := report.WriteCSV(w, rows); err != nil {
			s.logger.Warn("write csv report failed", zap.Error(err))
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="variance.xlsx"`)
		w.WriteHeader(http.StatusOK)
		if err := report.WriteXLSX(w, rows); err != nil {
			s.logger.Warn("write xlsx report failed", zap.Error(err))
		}
	default:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q; use json, csv, or xlsx", format))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

// decode reads a JSON body into v and answers 400 when it is malformed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
