package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/edurag/edurag-go/internal/chunker"
	"github.com/edurag/edurag-go/internal/embedder"
	"github.com/edurag/edurag-go/internal/extractor"
	"github.com/edurag/edurag-go/internal/logging"
	"github.com/edurag/edurag-go/internal/rag"
	"github.com/edurag/edurag-go/internal/store"
	"github.com/edurag/edurag-go/internal/vectorindex"
)

// handleHealth handles GET /api/health for liveness checks. It always
// returns 200; dependency state is reported by /api/ready instead.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIngest handles POST /api/documents. The request is a multipart form
// with a "file" part and subjectId/topicId (required), subtopicId/uploaderId
// (optional) form values.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", "")
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "invalid multipart form", "")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "missing file field", "")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "reading upload: "+err.Error(), "")
		return
	}

	subjectID := strings.TrimSpace(r.FormValue("subjectId"))
	topicID := strings.TrimSpace(r.FormValue("topicId"))
	if subjectID == "" || topicID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "subjectId and topicId are required", "")
		return
	}

	mediaType := header.Header.Get("Content-Type")
	in := rag.IngestInput{
		Data:      data,
		Filename:  header.Filename,
		MediaType: mediaType,
		Context: chunker.Context{
			SubjectID:  subjectID,
			TopicID:    topicID,
			SubtopicID: strings.TrimSpace(r.FormValue("subtopicId")),
			UploaderID: strings.TrimSpace(r.FormValue("uploaderId")),
		},
	}

	result, err := s.svc.ProcessDocument(r.Context(), in)
	if err != nil {
		stage := stageOf(err)
		s.metrics.ingestFailuresTotal.WithLabelValues(stage).Inc()
		log.Error("ingest failed",
			slog.String("filename", header.Filename),
			slog.String("stage", stage),
			slog.Any("error", err),
		)
		writeError(r.Context(), w, ingestStatus(err), err.Error(), stage)
		return
	}

	s.metrics.documentsIngestedTotal.Inc()
	s.metrics.chunksIndexedTotal.Add(float64(result.Chunks))

	writeJSON(r.Context(), w, http.StatusCreated, ingestResponse{
		Success:    true,
		DocumentID: result.DocumentID,
		Stats: ingestStats{
			Chunks:           result.Chunks,
			Pages:            result.Pages,
			ProcessingTimeMs: result.ProcessingTimeMs,
			TextLength:       result.TextLength,
			Quality:          result.Quality,
		},
	})
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	resp, err := s.svc.Search(r.Context(), rag.SearchRequest{
		Query: req.Query,
		Filter: vectorindex.Filter{
			SubjectID:         req.Filter.SubjectID,
			TopicID:           req.Filter.TopicID,
			SubtopicID:        req.Filter.SubtopicID,
			DocumentID:        req.Filter.DocumentID,
			ExcludeDocumentID: req.Filter.ExcludeDocumentID,
		},
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			writeError(r.Context(), w, http.StatusBadRequest, "query must not be empty", "")
			return
		}
		writeError(r.Context(), w, serviceStatus(err), err.Error(), "")
		return
	}

	s.metrics.searchesTotal.Inc()
	s.metrics.searchResultsReturned.Observe(float64(resp.Stats.Returned))

	// Results is never null on the wire, even when empty.
	if resp.Results == nil {
		resp.Results = []rag.SearchResult{}
	}
	writeJSON(r.Context(), w, http.StatusOK, searchResponse{
		Success: true,
		Results: resp.Results,
		Stats:   resp.Stats,
	})
}

// handleListDocuments handles GET /api/documents with optional
// subjectId/topicId/limit/offset query parameters.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		SubjectID: q.Get("subjectId"),
		TopicID:   q.Get("topicId"),
		Limit:     intParam(q.Get("limit"), 0),
		Offset:    intParam(q.Get("offset"), 0),
	}

	docs, err := s.svc.ListDocuments(r.Context(), filter)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	records := make([]documentRecord, len(docs))
	for i, d := range docs {
		records[i] = documentRecord{
			ID:         d.ID,
			Filename:   d.Filename,
			MediaType:  d.MediaType,
			SizeBytes:  d.SizeBytes,
			SubjectID:  d.SubjectID,
			TopicID:    d.TopicID,
			SubtopicID: d.SubtopicID,
			UploaderID: d.UploaderID,
			PageCount:  d.PageCount,
			ChunkCount: d.ChunkCount,
			Quality:    d.Quality,
			UploadedAt: d.UploadedAt.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(r.Context(), w, http.StatusOK, listDocumentsResponse{
		Success:   true,
		Documents: records,
	})
}

// handleSimilar handles GET /api/documents/{id}/similar.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := intParam(r.URL.Query().Get("limit"), 0)

	docs, err := s.svc.FindSimilar(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "document not found: "+id, "")
			return
		}
		writeError(r.Context(), w, serviceStatus(err), err.Error(), "")
		return
	}

	if docs == nil {
		docs = []rag.SimilarDocument{}
	}
	writeJSON(r.Context(), w, http.StatusOK, similarResponse{
		Success:   true,
		Documents: docs,
	})
}

// handleDelete handles DELETE /api/documents/{id}. Deleting an unknown or
// already-deleted document returns 404.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.svc.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "document not found: "+id, "")
			return
		}
		writeError(r.Context(), w, serviceStatus(err), err.Error(), "")
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, deleteResponse{Success: true})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeError(r.Context(), w, serviceStatus(err), err.Error(), "")
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, statsResponse{
		Success: true,
		Usage:   stats.Usage,
		Index:   stats.Index,
	})
}

// stageOf extracts the failing pipeline stage name from a rag.StageError,
// or returns "unknown" for other errors.
func stageOf(err error) string {
	var se *rag.StageError
	if errors.As(err, &se) {
		return string(se.Stage)
	}
	return "unknown"
}

// ingestStatus maps a pipeline error to an HTTP status code. Client-side
// input problems map to 4xx, unreachable dependencies to 503, everything
// else to 500.
func ingestStatus(err error) int {
	switch {
	case errors.Is(err, extractor.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, extractor.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, extractor.ErrEmptyInput),
		errors.Is(err, extractor.ErrCorruptDocument):
		return http.StatusBadRequest
	default:
		return serviceStatus(err)
	}
}

// serviceStatus maps dependency availability errors to 503 and everything
// else to 500.
func serviceStatus(err error) int {
	if errors.Is(err, embedder.ErrUnavailable) ||
		errors.Is(err, vectorindex.ErrIndexUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// intParam parses a positive integer query parameter, returning def when the
// value is absent or invalid.
func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes the standard JSON error body. stage is included for
// ingest pipeline failures and empty otherwise.
func writeError(ctx context.Context, w http.ResponseWriter, status int, msg, stage string) {
	writeJSON(ctx, w, status, errorResponse{Error: msg, Stage: stage})
}
