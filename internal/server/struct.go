package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edurag/edurag-go/internal/rag"
	"github.com/edurag/edurag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. If nil, a private
	// registry is created; /metrics always serves whichever is in use.
	Registry *prometheus.Registry
	// MaxUploadBytes caps multipart document uploads. Defaults to the
	// extractor's file size limit if zero.
	MaxUploadBytes int64
}

// service is the interface the handlers call. *rag.Orchestrator satisfies
// it; tests inject a fake.
type service interface {
	ProcessDocument(ctx context.Context, in rag.IngestInput) (*rag.IngestResult, error)
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResponse, error)
	FindSimilar(ctx context.Context, documentID string, limit int) ([]rag.SimilarDocument, error)
	DeleteDocument(ctx context.Context, documentID string) error
	ListDocuments(ctx context.Context, filter store.ListFilter) ([]store.Document, error)
	Stats(ctx context.Context) (*rag.ServiceStats, error)
}

// Server is the HTTP server exposing the document pipeline and retrieval API.
type Server struct {
	// svc handles all document and search operations.
	svc service
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	// Error is the human-readable failure reason.
	Error string `json:"error"`
	// Stage names the failed pipeline stage for ingest errors. Empty otherwise.
	Stage string `json:"stage,omitempty"`
}

// ingestResponse is the JSON response for POST /api/documents.
type ingestResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	// Stats summarizes the completed ingest.
	Stats ingestStats `json:"stats"`
}

// ingestStats mirrors rag.IngestResult for the wire.
type ingestStats struct {
	Chunks           int    `json:"chunks"`
	Pages            int    `json:"pages"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	TextLength       int    `json:"textLength"`
	Quality          string `json:"quality"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	Query string `json:"query"`
	// Filter narrows candidates by educational context or document.
	Filter searchFilter `json:"filter"`
	Limit  int          `json:"limit"`
	// Threshold overrides the configured similarity floor when positive.
	Threshold float64 `json:"threshold"`
}

// searchFilter is the wire form of the index filter.
type searchFilter struct {
	SubjectID         string `json:"subjectId,omitempty"`
	TopicID           string `json:"topicId,omitempty"`
	SubtopicID        string `json:"subtopicId,omitempty"`
	DocumentID        string `json:"documentId,omitempty"`
	ExcludeDocumentID string `json:"excludeDocumentId,omitempty"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	Success bool               `json:"success"`
	Results []rag.SearchResult `json:"results"`
	Stats   rag.SearchStats    `json:"stats"`
}

// documentRecord is one entry in the GET /api/documents listing.
type documentRecord struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	MediaType  string `json:"mediaType"`
	SizeBytes  int64  `json:"sizeBytes"`
	SubjectID  string `json:"subjectId"`
	TopicID    string `json:"topicId"`
	SubtopicID string `json:"subtopicId,omitempty"`
	UploaderID string `json:"uploaderId,omitempty"`
	PageCount  int    `json:"pageCount"`
	ChunkCount int    `json:"chunkCount"`
	Quality    string `json:"quality"`
	UploadedAt string `json:"uploadedAt"`
}

// listDocumentsResponse is the JSON response for GET /api/documents.
type listDocumentsResponse struct {
	Success   bool             `json:"success"`
	Documents []documentRecord `json:"documents"`
}

// similarResponse is the JSON response for GET /api/documents/{id}/similar.
type similarResponse struct {
	Success   bool                  `json:"success"`
	Documents []rag.SimilarDocument `json:"documents"`
}

// deleteResponse is the JSON response for DELETE /api/documents/{id}.
type deleteResponse struct {
	Success bool `json:"success"`
}

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	Success bool           `json:"success"`
	Usage   rag.Usage      `json:"usage"`
	Index   rag.IndexStats `json:"index"`
}
