package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/edurag/edurag-go/internal/logging"
)

// probeTimeout bounds each dependency probe during a readiness check, so a
// hung vector index or embedding backend turns into a prompt 503 rather
// than a stalled /api/ready.
const probeTimeout = 5 * time.Second

// Pinger is implemented by every external dependency the service needs in
// order to be useful: the vector index (qdrant, pgvector) and the embedding
// backend (ollama). Ping returns nil when the dependency is reachable.
// Implementations must be safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error

	// Name labels the dependency in readiness responses and logs.
	Name() string
}

// probeResult is one dependency's entry in the readiness response.
type probeResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readyResponse is the body of GET /api/ready.
type readyResponse struct {
	Ready  bool          `json:"ready"`
	Checks []probeResult `json:"checks"`
}

// handleReady probes every registered dependency and answers 200 only when
// all of them respond. /api/health says the process is up; this endpoint
// says it can actually serve ingests and searches.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: make([]probeResult, 0, len(s.pingers))}
	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		res := probeResult{Name: p.Name(), OK: err == nil}
		if err != nil {
			res.Error = err.Error()
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, res)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, status, resp)
}
