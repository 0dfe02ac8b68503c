package server

import (
	"context"
	"fmt"

	"github.com/edurag/edurag-go/internal/embedder"
	"github.com/edurag/edurag-go/internal/vectorindex"
)

// IndexPinger probes the vector index engine. It satisfies the Pinger
// interface and is used by GET /api/ready.
type IndexPinger struct {
	// index is the engine to probe.
	index vectorindex.Index
}

// NewIndexPinger constructs an IndexPinger for the given index.
func NewIndexPinger(index vectorindex.Index) *IndexPinger {
	return &IndexPinger{index: index}
}

// Name returns the engine label used in readiness responses
// ("qdrant", "pgvector", "memory").
func (p *IndexPinger) Name() string { return p.index.Name() }

// Ping delegates to the engine's own reachability check.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if err := p.index.Ping(ctx); err != nil {
		return fmt.Errorf("index unreachable: %w", err)
	}
	return nil
}

// EmbedderPinger probes the embedding backend. The TF-IDF backend always
// reports available; the Ollama backend performs a live HTTP probe.
type EmbedderPinger struct {
	// backend is the embedding backend to probe.
	backend embedder.Backend
}

// NewEmbedderPinger constructs an EmbedderPinger for the given backend.
func NewEmbedderPinger(backend embedder.Backend) *EmbedderPinger {
	return &EmbedderPinger{backend: backend}
}

// Name returns the backend label used in readiness responses
// (e.g. "ollama:all-minilm", "tfidf").
func (p *EmbedderPinger) Name() string { return p.backend.Name() }

// Ping reports an error when the backend cannot serve embedding requests.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	if !p.backend.IsAvailable(ctx) {
		return fmt.Errorf("embedding backend %s unavailable", p.backend.Name())
	}
	return nil
}
