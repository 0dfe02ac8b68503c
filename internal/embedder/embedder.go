// Package embedder converts text into dense vector embeddings for the RAG
// pipeline. Two interchangeable backends are provided: an Ollama-served
// neural sentence embedder, and a deterministic TF-IDF hashing embedder that
// needs no external model. Both produce unit-L2-norm vectors of the same
// configured dimension, so the vector index never needs to know which one
// is active.
//
// Backend selection is a construction-time decision (see Select): the neural
// backend is probed once, the fallback is logged once, and no per-call
// re-probing happens afterwards.
package embedder

import (
	"context"
	"errors"
	"math"
)

// DefaultDimension is the embedding vector size both backends produce unless
// overridden. 384 matches compact sentence-embedding models.
const DefaultDimension = 384

// DefaultBatchSize is the number of texts embedded per backend call.
const DefaultBatchSize = 16

// Sentinel errors returned by embedding backends.
var (
	// ErrEmptyInput is returned for empty or whitespace-only input text.
	ErrEmptyInput = errors.New("embedder: empty input")

	// ErrUnavailable is returned when the backend cannot be reached.
	// The orchestrator recovers from this via fallback selection; it is
	// never surfaced to API callers unless the fallback also fails.
	ErrUnavailable = errors.New("embedder: backend unavailable")
)

// Backend is the capability contract every embedding variant satisfies.
// Implementations must be safe to call from multiple goroutines.
type Backend interface {
	// Embed converts a single text into its embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts a batch of texts into their embeddings.
	// The returned slice is parallel to the input slice.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector size this backend produces.
	Dimension() int

	// IsAvailable reports whether the backend can serve requests right now.
	IsAvailable(ctx context.Context) bool

	// Name identifies the backend ("ollama:<model>" or "tfidf") for logging
	// and for the per-collection backend-identity record.
	Name() string
}

// normalizeL2 scales v to unit L2 norm in place and returns it.
// A zero vector is returned unchanged.
func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
