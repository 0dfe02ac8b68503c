// Package vectorindex stores chunk embeddings and serves filtered
// nearest-neighbour queries over them. Two production engines are provided,
// Qdrant and Postgres/pgvector, plus an in-process engine for tests; all
// three satisfy the Index interface and use cosine similarity.
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/edurag/edurag-go/internal/config"
)

var (
	// ErrCollectionSizeConflict is returned when a collection already exists
	// with a different vector dimension than the one requested.
	ErrCollectionSizeConflict = errors.New("vectorindex: collection exists with different vector size")

	// ErrDimensionMismatch is returned when a vector's length does not match
	// the collection's declared dimension.
	ErrDimensionMismatch = errors.New("vectorindex: vector dimension mismatch")

	// ErrIndexUnavailable is returned when the backing engine cannot be
	// reached.
	ErrIndexUnavailable = errors.New("vectorindex: engine unavailable")

	// ErrCollectionNotFound is returned when an operation targets a
	// collection that has not been created.
	ErrCollectionNotFound = errors.New("vectorindex: collection not found")
)

// Payload carries the chunk attributes stored alongside each vector. The
// classification fields are used for filtered retrieval; the structural
// fields feed result presentation and re-ranking.
type Payload struct {
	// SubjectID, TopicID and SubtopicID classify the chunk's source document.
	SubjectID  string `json:"subjectId"`
	TopicID    string `json:"topicId"`
	SubtopicID string `json:"subtopicId,omitempty"`

	// DocumentID is the source document, ChunkIndex the chunk's position in it.
	DocumentID string `json:"documentId"`
	ChunkIndex int    `json:"chunkIndex"`

	// SectionTitle is the nearest preceding heading, if any.
	SectionTitle string `json:"sectionTitle,omitempty"`
	// PageNumber is the 1-based page the chunk starts on, 0 when unknown.
	PageNumber int `json:"pageNumber,omitempty"`

	// IsHeading and IsList describe the chunk's dominant structure.
	IsHeading bool `json:"isHeading,omitempty"`
	IsList    bool `json:"isList,omitempty"`

	// CharCount is the chunk text length in characters.
	CharCount int `json:"charCount"`
	// Text is the chunk content itself.
	Text string `json:"text"`
}

// Point is one stored vector with its identity and payload.
type Point struct {
	// ID is a UUID string, stable for a given (document, chunk index) pair.
	ID      string
	Vector  []float32
	Payload Payload
}

// Result is one query hit.
type Result struct {
	ID string
	// Score is cosine similarity in [0, 1] (engines map their native
	// distance accordingly).
	Score   float32
	Payload Payload
}

// Filter restricts queries and deletions by payload equality. Zero-valued
// fields are ignored.
type Filter struct {
	SubjectID  string
	TopicID    string
	SubtopicID string
	DocumentID string

	// ExcludeDocumentID removes one document's chunks from the results,
	// used by similarity lookups to avoid matching the probe document.
	ExcludeDocumentID string
}

// IsZero reports whether the filter imposes no constraint.
func (f *Filter) IsZero() bool {
	return f == nil || *f == Filter{}
}

// Stats describes a collection's current state.
type Stats struct {
	// PointCount is the number of stored vectors.
	PointCount uint64
	// Dimension is the collection's declared vector size.
	Dimension int
}

// Index is the storage contract shared by all engines. Implementations are
// safe for concurrent use.
type Index interface {
	// EnsureCollection creates the named collection with the given vector
	// dimension if it does not exist. If it exists with a different
	// dimension, ErrCollectionSizeConflict is returned.
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// Upsert stores or replaces points by ID.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Query returns up to limit hits ordered by descending similarity,
	// restricted by filter when non-zero.
	Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]Result, error)

	// DeleteByFilter removes all points matching filter and returns the
	// number removed (engines that cannot count return 0 with nil error).
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) (uint64, error)

	// Stats reports the collection's point count and dimension.
	Stats(ctx context.Context, collection string) (*Stats, error)

	// Ping reports whether the engine is reachable.
	Ping(ctx context.Context) error

	// Name identifies the engine ("qdrant", "pgvector", "memory").
	Name() string

	// Close releases the engine's connections.
	Close() error
}

// Open constructs the engine selected by cfg.Backend.
func Open(ctx context.Context, cfg *config.IndexConfig, qdrantCfg *config.QdrantConfig, postgresDSN string) (Index, error) {
	switch cfg.Backend {
	case "", "qdrant":
		return NewQdrantIndex(ctx, qdrantCfg)
	case "pgvector":
		return NewPGIndex(ctx, postgresDSN)
	case "memory":
		return NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("vectorindex: unknown backend %q", cfg.Backend)
	}
}
