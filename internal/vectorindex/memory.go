package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex implements Index with in-process brute-force cosine search.
// It backs tests and small single-process deployments; nothing persists
// across restarts.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	// points maps point ID to its stored vector and payload.
	points map[string]Point
}

// NewMemoryIndex constructs an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memoryCollection)}
}

// Name identifies this engine.
func (s *MemoryIndex) Name() string { return "memory" }

// Ping always succeeds; there is nothing remote to reach.
func (s *MemoryIndex) Ping(ctx context.Context) error { return nil }

// EnsureCollection creates the collection if missing.
func (s *MemoryIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[collection]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: %q has %d, want %d", ErrCollectionSizeConflict, collection, c.dimension, dimension)
		}
		return nil
	}
	s.collections[collection] = &memoryCollection{
		dimension: dimension,
		points:    make(map[string]Point),
	}
	return nil
}

// Upsert stores or replaces points by ID.
func (s *MemoryIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return fmt.Errorf("%w: point %s has %d, collection %q wants %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), collection, c.dimension)
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		p.Vector = vec
		c.points[p.ID] = p
	}
	return nil
}

// Query scans all points, scoring by cosine similarity.
func (s *MemoryIndex) Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection %q wants %d",
			ErrDimensionMismatch, len(vector), collection, c.dimension)
	}

	results := make([]Result, 0, len(c.points))
	for _, p := range c.points {
		if !matchesFilter(&p.Payload, filter) {
			continue
		}
		results = append(results, Result{
			ID:      p.ID,
			Score:   cosineSimilarity(vector, p.Vector),
			Payload: p.Payload,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteByFilter removes all points matching filter and reports the count.
func (s *MemoryIndex) DeleteByFilter(ctx context.Context, collection string, filter *Filter) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	var deleted uint64
	for id, p := range c.points {
		if matchesFilter(&p.Payload, filter) {
			delete(c.points, id)
			deleted++
		}
	}
	return deleted, nil
}

// Stats reports the collection's point count and dimension.
func (s *MemoryIndex) Stats(ctx context.Context, collection string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	return &Stats{PointCount: uint64(len(c.points)), Dimension: c.dimension}, nil
}

// Close is a no-op for the in-process engine.
func (s *MemoryIndex) Close() error { return nil }

// matchesFilter applies the payload-equality filter semantics shared by all
// engines.
func matchesFilter(p *Payload, f *Filter) bool {
	if f.IsZero() {
		return true
	}
	if f.SubjectID != "" && p.SubjectID != f.SubjectID {
		return false
	}
	if f.TopicID != "" && p.TopicID != f.TopicID {
		return false
	}
	if f.SubtopicID != "" && p.SubtopicID != f.SubtopicID {
		return false
	}
	if f.DocumentID != "" && p.DocumentID != f.DocumentID {
		return false
	}
	if f.ExcludeDocumentID != "" && p.DocumentID == f.ExcludeDocumentID {
		return false
	}
	return true
}

// cosineSimilarity computes the cosine of the angle between a and b. Stored
// and query vectors are unit-normalised upstream, but the denominator is
// still computed so unnormalised inputs score sensibly in tests.
func cosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
