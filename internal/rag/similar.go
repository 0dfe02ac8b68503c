package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/edurag/edurag-go/internal/store"
	"github.com/edurag/edurag-go/internal/vectorindex"
)

// maxDocChunks caps how many of a document's points are fetched when picking
// representative chunks.
const maxDocChunks = 4096

// SimilarDocument is one ranked hit from FindSimilar.
type SimilarDocument struct {
	DocumentID string `json:"documentId"`
	// Filename is attached from the catalog when the document is still live.
	Filename string `json:"filename,omitempty"`
	// MeanSimilarity averages this document's hit scores across the probe
	// chunks; it is the ranking key.
	MeanSimilarity float32 `json:"meanSimilarity"`
	// MaxSimilarity is the single best hit score.
	MaxSimilarity float32 `json:"maxSimilarity"`
	// ChunkHits is how many probe results this document contributed.
	ChunkHits int `json:"chunkHits"`
}

// FindSimilar discovers documents similar to the given one. Up to three
// representative chunks (first, middle, last by index) probe the index with
// the source document excluded; hits are aggregated per document and ranked
// by mean similarity.
func (o *Orchestrator) FindSimilar(ctx context.Context, documentID string, limit int) ([]SimilarDocument, error) {
	if limit <= 0 {
		limit = o.search.Limit
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	reps, err := o.representativeChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(reps) == 0 {
		return nil, fmt.Errorf("%w: document %s has no indexed chunks", store.ErrNotFound, documentID)
	}

	type agg struct {
		sum   float32
		max   float32
		count int
	}
	byDoc := make(map[string]*agg)
	var order []string

	exclude := &vectorindex.Filter{ExcludeDocumentID: documentID}
	for _, rep := range reps {
		vector, err := o.backend.Embed(ctx, rep)
		if err != nil {
			return nil, fmt.Errorf("rag: embed representative chunk: %w", err)
		}
		hits, err := o.index.Query(ctx, o.collection, vector, exclude, 2*limit)
		if err != nil {
			return nil, fmt.Errorf("rag: query index: %w", err)
		}
		for _, h := range hits {
			a, ok := byDoc[h.Payload.DocumentID]
			if !ok {
				a = &agg{}
				byDoc[h.Payload.DocumentID] = a
				order = append(order, h.Payload.DocumentID)
			}
			a.sum += h.Score
			a.count++
			if h.Score > a.max {
				a.max = h.Score
			}
		}
	}

	results := make([]SimilarDocument, 0, len(byDoc))
	for _, id := range order {
		a := byDoc[id]
		doc := SimilarDocument{
			DocumentID:     id,
			MeanSimilarity: a.sum / float32(a.count),
			MaxSimilarity:  a.max,
			ChunkHits:      a.count,
		}
		if rec, err := o.docs.GetDocument(ctx, id); err == nil {
			doc.Filename = rec.Filename
		}
		results = append(results, doc)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MeanSimilarity > results[j].MeanSimilarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// representativeChunks fetches the document's chunk texts and picks the
// first, middle, and last by chunk index. Fewer are returned for documents
// with fewer than three chunks.
func (o *Orchestrator) representativeChunks(ctx context.Context, documentID string) ([]string, error) {
	// The probe vector only orders results; the document filter selects
	// them. Any valid unit vector works.
	probe := make([]float32, o.backend.Dimension())
	probe[0] = 1

	hits, err := o.index.Query(ctx, o.collection, probe, &vectorindex.Filter{DocumentID: documentID}, maxDocChunks)
	if err != nil {
		if errors.Is(err, vectorindex.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: document %s", store.ErrNotFound, documentID)
		}
		return nil, fmt.Errorf("rag: fetch document chunks: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Payload.ChunkIndex < hits[j].Payload.ChunkIndex
	})

	picks := []int{0}
	if len(hits) > 2 {
		picks = append(picks, len(hits)/2)
	}
	if len(hits) > 1 {
		picks = append(picks, len(hits)-1)
	}

	texts := make([]string, 0, len(picks))
	for _, i := range picks {
		texts = append(texts, hits[i].Payload.Text)
	}
	return texts, nil
}
