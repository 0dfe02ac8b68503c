package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/edurag/edurag-go/internal/vectorindex"
)

// DefaultSearchThreshold drops candidates below this raw similarity.
const DefaultSearchThreshold = 0.15

// DefaultSearchLimit is the result count when the caller does not set one.
const DefaultSearchLimit = 10

// SearchRequest is one retrieval query.
type SearchRequest struct {
	// Query is the text to search for. Must be non-empty.
	Query string
	// Filter restricts candidates by educational context or document.
	Filter vectorindex.Filter
	// Limit caps the number of results; DefaultSearchLimit when zero.
	Limit int
	// Threshold overrides the configured similarity floor when positive.
	Threshold float64
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Text          string  `json:"text"`
	Similarity    float32 `json:"similarity"`
	RerankedScore float64 `json:"rerankedScore"`
	DocumentID    string  `json:"documentId"`
	ChunkIndex    int     `json:"chunkIndex"`
	SectionTitle  string  `json:"sectionTitle,omitempty"`
	PageNumber    int     `json:"pageNumber,omitempty"`
	IsHeading     bool    `json:"isHeading"`
	IsList        bool    `json:"isList"`
}

// SearchStats describes how the candidate set narrowed.
type SearchStats struct {
	// TotalFound is the candidate count returned by the index.
	TotalFound int `json:"totalFound"`
	// AfterFiltering is the count surviving the similarity threshold.
	AfterFiltering int `json:"afterFiltering"`
	// Returned is the final result count after re-ranking and truncation.
	Returned int `json:"returned"`
	// SearchTimeMs is the end-to-end search duration.
	SearchTimeMs int64 `json:"searchTimeMs"`
}

// SearchResponse is the full search outcome. An empty result set after
// threshold filtering is a success with zero results, not an error.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Stats   SearchStats    `json:"stats"`
}

// Search embeds the query, retrieves 2×limit candidates under the filter,
// drops those below the similarity threshold, re-ranks the survivors with
// the structural heuristics, and returns the top limit.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = o.search.Limit
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = o.search.Threshold
	}
	if threshold <= 0 {
		threshold = DefaultSearchThreshold
	}

	started := time.Now()
	o.checkBackendIdentity(ctx)

	vector, err := o.backend.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	// Over-fetch so threshold filtering and re-ranking have candidates to
	// work with.
	candidates, err := o.index.Query(ctx, o.collection, vector, &req.Filter, 2*limit)
	if err != nil {
		return nil, fmt.Errorf("rag: query index: %w", err)
	}

	survivors := candidates[:0]
	for _, c := range candidates {
		if float64(c.Score) >= threshold {
			survivors = append(survivors, c)
		}
	}

	results := o.rerank(survivors, req.Query)
	if len(results) > limit {
		results = results[:limit]
	}

	o.stats.recordSearch()
	return &SearchResponse{
		Results: results,
		Stats: SearchStats{
			TotalFound:     len(candidates),
			AfterFiltering: len(survivors),
			Returned:       len(results),
			SearchTimeMs:   time.Since(started).Milliseconds(),
		},
	}, nil
}

// rerank applies the deterministic structural score adjustments and sorts
// descending. The sort is stable with ties broken by raw similarity, so
// equal re-ranked scores keep the index's insertion order.
func (o *Orchestrator) rerank(candidates []vectorindex.Result, query string) []SearchResult {
	queryLower := strings.ToLower(strings.TrimSpace(query))

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		score := float64(c.Score)

		if c.Payload.IsHeading {
			score += o.search.HeadingBoost
		}
		if c.Payload.SectionTitle != "" &&
			strings.Contains(strings.ToLower(c.Payload.SectionTitle), queryLower) {
			score += o.search.SectionBoost
		}
		if c.Payload.PageNumber >= 1 && c.Payload.PageNumber <= 3 {
			score += o.search.EarlyPageBoost
		}
		if c.Payload.CharCount < 100 {
			score -= o.search.ShortPenalty
		}
		if n := sentenceCount(c.Payload.Text); n >= 2 && n <= 5 {
			score += o.search.ProseBoost
		}
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}

		results[i] = SearchResult{
			Text:          c.Payload.Text,
			Similarity:    c.Score,
			RerankedScore: score,
			DocumentID:    c.Payload.DocumentID,
			ChunkIndex:    c.Payload.ChunkIndex,
			SectionTitle:  c.Payload.SectionTitle,
			PageNumber:    c.Payload.PageNumber,
			IsHeading:     c.Payload.IsHeading,
			IsList:        c.Payload.IsList,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RerankedScore != results[j].RerankedScore {
			return results[i].RerankedScore > results[j].RerankedScore
		}
		return results[i].Similarity > results[j].Similarity
	})
	return results
}

// sentenceCount approximates the number of sentences in text by counting
// terminator runs.
func sentenceCount(text string) int {
	count := 0
	inRun := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if !inRun {
				count++
				inRun = true
			}
		default:
			inRun = false
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		count = 1
	}
	return count
}
