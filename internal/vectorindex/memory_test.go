package vectorindex

import (
	"context"
	"errors"
	"testing"
)

func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func seedIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	ctx := context.Background()
	if err := idx.EnsureCollection(ctx, "chunks", 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	points := []Point{
		{ID: "p1", Vector: unit(4, 0), Payload: Payload{SubjectID: "math", TopicID: "algebra", DocumentID: "doc-a", ChunkIndex: 0, Text: "first"}},
		{ID: "p2", Vector: unit(4, 1), Payload: Payload{SubjectID: "math", TopicID: "algebra", DocumentID: "doc-a", ChunkIndex: 1, Text: "second"}},
		{ID: "p3", Vector: unit(4, 2), Payload: Payload{SubjectID: "math", TopicID: "geometry", DocumentID: "doc-b", ChunkIndex: 0, Text: "third"}},
		{ID: "p4", Vector: unit(4, 3), Payload: Payload{SubjectID: "biology", TopicID: "cells", DocumentID: "doc-c", ChunkIndex: 0, Text: "fourth"}},
	}
	if err := idx.Upsert(ctx, "chunks", points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return idx
}

func TestMemoryEnsureCollectionConflict(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIndex()
	ctx := context.Background()
	if err := idx.EnsureCollection(ctx, "chunks", 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	// Same dimension is idempotent.
	if err := idx.EnsureCollection(ctx, "chunks", 4); err != nil {
		t.Fatalf("EnsureCollection (repeat): %v", err)
	}
	if err := idx.EnsureCollection(ctx, "chunks", 8); !errors.Is(err, ErrCollectionSizeConflict) {
		t.Errorf("err = %v, want ErrCollectionSizeConflict", err)
	}
}

func TestMemoryUpsertDimensionMismatch(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	err := idx.Upsert(context.Background(), "chunks", []Point{{ID: "bad", Vector: unit(3, 0)}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
	// A rejected batch must not be partially applied.
	stats, err := idx.Stats(context.Background(), "chunks")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PointCount != 4 {
		t.Errorf("PointCount = %d after rejected batch, want 4", stats.PointCount)
	}
}

func TestMemoryQueryRanking(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	// Closest to axis 0, slightly tilted toward axis 1.
	query := []float32{0.9, 0.3, 0, 0}
	results, err := idx.Query(context.Background(), "chunks", query, nil, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "p1" || results[1].ID != "p2" {
		t.Errorf("ranking = [%s %s], want [p1 p2]", results[0].ID, results[1].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
	if results[0].Payload.Text != "first" {
		t.Errorf("payload text = %q, want %q", results[0].Payload.Text, "first")
	}
}

func TestMemoryQueryFilters(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	ctx := context.Background()
	query := []float32{0.5, 0.5, 0.5, 0.5}

	tests := []struct {
		name    string
		filter  *Filter
		wantIDs map[string]bool
	}{
		{"by subject", &Filter{SubjectID: "math"}, map[string]bool{"p1": true, "p2": true, "p3": true}},
		{"by topic", &Filter{SubjectID: "math", TopicID: "geometry"}, map[string]bool{"p3": true}},
		{"by document", &Filter{DocumentID: "doc-a"}, map[string]bool{"p1": true, "p2": true}},
		{"exclude document", &Filter{SubjectID: "math", ExcludeDocumentID: "doc-a"}, map[string]bool{"p3": true}},
		{"no match", &Filter{SubjectID: "history"}, map[string]bool{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			results, err := idx.Query(ctx, "chunks", query, tt.filter, 10)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(results) != len(tt.wantIDs) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantIDs))
			}
			for _, r := range results {
				if !tt.wantIDs[r.ID] {
					t.Errorf("unexpected result %s", r.ID)
				}
			}
		})
	}
}

func TestMemoryUpsertReplacesByID(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	ctx := context.Background()
	err := idx.Upsert(ctx, "chunks", []Point{
		{ID: "p1", Vector: unit(4, 3), Payload: Payload{SubjectID: "math", DocumentID: "doc-a", Text: "replaced"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	stats, err := idx.Stats(ctx, "chunks")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PointCount != 4 {
		t.Errorf("PointCount = %d, want 4 (replace, not insert)", stats.PointCount)
	}

	results, err := idx.Query(ctx, "chunks", unit(4, 3), &Filter{DocumentID: "doc-a"}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Payload.Text != "replaced" {
		t.Errorf("got %v, want the replaced payload", results)
	}
}

func TestMemoryDeleteByFilter(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	ctx := context.Background()

	deleted, err := idx.DeleteByFilter(ctx, "chunks", &Filter{DocumentID: "doc-a"})
	if err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	stats, err := idx.Stats(ctx, "chunks")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PointCount != 2 {
		t.Errorf("PointCount = %d, want 2", stats.PointCount)
	}
	// Deleting again is a no-op, not an error.
	deleted, err = idx.DeleteByFilter(ctx, "chunks", &Filter{DocumentID: "doc-a"})
	if err != nil || deleted != 0 {
		t.Errorf("repeat delete = (%d, %v), want (0, nil)", deleted, err)
	}
}

func TestMemoryUnknownCollection(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIndex()
	ctx := context.Background()
	if _, err := idx.Query(ctx, "nope", unit(4, 0), nil, 1); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Query err = %v, want ErrCollectionNotFound", err)
	}
	if _, err := idx.Stats(ctx, "nope"); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Stats err = %v, want ErrCollectionNotFound", err)
	}
	if err := idx.Upsert(ctx, "nope", nil); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Upsert err = %v, want ErrCollectionNotFound", err)
	}
}
