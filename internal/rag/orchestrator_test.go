package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/edurag/edurag-go/internal/chunker"
	"github.com/edurag/edurag-go/internal/config"
	"github.com/edurag/edurag-go/internal/embedder"
	"github.com/edurag/edurag-go/internal/extractor"
	"github.com/edurag/edurag-go/internal/store"
	"github.com/edurag/edurag-go/internal/vectorindex"
)

// newTestOrchestrator wires an Orchestrator against the in-process engines:
// TF-IDF embeddings, memory vector index, in-memory SQLite catalog.
func newTestOrchestrator(t *testing.T) (*Orchestrator, *vectorindex.MemoryIndex, *store.SQLiteStore) {
	t.Helper()
	docs, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })

	idx := vectorindex.NewMemoryIndex()
	backend := embedder.NewTFIDFBackend(64)

	cfg := config.FromEnv()
	cfg.Index.Collection = "test_chunks"
	return New(cfg, backend, idx, docs, nil), idx, docs
}

// lessonText builds a plain-text document about one theme, long enough to
// produce several chunks.
func lessonText(theme string) string {
	var b strings.Builder
	for p := 0; p < 3; p++ {
		for s := 0; s < 4; s++ {
			b.WriteString("The study of ")
			b.WriteString(theme)
			b.WriteString(" shows how ")
			b.WriteString(theme)
			b.WriteString(" behaves under different classroom conditions and exercises. ")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func ingestLesson(t *testing.T, o *Orchestrator, theme string) *IngestResult {
	t.Helper()
	res, err := o.ProcessDocument(context.Background(), IngestInput{
		Data:      []byte(lessonText(theme)),
		Filename:  theme + ".txt",
		MediaType: "text/plain",
		Context:   testContext(),
	})
	if err != nil {
		t.Fatalf("ingest %s: %v", theme, err)
	}
	return res
}

func testContext() chunker.Context {
	return chunker.Context{
		SubjectID:  "science",
		TopicID:    "energy",
		SubtopicID: "intro",
		UploaderID: "teacher-1",
	}
}

func TestProcessDocumentPipeline(t *testing.T) {
	t.Parallel()

	o, idx, docs := newTestOrchestrator(t)
	res := ingestLesson(t, o, "photosynthesis")

	if res.DocumentID == "" {
		t.Fatal("no document ID assigned")
	}
	if res.Chunks == 0 {
		t.Fatal("no chunks produced")
	}
	if res.Pages != 1 {
		t.Errorf("pages = %d, want 1 for plain text", res.Pages)
	}
	if res.Quality == "" {
		t.Error("quality not reported")
	}

	// The index holds exactly the document's chunks.
	stats, err := idx.Stats(context.Background(), "test_chunks")
	if err != nil {
		t.Fatalf("index stats: %v", err)
	}
	if int(stats.PointCount) != res.Chunks {
		t.Errorf("index points = %d, want %d", stats.PointCount, res.Chunks)
	}

	// The catalog record matches.
	doc, err := docs.GetDocument(context.Background(), res.DocumentID)
	if err != nil {
		t.Fatalf("catalog lookup: %v", err)
	}
	if doc.ChunkCount != res.Chunks || doc.SubjectID != "science" {
		t.Errorf("catalog record mismatch: %+v", doc)
	}

	// The backend identity was recorded at first ingest.
	engine, emb, err := docs.CollectionBackend(context.Background(), "test_chunks")
	if err != nil {
		t.Fatalf("collection backend: %v", err)
	}
	if engine != "memory" || emb != "tfidf" {
		t.Errorf("recorded identity = %s/%s, want memory/tfidf", engine, emb)
	}
}

func TestProcessDocumentValidationFailure(t *testing.T) {
	t.Parallel()

	o, idx, _ := newTestOrchestrator(t)
	_, err := o.ProcessDocument(context.Background(), IngestInput{
		Data:      []byte("plain bytes"),
		Filename:  "slides.pptx",
		MediaType: "application/vnd.ms-powerpoint",
		Context:   testContext(),
	})

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if stageErr.Stage != StageValidation {
		t.Errorf("stage = %s, want %s", stageErr.Stage, StageValidation)
	}
	if !errors.Is(err, extractor.ErrUnsupportedFormat) {
		t.Errorf("cause = %v, want ErrUnsupportedFormat", stageErr.Err)
	}

	// Terminal validation errors leave no side effects.
	if _, err := idx.Stats(context.Background(), "test_chunks"); !errors.Is(err, vectorindex.ErrCollectionNotFound) {
		t.Errorf("collection exists after rejected ingest: %v", err)
	}
}

func TestProcessDocumentCancellation(t *testing.T) {
	t.Parallel()

	o, idx, _ := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.ProcessDocument(ctx, IngestInput{
		Data:      []byte(lessonText("thermodynamics")),
		Filename:  "thermo.txt",
		MediaType: "text/plain",
		Context:   testContext(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// No points are upserted for a cancelled run.
	if _, err := idx.Stats(context.Background(), "test_chunks"); !errors.Is(err, vectorindex.ErrCollectionNotFound) {
		t.Errorf("collection exists after cancelled ingest: %v", err)
	}
}

func TestSearchReturnsRelevantChunks(t *testing.T) {
	t.Parallel()

	o, _, _ := newTestOrchestrator(t)
	res := ingestLesson(t, o, "photosynthesis")
	ingestLesson(t, o, "medieval history")

	resp, err := o.Search(context.Background(), SearchRequest{
		Query:     "photosynthesis classroom conditions",
		Limit:     5,
		Threshold: 0.01,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("no results")
	}
	if resp.Results[0].DocumentID != res.DocumentID {
		t.Errorf("top result from %s, want the photosynthesis document %s",
			resp.Results[0].DocumentID, res.DocumentID)
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].RerankedScore > resp.Results[i-1].RerankedScore {
			t.Errorf("results not sorted by re-ranked score at %d", i)
		}
	}
	if resp.Stats.Returned != len(resp.Results) {
		t.Errorf("stats.Returned = %d, want %d", resp.Stats.Returned, len(resp.Results))
	}
	if resp.Stats.TotalFound < resp.Stats.AfterFiltering {
		t.Errorf("stats narrow the wrong way: %+v", resp.Stats)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	o, _, _ := newTestOrchestrator(t)
	if _, err := o.Search(context.Background(), SearchRequest{Query: "  "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestSearchThresholdEmptiesResults(t *testing.T) {
	t.Parallel()

	o, _, _ := newTestOrchestrator(t)
	ingestLesson(t, o, "photosynthesis")

	// An impossible threshold empties the result set; that is a success
	// with zero results, not an error.
	resp, err := o.Search(context.Background(), SearchRequest{
		Query:     "photosynthesis",
		Threshold: 0.999,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("got %d results above threshold 0.999", len(resp.Results))
	}
	if resp.Stats.TotalFound == 0 {
		t.Error("expected candidates before threshold filtering")
	}
}

func TestFindSimilarRanksRelatedDocumentFirst(t *testing.T) {
	t.Parallel()

	o, _, _ := newTestOrchestrator(t)
	source := ingestLesson(t, o, "photosynthesis energy")
	related := ingestLesson(t, o, "photosynthesis light")
	ingestLesson(t, o, "roman empire")

	similar, err := o.FindSimilar(context.Background(), source.DocumentID, 5)
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(similar) == 0 {
		t.Fatal("no similar documents")
	}
	if similar[0].DocumentID != related.DocumentID {
		t.Errorf("top similar = %s, want the related document %s", similar[0].DocumentID, related.DocumentID)
	}
	for _, s := range similar {
		if s.DocumentID == source.DocumentID {
			t.Error("source document present in its own similarity results")
		}
		if s.MaxSimilarity < s.MeanSimilarity {
			t.Errorf("max < mean for %s", s.DocumentID)
		}
	}
}

func TestFindSimilarUnknownDocument(t *testing.T) {
	t.Parallel()

	o, _, _ := newTestOrchestrator(t)
	ingestLesson(t, o, "photosynthesis")

	if _, err := o.FindSimilar(context.Background(), "no-such-doc", 5); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want store.ErrNotFound", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	t.Parallel()

	o, idx, docs := newTestOrchestrator(t)
	res := ingestLesson(t, o, "photosynthesis")
	keep := ingestLesson(t, o, "medieval history")

	if err := o.DeleteDocument(context.Background(), res.DocumentID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := docs.GetDocument(context.Background(), res.DocumentID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("catalog record survives delete: %v", err)
	}
	stats, err := idx.Stats(context.Background(), "test_chunks")
	if err != nil {
		t.Fatalf("index stats: %v", err)
	}
	if int(stats.PointCount) != keep.Chunks {
		t.Errorf("index points = %d, want only the kept document's %d", stats.PointCount, keep.Chunks)
	}

	// Deleting again reports not found.
	if err := o.DeleteDocument(context.Background(), res.DocumentID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("double delete err = %v, want store.ErrNotFound", err)
	}
}

// TestDeleteDocumentBeforeFirstIngest verifies that a delete issued before
// any ingest has created the collection falls through to the catalog's
// not-found answer instead of surfacing the index's missing-collection error.
func TestDeleteDocumentBeforeFirstIngest(t *testing.T) {
	t.Parallel()

	o, _, _ := newTestOrchestrator(t)
	if err := o.DeleteDocument(context.Background(), "never-ingested"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("delete err = %v, want store.ErrNotFound", err)
	}
}

func TestStatsAccumulate(t *testing.T) {
	t.Parallel()

	o, _, _ := newTestOrchestrator(t)
	res := ingestLesson(t, o, "photosynthesis")
	if _, err := o.Search(context.Background(), SearchRequest{Query: "photosynthesis", Threshold: 0.01}); err != nil {
		t.Fatalf("search: %v", err)
	}

	stats, err := o.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Usage.DocumentsProcessed != 1 {
		t.Errorf("DocumentsProcessed = %d, want 1", stats.Usage.DocumentsProcessed)
	}
	if stats.Usage.ChunksGenerated != int64(res.Chunks) {
		t.Errorf("ChunksGenerated = %d, want %d", stats.Usage.ChunksGenerated, res.Chunks)
	}
	if stats.Usage.SearchesPerformed != 1 {
		t.Errorf("SearchesPerformed = %d, want 1", stats.Usage.SearchesPerformed)
	}
	if stats.Index.TotalCollections != 1 || int(stats.Index.TotalPoints) != res.Chunks {
		t.Errorf("index stats = %+v, want one collection with %d points", stats.Index, res.Chunks)
	}
	if len(stats.Index.PerCollection) != 1 || stats.Index.PerCollection[0].DistanceMetric != "cosine" {
		t.Errorf("per-collection stats = %+v", stats.Index.PerCollection)
	}
}

func TestStatsBeforeFirstIngest(t *testing.T) {
	t.Parallel()

	o, _, _ := newTestOrchestrator(t)
	stats, err := o.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Index.TotalCollections != 0 || stats.Index.TotalPoints != 0 {
		t.Errorf("expected zeroed index stats before first ingest: %+v", stats.Index)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	t.Parallel()

	a := PointID("doc-1", 0)
	b := PointID("doc-1", 0)
	c := PointID("doc-1", 1)
	if a != b {
		t.Errorf("same inputs gave %s and %s", a, b)
	}
	if a == c {
		t.Error("different chunk indexes collide")
	}
	if len(a) != 36 {
		t.Errorf("not a UUID string: %s", a)
	}
}
