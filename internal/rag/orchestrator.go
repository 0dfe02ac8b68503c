// Package rag orchestrates the document pipeline: extraction, structure
// analysis, chunking, embedding, and vector indexing, plus the retrieval
// operations built on top (filtered search with re-ranking, similar-document
// discovery, deletion, stats).
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edurag/edurag-go/internal/analyzer"
	"github.com/edurag/edurag-go/internal/chunker"
	"github.com/edurag/edurag-go/internal/config"
	"github.com/edurag/edurag-go/internal/embedder"
	"github.com/edurag/edurag-go/internal/extractor"
	"github.com/edurag/edurag-go/internal/store"
	"github.com/edurag/edurag-go/internal/vectorindex"
)

// DefaultMaxConcurrent bounds concurrent document pipelines. Kept low
// because PDF extraction and embedding are CPU and memory heavy.
const DefaultMaxConcurrent = 2

// pointNamespace is the UUID namespace for deterministic point IDs, so
// re-ingesting a document overwrites its points instead of duplicating them.
var pointNamespace = uuid.MustParse("8c9d3a52-7e41-4b6f-9a0d-2f5c81e6b394")

// IngestInput is one document submitted for processing.
type IngestInput struct {
	// Data is the raw file content.
	Data []byte
	// Filename is the original upload name.
	Filename string
	// MediaType is the declared MIME type.
	MediaType string
	// Context classifies the document and records the uploader.
	Context chunker.Context
}

// IngestResult reports a completed ingest.
type IngestResult struct {
	DocumentID       string `json:"documentId"`
	Chunks           int    `json:"chunks"`
	Pages            int    `json:"pages"`
	TextLength       int    `json:"textLength"`
	Quality          string `json:"quality"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

// Orchestrator coordinates the pipeline components. Configuration is fixed
// at construction; the only mutable state is the stats block and the
// backend-mismatch warning latch.
type Orchestrator struct {
	collection string
	search     config.SearchConfig

	backend embedder.Backend
	index   vectorindex.Index
	docs    store.DocumentStore
	chunks  *chunker.Chunker
	log     *slog.Logger

	// sem bounds concurrent document pipelines.
	sem chan struct{}

	stats usageStats

	// warnMismatch latches the ingest/search backend mismatch warning.
	warnMismatch sync.Once
}

// New constructs an Orchestrator from the resolved configuration and the
// already-selected backend, index, and document store.
func New(cfg *config.Config, backend embedder.Backend, index vectorindex.Index, docs store.DocumentStore, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	maxConcurrent := cfg.Ingest.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Orchestrator{
		collection: cfg.Index.Collection,
		search:     cfg.Search,
		backend:    backend,
		index:      index,
		docs:       docs,
		chunks: chunker.New(chunker.Config{
			MaxChunkSize: cfg.Chunking.MaxChunkSize,
			MinChunkSize: cfg.Chunking.MinChunkSize,
			OverlapSize:  cfg.Chunking.OverlapSize,
			MaxSentences: cfg.Chunking.MaxSentences,
		}),
		log: log,
		sem: make(chan struct{}, maxConcurrent),
	}
}

// ProcessDocument runs one document through the full pipeline. Stage
// failures abort the run and report the failing stage; points already
// upserted for an aborted document stay in the index until DeleteDocument
// is called.
func (o *Orchestrator) ProcessDocument(ctx context.Context, in IngestInput) (*IngestResult, error) {
	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return nil, abort(StageValidation, ctx.Err())
	}

	started := time.Now()

	if err := extractor.Validate(in.Data, in.MediaType, in.Filename); err != nil {
		return nil, abort(StageValidation, err)
	}

	extracted, err := extractor.Extract(in.Data, in.MediaType, in.Filename)
	if err != nil {
		return nil, abort(StageExtraction, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, abort(StageAnalysis, err)
	}
	structure := analyzer.Analyze(extracted.Text, extracted.PageCount)

	docID := uuid.NewString()
	pieces := o.chunks.Chunk(extracted.Text, structure, docID, in.Context)

	o.log.Info("document chunked",
		"documentId", docID,
		"filename", in.Filename,
		"chunks", len(pieces),
		"pages", extracted.PageCount,
		"quality", string(structure.Quality.Score),
	)

	if len(pieces) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, abort(StageEmbedding, err)
		}
		texts := make([]string, len(pieces))
		for i, p := range pieces {
			texts[i] = p.Text
		}
		vectors, err := o.backend.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, abort(StageEmbedding, err)
		}

		if err := ctx.Err(); err != nil {
			return nil, abort(StageIndexing, err)
		}
		if err := o.index.EnsureCollection(ctx, o.collection, o.backend.Dimension()); err != nil {
			return nil, abort(StageIndexing, err)
		}
		points := make([]vectorindex.Point, len(pieces))
		for i, p := range pieces {
			points[i] = vectorindex.Point{
				ID:     PointID(docID, p.Index),
				Vector: vectors[i],
				Payload: vectorindex.Payload{
					SubjectID:    p.Context.SubjectID,
					TopicID:      p.Context.TopicID,
					SubtopicID:   p.Context.SubtopicID,
					DocumentID:   docID,
					ChunkIndex:   p.Index,
					SectionTitle: p.SectionTitle,
					PageNumber:   p.PageNumber,
					IsHeading:    p.IsHeading,
					IsList:       p.IsList,
					CharCount:    p.CharCount,
					Text:         p.Text,
				},
			}
		}
		if err := o.index.Upsert(ctx, o.collection, points); err != nil {
			return nil, abort(StageIndexing, err)
		}
		if err := o.docs.RecordCollectionBackend(ctx, o.collection, o.index.Name(), o.backend.Name()); err != nil {
			return nil, abort(StageStoring, err)
		}
	}

	doc := &store.Document{
		ID:            docID,
		Filename:      in.Filename,
		MediaType:     in.MediaType,
		SizeBytes:     int64(len(in.Data)),
		SubjectID:     in.Context.SubjectID,
		TopicID:       in.Context.TopicID,
		SubtopicID:    in.Context.SubtopicID,
		UploaderID:    in.Context.UploaderID,
		TextLength:    len(extracted.Text),
		PageCount:     extracted.PageCount,
		ChunkCount:    len(pieces),
		Quality:       string(structure.Quality.Score),
		QualityIssues: structure.Quality.Issues,
		UploadedAt:    time.Now(),
	}
	if err := o.docs.SaveDocument(ctx, doc); err != nil {
		return nil, abort(StageStoring, err)
	}

	elapsed := time.Since(started)
	o.stats.recordIngest(len(pieces), extracted.PageCount, elapsed)

	return &IngestResult{
		DocumentID:       docID,
		Chunks:           len(pieces),
		Pages:            extracted.PageCount,
		TextLength:       len(extracted.Text),
		Quality:          string(structure.Quality.Score),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// DeleteDocument removes all of a document's index points by filter and
// soft-deletes its catalog record. The filter delete needs no chunk IDs, so
// it is safe on partially indexed documents.
func (o *Orchestrator) DeleteDocument(ctx context.Context, documentID string) error {
	deleted, err := o.index.DeleteByFilter(ctx, o.collection, &vectorindex.Filter{DocumentID: documentID})
	if err != nil && !errors.Is(err, vectorindex.ErrCollectionNotFound) {
		return fmt.Errorf("rag: delete document points: %w", err)
	}
	if err := o.docs.SoftDelete(ctx, documentID); err != nil {
		return err
	}
	o.log.Info("document deleted", "documentId", documentID, "pointsDeleted", deleted)
	return nil
}

// ListDocuments returns catalog records newest-first, restricted by filter.
func (o *Orchestrator) ListDocuments(ctx context.Context, filter store.ListFilter) ([]store.Document, error) {
	docs, err := o.docs.ListDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("rag: list documents: %w", err)
	}
	return docs, nil
}

// ServiceStats is the combined stats report: orchestrator usage counters
// plus the current state of the vector index.
type ServiceStats struct {
	Usage Usage      `json:"usage"`
	Index IndexStats `json:"index"`
}

// IndexStats summarizes the vector index backend.
type IndexStats struct {
	Backend          string            `json:"backend"`
	TotalCollections int               `json:"totalCollections"`
	TotalPoints      uint64            `json:"totalPoints"`
	PerCollection    []CollectionStats `json:"perCollection"`
}

// CollectionStats describes one collection.
type CollectionStats struct {
	Name           string `json:"name"`
	PointCount     uint64 `json:"pointCount"`
	VectorSize     int    `json:"vectorSize"`
	DistanceMetric string `json:"distanceMetric"`
}

// Stats reports usage counters and index state. A missing collection (no
// document ingested yet) yields zeroed index stats, not an error.
func (o *Orchestrator) Stats(ctx context.Context) (*ServiceStats, error) {
	out := &ServiceStats{
		Usage: o.stats.snapshot(),
		Index: IndexStats{Backend: o.index.Name()},
	}

	idx, err := o.index.Stats(ctx, o.collection)
	switch {
	case err == nil:
		out.Index.TotalCollections = 1
		out.Index.TotalPoints = idx.PointCount
		out.Index.PerCollection = []CollectionStats{{
			Name:           o.collection,
			PointCount:     idx.PointCount,
			VectorSize:     idx.Dimension,
			DistanceMetric: "cosine",
		}}
	case errors.Is(err, vectorindex.ErrCollectionNotFound):
		// Nothing ingested yet.
	default:
		return nil, fmt.Errorf("rag: index stats: %w", err)
	}
	return out, nil
}

// checkBackendIdentity warns once when the active embedding backend differs
// from the one the collection was built with. Mixed backends silently
// degrade similarity quality, but a degraded deployment stays searchable.
func (o *Orchestrator) checkBackendIdentity(ctx context.Context) {
	_, recorded, err := o.docs.CollectionBackend(ctx, o.collection)
	if err != nil || recorded == o.backend.Name() {
		return
	}
	o.warnMismatch.Do(func() {
		o.log.Warn("embedding backend differs from the one used at ingest time; similarity quality is degraded",
			"collection", o.collection,
			"ingestBackend", recorded,
			"activeBackend", o.backend.Name(),
		)
	})
}

// PointID derives the deterministic point UUID for a document chunk.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s#%d", documentID, chunkIndex))).String()
}
