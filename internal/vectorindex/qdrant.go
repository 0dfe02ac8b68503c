package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/edurag/edurag-go/internal/config"
)

// QdrantIndex implements Index backed by a Qdrant instance over gRPC.
type QdrantIndex struct {
	client *qdrant.Client

	// mu guards dims.
	mu sync.RWMutex
	// dims caches the declared dimension per collection so Upsert and Query
	// can reject mismatched vectors without a round trip.
	dims map[string]int
}

// NewQdrantIndex connects to the configured Qdrant instance. The connection
// is lazy at the gRPC level; reachability is verified by the health pinger,
// not here.
func NewQdrantIndex(ctx context.Context, cfg *config.QdrantConfig) (*QdrantIndex, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}

	return &QdrantIndex{client: client, dims: make(map[string]int)}, nil
}

// Name identifies this engine.
func (s *QdrantIndex) Name() string { return "qdrant" }

// Ping calls the Qdrant health check RPC.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance if missing.
// An existing collection with a different vector size is a conflict, not
// something to silently recreate.
func (s *QdrantIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection existence: %w", err)
	}

	if exists {
		info, err := s.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			return fmt.Errorf("qdrant: get collection info: %w", err)
		}
		existing := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if existing != dimension {
			return fmt.Errorf("%w: %q has %d, want %d", ErrCollectionSizeConflict, collection, existing, dimension)
		}
		s.rememberDim(collection, dimension)
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", collection, err)
	}
	s.rememberDim(collection, dimension)
	return nil
}

// Upsert stores or replaces points by ID.
func (s *QdrantIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	dim := s.knownDim(collection)

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if dim > 0 && len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has %d, collection %q wants %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), collection, dim)
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payloadMap(p.Payload)),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

// Query performs a filtered cosine similarity search.
func (s *QdrantIndex) Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]Result, error) {
	if dim := s.knownDim(collection); dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, collection %q wants %d",
			ErrDimensionMismatch, len(vector), collection, dim)
	}

	lim := uint64(limit)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ID:      h.Id.GetUuid(),
			Score:   h.Score,
			Payload: payloadFromValues(h.Payload),
		})
	}
	return results, nil
}

// DeleteByFilter removes all points matching filter. Qdrant's update result
// carries no count, so 0 is always reported. A missing collection yields
// ErrCollectionNotFound rather than the server's raw error.
func (s *QdrantIndex) DeleteByFilter(ctx context.Context, collection string, filter *Filter) (uint64, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: check collection existence: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(qdrantFilter(filter)),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete by filter: %w", err)
	}
	return 0, nil
}

// Stats reports the collection's point count and dimension.
func (s *QdrantIndex) Stats(ctx context.Context, collection string) (*Stats, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: check collection existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}

	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: get collection info: %w", err)
	}
	return &Stats{
		PointCount: info.GetPointsCount(),
		Dimension:  int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

func (s *QdrantIndex) rememberDim(collection string, dim int) {
	s.mu.Lock()
	s.dims[collection] = dim
	s.mu.Unlock()
}

func (s *QdrantIndex) knownDim(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims[collection]
}

// qdrantFilter translates a Filter into Qdrant match conditions.
func qdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || f.IsZero() {
		return nil
	}

	var must []*qdrant.Condition
	for _, c := range []struct {
		key, value string
	}{
		{"subjectId", f.SubjectID},
		{"topicId", f.TopicID},
		{"subtopicId", f.SubtopicID},
		{"documentId", f.DocumentID},
	} {
		if c.value != "" {
			must = append(must, qdrant.NewMatch(c.key, c.value))
		}
	}

	var mustNot []*qdrant.Condition
	if f.ExcludeDocumentID != "" {
		mustNot = append(mustNot, qdrant.NewMatch("documentId", f.ExcludeDocumentID))
	}

	return &qdrant.Filter{Must: must, MustNot: mustNot}
}

// payloadMap flattens a Payload for Qdrant storage.
func payloadMap(p Payload) map[string]any {
	return map[string]any{
		"subjectId":    p.SubjectID,
		"topicId":      p.TopicID,
		"subtopicId":   p.SubtopicID,
		"documentId":   p.DocumentID,
		"chunkIndex":   int64(p.ChunkIndex),
		"sectionTitle": p.SectionTitle,
		"pageNumber":   int64(p.PageNumber),
		"isHeading":    p.IsHeading,
		"isList":       p.IsList,
		"charCount":    int64(p.CharCount),
		"text":         p.Text,
	}
}

// payloadFromValues rebuilds a Payload from a Qdrant value map.
func payloadFromValues(values map[string]*qdrant.Value) Payload {
	var p Payload
	if values == nil {
		return p
	}
	str := func(key string) string {
		if v, ok := values[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := values[key]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}
	flag := func(key string) bool {
		if v, ok := values[key]; ok {
			return v.GetBoolValue()
		}
		return false
	}

	p.SubjectID = str("subjectId")
	p.TopicID = str("topicId")
	p.SubtopicID = str("subtopicId")
	p.DocumentID = str("documentId")
	p.ChunkIndex = num("chunkIndex")
	p.SectionTitle = str("sectionTitle")
	p.PageNumber = num("pageNumber")
	p.IsHeading = flag("isHeading")
	p.IsList = flag("isList")
	p.CharCount = num("charCount")
	p.Text = str("text")
	return p
}
