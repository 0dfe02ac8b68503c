package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// defaultOllamaModel is a compact sentence-embedding model whose output
// dimension (384) matches DefaultDimension.
const defaultOllamaModel = "all-minilm"

// maxInputChars is the character budget applied before embedding. Longer
// inputs are truncated; chunk sizes stay well under this in practice.
const maxInputChars = 2048

// OllamaConfig holds the settings for constructing an OllamaBackend.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "all-minilm").
	Model string
	// Dimension is the expected output vector size. Defaults to 384.
	Dimension int
	// BatchSize is the number of texts sent per /api/embed call. Defaults to 16.
	BatchSize int
	// Logger is used for dimension-mismatch warnings. Defaults to slog.Default.
	Logger *slog.Logger
}

// OllamaBackend implements Backend using the Ollama /api/embed endpoint.
// Output vectors are normalised to unit L2 norm and memoised by a hash of
// the normalised input text. Safe for concurrent use.
type OllamaBackend struct {
	host      string
	model     string
	dimension int
	batchSize int
	client    *http.Client
	log       *slog.Logger

	// mu guards cache.
	mu sync.RWMutex
	// cache memoises embeddings by sha256 of the normalised input text.
	// A duplicate computation on a cache race is acceptable.
	cache map[[32]byte][]float32

	// warnedDim ensures the dimension-mismatch warning fires once, not per call.
	warnedDim sync.Once
}

// NewOllamaBackend constructs an OllamaBackend from the given config.
func NewOllamaBackend(cfg *OllamaConfig) *OllamaBackend {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OllamaBackend{
		host:      strings.TrimRight(cfg.Host, "/"),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		client:    &http.Client{Timeout: 60 * time.Second},
		log:       cfg.Logger,
		cache:     make(map[[32]byte][]float32),
	}
}

// Name identifies this backend including its model.
func (e *OllamaBackend) Name() string { return "ollama:" + e.model }

// Dimension returns the configured vector size.
func (e *OllamaBackend) Dimension() int { return e.dimension }

// IsAvailable probes the Ollama server's tag listing endpoint.
// It returns false on any network error or non-2xx status.
func (e *OllamaBackend) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Embed converts a single text into its embedding vector.
func (e *OllamaBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch converts texts into embeddings, serving cache hits locally and
// requesting the misses from Ollama in groups of the configured batch size.
// The returned slice is parallel to the input and preserves input order.
func (e *OllamaBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([][32]byte, len(texts))

	// Resolve cache hits first; collect the misses.
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		normalised := normalizeInput(text)
		if normalised == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
		keys[i] = sha256.Sum256([]byte(normalised))
		if v := e.cached(keys[i]); v != nil {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, normalised)
	}

	// Embed the misses in bounded batches; batch order preserves input order.
	for start := 0; start < len(missTexts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		vecs, err := e.embedRequest(ctx, missTexts[start:end])
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			i := missIdx[start+j]
			normalizeL2(vec)
			e.checkDimension(vec)
			e.store(keys[i], vec)
			out[i] = vec
		}
	}

	return out, nil
}

// ollamaEmbedRequest is the JSON body sent to the Ollama /api/embed endpoint.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the JSON body returned from the Ollama /api/embed endpoint.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// embedRequest performs one /api/embed call for a batch of texts.
func (e *OllamaBackend) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return nil, fmt.Errorf("ollama embedder: %s", msg)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	return result.Embeddings, nil
}

// checkDimension warns once when the model's output size differs from the
// configured dimension. The vector is passed through unchanged; the index
// validates against the declared collection size and rejects true mismatches.
func (e *OllamaBackend) checkDimension(vec []float32) {
	if len(vec) == e.dimension {
		return
	}
	e.warnedDim.Do(func() {
		e.log.Warn("embedder: model output dimension differs from configured dimension",
			slog.String("model", e.model),
			slog.Int("got", len(vec)),
			slog.Int("configured", e.dimension),
		)
	})
}

// cached returns a copy of the cached vector for key, or nil on a miss.
func (e *OllamaBackend) cached(key [32]byte) []float32 {
	e.mu.RLock()
	v, ok := e.cache[key]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// store records the vector for key.
func (e *OllamaBackend) store(key [32]byte, v []float32) {
	e.mu.Lock()
	e.cache[key] = v
	e.mu.Unlock()
}

// normalizeInput trims, collapses internal whitespace, and truncates text to
// the embedding character budget. Cache keys are computed over this form so
// semantically identical inputs share an entry.
func normalizeInput(text string) string {
	normalised := strings.Join(strings.Fields(text), " ")
	if len(normalised) > maxInputChars {
		normalised = normalised[:maxInputChars]
	}
	return normalised
}
