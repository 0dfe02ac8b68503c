package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edurag/edurag-go/internal/config"
)

// probeTimeout bounds the availability probe of the neural backend. A slow
// or unreachable Ollama instance should degrade to TF-IDF quickly, not hang
// the startup path.
const probeTimeout = 3 * time.Second

// Select resolves the configured embedding provider to a concrete Backend.
//
// Provider "ollama" and "tfidf" pick their backend unconditionally. Provider
// "auto" probes the Ollama backend once at selection time: if it responds,
// it is chosen for the lifetime of the process; otherwise the TF-IDF
// fallback is chosen, and the downgrade is logged. The choice is never
// revisited mid-run, so all vectors in a collection come from one backend.
func Select(ctx context.Context, cfg *config.EmbeddingConfig, log *slog.Logger) (Backend, error) {
	if log == nil {
		log = slog.Default()
	}

	ollama := NewOllamaBackend(&OllamaConfig{
		Host:      cfg.Endpoint,
		Model:     cfg.Model,
		Dimension: cfg.Dimensions,
		BatchSize: cfg.BatchSize,
		Logger:    log,
	})

	switch cfg.Provider {
	case "ollama":
		return ollama, nil
	case "tfidf":
		return NewTFIDFBackend(cfg.Dimensions), nil
	case "", "auto":
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if ollama.IsAvailable(probeCtx) {
			log.Info("embedding backend selected", "backend", ollama.Name())
			return ollama, nil
		}
		fallback := NewTFIDFBackend(cfg.Dimensions)
		log.Warn("neural embedding backend unreachable, falling back to tf-idf",
			"endpoint", cfg.Endpoint,
			"backend", fallback.Name(),
		)
		return fallback, nil
	default:
		return nil, fmt.Errorf("embedder: unknown provider %q", cfg.Provider)
	}
}
