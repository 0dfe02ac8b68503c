package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edurag/edurag-go/internal/config"
	"github.com/edurag/edurag-go/internal/embedder"
	"github.com/edurag/edurag-go/internal/rag"
	"github.com/edurag/edurag-go/internal/store"
	"github.com/edurag/edurag-go/internal/vectorindex"
)

// services bundles the wired pipeline components a command needs, plus the
// handles required to shut them down.
type services struct {
	cfg     *config.Config
	backend embedder.Backend
	index   vectorindex.Index
	docs    *store.SQLiteStore
	orch    *rag.Orchestrator
}

// close releases the index connections and the catalog database.
func (s *services) close() {
	_ = s.index.Close()
	_ = s.docs.Close()
}

// buildServices resolves configuration from the environment and assembles
// the full pipeline: document catalog, embedding backend, vector index, and
// orchestrator. Callers must invoke close when done.
func buildServices(ctx context.Context, log *slog.Logger) (*services, error) {
	cfg := config.FromEnv()

	dbPath := cfg.Store.DBPath
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	docs, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open document catalog: %w", err)
	}
	log.Info("document catalog opened", slog.String("path", dbPath))

	backend, err := embedder.Select(ctx, &cfg.Embedding, log)
	if err != nil {
		_ = docs.Close()
		return nil, fmt.Errorf("select embedding backend: %w", err)
	}
	log.Info("embedding backend selected", slog.String("backend", backend.Name()))

	index, err := vectorindex.Open(ctx, &cfg.Index, &cfg.Qdrant, cfg.Postgres.DSN)
	if err != nil {
		_ = docs.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	log.Info("vector index ready",
		slog.String("engine", index.Name()),
		slog.String("collection", cfg.Index.Collection),
	)

	return &services{
		cfg:     cfg,
		backend: backend,
		index:   index,
		docs:    docs,
		orch:    rag.New(cfg, backend, index, docs, log),
	}, nil
}
