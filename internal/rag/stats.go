package rag

import (
	"sync"
	"time"
)

// Usage is a snapshot of the orchestrator's advisory counters. They are
// process-local and not persisted; a restart resets them.
type Usage struct {
	DocumentsProcessed  int64   `json:"documentsProcessed"`
	ChunksGenerated     int64   `json:"chunksGenerated"`
	EmbeddingsCreated   int64   `json:"embeddingsCreated"`
	SearchesPerformed   int64   `json:"searchesPerformed"`
	TotalPages          int64   `json:"totalPages"`
	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
}

// usageStats accumulates counters behind one mutex. All mutation goes
// through the record methods.
type usageStats struct {
	mu sync.Mutex
	u  Usage
}

// recordIngest folds one completed document into the counters. The rolling
// average halves the weight of history on every sample.
func (s *usageStats) recordIngest(chunks, pages int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.u.DocumentsProcessed++
	s.u.ChunksGenerated += int64(chunks)
	s.u.EmbeddingsCreated += int64(chunks)
	s.u.TotalPages += int64(pages)
	s.u.AvgProcessingTimeMs = (s.u.AvgProcessingTimeMs + float64(elapsed.Milliseconds())) / 2
}

// recordSearch counts one completed search.
func (s *usageStats) recordSearch() {
	s.mu.Lock()
	s.u.SearchesPerformed++
	s.mu.Unlock()
}

// snapshot returns a copy of the current counters.
func (s *usageStats) snapshot() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.u
}
