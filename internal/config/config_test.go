package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
  model: nomic-embed-text
  dimensions: 384
index:
  backend: qdrant
  collection: edu-documents
qdrant:
  host: qdrant.internal
  port: 6334
chunking:
  max_chunk_size: 500
  min_chunk_size: 150
  overlap_size: 75
search:
  threshold: 0.15
  limit: 10
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"INDEX_BACKEND", "INDEX_COLLECTION",
		"QDRANT_HOST", "QDRANT_PORT",
		"CHUNK_MAX_SIZE", "CHUNK_MIN_SIZE", "CHUNK_OVERLAP",
		"SEARCH_THRESHOLD", "SEARCH_LIMIT",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"EMBEDDING_PROVIDER":   "ollama",
		"EMBEDDING_MODEL":      "nomic-embed-text",
		"EMBEDDING_DIMENSIONS": "384",
		"INDEX_BACKEND":        "qdrant",
		"INDEX_COLLECTION":     "edu-documents",
		"QDRANT_HOST":          "qdrant.internal",
		"QDRANT_PORT":          "6334",
		"CHUNK_MAX_SIZE":       "500",
		"CHUNK_MIN_SIZE":       "150",
		"CHUNK_OVERLAP":        "75",
		"SEARCH_THRESHOLD":     "0.15",
		"SEARCH_LIMIT":         "10",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "text",
	}
	for key, want := range checks {
		if got := os.Getenv(key); got != want {
			t.Errorf("%s: got %q, want %q", key, got, want)
		}
	}
}

func TestLoad_EnvWins(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
qdrant:
  host: from-yaml
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("QDRANT_HOST", "from-env")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("QDRANT_HOST"); got != "from-env" {
		t.Errorf("env var should win over YAML: got %q", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("qdrant: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Error("expected parse error for invalid YAML")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("EDURAG_TEST_STR", "hello")
	t.Setenv("EDURAG_TEST_INT", "42")
	t.Setenv("EDURAG_TEST_FLOAT", "0.25")
	t.Setenv("EDURAG_TEST_BOOL", "true")

	if got := GetEnv("EDURAG_TEST_STR", "fallback"); got != "hello" {
		t.Errorf("GetEnv: got %q", got)
	}
	if got := GetEnv("EDURAG_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetEnv fallback: got %q", got)
	}
	if got := GetEnvInt("EDURAG_TEST_INT", 0); got != 42 {
		t.Errorf("GetEnvInt: got %d", got)
	}
	if got := GetEnvInt("EDURAG_TEST_STR", 7); got != 7 {
		t.Errorf("GetEnvInt non-numeric fallback: got %d", got)
	}
	if got := GetEnvFloat("EDURAG_TEST_FLOAT", 0); got != 0.25 {
		t.Errorf("GetEnvFloat: got %v", got)
	}
	if !GetEnvBool("EDURAG_TEST_BOOL") {
		t.Error("GetEnvBool: expected true")
	}
}
