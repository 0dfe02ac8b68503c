// Package config provides YAML-based configuration for edurag.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing deployments are unaffected
// by adding a config file later.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. EDURAG_CONFIG environment variable
//  3. ~/.edurag/config.yaml
//  4. ./edurag.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding backend used at ingest and query time.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures the vector index backend.
	Index IndexConfig `yaml:"index"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Postgres configures the pgvector vector store connection.
	Postgres PostgresConfig `yaml:"postgres"`

	// Chunking configures the semantic chunker.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Search configures retrieval thresholds and re-ranking tuning.
	Search SearchConfig `yaml:"search"`

	// Ingest configures the ingest pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Store configures the document metadata store.
	Store StoreConfig `yaml:"store"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	// Provider selects the backend: auto, ollama, tfidf.
	// "auto" probes Ollama and falls back to TF-IDF when unreachable.
	Provider string `yaml:"provider"`
	// Model is the embedding model name (ollama backend only).
	Model string `yaml:"model"`
	// Dimensions is the embedding vector size. Both backends must agree.
	Dimensions int `yaml:"dimensions"`
	// Endpoint is the Ollama server base URL.
	Endpoint string `yaml:"endpoint"`
	// BatchSize is the number of texts embedded per backend call.
	BatchSize int `yaml:"batch_size"`
}

// IndexConfig holds vector index backend selection.
type IndexConfig struct {
	// Backend selects the vector index: qdrant, pgvector, memory.
	Backend string `yaml:"backend"`
	// Collection is the logical collection name holding all documents.
	Collection string `yaml:"collection"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// PostgresConfig holds pgvector store settings.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string. Prefer env var POSTGRES_DSN.
	DSN string `yaml:"dsn"`
}

// ChunkingConfig holds semantic chunker settings.
type ChunkingConfig struct {
	// MaxChunkSize is the maximum chunk length in characters.
	MaxChunkSize int `yaml:"max_chunk_size"`
	// MinChunkSize is the minimum chunk length in characters.
	MinChunkSize int `yaml:"min_chunk_size"`
	// OverlapSize is the trailing-sentence overlap budget in characters.
	OverlapSize int `yaml:"overlap_size"`
	// MaxSentences is the maximum number of sentences per chunk.
	MaxSentences int `yaml:"max_sentences"`
}

// SearchConfig holds retrieval and re-ranking settings.
// The boost/penalty values are empirically chosen constants preserved as
// configuration rather than hard-coded literals.
type SearchConfig struct {
	// Threshold is the minimum raw similarity for a candidate to survive.
	Threshold float64 `yaml:"threshold"`
	// Limit is the default number of results returned.
	Limit int `yaml:"limit"`
	// HeadingBoost is added when the chunk is a heading.
	HeadingBoost float64 `yaml:"heading_boost"`
	// SectionBoost is added when the section title contains the query.
	SectionBoost float64 `yaml:"section_boost"`
	// EarlyPageBoost is added for front-matter pages (page ≤ 3).
	EarlyPageBoost float64 `yaml:"early_page_boost"`
	// ShortPenalty is subtracted for fragments under 100 characters.
	ShortPenalty float64 `yaml:"short_penalty"`
	// ProseBoost is added for chunks of 2–5 sentences.
	ProseBoost float64 `yaml:"prose_boost"`
}

// IngestConfig holds ingest pipeline settings.
type IngestConfig struct {
	// MaxConcurrent bounds the number of document pipelines running at once.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var EDURAG_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the sustained per-IP request rate (requests/second).
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the maximum instantaneous per-IP burst.
	RateBurst int `yaml:"rate_burst"`
}

// StoreConfig holds document metadata store settings.
type StoreConfig struct {
	// DBPath is the SQLite database path. Set to ":memory:" for ephemeral use.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// FromEnv builds a fully-resolved Config from environment variables, filling
// every unset knob with its default. Call Load first so YAML values have been
// applied to the environment.
func FromEnv() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:   GetEnv("EMBEDDING_PROVIDER", "auto"),
			Model:      GetEnv("EMBEDDING_MODEL", "all-minilm"),
			Dimensions: GetEnvInt("EMBEDDING_DIMENSIONS", 384),
			Endpoint:   GetEnv("EMBEDDING_ENDPOINT", "http://localhost:11434"),
			BatchSize:  GetEnvInt("EMBEDDING_BATCH_SIZE", 16),
		},
		Index: IndexConfig{
			Backend:    GetEnv("INDEX_BACKEND", "qdrant"),
			Collection: GetEnv("INDEX_COLLECTION", "edu_chunks"),
		},
		Qdrant: QdrantConfig{
			Host:   GetEnv("QDRANT_HOST", "localhost"),
			Port:   GetEnvInt("QDRANT_PORT", 6334),
			APIKey: GetEnv("QDRANT_API_KEY", ""),
			TLS:    GetEnvBool("QDRANT_TLS"),
		},
		Postgres: PostgresConfig{
			DSN: GetEnv("POSTGRES_DSN", ""),
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: GetEnvInt("CHUNK_MAX_SIZE", 500),
			MinChunkSize: GetEnvInt("CHUNK_MIN_SIZE", 150),
			OverlapSize:  GetEnvInt("CHUNK_OVERLAP", 75),
			MaxSentences: GetEnvInt("CHUNK_MAX_SENTENCES", 5),
		},
		Search: SearchConfig{
			Threshold:      GetEnvFloat("SEARCH_THRESHOLD", 0.15),
			Limit:          GetEnvInt("SEARCH_LIMIT", 10),
			HeadingBoost:   GetEnvFloat("SEARCH_HEADING_BOOST", 0.10),
			SectionBoost:   GetEnvFloat("SEARCH_SECTION_BOOST", 0.15),
			EarlyPageBoost: GetEnvFloat("SEARCH_EARLY_PAGE_BOOST", 0.05),
			ShortPenalty:   GetEnvFloat("SEARCH_SHORT_PENALTY", 0.10),
			ProseBoost:     GetEnvFloat("SEARCH_PROSE_BOOST", 0.05),
		},
		Ingest: IngestConfig{
			MaxConcurrent: GetEnvInt("INGEST_MAX_CONCURRENT", 2),
		},
		Server: ServerConfig{
			Host:      GetEnv("SERVER_HOST", "0.0.0.0"),
			Port:      GetEnvInt("SERVER_PORT", 8080),
			APIKey:    GetEnv("EDURAG_API_KEY", ""),
			RateLimit: GetEnvFloat("SERVER_RATE_LIMIT", 10),
			RateBurst: GetEnvInt("SERVER_RATE_BURST", 20),
		},
		Store: StoreConfig{
			DBPath: GetEnv("EDURAG_DB", ""),
		},
		Logging: LoggingConfig{
			Level:  GetEnv("LOG_LEVEL", "info"),
			Format: GetEnv("LOG_FORMAT", "json"),
		},
	}
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"INDEX_COLLECTION", func(c *Config) string { return c.Index.Collection }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"POSTGRES_DSN", func(c *Config) string { return c.Postgres.DSN }},
	{"CHUNK_MAX_SIZE", func(c *Config) string { return intStr(c.Chunking.MaxChunkSize) }},
	{"CHUNK_MIN_SIZE", func(c *Config) string { return intStr(c.Chunking.MinChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.OverlapSize) }},
	{"CHUNK_MAX_SENTENCES", func(c *Config) string { return intStr(c.Chunking.MaxSentences) }},
	{"SEARCH_THRESHOLD", func(c *Config) string { return floatStr(c.Search.Threshold) }},
	{"SEARCH_LIMIT", func(c *Config) string { return intStr(c.Search.Limit) }},
	{"SEARCH_HEADING_BOOST", func(c *Config) string { return floatStr(c.Search.HeadingBoost) }},
	{"SEARCH_SECTION_BOOST", func(c *Config) string { return floatStr(c.Search.SectionBoost) }},
	{"SEARCH_EARLY_PAGE_BOOST", func(c *Config) string { return floatStr(c.Search.EarlyPageBoost) }},
	{"SEARCH_SHORT_PENALTY", func(c *Config) string { return floatStr(c.Search.ShortPenalty) }},
	{"SEARCH_PROSE_BOOST", func(c *Config) string { return floatStr(c.Search.ProseBoost) }},
	{"INGEST_MAX_CONCURRENT", func(c *Config) string { return intStr(c.Ingest.MaxConcurrent) }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"EDURAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"SERVER_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"SERVER_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"EDURAG_DB", func(c *Config) string { return c.Store.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("EDURAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".edurag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("edurag.yaml"); err == nil {
		return "edurag.yaml"
	}

	return ""
}

// GetEnv returns the value of the named environment variable, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func GetEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// GetEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func GetEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvBool returns true when the named environment variable is "true" or "1".
func GetEnvBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1"
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float64 to string, returning "" for zero values.
// Negative values (the short-fragment penalty) are preserved.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
