package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/toybox-labs/toymem-go/pkg/chunker"
)

// Config contains the complete configuration for a ToyMem client.
//
// It includes settings for:
//   - Embedding provider (for vector generation)
//   - Store backend (for memory, conversation and citation persistence)
//   - Chunking (segment size and overlap)
//   - Search (default result count, threshold and timeout)
//   - Retry (embedding retry policy)
//
// Example:
//
//	config := &core.Config{
//	    Embedder: core.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Model:      "text-embedding-ada-002",
//	        Dimensions: 1536,
//	    },
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        SQLite:   core.SQLiteConfig{DBPath: "./toymem.db"},
//	    },
//	}
type Config struct {
	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Store contains store backend configuration.
	Store StoreConfig `json:"store"`

	// Chunking contains text segmentation configuration.
	Chunking ChunkingConfig `json:"chunking"`

	// Search contains default search parameters.
	Search SearchConfig `json:"search"`

	// Retry contains the embedding retry policy.
	Retry RetryConfig `json:"retry"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, mock
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, mock).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g. "text-embedding-ada-002").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default
	// if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors. The store is
	// created with the same fixed dimension.
	Dimensions int `json:"dimensions,omitempty"`
}

// StoreConfig contains configuration for the store backend.
//
// Supported providers: sqlite, postgres, oceanbase
type StoreConfig struct {
	// Provider is the store backend name (sqlite, postgres, oceanbase).
	Provider string `json:"provider"`

	// SQLite contains SQLite settings (used when Provider is "sqlite").
	SQLite SQLiteConfig `json:"sqlite,omitempty"`

	// Postgres contains PostgreSQL settings (used when Provider is
	// "postgres").
	Postgres PostgresConfig `json:"postgres,omitempty"`

	// OceanBase contains OceanBase settings (used when Provider is
	// "oceanbase").
	OceanBase OceanBaseConfig `json:"oceanbase,omitempty"`
}

// SQLiteConfig contains SQLite backend settings.
type SQLiteConfig struct {
	// DBPath is the path to the database file.
	DBPath string `json:"db_path"`
}

// PostgresConfig contains PostgreSQL backend settings.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode,omitempty"`
}

// OceanBaseConfig contains OceanBase backend settings.
//
// OceanBase serves the two memory pools only; the conversation log and
// citations are kept in a SQLite file at LogDBPath.
type OceanBaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`

	// LogDBPath is the SQLite file holding conversation logs and
	// citations when OceanBase backs the memory pools.
	LogDBPath string `json:"log_db_path,omitempty"`
}

// ChunkingConfig contains text segmentation settings.
type ChunkingConfig struct {
	// Size is the maximum segment length in characters.
	Size int `json:"size"`

	// Overlap is the number of characters shared between consecutive
	// segments. Must be smaller than Size.
	Overlap int `json:"overlap"`
}

// SearchConfig contains default search parameters.
type SearchConfig struct {
	// TopK is the default maximum number of merged results.
	TopK int `json:"top_k"`

	// Threshold is the default minimum similarity score.
	Threshold float64 `json:"threshold"`

	// TimeoutMS bounds a single search in milliseconds. Zero disables the
	// per-search deadline.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// RetryConfig contains the embedding retry policy.
type RetryConfig struct {
	// MaxAttempts is the total number of embedding attempts per batch.
	MaxAttempts int `json:"max_attempts"`

	// BaseBackoffMS is the first retry delay; each subsequent delay
	// doubles, capped at 10 seconds.
	BaseBackoffMS int `json:"base_backoff_ms"`
}

// Default search and retry parameters.
const (
	DefaultTopK        = 5
	DefaultThreshold   = 0.0
	DefaultMaxAttempts = 3
	DefaultBackoffMS   = 200
)

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, oceanbase)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD,
//     OCEANBASE_DATABASE, OCEANBASE_LOG_DB_PATH
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - CHUNK_SIZE, CHUNK_OVERLAP
//   - SEARCH_TOP_K, SEARCH_THRESHOLD, SEARCH_TIMEOUT_MS
//   - EMBED_RETRY_ATTEMPTS, EMBED_RETRY_BACKOFF_MS
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	storeConfig := StoreConfig{Provider: provider}
	switch provider {
	case "sqlite":
		storeConfig.SQLite = SQLiteConfig{
			DBPath: getEnvOrDefault("SQLITE_PATH", "./toymem.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig.Postgres = PostgresConfig{
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     port,
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   getEnvOrDefault("POSTGRES_DATABASE", "toymem"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "oceanbase":
		port, _ := strconv.Atoi(getEnvOrDefault("OCEANBASE_PORT", "2881"))
		storeConfig.OceanBase = OceanBaseConfig{
			Host:      getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1"),
			Port:      port,
			User:      getEnvOrDefault("OCEANBASE_USER", "root@sys"),
			Password:  os.Getenv("OCEANBASE_PASSWORD"),
			DBName:    getEnvOrDefault("OCEANBASE_DATABASE", "toymem"),
			LogDBPath: getEnvOrDefault("OCEANBASE_LOG_DB_PATH", "./toymem-logs.db"),
		}
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	embedderModel := os.Getenv("EMBEDDING_MODEL")
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "0"))
	if embedderProvider == "openai" {
		if embedderModel == "" {
			embedderModel = "text-embedding-ada-002"
		}
		if dims == 0 {
			dims = 1536
		}
	}
	if dims == 0 {
		dims = 384
	}

	chunkSize, _ := strconv.Atoi(getEnvOrDefault("CHUNK_SIZE",
		strconv.Itoa(chunker.DefaultChunkSize)))
	chunkOverlap, _ := strconv.Atoi(getEnvOrDefault("CHUNK_OVERLAP",
		strconv.Itoa(chunker.DefaultChunkOverlap)))

	topK, _ := strconv.Atoi(getEnvOrDefault("SEARCH_TOP_K", strconv.Itoa(DefaultTopK)))
	threshold, _ := strconv.ParseFloat(getEnvOrDefault("SEARCH_THRESHOLD", "0"), 64)
	timeoutMS, _ := strconv.Atoi(getEnvOrDefault("SEARCH_TIMEOUT_MS", "0"))

	attempts, _ := strconv.Atoi(getEnvOrDefault("EMBED_RETRY_ATTEMPTS",
		strconv.Itoa(DefaultMaxAttempts)))
	backoff, _ := strconv.Atoi(getEnvOrDefault("EMBED_RETRY_BACKOFF_MS",
		strconv.Itoa(DefaultBackoffMS)))

	return &Config{
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      embedderModel,
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		Store: storeConfig,
		Chunking: ChunkingConfig{
			Size:    chunkSize,
			Overlap: chunkOverlap,
		},
		Search: SearchConfig{
			TopK:      topK,
			Threshold: threshold,
			TimeoutMS: timeoutMS,
		},
		Retry: RetryConfig{
			MaxAttempts:   attempts,
			BaseBackoffMS: backoff,
		},
	}, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that the embedding and store providers are set, the embedding
// dimension is positive, the chunk overlap is smaller than the chunk size
// and the search defaults are in range.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Embedder.Dimensions <= 0 {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	switch c.Store.Provider {
	case "sqlite", "postgres", "oceanbase":
	default:
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Chunking.Size <= 0 || c.Chunking.Overlap < 0 ||
		c.Chunking.Overlap >= c.Chunking.Size {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Search.TopK <= 0 {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts <= 0 {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search checks the current directory first, then walks up to 5
// directory levels, returning the first match.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
