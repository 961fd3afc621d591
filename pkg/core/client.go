package core

import (
	"io"
	"log/slog"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/dgraph-io/ristretto"

	"github.com/toybox-labs/toymem-go/pkg/chunker"
	"github.com/toybox-labs/toymem-go/pkg/embedder"
	mockEmbedder "github.com/toybox-labs/toymem-go/pkg/embedder/mock"
	openaiEmbedder "github.com/toybox-labs/toymem-go/pkg/embedder/openai"
	"github.com/toybox-labs/toymem-go/pkg/store"
	oceanbaseStore "github.com/toybox-labs/toymem-go/pkg/store/oceanbase"
	postgresStore "github.com/toybox-labs/toymem-go/pkg/store/postgres"
	sqliteStore "github.com/toybox-labs/toymem-go/pkg/store/sqlite"
)

// Client is the main ToyMem client.
//
// It provides a complete interface for memory ingestion and retrieval:
//   - Chunked ingestion into context and knowledge memory
//   - Unified similarity search across both memory pools
//   - An append-only conversation log per agent
//   - Citations linking logged messages to the memory chunks behind them
//
// The client is safe for concurrent use from multiple goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	_, _ = client.IngestContext(ctx, "toy_001", "The sky was overcast today.")
//	resp, _ := client.Search(ctx, "weather", core.WithToyID("toy_001"))
type Client struct {
	config *Config

	contextStore   store.MemoryStore
	knowledgeStore store.KnowledgeStore
	conversations  store.ConversationStore
	citations      store.CitationStore

	embedder embedder.Provider

	// detachedRefs is set when citations live in a different database
	// than the memory pools, so chunk deletion cannot rely on foreign
	// keys to null dangling citation references.
	detachedRefs bool

	// queryCache memoizes query embeddings so repeated searches for the
	// same text skip the provider round trip.
	queryCache *ristretto.Cache

	node   *snowflake.Node
	logger *slog.Logger

	closers []io.Closer
}

// NewClient creates a new ToyMem client.
//
// Zero-valued chunking, search and retry sections are filled with
// defaults before validation, so a minimal Config only needs the
// embedder and store sections.
func NewClient(cfg *Config) (*Client, error) {
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		config: cfg,
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "toymem"),
	}

	if err := client.initStore(cfg); err != nil {
		return nil, err
	}

	provider, err := initEmbedder(cfg.Embedder)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	client.embedder = provider

	node, err := snowflake.NewNode(1)
	if err != nil {
		_ = client.Close()
		return nil, NewEngineError("NewClient", err)
	}
	client.node = node

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		_ = client.Close()
		return nil, NewEngineError("NewClient", err)
	}
	client.queryCache = cache

	return client, nil
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = chunker.DefaultChunkSize
		if cfg.Chunking.Overlap == 0 {
			cfg.Chunking.Overlap = chunker.DefaultChunkOverlap
		}
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = DefaultTopK
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.BaseBackoffMS == 0 {
		cfg.Retry.BaseBackoffMS = DefaultBackoffMS
	}
}

func (c *Client) initStore(cfg *Config) error {
	switch cfg.Store.Provider {
	case "sqlite":
		sc, err := sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             cfg.Store.SQLite.DBPath,
			EmbeddingModelDims: cfg.Embedder.Dimensions,
		})
		if err != nil {
			return NewEngineError("NewClient", err)
		}
		c.contextStore = sc.ContextMemory()
		c.knowledgeStore = sc.KnowledgeMemory()
		c.conversations = sc.Conversations()
		c.citations = sc.Citations()
		c.closers = append(c.closers, sc)

	case "postgres":
		pc, err := postgresStore.NewClient(&postgresStore.Config{
			Host:               cfg.Store.Postgres.Host,
			Port:               cfg.Store.Postgres.Port,
			User:               cfg.Store.Postgres.User,
			Password:           cfg.Store.Postgres.Password,
			DBName:             cfg.Store.Postgres.DBName,
			SSLMode:            cfg.Store.Postgres.SSLMode,
			EmbeddingModelDims: cfg.Embedder.Dimensions,
		})
		if err != nil {
			return NewEngineError("NewClient", err)
		}
		c.contextStore = pc.ContextMemory()
		c.knowledgeStore = pc.KnowledgeMemory()
		c.conversations = pc.Conversations()
		c.citations = pc.Citations()
		c.closers = append(c.closers, pc)

	case "oceanbase":
		// OceanBase holds the vector pools; logs and citations ride a
		// SQLite file next to the process.
		oc, err := oceanbaseStore.NewClient(&oceanbaseStore.Config{
			Host:               cfg.Store.OceanBase.Host,
			Port:               cfg.Store.OceanBase.Port,
			User:               cfg.Store.OceanBase.User,
			Password:           cfg.Store.OceanBase.Password,
			DBName:             cfg.Store.OceanBase.DBName,
			EmbeddingModelDims: cfg.Embedder.Dimensions,
		})
		if err != nil {
			return NewEngineError("NewClient", err)
		}
		c.contextStore = oc.ContextMemory()
		c.knowledgeStore = oc.KnowledgeMemory()
		c.closers = append(c.closers, oc)

		logPath := cfg.Store.OceanBase.LogDBPath
		if logPath == "" {
			logPath = "./toymem-logs.db"
		}
		lc, err := sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             logPath,
			EmbeddingModelDims: cfg.Embedder.Dimensions,
			ExternalChunkRefs:  true,
		})
		if err != nil {
			return NewEngineError("NewClient", err)
		}
		c.conversations = lc.Conversations()
		c.citations = lc.Citations()
		c.detachedRefs = true
		c.closers = append(c.closers, lc)

	default:
		return NewEngineError("NewClient", ErrInvalidConfig)
	}
	return nil
}

func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		provider, err := openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, NewEngineError("NewClient", err)
		}
		return provider, nil
	case "mock":
		return mockEmbedder.New(cfg.Dimensions), nil
	default:
		return nil, NewEngineError("NewClient", ErrInvalidConfig)
	}
}

// ContextMemory exposes the toy-scoped context memory pool.
func (c *Client) ContextMemory() store.MemoryStore {
	return c.contextStore
}

// KnowledgeMemory exposes the agent-scoped knowledge memory pool.
func (c *Client) KnowledgeMemory() store.KnowledgeStore {
	return c.knowledgeStore
}

// Close releases the embedding provider, the query cache and every store
// connection the client owns.
func (c *Client) Close() error {
	var firstErr error
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.queryCache != nil {
		c.queryCache.Close()
	}
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
