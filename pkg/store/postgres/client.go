// Package postgres implements the full storage boundary on PostgreSQL
// with the pgvector extension.
//
// Similarity search runs entirely in SQL using the <=> cosine distance
// operator, so threshold filtering and pagination are pushed down to the
// database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// Client owns the PostgreSQL database holding both memory pools, the
// conversation log, and message citations.
type Client struct {
	db         *sql.DB
	dimensions int
}

// Config contains PostgreSQL connection settings.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	EmbeddingModelDims int
	SSLMode            string
}

// NewClient connects to PostgreSQL, enables pgvector, and initializes the
// schema.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db, dimensions: cfg.EmbeddingModelDims}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS context_memory (
			id BIGINT PRIMARY KEY,
			toy_id VARCHAR(255) NOT NULL,
			chunk_text TEXT NOT NULL,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			embedding vector(%d),
			content_type VARCHAR(255),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`, c.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_context_memory_toy ON context_memory(toy_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_memory (
			id BIGINT PRIMARY KEY,
			toy_id VARCHAR(255) NOT NULL,
			agent_id VARCHAR(255) NOT NULL,
			chunk_text TEXT NOT NULL,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			embedding vector(%d),
			content_type VARCHAR(255),
			source_file_id VARCHAR(255),
			original_filename TEXT,
			file_size BIGINT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`, c.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_knowledge_memory_agent_toy ON knowledge_memory(agent_id, toy_id)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_memory_file ON knowledge_memory(source_file_id)`,
		`CREATE TABLE IF NOT EXISTS conversation_logs (
			id BIGINT PRIMARY KEY,
			agent_id VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			content TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_logs_agent ON conversation_logs(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS message_citations (
			id BIGINT PRIMARY KEY,
			log_id BIGINT NOT NULL REFERENCES conversation_logs(id) ON DELETE CASCADE,
			context_memory_id BIGINT REFERENCES context_memory(id) ON DELETE SET NULL,
			knowledge_memory_id BIGINT REFERENCES knowledge_memory(id) ON DELETE SET NULL,
			relevance_score DOUBLE PRECISION,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_citations_log ON message_citations(log_id)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// ContextMemory returns the toy-scoped context memory pool.
func (c *Client) ContextMemory() store.MemoryStore {
	return &memoryTable{client: c, kind: store.KindContext, table: "context_memory"}
}

// KnowledgeMemory returns the agent-scoped knowledge memory pool.
func (c *Client) KnowledgeMemory() store.KnowledgeStore {
	return &memoryTable{client: c, kind: store.KindKnowledge, table: "knowledge_memory"}
}

// Conversations returns the conversation log store.
func (c *Client) Conversations() store.ConversationStore {
	return &conversationTable{client: c}
}

// Citations returns the citation store.
func (c *Client) Citations() store.CitationStore {
	return &citationTable{client: c}
}

// CreateVectorIndex creates an HNSW cosine index on a memory table's
// embedding column for faster similarity search on large pools.
func (c *Client) CreateVectorIndex(ctx context.Context, kind store.MemoryKind, m, efConstruction int) error {
	table := "context_memory"
	if kind == store.KindKnowledge {
		table = "knowledge_memory"
	}

	query := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = %d, ef_construction = %d)`, table, table, m, efConstruction)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("CreateVectorIndex: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
