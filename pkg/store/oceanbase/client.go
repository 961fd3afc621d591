// Package oceanbase implements the two memory pools on OceanBase, which
// speaks the MySQL protocol and supports native VECTOR columns with
// cosine_distance search.
//
// This backend covers chunk storage and similarity search only:
// deployments using OceanBase as a dedicated vector store keep the
// conversation log and citations on their relational primary (see the
// sqlite and postgres packages).
package oceanbase

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// Client owns the OceanBase connection holding both memory pools.
type Client struct {
	db         *sql.DB
	dimensions int
}

// Config contains OceanBase connection settings.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	EmbeddingModelDims int
}

// NewClient connects to OceanBase and initializes the chunk tables.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	client := &Client{db: db, dimensions: cfg.EmbeddingModelDims}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS context_memory (
			id BIGINT PRIMARY KEY,
			toy_id VARCHAR(128) NOT NULL,
			chunk_text LONGTEXT NOT NULL,
			chunk_index INT NOT NULL DEFAULT 0,
			embedding VECTOR(%d),
			content_type VARCHAR(128),
			created_at DATETIME(6),
			updated_at DATETIME(6),
			INDEX idx_context_memory_toy (toy_id)
		)`, c.dimensions),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_memory (
			id BIGINT PRIMARY KEY,
			toy_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			chunk_text LONGTEXT NOT NULL,
			chunk_index INT NOT NULL DEFAULT 0,
			embedding VECTOR(%d),
			content_type VARCHAR(128),
			source_file_id VARCHAR(128),
			original_filename VARCHAR(512),
			file_size BIGINT,
			created_at DATETIME(6),
			updated_at DATETIME(6),
			INDEX idx_knowledge_memory_agent_toy (agent_id, toy_id),
			INDEX idx_knowledge_memory_file (source_file_id)
		)`, c.dimensions),
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

// CreateVectorIndex creates an HNSW cosine index on a memory table for
// faster approximate search on large pools.
func (c *Client) CreateVectorIndex(ctx context.Context, kind store.MemoryKind, m, efConstruction int) error {
	table := "context_memory"
	if kind == store.KindKnowledge {
		table = "knowledge_memory"
	}

	query := fmt.Sprintf(`
		CREATE VECTOR INDEX idx_%s_embedding ON %s (embedding) WITH (
			index_type = HNSW,
			M = %d,
			efConstruction = %d,
			metric_type = cosine
		)`, table, table, m, efConstruction)

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
