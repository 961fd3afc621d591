// Package sqlite implements the full storage boundary on SQLite.
//
// SQLite has no native vector operations, so embeddings are stored as
// JSON strings in TEXT columns and similarity is computed in memory after
// loading the scoped candidate set. Suitable for local development, tests,
// and small single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// Client owns the SQLite database holding both memory pools, the
// conversation log, and message citations.
type Client struct {
	db         *sql.DB
	dimensions int
}

// Config configures the SQLite client.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// EmbeddingModelDims is the fixed embedding dimension for both
	// memory pools.
	EmbeddingModelDims int

	// ExternalChunkRefs declares that cited chunks live in another
	// database. The citation schema then carries no foreign keys on its
	// chunk columns and dangling references are nulled explicitly via
	// DetachRefs instead of ON DELETE SET NULL.
	ExternalChunkRefs bool
}

// NewClient opens (creating if needed) the database and initializes the
// schema. Foreign keys are enabled so chunk deletion nulls citation
// references and message deletion cascades to citations.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{db: db, dimensions: cfg.EmbeddingModelDims}

	if err := client.initTables(context.Background(), cfg.ExternalChunkRefs); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) initTables(ctx context.Context, externalChunkRefs bool) error {
	chunkRefDDL := `context_memory_id INTEGER REFERENCES context_memory(id) ON DELETE SET NULL,
			knowledge_memory_id INTEGER REFERENCES knowledge_memory(id) ON DELETE SET NULL`
	if externalChunkRefs {
		chunkRefDDL = `context_memory_id INTEGER,
			knowledge_memory_id INTEGER`
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS context_memory (
			id INTEGER PRIMARY KEY,
			toy_id TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			embedding TEXT,
			content_type TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_context_memory_toy ON context_memory(toy_id)`,
		`CREATE TABLE IF NOT EXISTS knowledge_memory (
			id INTEGER PRIMARY KEY,
			toy_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			embedding TEXT,
			content_type TEXT,
			source_file_id TEXT,
			original_filename TEXT,
			file_size INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_memory_agent_toy ON knowledge_memory(agent_id, toy_id)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_memory_file ON knowledge_memory(source_file_id)`,
		`CREATE TABLE IF NOT EXISTS conversation_logs (
			id INTEGER PRIMARY KEY,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_logs_agent ON conversation_logs(agent_id, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS message_citations (
			id INTEGER PRIMARY KEY,
			log_id INTEGER NOT NULL REFERENCES conversation_logs(id) ON DELETE CASCADE,
			%s,
			relevance_score REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, chunkRefDDL),
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

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
