package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// memoryTable implements store.MemoryStore (and store.KnowledgeStore for
// the knowledge table) against one of the two chunk tables.
type memoryTable struct {
	client *Client
	kind   store.MemoryKind
	table  string
}

func (m *memoryTable) Kind() store.MemoryKind {
	return m.kind
}

func (m *memoryTable) Dimensions() int {
	return m.client.dimensions
}

// WriteChunks inserts the batch inside a single transaction so an upload
// never leaves a partial chunk_index run behind.
func (m *memoryTable) WriteChunks(ctx context.Context, chunks []*store.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) != m.client.dimensions {
			return fmt.Errorf("WriteChunks: chunk %d has %d dims, store expects %d: %w",
				chunk.ChunkIndex, len(chunk.Embedding), m.client.dimensions, store.ErrDimensionMismatch)
		}
	}

	tx, err := m.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WriteChunks: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("WriteChunks: %w", err)
		}

		if m.kind == store.KindKnowledge {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO knowledge_memory
				(id, toy_id, agent_id, chunk_text, chunk_index, embedding, content_type,
				 source_file_id, original_filename, file_size, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				chunk.ID, chunk.ToyID, chunk.AgentID, chunk.Text, chunk.ChunkIndex,
				string(embeddingJSON), chunk.ContentType,
				chunk.SourceFileID, chunk.OriginalFilename, chunk.FileSize, now, now)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO context_memory
				(id, toy_id, chunk_text, chunk_index, embedding, content_type, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				chunk.ID, chunk.ToyID, chunk.Text, chunk.ChunkIndex,
				string(embeddingJSON), chunk.ContentType, now, now)
		}
		if err != nil {
			return fmt.Errorf("WriteChunks: %w", err)
		}
		chunk.CreatedAt = now
		chunk.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("WriteChunks: %w", err)
	}
	return nil
}

func (m *memoryTable) ReadByScope(ctx context.Context, scope store.Scope, limit, offset int) ([]*store.Chunk, error) {
	whereClause, args := buildScopeClause(m.kind, scope)
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		%s
		ORDER BY chunk_index ASC, created_at ASC, id ASC
		LIMIT ? OFFSET ?`, m.columns(), m.table, whereClause)
	args = append(args, limit, offset)

	rows, err := m.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ReadByScope: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return m.scanChunks(rows)
}

func (m *memoryTable) DeleteByScope(ctx context.Context, scope store.Scope) error {
	whereClause, args := buildScopeClause(m.kind, scope)

	_, err := m.client.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s %s", m.table, whereClause), args...)
	if err != nil {
		return fmt.Errorf("DeleteByScope: %w", err)
	}
	return nil
}

// SimilarityQuery loads the scoped candidate set and ranks it in memory.
func (m *memoryTable) SimilarityQuery(ctx context.Context, embedding []float64, opts *store.QueryOptions) ([]*store.Chunk, error) {
	if opts == nil {
		opts = &store.QueryOptions{}
	}

	whereClause, args := buildScopeClause(m.kind, opts.Scope)
	if whereClause == "" {
		whereClause = "WHERE embedding IS NOT NULL"
	} else {
		whereClause += " AND embedding IS NOT NULL"
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s", m.columns(), m.table, whereClause)

	rows, err := m.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SimilarityQuery: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := m.scanChunks(rows)
	if err != nil {
		return nil, err
	}

	var qualified []*store.Chunk
	for _, chunk := range candidates {
		// Rows written under a different embedding dimension are not
		// comparable to the query vector and never qualify.
		if len(chunk.Embedding) != len(embedding) {
			continue
		}
		score := cosineSimilarity(embedding, chunk.Embedding)
		if score >= opts.Threshold {
			chunk.Score = score
			qualified = append(qualified, chunk)
		}
	}

	return rankChunks(qualified, opts.Limit, opts.Offset), nil
}

// ReadBySourceFile returns one upload's chunks in chunk_index order.
// Only meaningful for the knowledge table.
func (m *memoryTable) ReadBySourceFile(ctx context.Context, fileID string) ([]*store.Chunk, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE source_file_id = ?
		ORDER BY chunk_index ASC`, m.columns(), m.table)

	rows, err := m.client.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("ReadBySourceFile: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return m.scanChunks(rows)
}

// DeleteBySourceFile removes all chunks from one upload.
func (m *memoryTable) DeleteBySourceFile(ctx context.Context, fileID string) error {
	_, err := m.client.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE source_file_id = ?", m.table), fileID)
	if err != nil {
		return fmt.Errorf("DeleteBySourceFile: %w", err)
	}
	return nil
}

func (m *memoryTable) columns() string {
	if m.kind == store.KindKnowledge {
		return `id, toy_id, agent_id, chunk_text, chunk_index, embedding, content_type,
			source_file_id, original_filename, file_size, created_at, updated_at`
	}
	return "id, toy_id, chunk_text, chunk_index, embedding, content_type, created_at, updated_at"
}

func (m *memoryTable) scanChunks(rows *sql.Rows) ([]*store.Chunk, error) {
	var chunks []*store.Chunk
	for rows.Next() {
		var chunk store.Chunk
		var embeddingStr sql.NullString
		var contentType sql.NullString
		var err error

		if m.kind == store.KindKnowledge {
			var sourceFileID, originalFilename sql.NullString
			var fileSize sql.NullInt64
			err = rows.Scan(
				&chunk.ID, &chunk.ToyID, &chunk.AgentID, &chunk.Text, &chunk.ChunkIndex,
				&embeddingStr, &contentType,
				&sourceFileID, &originalFilename, &fileSize,
				&chunk.CreatedAt, &chunk.UpdatedAt,
			)
			chunk.SourceFileID = sourceFileID.String
			chunk.OriginalFilename = originalFilename.String
			chunk.FileSize = fileSize.Int64
		} else {
			err = rows.Scan(
				&chunk.ID, &chunk.ToyID, &chunk.Text, &chunk.ChunkIndex,
				&embeddingStr, &contentType,
				&chunk.CreatedAt, &chunk.UpdatedAt,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("scanChunks: %w", err)
		}

		chunk.ContentType = contentType.String
		if embeddingStr.Valid && embeddingStr.String != "" {
			if err := json.Unmarshal([]byte(embeddingStr.String), &chunk.Embedding); err != nil {
				return nil, fmt.Errorf("scanChunks: parse embedding: %w", err)
			}
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}
