package postgres

import (
	"context"
	"database/sql"
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
		vectorStr := vectorToString(chunk.Embedding)

		if m.kind == store.KindKnowledge {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO knowledge_memory
				(id, toy_id, agent_id, chunk_text, chunk_index, embedding, content_type,
				 source_file_id, original_filename, file_size, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				chunk.ID, chunk.ToyID, chunk.AgentID, chunk.Text, chunk.ChunkIndex,
				vectorStr, chunk.ContentType,
				chunk.SourceFileID, chunk.OriginalFilename, chunk.FileSize, now, now)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO context_memory
				(id, toy_id, chunk_text, chunk_index, embedding, content_type, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				chunk.ID, chunk.ToyID, chunk.Text, chunk.ChunkIndex,
				vectorStr, chunk.ContentType, now, now)
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
	whereClause, args := buildScopeClause(m.kind, scope, 1)

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		%s
		ORDER BY chunk_index ASC, created_at ASC, id ASC`, m.columns(), m.table, whereClause)

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, offset)
	}

	rows, err := m.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ReadByScope: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return m.scanChunks(rows, false)
}

func (m *memoryTable) DeleteByScope(ctx context.Context, scope store.Scope) error {
	whereClause, args := buildScopeClause(m.kind, scope, 1)

	_, err := m.client.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s %s", m.table, whereClause), args...)
	if err != nil {
		return fmt.Errorf("DeleteByScope: %w", err)
	}
	return nil
}

// SimilarityQuery runs cosine ranking in SQL. The <=> operator returns
// cosine distance, so score = 1 - distance; ordering by distance ascending
// matches score descending.
func (m *memoryTable) SimilarityQuery(ctx context.Context, embedding []float64, opts *store.QueryOptions) ([]*store.Chunk, error) {
	if opts == nil {
		opts = &store.QueryOptions{}
	}

	args := []interface{}{vectorToString(embedding)}
	whereClause, scopeArgs := buildScopeClause(m.kind, opts.Scope, 2)
	args = append(args, scopeArgs...)

	if whereClause == "" {
		whereClause = "WHERE embedding IS NOT NULL"
	} else {
		whereClause += " AND embedding IS NOT NULL"
	}
	whereClause += fmt.Sprintf(" AND (1 - (embedding <=> $1)) >= $%d", len(args)+1)
	args = append(args, opts.Threshold)

	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1 ASC, created_at ASC, id ASC`,
		m.columns(), m.table, whereClause)

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := m.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SimilarityQuery: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return m.scanChunks(rows, true)
}

// ReadBySourceFile returns one upload's chunks in chunk_index order.
func (m *memoryTable) ReadBySourceFile(ctx context.Context, fileID string) ([]*store.Chunk, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE source_file_id = $1
		ORDER BY chunk_index ASC`, m.columns(), m.table)

	rows, err := m.client.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("ReadBySourceFile: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return m.scanChunks(rows, false)
}

// DeleteBySourceFile removes all chunks from one upload.
func (m *memoryTable) DeleteBySourceFile(ctx context.Context, fileID string) error {
	_, err := m.client.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE source_file_id = $1", m.table), fileID)
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

func (m *memoryTable) scanChunks(rows *sql.Rows, hasScore bool) ([]*store.Chunk, error) {
	var chunks []*store.Chunk
	for rows.Next() {
		var chunk store.Chunk
		var embeddingStr sql.NullString
		var contentType sql.NullString

		dest := []interface{}{&chunk.ID, &chunk.ToyID}
		var sourceFileID, originalFilename sql.NullString
		var fileSize sql.NullInt64
		if m.kind == store.KindKnowledge {
			dest = append(dest, &chunk.AgentID)
		}
		dest = append(dest, &chunk.Text, &chunk.ChunkIndex, &embeddingStr, &contentType)
		if m.kind == store.KindKnowledge {
			dest = append(dest, &sourceFileID, &originalFilename, &fileSize)
		}
		dest = append(dest, &chunk.CreatedAt, &chunk.UpdatedAt)
		if hasScore {
			dest = append(dest, &chunk.Score)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanChunks: %w", err)
		}

		chunk.ContentType = contentType.String
		chunk.SourceFileID = sourceFileID.String
		chunk.OriginalFilename = originalFilename.String
		chunk.FileSize = fileSize.Int64

		if embeddingStr.Valid && embeddingStr.String != "" {
			embedding, err := stringToVector(embeddingStr.String)
			if err != nil {
				return nil, fmt.Errorf("scanChunks: parse embedding: %w", err)
			}
			chunk.Embedding = embedding
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}
