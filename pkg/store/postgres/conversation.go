package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// conversationTable implements store.ConversationStore.
type conversationTable struct {
	client *Client
}

func (t *conversationTable) AppendMessage(ctx context.Context, msg *store.Message) error {
	now := time.Now().UTC()
	_, err := t.client.db.ExecContext(ctx, `
		INSERT INTO conversation_logs (id, agent_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.AgentID, string(msg.Role), msg.Content, now)
	if err != nil {
		return fmt.Errorf("AppendMessage: %w", err)
	}
	msg.CreatedAt = now
	return nil
}

func (t *conversationTable) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	row := t.client.db.QueryRowContext(ctx, `
		SELECT id, agent_id, role, content, created_at
		FROM conversation_logs WHERE id = $1`, id)

	var msg store.Message
	var role string
	var content sql.NullString
	err := row.Scan(&msg.ID, &msg.AgentID, &role, &content, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetMessage: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetMessage: %w", err)
	}
	msg.Role = store.Role(role)
	msg.Content = content.String
	return &msg, nil
}

func (t *conversationTable) ListByAgent(ctx context.Context, agentID string, opts *store.HistoryOptions) ([]*store.Message, error) {
	if opts == nil {
		opts = &store.HistoryOptions{}
	}

	query := `SELECT id, agent_id, role, content, created_at
		FROM conversation_logs WHERE agent_id = $1`
	args := []interface{}{agentID}

	if opts.After != nil {
		query += fmt.Sprintf(" AND created_at > $%d", len(args)+1)
		args = append(args, opts.After.UTC())
	}
	if opts.Before != nil {
		query += fmt.Sprintf(" AND created_at < $%d", len(args)+1)
		args = append(args, opts.Before.UTC())
	}

	query += " ORDER BY created_at ASC, id ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := t.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListByAgent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessages(rows)
}

func (t *conversationTable) Recent(ctx context.Context, agentID string, n int) ([]*store.Message, error) {
	rows, err := t.client.db.QueryContext(ctx, `
		SELECT id, agent_id, role, content, created_at
		FROM conversation_logs
		WHERE agent_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, agentID, n)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (t *conversationTable) Clear(ctx context.Context, agentID string, keepSystem bool) (int64, error) {
	query := "DELETE FROM conversation_logs WHERE agent_id = $1"
	args := []interface{}{agentID}
	if keepSystem {
		query += " AND role != $2"
		args = append(args, string(store.RoleSystem))
	}

	result, err := t.client.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("Clear: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Clear: %w", err)
	}
	return removed, nil
}

// citationTable implements store.CitationStore.
type citationTable struct {
	client *Client
}

func (t *citationTable) InsertCitations(ctx context.Context, citations []*store.Citation) error {
	for _, c := range citations {
		if c.Ref == nil {
			return fmt.Errorf("InsertCitations: %w", store.ErrInvalidRef)
		}
	}

	tx, err := t.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("InsertCitations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, c := range citations {
		var contextID, knowledgeID sql.NullInt64
		if c.Ref.Kind == store.KindKnowledge {
			knowledgeID = sql.NullInt64{Int64: c.Ref.ChunkID, Valid: true}
		} else {
			contextID = sql.NullInt64{Int64: c.Ref.ChunkID, Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO message_citations
			(id, log_id, context_memory_id, knowledge_memory_id, relevance_score, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.LogID, contextID, knowledgeID, c.Score, now)
		if err != nil {
			return fmt.Errorf("InsertCitations: %w", err)
		}
		c.CreatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("InsertCitations: %w", err)
	}
	return nil
}

func (t *citationTable) ListByLog(ctx context.Context, logID int64, limit int) ([]*store.Citation, error) {
	query := `
		SELECT id, log_id, context_memory_id, knowledge_memory_id, relevance_score, created_at
		FROM message_citations
		WHERE log_id = $1
		ORDER BY relevance_score DESC, id ASC`
	args := []interface{}{logID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := t.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListByLog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanCitations(rows)
}

func (t *citationTable) ListByChunk(ctx context.Context, ref store.ChunkRef) ([]*store.Citation, error) {
	column := "context_memory_id"
	if ref.Kind == store.KindKnowledge {
		column = "knowledge_memory_id"
	}

	rows, err := t.client.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, log_id, context_memory_id, knowledge_memory_id, relevance_score, created_at
		FROM message_citations
		WHERE %s = $1
		ORDER BY created_at ASC, id ASC`, column), ref.ChunkID)
	if err != nil {
		return nil, fmt.Errorf("ListByChunk: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanCitations(rows)
}

func (t *citationTable) DetachRefs(ctx context.Context, kind store.MemoryKind, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	column := "context_memory_id"
	if kind == store.KindKnowledge {
		column = "knowledge_memory_id"
	}

	_, err := t.client.db.ExecContext(ctx, fmt.Sprintf(
		"UPDATE message_citations SET %s = NULL WHERE %s = ANY($1)",
		column, column), pq.Array(chunkIDs))
	if err != nil {
		return fmt.Errorf("DetachRefs: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]*store.Message, error) {
	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var role string
		var content sql.NullString
		if err := rows.Scan(&msg.ID, &msg.AgentID, &role, &content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanMessages: %w", err)
		}
		msg.Role = store.Role(role)
		msg.Content = content.String
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func scanCitations(rows *sql.Rows) ([]*store.Citation, error) {
	var citations []*store.Citation
	for rows.Next() {
		var c store.Citation
		var contextID, knowledgeID sql.NullInt64
		var score sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.LogID, &contextID, &knowledgeID, &score, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanCitations: %w", err)
		}
		c.Score = score.Float64
		switch {
		case contextID.Valid:
			c.Ref = &store.ChunkRef{Kind: store.KindContext, ChunkID: contextID.Int64}
		case knowledgeID.Valid:
			c.Ref = &store.ChunkRef{Kind: store.KindKnowledge, ChunkID: knowledgeID.Int64}
		}
		citations = append(citations, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return citations, nil
}
