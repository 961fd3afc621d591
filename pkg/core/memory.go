package core

import (
	"context"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// ContextChunks returns a toy's context memory in chunk order.
// limit <= 0 means all.
func (c *Client) ContextChunks(ctx context.Context, toyID string, limit, offset int) ([]*store.Chunk, error) {
	if toyID == "" {
		return nil, NewEngineError("ContextChunks", ErrInvalidInput)
	}
	chunks, err := c.contextStore.ReadByScope(ctx, store.Scope{ToyID: toyID}, limit, offset)
	if err != nil {
		return nil, NewEngineError("ContextChunks", err)
	}
	return chunks, nil
}

// KnowledgeChunks returns an agent's knowledge memory in chunk order.
// limit <= 0 means all.
func (c *Client) KnowledgeChunks(ctx context.Context, toyID, agentID string, limit, offset int) ([]*store.Chunk, error) {
	if agentID == "" {
		return nil, NewEngineError("KnowledgeChunks", ErrInvalidInput)
	}
	scope := store.Scope{ToyID: toyID, AgentID: agentID}
	chunks, err := c.knowledgeStore.ReadByScope(ctx, scope, limit, offset)
	if err != nil {
		return nil, NewEngineError("KnowledgeChunks", err)
	}
	return chunks, nil
}

// DeleteContext removes a toy's entire context memory. Citations pointing
// at removed chunks keep their rows with nulled references.
func (c *Client) DeleteContext(ctx context.Context, toyID string) error {
	if toyID == "" {
		return NewEngineError("DeleteContext", ErrInvalidInput)
	}
	scope := store.Scope{ToyID: toyID}
	doomed, err := c.doomedChunkIDs(ctx, c.contextStore, scope)
	if err != nil {
		return NewEngineError("DeleteContext", err)
	}
	if err := c.contextStore.DeleteByScope(ctx, scope); err != nil {
		return NewEngineError("DeleteContext", err)
	}
	if err := c.detachCitations(ctx, store.KindContext, doomed); err != nil {
		return NewEngineError("DeleteContext", err)
	}
	c.logger.Info("context memory deleted", "toy_id", toyID)
	return nil
}

// DeleteKnowledge removes an agent's entire knowledge memory.
func (c *Client) DeleteKnowledge(ctx context.Context, toyID, agentID string) error {
	if agentID == "" {
		return NewEngineError("DeleteKnowledge", ErrInvalidInput)
	}
	scope := store.Scope{ToyID: toyID, AgentID: agentID}
	doomed, err := c.doomedChunkIDs(ctx, c.knowledgeStore, scope)
	if err != nil {
		return NewEngineError("DeleteKnowledge", err)
	}
	if err := c.knowledgeStore.DeleteByScope(ctx, scope); err != nil {
		return NewEngineError("DeleteKnowledge", err)
	}
	if err := c.detachCitations(ctx, store.KindKnowledge, doomed); err != nil {
		return NewEngineError("DeleteKnowledge", err)
	}
	c.logger.Info("knowledge memory deleted", "toy_id", toyID, "agent_id", agentID)
	return nil
}

// DocumentChunks returns all chunks from one upload in chunk order.
func (c *Client) DocumentChunks(ctx context.Context, sourceFileID string) ([]*store.Chunk, error) {
	if sourceFileID == "" {
		return nil, NewEngineError("DocumentChunks", ErrInvalidInput)
	}
	chunks, err := c.knowledgeStore.ReadBySourceFile(ctx, sourceFileID)
	if err != nil {
		return nil, NewEngineError("DocumentChunks", err)
	}
	return chunks, nil
}

// DeleteDocument removes every chunk from one upload.
func (c *Client) DeleteDocument(ctx context.Context, sourceFileID string) error {
	if sourceFileID == "" {
		return NewEngineError("DeleteDocument", ErrInvalidInput)
	}

	var doomed []int64
	if c.detachedRefs {
		chunks, err := c.knowledgeStore.ReadBySourceFile(ctx, sourceFileID)
		if err != nil {
			return NewEngineError("DeleteDocument", err)
		}
		doomed = chunkIDs(chunks)
	}

	if err := c.knowledgeStore.DeleteBySourceFile(ctx, sourceFileID); err != nil {
		return NewEngineError("DeleteDocument", err)
	}
	if err := c.detachCitations(ctx, store.KindKnowledge, doomed); err != nil {
		return NewEngineError("DeleteDocument", err)
	}
	c.logger.Info("document deleted", "source_file_id", sourceFileID)
	return nil
}

// doomedChunkIDs lists the chunk ids a scope-wide delete is about to
// remove. Only needed when citations live in a separate database; with
// co-located citations the schema nulls references itself.
func (c *Client) doomedChunkIDs(ctx context.Context, pool store.MemoryStore, scope store.Scope) ([]int64, error) {
	if !c.detachedRefs {
		return nil, nil
	}
	chunks, err := pool.ReadByScope(ctx, scope, 0, 0)
	if err != nil {
		return nil, err
	}
	return chunkIDs(chunks), nil
}

func (c *Client) detachCitations(ctx context.Context, kind store.MemoryKind, chunkIDs []int64) error {
	if !c.detachedRefs || len(chunkIDs) == 0 {
		return nil
	}
	return c.citations.DetachRefs(ctx, kind, chunkIDs)
}
