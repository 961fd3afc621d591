package core

import (
	"context"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// LinkCitations records which memory chunks informed a logged message.
//
// The message must already exist (ErrNotFound otherwise). Each search
// result becomes one citation carrying the chunk reference and the
// relevance score exactly as the search reported it.
func (c *Client) LinkCitations(ctx context.Context, logID int64, results []SearchResult) ([]*store.Citation, error) {
	if logID == 0 || len(results) == 0 {
		return nil, NewEngineError("LinkCitations", ErrInvalidInput)
	}
	if _, err := c.conversations.GetMessage(ctx, logID); err != nil {
		return nil, NewEngineError("LinkCitations", err)
	}

	citations := make([]*store.Citation, len(results))
	for i, r := range results {
		if r.Chunk == nil {
			return nil, NewEngineError("LinkCitations", ErrInvalidInput)
		}
		citations[i] = &store.Citation{
			ID:    c.node.Generate().Int64(),
			LogID: logID,
			Ref:   &store.ChunkRef{Kind: r.Kind, ChunkID: r.Chunk.ID},
			Score: r.Chunk.Score,
		}
	}

	if err := c.citations.InsertCitations(ctx, citations); err != nil {
		return nil, NewEngineError("LinkCitations", err)
	}

	c.logger.Debug("citations linked", "log_id", logID, "count", len(citations))
	return citations, nil
}

// Citations returns a message's citations ordered by relevance score
// descending. limit <= 0 means all.
//
// A citation whose Ref is nil points at a chunk deleted since linking;
// the audit row survives the chunk.
func (c *Client) Citations(ctx context.Context, logID int64, limit int) ([]*store.Citation, error) {
	citations, err := c.citations.ListByLog(ctx, logID, limit)
	if err != nil {
		return nil, NewEngineError("Citations", err)
	}
	return citations, nil
}

// TopCitations returns a message's n highest-scored citations.
func (c *Client) TopCitations(ctx context.Context, logID int64, n int) ([]*store.Citation, error) {
	if n <= 0 {
		return nil, NewEngineError("TopCitations", ErrInvalidInput)
	}
	return c.Citations(ctx, logID, n)
}

// CitationsForChunk returns every citation referencing one chunk, oldest
// first. Useful for auditing which replies leaned on a given memory.
func (c *Client) CitationsForChunk(ctx context.Context, ref store.ChunkRef) ([]*store.Citation, error) {
	citations, err := c.citations.ListByChunk(ctx, ref)
	if err != nil {
		return nil, NewEngineError("CitationsForChunk", err)
	}
	return citations, nil
}
