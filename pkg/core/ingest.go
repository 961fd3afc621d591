package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toybox-labs/toymem-go/pkg/chunker"
	"github.com/toybox-labs/toymem-go/pkg/store"
)

// maxBackoff caps the exponential embedding retry delay.
const maxBackoff = 10 * time.Second

// Document describes a file-backed knowledge upload.
type Document struct {
	// Text is the full document text.
	Text string

	// ContentType labels the document (e.g. "text/plain").
	ContentType string

	// SourceFileID groups the document's chunks. Generated when empty.
	SourceFileID string

	// OriginalFilename is the uploaded file's name, kept for provenance.
	OriginalFilename string

	// FileSize is the uploaded file's size in bytes.
	FileSize int64
}

// IngestResult reports what an ingestion call persisted.
type IngestResult struct {
	// SourceFileID is the upload's group id (knowledge ingestion only).
	SourceFileID string `json:"source_file_id,omitempty"`

	// ChunkIDs are the persisted chunk ids in chunk_index order.
	ChunkIDs []int64 `json:"chunk_ids"`

	// ChunkCount is the number of chunks written.
	ChunkCount int `json:"chunk_count"`
}

// IngestContext chunks, embeds and stores text in the toy's context
// memory.
//
// The write is atomic: if embedding fails after all retries, or any chunk
// insert fails, nothing is persisted.
func (c *Client) IngestContext(ctx context.Context, toyID, text string, opts ...IngestOption) (*IngestResult, error) {
	if toyID == "" || strings.TrimSpace(text) == "" {
		return nil, NewEngineError("IngestContext", ErrInvalidInput)
	}
	options := c.applyIngestOptions(opts)

	segments, embeddings, err := c.prepareSegments(ctx, "IngestContext", text, options)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return &IngestResult{ChunkIDs: []int64{}}, nil
	}

	chunks := make([]*store.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = &store.Chunk{
			ID:          c.node.Generate().Int64(),
			ToyID:       toyID,
			Text:        seg.Text,
			ChunkIndex:  seg.Index,
			Embedding:   embeddings[i],
			ContentType: options.ContentType,
		}
	}

	if err := c.contextStore.WriteChunks(ctx, chunks); err != nil {
		return nil, NewEngineError("IngestContext", err)
	}

	c.logger.Debug("context ingested", "toy_id", toyID, "chunks", len(chunks))
	return &IngestResult{ChunkIDs: chunkIDs(chunks), ChunkCount: len(chunks)}, nil
}

// IngestDocument chunks, embeds and stores a document in the agent's
// knowledge memory. All chunks share one SourceFileID (generated when the
// document does not carry one) and form a contiguous chunk_index run
// starting at zero.
func (c *Client) IngestDocument(ctx context.Context, toyID, agentID string, doc *Document, opts ...IngestOption) (*IngestResult, error) {
	if toyID == "" || agentID == "" || doc == nil || strings.TrimSpace(doc.Text) == "" {
		return nil, NewEngineError("IngestDocument", ErrInvalidInput)
	}
	options := c.applyIngestOptions(opts)
	if options.ContentType == "" {
		options.ContentType = doc.ContentType
	}

	segments, embeddings, err := c.prepareSegments(ctx, "IngestDocument", doc.Text, options)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return &IngestResult{ChunkIDs: []int64{}}, nil
	}

	fileID := doc.SourceFileID
	if fileID == "" {
		fileID = uuid.NewString()
	}

	chunks := make([]*store.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = &store.Chunk{
			ID:               c.node.Generate().Int64(),
			ToyID:            toyID,
			AgentID:          agentID,
			Text:             seg.Text,
			ChunkIndex:       seg.Index,
			Embedding:        embeddings[i],
			ContentType:      options.ContentType,
			SourceFileID:     fileID,
			OriginalFilename: doc.OriginalFilename,
			FileSize:         doc.FileSize,
		}
	}

	if err := c.knowledgeStore.WriteChunks(ctx, chunks); err != nil {
		return nil, NewEngineError("IngestDocument", err)
	}

	c.logger.Debug("document ingested",
		"toy_id", toyID, "agent_id", agentID,
		"source_file_id", fileID, "chunks", len(chunks))
	return &IngestResult{
		SourceFileID: fileID,
		ChunkIDs:     chunkIDs(chunks),
		ChunkCount:   len(chunks),
	}, nil
}

// prepareSegments splits text and embeds every segment with retry.
func (c *Client) prepareSegments(ctx context.Context, op, text string, options *IngestOptions) ([]chunker.Segment, [][]float64, error) {
	segments, err := chunker.Split(text, options.ChunkSize, options.ChunkOverlap)
	if err != nil {
		return nil, nil, NewEngineError(op, err)
	}
	if len(segments) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	embeddings, err := c.embedWithRetry(ctx, texts)
	if err != nil {
		return nil, nil, NewEngineError(op, err)
	}
	return segments, embeddings, nil
}

// embedWithRetry calls the embedding provider with exponential backoff.
// Delays double per attempt from the configured base, capped at
// maxBackoff. Context cancellation aborts between attempts.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float64, error) {
	base := time.Duration(c.config.Retry.BaseBackoffMS) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= c.config.Retry.MaxAttempts; attempt++ {
		vectors, err := c.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		c.logger.Warn("embedding attempt failed",
			"attempt", attempt, "max_attempts", c.config.Retry.MaxAttempts, "error", err)

		if attempt == c.config.Retry.MaxAttempts {
			break
		}

		delay := base << (attempt - 1)
		if delay > maxBackoff {
			delay = maxBackoff
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, &EngineError{
		Op:  "embedWithRetry",
		Err: fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr),
	}
}

func chunkIDs(chunks []*store.Chunk) []int64 {
	ids := make([]int64, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}
	return ids
}
