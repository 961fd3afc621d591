package core

import (
	"time"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// SearchOption is a function type for configuring Search operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type SearchOption func(*SearchOptions)

// SearchOptions contains configuration options for Search operations.
type SearchOptions struct {
	// ToyID scopes the search to one toy's memory.
	ToyID string

	// AgentID scopes knowledge results to one agent.
	AgentID string

	// Kinds selects which memory pools to search. Empty means both.
	Kinds []store.MemoryKind

	// TopK caps the merged result count. Defaults to the client's
	// configured top_k.
	TopK int

	// Threshold is the minimum similarity score for results. Defaults to
	// the client's configured threshold.
	Threshold float64

	// Timeout bounds the whole search including embedding. Zero uses the
	// client's configured timeout, if any.
	Timeout time.Duration
}

// WithToyID scopes the search to one toy.
//
// Example:
//
//	resp, _ := client.Search(ctx, "query", core.WithToyID("toy_001"))
func WithToyID(toyID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.ToyID = toyID
	}
}

// WithAgentID scopes knowledge results to one agent.
//
// Example:
//
//	resp, _ := client.Search(ctx, "query", core.WithAgentID("agent_001"))
func WithAgentID(agentID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.AgentID = agentID
	}
}

// WithKinds restricts the search to the given memory pools.
//
// Example:
//
//	resp, _ := client.Search(ctx, "query", core.WithKinds(store.KindKnowledge))
func WithKinds(kinds ...store.MemoryKind) SearchOption {
	return func(opts *SearchOptions) {
		opts.Kinds = kinds
	}
}

// WithTopK caps the number of merged results.
//
// Example:
//
//	resp, _ := client.Search(ctx, "query", core.WithTopK(10))
func WithTopK(k int) SearchOption {
	return func(opts *SearchOptions) {
		opts.TopK = k
	}
}

// WithThreshold sets the minimum similarity score for results.
//
// Only results with similarity scores >= threshold are returned.
// Typical range: 0.0-1.0, where 1.0 is identical.
//
// Example:
//
//	resp, _ := client.Search(ctx, "query", core.WithThreshold(0.7))
func WithThreshold(threshold float64) SearchOption {
	return func(opts *SearchOptions) {
		opts.Threshold = threshold
	}
}

// WithTimeout bounds a single search, embedding included.
func WithTimeout(d time.Duration) SearchOption {
	return func(opts *SearchOptions) {
		opts.Timeout = d
	}
}

// applySearchOptions resolves search options against the client defaults.
func (c *Client) applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		TopK:      c.config.Search.TopK,
		Threshold: c.config.Search.Threshold,
		Timeout:   time.Duration(c.config.Search.TimeoutMS) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(options)
	}
	if len(options.Kinds) == 0 {
		options.Kinds = []store.MemoryKind{store.KindContext, store.KindKnowledge}
	}
	return options
}

// IngestOption is a function type for configuring ingestion operations.
type IngestOption func(*IngestOptions)

// IngestOptions contains configuration options for ingestion operations.
type IngestOptions struct {
	// ContentType labels the ingested text (e.g. "text/plain").
	ContentType string

	// ChunkSize overrides the configured segment size for this call.
	ChunkSize int

	// ChunkOverlap overrides the configured segment overlap for this call.
	ChunkOverlap int
}

// WithContentType labels the ingested text.
//
// Example:
//
//	_, _ = client.IngestContext(ctx, "toy_001", text,
//	    core.WithContentType("text/markdown"))
func WithContentType(contentType string) IngestOption {
	return func(opts *IngestOptions) {
		opts.ContentType = contentType
	}
}

// WithChunking overrides the configured chunk size and overlap for one
// ingestion call.
func WithChunking(size, overlap int) IngestOption {
	return func(opts *IngestOptions) {
		opts.ChunkSize = size
		opts.ChunkOverlap = overlap
	}
}

// applyIngestOptions resolves ingest options against the client defaults.
func (c *Client) applyIngestOptions(opts []IngestOption) *IngestOptions {
	options := &IngestOptions{
		ChunkSize:    c.config.Chunking.Size,
		ChunkOverlap: c.config.Chunking.Overlap,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
