package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// SearchResult is one ranked chunk from a unified search.
type SearchResult struct {
	// Kind reports which memory pool the chunk came from.
	Kind store.MemoryKind `json:"memory_kind"`

	// Chunk is the matched chunk with Score populated.
	Chunk *store.Chunk `json:"chunk"`
}

// SearchResponse is the merged outcome of a unified search.
type SearchResponse struct {
	// Results are the merged chunks, at most top_k, ordered by score
	// descending.
	Results []SearchResult `json:"results"`

	// Partial is set when at least one addressed pool failed and the
	// results cover only the pools that answered.
	Partial bool `json:"partial,omitempty"`

	// Unavailable lists the pools that failed, when Partial is set.
	Unavailable []store.MemoryKind `json:"unavailable,omitempty"`
}

// Agent-context search preset.
const (
	agentContextTopK      = 3
	agentContextThreshold = 0.3
)

// Search embeds the query once and runs similarity search across the
// selected memory pools concurrently, merging the per-pool rankings into
// a single top_k list.
//
// Merged ordering is score descending; ties prefer older chunks, then
// context over knowledge, then lower id. Each pool contributes at most
// top_k candidates, so the merged head is exact.
//
// If some pools fail the response is marked Partial and lists them in
// Unavailable; if every addressed pool fails the search returns
// ErrStoreUnavailable.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewEngineError("Search", ErrInvalidInput)
	}
	options := c.applySearchOptions(opts)
	if options.TopK <= 0 {
		return nil, NewEngineError("Search", ErrInvalidInput)
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	embedding, err := c.queryEmbedding(ctx, query)
	if err != nil {
		return nil, NewEngineError("Search", err)
	}

	scope := store.Scope{ToyID: options.ToyID, AgentID: options.AgentID}
	queryOpts := &store.QueryOptions{
		Scope:     scope,
		Threshold: options.Threshold,
		Limit:     options.TopK,
	}

	type poolResult struct {
		kind   store.MemoryKind
		chunks []*store.Chunk
		err    error
	}

	results := make(chan poolResult, len(options.Kinds))
	var wg sync.WaitGroup
	for _, kind := range options.Kinds {
		pool := c.poolFor(kind)
		if pool == nil {
			continue
		}
		wg.Add(1)
		go func(kind store.MemoryKind, pool store.MemoryStore) {
			defer wg.Done()
			chunks, err := pool.SimilarityQuery(ctx, embedding, queryOpts)
			results <- poolResult{kind: kind, chunks: chunks, err: err}
		}(kind, pool)
	}
	wg.Wait()
	close(results)

	var merged []SearchResult
	var unavailable []store.MemoryKind
	addressed := 0
	for r := range results {
		addressed++
		if r.err != nil {
			c.logger.Warn("memory pool unavailable", "kind", r.kind, "error", r.err)
			unavailable = append(unavailable, r.kind)
			continue
		}
		for _, chunk := range r.chunks {
			merged = append(merged, SearchResult{Kind: r.kind, Chunk: chunk})
		}
	}

	if addressed == 0 {
		return nil, NewEngineError("Search", ErrInvalidInput)
	}
	if len(unavailable) == addressed {
		return nil, NewEngineError("Search", ErrStoreUnavailable)
	}

	sortResults(merged)
	if len(merged) > options.TopK {
		merged = merged[:options.TopK]
	}

	return &SearchResponse{
		Results:     merged,
		Partial:     len(unavailable) > 0,
		Unavailable: unavailable,
	}, nil
}

// SearchForAgentContext is a preset search used when assembling an
// agent's reply context: both pools, top 3 results, 0.3 threshold.
func (c *Client) SearchForAgentContext(ctx context.Context, toyID, agentID, query string) (*SearchResponse, error) {
	return c.Search(ctx, query,
		WithToyID(toyID),
		WithAgentID(agentID),
		WithTopK(agentContextTopK),
		WithThreshold(agentContextThreshold),
	)
}

func (c *Client) poolFor(kind store.MemoryKind) store.MemoryStore {
	switch kind {
	case store.KindContext:
		return c.contextStore
	case store.KindKnowledge:
		return c.knowledgeStore
	}
	return nil
}

// queryEmbedding embeds a search query, memoizing by query text. Unlike
// ingestion there is no retry budget: an interactive query gets one
// attempt and a provider failure surfaces immediately.
func (c *Client) queryEmbedding(ctx context.Context, query string) ([]float64, error) {
	if cached, ok := c.queryCache.Get(query); ok {
		if vec, ok := cached.([]float64); ok {
			return vec, nil
		}
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	c.queryCache.Set(query, vec, int64(len(vec)*8))
	return vec, nil
}

// sortResults orders merged results by score descending, then older
// first, then context before knowledge, then lower id.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Chunk.Score != b.Chunk.Score {
			return a.Chunk.Score > b.Chunk.Score
		}
		if !a.Chunk.CreatedAt.Equal(b.Chunk.CreatedAt) {
			return a.Chunk.CreatedAt.Before(b.Chunk.CreatedAt)
		}
		if a.Kind != b.Kind {
			return a.Kind == store.KindContext
		}
		return a.Chunk.ID < b.Chunk.ID
	})
}
