package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toybox-labs/toymem-go/pkg/embedder"
	"github.com/toybox-labs/toymem-go/pkg/embedder/mock"
	"github.com/toybox-labs/toymem-go/pkg/store"
	sqliteStore "github.com/toybox-labs/toymem-go/pkg/store/sqlite"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(&Config{
		Embedder: EmbedderConfig{Provider: "mock", Dimensions: 64},
		Store: StoreConfig{
			Provider: "sqlite",
			SQLite:   SQLiteConfig{DBPath: filepath.Join(t.TempDir(), "toymem.db")},
		},
		Retry: RetryConfig{MaxAttempts: 2, BaseBackoffMS: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// brokenStore fails every similarity query, standing in for an
// unreachable backend.
type brokenStore struct {
	store.MemoryStore
}

func (b *brokenStore) SimilarityQuery(context.Context, []float64, *store.QueryOptions) ([]*store.Chunk, error) {
	return nil, errors.New("connection refused")
}

func TestConfigValidate(t *testing.T) {
	valid := &Config{
		Embedder: EmbedderConfig{Provider: "mock", Dimensions: 64},
		Store:    StoreConfig{Provider: "sqlite"},
	}
	applyConfigDefaults(valid)
	assert.NoError(t, valid.Validate())

	cases := []func(*Config){
		func(c *Config) { c.Embedder.Provider = "" },
		func(c *Config) { c.Embedder.Dimensions = 0 },
		func(c *Config) { c.Store.Provider = "redis" },
		func(c *Config) { c.Chunking.Overlap = c.Chunking.Size },
		func(c *Config) { c.Search.TopK = -1 },
		func(c *Config) { c.Search.Threshold = 1.5 },
	}
	for _, mutate := range cases {
		cfg := &Config{
			Embedder: EmbedderConfig{Provider: "mock", Dimensions: 64},
			Store:    StoreConfig{Provider: "sqlite"},
		}
		applyConfigDefaults(cfg)
		mutate(cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	}
}

func TestIngestContextAndSearch(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	result, err := client.IngestContext(ctx, "toy_001",
		"The toy spent the afternoon in the garden watching birds.")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)
	require.Len(t, result.ChunkIDs, 1)

	// Searching for the exact ingested text must surface its chunk with a
	// perfect score: the mock embedder is deterministic per text.
	resp, err := client.Search(ctx,
		"The toy spent the afternoon in the garden watching birds.",
		WithToyID("toy_001"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Partial)
	assert.Equal(t, result.ChunkIDs[0], resp.Results[0].Chunk.ID)
	assert.InDelta(t, 1.0, resp.Results[0].Chunk.Score, 1e-9)
	assert.Equal(t, store.KindContext, resp.Results[0].Kind)
}

func TestIngestDocument(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	result, err := client.IngestDocument(ctx, "toy_001", "agent_001", &Document{
		Text:             "Care instructions. Keep the toy dry. Recharge weekly.",
		OriginalFilename: "care.txt",
		FileSize:         53,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.SourceFileID)
	assert.Equal(t, result.ChunkCount, len(result.ChunkIDs))

	chunks, err := client.DocumentChunks(ctx, result.SourceFileID)
	require.NoError(t, err)
	require.Len(t, chunks, result.ChunkCount)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, "care.txt", chunk.OriginalFilename)
		assert.Equal(t, result.SourceFileID, chunk.SourceFileID)
	}

	require.NoError(t, client.DeleteDocument(ctx, result.SourceFileID))
	chunks, err = client.DocumentChunks(ctx, result.SourceFileID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSearchRespectsTopK(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	texts := []string{
		"red ball in the toy box",
		"blue train on the floor",
		"green dinosaur on the shelf",
		"yellow duck in the bath",
	}
	for _, text := range texts {
		_, err := client.IngestContext(ctx, "toy_001", text)
		require.NoError(t, err)
	}

	resp, err := client.Search(ctx, "toys", WithToyID("toy_001"),
		WithTopK(2), WithThreshold(-1))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), 2)
	if len(resp.Results) == 2 {
		assert.GreaterOrEqual(t, resp.Results[0].Chunk.Score, resp.Results[1].Chunk.Score)
	}
}

func TestSearchInvalidInput(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Search(ctx, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = client.Search(ctx, "query", WithTopK(-1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSearchPartialDegradation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.IngestContext(ctx, "toy_001", "the context pool still works")
	require.NoError(t, err)

	// Knowledge pool goes down; the search must still answer from context
	// and flag the degradation.
	client.knowledgeStore = &knowledgeDown{client.knowledgeStore}

	resp, err := client.Search(ctx, "the context pool still works",
		WithToyID("toy_001"), WithThreshold(-1))
	require.NoError(t, err)
	assert.True(t, resp.Partial)
	assert.Equal(t, []store.MemoryKind{store.KindKnowledge}, resp.Unavailable)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, store.KindContext, resp.Results[0].Kind)
}

// knowledgeDown wraps a KnowledgeStore with a failing similarity query.
type knowledgeDown struct {
	store.KnowledgeStore
}

func (k *knowledgeDown) SimilarityQuery(context.Context, []float64, *store.QueryOptions) ([]*store.Chunk, error) {
	return nil, errors.New("connection refused")
}

func TestSearchAllPoolsDown(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	client.contextStore = &brokenStore{client.contextStore}
	client.knowledgeStore = &knowledgeDown{client.knowledgeStore}

	_, err := client.Search(ctx, "anything", WithToyID("toy_001"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestIngestEmbedderUnavailable(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	failing := mock.New(64)
	failing.Fail = mock.ErrUnavailable
	client.embedder = failing

	_, err := client.IngestContext(ctx, "toy_001", "this will not be stored")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	// Embedding happens before any write, so the store stays untouched.
	chunks, err := client.ContextChunks(ctx, "toy_001", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// countingEmbedder tracks how often the provider is invoked.
type countingEmbedder struct {
	embedder.Provider
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	c.calls++
	return c.Provider.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	c.calls++
	return c.Provider.EmbedBatch(ctx, texts)
}

func TestSearchEmbedsQueryOnce(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	failing := mock.New(64)
	failing.Fail = mock.ErrUnavailable
	counter := &countingEmbedder{Provider: failing}
	client.embedder = counter

	// The retry budget covers ingestion only. A live query gets a single
	// attempt and the failure surfaces at once.
	_, err := client.Search(ctx, "where is the red ball", WithToyID("toy_001"))
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, 1, counter.calls)
}

func TestConversationFlow(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	sys, err := client.AppendMessage(ctx, "agent_001", store.RoleSystem, "be kind")
	require.NoError(t, err)
	user, err := client.AppendMessage(ctx, "agent_001", store.RoleUser, "tell me a story")
	require.NoError(t, err)
	_, err = client.AppendMessage(ctx, "agent_001", store.RoleAssistant, "once upon a time")
	require.NoError(t, err)

	_, err = client.AppendMessage(ctx, "agent_001", store.Role("narrator"), "nope")
	assert.ErrorIs(t, err, ErrInvalidInput)

	history, err := client.History(ctx, "agent_001", nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, sys.ID, history[0].ID)

	users, err := client.HistoryByRole(ctx, "agent_001", store.RoleUser, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, user.ID, users[0].ID)

	recent, err := client.RecentMessages(ctx, "agent_001", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "once upon a time", recent[1].Content)

	removed, err := client.ClearHistory(ctx, "agent_001", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestLinkCitations(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.IngestContext(ctx, "toy_001", "the garden was full of birds")
	require.NoError(t, err)

	resp, err := client.Search(ctx, "the garden was full of birds",
		WithToyID("toy_001"), WithThreshold(-1))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	msg, err := client.AppendMessage(ctx, "agent_001", store.RoleAssistant,
		"You watched birds in the garden earlier.")
	require.NoError(t, err)

	linked, err := client.LinkCitations(ctx, msg.ID, resp.Results)
	require.NoError(t, err)
	require.Len(t, linked, len(resp.Results))

	got, err := client.Citations(ctx, msg.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, len(resp.Results))
	// The stored relevance score matches the search score exactly.
	assert.Equal(t, resp.Results[0].Chunk.Score, got[0].Score)
	assert.Equal(t, resp.Results[0].Chunk.ID, got[0].Ref.ChunkID)
	assert.Equal(t, resp.Results[0].Kind, got[0].Ref.Kind)

	top, err := client.TopCitations(ctx, msg.ID, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	byChunk, err := client.CitationsForChunk(ctx, *got[0].Ref)
	require.NoError(t, err)
	require.Len(t, byChunk, 1)
	assert.Equal(t, msg.ID, byChunk[0].LogID)
}

func TestCitationsInSeparateLogDatabase(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// Split topology: the vector pools and the conversation log live in
	// different databases, so citation rows cannot hold foreign keys into
	// the chunk tables.
	logDB, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath:             filepath.Join(t.TempDir(), "logs.db"),
		EmbeddingModelDims: 64,
		ExternalChunkRefs:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logDB.Close() })
	client.conversations = logDB.Conversations()
	client.citations = logDB.Citations()
	client.detachedRefs = true

	_, err = client.IngestContext(ctx, "toy_001", "the lighthouse keeper fed the gulls")
	require.NoError(t, err)

	resp, err := client.Search(ctx, "the lighthouse keeper fed the gulls",
		WithToyID("toy_001"), WithThreshold(-1))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	msg, err := client.AppendMessage(ctx, "agent_001", store.RoleAssistant,
		"The gulls were fed this morning.")
	require.NoError(t, err)

	linked, err := client.LinkCitations(ctx, msg.ID, resp.Results)
	require.NoError(t, err)
	require.Len(t, linked, len(resp.Results))

	// Deleting the cited chunks nulls the references explicitly; the
	// audit rows and their scores stay.
	require.NoError(t, client.DeleteContext(ctx, "toy_001"))

	got, err := client.Citations(ctx, msg.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, len(resp.Results))
	for _, citation := range got {
		assert.Nil(t, citation.Ref)
		assert.Greater(t, citation.Score, 0.0)
	}
}

func TestLinkCitationsMissingMessage(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.LinkCitations(ctx, 12345, []SearchResult{
		{Kind: store.KindContext, Chunk: &store.Chunk{ID: 1, Score: 0.5}},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
