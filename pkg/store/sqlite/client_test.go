package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toybox-labs/toymem-go/pkg/store"
	"github.com/toybox-labs/toymem-go/pkg/store/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath:             filepath.Join(t.TempDir(), "test.db"),
		EmbeddingModelDims: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestContextWriteReadRoundtrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	pool := client.ContextMemory()

	chunks := []*store.Chunk{
		{ID: 1, ToyID: "toy_001", Text: "first", ChunkIndex: 0, Embedding: []float64{1, 0, 0, 0}},
		{ID: 2, ToyID: "toy_001", Text: "second", ChunkIndex: 1, Embedding: []float64{0, 1, 0, 0}},
		{ID: 3, ToyID: "toy_002", Text: "other toy", ChunkIndex: 0, Embedding: []float64{0, 0, 1, 0}},
	}
	require.NoError(t, pool.WriteChunks(ctx, chunks))

	got, err := pool.ReadByScope(ctx, store.Scope{ToyID: "toy_001"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
	assert.Equal(t, []float64{1, 0, 0, 0}, got[0].Embedding)
	assert.Equal(t, store.KindContext, pool.Kind())
}

func TestWriteChunksDimensionMismatch(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	pool := client.ContextMemory()

	err := pool.WriteChunks(ctx, []*store.Chunk{
		{ID: 1, ToyID: "toy_001", Text: "ok", Embedding: []float64{1, 0, 0, 0}},
		{ID: 2, ToyID: "toy_001", Text: "bad", Embedding: []float64{1, 0}},
	})
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)

	// The batch is atomic, so the valid chunk is not written either.
	got, err := pool.ReadByScope(ctx, store.Scope{ToyID: "toy_001"}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSimilarityQuery(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	pool := client.ContextMemory()

	require.NoError(t, pool.WriteChunks(ctx, []*store.Chunk{
		{ID: 1, ToyID: "toy_001", Text: "exact", ChunkIndex: 0, Embedding: []float64{1, 0, 0, 0}},
		{ID: 2, ToyID: "toy_001", Text: "partial", ChunkIndex: 1, Embedding: []float64{1, 1, 0, 0}},
		{ID: 3, ToyID: "toy_001", Text: "orthogonal", ChunkIndex: 2, Embedding: []float64{0, 0, 1, 0}},
	}))

	query := []float64{1, 0, 0, 0}
	results, err := pool.SimilarityQuery(ctx, query, &store.QueryOptions{
		Scope:     store.Scope{ToyID: "toy_001"},
		Threshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// score = cosine similarity, descending.
	assert.Equal(t, "exact", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "partial", results[1].Text)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-3)

	// Identical inputs rank identically.
	again, err := pool.SimilarityQuery(ctx, query, &store.QueryOptions{
		Scope:     store.Scope{ToyID: "toy_001"},
		Threshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, results[0].ID, again[0].ID)
	assert.Equal(t, results[1].ID, again[1].ID)

	// Limit caps the ranked head.
	top, err := pool.SimilarityQuery(ctx, query, &store.QueryOptions{
		Scope: store.Scope{ToyID: "toy_001"},
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "exact", top[0].Text)
}

func TestSimilarityQueryOffsetPagination(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	pool := client.ContextMemory()

	require.NoError(t, pool.WriteChunks(ctx, []*store.Chunk{
		{ID: 1, ToyID: "toy_001", Text: "exact", ChunkIndex: 0, Embedding: []float64{1, 0, 0, 0}},
		{ID: 2, ToyID: "toy_001", Text: "close", ChunkIndex: 1, Embedding: []float64{2, 1, 0, 0}},
		{ID: 3, ToyID: "toy_001", Text: "middling", ChunkIndex: 2, Embedding: []float64{1, 1, 0, 0}},
		{ID: 4, ToyID: "toy_001", Text: "far", ChunkIndex: 3, Embedding: []float64{1, 2, 0, 0}},
	}))

	query := []float64{1, 0, 0, 0}
	opts := func(offset int) *store.QueryOptions {
		return &store.QueryOptions{
			Scope:  store.Scope{ToyID: "toy_001"},
			Limit:  2,
			Offset: offset,
		}
	}

	first, err := pool.SimilarityQuery(ctx, query, opts(0))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].ID)
	assert.Equal(t, int64(2), first[1].ID)

	second, err := pool.SimilarityQuery(ctx, query, opts(2))
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, int64(3), second[0].ID)
	assert.Equal(t, int64(4), second[1].ID)

	// Re-running the same page yields the same rows.
	again, err := pool.SimilarityQuery(ctx, query, opts(2))
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, second[0].ID, again[0].ID)
	assert.Equal(t, second[1].ID, again[1].ID)

	// An offset past the qualified set is an empty page, not an error.
	empty, err := pool.SimilarityQuery(ctx, query, opts(10))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSimilarityQuerySkipsForeignDimensions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	old, err := sqlite.NewClient(&sqlite.Config{DBPath: dbPath, EmbeddingModelDims: 4})
	require.NoError(t, err)

	require.NoError(t, old.ContextMemory().WriteChunks(context.Background(), []*store.Chunk{
		{ID: 1, ToyID: "toy_001", Text: "written under 4 dims", Embedding: []float64{1, 0, 0, 0}},
	}))
	require.NoError(t, old.Close())

	// Reopening the same file under a different embedding dimension must
	// not rank the stale rows: a length-mismatched vector is incomparable,
	// not a score-zero match.
	client, err := sqlite.NewClient(&sqlite.Config{DBPath: dbPath, EmbeddingModelDims: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	results, err := client.ContextMemory().SimilarityQuery(context.Background(),
		[]float64{1, 0, 0, 0, 0, 0, 0, 0}, &store.QueryOptions{
			Scope:     store.Scope{ToyID: "toy_001"},
			Threshold: 0,
		})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKnowledgeSourceFileLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	pool := client.KnowledgeMemory()

	chunks := []*store.Chunk{
		{ID: 10, ToyID: "toy_001", AgentID: "agent_001", Text: "page one",
			ChunkIndex: 0, Embedding: []float64{1, 0, 0, 0},
			SourceFileID: "file-a", OriginalFilename: "manual.txt", FileSize: 42},
		{ID: 11, ToyID: "toy_001", AgentID: "agent_001", Text: "page two",
			ChunkIndex: 1, Embedding: []float64{0, 1, 0, 0},
			SourceFileID: "file-a", OriginalFilename: "manual.txt", FileSize: 42},
	}
	require.NoError(t, pool.WriteChunks(ctx, chunks))

	got, err := pool.ReadBySourceFile(ctx, "file-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "manual.txt", got[0].OriginalFilename)
	assert.Equal(t, int64(42), got[0].FileSize)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.Equal(t, 1, got[1].ChunkIndex)

	require.NoError(t, pool.DeleteBySourceFile(ctx, "file-a"))
	got, err = pool.ReadBySourceFile(ctx, "file-a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConversationLog(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	conv := client.Conversations()

	msgs := []*store.Message{
		{ID: 1, AgentID: "agent_001", Role: store.RoleSystem, Content: "be helpful"},
		{ID: 2, AgentID: "agent_001", Role: store.RoleUser, Content: "hello"},
		{ID: 3, AgentID: "agent_001", Role: store.RoleAssistant, Content: "hi there"},
	}
	for _, msg := range msgs {
		require.NoError(t, conv.AppendMessage(ctx, msg))
	}

	got, err := conv.GetMessage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, store.RoleUser, got.Role)
	assert.Equal(t, "hello", got.Content)

	_, err = conv.GetMessage(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)

	history, err := conv.ListByAgent(ctx, "agent_001", nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, int64(1), history[0].ID)
	assert.Equal(t, int64(3), history[2].ID)

	recent, err := conv.Recent(ctx, "agent_001", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(2), recent[0].ID)
	assert.Equal(t, int64(3), recent[1].ID)

	removed, err := conv.Clear(ctx, "agent_001", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	history, err = conv.ListByAgent(ctx, "agent_001", nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.RoleSystem, history[0].Role)
}

func TestHistoryTimeBounds(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	conv := client.Conversations()

	require.NoError(t, conv.AppendMessage(ctx, &store.Message{
		ID: 1, AgentID: "agent_001", Role: store.RoleUser, Content: "first",
	}))
	time.Sleep(20 * time.Millisecond)
	cut := time.Now().UTC()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conv.AppendMessage(ctx, &store.Message{
		ID: 2, AgentID: "agent_001", Role: store.RoleAssistant, Content: "second",
	}))

	after, err := conv.ListByAgent(ctx, "agent_001", &store.HistoryOptions{After: &cut})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, int64(2), after[0].ID)

	before, err := conv.ListByAgent(ctx, "agent_001", &store.HistoryOptions{Before: &cut})
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, int64(1), before[0].ID)

	// Both bounds give the open interval between them.
	empty, err := conv.ListByAgent(ctx, "agent_001", &store.HistoryOptions{
		After: &cut, Before: &cut,
	})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCitations(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.ContextMemory().WriteChunks(ctx, []*store.Chunk{
		{ID: 100, ToyID: "toy_001", Text: "ctx chunk", Embedding: []float64{1, 0, 0, 0}},
	}))
	require.NoError(t, client.KnowledgeMemory().WriteChunks(ctx, []*store.Chunk{
		{ID: 200, ToyID: "toy_001", AgentID: "agent_001", Text: "kb chunk",
			Embedding: []float64{0, 1, 0, 0}, SourceFileID: "file-a"},
	}))
	require.NoError(t, client.Conversations().AppendMessage(ctx, &store.Message{
		ID: 1, AgentID: "agent_001", Role: store.RoleAssistant, Content: "cited reply",
	}))

	cits := client.Citations()
	require.NoError(t, cits.InsertCitations(ctx, []*store.Citation{
		{ID: 1000, LogID: 1, Ref: &store.ChunkRef{Kind: store.KindContext, ChunkID: 100}, Score: 0.6},
		{ID: 1001, LogID: 1, Ref: &store.ChunkRef{Kind: store.KindKnowledge, ChunkID: 200}, Score: 0.9},
	}))

	got, err := cits.ListByLog(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Highest relevance first.
	assert.Equal(t, 0.9, got[0].Score)
	assert.Equal(t, store.KindKnowledge, got[0].Ref.Kind)
	assert.Equal(t, int64(200), got[0].Ref.ChunkID)
	assert.Equal(t, 0.6, got[1].Score)
	assert.Equal(t, store.KindContext, got[1].Ref.Kind)

	byChunk, err := cits.ListByChunk(ctx, store.ChunkRef{Kind: store.KindContext, ChunkID: 100})
	require.NoError(t, err)
	require.Len(t, byChunk, 1)
	assert.Equal(t, int64(1000), byChunk[0].ID)
}

func TestCitationRequiresRef(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Conversations().AppendMessage(ctx, &store.Message{
		ID: 1, AgentID: "agent_001", Role: store.RoleAssistant, Content: "reply",
	}))

	err := client.Citations().InsertCitations(ctx, []*store.Citation{
		{ID: 1000, LogID: 1, Score: 0.5},
	})
	assert.ErrorIs(t, err, store.ErrInvalidRef)
}

func TestCitationSurvivesChunkDeletion(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.KnowledgeMemory().WriteChunks(ctx, []*store.Chunk{
		{ID: 200, ToyID: "toy_001", AgentID: "agent_001", Text: "kb chunk",
			Embedding: []float64{0, 1, 0, 0}, SourceFileID: "file-a"},
	}))
	require.NoError(t, client.Conversations().AppendMessage(ctx, &store.Message{
		ID: 1, AgentID: "agent_001", Role: store.RoleAssistant, Content: "reply",
	}))
	require.NoError(t, client.Citations().InsertCitations(ctx, []*store.Citation{
		{ID: 1000, LogID: 1, Ref: &store.ChunkRef{Kind: store.KindKnowledge, ChunkID: 200}, Score: 0.9},
	}))

	// Deleting the chunk nulls the reference but keeps the audit row.
	require.NoError(t, client.KnowledgeMemory().DeleteBySourceFile(ctx, "file-a"))

	got, err := client.Citations().ListByLog(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Ref)
	assert.Equal(t, 0.9, got[0].Score)
}

func TestExternalChunkRefs(t *testing.T) {
	// A log-only database whose cited chunks live elsewhere: citations
	// must accept chunk ids that match no local row, and references are
	// nulled explicitly instead of by foreign key.
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath:             filepath.Join(t.TempDir(), "logs.db"),
		EmbeddingModelDims: 4,
		ExternalChunkRefs:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	require.NoError(t, client.Conversations().AppendMessage(ctx, &store.Message{
		ID: 1, AgentID: "agent_001", Role: store.RoleAssistant, Content: "cited reply",
	}))

	cits := client.Citations()
	require.NoError(t, cits.InsertCitations(ctx, []*store.Citation{
		{ID: 1000, LogID: 1, Ref: &store.ChunkRef{Kind: store.KindContext, ChunkID: 9001}, Score: 0.8},
		{ID: 1001, LogID: 1, Ref: &store.ChunkRef{Kind: store.KindKnowledge, ChunkID: 9002}, Score: 0.6},
	}))

	require.NoError(t, cits.DetachRefs(ctx, store.KindContext, []int64{9001}))

	got, err := cits.ListByLog(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Ref)
	assert.Equal(t, 0.8, got[0].Score)
	require.NotNil(t, got[1].Ref)
	assert.Equal(t, int64(9002), got[1].Ref.ChunkID)

	// Detaching nothing is a no-op.
	require.NoError(t, cits.DetachRefs(ctx, store.KindKnowledge, nil))
}

func TestCitationCascadesWithMessage(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.ContextMemory().WriteChunks(ctx, []*store.Chunk{
		{ID: 100, ToyID: "toy_001", Text: "ctx chunk", Embedding: []float64{1, 0, 0, 0}},
	}))
	require.NoError(t, client.Conversations().AppendMessage(ctx, &store.Message{
		ID: 1, AgentID: "agent_001", Role: store.RoleAssistant, Content: "reply",
	}))
	require.NoError(t, client.Citations().InsertCitations(ctx, []*store.Citation{
		{ID: 1000, LogID: 1, Ref: &store.ChunkRef{Kind: store.KindContext, ChunkID: 100}, Score: 0.8},
	}))

	_, err := client.Conversations().Clear(ctx, "agent_001", false)
	require.NoError(t, err)

	got, err := client.Citations().ListByLog(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
