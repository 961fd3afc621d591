// Package store defines the persistence boundary of the memory engine.
//
// Two parallel memory pools share one polymorphic MemoryStore contract:
// context memory is scoped to a toy, knowledge memory to an agent within a
// toy and carries file provenance. ConversationStore and CitationStore
// cover the append-only conversation log and the provenance links between
// logged messages and the memory chunks that informed them.
//
// Backends (SQLite, PostgreSQL, OceanBase) implement these interfaces.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDimensionMismatch indicates a vector whose length disagrees with
	// the store's fixed embedding dimension. Writes are rejected, never
	// truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidRef indicates a citation without exactly one chunk
	// reference at write time.
	ErrInvalidRef = errors.New("citation requires exactly one chunk reference")
)

// MemoryKind tags which memory pool a chunk or search result came from.
type MemoryKind string

const (
	// KindContext is short-lived interaction context, scoped to a toy.
	KindContext MemoryKind = "context"

	// KindKnowledge is long-lived knowledge-base memory, scoped to an
	// agent within a toy, with file provenance.
	KindKnowledge MemoryKind = "knowledge"
)

// Scope identifies the owning entity of chunks. ToyID is required for
// context memory. Knowledge memory is addressed by AgentID and/or ToyID;
// an empty field means no filter on that dimension.
type Scope struct {
	ToyID   string `json:"toy_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

// Chunk is a contiguous text segment with an attached embedding vector.
//
// Knowledge chunks additionally carry SourceFileID, OriginalFilename and
// FileSize; all chunks from one upload share a SourceFileID and form a
// contiguous ChunkIndex run starting at 0.
type Chunk struct {
	ID          int64      `json:"id"`
	ToyID       string     `json:"toy_id"`
	AgentID     string     `json:"agent_id,omitempty"`
	Text        string     `json:"chunk_text"`
	ChunkIndex  int        `json:"chunk_index"`
	Embedding   []float64  `json:"-"`
	ContentType string     `json:"content_type,omitempty"`

	SourceFileID     string `json:"source_file_id,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Score is the similarity score (1 - cosine distance) populated by
	// SimilarityQuery; zero otherwise.
	Score float64 `json:"score,omitempty"`
}

// QueryOptions parameterizes SimilarityQuery.
type QueryOptions struct {
	// Scope filters candidate chunks to an owning entity.
	Scope Scope

	// Threshold is the minimum similarity score for a chunk to qualify.
	Threshold float64

	// Limit caps the result count after threshold filtering.
	Limit int

	// Offset skips the top-ranked N results; with identical inputs the
	// ordering is deterministic, so offset pagination is idempotent.
	Offset int
}

// MemoryStore is the polymorphic chunk persistence contract, implemented
// once per memory kind per backend.
type MemoryStore interface {
	// Kind reports which memory pool this store persists.
	Kind() MemoryKind

	// WriteChunks persists a batch of chunks atomically: either every
	// chunk in the call is written or none are. Vectors of the wrong
	// dimension are rejected with ErrDimensionMismatch before any write.
	WriteChunks(ctx context.Context, chunks []*Chunk) error

	// ReadByScope returns chunks for a scope ordered by chunk_index then
	// created_at. limit <= 0 means no limit.
	ReadByScope(ctx context.Context, scope Scope, limit, offset int) ([]*Chunk, error)

	// DeleteByScope removes all chunks for a scope. Citations referencing
	// removed chunks keep their row with a nulled chunk reference.
	DeleteByScope(ctx context.Context, scope Scope) error

	// SimilarityQuery returns chunks with a non-null vector and
	// score = 1 - cosine_distance >= threshold, ordered by score
	// descending with created_at ascending as tiebreak.
	SimilarityQuery(ctx context.Context, embedding []float64, opts *QueryOptions) ([]*Chunk, error)

	// Dimensions returns the store's fixed embedding dimension.
	Dimensions() int
}

// KnowledgeStore extends MemoryStore with file-provenance operations.
type KnowledgeStore interface {
	MemoryStore

	// ReadBySourceFile returns all chunks from one upload in chunk_index
	// order.
	ReadBySourceFile(ctx context.Context, fileID string) ([]*Chunk, error)

	// DeleteBySourceFile removes all chunks from one upload.
	DeleteBySourceFile(ctx context.Context, fileID string) error
}

// Role tags a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ValidRole reports whether r is one of the four accepted roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is one entry of an agent's append-only conversation log.
// Messages are immutable once created.
type Message struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryOptions parameterizes conversation reads.
type HistoryOptions struct {
	// Limit caps the number of messages returned; <= 0 means no limit.
	Limit int

	// Offset skips the first N messages in chronological order.
	Offset int

	// After and Before bound results to messages created inside the
	// half-open interval (After, Before).
	After  *time.Time
	Before *time.Time
}

// ConversationStore persists the append-only conversation log.
type ConversationStore interface {
	// AppendMessage creates a message. There is no update operation.
	AppendMessage(ctx context.Context, msg *Message) error

	// GetMessage returns a message by id, or ErrNotFound.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListByAgent returns messages ordered by created_at ascending, ties
	// broken by id (insertion order).
	ListByAgent(ctx context.Context, agentID string, opts *HistoryOptions) ([]*Message, error)

	// Recent returns the last n messages in chronological order.
	Recent(ctx context.Context, agentID string, n int) ([]*Message, error)

	// Clear deletes the agent's messages, keeping role=system entries if
	// keepSystem is set, and returns the number removed. Citations owned
	// by removed messages are deleted with them.
	Clear(ctx context.Context, agentID string, keepSystem bool) (int64, error)
}

// ChunkRef is the tagged chunk reference of a citation: exactly one memory
// kind, one chunk id. The relational layout keeps a nullable column pair;
// this variant is the component-boundary representation.
type ChunkRef struct {
	Kind    MemoryKind `json:"memory_kind"`
	ChunkID int64      `json:"chunk_id"`
}

// Citation links a conversation message to a memory chunk it drew upon.
// Citations are an audit trail: deleting the referenced chunk nulls Ref
// (a dangling reference) but never deletes the citation.
type Citation struct {
	ID    int64 `json:"id"`
	LogID int64 `json:"log_id"`

	// Ref is nil when the cited chunk has been deleted since linking.
	Ref *ChunkRef `json:"ref,omitempty"`

	// Score is the relevance score recorded at link time, copied verbatim
	// from the search result that produced it.
	Score float64 `json:"relevance_score"`

	CreatedAt time.Time `json:"created_at"`
}

// CitationStore persists message-to-chunk provenance links.
type CitationStore interface {
	// InsertCitations writes a batch of citations atomically. Every
	// citation must carry a non-nil Ref or the batch is rejected with
	// ErrInvalidRef.
	InsertCitations(ctx context.Context, citations []*Citation) error

	// ListByLog returns a message's citations ordered by relevance score
	// descending. limit <= 0 means no limit.
	ListByLog(ctx context.Context, logID int64, limit int) ([]*Citation, error)

	// ListByChunk returns all citations referencing a chunk.
	ListByChunk(ctx context.Context, ref ChunkRef) ([]*Citation, error)

	// DetachRefs nulls the chunk reference of every citation pointing at
	// one of the given chunks, preserving the citation rows. Backends
	// whose chunks live in the same database handle this with ON DELETE
	// SET NULL; DetachRefs covers deployments where the cited chunks live
	// in a separate database and no foreign key can reach them.
	DetachRefs(ctx context.Context, kind MemoryKind, chunkIDs []int64) error
}
