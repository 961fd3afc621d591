package sqlite

import (
	"math"
	"sort"
	"strings"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// buildScopeClause builds the WHERE clause for a scope filter. Context
// memory filters on toy_id only; knowledge memory on agent_id and/or
// toy_id. Empty fields mean no filter.
func buildScopeClause(kind store.MemoryKind, scope store.Scope) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if scope.ToyID != "" {
		conditions = append(conditions, "toy_id = ?")
		args = append(args, scope.ToyID)
	}
	if kind == store.KindKnowledge && scope.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, scope.AgentID)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// cosineSimilarity computes the cosine similarity of two vectors, or 0
// when lengths disagree or either vector is zero.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankChunks orders chunks by score descending, created_at ascending,
// then id ascending, and applies offset and limit. The full ordering is
// deterministic so repeated queries paginate identically.
func rankChunks(chunks []*store.Chunk, limit, offset int) []*store.Chunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if !chunks[i].CreatedAt.Equal(chunks[j].CreatedAt) {
			return chunks[i].CreatedAt.Before(chunks[j].CreatedAt)
		}
		return chunks[i].ID < chunks[j].ID
	})

	if offset > 0 {
		if offset >= len(chunks) {
			return nil
		}
		chunks = chunks[offset:]
	}
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks
}
