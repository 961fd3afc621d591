package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// buildScopeClause builds a WHERE clause for a scope filter with
// positional placeholders starting at startIdx. Context memory filters on
// toy_id only; knowledge memory on agent_id and/or toy_id.
func buildScopeClause(kind store.MemoryKind, scope store.Scope, startIdx int) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if scope.ToyID != "" {
		conditions = append(conditions, fmt.Sprintf("toy_id = $%d", startIdx+len(args)))
		args = append(args, scope.ToyID)
	}
	if kind == store.KindKnowledge && scope.AgentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", startIdx+len(args)))
		args = append(args, scope.AgentID)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// vectorToString renders a vector in pgvector input format: "[0.1,0.2]".
func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}

	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// stringToVector parses pgvector output format back into a float slice.
func stringToVector(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("stringToVector: %w", err)
		}
		result[i] = v
	}
	return result, nil
}
