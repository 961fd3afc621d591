package oceanbase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// buildScopeClause builds the WHERE clause for a scope filter. Context
// memory filters on toy_id only; knowledge memory on agent_id and/or
// toy_id.
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

// vectorToString renders a vector in OceanBase VECTOR input format:
// "[0.1,0.2,0.3]".
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

// stringToVector parses the VECTOR output format back into a float slice.
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
