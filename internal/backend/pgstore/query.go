package pgstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"grocerysync/internal/backend"
)

// buildSearch renders the WHERE clause and arguments for a class search. Equality conditions
// become a single JSONB containment test; exists checks treat null and "" as missing.
func buildSearch(table, class string, criteria backend.Criteria, after string, limit int) (string, []interface{}, error) {
	args := []interface{}{class}
	clauses := []string{"class = $1"}

	if len(criteria.Conditions) > 0 {
		contained, err := json.Marshal(criteria.Conditions)
		if err != nil {
			return "", nil, fmt.Errorf("encode conditions: %w", err)
		}
		args = append(args, string(contained))
		clauses = append(clauses, fmt.Sprintf("data @> $%d::jsonb", len(args)))
	}

	fields := make([]string, 0, len(criteria.Exists))
	for field := range criteria.Exists {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		lit := pq.QuoteLiteral(field)
		if criteria.Exists[field] {
			clauses = append(clauses, fmt.Sprintf("COALESCE(data->>%s, '') <> ''", lit))
		} else {
			clauses = append(clauses, fmt.Sprintf("COALESCE(data->>%s, '') = ''", lit))
		}
	}

	if after != "" {
		args = append(args, after)
		clauses = append(clauses, fmt.Sprintf("id > $%d", len(args)))
	}

	query := fmt.Sprintf("SELECT id, data, acl, created_at, updated_at FROM %s WHERE %s ORDER BY id",
		table, strings.Join(clauses, " AND "))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query, args, nil
}

// splitPatch separates an update body into the JSONB patch and the keys to remove.
func splitPatch(data map[string]interface{}) (string, []string, error) {
	patch := make(map[string]interface{}, len(data))
	remove := []string{}
	for k, v := range data {
		if _, unset := v.(backend.Unset); unset {
			remove = append(remove, k)
			continue
		}
		patch[k] = v
	}
	sort.Strings(remove)
	raw, err := json.Marshal(patch)
	if err != nil {
		return "", nil, err
	}
	return string(raw), remove, nil
}
