package reconcile

import (
	"context"
	"fmt"

	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
)

// LoadAll drains a search cursor. Any page error fails the whole load; the order of the result
// is whatever the backend returned.
func LoadAll[T models.Object](ctx context.Context, repo *backend.Repository[T], criteria backend.Criteria, cred backend.Credential) ([]T, error) {
	cur := repo.SearchAll(ctx, criteria, cred)
	defer cur.Close()

	var items []T
	for cur.Next(ctx) {
		item, err := repo.Decode(cur.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", repo.Class(), err)
	}
	return items, nil
}
