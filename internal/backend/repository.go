package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"grocerysync/internal/core/models"
)

// Repository is a typed view over one backend class.
type Repository[T models.Object] struct {
	driver Driver
	class  string
}

func NewRepository[T models.Object](driver Driver, class string) *Repository[T] {
	return &Repository[T]{driver: driver, class: class}
}

func (r *Repository[T]) Class() string {
	return r.class
}

func (r *Repository[T]) Driver() Driver {
	return r.driver
}

func (r *Repository[T]) Decode(rec Record) (T, error) {
	var item T
	if err := json.Unmarshal(rec.Data, &item); err != nil {
		return item, fmt.Errorf("decode %s %s: %w", r.class, rec.ID, err)
	}
	return item, nil
}

func (r *Repository[T]) Search(ctx context.Context, criteria Criteria, cred Credential) ([]T, error) {
	records, err := r.driver.Search(ctx, r.class, criteria, cred)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.class, err)
	}
	items := make([]T, 0, len(records))
	for _, rec := range records {
		item, err := r.Decode(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Repository[T]) SearchAll(ctx context.Context, criteria Criteria, cred Credential) Cursor {
	return r.driver.SearchAll(ctx, r.class, criteria, cred)
}

func (r *Repository[T]) Read(ctx context.Context, id string, cred Credential) (T, error) {
	rec, err := r.driver.Read(ctx, r.class, id, cred)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read %s %s: %w", r.class, id, err)
	}
	return r.Decode(rec)
}

func (r *Repository[T]) Create(ctx context.Context, item T, acl models.ACL, cred Credential) (string, error) {
	body, err := encode(item)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", r.class, err)
	}
	id, err := r.driver.Create(ctx, r.class, body, acl, cred)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", r.class, err)
	}
	return id, nil
}

// Update writes every encoded field of item. Fields named in clear that the encoding left out
// are removed from the stored object.
func (r *Repository[T]) Update(ctx context.Context, item T, cred Credential, clear ...string) error {
	id := item.GetObjectID()
	if id == "" {
		return fmt.Errorf("update %s: missing objectId", r.class)
	}
	body, err := encode(item)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", r.class, id, err)
	}
	for _, field := range clear {
		if _, ok := body[field]; !ok {
			body[field] = Unset{}
		}
	}
	if err := r.driver.Update(ctx, r.class, id, body, cred); err != nil {
		return fmt.Errorf("update %s %s: %w", r.class, id, err)
	}
	return nil
}

func (r *Repository[T]) Delete(ctx context.Context, id string, cred Credential) error {
	if err := r.driver.Delete(ctx, r.class, id, cred); err != nil {
		return fmt.Errorf("delete %s %s: %w", r.class, id, err)
	}
	return nil
}

func encode(item interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	for _, key := range models.ReservedKeys {
		delete(body, key)
	}
	return body, nil
}
