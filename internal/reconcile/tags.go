package reconcile

import (
	"fmt"
	"strings"

	"grocerysync/internal/core/models"
)

// TagResolver maps tag keys to objectIds. Every key of a row must resolve or the row fails.
type TagResolver struct {
	index *Index[models.Tag]
}

func NewTagResolver(tags []models.Tag) *TagResolver {
	return &TagResolver{index: NewIndex(tags, func(t models.Tag) string { return t.Key })}
}

func (r *TagResolver) Resolve(keys []string) ([]string, error) {
	ids := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		m := r.index.Match(key)
		switch m.Kind {
		case NoMatch:
			return nil, fmt.Errorf("tag %q: %w", key, ErrUnresolvedTag)
		case ManyMatches:
			return nil, fmt.Errorf("tag %q matches %d tags: %w", key, len(m.Items), ErrAmbiguous)
		}
		id := m.One().ObjectID
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// StoreTagResolver maps a store's own category keys to store tags and, through their link,
// to global tags.
type StoreTagResolver struct {
	index *Index[models.StoreTag]
}

func NewStoreTagResolver(storeTags []models.StoreTag) *StoreTagResolver {
	return &StoreTagResolver{index: NewIndex(storeTags, func(t models.StoreTag) string { return t.Key })}
}

// Resolve returns the store tag ids and the distinct linked tag ids. A store tag that is not
// linked to a tag yet contributes no tag id.
func (r *StoreTagResolver) Resolve(keys []string) (storeTagIDs, tagIDs []string, err error) {
	seenTag := map[string]bool{}
	seenStoreTag := map[string]bool{}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		m := r.index.Match(key)
		switch m.Kind {
		case NoMatch:
			return nil, nil, fmt.Errorf("store tag %q: %w", key, ErrUnresolvedTag)
		case ManyMatches:
			return nil, nil, fmt.Errorf("store tag %q matches %d store tags: %w", key, len(m.Items), ErrAmbiguous)
		}
		st := m.One()
		if !seenStoreTag[st.ObjectID] {
			seenStoreTag[st.ObjectID] = true
			storeTagIDs = append(storeTagIDs, st.ObjectID)
		}
		if st.TagID != "" && !seenTag[st.TagID] {
			seenTag[st.TagID] = true
			tagIDs = append(tagIDs, st.TagID)
		}
	}
	return storeTagIDs, tagIDs, nil
}
