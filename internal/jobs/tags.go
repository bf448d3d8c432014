package jobs

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
	"grocerysync/internal/reconcile"
	"grocerysync/pkg/csvio"
)

// ImportTags upserts global tags from a key,name CSV.
type ImportTags struct {
	CSV CSVInput
}

func (j *ImportTags) Name() string { return "import-tags" }

func (j *ImportTags) Description() string {
	return "create or update tags from a key,name CSV"
}

func (j *ImportTags) Bind(fs *flag.FlagSet) { j.CSV.Bind(fs) }

func (j *ImportTags) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	rows, err := j.CSV.Read(ctx, env, true)
	if err != nil {
		return reconcile.Summary{}, err
	}
	cred, err := env.session(ctx)
	if err != nil {
		return reconcile.Summary{}, err
	}
	tags, err := LoadTags(ctx, env.Driver, cred)
	if err != nil {
		return reconcile.Summary{}, err
	}

	repo := backend.NewRepository[models.Tag](env.Driver, models.ClassTag)
	index := reconcile.NewIndex(tags, func(t models.Tag) string { return t.Key })
	rows = dedupeRows(env, rows, 0)

	return reconcile.Run(ctx, env.orchestrator(j.Name(), 0), rows, func(ctx context.Context, row csvio.Row) reconcile.Result {
		return atLine(row, importTag(ctx, repo, index, row, cred))
	}), nil
}

func importTag(ctx context.Context, repo *backend.Repository[models.Tag], index *reconcile.Index[models.Tag], row csvio.Row, cred backend.Credential) reconcile.Result {
	key := strings.TrimSpace(row.Cell(0))
	if err := row.Expect(1); err != nil {
		return reconcile.Skip(key, err)
	}
	if key == "" {
		return reconcile.Skip(key, fmt.Errorf("empty tag key: %w", reconcile.ErrInvalidRow))
	}
	desired := models.Tag{Key: key, Name: row.Cell(1), Level: 1, ForDisplay: true}

	m := index.Match(key)
	switch m.Kind {
	case reconcile.NoMatch:
		if _, err := repo.Create(ctx, desired, nil, cred); err != nil {
			return reconcile.Skip(key, err)
		}
		return reconcile.Done(key, reconcile.Created, reconcile.Ops{Created: 1})
	case reconcile.ManyMatches:
		return reconcile.Skip(key, fmt.Errorf("tag %q matches %d tags: %w", key, len(m.Items), reconcile.ErrAmbiguous))
	}

	existing := m.One()
	if existing.Name == desired.Name && existing.Level == desired.Level && existing.ForDisplay {
		return reconcile.Done(key, reconcile.NoOp, reconcile.Ops{})
	}
	desired.Base = existing.Base
	if err := repo.Update(ctx, desired, cred, "name"); err != nil {
		return reconcile.Skip(key, err)
	}
	return reconcile.Done(key, reconcile.Updated, reconcile.Ops{Updated: 1})
}

// UpdateStoreTags links store tags to global tags. Column 0 holds the store tag key and
// column 6 the tag key.
type UpdateStoreTags struct {
	CSV      CSVInput
	StoreKey string
}

func (j *UpdateStoreTags) Name() string { return "update-store-tags" }

func (j *UpdateStoreTags) Description() string {
	return "link a store's tags to global tags from a CSV"
}

func (j *UpdateStoreTags) Bind(fs *flag.FlagSet) {
	j.CSV.Bind(fs)
	fs.StringVar(&j.StoreKey, "storeKey", "", "store key")
}

func (j *UpdateStoreTags) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	if err := requireStoreKey(j.StoreKey); err != nil {
		return reconcile.Summary{}, err
	}
	rows, err := j.CSV.Read(ctx, env, true)
	if err != nil {
		return reconcile.Summary{}, err
	}
	cred, err := env.session(ctx)
	if err != nil {
		return reconcile.Summary{}, err
	}
	store, err := GetStore(ctx, env.Driver, cred, j.StoreKey)
	if err != nil {
		return reconcile.Summary{}, err
	}
	storeTags, err := LoadStoreTags(ctx, env.Driver, cred, store.ObjectID)
	if err != nil {
		return reconcile.Summary{}, err
	}
	tags, err := LoadTags(ctx, env.Driver, cred)
	if err != nil {
		return reconcile.Summary{}, err
	}

	repo := backend.NewRepository[models.StoreTag](env.Driver, models.ClassStoreTag)
	storeTagIndex := reconcile.NewIndex(storeTags, func(t models.StoreTag) string { return t.Key })
	tagIndex := reconcile.NewIndex(tags, func(t models.Tag) string { return t.Key })
	rows = dedupeRows(env, rows, 0)

	return reconcile.Run(ctx, env.orchestrator(j.Name(), 0), rows, func(ctx context.Context, row csvio.Row) reconcile.Result {
		storeTagKey := strings.TrimSpace(row.Cell(0))
		tagKey := strings.TrimSpace(row.Cell(6))
		if row.Err != nil {
			return atLine(row, reconcile.Skip(storeTagKey, row.Err))
		}
		if tagKey == "" {
			return atLine(row, reconcile.Skip(storeTagKey, fmt.Errorf("no tag set for store tag %q: %w", storeTagKey, reconcile.ErrUnresolvedTag)))
		}

		st := storeTagIndex.Match(storeTagKey)
		if st.Kind == reconcile.NoMatch {
			return atLine(row, reconcile.Skip(storeTagKey, fmt.Errorf("store tag %q not found: %w", storeTagKey, reconcile.ErrUnresolvedTag)))
		}
		if st.Kind == reconcile.ManyMatches {
			return atLine(row, reconcile.Skip(storeTagKey, fmt.Errorf("store tag %q: %w", storeTagKey, reconcile.ErrAmbiguous)))
		}
		tag := tagIndex.Match(tagKey)
		if tag.Kind == reconcile.NoMatch {
			return atLine(row, reconcile.Skip(storeTagKey, fmt.Errorf("tag %q not found: %w", tagKey, reconcile.ErrUnresolvedTag)))
		}
		if tag.Kind == reconcile.ManyMatches {
			return atLine(row, reconcile.Skip(storeTagKey, fmt.Errorf("tag %q: %w", tagKey, reconcile.ErrAmbiguous)))
		}

		storeTag := st.One()
		if storeTag.TagID == tag.One().ObjectID {
			return atLine(row, reconcile.Done(storeTagKey, reconcile.NoOp, reconcile.Ops{}))
		}
		storeTag.TagID = tag.One().ObjectID
		if err := repo.Update(ctx, storeTag, cred); err != nil {
			return atLine(row, reconcile.Skip(storeTagKey, err))
		}
		return atLine(row, reconcile.Done(storeTagKey, reconcile.Updated, reconcile.Ops{Updated: 1}))
	}), nil
}

// dedupeRows collapses rows sharing the value of column col; the last one wins. Rows the parser
// rejected are all kept.
func dedupeRows(env *Env, rows []csvio.Row, col int) []csvio.Row {
	kept, dropped := reconcile.Dedupe(rows, func(r csvio.Row) string {
		if r.Err != nil {
			return fmt.Sprintf("\x00line:%d", r.Line)
		}
		return strings.TrimSpace(r.Cell(col))
	})
	if dropped > 0 {
		env.Log.Warn("duplicate keys in csv, keeping the last row", "dropped", dropped)
	}
	return kept
}

func atLine(row csvio.Row, res reconcile.Result) reconcile.Result {
	res.Line = row.Line
	if res.Key == "" {
		res.Key = rowKey("", row.Line)
	}
	return res
}
