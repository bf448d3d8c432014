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

// ImportStapleTemplateItems upserts template items from a name,popular,tags CSV. Tags inside the
// third column are separated by "|".
type ImportStapleTemplateItems struct {
	CSV CSVInput
}

func (j *ImportStapleTemplateItems) Name() string { return "import-staple-template-items" }

func (j *ImportStapleTemplateItems) Description() string {
	return "create or update staple template items from a name,popular,tags CSV"
}

func (j *ImportStapleTemplateItems) Bind(fs *flag.FlagSet) { j.CSV.Bind(fs) }

func (j *ImportStapleTemplateItems) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
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
	items, err := LoadStapleTemplateItems(ctx, env.Driver, cred)
	if err != nil {
		return reconcile.Summary{}, err
	}

	repo := backend.NewRepository[models.StapleTemplateItem](env.Driver, models.ClassStapleTemplateItem)
	resolver := reconcile.NewTagResolver(tags)
	index := reconcile.NewIndex(items, func(i models.StapleTemplateItem) string { return i.Name })
	rows = dedupeRows(env, rows, 0)

	return reconcile.Run(ctx, env.orchestrator(j.Name(), 0), rows, func(ctx context.Context, row csvio.Row) reconcile.Result {
		name := strings.TrimSpace(row.Cell(0))
		if err := row.Expect(3); err != nil {
			return atLine(row, reconcile.Skip(name, err))
		}
		if name == "" {
			return atLine(row, reconcile.Skip(name, fmt.Errorf("empty item name: %w", reconcile.ErrInvalidRow)))
		}
		tagIDs, err := resolver.Resolve(splitKeys(row.Cell(2), "|"))
		if err != nil {
			return atLine(row, reconcile.Skip(name, err))
		}
		desired := models.StapleTemplateItem{Name: name, TagIDs: tagIDs, Popular: strings.TrimSpace(row.Cell(1)) != ""}

		return atLine(row, upsertByKey(ctx, repo, index, name, desired, cred,
			func(existing models.StapleTemplateItem) bool {
				return existing.Popular == desired.Popular && sameSet(existing.TagIDs, desired.TagIDs)
			},
			func(existing models.StapleTemplateItem) models.StapleTemplateItem {
				desired.Base = existing.Base
				return desired
			}))
	}), nil
}

// ImportStapleTemplateShoppingLists upserts template shopping lists from a headerless
// description,tag,tag,... CSV.
type ImportStapleTemplateShoppingLists struct {
	CSV CSVInput
}

func (j *ImportStapleTemplateShoppingLists) Name() string {
	return "import-staple-template-shopping-list"
}

func (j *ImportStapleTemplateShoppingLists) Description() string {
	return "create or update staple template shopping lists from a description,tags... CSV"
}

func (j *ImportStapleTemplateShoppingLists) Bind(fs *flag.FlagSet) { j.CSV.Bind(fs) }

func (j *ImportStapleTemplateShoppingLists) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	rows, err := j.CSV.Read(ctx, env, false)
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
	lists, err := LoadStapleTemplateShoppingLists(ctx, env.Driver, cred)
	if err != nil {
		return reconcile.Summary{}, err
	}

	repo := backend.NewRepository[models.StapleTemplateShoppingList](env.Driver, models.ClassStapleTemplateShoppingList)
	resolver := reconcile.NewTagResolver(tags)
	index := reconcile.NewIndex(lists, func(l models.StapleTemplateShoppingList) string { return l.Description })
	rows = dedupeRows(env, rows, 0)

	return reconcile.Run(ctx, env.orchestrator(j.Name(), 0), rows, func(ctx context.Context, row csvio.Row) reconcile.Result {
		description := strings.TrimSpace(row.Cell(0))
		if err := row.Expect(1); err != nil {
			return atLine(row, reconcile.Skip(description, err))
		}
		if description == "" {
			return atLine(row, reconcile.Skip(description, fmt.Errorf("empty description: %w", reconcile.ErrInvalidRow)))
		}
		tagIDs, err := resolver.Resolve(row.Fields[1:])
		if err != nil {
			return atLine(row, reconcile.Skip(description, err))
		}
		desired := models.StapleTemplateShoppingList{Description: description, TagIDs: tagIDs}

		return atLine(row, upsertByKey(ctx, repo, index, description, desired, cred,
			func(existing models.StapleTemplateShoppingList) bool {
				return sameSet(existing.TagIDs, desired.TagIDs)
			},
			func(existing models.StapleTemplateShoppingList) models.StapleTemplateShoppingList {
				desired.Base = existing.Base
				return desired
			}))
	}), nil
}

// upsertByKey creates desired when nothing matches key, updates the single match unless same
// reports it unchanged, and skips ambiguous keys.
func upsertByKey[T models.Object](
	ctx context.Context,
	repo *backend.Repository[T],
	index *reconcile.Index[T],
	key string,
	desired T,
	cred backend.Credential,
	same func(existing T) bool,
	merge func(existing T) T,
) reconcile.Result {
	m := index.Match(key)
	switch m.Kind {
	case reconcile.NoMatch:
		if _, err := repo.Create(ctx, desired, nil, cred); err != nil {
			return reconcile.Skip(key, err)
		}
		return reconcile.Done(key, reconcile.Created, reconcile.Ops{Created: 1})
	case reconcile.ManyMatches:
		return reconcile.Skip(key, fmt.Errorf("%s %q matches %d records: %w", repo.Class(), key, len(m.Items), reconcile.ErrAmbiguous))
	}

	existing := m.One()
	if same(existing) {
		return reconcile.Done(key, reconcile.NoOp, reconcile.Ops{})
	}
	if err := repo.Update(ctx, merge(existing), cred); err != nil {
		return reconcile.Skip(key, err)
	}
	return reconcile.Done(key, reconcile.Updated, reconcile.Ops{Updated: 1})
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

// CloneStapleItems gives each user a fresh copy of every staple template item.
type CloneStapleItems struct {
	UserIDs string
}

func (j *CloneStapleItems) Name() string { return "clone-staple-items" }

func (j *CloneStapleItems) Description() string {
	return "replace each user's staple items with copies of the template items"
}

func (j *CloneStapleItems) Bind(fs *flag.FlagSet) {
	fs.StringVar(&j.UserIDs, "userIds", "", "comma separated user ids")
}

func (j *CloneStapleItems) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	userIDs := splitKeys(j.UserIDs, ",")
	if len(userIDs) == 0 {
		env.Log.Warn("no user ids provided, nothing to clone")
		return reconcile.NewSummary(), nil
	}
	cred, err := env.session(ctx)
	if err != nil {
		return reconcile.Summary{}, err
	}
	templates, err := LoadStapleTemplateItems(ctx, env.Driver, cred)
	if err != nil {
		return reconcile.Summary{}, err
	}

	cloner := reconcile.NewStapleItemCloner(env.Driver, cred, env.Config.Sync.ChunkSize)
	return reconcile.Run(ctx, env.orchestrator(j.Name(), 0), userIDs, func(ctx context.Context, userID string) reconcile.Result {
		return cloner.CloneForUser(ctx, templates, userID)
	}), nil
}

// CloneStapleShoppingLists gives one user a fresh copy of every template shopping list.
type CloneStapleShoppingLists struct {
	UserID string
}

func (j *CloneStapleShoppingLists) Name() string { return "clone-staple-template-shopping-list" }

func (j *CloneStapleShoppingLists) Description() string {
	return "replace a user's staple shopping lists with copies of the templates"
}

func (j *CloneStapleShoppingLists) Bind(fs *flag.FlagSet) {
	fs.StringVar(&j.UserID, "userId", "", "user id")
}

func (j *CloneStapleShoppingLists) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	userID := strings.TrimSpace(j.UserID)
	if userID == "" {
		return reconcile.Summary{}, usageError("--userId must be provided")
	}
	cred, err := env.session(ctx)
	if err != nil {
		return reconcile.Summary{}, err
	}
	templates, err := LoadStapleTemplateShoppingLists(ctx, env.Driver, cred)
	if err != nil {
		return reconcile.Summary{}, err
	}

	cloner := reconcile.NewStapleShoppingListCloner(env.Driver, cred, env.Config.Sync.ChunkSize)
	return reconcile.Run(ctx, env.orchestrator(j.Name(), 0), []string{userID}, func(ctx context.Context, userID string) reconcile.Result {
		return cloner.CloneForUser(ctx, templates, userID)
	}), nil
}
