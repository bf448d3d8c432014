package reconcile

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
)

// Cloner replaces a user's copies of template records with fresh copies of the current
// templates. Existing copies are deleted first; every new copy is readable and writable by
// its user only.
type Cloner[S, D models.Object] struct {
	Copies      *backend.Repository[D]
	OwnerField  string
	Build       func(template S, userID string) D
	Cred        backend.Credential
	Concurrency int
}

// CloneForUser runs the full replace for one user. Any failed delete stops before the creates
// so a user never ends up with old and new copies mixed.
func (c *Cloner[S, D]) CloneForUser(ctx context.Context, templates []S, userID string) Result {
	ops, err := c.clone(ctx, templates, userID)
	if err != nil {
		return Result{Key: userID, Outcome: Failed, Ops: ops, Err: err}
	}
	if ops.Created == 0 && ops.Deleted == 0 {
		return Done(userID, NoOp, ops)
	}
	return Done(userID, Created, ops)
}

func (c *Cloner[S, D]) clone(ctx context.Context, templates []S, userID string) (Ops, error) {
	var ops Ops
	if userID == "" {
		return ops, fmt.Errorf("empty user id: %w", ErrInvalidRow)
	}

	existing, err := LoadAll(ctx, c.Copies, backend.Where(c.OwnerField, userID), c.Cred)
	if err != nil {
		return ops, err
	}

	deleted, err := c.each(ctx, len(existing), func(ctx context.Context, i int) error {
		return c.Copies.Delete(ctx, existing[i].GetObjectID(), c.Cred)
	})
	ops.Deleted = deleted
	if err != nil {
		return ops, fmt.Errorf("remove copies of user %s: %w", userID, err)
	}

	acl := models.NewUserACL(userID)
	created, err := c.each(ctx, len(templates), func(ctx context.Context, i int) error {
		_, err := c.Copies.Create(ctx, c.Build(templates[i], userID), acl, c.Cred)
		return err
	})
	ops.Created = created
	if err != nil {
		return ops, fmt.Errorf("create copies for user %s: %w", userID, err)
	}
	return ops, nil
}

// each runs fn for 0..n-1 with bounded concurrency and returns how many calls succeeded.
func (c *Cloner[S, D]) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	done := make([]bool, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := fn(ctx, i); err != nil {
				return err
			}
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	count := 0
	for _, ok := range done {
		if ok {
			count++
		}
	}
	return count, err
}

func NewStapleItemCloner(driver backend.Driver, cred backend.Credential, concurrency int) *Cloner[models.StapleTemplateItem, models.StapleItem] {
	return &Cloner[models.StapleTemplateItem, models.StapleItem]{
		Copies:     backend.NewRepository[models.StapleItem](driver, models.ClassStapleItem),
		OwnerField: "userId",
		Build: func(t models.StapleTemplateItem, userID string) models.StapleItem {
			return models.StapleItem{
				UserID:               userID,
				StapleTemplateItemID: t.ObjectID,
				Name:                 t.Name,
				TagIDs:               nonNil(t.TagIDs),
				Popular:              t.Popular,
			}
		},
		Cred:        cred,
		Concurrency: concurrency,
	}
}

func NewStapleShoppingListCloner(driver backend.Driver, cred backend.Credential, concurrency int) *Cloner[models.StapleTemplateShoppingList, models.StapleShoppingList] {
	return &Cloner[models.StapleTemplateShoppingList, models.StapleShoppingList]{
		Copies:     backend.NewRepository[models.StapleShoppingList](driver, models.ClassStapleShoppingList),
		OwnerField: "userId",
		Build: func(t models.StapleTemplateShoppingList, userID string) models.StapleShoppingList {
			return models.StapleShoppingList{
				UserID:                       userID,
				StapleTemplateShoppingListID: t.ObjectID,
				Description:                  t.Description,
				TagIDs:                       nonNil(t.TagIDs),
			}
		},
		Cred:        cred,
		Concurrency: concurrency,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
