package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocerysync/internal/backend/memstore"
	"grocerysync/internal/core/models"
)

func TestCloneReplacesUserCopies(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	cred, err := store.LogIn(ctx, "admin", "pw")
	require.NoError(t, err)

	store.Put(models.ClassStapleItem, "old1", map[string]interface{}{"userId": "u1", "name": "Old"}, time.Time{})
	store.Put(models.ClassStapleItem, "other", map[string]interface{}{"userId": "u2", "name": "Keep"}, time.Time{})

	templates := []models.StapleTemplateItem{
		{Base: models.Base{ObjectID: "t1"}, Name: "Milk", TagIDs: []string{"dairyId"}, Popular: true},
		{Base: models.Base{ObjectID: "t2"}, Name: "Bread"},
	}

	cloner := NewStapleItemCloner(store, cred, 4)
	res := cloner.CloneForUser(ctx, templates, "u1")
	require.NoError(t, res.Err)
	assert.Equal(t, Created, res.Outcome)
	assert.Equal(t, Ops{Created: 2, Deleted: 1}, res.Ops)

	items := all[models.StapleItem](t, store, models.ClassStapleItem)
	byUser := map[string][]models.StapleItem{}
	for _, it := range items {
		byUser[it.UserID] = append(byUser[it.UserID], it)
	}
	require.Len(t, byUser["u1"], 2)
	require.Len(t, byUser["u2"], 1)

	for _, it := range byUser["u1"] {
		assert.NotEqual(t, "Old", it.Name)
		assert.NotNil(t, it.TagIDs)
		assert.Equal(t, models.NewUserACL("u1"), store.ACL(models.ClassStapleItem, it.ObjectID))
	}

	// a second run replaces rather than accumulates
	res = cloner.CloneForUser(ctx, templates, "u1")
	assert.Equal(t, Ops{Created: 2, Deleted: 2}, res.Ops)
	assert.Len(t, store.Objects(models.ClassStapleItem), 3)
}

func TestCloneShoppingListCopiesDescription(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	cred, err := store.LogIn(ctx, "admin", "pw")
	require.NoError(t, err)

	cloner := NewStapleShoppingListCloner(store, cred, 0)
	res := cloner.CloneForUser(ctx, []models.StapleTemplateShoppingList{
		{Base: models.Base{ObjectID: "l1"}, Description: "Weekly", TagIDs: []string{"dairyId"}},
	}, "u1")
	require.NoError(t, res.Err)

	lists := all[models.StapleShoppingList](t, store, models.ClassStapleShoppingList)
	require.Len(t, lists, 1)
	assert.Equal(t, "Weekly", lists[0].Description)
	assert.Equal(t, "l1", lists[0].StapleTemplateShoppingListID)
	assert.Equal(t, []string{"dairyId"}, lists[0].TagIDs)
}

func TestCloneRejectsEmptyUser(t *testing.T) {
	store := memstore.New()
	cred, err := store.LogIn(context.Background(), "admin", "pw")
	require.NoError(t, err)

	res := NewStapleItemCloner(store, cred, 1).CloneForUser(context.Background(), nil, "")
	assert.Equal(t, Failed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrInvalidRow)
}
