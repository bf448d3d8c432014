package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
)

func login(t *testing.T, s *Store) backend.Credential {
	t.Helper()
	cred, err := s.LogIn(context.Background(), "crawler", "pw")
	require.NoError(t, err)
	return cred
}

func TestRejectsCallsWithoutSession(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Search(ctx, models.ClassTag, backend.Criteria{}, backend.Credential{})
	assert.ErrorIs(t, err, backend.ErrUnauthorized)

	_, err = s.Create(ctx, models.ClassTag, map[string]interface{}{"key": "dairy"}, nil, backend.Credential{Token: "forged"})
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
}

func TestSignedUpUserNeedsPassword(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.SignUp(ctx, "crawler", "right")
	require.NoError(t, err)

	_, err = s.LogIn(ctx, "crawler", "wrong")
	assert.ErrorIs(t, err, backend.ErrUnauthorized)

	cred, err := s.LogIn(ctx, "crawler", "right")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Token)
	assert.NotEmpty(t, cred.UserID)
}

func TestUpdateMergesAndUnsets(t *testing.T) {
	s := New()
	ctx := context.Background()
	cred := login(t, s)

	id, err := s.Create(ctx, models.ClassProductPrice, map[string]interface{}{
		"name":     "Milk",
		"wasPrice": 5.0,
		"status":   "A",
	}, nil, cred)
	require.NoError(t, err)

	before, err := s.Read(ctx, models.ClassProductPrice, id, cred)
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, models.ClassProductPrice, id, map[string]interface{}{
		"status":   "I",
		"wasPrice": backend.Unset{},
	}, cred))

	repo := backend.NewRepository[models.ProductPrice](s, models.ClassProductPrice)
	after, err := repo.Read(ctx, id, cred)
	require.NoError(t, err)
	assert.Equal(t, "Milk", after.Name)
	assert.Equal(t, models.StatusInactive, after.Status)
	assert.Nil(t, after.WasPrice)

	old, err := repo.Decode(before)
	require.NoError(t, err)
	assert.True(t, after.UpdatedAtOrZero().After(old.UpdatedAtOrZero()))
}

func TestSearchConditionsAndExists(t *testing.T) {
	s := New()
	ctx := context.Background()
	cred := login(t, s)

	s.Put(models.ClassMasterProduct, "a", map[string]interface{}{"name": "A", "imageUrl": "http://x/a.png"}, time.Time{})
	s.Put(models.ClassMasterProduct, "b", map[string]interface{}{"name": "B"}, time.Time{})
	s.Put(models.ClassStoreProduct, "c", map[string]interface{}{"storeId": "s1", "createdByCrawler": true}, time.Time{})
	s.Put(models.ClassStoreProduct, "d", map[string]interface{}{"storeId": "s1", "createdByCrawler": false}, time.Time{})

	missing, err := s.Search(ctx, models.ClassMasterProduct, backend.Criteria{}.Without("imageUrl"), cred)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "b", missing[0].ID)

	crawled, err := s.Search(ctx, models.ClassStoreProduct, backend.Where("storeId", "s1").And("createdByCrawler", true), cred)
	require.NoError(t, err)
	require.Len(t, crawled, 1)
	assert.Equal(t, "c", crawled[0].ID)
}

func TestSearchAllPagesThroughEverything(t *testing.T) {
	s := New(WithPageSize(7))
	ctx := context.Background()
	cred := login(t, s)

	for i := 0; i < 30; i++ {
		s.Put(models.ClassTag, fmt.Sprintf("t%03d", i), map[string]interface{}{"key": fmt.Sprintf("k%d", i)}, time.Time{})
	}

	cur := s.SearchAll(ctx, models.ClassTag, backend.Criteria{}, cred)
	defer cur.Close()
	var ids []string
	for cur.Next(ctx) {
		ids = append(ids, cur.Record().ID)
	}
	require.NoError(t, cur.Err())
	assert.Len(t, ids, 30)
	assert.Equal(t, "t000", ids[0])
	assert.Equal(t, "t029", ids[29])
}

func TestCreateKeepsACL(t *testing.T) {
	s := New()
	ctx := context.Background()
	cred := login(t, s)

	id, err := s.Create(ctx, models.ClassStapleItem, map[string]interface{}{"name": "Bread"}, models.NewUserACL("u1"), cred)
	require.NoError(t, err)
	assert.Equal(t, models.NewUserACL("u1"), s.ACL(models.ClassStapleItem, id))

	require.NoError(t, s.Delete(ctx, models.ClassStapleItem, id, cred))
	assert.ErrorIs(t, s.Delete(ctx, models.ClassStapleItem, id, cred), backend.ErrNotFound)
}
