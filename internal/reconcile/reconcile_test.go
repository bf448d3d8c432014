package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocerysync/internal/core/models"
)

func fptr(f float64) *float64 { return &f }

func priceAt(id string, current float64, updated time.Time) models.ProductPrice {
	return models.ProductPrice{
		Base:         models.Base{ObjectID: id, UpdatedAt: &updated},
		Status:       models.StatusActive,
		PriceDetails: models.PriceDetails{SpecialType: "none", CurrentPrice: fptr(current)},
	}
}

func desiredAt(current float64) models.ProductPrice {
	return models.ProductPrice{PriceDetails: models.PriceDetails{SpecialType: "none", CurrentPrice: fptr(current)}}
}

func TestPlanPriceCreatesWithoutCandidates(t *testing.T) {
	plan := PlanPrice(desiredAt(4.5), nil)
	require.NotNil(t, plan.Create)
	assert.Equal(t, models.StatusActive, plan.Create.Status)
	assert.Nil(t, plan.Update)
	assert.Empty(t, plan.Deactivate)
}

func TestPlanPriceSingleCandidate(t *testing.T) {
	now := time.Now()

	same := PlanPrice(desiredAt(4.5), []models.ProductPrice{priceAt("p1", 4.5, now)})
	assert.True(t, same.Empty())
	require.NotNil(t, same.Keep)
	assert.Equal(t, "p1", same.Keep.ObjectID)

	changed := PlanPrice(desiredAt(5), []models.ProductPrice{priceAt("p1", 4.5, now)})
	require.NotNil(t, changed.Update)
	assert.Equal(t, "p1", changed.Update.ObjectID)
	assert.Equal(t, 5.0, *changed.Update.PriceDetails.CurrentPrice)
	assert.Nil(t, changed.Create)
}

func TestPlanPriceKeepsLatestMatchingCandidate(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candidates := []models.ProductPrice{
		priceAt("c", 4.5, base),
		priceAt("b", 4.5, base.Add(time.Hour)),
		priceAt("a", 4.5, base.Add(time.Hour)),
		priceAt("d", 3.0, base.Add(2*time.Hour)),
	}

	plan := PlanPrice(desiredAt(4.5), candidates)
	require.NotNil(t, plan.Keep)
	assert.Equal(t, "a", plan.Keep.ObjectID, "latest updatedAt wins, ties go to the smallest id")
	assert.Nil(t, plan.Create)

	var ids []string
	for _, p := range plan.Deactivate {
		assert.Equal(t, models.StatusInactive, p.Status)
		ids = append(ids, p.ObjectID)
	}
	assert.Equal(t, []string{"b", "c", "d"}, ids)
}

func TestPlanPriceReplacesWhenNoCandidateMatches(t *testing.T) {
	now := time.Now()
	plan := PlanPrice(desiredAt(9), []models.ProductPrice{priceAt("a", 1, now), priceAt("b", 2, now)})
	require.NotNil(t, plan.Create)
	assert.Empty(t, plan.Create.ObjectID)
	assert.Len(t, plan.Deactivate, 2)
}

func TestPlanMissingDeactivatesAll(t *testing.T) {
	now := time.Now()
	plan := PlanMissing([]models.ProductPrice{priceAt("b", 1, now), priceAt("a", 2, now)})
	require.Len(t, plan.Deactivate, 2)
	assert.Equal(t, "a", plan.Deactivate[0].ObjectID)
	assert.Equal(t, models.StatusInactive, plan.Deactivate[1].Status)
}

func TestTagResolverFailsClosed(t *testing.T) {
	r := NewTagResolver([]models.Tag{
		{Base: models.Base{ObjectID: "t1"}, Key: "dairy"},
		{Base: models.Base{ObjectID: "t2"}, Key: "bakery"},
		{Base: models.Base{ObjectID: "t3"}, Key: "dup"},
		{Base: models.Base{ObjectID: "t4"}, Key: "dup"},
	})

	ids, err := r.Resolve([]string{" dairy", "bakery", "dairy", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)

	_, err = r.Resolve([]string{"dairy", "frozen"})
	assert.ErrorIs(t, err, ErrUnresolvedTag)

	_, err = r.Resolve([]string{"dup"})
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestStoreTagResolverFollowsLinks(t *testing.T) {
	r := NewStoreTagResolver([]models.StoreTag{
		{Base: models.Base{ObjectID: "s1"}, Key: "Milk & Cream", TagID: "t1"},
		{Base: models.Base{ObjectID: "s2"}, Key: "Fresh Milk", TagID: "t1"},
		{Base: models.Base{ObjectID: "s3"}, Key: "Unmapped"},
	})

	storeTagIDs, tagIDs, err := r.Resolve([]string{"Milk & Cream", "Fresh Milk", "Unmapped"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, storeTagIDs)
	assert.Equal(t, []string{"t1"}, tagIDs)

	_, _, err = r.Resolve([]string{"Nope"})
	assert.ErrorIs(t, err, ErrUnresolvedTag)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, NoOp, Classify(nil))
	assert.Equal(t, SkipAmbiguous, Classify(ErrAmbiguous))
	assert.Equal(t, SkipUnresolved, Classify(ErrUnresolvedTag))
	assert.Equal(t, SkipInvalid, Classify(ErrInvalidRow))
	assert.Equal(t, Failed, Classify(assert.AnError))
}
