package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocerysync/internal/backend"
	"grocerysync/internal/backend/memstore"
	"grocerysync/internal/core/models"
	"grocerysync/internal/pricing"
)

const storeID = "store1"

type fixture struct {
	store *memstore.Store
	cred  backend.Credential
	sync  *PriceSync
	o     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New(memstore.WithPageSize(3))
	cred, err := store.LogIn(context.Background(), "importer", "pw")
	require.NoError(t, err)

	store.Put(models.ClassTag, "dairyId", map[string]interface{}{"key": "dairy"}, time.Time{})
	store.Put(models.ClassTag, "bakeryId", map[string]interface{}{"key": "bakery"}, time.Time{})

	ps := NewPriceSync(store, cred, storeID, false, nil)
	ps.Tags = NewTagResolver([]models.Tag{
		{Base: models.Base{ObjectID: "dairyId"}, Key: "dairy"},
		{Base: models.Base{ObjectID: "bakeryId"}, Key: "bakery"},
	})
	return &fixture{store: store, cred: cred, sync: ps, o: NewOrchestrator("test", 2, 0, nil)}
}

func toMap(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	m := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func all[T models.Object](t *testing.T, store *memstore.Store, class string) []T {
	t.Helper()
	repo := backend.NewRepository[T](store, class)
	var out []T
	for _, rec := range store.Objects(class) {
		item, err := repo.Decode(rec)
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func active(t *testing.T, store *memstore.Store) []models.ProductPrice {
	var out []models.ProductPrice
	for _, p := range all[models.ProductPrice](t, store, models.ClassProductPrice) {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

func milkRow() PriceRow {
	return PriceRow{
		Line:    2,
		Name:    "Milk 2L",
		Size:    "2L",
		Barcode: "2.25",
		TagKeys: []string{"dairy"},
		Price: pricing.RawPrice{
			SpecialType:  "none",
			CurrentPrice: "4.50",
			OfferEndDate: "31/12/2099",
			MultiBuy:     "500ml",
		},
	}
}

func TestSyncCreatesProductAndPrice(t *testing.T) {
	f := newFixture(t)

	summary, err := f.sync.Sync(context.Background(), f.o, []PriceRow{milkRow()}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(Created))
	assert.Equal(t, Ops{Created: 2}, summary.Ops)

	products := all[models.StoreProduct](t, f.store, models.ClassStoreProduct)
	require.Len(t, products, 1)
	assert.Equal(t, "Milk 2L", products[0].Name)
	assert.Equal(t, "2L", products[0].Size)
	assert.Equal(t, "2.25", products[0].Barcode)
	assert.Equal(t, []string{"dairyId"}, products[0].TagIDs)
	assert.Equal(t, storeID, products[0].StoreID)

	prices := active(t, f.store)
	require.Len(t, prices, 1)
	p := prices[0]
	assert.Equal(t, products[0].ObjectID, p.StoreProductID)
	require.NotNil(t, p.CurrentPrice)
	assert.Equal(t, 4.5, *p.CurrentPrice)
	assert.Equal(t, 4.5, p.PriceToDisplay)
	assert.False(t, p.Special)
	assert.Equal(t, models.StatusActive, p.Status)
	assert.Nil(t, p.PriceDetails.MultiBuyInfo)
	require.NotNil(t, p.OfferEndDate)
	assert.Equal(t, 2099, p.OfferEndDate.Year())
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	rows := []PriceRow{milkRow(), {Name: "Bread", TagKeys: []string{"bakery"}, Price: pricing.RawPrice{CurrentPrice: "2", WasPrice: "3"}}}

	_, err := f.sync.Sync(context.Background(), f.o, rows, true)
	require.NoError(t, err)
	before := len(f.store.Objects(models.ClassProductPrice))

	second, err := f.sync.Sync(context.Background(), f.o, rows, true)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count(NoOp))
	assert.Equal(t, Ops{}, second.Ops)
	assert.Len(t, f.store.Objects(models.ClassProductPrice), before)
	assert.Len(t, active(t, f.store), 2)
}

func TestSyncUpdatesChangedPriceInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := PriceRow{Name: "Bread", Price: pricing.RawPrice{CurrentPrice: "2", WasPrice: "3"}}
	_, err := f.sync.Sync(ctx, f.o, []PriceRow{first}, true)
	require.NoError(t, err)

	second := PriceRow{Name: "Bread", Price: pricing.RawPrice{CurrentPrice: "2.5"}}
	summary, err := f.sync.Sync(ctx, f.o, []PriceRow{second}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(Updated))

	prices := all[models.ProductPrice](t, f.store, models.ClassProductPrice)
	require.Len(t, prices, 1)
	assert.Equal(t, 2.5, *prices[0].CurrentPrice)
	assert.Nil(t, prices[0].WasPrice, "an absent wasPrice is cleared from the stored price")
	assert.Equal(t, 0.0, prices[0].Saving)
}

func TestSyncConvergesDuplicateActivePrices(t *testing.T) {
	f := newFixture(t)

	product := models.StoreProduct{StoreID: storeID, Name: "Bread", TagIDs: []string{}}
	f.store.Put(models.ClassStoreProduct, "prod1", toMap(t, product), time.Time{})

	row := PriceRow{Name: "Bread", Price: pricing.RawPrice{CurrentPrice: "2"}}
	n, err := pricing.Normalize(row.Price)
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	seed := func(id string, details models.PriceDetails, at time.Time) {
		p := models.ProductPrice{StoreID: storeID, StoreProductID: "prod1", Name: "Bread", Status: models.StatusActive, PriceDetails: details, TagIDs: []string{}}
		f.store.Put(models.ClassProductPrice, id, toMap(t, p), at)
	}
	seed("pa", n.Details, base)
	seed("pb", n.Details, base.Add(time.Hour))
	seed("pc", n.Details, base.Add(time.Minute))
	stale := n.Details
	stale.CurrentPrice = fptr(9)
	seed("pd", stale, base.Add(2*time.Hour))

	summary, err := f.sync.Sync(context.Background(), f.o, []PriceRow{row}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Ops.Deactivated)
	assert.Equal(t, 0, summary.Ops.Created)

	prices := active(t, f.store)
	require.Len(t, prices, 1)
	assert.Equal(t, "pb", prices[0].ObjectID)
	assert.Len(t, f.store.Objects(models.ClassProductPrice), 4, "superseded prices are kept as Inactive")
}

func TestSyncSkipsRowWithUnresolvedTagButNotSiblings(t *testing.T) {
	f := newFixture(t)
	rows := []PriceRow{
		milkRow(),
		{Line: 3, Name: "Cake", TagKeys: []string{"frozen"}, Price: pricing.RawPrice{CurrentPrice: "7"}},
		{Line: 4, Name: "Bread", TagKeys: []string{"bakery"}, Price: pricing.RawPrice{CurrentPrice: "2"}},
	}

	summary, err := f.sync.Sync(context.Background(), f.o, rows, true)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count(Created))
	assert.Equal(t, 1, summary.Count(SkipUnresolved))
	assert.Equal(t, 3, summary.Results[1].Line)

	names := map[string]bool{}
	for _, p := range all[models.StoreProduct](t, f.store, models.ClassStoreProduct) {
		names[p.Name] = true
	}
	assert.Equal(t, map[string]bool{"Milk 2L": true, "Bread": true}, names)
}

func TestSyncSkipsInvalidAndAmbiguousRows(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"d1", "d2"} {
		f.store.Put(models.ClassStoreProduct, id, toMap(t, models.StoreProduct{StoreID: storeID, Name: "Dup"}), time.Time{})
	}

	rows := []PriceRow{
		{Name: "Bad", Price: pricing.RawPrice{CurrentPrice: "abc"}},
		{Name: "Dup", Price: pricing.RawPrice{CurrentPrice: "1"}},
		{Name: "  ", Price: pricing.RawPrice{CurrentPrice: "1"}},
	}
	summary, err := f.sync.Sync(context.Background(), f.o, rows, true)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count(SkipInvalid))
	assert.Equal(t, 1, summary.Count(SkipAmbiguous))
	assert.Empty(t, f.store.Objects(models.ClassProductPrice))
}

func TestSyncDeactivatesProductsMissingFromFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bread := PriceRow{Name: "Bread", Price: pricing.RawPrice{CurrentPrice: "2"}}

	_, err := f.sync.Sync(ctx, f.o, []PriceRow{milkRow(), bread}, true)
	require.NoError(t, err)

	kept, err := f.sync.Sync(ctx, f.o, []PriceRow{bread}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, kept.Ops.Deactivated)
	assert.Len(t, active(t, f.store), 2)

	summary, err := f.sync.Sync(ctx, f.o, []PriceRow{bread}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(Deactivated))

	prices := active(t, f.store)
	require.Len(t, prices, 1)
	assert.Equal(t, "Bread", prices[0].Name)
}

func TestSyncKeepsPricesOfSkippedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bread := PriceRow{Name: "Bread", Price: pricing.RawPrice{CurrentPrice: "2"}}

	_, err := f.sync.Sync(ctx, f.o, []PriceRow{milkRow(), bread}, true)
	require.NoError(t, err)

	frozen := milkRow()
	frozen.TagKeys = []string{"frozen"}
	badNumber := bread
	badNumber.Price.CurrentPrice = "abc"

	summary, err := f.sync.Sync(ctx, f.o, []PriceRow{frozen, badNumber}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(SkipUnresolved))
	assert.Equal(t, 1, summary.Count(SkipInvalid))
	assert.Equal(t, 0, summary.Count(Deactivated))
	assert.Equal(t, 0, summary.Ops.Deactivated)
	assert.Len(t, active(t, f.store), 2)
}

func TestSyncScopesByOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.Sync(ctx, f.o, []PriceRow{milkRow()}, true)
	require.NoError(t, err)

	crawled := NewPriceSync(f.store, f.cred, storeID, true, nil)
	crawled.Tags = f.sync.Tags
	summary, err := crawled.Sync(ctx, f.o, []PriceRow{milkRow()}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(Created), "crawled products never match imported ones")
	assert.Len(t, active(t, f.store), 2)
}

func TestSyncLastDuplicateRowWins(t *testing.T) {
	f := newFixture(t)
	rows := []PriceRow{
		{Name: "Bread", Price: pricing.RawPrice{CurrentPrice: "2"}},
		{Name: "Bread", Price: pricing.RawPrice{CurrentPrice: "3"}},
	}
	summary, err := f.sync.Sync(context.Background(), f.o, rows, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Rows)

	prices := active(t, f.store)
	require.Len(t, prices, 1)
	assert.Equal(t, 3.0, *prices[0].CurrentPrice)
}
