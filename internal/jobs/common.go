package jobs

import (
	"context"
	"fmt"
	"strings"

	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
	"grocerysync/internal/reconcile"
)

// GetStore finds the store by key and creates it when missing. More than one store with the key
// is fatal.
func GetStore(ctx context.Context, driver backend.Driver, cred backend.Credential, key string) (models.Store, error) {
	key = strings.TrimSpace(key)
	stores := backend.NewRepository[models.Store](driver, models.ClassStore)

	found, err := stores.Search(ctx, backend.Where("key", key), cred)
	if err != nil {
		return models.Store{}, err
	}
	switch len(found) {
	case 0:
		id, err := stores.Create(ctx, models.Store{Key: key}, nil, cred)
		if err != nil {
			return models.Store{}, err
		}
		return stores.Read(ctx, id, cred)
	case 1:
		return found[0], nil
	}
	return models.Store{}, fmt.Errorf("store key %q matches %d stores: %w", key, len(found), reconcile.ErrAmbiguous)
}

func LoadTags(ctx context.Context, driver backend.Driver, cred backend.Credential) ([]models.Tag, error) {
	return reconcile.LoadAll(ctx, backend.NewRepository[models.Tag](driver, models.ClassTag), backend.Criteria{}, cred)
}

func LoadStoreTags(ctx context.Context, driver backend.Driver, cred backend.Credential, storeID string) ([]models.StoreTag, error) {
	repo := backend.NewRepository[models.StoreTag](driver, models.ClassStoreTag)
	return reconcile.LoadAll(ctx, repo, backend.Where("storeId", storeID), cred)
}

func LoadStapleTemplateItems(ctx context.Context, driver backend.Driver, cred backend.Credential) ([]models.StapleTemplateItem, error) {
	repo := backend.NewRepository[models.StapleTemplateItem](driver, models.ClassStapleTemplateItem)
	return reconcile.LoadAll(ctx, repo, backend.Criteria{}, cred)
}

func LoadStapleTemplateShoppingLists(ctx context.Context, driver backend.Driver, cred backend.Credential) ([]models.StapleTemplateShoppingList, error) {
	repo := backend.NewRepository[models.StapleTemplateShoppingList](driver, models.ClassStapleTemplateShoppingList)
	return reconcile.LoadAll(ctx, repo, backend.Criteria{}, cred)
}

func LoadStoreProducts(ctx context.Context, driver backend.Driver, cred backend.Credential, storeID string, crawled bool) ([]models.StoreProduct, error) {
	repo := backend.NewRepository[models.StoreProduct](driver, models.ClassStoreProduct)
	return reconcile.LoadAll(ctx, repo, backend.Where("storeId", storeID).And("createdByCrawler", crawled), cred)
}

func LoadActivePrices(ctx context.Context, driver backend.Driver, cred backend.Credential, storeID string, crawled bool) ([]models.ProductPrice, error) {
	repo := backend.NewRepository[models.ProductPrice](driver, models.ClassProductPrice)
	criteria := backend.Where("storeId", storeID).And("createdByCrawler", crawled).And("status", models.StatusActive)
	return reconcile.LoadAll(ctx, repo, criteria, cred)
}

// splitKeys splits a multi-valued cell and drops blanks.
func splitKeys(cell, sep string) []string {
	var keys []string
	for _, k := range strings.Split(cell, sep) {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func rowKey(cell string, line int) string {
	if key := strings.TrimSpace(cell); key != "" {
		return key
	}
	return fmt.Sprintf("line %d", line)
}
