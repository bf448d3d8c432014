package jobs

import (
	"context"
	"flag"
	"sort"
	"strconv"
	"strings"

	"grocerysync/internal/core/models"
	"grocerysync/internal/reconcile"
	"grocerysync/pkg/csvio"
)

var storeProductHeaders = []string{
	"id", "name", "description", "barcode", "size", "productPageUrl", "imageUrl",
}

var storeProductPriceHeaders = append(append([]string{}, storeProductHeaders...),
	"storeTags", "tags", "priceToDisplay", "status", "offerEndDate", "saving", "savingPercentage",
	"specialType", "currentPrice", "wasPrice", "unitPrice", "multiBuy",
)

const exportDateLayout = "2006-01-02T15:04:05.000Z"

// ExportStoreProductsAndPrices writes every store product of a store with its latest Active price.
type ExportStoreProductsAndPrices struct {
	CSV               CSVOutput
	StoreKey          string
	ExportCrawledData bool
}

func (j *ExportStoreProductsAndPrices) Name() string { return "export-store-products-and-prices" }

func (j *ExportStoreProductsAndPrices) Description() string {
	return "export a store's products with their current price to CSV"
}

func (j *ExportStoreProductsAndPrices) Bind(fs *flag.FlagSet) {
	j.CSV.Bind(fs)
	fs.StringVar(&j.StoreKey, "storeKey", "", "store key")
	fs.BoolVar(&j.ExportCrawledData, "exportCrawledData", false, "export crawled products instead of imported ones")
}

func (j *ExportStoreProductsAndPrices) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	if err := requireStoreKey(j.StoreKey); err != nil {
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
	products, err := LoadStoreProducts(ctx, env.Driver, cred, store.ObjectID, j.ExportCrawledData)
	if err != nil {
		return reconcile.Summary{}, err
	}
	prices, err := LoadActivePrices(ctx, env.Driver, cred, store.ObjectID, j.ExportCrawledData)
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

	w, f, err := j.CSV.Create(storeProductPriceHeaders, csvio.ReplaceSeparator)
	if err != nil {
		return reconcile.Summary{}, err
	}
	defer f.Close()

	latest := latestPrices(prices)
	storeTagByID := make(map[string]models.StoreTag, len(storeTags))
	for _, st := range storeTags {
		storeTagByID[st.ObjectID] = st
	}
	tagKeyByID := make(map[string]string, len(tags))
	for _, t := range tags {
		tagKeyByID[t.ObjectID] = t.Key
	}

	sortProducts(products)
	missingTags := 0
	for _, p := range products {
		var storeTagKeys, tagKeys []string
		for _, id := range p.StoreTagIDs {
			st, ok := storeTagByID[id]
			if !ok {
				missingTags++
				continue
			}
			storeTagKeys = append(storeTagKeys, st.Key)
			if key, ok := tagKeyByID[st.TagID]; ok {
				tagKeys = append(tagKeys, key)
			}
		}

		record := append(productCells(p), strings.Join(storeTagKeys, ","), strings.Join(tagKeys, ","))
		record = append(record, priceCells(latest[p.ObjectID])...)
		if err := w.Write(record); err != nil {
			return reconcile.Summary{}, err
		}
	}
	if err := w.Flush(); err != nil {
		return reconcile.Summary{}, err
	}
	if missingTags > 0 {
		env.Log.Warn("store products reference unknown store tags", "references", missingTags)
	}

	env.Log.Info("export written", "path", j.CSV.Path, "products", len(products), "priced", len(latest))
	summary := reconcile.NewSummary()
	summary.Rows = len(products)
	return summary, nil
}

// ExportCrawledStoreProducts writes a store's crawled products. A value containing the
// separator aborts the export.
type ExportCrawledStoreProducts struct {
	CSV      CSVOutput
	StoreKey string
}

func (j *ExportCrawledStoreProducts) Name() string { return "export-crawled-store-products" }

func (j *ExportCrawledStoreProducts) Description() string {
	return "export a store's crawled products to CSV"
}

func (j *ExportCrawledStoreProducts) Bind(fs *flag.FlagSet) {
	j.CSV.Bind(fs)
	fs.StringVar(&j.StoreKey, "storeKey", "", "store key")
}

func (j *ExportCrawledStoreProducts) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	if err := requireStoreKey(j.StoreKey); err != nil {
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
	products, err := LoadStoreProducts(ctx, env.Driver, cred, store.ObjectID, true)
	if err != nil {
		return reconcile.Summary{}, err
	}

	w, f, err := j.CSV.Create(storeProductHeaders, csvio.RejectSeparator)
	if err != nil {
		return reconcile.Summary{}, err
	}
	defer f.Close()

	sortProducts(products)
	for _, p := range products {
		if err := w.Write(productCells(p)); err != nil {
			return reconcile.Summary{}, err
		}
	}
	if err := w.Flush(); err != nil {
		return reconcile.Summary{}, err
	}

	env.Log.Info("export written", "path", j.CSV.Path, "products", len(products))
	summary := reconcile.NewSummary()
	summary.Rows = len(products)
	return summary, nil
}

func sortProducts(products []models.StoreProduct) {
	sort.Slice(products, func(i, k int) bool { return products[i].ObjectID < products[k].ObjectID })
}

func productCells(p models.StoreProduct) []string {
	return []string{p.ObjectID, p.Name, p.Description, p.Barcode, p.Size, p.ProductPageURL, p.ImageURL}
}

// latestPrices picks the most recently updated Active price of every product.
func latestPrices(prices []models.ProductPrice) map[string]*models.ProductPrice {
	out := make(map[string]*models.ProductPrice, len(prices))
	for i := range prices {
		p := &prices[i]
		cur, ok := out[p.StoreProductID]
		if !ok || p.UpdatedAtOrZero().After(cur.UpdatedAtOrZero()) ||
			(p.UpdatedAtOrZero().Equal(cur.UpdatedAtOrZero()) && p.ObjectID < cur.ObjectID) {
			out[p.StoreProductID] = p
		}
	}
	return out
}

// priceCells renders the price columns; a product without a price gets empty cells.
func priceCells(p *models.ProductPrice) []string {
	if p == nil {
		return make([]string, 10)
	}
	d := p.PriceDetails
	cells := []string{
		formatFloat(p.PriceToDisplay),
		p.Status,
		formatDate(p.OfferEndDate),
		formatFloat(p.Saving),
		formatFloat(p.SavingPercentage),
		d.SpecialType,
		formatOptional(d.CurrentPrice),
		formatOptional(d.WasPrice),
		"",
		"",
	}
	if d.UnitPrice != nil {
		cells[8] = formatFloat(d.UnitPrice.Price) + ", " + d.UnitPrice.Size
	}
	if d.MultiBuyInfo != nil {
		cells[9] = strconv.Itoa(d.MultiBuyInfo.AwardQuantity) + ", " + formatFloat(d.MultiBuyInfo.AwardValue)
	}
	return cells
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatDate(d *models.Date) string {
	if d == nil {
		return ""
	}
	return d.UTC().Format(exportDateLayout)
}
