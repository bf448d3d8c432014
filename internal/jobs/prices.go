package jobs

import (
	"context"
	"flag"
	"strings"

	"grocerysync/internal/pricing"
	"grocerysync/internal/reconcile"
	"grocerysync/pkg/csvio"
)

// Product price CSV columns.
const (
	colName = iota
	colDescription
	colSize
	colSpecialType
	colTags
	colUnused
	colOfferEndDate
	colCurrentPrice
	colWasPrice
	colSaving
	colSavingPercentage
	colUnitPrice
	colMultiBuy
	colBarcode
	colImageURL

	priceColumns
)

// ImportProductPrices reconciles a store's imported products and prices with a price CSV.
type ImportProductPrices struct {
	CSV               CSVInput
	StoreKey          string
	DeactivateMissing bool
}

func (j *ImportProductPrices) Name() string { return "import-product-prices" }

func (j *ImportProductPrices) Description() string {
	return "reconcile a store's products and prices with a price CSV"
}

func (j *ImportProductPrices) Bind(fs *flag.FlagSet) {
	j.CSV.Bind(fs)
	fs.StringVar(&j.StoreKey, "storeKey", "", "store key")
	fs.BoolVar(&j.DeactivateMissing, "deactivateMissing", true, "deactivate prices of products missing from the file")
}

func (j *ImportProductPrices) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
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
	tags, err := LoadTags(ctx, env.Driver, cred)
	if err != nil {
		return reconcile.Summary{}, err
	}

	ps := reconcile.NewPriceSync(env.Driver, cred, store.ObjectID, false, env.Log)
	ps.Tags = reconcile.NewTagResolver(tags)

	priceRows := make([]reconcile.PriceRow, 0, len(rows))
	for _, row := range rows {
		priceRows = append(priceRows, PriceRowFromCSV(row))
	}
	return ps.Sync(ctx, env.orchestrator(j.Name(), 0), priceRows, j.DeactivateMissing)
}

// PriceRowFromCSV maps one product price CSV row. Short or malformed rows carry the error.
func PriceRowFromCSV(row csvio.Row) reconcile.PriceRow {
	out := reconcile.PriceRow{Line: row.Line, Name: row.Cell(colName)}
	if err := row.Expect(priceColumns); err != nil {
		out.Err = err
		return out
	}
	out.Description = row.Cell(colDescription)
	out.Size = row.Cell(colSize)
	out.Barcode = row.Cell(colBarcode)
	out.ImageURL = row.Cell(colImageURL)
	out.TagKeys = splitKeys(row.Cell(colTags), ",")
	out.Price = pricing.RawPrice{
		SpecialType:      row.Cell(colSpecialType),
		CurrentPrice:     row.Cell(colCurrentPrice),
		WasPrice:         row.Cell(colWasPrice),
		Saving:           row.Cell(colSaving),
		SavingPercentage: row.Cell(colSavingPercentage),
		OfferEndDate:     row.Cell(colOfferEndDate),
		UnitPrice:        row.Cell(colUnitPrice),
		MultiBuy:         row.Cell(colMultiBuy),
	}
	return out
}

// ImportCrawledPrices reconciles a store's crawled products and prices with a JSON-lines feed.
type ImportCrawledPrices struct {
	FeedPath          string
	StoreKey          string
	Concurrency       int
	DeactivateMissing bool
}

func (j *ImportCrawledPrices) Name() string { return "import-crawled-prices" }

func (j *ImportCrawledPrices) Description() string {
	return "reconcile a store's crawled products and prices with a JSON-lines feed"
}

func (j *ImportCrawledPrices) Bind(fs *flag.FlagSet) {
	fs.StringVar(&j.FeedPath, "feedFilePath", "", "JSON-lines feed path or http(s) URL")
	fs.StringVar(&j.StoreKey, "storeKey", "", "store key")
	fs.IntVar(&j.Concurrency, "concurrentCrawlingCount", 0, "rows processed concurrently (defaults to the chunk size)")
	fs.BoolVar(&j.DeactivateMissing, "deactivateMissing", true, "deactivate prices of products missing from the feed")
}

func (j *ImportCrawledPrices) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	if err := requireStoreKey(j.StoreKey); err != nil {
		return reconcile.Summary{}, err
	}
	if strings.TrimSpace(j.FeedPath) == "" {
		return reconcile.Summary{}, usageError("--feedFilePath must be provided")
	}
	src, err := csvio.Open(ctx, j.FeedPath, env.Fetcher)
	if err != nil {
		return reconcile.Summary{}, err
	}
	rows, err := ReadFeed(src)
	_ = src.Close()
	if err != nil {
		return reconcile.Summary{}, err
	}
	env.Log.Info("feed loaded", "path", j.FeedPath, "rows", len(rows))

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

	ps := reconcile.NewPriceSync(env.Driver, cred, store.ObjectID, true, env.Log)
	ps.StoreTags = reconcile.NewStoreTagResolver(storeTags)
	ps.Tags = reconcile.NewTagResolver(tags)
	return ps.Sync(ctx, env.orchestrator(j.Name(), j.Concurrency), rows, j.DeactivateMissing)
}
