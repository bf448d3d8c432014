package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
	"grocerysync/internal/pricing"
	"grocerysync/pkg/logger"
)

// priceClearFields are dropped from a stored price when the new value is absent.
var priceClearFields = []string{"wasPrice", "currentPrice", "offerEndDate"}

var productClearFields = []string{"description", "barcode", "size", "imageUrl", "productPageUrl", "storeTagIds"}

// PriceRow is one product of a price feed, CSV or crawled.
type PriceRow struct {
	Line           int
	Name           string
	Description    string
	Size           string
	Barcode        string
	ImageURL       string
	ProductPageURL string
	TagKeys        []string
	StoreTagKeys   []string
	Price          pricing.RawPrice
	// Err is set when the source row could not be parsed; the row is skipped as invalid.
	Err error
}

func (r PriceRow) Key() string {
	return strings.TrimSpace(r.Name)
}

func (r PriceRow) Identity() (string, int) {
	return r.Key(), r.Line
}

// dedupeKey keeps unparsable rows apart from each other and from named rows.
func (r PriceRow) dedupeKey() string {
	if r.Err != nil {
		return fmt.Sprintf("\x00line:%d", r.Line)
	}
	return r.Key()
}

// PriceSync reconciles the store products and Active prices of one store and one origin
// (imported or crawled). Preload must run before Apply; the preloaded state is read-only while
// rows are applied.
type PriceSync struct {
	Products  *backend.Repository[models.StoreProduct]
	Prices    *backend.Repository[models.ProductPrice]
	Cred      backend.Credential
	StoreID   string
	Crawled   bool
	Tags      *TagResolver
	StoreTags *StoreTagResolver
	Log       logger.Logger

	products *Index[models.StoreProduct]
	active   map[string][]models.ProductPrice

	mu   sync.Mutex
	seen map[string]bool
}

func NewPriceSync(driver backend.Driver, cred backend.Credential, storeID string, crawled bool, log logger.Logger) *PriceSync {
	if log == nil {
		log = logger.NewNop()
	}
	return &PriceSync{
		Products: backend.NewRepository[models.StoreProduct](driver, models.ClassStoreProduct),
		Prices:   backend.NewRepository[models.ProductPrice](driver, models.ClassProductPrice),
		Cred:     cred,
		StoreID:  storeID,
		Crawled:  crawled,
		Log:      log.With("storeId", storeID, "crawled", crawled),
	}
}

func (s *PriceSync) scope() backend.Criteria {
	return backend.Where("storeId", s.StoreID).And("createdByCrawler", s.Crawled)
}

// Preload loads the store products and Active prices of the sync scope.
func (s *PriceSync) Preload(ctx context.Context) error {
	products, err := LoadAll(ctx, s.Products, s.scope(), s.Cred)
	if err != nil {
		return err
	}
	prices, err := LoadAll(ctx, s.Prices, s.scope().And("status", models.StatusActive), s.Cred)
	if err != nil {
		return err
	}

	s.products = NewIndex(products, func(p models.StoreProduct) string { return strings.TrimSpace(p.Name) })
	s.active = make(map[string][]models.ProductPrice)
	for _, p := range prices {
		s.active[p.StoreProductID] = append(s.active[p.StoreProductID], p)
	}
	s.seen = make(map[string]bool)

	s.Log.Info("preloaded", "storeProducts", len(products), "activePrices", len(prices), "pricedProducts", len(s.active))
	return nil
}

// Apply reconciles one feed row.
func (s *PriceSync) Apply(ctx context.Context, row PriceRow) Result {
	res := s.apply(ctx, row)
	res.Line = row.Line
	return res
}

func (s *PriceSync) apply(ctx context.Context, row PriceRow) Result {
	key := row.Key()
	if row.Err != nil {
		return Skip(key, row.Err)
	}
	if key == "" {
		return Skip(key, fmt.Errorf("empty product name: %w", ErrInvalidRow))
	}

	normalized, err := pricing.Normalize(row.Price)
	if err != nil {
		return Skip(key, err)
	}

	tagIDs, storeTagIDs, err := s.resolveTags(row)
	if err != nil {
		return Skip(key, err)
	}

	var ops Ops
	product, productOutcome, err := s.upsertProduct(ctx, row, tagIDs, storeTagIDs)
	if err != nil {
		return Skip(key, err)
	}
	switch productOutcome {
	case Created:
		ops.Created++
	case Updated:
		ops.Updated++
	}
	s.markSeen(product.ObjectID)

	desired := s.desiredPrice(product, normalized)
	plan := PlanPrice(desired, s.active[product.ObjectID])
	priceOps, err := s.execute(ctx, plan)
	ops.Add(priceOps)
	if err != nil {
		return Result{Key: key, Outcome: Failed, Ops: ops, Err: err}
	}

	switch {
	case ops.Created > 0:
		return Done(key, Created, ops)
	case ops.Updated > 0 || ops.Deactivated > 0:
		return Done(key, Updated, ops)
	}
	return Done(key, NoOp, ops)
}

func (s *PriceSync) resolveTags(row PriceRow) (tagIDs, storeTagIDs []string, err error) {
	if s.StoreTags != nil && len(row.StoreTagKeys) > 0 {
		storeTagIDs, tagIDs, err = s.StoreTags.Resolve(row.StoreTagKeys)
		if err != nil {
			return nil, nil, err
		}
	}
	if s.Tags != nil && len(row.TagKeys) > 0 {
		ids, err := s.Tags.Resolve(row.TagKeys)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range ids {
			if !slices.Contains(tagIDs, id) {
				tagIDs = append(tagIDs, id)
			}
		}
	}
	if tagIDs == nil {
		tagIDs = []string{}
	}
	return tagIDs, storeTagIDs, nil
}

func (s *PriceSync) upsertProduct(ctx context.Context, row PriceRow, tagIDs, storeTagIDs []string) (models.StoreProduct, Outcome, error) {
	desired := models.StoreProduct{
		StoreID:          s.StoreID,
		Name:             row.Key(),
		Description:      strings.TrimSpace(row.Description),
		Barcode:          strings.TrimSpace(row.Barcode),
		Size:             strings.TrimSpace(row.Size),
		ImageURL:         strings.TrimSpace(row.ImageURL),
		ProductPageURL:   strings.TrimSpace(row.ProductPageURL),
		TagIDs:           tagIDs,
		StoreTagIDs:      storeTagIDs,
		CreatedByCrawler: s.Crawled,
	}

	m := s.products.Match(desired.Name)
	switch m.Kind {
	case ManyMatches:
		return desired, NoOp, fmt.Errorf("store product %q matches %d products: %w", desired.Name, len(m.Items), ErrAmbiguous)
	case NoMatch:
		id, err := s.Products.Create(ctx, desired, nil, s.Cred)
		if err != nil {
			return desired, Failed, err
		}
		desired.ObjectID = id
		return desired, Created, nil
	}

	existing := m.One()
	desired.Base = existing.Base
	if sameProduct(existing, desired) {
		return existing, NoOp, nil
	}
	if err := s.Products.Update(ctx, desired, s.Cred, productClearFields...); err != nil {
		return desired, Failed, err
	}
	return desired, Updated, nil
}

func sameProduct(a, b models.StoreProduct) bool {
	return a.Name == b.Name &&
		a.Description == b.Description &&
		a.Barcode == b.Barcode &&
		a.Size == b.Size &&
		a.ImageURL == b.ImageURL &&
		a.ProductPageURL == b.ProductPageURL &&
		sameIDs(a.TagIDs, b.TagIDs) &&
		sameIDs(a.StoreTagIDs, b.StoreTagIDs)
}

// sameIDs ignores order; nil and empty are the same.
func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func (s *PriceSync) desiredPrice(product models.StoreProduct, n pricing.Normalized) models.ProductPrice {
	current := n.CurrentPrice
	return models.ProductPrice{
		StoreID:          s.StoreID,
		StoreProductID:   product.ObjectID,
		Name:             product.Name,
		Description:      product.Description,
		Barcode:          product.Barcode,
		Size:             product.Size,
		ImageURL:         product.ImageURL,
		TagIDs:           product.TagIDs,
		Status:           models.StatusActive,
		Special:          n.Special,
		PriceToDisplay:   n.PriceToDisplay,
		CurrentPrice:     &current,
		WasPrice:         n.WasPrice,
		Saving:           n.Saving,
		SavingPercentage: n.SavingPercentage,
		OfferEndDate:     n.OfferEndDate,
		PriceDetails:     n.Details,
		CreatedByCrawler: s.Crawled,
	}
}

func (s *PriceSync) execute(ctx context.Context, plan PricePlan) (Ops, error) {
	var ops Ops
	for _, p := range plan.Deactivate {
		if err := s.Prices.Update(ctx, p, s.Cred, priceClearFields...); err != nil {
			return ops, err
		}
		ops.Deactivated++
	}
	if plan.Update != nil {
		if err := s.Prices.Update(ctx, *plan.Update, s.Cred, priceClearFields...); err != nil {
			return ops, err
		}
		ops.Updated++
	}
	if plan.Create != nil {
		if _, err := s.Prices.Create(ctx, *plan.Create, nil, s.Cred); err != nil {
			return ops, err
		}
		ops.Created++
	}
	return ops, nil
}

func (s *PriceSync) markSeen(productID string) {
	s.mu.Lock()
	s.seen[productID] = true
	s.mu.Unlock()
}

// markFeedKeys marks every stored product named by the feed as seen, whatever its row's outcome.
// A row that is skipped or fails leaves its product's prices alone.
func (s *PriceSync) markFeedKeys(rows []PriceRow) {
	for _, row := range rows {
		key := row.Key()
		if key == "" {
			continue
		}
		for _, p := range s.products.Match(key).Items {
			s.markSeen(p.ObjectID)
		}
	}
}

// MissingActive returns, sorted, the store products that have Active prices but were not in the
// feed. Call it after every row has been applied.
func (s *PriceSync) MissingActive() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.active {
		if !s.seen[id] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Deactivate sets every Active price of a product that left the feed to Inactive.
func (s *PriceSync) Deactivate(ctx context.Context, storeProductID string) Result {
	ops, err := s.execute(ctx, PlanMissing(s.active[storeProductID]))
	if err != nil {
		return Result{Key: storeProductID, Outcome: Failed, Ops: ops, Err: err}
	}
	if ops.Deactivated == 0 {
		return Done(storeProductID, NoOp, ops)
	}
	return Done(storeProductID, Deactivated, ops)
}

// Sync applies rows and, when deactivateMissing is set, retires the prices of products that
// are no longer in the feed. Duplicate names are collapsed first; the last row wins.
func (s *PriceSync) Sync(ctx context.Context, o *Orchestrator, rows []PriceRow, deactivateMissing bool) (Summary, error) {
	if err := s.Preload(ctx); err != nil {
		return Summary{}, err
	}

	rows, dropped := Dedupe(rows, PriceRow.dedupeKey)
	if dropped > 0 {
		s.Log.Warn("duplicate product names in feed, keeping the last row", "dropped", dropped)
	}

	s.markFeedKeys(rows)
	summary := Run(ctx, o, rows, s.Apply)
	if !deactivateMissing || ctx.Err() != nil {
		return summary, nil
	}

	missing := s.MissingActive()
	if len(missing) > 0 {
		s.Log.Info("deactivating products missing from feed", "products", len(missing))
		summary.Merge(Run(ctx, o, missing, s.Deactivate))
	}
	return summary, nil
}
