package reconcile

import (
	"sort"

	"grocerysync/internal/core/models"
)

// PricePlan is the set of writes that brings the Active prices of one product in line with
// the desired price.
type PricePlan struct {
	Create     *models.ProductPrice
	Update     *models.ProductPrice
	Keep       *models.ProductPrice
	Deactivate []models.ProductPrice
}

func (p PricePlan) Empty() bool {
	return p.Create == nil && p.Update == nil && len(p.Deactivate) == 0
}

// PlanPrice decides what to do with desired given the Active candidates for the same product.
//
// No candidate creates. A single candidate is kept when its details equal desired and updated in
// place otherwise. With several candidates every non matching one is deactivated and exactly one
// matching candidate survives, the most recently updated (ties go to the smallest objectId); if
// none match, all are deactivated and a new price is created.
func PlanPrice(desired models.ProductPrice, candidates []models.ProductPrice) PricePlan {
	desired.Status = models.StatusActive

	switch len(candidates) {
	case 0:
		desired.ObjectID = ""
		return PricePlan{Create: &desired}
	case 1:
		existing := candidates[0]
		if existing.PriceDetails.Equal(desired.PriceDetails) {
			return PricePlan{Keep: &existing}
		}
		desired.Base = existing.Base
		return PricePlan{Update: &desired}
	}

	var matching, stale []models.ProductPrice
	for _, c := range candidates {
		if c.PriceDetails.Equal(desired.PriceDetails) {
			matching = append(matching, c)
		} else {
			stale = append(stale, c)
		}
	}

	plan := PricePlan{}
	if len(matching) == 0 {
		desired.ObjectID = ""
		plan.Create = &desired
	} else {
		sortSurvivorFirst(matching)
		survivor := matching[0]
		plan.Keep = &survivor
		stale = append(stale, matching[1:]...)
	}
	plan.Deactivate = deactivated(stale)
	return plan
}

// PlanMissing deactivates every Active price of a product that is no longer in the feed.
func PlanMissing(active []models.ProductPrice) PricePlan {
	return PricePlan{Deactivate: deactivated(active)}
}

func deactivated(prices []models.ProductPrice) []models.ProductPrice {
	if len(prices) == 0 {
		return nil
	}
	out := make([]models.ProductPrice, 0, len(prices))
	for _, p := range prices {
		p.Status = models.StatusInactive
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out
}

func sortSurvivorFirst(prices []models.ProductPrice) {
	sort.SliceStable(prices, func(i, j int) bool {
		ti, tj := prices[i].UpdatedAtOrZero(), prices[j].UpdatedAtOrZero()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return prices[i].ObjectID < prices[j].ObjectID
	})
}
