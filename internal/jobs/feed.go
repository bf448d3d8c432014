package jobs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"grocerysync/internal/pricing"
	"grocerysync/internal/reconcile"
	"grocerysync/pkg/csvio"
)

// FeedRecord is one line of a crawled feed. Price fields hold the raw cell text the crawler saw.
type FeedRecord struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Size             string   `json:"size"`
	Barcode          string   `json:"barcode"`
	ImageURL         string   `json:"imageUrl"`
	ProductPageURL   string   `json:"productPageUrl"`
	StoreTagKeys     []string `json:"storeTagKeys"`
	TagKeys          []string `json:"tagKeys"`
	SpecialType      string   `json:"specialType"`
	CurrentPrice     string   `json:"currentPrice"`
	WasPrice         string   `json:"wasPrice"`
	Saving           string   `json:"saving"`
	SavingPercentage string   `json:"savingPercentage"`
	OfferEndDate     string   `json:"offerEndDate"`
	UnitPrice        string   `json:"unitPrice"`
	MultiBuy         string   `json:"multiBuy"`
}

func (r FeedRecord) PriceRow(line int) reconcile.PriceRow {
	return reconcile.PriceRow{
		Line:           line,
		Name:           r.Name,
		Description:    r.Description,
		Size:           r.Size,
		Barcode:        r.Barcode,
		ImageURL:       r.ImageURL,
		ProductPageURL: r.ProductPageURL,
		TagKeys:        r.TagKeys,
		StoreTagKeys:   r.StoreTagKeys,
		Price: pricing.RawPrice{
			SpecialType:      r.SpecialType,
			CurrentPrice:     r.CurrentPrice,
			WasPrice:         r.WasPrice,
			Saving:           r.Saving,
			SavingPercentage: r.SavingPercentage,
			OfferEndDate:     r.OfferEndDate,
			UnitPrice:        r.UnitPrice,
			MultiBuy:         r.MultiBuy,
		},
	}
}

// ReadFeed parses a JSON-lines feed. Blank lines are ignored; a line that is not a JSON object
// becomes a row that fails as malformed.
func ReadFeed(r io.Reader) ([]reconcile.PriceRow, error) {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 1024*1024)
	sc.Buffer(buf, 20*1024*1024)

	var rows []reconcile.PriceRow
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec FeedRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			rows = append(rows, reconcile.PriceRow{Line: line, Err: fmt.Errorf("line %d: %w: %v", line, csvio.ErrMalformedRow, err)})
			continue
		}
		rows = append(rows, rec.PriceRow(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return rows, nil
}
