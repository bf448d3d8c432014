package models

import (
	"bytes"
	"encoding/json"
)

const (
	StatusActive   = "A"
	StatusInactive = "I"
)

type StoreProduct struct {
	Base
	StoreID          string   `json:"storeId"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Barcode          string   `json:"barcode,omitempty"`
	Size             string   `json:"size,omitempty"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	ProductPageURL   string   `json:"productPageUrl,omitempty"`
	TagIDs           []string `json:"tagIds"`
	StoreTagIDs      []string `json:"storeTagIds,omitempty"`
	CreatedByCrawler bool     `json:"createdByCrawler"`
}

type UnitPrice struct {
	Size  string  `json:"size"`
	Price float64 `json:"price"`
}

type MultiBuy struct {
	AwardQuantity int     `json:"awardQuantity"`
	AwardValue    float64 `json:"awardValue"`
}

// PriceDetails is the comparable part of a ProductPrice. A nil field is absent and is
// left out of the encoding; a pointer to zero is present.
type PriceDetails struct {
	SpecialType      string     `json:"specialType,omitempty"`
	CurrentPrice     *float64   `json:"currentPrice,omitempty"`
	WasPrice         *float64   `json:"wasPrice,omitempty"`
	Saving           *float64   `json:"saving,omitempty"`
	SavingPercentage *float64   `json:"savingPercentage,omitempty"`
	OfferEndDate     *Date      `json:"offerEndDate,omitempty"`
	UnitPrice        *UnitPrice `json:"unitPrice,omitempty"`
	MultiBuyInfo     *MultiBuy  `json:"multiBuyInfo,omitempty"`
}

// Equal compares the present fields of both sides. Absent fields take no part, so
// {currentPrice: 0} and {} differ while two encodings of the same values do not.
func (d PriceDetails) Equal(o PriceDetails) bool {
	a, errA := json.Marshal(d)
	b, errB := json.Marshal(o)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

type ProductPrice struct {
	Base
	StoreID          string       `json:"storeId"`
	StoreProductID   string       `json:"storeProductId"`
	Name             string       `json:"name,omitempty"`
	Description      string       `json:"description,omitempty"`
	Barcode          string       `json:"barcode,omitempty"`
	Size             string       `json:"size,omitempty"`
	ImageURL         string       `json:"imageUrl,omitempty"`
	TagIDs           []string     `json:"tagIds"`
	Status           string       `json:"status"`
	Special          bool         `json:"special"`
	PriceToDisplay   float64      `json:"priceToDisplay"`
	CurrentPrice     *float64     `json:"currentPrice,omitempty"`
	WasPrice         *float64     `json:"wasPrice,omitempty"`
	Saving           float64      `json:"saving"`
	SavingPercentage float64      `json:"savingPercentage"`
	OfferEndDate     *Date        `json:"offerEndDate,omitempty"`
	PriceDetails     PriceDetails `json:"priceDetails"`
	CreatedByCrawler bool         `json:"createdByCrawler"`
}

func (p ProductPrice) IsActive() bool {
	return p.Status == StatusActive
}
