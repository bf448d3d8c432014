package pricing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"grocerysync/internal/core/models"
)

const (
	offerDateLayout = "2/1/2006"
	specialTypeNone = "none"
)

// RawPrice holds the price cells of one feed row exactly as read.
type RawPrice struct {
	SpecialType      string
	CurrentPrice     string
	WasPrice         string
	Saving           string
	SavingPercentage string
	OfferEndDate     string
	UnitPrice        string // "size,price"
	MultiBuy         string // "awardQuantity,awardValue"
}

type Normalized struct {
	Special          bool
	PriceToDisplay   float64
	CurrentPrice     float64
	WasPrice         *float64
	Saving           float64
	SavingPercentage float64
	OfferEndDate     *models.Date
	Details          models.PriceDetails
}

// Normalize derives the stored price fields from raw cells. It is pure; any cell that is present
// but not a number fails the whole row.
func Normalize(raw RawPrice) (Normalized, error) {
	current := ParseNumber(raw.CurrentPrice)
	was := ParseNumber(raw.WasPrice)
	saving := ParseNumber(raw.Saving)
	savingPct := ParseNumber(raw.SavingPercentage)
	for _, f := range []struct {
		name string
		n    Number
	}{
		{"currentPrice", current},
		{"wasPrice", was},
		{"saving", saving},
		{"savingPercentage", savingPct},
	} {
		if err := f.n.check(f.name); err != nil {
			return Normalized{}, err
		}
	}

	multiBuy, err := parseMultiBuy(raw.MultiBuy)
	if err != nil {
		return Normalized{}, err
	}
	unitPrice, err := parseUnitPrice(raw.UnitPrice)
	if err != nil {
		return Normalized{}, err
	}
	offerEnd, err := parseOfferEndDate(raw.OfferEndDate)
	if err != nil {
		return Normalized{}, err
	}

	var out Normalized
	out.CurrentPrice = current.Value
	if out.CurrentPrice == 0 && multiBuy != nil {
		out.CurrentPrice = multiBuy.AwardValue / float64(multiBuy.AwardQuantity)
	}

	switch {
	case was.Present():
		w := was.Value
		out.WasPrice = &w
		out.Saving = w - out.CurrentPrice
		out.SavingPercentage = percentage(out.Saving, w)
	case saving.Present():
		w := out.CurrentPrice + saving.Value
		out.WasPrice = &w
		out.Saving = saving.Value
		out.SavingPercentage = percentage(out.Saving, w)
	default:
		out.Saving = 0
		if savingPct.Present() {
			out.SavingPercentage = savingPct.Value
		}
	}

	out.PriceToDisplay = out.CurrentPrice
	if multiBuy != nil {
		out.PriceToDisplay = multiBuy.AwardValue
	}

	specialType := strings.TrimSpace(raw.SpecialType)
	out.Special = specialType != "" && specialType != specialTypeNone
	out.OfferEndDate = offerEnd

	out.Details = models.PriceDetails{
		SpecialType:      specialType,
		CurrentPrice:     ptr(out.CurrentPrice),
		WasPrice:         out.WasPrice,
		Saving:           ptr(out.Saving),
		SavingPercentage: ptr(out.SavingPercentage),
		OfferEndDate:     offerEnd,
		UnitPrice:        unitPrice,
		MultiBuyInfo:     multiBuy,
	}
	return out, nil
}

func percentage(saving, was float64) float64 {
	if was == 0 {
		return 0
	}
	return saving * 100 / was
}

func ptr(v float64) *float64 {
	return &v
}

func parseMultiBuy(raw string) (*models.MultiBuy, error) {
	qty, value, ok := splitPair(raw)
	if !ok {
		return nil, nil
	}
	quantity, err := strconv.Atoi(qty)
	if err != nil || quantity <= 0 {
		return nil, fmt.Errorf("multiBuy award quantity %q: %w", qty, ErrInvalidNumber)
	}
	award := ParseNumber(value)
	if !award.Present() {
		return nil, fmt.Errorf("multiBuy award value %q: %w", value, ErrInvalidNumber)
	}
	return &models.MultiBuy{AwardQuantity: quantity, AwardValue: award.Value}, nil
}

func parseUnitPrice(raw string) (*models.UnitPrice, error) {
	size, value, ok := splitPair(raw)
	if !ok {
		return nil, nil
	}
	price := ParseNumber(value)
	if !price.Present() {
		return nil, fmt.Errorf("unitPrice price %q: %w", value, ErrInvalidNumber)
	}
	return &models.UnitPrice{Size: size, Price: price.Value}, nil
}

func parseOfferEndDate(raw string) (*models.Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(offerDateLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("offerEndDate %q: expected DD/MM/YYYY: %w", s, ErrInvalidDate)
	}
	return models.NewDate(t), nil
}
