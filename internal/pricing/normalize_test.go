package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWasPriceDerivesSaving(t *testing.T) {
	n, err := Normalize(RawPrice{CurrentPrice: "8", WasPrice: "10", SpecialType: "special"})
	require.NoError(t, err)

	assert.Equal(t, 8.0, n.CurrentPrice)
	require.NotNil(t, n.WasPrice)
	assert.Equal(t, 10.0, *n.WasPrice)
	assert.Equal(t, 2.0, n.Saving)
	assert.Equal(t, 20.0, n.SavingPercentage)
	assert.Equal(t, 8.0, n.PriceToDisplay)
	assert.True(t, n.Special)
}

func TestSavingDerivesWasPrice(t *testing.T) {
	n, err := Normalize(RawPrice{CurrentPrice: "6", Saving: "2"})
	require.NoError(t, err)

	require.NotNil(t, n.WasPrice)
	assert.Equal(t, 8.0, *n.WasPrice)
	assert.Equal(t, 2.0, n.Saving)
	assert.Equal(t, 25.0, n.SavingPercentage)
}

func TestSavingPercentageColumnOnlyWithoutWasOrSaving(t *testing.T) {
	n, err := Normalize(RawPrice{CurrentPrice: "6", SavingPercentage: "15"})
	require.NoError(t, err)
	assert.Nil(t, n.WasPrice)
	assert.Equal(t, 0.0, n.Saving)
	assert.Equal(t, 15.0, n.SavingPercentage)

	n, err = Normalize(RawPrice{CurrentPrice: "8", WasPrice: "10", SavingPercentage: "99"})
	require.NoError(t, err)
	assert.Equal(t, 20.0, n.SavingPercentage)
}

func TestMultiBuyFillsMissingCurrentPrice(t *testing.T) {
	n, err := Normalize(RawPrice{MultiBuy: "2,5"})
	require.NoError(t, err)

	assert.Equal(t, 2.5, n.CurrentPrice)
	assert.Equal(t, 5.0, n.PriceToDisplay)
	require.NotNil(t, n.Details.MultiBuyInfo)
	assert.Equal(t, 2, n.Details.MultiBuyInfo.AwardQuantity)
	assert.Equal(t, 5.0, n.Details.MultiBuyInfo.AwardValue)
}

func TestMultiBuyKeepsExplicitCurrentPrice(t *testing.T) {
	n, err := Normalize(RawPrice{CurrentPrice: "3", MultiBuy: "2,5"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, n.CurrentPrice)
	assert.Equal(t, 5.0, n.PriceToDisplay)
}

func TestSpecialTypeNoneIsNotSpecial(t *testing.T) {
	n, err := Normalize(RawPrice{CurrentPrice: "1", SpecialType: "none"})
	require.NoError(t, err)
	assert.False(t, n.Special)
	assert.Equal(t, "none", n.Details.SpecialType)

	n, err = Normalize(RawPrice{CurrentPrice: "1"})
	require.NoError(t, err)
	assert.False(t, n.Special)
}

func TestAbsentCurrentPriceIsZero(t *testing.T) {
	n, err := Normalize(RawPrice{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, n.CurrentPrice)
	require.NotNil(t, n.Details.CurrentPrice)
	assert.Equal(t, 0.0, *n.Details.CurrentPrice)
	assert.Nil(t, n.Details.WasPrice)
	assert.Nil(t, n.Details.OfferEndDate)
	assert.Nil(t, n.Details.UnitPrice)
}

func TestOfferEndDate(t *testing.T) {
	n, err := Normalize(RawPrice{CurrentPrice: "1", OfferEndDate: "31/12/2099"})
	require.NoError(t, err)
	require.NotNil(t, n.OfferEndDate)
	assert.True(t, n.OfferEndDate.Time.Equal(time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)))

	_, err = Normalize(RawPrice{CurrentPrice: "1", OfferEndDate: "2099-12-31"})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestPairCellsThatDoNotSplitInTwoAreAbsent(t *testing.T) {
	n, err := Normalize(RawPrice{CurrentPrice: "4.50", MultiBuy: "500ml", UnitPrice: "1,2,3"})
	require.NoError(t, err)
	assert.Nil(t, n.Details.MultiBuyInfo)
	assert.Nil(t, n.Details.UnitPrice)
	assert.Equal(t, 4.5, n.PriceToDisplay)
}

func TestInvalidCellsFailClosed(t *testing.T) {
	cases := map[string]RawPrice{
		"current":        {CurrentPrice: "abc"},
		"current NaN":    {CurrentPrice: "NaN"},
		"current Inf":    {CurrentPrice: "Inf"},
		"was +Inf":       {CurrentPrice: "1", WasPrice: "+Inf"},
		"saving -inf":    {CurrentPrice: "1", Saving: "-inf"},
		"was":            {CurrentPrice: "1", WasPrice: "n/a"},
		"saving":         {CurrentPrice: "1", Saving: "x"},
		"pct":            {CurrentPrice: "1", SavingPercentage: "%"},
		"multiBuy qty":   {MultiBuy: "two,5"},
		"multiBuy zero":  {MultiBuy: "0,5"},
		"multiBuy value": {MultiBuy: "2,five"},
		"unit price":     {CurrentPrice: "1", UnitPrice: "100g,cheap"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(raw)
			assert.ErrorIs(t, err, ErrInvalidNumber)
		})
	}
}

func TestUnitPrice(t *testing.T) {
	n, err := Normalize(RawPrice{CurrentPrice: "2", UnitPrice: "100g, 0.45"})
	require.NoError(t, err)
	require.NotNil(t, n.Details.UnitPrice)
	assert.Equal(t, "100g", n.Details.UnitPrice.Size)
	assert.Equal(t, 0.45, n.Details.UnitPrice.Price)
}

func TestParseNumberStates(t *testing.T) {
	assert.Equal(t, Absent, ParseNumber("  ").State)
	assert.Equal(t, Invalid, ParseNumber("1,5").State)
	assert.Equal(t, Invalid, ParseNumber("NaN").State)
	assert.Equal(t, Invalid, ParseNumber("infinity").State)
	v := ParseNumber(" 0 ")
	assert.Equal(t, Valid, v.State)
	assert.Equal(t, 0.0, v.Value)
}
