package service

import (
	"testing"
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/models"

	"github.com/shopspring/decimal"
)

func TestResolvePricePriority(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)
	groupBuyID := uint(9)

	base := func() *models.Product {
		return &models.Product{
			Price:          models.MustMoney("100"),
			OriginalPrice:  models.MoneyPtr(models.MustMoney("120")),
			IsFlashSale:    true,
			FlashSalePrice: models.MoneyPtr(models.MustMoney("70")),
			IsGroupBuy:     true,
			GroupBuyPrice:  models.MoneyPtr(models.MustMoney("80")),
		}
	}

	cases := []struct {
		name     string
		mutate   func(p *models.Product)
		ctx      PriceContext
		price    string
		discount string
		source   string
	}{
		{name: "group buy context wins", ctx: PriceContext{GroupBuyID: &groupBuyID, Now: now}, price: "80", discount: "40", source: constants.PriceSourceGroupBuy},
		{name: "flash sale without group context", ctx: PriceContext{Now: now}, price: "70", discount: "50", source: constants.PriceSourceFlashSale},
		{name: "flash sale without end time", mutate: func(p *models.Product) { p.FlashSaleEndsAt = nil }, ctx: PriceContext{Now: now}, price: "70", discount: "50", source: constants.PriceSourceFlashSale},
		{name: "flash sale still running", mutate: func(p *models.Product) { p.FlashSaleEndsAt = &later }, ctx: PriceContext{Now: now}, price: "70", discount: "50", source: constants.PriceSourceFlashSale},
		{name: "flash sale ended", mutate: func(p *models.Product) { p.FlashSaleEndsAt = &earlier }, ctx: PriceContext{Now: now}, price: "100", discount: "20", source: constants.PriceSourceList},
		{name: "group context but product not group buy", mutate: func(p *models.Product) { p.IsGroupBuy = false }, ctx: PriceContext{GroupBuyID: &groupBuyID, Now: now}, price: "70", discount: "50", source: constants.PriceSourceFlashSale},
		{name: "group buy price missing", mutate: func(p *models.Product) { p.GroupBuyPrice = nil; p.IsFlashSale = false }, ctx: PriceContext{GroupBuyID: &groupBuyID, Now: now}, price: "100", discount: "20", source: constants.PriceSourceList},
		{name: "no original price", mutate: func(p *models.Product) { p.OriginalPrice = nil; p.IsFlashSale = false }, ctx: PriceContext{Now: now}, price: "100", discount: "0", source: constants.PriceSourceList},
		{name: "original below resolved floors at zero", mutate: func(p *models.Product) { p.OriginalPrice = models.MoneyPtr(models.MustMoney("60")) }, ctx: PriceContext{Now: now}, price: "70", discount: "0", source: constants.PriceSourceFlashSale},
	}

	for _, tc := range cases {
		product := base()
		if tc.mutate != nil {
			tc.mutate(product)
		}
		quote := ResolvePrice(product, tc.ctx)
		if !quote.UnitPrice.Equal(decimal.RequireFromString(tc.price)) {
			t.Fatalf("%s: price want %s got %s", tc.name, tc.price, quote.UnitPrice)
		}
		if !quote.DiscountPerUnit.Equal(decimal.RequireFromString(tc.discount)) {
			t.Fatalf("%s: discount want %s got %s", tc.name, tc.discount, quote.DiscountPerUnit)
		}
		if quote.Source != tc.source {
			t.Fatalf("%s: source want %s got %s", tc.name, tc.source, quote.Source)
		}
	}
}

func TestResolvePriceNilProduct(t *testing.T) {
	quote := ResolvePrice(nil, PriceContext{})
	if !quote.UnitPrice.IsZero() || quote.Source != constants.PriceSourceList {
		t.Fatalf("unexpected quote for nil product: %+v", quote)
	}
}
