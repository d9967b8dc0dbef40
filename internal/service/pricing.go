package service

import (
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/models"

	"github.com/shopspring/decimal"
)

// PriceContext 定价上下文
type PriceContext struct {
	GroupBuyID *uint
	Now        time.Time
}

// PriceQuote 定价结果
type PriceQuote struct {
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPerUnit decimal.Decimal `json:"discount_per_unit"`
	Source          string          `json:"source"`
}

// ResolvePrice 按拼团 > 秒杀 > 标价的优先级解析成交单价
func ResolvePrice(product *models.Product, ctx PriceContext) PriceQuote {
	if product == nil {
		return PriceQuote{UnitPrice: decimal.Zero, DiscountPerUnit: decimal.Zero, Source: constants.PriceSourceList}
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	unitPrice := product.Price.Decimal
	source := constants.PriceSourceList
	switch {
	case ctx.GroupBuyID != nil && product.IsGroupBuy && product.GroupBuyPrice != nil:
		unitPrice = product.GroupBuyPrice.Decimal
		source = constants.PriceSourceGroupBuy
	case product.IsFlashSale && product.FlashSalePrice != nil && flashSaleOpen(product.FlashSaleEndsAt, now):
		unitPrice = product.FlashSalePrice.Decimal
		source = constants.PriceSourceFlashSale
	}

	discount := decimal.Zero
	if product.OriginalPrice != nil {
		discount = product.OriginalPrice.Decimal.Sub(unitPrice)
		if discount.IsNegative() {
			discount = decimal.Zero
		}
	}
	return PriceQuote{
		UnitPrice:       unitPrice.Round(2),
		DiscountPerUnit: discount.Round(2),
		Source:          source,
	}
}

func flashSaleOpen(endsAt *time.Time, now time.Time) bool {
	return endsAt == nil || endsAt.After(now)
}
