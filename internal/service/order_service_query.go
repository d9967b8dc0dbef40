package service

import (
	"strings"
	"time"

	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/repository"

	"github.com/shopspring/decimal"
)

// ListOrdersInput 买家订单列表查询
type ListOrdersInput struct {
	UserID     uint
	Status     string
	CheckoutNo string
	Keyword    string
	Page       int
	PageSize   int
}

// ListOrders 获取买家订单列表
func (s *OrderService) ListOrders(input ListOrdersInput) ([]models.Order, int64, error) {
	if input.UserID == 0 {
		return nil, 0, ErrInvalidInput
	}
	return s.orderRepo.List(repository.OrderListFilter{
		Page:       input.Page,
		PageSize:   input.PageSize,
		UserID:     input.UserID,
		Status:     input.Status,
		CheckoutNo: input.CheckoutNo,
		Keyword:    input.Keyword,
	})
}

// GetCheckout 按结算批次号汇总买家的拆单结果
func (s *OrderService) GetCheckout(checkoutNo string, userID uint) (*CheckoutResult, error) {
	checkoutNo = strings.TrimSpace(checkoutNo)
	if checkoutNo == "" || userID == 0 {
		return nil, ErrOrderNotFound
	}
	orders, err := s.orderRepo.ListByCheckoutNo(checkoutNo)
	if err != nil {
		return nil, err
	}
	result := &CheckoutResult{
		CheckoutNo: checkoutNo,
		Orders:     make([]*models.Order, 0, len(orders)),
	}
	items, coupon, shipping, total := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i := range orders {
		order := &orders[i]
		if order.UserID != userID {
			continue
		}
		result.Orders = append(result.Orders, order)
		items = items.Add(order.ItemsAmount.Decimal)
		coupon = coupon.Add(order.CouponDiscount.Decimal)
		shipping = shipping.Add(order.ShippingFee.Decimal)
		total = total.Add(order.TotalAmount.Decimal)
	}
	if len(result.Orders) == 0 {
		return nil, ErrOrderNotFound
	}
	result.ItemsAmount = models.NewMoneyFromDecimal(items)
	result.CouponDiscount = models.NewMoneyFromDecimal(coupon)
	result.ShippingFee = models.NewMoneyFromDecimal(shipping)
	result.TotalAmount = models.NewMoneyFromDecimal(total)
	return result, nil
}

// GetOrder 买家或店主查看订单详情，其他人视为不存在
func (s *OrderService) GetOrder(orderID, actorID uint) (*models.Order, error) {
	if orderID == 0 || actorID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID == actorID {
		return order, nil
	}
	shop, err := s.shopRepo.GetByID(order.ShopID)
	if err != nil {
		return nil, err
	}
	if shop != nil && shop.OwnerID == actorID {
		return order, nil
	}
	return nil, ErrOrderNotFound
}

// QuotePrice 查询商品当前成交单价；拼团上下文须属于该商品
func (s *OrderService) QuotePrice(productID uint, groupBuyID *uint) (*PriceQuote, error) {
	if productID == 0 {
		return nil, ErrProductNotFound
	}
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}
	priceCtx := PriceContext{Now: time.Now()}
	if groupBuyID != nil && *groupBuyID != 0 {
		if s.groupBuyRepo == nil {
			return nil, ErrGroupBuyNotFound
		}
		groupBuy, err := s.groupBuyRepo.GetByID(*groupBuyID)
		if err != nil {
			return nil, err
		}
		if groupBuy == nil || groupBuy.ProductID != product.ID {
			return nil, ErrGroupBuyNotFound
		}
		priceCtx.GroupBuyID = groupBuyID
	}
	quote := ResolvePrice(product, priceCtx)
	return &quote, nil
}
