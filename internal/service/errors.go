package service

import (
	"errors"
	"fmt"
	"strings"
)

// 通用错误
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("concurrent modification, retry")
	ErrForbidden    = errors.New("operation not permitted for actor")
)

// 优惠券错误
var (
	ErrCouponNotFound         = errors.New("coupon not found")
	ErrCouponUsageLimit       = errors.New("coupon usage limit reached")
	ErrCouponBelowMinPurchase = errors.New("cart total below coupon minimum purchase")
	ErrCouponNotOwned         = errors.New("coupon not owned or already used")
	ErrCouponExists           = errors.New("coupon code already exists")
)

// 订单错误
var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrIllegalTransition      = errors.New("illegal order status transition")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrMissingAddress         = errors.New("shipping address is required")
	ErrProductUnavailable     = errors.New("product unavailable")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrOrderNotPayable        = errors.New("order is not awaiting payment")
	ErrOrderCreateFailed      = errors.New("order create failed")
	ErrOrderUpdateFailed      = errors.New("order update failed")
	ErrShopNotFound           = errors.New("shop not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrPaymentProviderInvalid = errors.New("unsupported payment provider")
)

// 秒杀错误
var (
	ErrFlashSaleNotFound   = errors.New("flash sale not found or ended")
	ErrFlashSaleNotStarted = errors.New("flash sale not started")
)

// 拼团错误
var (
	ErrGroupBuyNotAllowed    = errors.New("product does not support group buy")
	ErrGroupBuyAlreadyActive = errors.New("user already in an active group buy for product")
	ErrGroupBuyNotFound      = errors.New("group buy not found")
	ErrGroupBuyNotActive     = errors.New("group buy not active")
	ErrGroupBuyExpired       = errors.New("group buy expired")
	ErrGroupBuyAlreadyJoined = errors.New("user already joined group buy")
	ErrGroupBuyFull          = errors.New("group buy is full")
)

// 支付错误
var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrPaymentUpdate     = errors.New("payment update failed")
	ErrPaymentInProgress = errors.New("order already has an open payment")
)

// InsufficientStockError 库存不足，携带剩余量
type InsufficientStockError struct {
	ProductID uint
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// Unwrap 支持 errors.Is(err, ErrInsufficientStock)
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// PartialCheckoutError 多店铺下单时部分订单已创建
type PartialCheckoutError struct {
	CreatedOrderIDs []uint
	FailedShopID    uint
	Err             error
}

func (e *PartialCheckoutError) Error() string {
	ids := make([]string, 0, len(e.CreatedOrderIDs))
	for _, id := range e.CreatedOrderIDs {
		ids = append(ids, fmt.Sprintf("%d", id))
	}
	return fmt.Sprintf("checkout partially created (orders [%s]) failed at shop %d: %v", strings.Join(ids, ","), e.FailedShopID, e.Err)
}

func (e *PartialCheckoutError) Unwrap() error {
	return e.Err
}
