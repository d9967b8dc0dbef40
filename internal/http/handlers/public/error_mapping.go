package public

import (
	"errors"

	"github.com/bazaar-next/internal/http/response"
	"github.com/bazaar-next/internal/payment"
	"github.com/bazaar-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target  error
	code    int
	message string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMessage string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.message, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMessage, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var commonErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidInput, code: response.CodeBadRequest, message: "invalid request"},
	{target: service.ErrForbidden, code: response.CodeForbidden, message: "operation not permitted"},
	{target: service.ErrConflict, code: response.CodeConflict, message: "resource changed concurrently, please retry"},
}

var couponErrorRules = []mappedHandlerError{
	{target: service.ErrCouponNotFound, code: response.CodeNotFound, message: "coupon not found"},
	{target: service.ErrCouponUsageLimit, code: response.CodeBadRequest, message: "coupon usage limit reached"},
	{target: service.ErrCouponBelowMinPurchase, code: response.CodeBadRequest, message: "cart total below coupon minimum"},
	{target: service.ErrCouponNotOwned, code: response.CodeBadRequest, message: "coupon not owned or already used"},
}

var stockErrorRules = []mappedHandlerError{
	{target: service.ErrProductNotFound, code: response.CodeNotFound, message: "product not found"},
	{target: service.ErrProductUnavailable, code: response.CodeBadRequest, message: "product unavailable"},
	{target: service.ErrInsufficientStock, code: response.CodeConflict, message: "insufficient stock"},
}

var groupBuyErrorRules = []mappedHandlerError{
	{target: service.ErrGroupBuyNotAllowed, code: response.CodeBadRequest, message: "product does not support group buy"},
	{target: service.ErrGroupBuyAlreadyActive, code: response.CodeConflict, message: "already in an active group buy for this product"},
	{target: service.ErrGroupBuyNotFound, code: response.CodeNotFound, message: "group buy not found"},
	{target: service.ErrGroupBuyNotActive, code: response.CodeBadRequest, message: "group buy is not active"},
	{target: service.ErrGroupBuyExpired, code: response.CodeBadRequest, message: "group buy expired"},
	{target: service.ErrGroupBuyAlreadyJoined, code: response.CodeConflict, message: "already joined this group buy"},
	{target: service.ErrGroupBuyFull, code: response.CodeConflict, message: "group buy is full"},
}

var orderCreateErrorRules = concatMappedHandlerErrors(
	[]mappedHandlerError{
		{target: service.ErrEmptyCart, code: response.CodeBadRequest, message: "cart is empty"},
		{target: service.ErrMissingAddress, code: response.CodeBadRequest, message: "shipping address is required"},
	},
	stockErrorRules,
	couponErrorRules,
	groupBuyErrorRules,
	commonErrorRules,
)

var orderTransitionErrorRules = concatMappedHandlerErrors(
	[]mappedHandlerError{
		{target: service.ErrOrderNotFound, code: response.CodeNotFound, message: "order not found"},
		{target: service.ErrIllegalTransition, code: response.CodeBadRequest, message: "status change not allowed"},
	},
	commonErrorRules,
)

var flashSaleErrorRules = concatMappedHandlerErrors(
	[]mappedHandlerError{
		{target: service.ErrFlashSaleNotFound, code: response.CodeNotFound, message: "flash sale not found or ended"},
		{target: service.ErrFlashSaleNotStarted, code: response.CodeBadRequest, message: "flash sale not started"},
	},
	stockErrorRules,
	commonErrorRules,
)

var paymentCreateErrorRules = concatMappedHandlerErrors(
	[]mappedHandlerError{
		{target: service.ErrPaymentProviderInvalid, code: response.CodeBadRequest, message: "payment provider not supported"},
		{target: service.ErrOrderNotFound, code: response.CodeNotFound, message: "order not found"},
		{target: service.ErrOrderNotPayable, code: response.CodeBadRequest, message: "order is not awaiting payment"},
		{target: service.ErrPaymentInProgress, code: response.CodeConflict, message: "order already has an open payment"},
	},
	commonErrorRules,
)

var paymentWebhookErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentProviderInvalid, code: response.CodeNotFound, message: "payment provider not supported"},
	{target: payment.ErrPayloadInvalid, code: response.CodeBadRequest, message: "webhook payload invalid"},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, message: "order not found"},
}

func respondOrderCreateError(c *gin.Context, err error) {
	var partial *service.PartialCheckoutError
	if errors.As(err, &partial) {
		respondError(c, response.CodeInternal, "checkout partially failed", err)
		return
	}
	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		response.ErrorWithData(c, response.CodeConflict, "insufficient stock", gin.H{
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
		return
	}
	respondWithMappedError(c, err, orderCreateErrorRules, response.CodeInternal, "order create failed")
}

func respondOrderTransitionError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderTransitionErrorRules, response.CodeInternal, "order update failed")
}

func respondFlashSaleError(c *gin.Context, err error) {
	respondWithMappedError(c, err, flashSaleErrorRules, response.CodeInternal, "flash sale purchase failed")
}

func respondGroupBuyError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(groupBuyErrorRules, stockErrorRules, commonErrorRules), response.CodeInternal, "group buy failed")
}

func respondCouponError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(couponErrorRules, commonErrorRules), response.CodeInternal, "coupon apply failed")
}

func respondPaymentCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentCreateErrorRules, response.CodeInternal, "payment create failed")
}
