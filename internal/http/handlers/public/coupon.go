package public

import (
	"strings"

	"github.com/bazaar-next/internal/http/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ApplyCouponRequest 优惠券试算请求
type ApplyCouponRequest struct {
	Code      string `json:"code" binding:"required"`
	CartTotal string `json:"cart_total" binding:"required"`
}

// ApplyCoupon 优惠券试算，不核销
func (h *Handler) ApplyCoupon(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	cartTotal, err := decimal.NewFromString(strings.TrimSpace(req.CartTotal))
	if err != nil || cartTotal.IsNegative() {
		respondError(c, response.CodeBadRequest, "cart_total is invalid", nil)
		return
	}

	quote, err := h.CouponService.ApplyCoupon(req.Code, cartTotal, uid)
	if err != nil {
		respondCouponError(c, err)
		return
	}

	response.Success(c, gin.H{
		"coupon_id":  quote.Coupon.ID,
		"code":       quote.Coupon.Code,
		"type":       quote.Coupon.Type,
		"discount":   quote.Discount.StringFixed(2),
		"cart_total": cartTotal.StringFixed(2),
		"pay_amount": cartTotal.Sub(quote.Discount).StringFixed(2),
	})
}
