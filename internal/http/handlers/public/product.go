package public

import (
	"strconv"
	"strings"

	"github.com/bazaar-next/internal/http/response"
	"github.com/bazaar-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetProductPrice 查询商品当前成交价，可携带拼团上下文
func (h *Handler) GetProductPrice(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var groupBuyID *uint
	if raw := strings.TrimSpace(c.Query("group_buy_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			respondError(c, response.CodeBadRequest, "group_buy_id is invalid", nil)
			return
		}
		id := uint(parsed)
		groupBuyID = &id
	}

	quote, err := h.OrderService.QuotePrice(productID, groupBuyID)
	if err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrProductNotFound, code: response.CodeNotFound, message: "product not found"},
			{target: service.ErrGroupBuyNotFound, code: response.CodeNotFound, message: "group buy not found"},
		}, response.CodeInternal, "price lookup failed")
		return
	}

	response.Success(c, gin.H{
		"product_id":        productID,
		"unit_price":        quote.UnitPrice.StringFixed(2),
		"discount_per_unit": quote.DiscountPerUnit.StringFixed(2),
		"source":            quote.Source,
	})
}
