package public

import (
	"github.com/bazaar-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// FlashSaleBuyRequest 秒杀下单请求
type FlashSaleBuyRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// BuyFlashSale 秒杀下单
func (h *Handler) BuyFlashSale(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	flashSaleID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req FlashSaleBuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.FlashSaleService.Buy(c.Request.Context(), flashSaleID, req.Quantity, uid)
	if err != nil {
		respondFlashSaleError(c, err)
		return
	}

	response.Success(c, order)
}
