package public

import (
	"github.com/bazaar-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// StartGroupBuyRequest 发起拼团请求
type StartGroupBuyRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
}

// StartGroupBuy 发起拼团
func (h *Handler) StartGroupBuy(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req StartGroupBuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	groupBuy, err := h.GroupBuyService.Start(c.Request.Context(), req.ProductID, uid)
	if err != nil {
		respondGroupBuyError(c, err)
		return
	}

	response.Success(c, groupBuy)
}

// JoinGroupBuy 参加拼团
func (h *Handler) JoinGroupBuy(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	groupBuyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	groupBuy, err := h.GroupBuyService.Join(c.Request.Context(), groupBuyID, uid)
	if err != nil {
		respondGroupBuyError(c, err)
		return
	}

	response.Success(c, groupBuy)
}

// GetGroupBuy 拼团详情
func (h *Handler) GetGroupBuy(c *gin.Context) {
	groupBuyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	groupBuy, err := h.GroupBuyService.GetGroupBuy(groupBuyID)
	if err != nil {
		respondGroupBuyError(c, err)
		return
	}

	response.Success(c, groupBuy)
}
