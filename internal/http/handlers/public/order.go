package public

import (
	"strconv"
	"strings"

	"github.com/bazaar-next/internal/http/response"
	"github.com/bazaar-next/internal/service"

	"github.com/gin-gonic/gin"
)

// OrderItemRequest 订单项请求
type OrderItemRequest struct {
	ProductID     uint   `json:"product_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required"`
	SelectedColor string `json:"selected_color"`
	SelectedSize  string `json:"selected_size"`
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items" binding:"required"`
	ShippingAddress string             `json:"shipping_address"`
	CouponCode      string             `json:"coupon_code"`
	GroupBuyID      *uint              `json:"group_buy_id"`
}

// UpdateOrderStatusRequest 订单状态变更请求
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreatePaymentRequest 发起支付请求
type CreatePaymentRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// CreateOrder 创建订单（按店铺拆单）
func (h *Handler) CreateOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	items := make([]service.CreateOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.CreateOrderItem{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
		})
	}

	result, err := h.OrderService.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		UserID:          uid,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		CouponCode:      req.CouponCode,
		GroupBuyID:      req.GroupBuyID,
	})
	if err != nil {
		respondOrderCreateError(c, err)
		return
	}

	response.Success(c, result)
}

// ListOrders 获取订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	orders, total, err := h.OrderService.ListOrders(service.ListOrdersInput{
		UserID:     uid,
		Status:     strings.TrimSpace(c.Query("status")),
		CheckoutNo: strings.TrimSpace(c.Query("checkout_no")),
		Keyword:    strings.TrimSpace(c.Query("keyword")),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "order fetch failed", err)
		return
	}

	response.SuccessWithPage(c, orders, response.BuildPagination(page, pageSize, total))
}

// GetCheckout 获取一次结算拆出的全部订单
func (h *Handler) GetCheckout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	result, err := h.OrderService.GetCheckout(c.Param("checkout_no"), uid)
	if err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrOrderNotFound, code: response.CodeNotFound, message: "checkout not found"},
		}, response.CodeInternal, "checkout fetch failed")
		return
	}

	response.Success(c, result)
}

// GetOrder 获取订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.OrderService.GetOrder(orderID, uid)
	if err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrOrderNotFound, code: response.CodeNotFound, message: "order not found"},
		}, response.CodeInternal, "order fetch failed")
		return
	}

	response.Success(c, order)
}

// UpdateOrderStatus 买家或店主变更订单状态
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.OrderStatusService.Transition(c.Request.Context(), service.TransitionInput{
		OrderID: orderID,
		ActorID: uid,
		Target:  strings.ToLower(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		respondOrderTransitionError(c, err)
		return
	}

	response.Success(c, order)
}

// CreatePayment 为待支付订单发起支付
func (h *Handler) CreatePayment(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	payment, err := h.PaymentService.InitiatePayment(c.Request.Context(), orderID, uid, req.Provider)
	if err != nil {
		respondPaymentCreateError(c, err)
		return
	}

	response.Success(c, payment)
}
