package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/metrics"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/queue"
	"github.com/bazaar-next/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ShippingPolicy 运费规则：合计达到阈值免运费
type ShippingPolicy struct {
	Fee           decimal.Decimal
	FreeThreshold decimal.Decimal
}

// NewShippingPolicy 从订单配置构建运费规则
func NewShippingPolicy(cfg config.OrderConfig) ShippingPolicy {
	return ShippingPolicy{
		Fee:           cfg.ShippingFeeDecimal(),
		FreeThreshold: cfg.FreeShippingThresholdDecimal(),
	}
}

// FeeFor 计算给定商品合计应收的运费
func (p ShippingPolicy) FeeFor(total decimal.Decimal) decimal.Decimal {
	if !p.Fee.IsPositive() {
		return decimal.Zero
	}
	if p.FreeThreshold.IsPositive() && total.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.Fee.Round(2)
}

// OrderService 订单服务
type OrderService struct {
	orderRepo     repository.OrderRepository
	productRepo   repository.ProductRepository
	groupBuyRepo  repository.GroupBuyRepository
	shopRepo      repository.ShopRepository
	couponService *CouponService
	statusService *OrderStatusService
	queueClient   *queue.Client
	metrics       *metrics.Metrics
	shipping      ShippingPolicy
	expireMinutes int
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository, groupBuyRepo repository.GroupBuyRepository, shopRepo repository.ShopRepository, couponService *CouponService, statusService *OrderStatusService, queueClient *queue.Client, m *metrics.Metrics, shipping ShippingPolicy, expireMinutes int) *OrderService {
	return &OrderService{
		orderRepo:     orderRepo,
		productRepo:   productRepo,
		groupBuyRepo:  groupBuyRepo,
		shopRepo:      shopRepo,
		couponService: couponService,
		statusService: statusService,
		queueClient:   queueClient,
		metrics:       m,
		shipping:      shipping,
		expireMinutes: expireMinutes,
	}
}

// CreateOrderInput 下单输入
type CreateOrderInput struct {
	UserID          uint              `json:"user_id" validate:"required"`
	Items           []CreateOrderItem `json:"items" validate:"dive"`
	ShippingAddress string            `json:"shipping_address"`
	CouponCode      string            `json:"coupon_code"`
	GroupBuyID      *uint             `json:"group_buy_id"`
}

// CreateOrderItem 购物车行
type CreateOrderItem struct {
	ProductID     uint   `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"gt=0"`
	SelectedColor string `json:"selected_color" validate:"max=64"`
	SelectedSize  string `json:"selected_size" validate:"max=64"`
}

// CheckoutResult 一次结算生成的订单集合
type CheckoutResult struct {
	CheckoutNo     string          `json:"checkout_no"`
	Orders         []*models.Order `json:"orders"`
	ItemsAmount    models.Money    `json:"items_amount"`
	CouponDiscount models.Money    `json:"coupon_discount"`
	ShippingFee    models.Money    `json:"shipping_fee"`
	TotalAmount    models.Money    `json:"total_amount"`
}

// shopOrderPlan 单个店铺的订单计划
type shopOrderPlan struct {
	ShopID    uint
	Items     []models.OrderItem
	Subtotal  decimal.Decimal
	Promotion decimal.Decimal
	Coupon    decimal.Decimal
	Shipping  decimal.Decimal
}

// CreateOrder 按店铺拆单并落库，优惠券在全部订单创建后最后核销
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CheckoutResult, error) {
	log := logger.FromContext(ctx)
	if len(input.Items) == 0 {
		return nil, ErrEmptyCart
	}
	address := strings.TrimSpace(input.ShippingAddress)
	if address == "" {
		return nil, ErrMissingAddress
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	items := mergeCreateOrderItems(input.Items)
	groupProductID, err := s.resolveGroupBuyProduct(input.GroupBuyID, input.UserID)
	if err != nil {
		return nil, err
	}
	plans, err := s.buildShopPlans(items, input.GroupBuyID, groupProductID, now)
	if err != nil {
		return nil, err
	}

	combined := decimal.Zero
	weights := make([]decimal.Decimal, len(plans))
	for i, plan := range plans {
		combined = combined.Add(plan.Subtotal)
		weights[i] = plan.Subtotal
	}

	var quote *CouponQuote
	couponTotal := decimal.Zero
	if code := strings.TrimSpace(input.CouponCode); code != "" {
		quote, err = s.couponService.ApplyCoupon(code, combined, input.UserID)
		if err != nil {
			return nil, err
		}
		couponTotal = quote.Discount
	}
	shippingTotal := s.shipping.FeeFor(combined)

	couponShares := splitProportional(couponTotal, weights)
	shippingShares := splitProportional(shippingTotal, weights)
	for i := range plans {
		plans[i].Coupon = couponShares[i]
		plans[i].Shipping = shippingShares[i]
	}

	checkoutNo := generateCheckoutNo()
	baseOrderNo := generateOrderNo()
	result := &CheckoutResult{
		CheckoutNo:     checkoutNo,
		Orders:         make([]*models.Order, 0, len(plans)),
		ItemsAmount:    models.NewMoneyFromDecimal(combined),
		CouponDiscount: models.NewMoneyFromDecimal(couponTotal),
		ShippingFee:    models.NewMoneyFromDecimal(shippingTotal),
	}
	createdIDs := make([]uint, 0, len(plans))
	total := decimal.Zero
	for idx, plan := range plans {
		order := buildShopOrder(plan, input, checkoutNo, baseOrderNo, idx, len(plans), quote, now)
		err := models.DB.Transaction(func(tx *gorm.DB) error {
			return s.orderRepo.WithTx(tx).Create(order)
		})
		if err != nil {
			log.Errorw("checkout_shop_order_failed",
				"checkout_no", checkoutNo,
				"shop_id", plan.ShopID,
				"created_order_ids", createdIDs,
				"error", err,
			)
			s.scheduleTimeouts(ctx, createdIDs)
			return nil, &PartialCheckoutError{CreatedOrderIDs: createdIDs, FailedShopID: plan.ShopID, Err: err}
		}
		createdIDs = append(createdIDs, order.ID)
		result.Orders = append(result.Orders, order)
		total = total.Add(order.TotalAmount.Decimal)
	}
	result.TotalAmount = models.NewMoneyFromDecimal(total)

	if quote != nil {
		if err := s.couponService.MarkUsed(quote.UserCoupon.ID, quote.Coupon.ID, createdIDs[0]); err != nil {
			log.Warnw("checkout_coupon_consume_failed",
				"checkout_no", checkoutNo,
				"coupon_id", quote.Coupon.ID,
				"error", err,
			)
			s.cancelCreated(ctx, createdIDs)
			if errors.Is(err, ErrCouponNotOwned) {
				return nil, ErrCouponNotOwned
			}
			return nil, err
		}
	}

	s.metrics.OrderCreated("checkout", len(result.Orders))
	s.scheduleTimeouts(ctx, createdIDs)
	return result, nil
}

// resolveGroupBuyProduct 校验拼团上下文，返回拼团对应的商品
func (s *OrderService) resolveGroupBuyProduct(groupBuyID *uint, userID uint) (uint, error) {
	if groupBuyID == nil || *groupBuyID == 0 {
		return 0, nil
	}
	if s.groupBuyRepo == nil {
		return 0, ErrGroupBuyNotFound
	}
	groupBuy, err := s.groupBuyRepo.GetByID(*groupBuyID)
	if err != nil {
		return 0, err
	}
	if groupBuy == nil {
		return 0, ErrGroupBuyNotFound
	}
	if groupBuy.Status == constants.GroupBuyStatusExpired || groupBuy.Status == constants.GroupBuyStatusCancelled {
		return 0, ErrGroupBuyNotActive
	}
	joined := false
	for _, participant := range groupBuy.Participants {
		if participant.UserID == userID {
			joined = true
			break
		}
	}
	if !joined {
		return 0, ErrForbidden
	}
	return groupBuy.ProductID, nil
}

// buildShopPlans 校验商品、定价并按店铺分组（店铺 ID 升序）
func (s *OrderService) buildShopPlans(items []CreateOrderItem, groupBuyID *uint, groupProductID uint, now time.Time) ([]shopOrderPlan, error) {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[uint]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	// 同一商品的多个规格共用库存
	requested := make(map[uint]int, len(items))
	for _, item := range items {
		requested[item.ProductID] += item.Quantity
	}

	planIndex := make(map[uint]int)
	plans := make([]shopOrderPlan, 0)
	for _, item := range items {
		product, ok := productMap[item.ProductID]
		if !ok || !product.IsActive {
			return nil, fmt.Errorf("%w: product %d", ErrProductUnavailable, item.ProductID)
		}
		if product.Stock < requested[product.ID] {
			return nil, &InsufficientStockError{ProductID: product.ID, Available: product.Stock, Requested: requested[product.ID]}
		}

		priceCtx := PriceContext{Now: now}
		if groupProductID != 0 && product.ID == groupProductID {
			priceCtx.GroupBuyID = groupBuyID
		}
		quote := ResolvePrice(product, priceCtx)
		qty := decimal.NewFromInt(int64(item.Quantity))

		idx, ok := planIndex[product.ShopID]
		if !ok {
			idx = len(plans)
			planIndex[product.ShopID] = idx
			plans = append(plans, shopOrderPlan{ShopID: product.ShopID, Subtotal: decimal.Zero, Promotion: decimal.Zero})
		}
		orderItem := models.OrderItem{
			ProductID:     product.ID,
			ShopID:        product.ShopID,
			Title:         product.Title,
			Quantity:      item.Quantity,
			Price:         models.NewMoneyFromDecimal(quote.UnitPrice),
			PriceSource:   quote.Source,
			SelectedColor: strings.TrimSpace(item.SelectedColor),
			SelectedSize:  strings.TrimSpace(item.SelectedSize),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if product.OriginalPrice != nil {
			orderItem.OriginalPrice = models.MoneyPtr(models.NewMoneyFromDecimal(product.OriginalPrice.Decimal))
		}
		plans[idx].Items = append(plans[idx].Items, orderItem)
		plans[idx].Subtotal = plans[idx].Subtotal.Add(quote.UnitPrice.Mul(qty))
		plans[idx].Promotion = plans[idx].Promotion.Add(quote.DiscountPerUnit.Mul(qty))
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ShopID < plans[j].ShopID })
	return plans, nil
}

func buildShopOrder(plan shopOrderPlan, input CreateOrderInput, checkoutNo, baseOrderNo string, idx, count int, quote *CouponQuote, now time.Time) *models.Order {
	orderNo := baseOrderNo
	if count > 1 {
		orderNo = buildShopOrderNo(baseOrderNo, idx+1)
	}
	order := &models.Order{
		OrderNo:           orderNo,
		CheckoutNo:        checkoutNo,
		UserID:            input.UserID,
		ShopID:            plan.ShopID,
		Status:            constants.OrderStatusPending,
		ItemsAmount:       models.NewMoneyFromDecimal(plan.Subtotal),
		PromotionDiscount: models.NewMoneyFromDecimal(plan.Promotion),
		CouponDiscount:    models.NewMoneyFromDecimal(plan.Coupon),
		DiscountAmount:    models.NewMoneyFromDecimal(plan.Promotion.Add(plan.Coupon)),
		ShippingFee:       models.NewMoneyFromDecimal(plan.Shipping),
		TotalAmount:       models.NewMoneyFromDecimal(normalizeOrderAmount(plan.Subtotal.Sub(plan.Coupon).Add(plan.Shipping))),
		ShippingAddress:   strings.TrimSpace(input.ShippingAddress),
		Items:             plan.Items,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if input.GroupBuyID != nil && *input.GroupBuyID != 0 {
		groupBuyID := *input.GroupBuyID
		for _, item := range plan.Items {
			if item.PriceSource == constants.PriceSourceGroupBuy {
				order.GroupBuyID = &groupBuyID
				break
			}
		}
	}
	if quote != nil && quote.Coupon != nil {
		couponID := quote.Coupon.ID
		order.CouponID = &couponID
	}
	return order
}

// cancelCreated 优惠券核销失败时撤销本次结算已创建的订单
func (s *OrderService) cancelCreated(ctx context.Context, orderIDs []uint) {
	if s.statusService == nil {
		return
	}
	for _, id := range orderIDs {
		_, err := s.statusService.Transition(ctx, TransitionInput{
			OrderID: id,
			Target:  constants.OrderStatusCancelled,
			System:  true,
		})
		if err != nil {
			logger.FromContext(ctx).Errorw("checkout_rollback_cancel_failed", "order_id", id, "error", err)
		}
	}
}

func (s *OrderService) scheduleTimeouts(ctx context.Context, orderIDs []uint) {
	for _, id := range orderIDs {
		enqueueOrderTimeout(ctx, s.queueClient, id, s.expireMinutes)
	}
}

// enqueueOrderTimeout 投递待支付超时取消任务
func enqueueOrderTimeout(ctx context.Context, client *queue.Client, orderID uint, expireMinutes int) {
	if !client.Enabled() || orderID == 0 {
		return
	}
	if expireMinutes <= 0 {
		expireMinutes = 15
	}
	delay := time.Duration(expireMinutes) * time.Minute
	if err := client.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{OrderID: orderID}, delay); err != nil {
		logger.FromContext(ctx).Warnw("order_timeout_enqueue_failed", "order_id", orderID, "error", err)
	}
}

// splitProportional 按权重拆分金额，最后一份承担舍入差额
func splitProportional(amount decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return shares
	}
	for i := range shares {
		shares[i] = decimal.Zero
	}
	if !amount.IsPositive() {
		return shares
	}
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(w)
	}
	last := len(weights) - 1
	if !total.IsPositive() {
		shares[last] = amount.Round(2)
		return shares
	}
	allocated := decimal.Zero
	for i := 0; i < last; i++ {
		shares[i] = amount.Mul(weights[i]).Div(total).Round(2)
		allocated = allocated.Add(shares[i])
	}
	shares[last] = amount.Sub(allocated).Round(2)
	return shares
}

// mergeCreateOrderItems 合并同一商品同一规格的多行，不同规格保留为独立行
func mergeCreateOrderItems(items []CreateOrderItem) []CreateOrderItem {
	type lineKey struct {
		productID uint
		color     string
		size      string
	}
	merged := make([]CreateOrderItem, 0, len(items))
	indexMap := make(map[lineKey]int)
	for _, item := range items {
		item.SelectedColor = strings.TrimSpace(item.SelectedColor)
		item.SelectedSize = strings.TrimSpace(item.SelectedSize)
		key := lineKey{productID: item.ProductID, color: item.SelectedColor, size: item.SelectedSize}
		if idx, ok := indexMap[key]; ok {
			merged[idx].Quantity += item.Quantity
			continue
		}
		indexMap[key] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

func normalizeOrderAmount(amount decimal.Decimal) decimal.Decimal {
	normalized := amount.Round(2)
	if normalized.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return normalized
}

func generateOrderNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("BZ%s%s", now, randNumeric(6))
}

func buildShopOrderNo(base string, seq int) string {
	if seq <= 0 {
		return base
	}
	return fmt.Sprintf("%s-%02d", base, seq)
}

func generateCheckoutNo() string {
	return uuid.NewString()
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
