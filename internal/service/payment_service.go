package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bazaar-next/internal/cache"
	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/metrics"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/payment"
	"github.com/bazaar-next/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	paymentUpdateAttempts = 3
	stockConsumeAttempts  = 5
)

// PaymentService 支付服务：发起支付与回调对账
type PaymentService struct {
	paymentRepo   repository.PaymentRepository
	orderRepo     repository.OrderRepository
	productRepo   repository.ProductRepository
	shopRepo      repository.ShopRepository
	statusService *OrderStatusService
	registry      *payment.Registry
	guard         cache.IdempotencyGuard
	guardTTL      time.Duration
	metrics       *metrics.Metrics
}

// NewPaymentService 创建支付服务
func NewPaymentService(paymentRepo repository.PaymentRepository, orderRepo repository.OrderRepository, productRepo repository.ProductRepository, shopRepo repository.ShopRepository, statusService *OrderStatusService, registry *payment.Registry, guard cache.IdempotencyGuard, guardTTL time.Duration, m *metrics.Metrics) *PaymentService {
	return &PaymentService{
		paymentRepo:   paymentRepo,
		orderRepo:     orderRepo,
		productRepo:   productRepo,
		shopRepo:      shopRepo,
		statusService: statusService,
		registry:      registry,
		guard:         guard,
		guardTTL:      guardTTL,
		metrics:       m,
	}
}

// WebhookInput 支付回调输入
type WebhookInput struct {
	Provider string
	Headers  http.Header
	Body     []byte
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	PaymentID     uint   `json:"payment_id"`
	OrderID       uint   `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	OrderStatus   string `json:"order_status"`
	Duplicate     bool   `json:"duplicate"`
}

// Reconcile 处理一次支付回调：验签 -> 去重 -> 支付状态条件更新 -> 订单流转
func (s *PaymentService) Reconcile(ctx context.Context, input WebhookInput) (result *ReconcileResult, err error) {
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	log := logger.FromContext(ctx).With("provider", provider)

	adapter, err := s.registry.Get(provider)
	if err != nil {
		s.metrics.WebhookEvent(provider, "unknown_provider")
		return nil, fmt.Errorf("%w: %s", ErrPaymentProviderInvalid, provider)
	}
	event, err := adapter.Parse(input.Headers, input.Body)
	if err != nil {
		if errors.Is(err, payment.ErrSignatureInvalid) {
			s.metrics.WebhookEvent(provider, "invalid_signature")
		} else {
			s.metrics.WebhookEvent(provider, "invalid_payload")
		}
		return nil, err
	}
	outcome := event.Outcome()
	log = log.With("provider_id", event.ProviderID(), "raw_status", event.RawStatus())

	guardKey := fmt.Sprintf("%s:%s:%s", provider, event.ProviderID(), outcome.PaymentStatus)
	if s.guard != nil {
		acquired, guardErr := s.guard.Acquire(ctx, guardKey, s.guardTTL)
		if guardErr != nil {
			log.Warnw("payment_webhook_guard_unavailable", "error", guardErr)
		} else if !acquired {
			s.metrics.WebhookEvent(provider, "duplicate")
			return &ReconcileResult{PaymentStatus: outcome.PaymentStatus, Duplicate: true}, nil
		} else {
			defer func() {
				if err == nil {
					return
				}
				if releaseErr := s.guard.Release(context.WithoutCancel(ctx), guardKey); releaseErr != nil {
					log.Warnw("payment_webhook_guard_release_failed", "error", releaseErr)
				}
			}()
		}
	}

	result, err = s.apply(ctx, event, outcome)
	switch {
	case err == nil:
		s.metrics.WebhookEvent(provider, "applied")
	case errors.Is(err, ErrPaymentNotFound):
		s.metrics.WebhookEvent(provider, "not_found")
	default:
		s.metrics.WebhookEvent(provider, "error")
	}
	return result, err
}

func (s *PaymentService) apply(ctx context.Context, event payment.Event, outcome payment.Outcome) (*ReconcileResult, error) {
	log := logger.FromContext(ctx)
	var (
		record          *models.Payment
		order           *models.Order
		firstCompletion bool
		orderPaid       bool
		paidAt          time.Time
	)
	for attempt := 0; ; attempt++ {
		current, err := s.paymentRepo.GetByProviderRef(event.Provider(), event.ProviderID())
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrPaymentNotFound
		}
		order, err = s.orderRepo.GetByID(current.OrderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, ErrOrderNotFound
		}

		next := nextPaymentStatus(current.Status, outcome.PaymentStatus)
		firstCompletion = next == constants.PaymentStatusCompleted && current.Status != constants.PaymentStatusCompleted
		orderPaid = false
		paidAt = time.Now().UTC()
		err = models.DB.Transaction(func(tx *gorm.DB) error {
			if err := s.writePayment(tx, current, next, event); err != nil {
				return err
			}
			if !firstCompletion {
				return nil
			}
			// 库存与销量只随订单 pending -> paid 生效一次
			affected, err := s.orderRepo.WithTx(tx).UpdateStatusIfCurrent(order.ID, constants.OrderStatusPending, constants.OrderStatusPaid, map[string]interface{}{
				"paid_at":    paidAt,
				"updated_at": paidAt,
			})
			if err != nil {
				return err
			}
			if affected == 0 {
				return nil
			}
			orderPaid = true
			return s.applyCompletionEffects(ctx, tx, order)
		})
		if err == nil {
			current.Status = next
			record = current
			break
		}
		if !errors.Is(err, ErrConflict) || attempt+1 >= paymentUpdateAttempts {
			return nil, err
		}
	}

	if firstCompletion {
		log.Infow("payment_completed", "payment_id", record.ID, "order_id", order.ID, "amount", record.Amount.String())
	}

	orderStatus := order.Status
	switch {
	case orderPaid:
		order.Status = constants.OrderStatusPaid
		order.PaidAt = &paidAt
		order.UpdatedAt = paidAt
		orderStatus = order.Status
		s.metrics.Transition(constants.OrderStatusPaid, "success")
		if s.statusService != nil {
			s.statusService.notify(ctx, order, constants.OrderStatusPending)
		}
	case firstCompletion:
		current, err := s.orderRepo.GetByID(order.ID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			orderStatus = current.Status
		}
		log.Warnw("payment_completed_order_not_payable",
			"payment_id", record.ID,
			"order_id", order.ID,
			"order_status", orderStatus,
			"amount", record.Amount.String(),
		)
	case outcome.OrderStatus != constants.OrderStatusPaid && orderStatus != outcome.OrderStatus:
		updated, err := s.statusService.Transition(ctx, TransitionInput{
			OrderID: order.ID,
			Target:  outcome.OrderStatus,
			System:  true,
		})
		switch {
		case err == nil:
			orderStatus = updated.Status
		case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrConflict):
			log.Warnw("payment_order_transition_skipped",
				"payment_id", record.ID,
				"order_id", order.ID,
				"from", order.Status,
				"to", outcome.OrderStatus,
				"reason", err.Error(),
			)
		default:
			return nil, err
		}
	}

	return &ReconcileResult{
		PaymentID:     record.ID,
		OrderID:       order.ID,
		PaymentStatus: record.Status,
		OrderStatus:   orderStatus,
	}, nil
}

// writePayment 以读取时的状态为条件写入，同时追加回调原文
func (s *PaymentService) writePayment(tx *gorm.DB, current *models.Payment, next string, event payment.Event) error {
	now := time.Now().UTC()
	record := models.JSON{
		"received_at": now.Format(time.RFC3339Nano),
		"status":      event.RawStatus(),
		"normalized":  event.Outcome().PaymentStatus,
		"payload":     map[string]interface{}(event.Payload()),
	}
	updates := map[string]interface{}{
		"status":            next,
		"provider_response": current.ProviderResponse.AppendEvent(record),
		"callback_at":       now,
		"updated_at":        now,
	}
	if next == constants.PaymentStatusCompleted && current.Status != constants.PaymentStatusCompleted {
		updates["paid_at"] = now
	}
	affected, err := s.paymentRepo.WithTx(tx).UpdateIfStatus(current.ID, current.Status, updates)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// applyCompletionEffects 首次支付完成：扣减商品库存、累加销量与店铺成交
func (s *PaymentService) applyCompletionEffects(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	productRepo := s.productRepo.WithTx(tx)
	totalQuantity := 0
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			continue
		}
		totalQuantity += item.Quantity
		if order.FlashSaleID != nil {
			if _, err := productRepo.IncrementSoldCount(item.ProductID, item.Quantity); err != nil {
				return err
			}
			continue
		}
		if err := consumeProductStock(ctx, productRepo, order.ID, item); err != nil {
			return err
		}
	}
	if totalQuantity == 0 {
		return nil
	}
	_, err := s.shopRepo.WithTx(tx).IncrementSales(order.ShopID, totalQuantity, order.TotalAmount)
	return err
}

// consumeProductStock 库存 CAS 扣减，库存不足时扣到 0 并记录告警
func consumeProductStock(ctx context.Context, productRepo repository.ProductRepository, orderID uint, item models.OrderItem) error {
	for attempt := 0; attempt < stockConsumeAttempts; attempt++ {
		product, err := productRepo.GetByID(item.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			logger.FromContext(ctx).Warnw("payment_stock_product_missing", "order_id", orderID, "product_id", item.ProductID)
			return nil
		}
		take := item.Quantity
		if product.Stock < take {
			take = product.Stock
			logger.FromContext(ctx).Warnw("payment_stock_shortfall",
				"order_id", orderID,
				"product_id", product.ID,
				"stock", product.Stock,
				"quantity", item.Quantity,
			)
		}
		affected, err := productRepo.CompareAndConsumeStock(product.ID, product.Stock, take, item.Quantity)
		if err != nil {
			return err
		}
		if affected > 0 {
			return nil
		}
	}
	return ErrConflict
}

// nextPaymentStatus 终态不被处理中事件降级，已完成不会被失败覆盖
func nextPaymentStatus(current, incoming string) string {
	switch current {
	case constants.PaymentStatusCompleted, constants.PaymentStatusRefunded:
		return current
	case constants.PaymentStatusFailed:
		if incoming == constants.PaymentStatusCompleted {
			return incoming
		}
		return current
	case constants.PaymentStatusProcessing:
		if incoming == constants.PaymentStatusPending {
			return current
		}
		return incoming
	}
	if incoming == "" {
		return current
	}
	return incoming
}

// InitiatePayment 为待支付订单创建支付记录，外部交易号使用 uuid
func (s *PaymentService) InitiatePayment(ctx context.Context, orderID, userID uint, provider string) (*models.Payment, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if _, err := s.registry.Get(provider); err != nil {
		return nil, ErrPaymentProviderInvalid
	}
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusPending {
		return nil, ErrOrderNotPayable
	}
	existing, err := s.paymentRepo.ListByOrderID(order.ID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		switch existing[i].Status {
		case constants.PaymentStatusPending:
			if existing[i].Provider == provider {
				return &existing[i], nil
			}
			return nil, ErrPaymentInProgress
		case constants.PaymentStatusProcessing, constants.PaymentStatusCompleted:
			return nil, ErrPaymentInProgress
		}
	}
	now := time.Now().UTC()
	record := &models.Payment{
		OrderID:          order.ID,
		Provider:         provider,
		ProviderID:       uuid.NewString(),
		Amount:           order.TotalAmount,
		Status:           constants.PaymentStatusPending,
		ProviderResponse: models.JSON{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.WithTx(tx).Create(record); err != nil {
			return err
		}
		return s.orderRepo.WithTx(tx).SetPaymentID(order.ID, record.ID)
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Infow("payment_initiated",
		"payment_id", record.ID,
		"order_id", order.ID,
		"provider", provider,
		"provider_id", record.ProviderID,
	)
	return record, nil
}
