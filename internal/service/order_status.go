package service

import (
	"context"
	"errors"
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/metrics"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/queue"
	"github.com/bazaar-next/internal/repository"

	"gorm.io/gorm"
)

var allowedTransitions = map[string]map[string]bool{
	constants.OrderStatusPending: {
		constants.OrderStatusPaid:      true,
		constants.OrderStatusCancelled: true,
	},
	constants.OrderStatusPaid: {
		constants.OrderStatusShipped:   true,
		constants.OrderStatusCancelled: true,
		constants.OrderStatusRefunded:  true,
	},
	constants.OrderStatusShipped: {
		constants.OrderStatusDelivered: true,
	},
	constants.OrderStatusDelivered: {
		constants.OrderStatusRefunded: true,
	},
}

func isTransitionAllowed(from, to string) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// TransitionAuthorizer 订单状态变更授权
type TransitionAuthorizer interface {
	CanChangeOrderStatus(roles []string, target string) (bool, error)
}

// TransitionInput 状态流转输入
type TransitionInput struct {
	OrderID uint
	ActorID uint
	Target  string
	System  bool
}

// OrderStatusService 订单状态机
type OrderStatusService struct {
	orderRepo     repository.OrderRepository
	productRepo   repository.ProductRepository
	flashSaleRepo repository.FlashSaleRepository
	paymentRepo   repository.PaymentRepository
	shopRepo      repository.ShopRepository
	authorizer    TransitionAuthorizer
	queueClient   *queue.Client
	metrics       *metrics.Metrics
}

// NewOrderStatusService 创建订单状态机
func NewOrderStatusService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository, flashSaleRepo repository.FlashSaleRepository, paymentRepo repository.PaymentRepository, shopRepo repository.ShopRepository, authorizer TransitionAuthorizer, queueClient *queue.Client, m *metrics.Metrics) *OrderStatusService {
	return &OrderStatusService{
		orderRepo:     orderRepo,
		productRepo:   productRepo,
		flashSaleRepo: flashSaleRepo,
		paymentRepo:   paymentRepo,
		shopRepo:      shopRepo,
		authorizer:    authorizer,
		queueClient:   queueClient,
		metrics:       m,
	}
}

// Transition 执行一次订单状态流转：鉴权 -> 状态表 -> 条件写入 -> 补偿 -> 通知
func (s *OrderStatusService) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	log := logger.FromContext(ctx)
	if input.OrderID == 0 || input.Target == "" {
		return nil, ErrInvalidInput
	}
	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	from := order.Status
	gated := isActorTarget(input.Target)
	if !input.System && gated {
		if err := s.authorize(order, input.ActorID, input.Target); err != nil {
			s.metrics.Transition(input.Target, "forbidden")
			return nil, err
		}
	}
	if !isTransitionAllowed(from, input.Target) {
		s.metrics.Transition(input.Target, "illegal")
		return nil, ErrIllegalTransition
	}
	// 其余合法目标状态只能由系统推进
	if !input.System && !gated {
		s.metrics.Transition(input.Target, "forbidden")
		return nil, ErrForbidden
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"updated_at": now}
	switch input.Target {
	case constants.OrderStatusPaid:
		updates["paid_at"] = now
	case constants.OrderStatusCancelled:
		updates["cancelled_at"] = now
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		affected, err := s.orderRepo.WithTx(tx).UpdateStatusIfCurrent(order.ID, from, input.Target, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrConflict
		}
		return s.compensate(tx, order, from, input.Target, now)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.Transition(input.Target, "conflict")
			return nil, err
		}
		log.Errorw("order_transition_failed", "order_id", order.ID, "from", from, "to", input.Target, "error", err)
		return nil, err
	}
	s.metrics.Transition(input.Target, "success")

	order.Status = input.Target
	order.UpdatedAt = now
	if input.Target == constants.OrderStatusPaid {
		order.PaidAt = &now
	}
	if input.Target == constants.OrderStatusCancelled {
		order.CancelledAt = &now
	}
	s.notify(ctx, order, from)
	return order, nil
}

// CancelExpiredOrder 支付超时取消：仅处理仍为 pending 的订单，其余状态直接跳过
func (s *OrderStatusService) CancelExpiredOrder(ctx context.Context, orderID uint) (bool, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusPending {
		return false, nil
	}
	_, err = s.Transition(ctx, TransitionInput{
		OrderID: orderID,
		Target:  constants.OrderStatusCancelled,
		System:  true,
	})
	if err != nil {
		// 与支付回调并发时以回调结果为准
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrIllegalTransition) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isActorTarget 买家或卖家可以发起的目标状态，其余由系统流转
func isActorTarget(target string) bool {
	switch target {
	case constants.OrderStatusCancelled, constants.OrderStatusShipped, constants.OrderStatusRefunded, constants.OrderStatusDelivered:
		return true
	}
	return false
}

// authorize 非系统操作：先推导角色，再由策略判定目标状态
func (s *OrderStatusService) authorize(order *models.Order, actorID uint, target string) error {
	if actorID == 0 || s.authorizer == nil {
		return ErrForbidden
	}
	roles := make([]string, 0, 2)
	if order.UserID == actorID {
		roles = append(roles, constants.ActorRoleBuyer)
	}
	shop, err := s.shopRepo.GetByID(order.ShopID)
	if err != nil {
		return err
	}
	if shop != nil && shop.OwnerID == actorID {
		roles = append(roles, constants.ActorRoleSeller)
	}
	if len(roles) == 0 {
		return ErrForbidden
	}
	allowed, err := s.authorizer.CanChangeOrderStatus(roles, target)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// compensate 退款或已付款取消时退回支付与库存。秒杀订单的库存来自活动池，
// 只回补活动池；退款时再回退支付时累加的商品销量
func (s *OrderStatusService) compensate(tx *gorm.DB, order *models.Order, from, to string, now time.Time) error {
	refund := to == constants.OrderStatusRefunded || (from == constants.OrderStatusPaid && to == constants.OrderStatusCancelled)
	if refund {
		if err := s.refundPayments(tx, order.ID, now); err != nil {
			return err
		}
	}
	if order.FlashSaleID != nil {
		if !refund && (from != constants.OrderStatusPending || to != constants.OrderStatusCancelled) {
			return nil
		}
		quantity := 0
		for _, item := range order.Items {
			if item.Quantity <= 0 {
				continue
			}
			quantity += item.Quantity
			if refund {
				if _, err := s.productRepo.WithTx(tx).DecrementSoldCount(item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		if quantity > 0 && s.flashSaleRepo != nil {
			if _, err := s.flashSaleRepo.WithTx(tx).RestoreStock(*order.FlashSaleID, quantity); err != nil {
				return err
			}
		}
		return nil
	}
	if !refund {
		return nil
	}
	productRepo := s.productRepo.WithTx(tx)
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			continue
		}
		if _, err := productRepo.RestoreStock(item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderStatusService) refundPayments(tx *gorm.DB, orderID uint, now time.Time) error {
	paymentRepo := s.paymentRepo.WithTx(tx)
	payments, err := paymentRepo.ListByOrderID(orderID)
	if err != nil {
		return err
	}
	for _, payment := range payments {
		if payment.Status != constants.PaymentStatusCompleted {
			continue
		}
		if _, err := paymentRepo.UpdateIfStatus(payment.ID, constants.PaymentStatusCompleted, map[string]interface{}{
			"status":      constants.PaymentStatusRefunded,
			"refunded_at": now,
			"updated_at":  now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderStatusService) notify(ctx context.Context, order *models.Order, from string) {
	if !s.queueClient.Enabled() {
		return
	}
	err := s.queueClient.EnqueueOrderStatusChanged(queue.OrderStatusChangedPayload{
		OrderID:    order.ID,
		OrderNo:    order.OrderNo,
		UserID:     order.UserID,
		ShopID:     order.ShopID,
		FromStatus: from,
		ToStatus:   order.Status,
	})
	if err != nil {
		logger.FromContext(ctx).Warnw("order_status_notify_enqueue_failed",
			"order_id", order.ID,
			"to", order.Status,
			"error", err,
		)
	}
}
