package service

import (
	"context"
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/metrics"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/queue"
	"github.com/bazaar-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FlashSaleService 秒杀下单服务
type FlashSaleService struct {
	flashSaleRepo repository.FlashSaleRepository
	orderRepo     repository.OrderRepository
	queueClient   *queue.Client
	metrics       *metrics.Metrics
	shipping      ShippingPolicy
	expireMinutes int
}

// NewFlashSaleService 创建秒杀服务
func NewFlashSaleService(flashSaleRepo repository.FlashSaleRepository, orderRepo repository.OrderRepository, queueClient *queue.Client, m *metrics.Metrics, shipping ShippingPolicy, expireMinutes int) *FlashSaleService {
	return &FlashSaleService{
		flashSaleRepo: flashSaleRepo,
		orderRepo:     orderRepo,
		queueClient:   queueClient,
		metrics:       m,
		shipping:      shipping,
		expireMinutes: expireMinutes,
	}
}

// Buy 秒杀抢购：库存 CAS 扣减成功后再落单，落单失败回补库存
func (s *FlashSaleService) Buy(ctx context.Context, flashSaleID uint, quantity int, userID uint) (*models.Order, error) {
	if flashSaleID == 0 || userID == 0 || quantity <= 0 {
		return nil, ErrInvalidInput
	}
	sale, err := s.flashSaleRepo.GetByID(flashSaleID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if sale == nil || !sale.IsActive || !sale.EndsAt.After(now) {
		s.metrics.FlashSalePurchase("not_found")
		return nil, ErrFlashSaleNotFound
	}
	if sale.StartsAt.After(now) {
		s.metrics.FlashSalePurchase("not_started")
		return nil, ErrFlashSaleNotStarted
	}
	if sale.Stock < quantity {
		s.metrics.FlashSalePurchase("insufficient_stock")
		return nil, &InsufficientStockError{ProductID: sale.ProductID, Available: sale.Stock, Requested: quantity}
	}

	affected, err := s.flashSaleRepo.CompareAndDecrementStock(sale.ID, sale.Stock, quantity)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		s.metrics.FlashSalePurchase("conflict")
		return nil, ErrConflict
	}

	order, err := s.createOrder(sale, quantity, userID, now)
	if err != nil {
		s.restoreStock(ctx, sale.ID, quantity, err)
		s.metrics.FlashSalePurchase("order_failed")
		return nil, err
	}
	s.metrics.FlashSalePurchase("success")
	s.metrics.OrderCreated("flash_sale", 1)
	enqueueOrderTimeout(ctx, s.queueClient, order.ID, s.expireMinutes)
	return order, nil
}

func (s *FlashSaleService) createOrder(sale *models.FlashSale, quantity int, userID uint, now time.Time) (*models.Order, error) {
	if sale.Product == nil {
		return nil, ErrProductUnavailable
	}
	qty := decimal.NewFromInt(int64(quantity))
	itemsAmount := sale.SalePrice.Decimal.Mul(qty).Round(2)
	promotion := sale.OriginalPrice.Decimal.Sub(sale.SalePrice.Decimal).Mul(qty)
	if promotion.IsNegative() {
		promotion = decimal.Zero
	}
	shippingFee := s.shipping.FeeFor(itemsAmount)
	flashSaleID := sale.ID

	order := &models.Order{
		OrderNo:           generateOrderNo(),
		CheckoutNo:        generateCheckoutNo(),
		UserID:            userID,
		ShopID:            sale.Product.ShopID,
		Status:            constants.OrderStatusPending,
		ItemsAmount:       models.NewMoneyFromDecimal(itemsAmount),
		PromotionDiscount: models.NewMoneyFromDecimal(promotion),
		DiscountAmount:    models.NewMoneyFromDecimal(promotion),
		ShippingFee:       models.NewMoneyFromDecimal(shippingFee),
		TotalAmount:       models.NewMoneyFromDecimal(itemsAmount.Add(shippingFee)),
		FlashSaleID:       &flashSaleID,
		CreatedAt:         now,
		UpdatedAt:         now,
		Items: []models.OrderItem{{
			ProductID:     sale.ProductID,
			ShopID:        sale.Product.ShopID,
			Title:         sale.Product.Title,
			Quantity:      quantity,
			Price:         models.NewMoneyFromDecimal(sale.SalePrice.Decimal),
			OriginalPrice: models.MoneyPtr(models.NewMoneyFromDecimal(sale.OriginalPrice.Decimal)),
			PriceSource:   constants.PriceSourceFlashSale,
			CreatedAt:     now,
			UpdatedAt:     now,
		}},
	}
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		return s.orderRepo.WithTx(tx).Create(order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// restoreStock 下单失败后的补偿，失败只记录不再重试
func (s *FlashSaleService) restoreStock(ctx context.Context, flashSaleID uint, quantity int, cause error) {
	if _, err := s.flashSaleRepo.RestoreStock(flashSaleID, quantity); err != nil {
		s.metrics.CompensationFailed("flash_sale_stock")
		logger.FromContext(ctx).Errorw("flash_sale_compensation_failed",
			"flash_sale_id", flashSaleID,
			"quantity", quantity,
			"cause", cause,
			"error", err,
		)
	}
}
