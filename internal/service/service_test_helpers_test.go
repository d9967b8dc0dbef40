package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bazaar-next/internal/authz"
	"github.com/bazaar-next/internal/cache"
	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/metrics"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/payment"
	"github.com/bazaar-next/internal/payment/elsom"
	"github.com/bazaar-next/internal/payment/mbank"
	"github.com/bazaar-next/internal/payment/odengi"
	"github.com/bazaar-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	testMbankSecret  = "mbank-test-secret"
	testElsomSecret  = "elsom-test-secret"
	testOdengiSecret = "odengi-test-secret"
)

type serviceTestEnv struct {
	db            *gorm.DB
	productRepo   *repository.GormProductRepository
	flashSaleRepo *repository.GormFlashSaleRepository
	shopRepo      *repository.GormShopRepository
	orderRepo     *repository.GormOrderRepository
	paymentRepo   *repository.GormPaymentRepository
	couponRepo    *repository.GormCouponRepository
	groupBuyRepo  *repository.GormGroupBuyRepository
	metrics       *metrics.Metrics
	coupons       *CouponService
	status        *OrderStatusService
	orders        *OrderService
	flashSales    *FlashSaleService
	groupBuys     *GroupBuyService
	payments      *PaymentService
}

func setupServiceTest(t *testing.T) *serviceTestEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	models.DB = db

	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("init authz failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap authz failed: %v", err)
	}

	env := &serviceTestEnv{
		db:            db,
		productRepo:   repository.NewProductRepository(db),
		flashSaleRepo: repository.NewFlashSaleRepository(db),
		shopRepo:      repository.NewShopRepository(db),
		orderRepo:     repository.NewOrderRepository(db),
		paymentRepo:   repository.NewPaymentRepository(db),
		couponRepo:    repository.NewCouponRepository(db),
		groupBuyRepo:  repository.NewGroupBuyRepository(db),
		metrics:       metrics.New(prometheus.NewRegistry()),
	}
	shipping := NewShippingPolicy(config.OrderConfig{
		ShippingFee:           constants.DefaultShippingFee,
		FreeShippingThreshold: constants.DefaultFreeShippingThreshold,
	})
	registry := payment.NewRegistry(
		mbank.New(mbank.Config{Secret: testMbankSecret}),
		elsom.New(elsom.Config{Secret: testElsomSecret}),
		odengi.New(odengi.Config{Secret: testOdengiSecret}),
	)

	env.coupons = NewCouponService(env.couponRepo)
	env.status = NewOrderStatusService(env.orderRepo, env.productRepo, env.flashSaleRepo, env.paymentRepo, env.shopRepo, authzService, nil, env.metrics)
	env.orders = NewOrderService(env.orderRepo, env.productRepo, env.groupBuyRepo, env.shopRepo, env.coupons, env.status, nil, env.metrics, shipping, 15)
	env.flashSales = NewFlashSaleService(env.flashSaleRepo, env.orderRepo, nil, env.metrics, shipping, 15)
	env.groupBuys = NewGroupBuyService(env.groupBuyRepo, env.productRepo, nil, env.metrics, constants.DefaultGroupBuyDurationHours, constants.DefaultGroupBuyMinPeople)
	env.payments = NewPaymentService(env.paymentRepo, env.orderRepo, env.productRepo, env.shopRepo, env.status, registry, cache.NewMemoryIdempotencyGuard(), time.Hour, env.metrics)
	return env
}

func (e *serviceTestEnv) seedShop(t *testing.T, ownerID uint) *models.Shop {
	t.Helper()
	shop := &models.Shop{OwnerID: ownerID, Name: fmt.Sprintf("shop-%d", ownerID), SalesAmount: models.NewMoneyFromInt(0), IsActive: true}
	if err := e.shopRepo.Create(shop); err != nil {
		t.Fatalf("create shop failed: %v", err)
	}
	return shop
}

func (e *serviceTestEnv) seedProduct(t *testing.T, shopID uint, price string, stock int, mutate func(p *models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{
		ShopID:   shopID,
		Title:    fmt.Sprintf("product-%s", price),
		Price:    models.MustMoney(price),
		Stock:    stock,
		IsActive: true,
	}
	if mutate != nil {
		mutate(product)
	}
	if err := e.productRepo.Create(product); err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func (e *serviceTestEnv) reloadProduct(t *testing.T, id uint) *models.Product {
	t.Helper()
	product, err := e.productRepo.GetByID(id)
	if err != nil || product == nil {
		t.Fatalf("reload product %d failed: %v", id, err)
	}
	return product
}

func (e *serviceTestEnv) reloadOrder(t *testing.T, id uint) *models.Order {
	t.Helper()
	order, err := e.orderRepo.GetByID(id)
	if err != nil || order == nil {
		t.Fatalf("reload order %d failed: %v", id, err)
	}
	return order
}

// seedOrder 直接写入一张订单（绕过下单流程）
func (e *serviceTestEnv) seedOrder(t *testing.T, userID uint, shopID uint, status string, items ...models.OrderItem) *models.Order {
	t.Helper()
	total := models.NewMoneyFromInt(0)
	for i := range items {
		items[i].ShopID = shopID
		if items[i].PriceSource == "" {
			items[i].PriceSource = constants.PriceSourceList
		}
		if items[i].Title == "" {
			items[i].Title = "item"
		}
		total = models.NewMoneyFromDecimal(total.Decimal.Add(items[i].Price.Decimal.Mul(models.NewMoneyFromInt(int64(items[i].Quantity)).Decimal)))
	}
	order := &models.Order{
		OrderNo:         generateOrderNo() + randNumeric(4),
		CheckoutNo:      generateCheckoutNo(),
		UserID:          userID,
		ShopID:          shopID,
		Status:          status,
		ItemsAmount:     total,
		TotalAmount:     total,
		ShippingAddress: "Bishkek, Chui 1",
		Items:           items,
	}
	if err := e.orderRepo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}
