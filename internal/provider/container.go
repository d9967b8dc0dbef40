package provider

import (
	"strings"
	"time"

	"github.com/bazaar-next/internal/authz"
	"github.com/bazaar-next/internal/cache"
	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/metrics"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/payment"
	"github.com/bazaar-next/internal/payment/elsom"
	"github.com/bazaar-next/internal/payment/mbank"
	"github.com/bazaar-next/internal/payment/odengi"
	"github.com/bazaar-next/internal/queue"
	"github.com/bazaar-next/internal/repository"
	"github.com/bazaar-next/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Container 依赖注入容器
type Container struct {
	Config          *config.Config
	QueueClient     *queue.Client
	MetricsRegistry *prometheus.Registry
	Metrics         *metrics.Metrics
	PaymentRegistry *payment.Registry
	WebhookGuard    cache.IdempotencyGuard

	// Repositories
	ShopRepo      repository.ShopRepository
	ProductRepo   repository.ProductRepository
	FlashSaleRepo repository.FlashSaleRepository
	OrderRepo     repository.OrderRepository
	PaymentRepo   repository.PaymentRepository
	CouponRepo    repository.CouponRepository
	GroupBuyRepo  repository.GroupBuyRepository

	// Services
	AuthzService       *authz.Service
	CouponService      *service.CouponService
	OrderStatusService *service.OrderStatusService
	OrderService       *service.OrderService
	FlashSaleService   *service.FlashSaleService
	GroupBuyService    *service.GroupBuyService
	PaymentService     *service.PaymentService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	return NewContainerWith(cfg, queueClient, newWebhookGuard())
}

// NewContainerWith 使用给定的队列客户端与回调去重器装配容器，数据库取 models.DB
func NewContainerWith(cfg *config.Config, queueClient *queue.Client, guard cache.IdempotencyGuard) *Container {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Container{
		Config:          cfg,
		QueueClient:     queueClient,
		MetricsRegistry: registry,
		Metrics:         metrics.New(registry),
		PaymentRegistry: newPaymentRegistry(cfg.Payment),
		WebhookGuard:    guard,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func newPaymentRegistry(cfg config.PaymentConfig) *payment.Registry {
	adapters := make([]payment.Adapter, 0, 3)
	if cfg.Mbank.Enabled {
		warnEmptySecret(constants.PaymentProviderMbank, cfg.Mbank.Secret)
		adapters = append(adapters, mbank.New(mbank.Config{Secret: cfg.Mbank.Secret}))
	}
	if cfg.Elsom.Enabled {
		warnEmptySecret(constants.PaymentProviderElsom, cfg.Elsom.Secret)
		adapters = append(adapters, elsom.New(elsom.Config{Secret: cfg.Elsom.Secret}))
	}
	if cfg.Odengi.Enabled {
		warnEmptySecret(constants.PaymentProviderOdengi, cfg.Odengi.Secret)
		adapters = append(adapters, odengi.New(odengi.Config{Secret: cfg.Odengi.Secret}))
	}
	return payment.NewRegistry(adapters...)
}

// warnEmptySecret 未配置密钥的提供方会拒绝全部回调
func warnEmptySecret(provider, secret string) {
	if strings.TrimSpace(secret) == "" {
		logger.Warnw("provider_payment_secret_missing", "provider", provider)
	}
}

// newWebhookGuard Redis 可用时跨实例去重，否则退回进程内实现
func newWebhookGuard() cache.IdempotencyGuard {
	if cache.Enabled() {
		guard, err := cache.NewRedisIdempotencyGuard(cache.Client(), cache.Prefix())
		if err == nil {
			return guard
		}
		logger.Warnw("provider_init_webhook_guard_failed", "error", err)
	}
	return cache.NewMemoryIdempotencyGuard()
}

func (c *Container) initRepositories() {
	db := models.DB
	c.ShopRepo = repository.NewShopRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.FlashSaleRepo = repository.NewFlashSaleRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.CouponRepo = repository.NewCouponRepository(db)
	c.GroupBuyRepo = repository.NewGroupBuyRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	shipping := service.NewShippingPolicy(c.Config.Order)
	expireMinutes := c.Config.Order.PaymentExpireMinutes
	guardTTL := time.Duration(c.Config.Payment.IdempotencyTTLSeconds) * time.Second

	c.CouponService = service.NewCouponService(c.CouponRepo)
	c.OrderStatusService = service.NewOrderStatusService(c.OrderRepo, c.ProductRepo, c.FlashSaleRepo, c.PaymentRepo, c.ShopRepo, c.AuthzService, c.QueueClient, c.Metrics)
	c.OrderService = service.NewOrderService(c.OrderRepo, c.ProductRepo, c.GroupBuyRepo, c.ShopRepo, c.CouponService, c.OrderStatusService, c.QueueClient, c.Metrics, shipping, expireMinutes)
	c.FlashSaleService = service.NewFlashSaleService(c.FlashSaleRepo, c.OrderRepo, c.QueueClient, c.Metrics, shipping, expireMinutes)
	c.GroupBuyService = service.NewGroupBuyService(c.GroupBuyRepo, c.ProductRepo, c.QueueClient, c.Metrics, c.Config.GroupBuy.DurationHours, c.Config.GroupBuy.DefaultMinPeople)
	c.PaymentService = service.NewPaymentService(c.PaymentRepo, c.OrderRepo, c.ProductRepo, c.ShopRepo, c.OrderStatusService, c.PaymentRegistry, c.WebhookGuard, guardTTL, c.Metrics)
}
