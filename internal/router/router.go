package router

import (
	"strings"

	"github.com/bazaar-next/internal/cache"
	"github.com/bazaar-next/internal/config"
	publichandlers "github.com/bazaar-next/internal/http/handlers/public"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "bz"
	}
	limitStore := newRateLimitStore()
	flashSaleRule, flashSaleLimited := NewRateLimitRule("flash_sale", cache.BuildKey(redisPrefix, "rate:flash_sale"), cfg.RateLimit.FlashSale)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log, c.Metrics))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		apiV1.GET("/health", publicHandler.Health)
		apiV1.GET("/products/:id/price", publicHandler.GetProductPrice)
		apiV1.GET("/group-buys/:id", publicHandler.GetGroupBuy)
		apiV1.POST("/payments/webhooks/:provider", publicHandler.PaymentWebhook)

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey))
		{
			user.POST("/coupons/apply", publicHandler.ApplyCoupon)
			user.POST("/orders", publicHandler.CreateOrder)
			user.GET("/orders", publicHandler.ListOrders)
			user.GET("/orders/:id", publicHandler.GetOrder)
			user.GET("/checkouts/:checkout_no", publicHandler.GetCheckout)
			user.PATCH("/orders/:id/status", publicHandler.UpdateOrderStatus)
			user.POST("/orders/:id/payments", publicHandler.CreatePayment)
			user.POST("/group-buys", publicHandler.StartGroupBuy)
			user.POST("/group-buys/:id/join", publicHandler.JoinGroupBuy)

			flashSale := []gin.HandlerFunc{}
			if flashSaleLimited {
				flashSale = append(flashSale, RateLimitMiddleware(limitStore, flashSaleRule, KeyByUserAndParam("id"), c.Metrics))
			}
			flashSale = append(flashSale, publicHandler.BuyFlashSale)
			user.POST("/flash-sales/:id/buy", flashSale...)
		}
	}

	// 指标
	if cfg.Metrics.Enabled && c.MetricsRegistry != nil {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(c.MetricsRegistry, promhttp.HandlerOpts{})))
	}

	// 健康检查
	r.GET("/health", publicHandler.Health)

	return r
}

// newRateLimitStore Redis 可用时跨实例计数，否则使用进程内令牌桶
func newRateLimitStore() RateLimitStore {
	if cache.Enabled() {
		return NewRedisRateLimitStore(cache.Client())
	}
	return NewMemoryRateLimitStore()
}
