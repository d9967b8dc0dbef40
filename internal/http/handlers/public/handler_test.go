package public

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bazaar-next/internal/cache"
	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/http/response"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/payment/mbank"
	"github.com/bazaar-next/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testMbankSecret = "handler-mbank-secret"

type handlerTestEnv struct {
	db      *gorm.DB
	handler *Handler
	engine  *gin.Engine
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func setupHandlerTest(t *testing.T) *handlerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	models.DB = db

	v := viper.New()
	config.SetDefaults(v)
	v.Set("redis.enabled", false)
	v.Set("queue.enabled", false)
	v.Set("payment.mbank.secret", testMbankSecret)
	cfg, err := config.Unmarshal(v)
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}

	h := New(provider.NewContainerWith(cfg, nil, cache.NewMemoryIdempotencyGuard()))

	engine := gin.New()
	// 测试用身份注入，代替 JWT 中间件
	withUser := func(c *gin.Context) {
		if raw := c.GetHeader("X-Test-User"); raw != "" {
			id, _ := strconv.ParseUint(raw, 10, 64)
			c.Set("user_id", uint(id))
		}
		c.Next()
	}
	api := engine.Group("/api/v1", withUser)
	api.GET("/health", h.Health)
	api.GET("/products/:id/price", h.GetProductPrice)
	api.POST("/payments/webhooks/:provider", h.PaymentWebhook)
	api.POST("/coupons/apply", h.ApplyCoupon)
	api.POST("/orders", h.CreateOrder)
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/:id", h.GetOrder)
	api.GET("/checkouts/:checkout_no", h.GetCheckout)
	api.PATCH("/orders/:id/status", h.UpdateOrderStatus)
	api.POST("/orders/:id/payments", h.CreatePayment)
	api.POST("/flash-sales/:id/buy", h.BuyFlashSale)
	api.POST("/group-buys", h.StartGroupBuy)
	api.POST("/group-buys/:id/join", h.JoinGroupBuy)
	api.GET("/group-buys/:id", h.GetGroupBuy)

	return &handlerTestEnv{db: db, handler: h, engine: engine}
}

func (e *handlerTestEnv) do(t *testing.T, method, path string, userID uint, body interface{}, headers http.Header) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
		raw = encoded
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if userID != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	return w, env
}

func (e *handlerTestEnv) seedProduct(t *testing.T, ownerID uint, price string, stock int) *models.Product {
	t.Helper()
	shop := &models.Shop{OwnerID: ownerID, Name: fmt.Sprintf("shop-%d", ownerID), IsActive: true}
	if err := e.db.Create(shop).Error; err != nil {
		t.Fatalf("create shop failed: %v", err)
	}
	product := &models.Product{ShopID: shop.ID, Title: "tea", Price: models.MustMoney(price), Stock: stock, IsActive: true}
	if err := e.db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestCreateOrderRequiresUser(t *testing.T) {
	env := setupHandlerTest(t)
	_, resp := env.do(t, http.MethodPost, "/api/v1/orders", 0, gin.H{"items": []gin.H{{"product_id": 1, "quantity": 1}}}, nil)
	if resp.StatusCode != response.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", resp)
	}
}

func TestCreateOrderAndTransition(t *testing.T) {
	env := setupHandlerTest(t)
	product := env.seedProduct(t, 90, "100", 10)

	_, resp := env.do(t, http.MethodPost, "/api/v1/orders", 7, gin.H{
		"items":            []gin.H{{"product_id": product.ID, "quantity": 2}},
		"shipping_address": "Bishkek",
	}, nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("create order failed: %+v", resp)
	}
	var checkout struct {
		CheckoutNo string `json:"checkout_no"`
		Orders     []struct {
			ID          uint   `json:"id"`
			Status      string `json:"status"`
			TotalAmount string `json:"total_amount"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(resp.Data, &checkout); err != nil {
		t.Fatalf("decode checkout failed: %v", err)
	}
	if len(checkout.Orders) != 1 {
		t.Fatalf("expected one order, got %+v", checkout)
	}
	orderID := checkout.Orders[0].ID
	if checkout.Orders[0].TotalAmount != "350.00" {
		t.Fatalf("expected total 350.00 (200 + 150 shipping), got %s", checkout.Orders[0].TotalAmount)
	}

	_, resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), 8, nil, nil)
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("stranger must not see order, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodGet, "/api/v1/checkouts/"+checkout.CheckoutNo, 7, nil, nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("get checkout failed: %+v", resp)
	}
	_, resp = env.do(t, http.MethodGet, "/api/v1/checkouts/"+checkout.CheckoutNo, 8, nil, nil)
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("stranger must not see checkout, got %+v", resp)
	}

	_, resp = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", orderID), 7, gin.H{"status": "shipped"}, nil)
	if resp.StatusCode != response.CodeForbidden {
		t.Fatalf("buyer must not ship, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", orderID), 90, gin.H{"status": "delivered"}, nil)
	if resp.StatusCode != response.CodeForbidden {
		t.Fatalf("seller must not deliver, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", orderID), 90, gin.H{"status": "shipped"}, nil)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("pending order cannot ship, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", orderID), 7, gin.H{"status": "cancelled"}, nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("buyer cancel failed: %+v", resp)
	}

	w, resp := env.do(t, http.MethodGet, "/api/v1/orders?page=1&page_size=5", 7, nil, nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("list failed: %+v", resp)
	}
	var page struct {
		Pagination response.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil || page.Pagination.Total != 1 {
		t.Fatalf("expected one listed order, got %+v err=%v", page.Pagination, err)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	env := setupHandlerTest(t)
	product := env.seedProduct(t, 91, "100", 1)

	_, resp := env.do(t, http.MethodPost, "/api/v1/orders", 7, gin.H{
		"items":            []gin.H{{"product_id": product.ID, "quantity": 3}},
		"shipping_address": "Bishkek",
	}, nil)
	if resp.StatusCode != response.CodeConflict {
		t.Fatalf("expected conflict, got %+v", resp)
	}
	var detail struct {
		Available int `json:"available"`
		Requested int `json:"requested"`
	}
	if err := json.Unmarshal(resp.Data, &detail); err != nil || detail.Available != 1 || detail.Requested != 3 {
		t.Fatalf("unexpected stock detail %+v err=%v", detail, err)
	}
}

func TestPaymentWebhookFlow(t *testing.T) {
	env := setupHandlerTest(t)
	product := env.seedProduct(t, 92, "100", 5)

	_, resp := env.do(t, http.MethodPost, "/api/v1/orders", 7, gin.H{
		"items":            []gin.H{{"product_id": product.ID, "quantity": 1}},
		"shipping_address": "Osh",
	}, nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("create order failed: %+v", resp)
	}
	var checkout struct {
		Orders []struct {
			ID uint `json:"id"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(resp.Data, &checkout); err != nil {
		t.Fatalf("decode checkout failed: %v", err)
	}
	orderID := checkout.Orders[0].ID

	_, resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/payments", orderID), 7, gin.H{"provider": "paypal"}, nil)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("unsupported provider must be rejected, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/payments", orderID), 7, gin.H{"provider": "mbank"}, nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("initiate payment failed: %+v", resp)
	}
	var pay struct {
		ProviderID string `json:"provider_id"`
	}
	if err := json.Unmarshal(resp.Data, &pay); err != nil || pay.ProviderID == "" {
		t.Fatalf("missing provider id: %+v err=%v", pay, err)
	}
	_, resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/payments", orderID), 7, gin.H{"provider": "elsom"}, nil)
	if resp.StatusCode != response.CodeConflict {
		t.Fatalf("second provider on an open payment must get 409, got %+v", resp)
	}

	body := []byte(fmt.Sprintf(`{"transaction_id":%q,"status":"SUCCESS","amount":250}`, pay.ProviderID))
	forged := http.Header{}
	forged.Set(mbank.SignatureHeader, hex.EncodeToString(mbank.Sign("wrong", body)))
	w, _ := env.do(t, http.MethodPost, "/api/v1/payments/webhooks/mbank", 0, body, forged)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged webhook must get 401, got %d", w.Code)
	}

	signed := http.Header{}
	signed.Set(mbank.SignatureHeader, hex.EncodeToString(mbank.Sign(testMbankSecret, body)))
	_, resp = env.do(t, http.MethodPost, "/api/v1/payments/webhooks/mbank", 0, body, signed)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("webhook failed: %+v", resp)
	}
	var result struct {
		OrderStatus string `json:"order_status"`
		Duplicate   bool   `json:"duplicate"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil || result.OrderStatus != "paid" || result.Duplicate {
		t.Fatalf("unexpected reconcile result %+v err=%v", result, err)
	}

	_, resp = env.do(t, http.MethodPost, "/api/v1/payments/webhooks/mbank", 0, body, signed)
	if err := json.Unmarshal(resp.Data, &result); err != nil || !result.Duplicate {
		t.Fatalf("replayed webhook must be duplicate, got %+v err=%v", result, err)
	}

	var reloaded models.Product
	if err := env.db.First(&reloaded, product.ID).Error; err != nil {
		t.Fatalf("reload product failed: %v", err)
	}
	if reloaded.Stock != 4 || reloaded.SoldCount != 1 {
		t.Fatalf("expected stock 4 sold 1, got %d/%d", reloaded.Stock, reloaded.SoldCount)
	}
}

func TestPaymentWebhookUnknownPayment(t *testing.T) {
	env := setupHandlerTest(t)
	body := []byte(`{"transaction_id":"missing","status":"SUCCESS","amount":1}`)
	headers := http.Header{}
	headers.Set(mbank.SignatureHeader, hex.EncodeToString(mbank.Sign(testMbankSecret, body)))

	_, resp := env.do(t, http.MethodPost, "/api/v1/payments/webhooks/mbank", 0, body, headers)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("unknown payment must be acknowledged, got %+v", resp)
	}

	_, resp = env.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", 0, body, headers)
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown provider must be not found, got %+v", resp)
	}
}

func TestGetProductPrice(t *testing.T) {
	env := setupHandlerTest(t)
	product := env.seedProduct(t, 93, "120", 3)

	_, resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%d/price", product.ID), 0, nil, nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("price lookup failed: %+v", resp)
	}
	var quote struct {
		UnitPrice string `json:"unit_price"`
		Source    string `json:"source"`
	}
	if err := json.Unmarshal(resp.Data, &quote); err != nil || quote.UnitPrice != "120.00" || quote.Source != "list" {
		t.Fatalf("unexpected quote %+v err=%v", quote, err)
	}

	_, resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%d/price?group_buy_id=abc", product.ID), 0, nil, nil)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("bad group_buy_id must be rejected, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodGet, "/api/v1/products/999/price", 0, nil, nil)
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("missing product must be not found, got %+v", resp)
	}
}

func TestGroupBuyAndFlashSaleErrors(t *testing.T) {
	env := setupHandlerTest(t)
	product := env.seedProduct(t, 94, "100", 3)

	_, resp := env.do(t, http.MethodPost, "/api/v1/group-buys", 7, gin.H{"product_id": product.ID}, nil)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("non group-buy product must be rejected, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodPost, "/api/v1/group-buys/404/join", 7, nil, nil)
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("missing group buy must be not found, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodPost, "/api/v1/flash-sales/404/buy", 7, gin.H{"quantity": 1}, nil)
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("missing flash sale must be not found, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodPost, "/api/v1/flash-sales/abc/buy", 7, gin.H{"quantity": 1}, nil)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("bad id must be rejected, got %+v", resp)
	}
}

func TestApplyCouponHandler(t *testing.T) {
	env := setupHandlerTest(t)
	coupon := &models.Coupon{Code: "SAVE10", Type: "percentage", Value: models.MustMoney("10"), IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}
	if err := env.db.Create(coupon).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	if err := env.db.Create(&models.UserCoupon{UserID: 7, CouponID: coupon.ID}).Error; err != nil {
		t.Fatalf("grant coupon failed: %v", err)
	}

	_, resp := env.do(t, http.MethodPost, "/api/v1/coupons/apply", 7, gin.H{"code": "SAVE10", "cart_total": "300"}, nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("apply failed: %+v", resp)
	}
	var quote struct {
		Discount  string `json:"discount"`
		PayAmount string `json:"pay_amount"`
	}
	if err := json.Unmarshal(resp.Data, &quote); err != nil || quote.Discount != "30.00" || quote.PayAmount != "270.00" {
		t.Fatalf("unexpected quote %+v err=%v", quote, err)
	}

	_, resp = env.do(t, http.MethodPost, "/api/v1/coupons/apply", 8, gin.H{"code": "SAVE10", "cart_total": "300"}, nil)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("non owner must be rejected, got %+v", resp)
	}
	_, resp = env.do(t, http.MethodPost, "/api/v1/coupons/apply", 7, gin.H{"code": "SAVE10", "cart_total": "-1"}, nil)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("negative cart total must be rejected, got %+v", resp)
	}
}
