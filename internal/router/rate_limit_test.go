package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

func TestKeyByUserAndParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/flash-sales/9/buy", nil)
	c.Request.RemoteAddr = "1.2.3.4:5678"
	c.Params = gin.Params{{Key: "id", Value: "9"}}

	keyFunc := KeyByUserAndParam("id")
	if key := keyFunc(c); key != "9|1.2.3.4" {
		t.Fatalf("anonymous key want 9|1.2.3.4 got %s", key)
	}
	c.Set(userIDContextKey, uint(15))
	if key := keyFunc(c); key != "9|u15" {
		t.Fatalf("user key want 9|u15 got %s", key)
	}
}

func TestNewRateLimitRule(t *testing.T) {
	rule, ok := NewRateLimitRule("flash_sale", "bz:rate:flash_sale", config.RateLimitRule{Enabled: true, WindowSeconds: 10, MaxRequests: 5})
	if !ok || rule.Name != "flash_sale" || rule.MaxRequests != 5 {
		t.Fatalf("unexpected rule %+v ok=%v", rule, ok)
	}
	if _, ok := NewRateLimitRule("x", "", config.RateLimitRule{Enabled: false, WindowSeconds: 10, MaxRequests: 5}); ok {
		t.Fatalf("disabled rule should not be active")
	}
	if _, ok := NewRateLimitRule("x", "", config.RateLimitRule{Enabled: true, WindowSeconds: 0, MaxRequests: 5}); ok {
		t.Fatalf("zero window should not be active")
	}
}

func TestRateLimitMiddlewareWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP, nil))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if !strings.Contains(w.Body.String(), `"ok":true`) {
			t.Fatalf("expected handler response body, got %s", w.Body.String())
		}
	}
}

func TestMemoryRateLimitStoreBlocks(t *testing.T) {
	store := NewMemoryRateLimitStore()
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	rule := RateLimitRule{WindowSeconds: 10, MaxRequests: 2, BlockSeconds: 30}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := store.Allow(ctx, "k", rule)
		if err != nil || !ok {
			t.Fatalf("request %d should pass: ok=%v err=%v", i, ok, err)
		}
	}
	ok, wait, _ := store.Allow(ctx, "k", rule)
	if ok || wait != 30*time.Second {
		t.Fatalf("third request should be blocked for 30s, ok=%v wait=%s", ok, wait)
	}

	current = current.Add(20 * time.Second)
	if ok, _, _ := store.Allow(ctx, "k", rule); ok {
		t.Fatalf("still inside block window")
	}
	if ok, _, _ := store.Allow(ctx, "other", rule); !ok {
		t.Fatalf("other keys are independent")
	}

	current = current.Add(11 * time.Second)
	if ok, _, _ := store.Allow(ctx, "k", rule); !ok {
		t.Fatalf("request after block should pass")
	}
}

func TestRedisRateLimitStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisRateLimitStore(client)
	rule := RateLimitRule{WindowSeconds: 10, MaxRequests: 2, BlockSeconds: 30}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := store.Allow(ctx, "bz:rate:k", rule)
		if err != nil || !ok {
			t.Fatalf("request %d should pass: ok=%v err=%v", i, ok, err)
		}
	}
	ok, wait, err := store.Allow(ctx, "bz:rate:k", rule)
	if err != nil || ok || wait != 30*time.Second {
		t.Fatalf("third request should be blocked 30s: ok=%v wait=%s err=%v", ok, wait, err)
	}

	mr.FastForward(15 * time.Second)
	if ok, _, _ := store.Allow(ctx, "bz:rate:k", rule); ok {
		t.Fatalf("block key should outlive the window")
	}
	mr.FastForward(16 * time.Second)
	if ok, _, _ := store.Allow(ctx, "bz:rate:k", rule); !ok {
		t.Fatalf("request after block should pass")
	}

	mr.Close()
	if _, _, err := store.Allow(ctx, "bz:rate:k", rule); err == nil {
		t.Fatalf("closed redis should surface an error")
	}
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := gin.New()
	rule := RateLimitRule{Name: "flash_sale", Prefix: "rate", WindowSeconds: 60, MaxRequests: 1}
	r.POST("/flash-sales/:id/buy", RateLimitMiddleware(NewMemoryRateLimitStore(), rule, KeyByUserAndParam("id"), m), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status_code": 0})
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/flash-sales/3/buy", nil))
		codes = append(codes, decodeStatusCode(t, w))
		if i == 1 && w.Header().Get("Retry-After") == "" {
			t.Fatalf("rejected response should carry Retry-After")
		}
	}
	if codes[0] != 0 || codes[1] != 429 {
		t.Fatalf("expected pass then 429, got %v", codes)
	}
	count, err := testutil.GatherAndCount(reg, "bazaar_rate_limited_total")
	if err != nil || count != 1 {
		t.Fatalf("expected one rate limited series, got %d err=%v", count, err)
	}
}
