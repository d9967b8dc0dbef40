package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/http/response"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 限流规则
type RateLimitRule struct {
	Name          string
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	BlockSeconds  int
}

// NewRateLimitRule 由配置构建规则，未启用时返回 false
func NewRateLimitRule(name, prefix string, cfg config.RateLimitRule) (RateLimitRule, bool) {
	rule := RateLimitRule{
		Name:          name,
		Prefix:        prefix,
		WindowSeconds: cfg.WindowSeconds,
		MaxRequests:   cfg.MaxRequests,
		BlockSeconds:  cfg.BlockSeconds,
	}
	return rule, cfg.Enabled && rule.valid()
}

func (r RateLimitRule) valid() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

// RateLimitStore 限流计数存储
type RateLimitStore interface {
	// Allow 返回是否放行，拒绝时附带建议等待时长
	Allow(ctx context.Context, key string, rule RateLimitRule) (bool, time.Duration, error)
}

// 固定窗口计数，超限后写入封禁 key
var rateLimitScript = redis.NewScript(`
local blocked = redis.call("TTL", KEYS[2])
if blocked > 0 then
	return {0, blocked}
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
	local block = tonumber(ARGV[3])
	if block > 0 then
		redis.call("SET", KEYS[2], "1", "EX", block)
		return {0, block}
	end
	return {0, redis.call("TTL", KEYS[1])}
end
return {1, 0}
`)

// RedisRateLimitStore 基于 Redis 的跨实例限流
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore 创建 Redis 限流存储
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow 执行一次计数
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, rule RateLimitRule) (bool, time.Duration, error) {
	if s == nil || s.client == nil {
		return true, 0, nil
	}
	keys := []string{key, key + ":block"}
	result, err := rateLimitScript.Run(ctx, s.client, keys, rule.WindowSeconds, rule.MaxRequests, rule.BlockSeconds).Result()
	if err != nil {
		return false, 0, err
	}
	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("unexpected rate limit result: %v", result)
	}
	allowed, ok := toInt64(values[0])
	if !ok {
		return false, 0, fmt.Errorf("unexpected rate limit flag: %v", values[0])
	}
	wait, _ := toInt64(values[1])
	return allowed == 1, time.Duration(wait) * time.Second, nil
}

// MemoryRateLimitStore 进程内令牌桶限流，Redis 不可用时使用
type MemoryRateLimitStore struct {
	mu       sync.Mutex
	limiters map[string]*memoryLimiter
	now      func() time.Time
}

type memoryLimiter struct {
	limiter      *rate.Limiter
	blockedUntil time.Time
	lastSeen     time.Time
}

// NewMemoryRateLimitStore 创建进程内限流存储
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		limiters: make(map[string]*memoryLimiter),
		now:      time.Now,
	}
}

// Allow 令牌桶容量为 MaxRequests，每个窗口补满
func (s *MemoryRateLimitStore) Allow(_ context.Context, key string, rule RateLimitRule) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evict(now, time.Duration(rule.WindowSeconds+rule.BlockSeconds)*time.Second)

	entry, ok := s.limiters[key]
	if !ok {
		window := time.Duration(rule.WindowSeconds) * time.Second
		entry = &memoryLimiter{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(rule.MaxRequests)), rule.MaxRequests),
		}
		s.limiters[key] = entry
	}
	entry.lastSeen = now

	if now.Before(entry.blockedUntil) {
		return false, entry.blockedUntil.Sub(now), nil
	}
	if entry.limiter.AllowN(now, 1) {
		return true, 0, nil
	}
	if rule.BlockSeconds > 0 {
		entry.blockedUntil = now.Add(time.Duration(rule.BlockSeconds) * time.Second)
		return false, entry.blockedUntil.Sub(now), nil
	}
	return false, time.Duration(float64(time.Second) / float64(entry.limiter.Limit())), nil
}

// evict 清理长期未访问的 key，避免无界增长
func (s *MemoryRateLimitStore) evict(now time.Time, idle time.Duration) {
	if len(s.limiters) < 1024 {
		return
	}
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > idle && !now.Before(entry.blockedUntil) {
			delete(s.limiters, key)
		}
	}
}

// RateLimitMiddleware 频率限制中间件
func RateLimitMiddleware(store RateLimitStore, rule RateLimitRule, keyFunc RateLimitKeyFunc, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || !rule.valid() {
			c.Next()
			return
		}

		key := ""
		if keyFunc != nil {
			key = strings.TrimSpace(keyFunc(c))
		}
		if key == "" {
			key = c.ClientIP()
		}
		if rule.Prefix != "" {
			key = fmt.Sprintf("%s:%s", rule.Prefix, key)
		}

		allowed, wait, err := store.Allow(c.Request.Context(), key, rule)
		if err != nil {
			logger.FromContext(c.Request.Context()).Errorw("rate_limit_store_failed", "rule", rule.Name, "error", err)
			response.Error(c, response.CodeInternal, "rate limit unavailable")
			c.Abort()
			return
		}
		if !allowed {
			waitSeconds := int((wait + time.Second - 1) / time.Second)
			if waitSeconds < 1 {
				waitSeconds = 1
			}
			m.RateLimited(rule.Name)
			c.Header("Retry-After", fmt.Sprintf("%d", waitSeconds))
			response.Error(c, response.CodeTooManyRequests, fmt.Sprintf("too many requests, retry in %d seconds", waitSeconds))
			c.Abort()
			return
		}

		c.Next()
	}
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByUserAndParam 登录用户按 用户ID+路径参数 计数，匿名回退到 IP
func KeyByUserAndParam(param string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		subject := c.ClientIP()
		if value, ok := c.Get(userIDContextKey); ok {
			if uid, ok := value.(uint); ok && uid > 0 {
				subject = fmt.Sprintf("u%d", uid)
			}
		}
		if param == "" {
			return subject
		}
		target := strings.TrimSpace(c.Param(param))
		if target == "" {
			return subject
		}
		return fmt.Sprintf("%s|%s", target, subject)
	}
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
