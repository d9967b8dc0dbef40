package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bazaar-next/internal/config"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client
var redisPrefix string
var redisEnabled bool

// InitRedis 初始化 Redis 客户端
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		redisEnabled = false
		return nil
	}
	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	redisPrefix = strings.TrimSpace(cfg.Prefix)
	if redisPrefix == "" {
		redisPrefix = "bz"
	}

	redisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	redisEnabled = true
	return nil
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return redisEnabled && redisClient != nil
}

// Client 获取 Redis 客户端
func Client() *redis.Client {
	if !Enabled() {
		return nil
	}
	return redisClient
}

// Prefix 当前 key 前缀
func Prefix() string {
	if redisPrefix == "" {
		return "bz"
	}
	return redisPrefix
}

// Ping 连通性检查
func Ping(ctx context.Context) error {
	if !Enabled() {
		return nil
	}
	return redisClient.Ping(ctx).Err()
}

// Close 关闭客户端
func Close() error {
	if !Enabled() {
		return nil
	}
	return redisClient.Close()
}

// BuildKey 拼接带前缀的 key
func BuildKey(prefix, key string) string {
	prefix = strings.TrimSpace(prefix)
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return prefix
	}
	if prefix == "" {
		return trimmed
	}
	return fmt.Sprintf("%s:%s", prefix, trimmed)
}

// ttlOrDefault 非正数 ttl 使用一天
func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 24 * time.Hour
	}
	return ttl
}
