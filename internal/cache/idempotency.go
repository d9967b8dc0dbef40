package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyGuard 回调去重：首次 Acquire 返回 true，处理失败后 Release 允许重放
type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisIdempotencyGuard 基于 SETNX 的去重实现
type RedisIdempotencyGuard struct {
	client *redis.Client
	prefix string
}

// NewRedisIdempotencyGuard 创建 Redis 去重器
func NewRedisIdempotencyGuard(client *redis.Client, prefix string) (*RedisIdempotencyGuard, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisIdempotencyGuard{client: client, prefix: BuildKey(prefix, "idem")}, nil
}

// Acquire 占位，已存在返回 false
func (g *RedisIdempotencyGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, BuildKey(g.prefix, key), time.Now().UTC().Unix(), ttlOrDefault(ttl)).Result()
}

// Release 释放占位
func (g *RedisIdempotencyGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, BuildKey(g.prefix, key)).Err()
}

// MemoryIdempotencyGuard 进程内去重实现，用于未启用 Redis 的单机部署与测试
type MemoryIdempotencyGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryIdempotencyGuard 创建进程内去重器
func NewMemoryIdempotencyGuard() *MemoryIdempotencyGuard {
	return &MemoryIdempotencyGuard{entries: make(map[string]time.Time), now: time.Now}
}

// Acquire 占位，未过期的 key 返回 false
func (g *MemoryIdempotencyGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if expiresAt, ok := g.entries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	g.entries[key] = now.Add(ttlOrDefault(ttl))
	return true, nil
}

// Release 释放占位
func (g *MemoryIdempotencyGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}
