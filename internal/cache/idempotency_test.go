package cache

import (
	"context"
	"testing"
	"time"

	"github.com/bazaar-next/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryIdempotencyGuard(t *testing.T) {
	guard := NewMemoryIdempotencyGuard()
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return current }
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "mbank:tx-1:completed", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed: ok=%v err=%v", ok, err)
	}
	ok, _ = guard.Acquire(ctx, "mbank:tx-1:completed", time.Minute)
	if ok {
		t.Fatalf("duplicate acquire should be rejected")
	}
	if err := guard.Release(ctx, "mbank:tx-1:completed"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	ok, _ = guard.Acquire(ctx, "mbank:tx-1:completed", time.Minute)
	if !ok {
		t.Fatalf("acquire after release should succeed")
	}

	current = current.Add(2 * time.Minute)
	ok, _ = guard.Acquire(ctx, "mbank:tx-1:completed", time.Minute)
	if !ok {
		t.Fatalf("acquire after expiry should succeed")
	}
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey("bz", " idem "); got != "bz:idem" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := BuildKey("", "k"); got != "k" {
		t.Fatalf("unexpected key without prefix: %s", got)
	}
	if got := BuildKey("bz", ""); got != "bz" {
		t.Fatalf("unexpected key for empty suffix: %s", got)
	}
}

func TestInitRedisDisabled(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init disabled redis failed: %v", err)
	}
	if Enabled() || Client() != nil {
		t.Fatalf("disabled redis must not expose a client")
	}
	if err := Ping(context.Background()); err != nil {
		t.Fatalf("ping on disabled redis should be a no-op: %v", err)
	}
	if _, err := NewRedisIdempotencyGuard(nil, "bz"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisIdempotencyGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	guard, err := NewRedisIdempotencyGuard(client, "bz")
	if err != nil {
		t.Fatalf("new guard failed: %v", err)
	}
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "elsom:tx-9:completed", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed: ok=%v err=%v", ok, err)
	}
	if !mr.Exists("bz:idem:elsom:tx-9:completed") {
		t.Fatalf("guard key should be prefixed, keys=%v", mr.Keys())
	}
	ok, err = guard.Acquire(ctx, "elsom:tx-9:completed", time.Minute)
	if err != nil || ok {
		t.Fatalf("duplicate acquire should be rejected: ok=%v err=%v", ok, err)
	}

	mr.FastForward(2 * time.Minute)
	ok, err = guard.Acquire(ctx, "elsom:tx-9:completed", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after ttl should succeed: ok=%v err=%v", ok, err)
	}
	if err := guard.Release(ctx, "elsom:tx-9:completed"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	ok, _ = guard.Acquire(ctx, "elsom:tx-9:completed", time.Minute)
	if !ok {
		t.Fatalf("acquire after release should succeed")
	}
}
