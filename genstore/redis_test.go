package genstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisEpochsSharedAcrossStores(t *testing.T) {
	ctx := context.Background()
	_, rdb := newMiniRedis(t)

	a, err := NewRedisGenStore(RedisConfig{Client: rdb, Namespace: "app"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewRedisGenStore(RedisConfig{Client: rdb, Namespace: "app"})

	if g, err := a.Snapshot(ctx, "item"); err != nil || g != 0 {
		t.Fatalf("missing epoch: g=%d err=%v", g, err)
	}
	if g, err := a.Bump(ctx, "item"); err != nil || g != 1 {
		t.Fatalf("Bump: g=%d err=%v", g, err)
	}
	if g, err := b.Snapshot(ctx, "item"); err != nil || g != 1 {
		t.Fatalf("second store should observe bump: g=%d err=%v", g, err)
	}
}

func TestRedisBumpWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)

	s, _ := NewRedisGenStore(RedisConfig{Client: rdb, Namespace: "app", TTL: time.Minute})
	if _, err := s.Bump(ctx, "item"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("epoch:app:item"); ttl != time.Minute {
		t.Fatalf("ttl: got %v want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if g, _ := s.Snapshot(ctx, "item"); g != 0 {
		t.Fatalf("expired epoch should read as 0, got %d", g)
	}
}

func TestRedisCorruptEpoch(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	s, _ := NewRedisGenStore(RedisConfig{Client: rdb, Namespace: "app"})

	if err := mr.Set("epoch:app:item", "not-a-number"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Snapshot(ctx, "item"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNilClient(t *testing.T) {
	if _, err := NewRedisGenStore(RedisConfig{}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
