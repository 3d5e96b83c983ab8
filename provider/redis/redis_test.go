package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestProvider(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := New(Config{Client: client, CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, mr
}

func TestRedis_NilClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

func TestRedis_SetGetDel(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)

	if _, ok, err := p.Get(ctx, "entry:r:k"); err != nil || ok {
		t.Fatalf("want miss, got ok=%v err=%v", ok, err)
	}
	ok, err := p.Set(ctx, "entry:r:k", []byte("v1"), 1, 0)
	if err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	b, ok, err := p.Get(ctx, "entry:r:k")
	if err != nil || !ok || string(b) != "v1" {
		t.Fatalf("Get: %q ok=%v err=%v", b, ok, err)
	}
	if err := p.Del(ctx, "entry:r:k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "entry:r:k"); ok {
		t.Fatalf("want miss after Del")
	}
}

func TestRedis_TTL(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestProvider(t)

	if _, err := p.Set(ctx, "k", []byte("v"), 1, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Fatalf("ttl=%v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("want expiry")
	}

	if _, err := p.Set(ctx, "forever", []byte("v"), 1, -1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("forever"); ttl != 0 {
		t.Fatalf("want no expiry, ttl=%v", ttl)
	}
}
