package ristretto

import (
	"context"
	"testing"
)

func TestRistretto_SetGetDel(t *testing.T) {
	ctx := context.Background()
	if _, err := New(Config{}); err == nil {
		t.Fatalf("zero config must be rejected")
	}
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	if ok, err := p.Set(ctx, "k", []byte("v"), 1, 0); !ok || err != nil {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	// Set waits for the buffer, so the value is visible right away
	b, ok, err := p.Get(ctx, "k")
	if !ok || err != nil || string(b) != "v" {
		t.Fatalf("Get: %q ok=%v err=%v", b, ok, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("deleted key still present")
	}
}
