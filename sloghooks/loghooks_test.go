package sloghooks

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestSelfHealRedactsKey(t *testing.T) {
	h, buf := newHooks(Options{})
	h.SelfHealEntry("entry:item:secret", "corrupt")

	out := buf.String()
	if strings.Contains(out, "secret") {
		t.Fatalf("storage key leaked into log: %q", out)
	}
	if !strings.Contains(out, "reason=corrupt") {
		t.Fatalf("missing reason in %q", out)
	}
}

func TestPutRejectedSampling(t *testing.T) {
	h, buf := newHooks(Options{PutRejectedEvery: 3})
	for i := 0; i < 9; i++ {
		h.PutRejected("item", "soft_locked")
	}
	if n := strings.Count(buf.String(), "regioncache.put_rejected"); n != 3 {
		t.Fatalf("expected 3 sampled records, got %d", n)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.SoftLockUnknown("item")
	h.EpochError("item", nil)
	h.RegionBuilt("item", "entity")
}
