package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/regioncache/hooks"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery    uint64
	PutRejectedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

// Hooks logs the rare events. Hit/Miss/Put are counters, not log lines,
// and are ignored here (see promhooks).
type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr    atomic.Uint64
	putRejectedCtr atomic.Uint64
}

var _ hooks.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHealEntry(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("regioncache.self_heal_entry",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("regioncache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) EpochError(region string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("regioncache.epoch_error",
		"region", region,
		"err", err)
}

func (h *Hooks) RegionBuilt(region, kind string) {
	if h.l == nil {
		return
	}
	h.l.Info("regioncache.region_built",
		"region", region,
		"kind", kind)
}

func (h *Hooks) Hit(string)  {}
func (h *Hooks) Miss(string) {}
func (h *Hooks) Put(string)  {}

func (h *Hooks) PutRejected(region, reason string) {
	if h.l == nil || !sample(h.opts.PutRejectedEvery, &h.putRejectedCtr) {
		return
	}
	h.l.Debug("regioncache.put_rejected",
		"region", region,
		"reason", reason)
}

func (h *Hooks) SoftLockUnknown(region string) {
	if h.l == nil {
		return
	}
	h.l.Warn("regioncache.soft_lock_unknown",
		"region", region)
}
