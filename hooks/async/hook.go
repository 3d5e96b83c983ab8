// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	})
//
//	h := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer h.Close()
//
//	factory := region.NewFactory(region.FactoryOptions{
//	    Provider: provider,
//	    Hooks:    h, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/regioncache/hooks"
)

// Hooks forwards events to inner on a bounded queue drained by worker goroutines.
// Events are dropped when the queue is full.
type Hooks struct {
	inner hooks.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ hooks.Hooks = (*Hooks)(nil)

func New(inner hooks.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: hooks.OrNop(inner), q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and stops the workers. Events sent after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHealEntry(k, r string)      { h.try(func() { h.inner.SelfHealEntry(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)   { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) EpochError(r string, err error) { h.try(func() { h.inner.EpochError(r, err) }) }
func (h *Hooks) RegionBuilt(r, kind string)     { h.try(func() { h.inner.RegionBuilt(r, kind) }) }
func (h *Hooks) Hit(r string)                   { h.try(func() { h.inner.Hit(r) }) }
func (h *Hooks) Miss(r string)                  { h.try(func() { h.inner.Miss(r) }) }
func (h *Hooks) Put(r string)                   { h.try(func() { h.inner.Put(r) }) }
func (h *Hooks) PutRejected(r, reason string)   { h.try(func() { h.inner.PutRejected(r, reason) }) }
func (h *Hooks) SoftLockUnknown(r string)       { h.try(func() { h.inner.SoftLockUnknown(r) }) }
