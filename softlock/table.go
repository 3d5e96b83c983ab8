// Package softlock tracks in-flight writes per cache key.
//
// A Table is shared by every session writing through one region. Operations on
// the same key are linearizable (each key has its own mutex); different keys only
// share a stripe mutex for the few instructions needed to find their entry.
// A Table is local to one process; access/readWrite mirrors key locks into the
// region so processes sharing it see each other's writers.
package softlock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultStripes   = 64
	defaultRetention = 10 * time.Minute
)

// Lock is the token handed to a writer by Acquire and given back to Release.
type Lock struct {
	Key       string
	ID        uint64
	Timestamp int64
}

// Options tune a Table. The zero value is usable.
type Options struct {
	Stripes         int           // rounded up to a power of two; 0 => 64
	Timeout         int64         // lock lifetime in timestamp ticks; 0 => locks never expire
	CleanupInterval time.Duration // 0 => no background pruning
	Retention       time.Duration // idle entries older than this are pruned; 0 => 10m
	Now             func() time.Time
}

type entry struct {
	mu sync.Mutex

	refs int // guarded by the stripe mutex

	holders    map[uint64]int64 // lock id -> acquisition timestamp
	lockTs     int64            // highest acquisition timestamp seen
	releasedAt int64            // timestamp at which holders last dropped to zero
	recent     [4]uint64        // ids of the latest releases, newest at recent[0]
	touched    time.Time
}

func (e *entry) idle() bool { return len(e.holders) == 0 && e.releasedAt == 0 }

type stripe struct {
	mu sync.Mutex
	m  map[string]*entry
}

type regionState struct {
	holders    map[uint64]int64
	releasedAt int64
}

// Table is the soft lock table of one region.
type Table struct {
	stripes []stripe
	mask    uint64
	seq     atomic.Uint64
	timeout int64
	now     func() time.Time

	retention time.Duration

	// regionMu is held shared by every per-key critical section and exclusively
	// by region-wide lock changes.
	regionMu sync.RWMutex
	region   regionState

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func New(opts Options) *Table {
	n := opts.Stripes
	if n <= 0 {
		n = defaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	t := &Table{
		stripes:   make([]stripe, size),
		mask:      uint64(size - 1),
		timeout:   opts.Timeout,
		now:       opts.Now,
		retention: opts.Retention,
		region:    regionState{holders: make(map[uint64]int64)},
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.retention <= 0 {
		t.retention = defaultRetention
	}
	for i := range t.stripes {
		t.stripes[i].m = make(map[string]*entry)
	}
	if opts.CleanupInterval > 0 {
		t.ticker = time.NewTicker(opts.CleanupInterval)
		t.stopCh = make(chan struct{})
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for {
				select {
				case <-t.ticker.C:
					t.Cleanup()
				case <-t.stopCh:
					return
				}
			}
		}()
	}
	return t
}

// Guard is the per-key critical section handed to Do's callback.
// It must not escape the callback.
type Guard struct {
	t   *Table
	key string
	e   *entry
}

// Do runs fn while holding key's mutex, so everything fn decides and writes
// is ordered against every other operation on the same key.
func (t *Table) Do(key string, fn func(g *Guard) error) error {
	t.regionMu.RLock()
	defer t.regionMu.RUnlock()

	s := &t.stripes[xxhash.Sum64String(key)&t.mask]
	s.mu.Lock()
	e, ok := s.m[key]
	if !ok {
		e = &entry{}
		s.m[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		s.mu.Lock()
		e.refs--
		// refs == 0 means nobody holds e.mu, so e is safe to inspect here.
		if e.refs == 0 && e.idle() {
			delete(s.m, key)
		}
		s.mu.Unlock()
	}()

	return fn(&Guard{t: t, key: key, e: e})
}

// Acquire records a new writer for the key.
func (g *Guard) Acquire(ts int64) *Lock {
	g.expire(ts)
	e := g.e
	if e.holders == nil {
		e.holders = make(map[uint64]int64, 1)
	}
	l := &Lock{Key: g.key, ID: g.t.seq.Add(1), Timestamp: ts}
	e.holders[l.ID] = ts
	if ts > e.lockTs {
		e.lockTs = ts
	}
	e.touched = g.t.now()
	return l
}

// Release drops lock. released is false when the table does not know the lock
// (never issued for this key, released already, or expired). remaining is the
// number of writers still holding the key afterwards.
func (g *Guard) Release(l *Lock, ts int64) (released bool, remaining int) {
	e := g.e
	if l == nil || l.Key != g.key {
		return false, len(e.holders)
	}
	if _, ok := e.holders[l.ID]; !ok {
		return false, len(e.holders)
	}
	delete(e.holders, l.ID)
	copy(e.recent[1:], e.recent[:len(e.recent)-1])
	e.recent[0] = l.ID
	e.touched = g.t.now()
	if len(e.holders) == 0 && ts > e.releasedAt {
		e.releasedAt = ts
	}
	return true, len(e.holders)
}

// Released reports whether l was released recently (a repeated release), and
// whether it was the latest release of the key.
func (g *Guard) Released(l *Lock) (recent, latest bool) {
	if l == nil || l.Key != g.key || l.ID == 0 {
		return false, false
	}
	for i, id := range g.e.recent {
		if id == l.ID {
			return true, i == 0
		}
	}
	return false, false
}

// Held reports whether a writer holds the key (or the whole region) at now.
// Locks past their timeout do not count.
func (g *Guard) Held(now int64) bool {
	g.expire(now)
	return len(g.e.holders) > 0 || g.t.regionHeldAt(now)
}

// IsStale reports whether data read by a transaction that started at readTs may
// be older than a write on the key: a writer holds the key or the region, or the
// last write completed at or after readTs.
func (g *Guard) IsStale(readTs int64) bool {
	g.expire(readTs)
	e := g.e
	if len(e.holders) > 0 || (e.releasedAt != 0 && e.releasedAt >= readTs) {
		return true
	}
	if g.t.regionHeldAt(readTs) {
		return true
	}
	end := g.t.regionReleasedAt()
	return end != 0 && end >= readTs
}

// Invalidate marks the key as written at ts without a holder, so reads that
// started at or before ts may not populate it. Used when a writer's lock was lost.
func (g *Guard) Invalidate(ts int64) {
	e := g.e
	if ts > e.releasedAt {
		e.releasedAt = ts
	}
	e.touched = g.t.now()
}

// LockTimestamp is the highest acquisition timestamp recorded for the key.
func (g *Guard) LockTimestamp() int64 { return g.e.lockTs }

// expire drops holders whose lifetime ended before now, as if they had been
// released at expiry.
func (g *Guard) expire(now int64) {
	if g.t.timeout <= 0 {
		return
	}
	e := g.e
	for id, at := range e.holders {
		if end := at + g.t.timeout; end <= now {
			delete(e.holders, id)
			if end > e.releasedAt {
				e.releasedAt = end
			}
		}
	}
}

// regionHeldAt reports whether a region lock is live at now. Callers hold
// regionMu, shared or exclusive.
func (t *Table) regionHeldAt(now int64) bool {
	for _, at := range t.region.holders {
		if t.timeout <= 0 || at+t.timeout > now {
			return true
		}
	}
	return false
}

// regionReleasedAt is the tick of the last region release, counting expired
// holders as released at expiry. 0 if the region was never locked.
func (t *Table) regionReleasedAt() int64 {
	end := t.region.releasedAt
	if t.timeout > 0 {
		for _, at := range t.region.holders {
			if e := at + t.timeout; e > end {
				end = e
			}
		}
	}
	return end
}

// expireRegion drops region holders whose lifetime ended at or before now.
// Callers hold regionMu exclusively.
func (t *Table) expireRegion(now int64) {
	if t.timeout <= 0 {
		return
	}
	for id, at := range t.region.holders {
		if end := at + t.timeout; end <= now {
			delete(t.region.holders, id)
			if end > t.region.releasedAt {
				t.region.releasedAt = end
			}
		}
	}
}

// Acquire locks key for a writer starting at ts.
func (t *Table) Acquire(key string, ts int64) *Lock {
	var l *Lock
	_ = t.Do(key, func(g *Guard) error {
		l = g.Acquire(ts)
		return nil
	})
	return l
}

// Release unlocks l at ts. See Guard.Release.
func (t *Table) Release(key string, l *Lock, ts int64) (released bool, remaining int) {
	_ = t.Do(key, func(g *Guard) error {
		released, remaining = g.Release(l, ts)
		return nil
	})
	return released, remaining
}

// IsStale reports whether a read started at readTs may not populate key.
func (t *Table) IsStale(key string, readTs int64) bool {
	var stale bool
	_ = t.Do(key, func(g *Guard) error {
		stale = g.IsStale(readTs)
		return nil
	})
	return stale
}

// Held reports whether key is locked by a writer at now.
func (t *Table) Held(key string, now int64) bool {
	var held bool
	_ = t.Do(key, func(g *Guard) error {
		held = g.Held(now)
		return nil
	})
	return held
}

// AcquireRegion locks every key of the region, for bulk operations.
// It waits for in-flight per-key critical sections to finish.
func (t *Table) AcquireRegion(ts int64) *Lock {
	t.regionMu.Lock()
	defer t.regionMu.Unlock()
	t.expireRegion(ts)
	l := &Lock{ID: t.seq.Add(1), Timestamp: ts}
	t.region.holders[l.ID] = ts
	return l
}

// ReleaseRegion releases a lock returned by AcquireRegion.
func (t *Table) ReleaseRegion(l *Lock, ts int64) bool {
	t.regionMu.Lock()
	defer t.regionMu.Unlock()
	if l == nil || l.Key != "" {
		return false
	}
	t.expireRegion(ts)
	if _, ok := t.region.holders[l.ID]; !ok {
		return false
	}
	delete(t.region.holders, l.ID)
	if len(t.region.holders) == 0 && ts > t.region.releasedAt {
		t.region.releasedAt = ts
	}
	return true
}

// Len returns the number of keys with tracked state.
func (t *Table) Len() int {
	n := 0
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

// Cleanup prunes entries that have no holders and were last touched before the
// retention window. Transactions older than the retention may then populate keys
// written during their lifetime.
func (t *Table) Cleanup() {
	cutoff := t.now().Add(-t.retention)
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		for k, e := range s.m {
			if e.refs == 0 && len(e.holders) == 0 && e.touched.Before(cutoff) {
				delete(s.m, k)
			}
		}
		s.mu.Unlock()
	}
}

// Close stops the cleanup loop. Safe to call more than once.
func (t *Table) Close() {
	t.once.Do(func() {
		if t.stopCh != nil {
			close(t.stopCh)
			t.ticker.Stop()
			t.wg.Wait()
		}
	})
}
