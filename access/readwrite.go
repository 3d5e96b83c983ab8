package access

import (
	"context"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/log"
	"github.com/unkn0wn-root/regioncache/softlock"
)

// readWrite runs the soft lock protocol. Every decision about a key is taken
// inside the lock table's critical section for that key, so a load can never
// slip its put between a writer's lock and its unlock. Locks are also stored in
// the region as marks, for processes sharing the region through a remote
// provider. Between processes mark updates are read-modify-write, not atomic;
// the lock timeout bounds a lost update.
type readWrite struct {
	base
	locks *softlock.Table
}

func lockKey(key cachekey.Key) (string, error) { return cachekey.Encode(key) }

func (s *readWrite) do(key cachekey.Key, fn func(g *softlock.Guard) error) error {
	lk, err := lockKey(key)
	if err != nil {
		return err
	}
	return s.locks.Do(lk, fn)
}

// putMark stores m in place of the key's value.
func (s *readWrite) putMark(ctx context.Context, key cachekey.Key, m *mark, ts int64) error {
	raw, err := encodeItem(item{Timestamp: ts, Lock: m})
	if err != nil {
		return err
	}
	return s.r.Put(ctx, key, raw)
}

// currentMark returns the mark stored under key, or a fresh one.
func (s *readWrite) currentMark(ctx context.Context, key cachekey.Key) (*mark, error) {
	it, ok, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok && it.Lock != nil {
		return it.Lock, nil
	}
	return &mark{}, nil
}

// releaseMark drops one holder from the stored mark as of ts and returns it.
func (s *readWrite) releaseMark(ctx context.Context, key cachekey.Key, ts int64) (*mark, error) {
	m, err := s.currentMark(ctx, key)
	if err != nil {
		return nil, err
	}
	if m.Count > 0 {
		m.Count--
	}
	if m.Count == 0 {
		m.Until = 0
	}
	if ts > m.Released {
		m.Released = ts
	}
	return m, s.putMark(ctx, key, m, ts)
}

// Get misses while a writer holds the key and for items written at or after
// the start of the reading transaction.
func (s *readWrite) Get(ctx context.Context, key cachekey.Key, txTs int64) ([]byte, bool, error) {
	var (
		out []byte
		hit bool
	)
	err := s.do(key, func(g *softlock.Guard) error {
		if g.Held(txTs) {
			return nil
		}
		it, ok, err := s.read(ctx, key)
		if err != nil || !ok {
			return err
		}
		if it.readable(txTs) {
			out, hit = it.Value, true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if hit {
		s.hooks.Hit(s.r.Name())
	} else {
		s.hooks.Miss(s.r.Name())
	}
	return out, hit, nil
}

// PutFromLoad is refused when a write to the key was in flight or completed
// since txTs, in this process or in the region's mark, since the loaded value
// may predate it.
func (s *readWrite) PutFromLoad(ctx context.Context, key cachekey.Key, value []byte, txTs int64, version any, minimalPut bool) (bool, error) {
	var put bool
	err := s.do(key, func(g *softlock.Guard) error {
		if g.IsStale(txTs) {
			s.reject("soft_locked")
			return nil
		}
		cached, present, err := s.read(ctx, key)
		if err != nil {
			return err
		}
		switch {
		case present && cached.Lock != nil:
			if cached.Lock.staleFor(txTs) {
				s.reject("soft_locked")
				return nil
			}
		case present && minimalPut:
			s.reject("minimal_put")
			return nil
		case present && !s.supersedes(cached, version):
			if version == nil {
				s.reject("present")
			} else {
				s.reject("version")
			}
			return nil
		}
		if err := s.write(ctx, key, item{Value: value, Version: version, Timestamp: s.next()}); err != nil {
			return err
		}
		put = true
		return nil
	})
	return put, err
}

// LockItem records the writer and replaces the cached item with a lock mark.
func (s *readWrite) LockItem(ctx context.Context, key cachekey.Key, _ any) (*softlock.Lock, error) {
	var l *softlock.Lock
	err := s.do(key, func(g *softlock.Guard) error {
		ts := s.next()
		l = g.Acquire(ts)
		m, err := s.currentMark(ctx, key)
		if err == nil {
			if !m.live(ts) {
				m.Count = 0
			}
			m.Count++
			if to := s.r.Timeout(); to > 0 && ts+to > m.Until {
				m.Until = ts + to
			} else if to <= 0 {
				m.Until = 0
			}
			err = s.putMark(ctx, key, m, ts)
		}
		if err != nil {
			g.Release(l, ts)
			l = nil
			return err
		}
		return nil
	})
	return l, err
}

// UnlockItem releases lock. Releasing twice is a no-op. A lock the table does
// not know (expired, or lost to a region clear) is not an error either; the key
// is invalidated as of now, so loads that overlapped the write cannot populate it.
func (s *readWrite) UnlockItem(ctx context.Context, key cachekey.Key, lock *softlock.Lock) error {
	return s.do(key, func(g *softlock.Guard) error {
		ts := s.next()
		if released, _ := g.Release(lock, ts); released {
			_, err := s.releaseMark(ctx, key, ts)
			return err
		}
		if recent, _ := g.Released(lock); recent {
			s.log.Debug("soft lock released twice", log.Fields{"region": s.r.Name(), "lock": lock.ID})
			return nil
		}
		return s.lockLost(ctx, g, key, ts)
	})
}

func (s *readWrite) lockLost(ctx context.Context, g *softlock.Guard, key cachekey.Key, ts int64) error {
	s.hooks.SoftLockUnknown(s.r.Name())
	s.log.Debug("soft lock unknown on release", log.Fields{"region": s.r.Name(), "key": key.String()})
	g.Invalidate(ts)
	_, err := s.releaseMark(ctx, key, ts)
	return err
}

// LockRegion locks every key and clears the region, for bulk updates that
// bypass per-entity writes. The region lock is held in this process only; the
// clear on unlock drops what other processes cached meanwhile.
func (s *readWrite) LockRegion(ctx context.Context) (*softlock.Lock, error) {
	ts := s.next()
	l := s.locks.AcquireRegion(ts)
	if err := s.r.Clear(ctx); err != nil {
		s.locks.ReleaseRegion(l, ts)
		return nil, err
	}
	return l, nil
}

func (s *readWrite) UnlockRegion(ctx context.Context, lock *softlock.Lock) error {
	if !s.locks.ReleaseRegion(lock, s.next()) {
		s.hooks.SoftLockUnknown(s.r.Name())
	}
	return s.r.Clear(ctx)
}

// Remove evicts the cached value. Lock marks stay, so in-flight writers keep
// blocking loads.
func (s *readWrite) Remove(ctx context.Context, key cachekey.Key) error {
	return s.do(key, func(*softlock.Guard) error {
		it, ok, err := s.read(ctx, key)
		if err != nil || !ok || it.Lock != nil {
			return err
		}
		return s.r.Remove(ctx, key)
	})
}

func (s *readWrite) Insert(context.Context, cachekey.Key, []byte, any) (bool, error) {
	return false, nil
}

// AfterInsert caches a committed insert unless the key is locked or already present.
func (s *readWrite) AfterInsert(ctx context.Context, key cachekey.Key, value []byte, version any) (bool, error) {
	var put bool
	err := s.do(key, func(g *softlock.Guard) error {
		ts := s.next()
		if g.Held(ts) {
			s.reject("concurrent_lock")
			return nil
		}
		cached, present, err := s.read(ctx, key)
		if err != nil {
			return err
		}
		switch {
		case present && cached.Lock != nil && cached.Lock.live(ts):
			s.reject("concurrent_lock")
			return nil
		case present && cached.Lock == nil:
			s.reject("present")
			return nil
		}
		if err := s.write(ctx, key, item{Value: value, Version: version, Timestamp: ts}); err != nil {
			return err
		}
		put = true
		return nil
	})
	return put, err
}

func (s *readWrite) Update(context.Context, cachekey.Key, []byte, any, any) (bool, error) {
	return false, nil
}

// AfterUpdate releases lock and caches the committed value if no other writer,
// here or in another process, still holds the key. If UnlockItem already
// released lock, the value is cached only when that was the key's latest release.
func (s *readWrite) AfterUpdate(ctx context.Context, key cachekey.Key, value []byte, currentVersion, _ any, lock *softlock.Lock) (bool, error) {
	var put bool
	err := s.do(key, func(g *softlock.Guard) error {
		ts := s.next()
		released, remaining := g.Release(lock, ts)
		var m *mark
		switch {
		case released:
			var err error
			if m, err = s.releaseMark(ctx, key, ts); err != nil {
				return err
			}
			if remaining > 0 {
				s.reject("concurrent_lock")
				return nil
			}
		default:
			recent, latest := g.Released(lock)
			if !recent {
				return s.lockLost(ctx, g, key, ts)
			}
			if !latest || g.Held(ts) {
				s.reject("concurrent_lock")
				return nil
			}
			var err error
			if m, err = s.currentMark(ctx, key); err != nil {
				return err
			}
		}
		if m.live(ts) {
			s.reject("concurrent_lock")
			return nil
		}
		if err := s.write(ctx, key, item{Value: value, Version: currentVersion, Timestamp: ts}); err != nil {
			return err
		}
		put = true
		return nil
	})
	return put, err
}
