package access

import (
	"context"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/softlock"
)

// readOnly caches immutable data. Writes through it are programming errors;
// deletes still evict.
type readOnly struct{ base }

func (s *readOnly) Get(ctx context.Context, key cachekey.Key, _ int64) ([]byte, bool, error) {
	return s.plainGet(ctx, key)
}

// PutFromLoad never replaces a present item: immutable data cannot be fresher.
func (s *readOnly) PutFromLoad(ctx context.Context, key cachekey.Key, value []byte, _ int64, version any, _ bool) (bool, error) {
	return s.putIfAbsent(ctx, key, value, version)
}

func (s *readOnly) putIfAbsent(ctx context.Context, key cachekey.Key, value []byte, version any) (bool, error) {
	_, present, err := s.read(ctx, key)
	if err != nil {
		return false, err
	}
	if present {
		s.reject("present")
		return false, nil
	}
	if err := s.write(ctx, key, item{Value: value, Version: version, Timestamp: s.next()}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *readOnly) LockItem(context.Context, cachekey.Key, any) (*softlock.Lock, error) {
	return nil, s.unsupported("LockItem")
}

// UnlockItem is reached on the delete path; the entity is gone, so evict.
func (s *readOnly) UnlockItem(ctx context.Context, key cachekey.Key, _ *softlock.Lock) error {
	return s.r.Remove(ctx, key)
}

func (s *readOnly) LockRegion(context.Context) (*softlock.Lock, error) {
	return nil, s.unsupported("LockRegion")
}

func (s *readOnly) UnlockRegion(ctx context.Context, _ *softlock.Lock) error {
	return s.r.Clear(ctx)
}

func (s *readOnly) Insert(context.Context, cachekey.Key, []byte, any) (bool, error) {
	return false, nil
}

func (s *readOnly) AfterInsert(ctx context.Context, key cachekey.Key, value []byte, version any) (bool, error) {
	return s.putIfAbsent(ctx, key, value, version)
}

func (s *readOnly) Update(context.Context, cachekey.Key, []byte, any, any) (bool, error) {
	return false, s.unsupported("Update")
}

func (s *readOnly) AfterUpdate(context.Context, cachekey.Key, []byte, any, any, *softlock.Lock) (bool, error) {
	return false, s.unsupported("AfterUpdate")
}
