package access

import (
	"context"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/softlock"
)

// nonstrict never locks. Writers evict the key before and after the database
// write, which leaves a short window in which a concurrent load can cache the
// old value until the next write or expiry.
type nonstrict struct{ base }

func (s *nonstrict) Get(ctx context.Context, key cachekey.Key, _ int64) ([]byte, bool, error) {
	return s.plainGet(ctx, key)
}

func (s *nonstrict) PutFromLoad(ctx context.Context, key cachekey.Key, value []byte, _ int64, version any, minimalPut bool) (bool, error) {
	return s.loadPut(ctx, key, value, version, minimalPut)
}

func (s *nonstrict) LockItem(context.Context, cachekey.Key, any) (*softlock.Lock, error) {
	return nil, nil
}

func (s *nonstrict) UnlockItem(ctx context.Context, key cachekey.Key, _ *softlock.Lock) error {
	return s.r.Remove(ctx, key)
}

func (s *nonstrict) LockRegion(context.Context) (*softlock.Lock, error) { return nil, nil }

func (s *nonstrict) UnlockRegion(ctx context.Context, _ *softlock.Lock) error {
	return s.r.Clear(ctx)
}

func (s *nonstrict) Insert(context.Context, cachekey.Key, []byte, any) (bool, error) {
	return false, nil
}

func (s *nonstrict) AfterInsert(context.Context, cachekey.Key, []byte, any) (bool, error) {
	return false, nil
}

func (s *nonstrict) Update(ctx context.Context, key cachekey.Key, _ []byte, _, _ any) (bool, error) {
	return false, s.r.Remove(ctx, key)
}

func (s *nonstrict) AfterUpdate(ctx context.Context, key cachekey.Key, _ []byte, _, _ any, _ *softlock.Lock) (bool, error) {
	return false, s.r.Remove(ctx, key)
}
