package access

import (
	"context"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/softlock"
)

// transactional writes straight through; the region is expected to enlist in
// the surrounding transaction and provide its own isolation.
type transactional struct{ base }

func (s *transactional) Get(ctx context.Context, key cachekey.Key, _ int64) ([]byte, bool, error) {
	return s.plainGet(ctx, key)
}

func (s *transactional) PutFromLoad(ctx context.Context, key cachekey.Key, value []byte, _ int64, version any, minimalPut bool) (bool, error) {
	return s.loadPut(ctx, key, value, version, minimalPut)
}

func (s *transactional) LockItem(context.Context, cachekey.Key, any) (*softlock.Lock, error) {
	return nil, nil
}

func (s *transactional) UnlockItem(context.Context, cachekey.Key, *softlock.Lock) error { return nil }

func (s *transactional) LockRegion(context.Context) (*softlock.Lock, error) { return nil, nil }

func (s *transactional) UnlockRegion(ctx context.Context, _ *softlock.Lock) error {
	return s.r.Clear(ctx)
}

func (s *transactional) Insert(ctx context.Context, key cachekey.Key, value []byte, version any) (bool, error) {
	return s.writeThrough(ctx, key, value, version)
}

func (s *transactional) AfterInsert(context.Context, cachekey.Key, []byte, any) (bool, error) {
	return false, nil
}

func (s *transactional) Update(ctx context.Context, key cachekey.Key, value []byte, currentVersion, _ any) (bool, error) {
	return s.writeThrough(ctx, key, value, currentVersion)
}

func (s *transactional) AfterUpdate(context.Context, cachekey.Key, []byte, any, any, *softlock.Lock) (bool, error) {
	return false, nil
}

func (s *transactional) writeThrough(ctx context.Context, key cachekey.Key, value []byte, version any) (bool, error) {
	if err := s.write(ctx, key, item{Value: value, Version: version, Timestamp: s.next()}); err != nil {
		return false, err
	}
	return true, nil
}
