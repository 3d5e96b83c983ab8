package region

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/regioncache/cachekey"
	gen "github.com/unkn0wn-root/regioncache/genstore"
	"github.com/unkn0wn-root/regioncache/hooks"
	"github.com/unkn0wn-root/regioncache/internal/wire"
	"github.com/unkn0wn-root/regioncache/log"
	pr "github.com/unkn0wn-root/regioncache/provider"
)

// providerRegion stores entries under "entry:<region>:<key>", framed with the
// region epoch current at write time. Clear bumps the epoch; entries carrying an
// older epoch are deleted when next read.
type providerRegion struct {
	name         string
	kind         Kind
	desc         Description
	provider     pr.Provider
	ownsProvider bool
	gen          gen.GenStore
	ttl          time.Duration
	timeout      int64
	cost         SetCostFunc
	log          log.Logger
	hooks        hooks.Hooks
	destroyed    atomic.Bool
}

func (r *providerRegion) Name() string             { return r.name }
func (r *providerRegion) Kind() Kind               { return r.kind }
func (r *providerRegion) Description() Description { return r.desc }
func (r *providerRegion) Timeout() int64           { return r.timeout }

func (r *providerRegion) storageKey(key cachekey.Key) (string, error) {
	enc, err := cachekey.Encode(key)
	if err != nil {
		return "", err
	}
	return "entry:" + r.name + ":" + enc, nil
}

func (r *providerRegion) Contains(ctx context.Context, key cachekey.Key) (bool, error) {
	_, ok, err := r.Get(ctx, key)
	return ok, err
}

func (r *providerRegion) Get(ctx context.Context, key cachekey.Key) ([]byte, bool, error) {
	if r.destroyed.Load() {
		return nil, false, ErrDestroyed
	}
	k, err := r.storageKey(key)
	if err != nil {
		return nil, false, err
	}
	raw, ok, err := r.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	epoch, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		_ = r.provider.Del(ctx, k) // self-heal corrupt
		r.hooks.SelfHealEntry(k, "corrupt")
		return nil, false, nil
	}
	cur, err := r.gen.Snapshot(ctx, r.name)
	if err != nil {
		// unknown epoch: serve nothing rather than a possibly cleared entry
		r.hooks.EpochError(r.name, err)
		r.log.Warn("epoch snapshot failed, treating read as miss", log.Fields{"region": r.name, "err": err})
		return nil, false, nil
	}
	if epoch != cur {
		_ = r.provider.Del(ctx, k)
		r.hooks.SelfHealEntry(k, "epoch_mismatch")
		return nil, false, nil
	}
	return payload, true, nil
}

func (r *providerRegion) Put(ctx context.Context, key cachekey.Key, value []byte) error {
	if r.destroyed.Load() {
		return ErrDestroyed
	}
	k, err := r.storageKey(key)
	if err != nil {
		return err
	}
	epoch, err := r.gen.Snapshot(ctx, r.name)
	if err != nil {
		r.hooks.EpochError(r.name, err)
		return fmt.Errorf("region %q: epoch snapshot: %w", r.name, err)
	}
	b, err := wire.EncodeEntry(epoch, value)
	if err != nil {
		return err
	}
	ok, err := r.provider.Set(ctx, k, b, r.cost(k, b), r.ttl)
	if err != nil {
		return err
	}
	if !ok {
		r.hooks.ProviderSetRejected(k)
		r.log.Debug("put rejected by provider (pressure)", log.Fields{"region": r.name, "key": k})
	}
	return nil
}

func (r *providerRegion) Remove(ctx context.Context, key cachekey.Key) error {
	if r.destroyed.Load() {
		return ErrDestroyed
	}
	k, err := r.storageKey(key)
	if err != nil {
		return err
	}
	return r.provider.Del(ctx, k)
}

func (r *providerRegion) Clear(ctx context.Context) error {
	if r.destroyed.Load() {
		return ErrDestroyed
	}
	epoch, err := r.gen.Bump(ctx, r.name)
	if err != nil {
		r.hooks.EpochError(r.name, err)
		return fmt.Errorf("region %q: clear: %w", r.name, err)
	}
	r.log.Debug("cleared region (bumped epoch)", log.Fields{"region": r.name, "epoch": epoch})
	return nil
}

// Destroy marks the region unusable. The entries are left to expire; a region
// built again under the same name still sees them unless it is cleared.
func (r *providerRegion) Destroy(ctx context.Context) error {
	if !r.destroyed.CompareAndSwap(false, true) {
		return ErrDestroyed
	}
	if r.ownsProvider {
		if err := r.provider.Close(ctx); err != nil {
			return fmt.Errorf("region %q: close provider: %w", r.name, err)
		}
	}
	return nil
}
