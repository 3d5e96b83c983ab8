package access

import (
	"context"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/codec"
	"github.com/unkn0wn-root/regioncache/softlock"
)

// Typed is a Strategy view that converts values with a codec.
// Lock, remove and region-wide calls go to the underlying Strategy.
type Typed[V any] struct {
	Strategy
	codec codec.Codec[V]
}

func NewTyped[V any](s Strategy, c codec.Codec[V]) *Typed[V] {
	return &Typed[V]{Strategy: s, codec: c}
}

// GetValue decodes a hit. A value the codec cannot read is evicted and reported
// as a miss.
func (t *Typed[V]) GetValue(ctx context.Context, key cachekey.Key, txTs int64) (V, bool, error) {
	var zero V
	b, ok, err := t.Get(ctx, key, txTs)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := t.codec.Decode(b)
	if err != nil {
		_ = t.Remove(ctx, key)
		return zero, false, nil
	}
	return v, true, nil
}

func (t *Typed[V]) PutValueFromLoad(ctx context.Context, key cachekey.Key, v V, txTs int64, version any, minimalPut bool) (bool, error) {
	b, err := t.codec.Encode(v)
	if err != nil {
		return false, err
	}
	return t.PutFromLoad(ctx, key, b, txTs, version, minimalPut)
}

func (t *Typed[V]) InsertValue(ctx context.Context, key cachekey.Key, v V, version any) (bool, error) {
	b, err := t.codec.Encode(v)
	if err != nil {
		return false, err
	}
	return t.Insert(ctx, key, b, version)
}

func (t *Typed[V]) AfterInsertValue(ctx context.Context, key cachekey.Key, v V, version any) (bool, error) {
	b, err := t.codec.Encode(v)
	if err != nil {
		return false, err
	}
	return t.AfterInsert(ctx, key, b, version)
}

func (t *Typed[V]) UpdateValue(ctx context.Context, key cachekey.Key, v V, currentVersion, previousVersion any) (bool, error) {
	b, err := t.codec.Encode(v)
	if err != nil {
		return false, err
	}
	return t.Update(ctx, key, b, currentVersion, previousVersion)
}

func (t *Typed[V]) AfterUpdateValue(ctx context.Context, key cachekey.Key, v V, currentVersion, previousVersion any, lock *softlock.Lock) (bool, error) {
	b, err := t.codec.Encode(v)
	if err != nil {
		if lock != nil {
			// the write committed; the lock must still go
			_ = t.UnlockItem(ctx, key, lock)
		}
		return false, err
	}
	return t.AfterUpdate(ctx, key, b, currentVersion, previousVersion, lock)
}
