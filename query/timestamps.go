// Package query caches query results and tracks when each query space (table)
// was last written, so cached results older than a write are never served.
package query

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/log"
	"github.com/unkn0wn-root/regioncache/region"
)

// Timestamps records the last invalidation time of every query space.
type Timestamps struct {
	r    region.Region
	next func() int64
	log  log.Logger
}

func NewTimestamps(r region.Region, next func() int64, logger log.Logger) *Timestamps {
	return &Timestamps{r: r, next: next, log: log.OrNop(logger)}
}

func (t *Timestamps) Region() region.Region { return t.r }

// PreInvalidate marks spaces as written until the region's lock timeout
// elapses, before the database write starts. Invalidate after commit settles it.
func (t *Timestamps) PreInvalidate(ctx context.Context, spaces []string) error {
	return t.set(ctx, spaces, t.next()+t.r.Timeout())
}

// Invalidate records that spaces were written now.
func (t *Timestamps) Invalidate(ctx context.Context, spaces []string) error {
	return t.set(ctx, spaces, t.next())
}

func (t *Timestamps) set(ctx context.Context, spaces []string, ts int64) error {
	b, err := msgpack.Marshal(ts)
	if err != nil {
		return err
	}
	for _, s := range spaces {
		k, err := cachekey.ForSpace(s)
		if err != nil {
			return err
		}
		if err := t.r.Put(ctx, k, b); err != nil {
			return fmt.Errorf("query: invalidate space %q: %w", s, err)
		}
	}
	t.log.Debug("invalidated query spaces", log.Fields{"spaces": spaces, "ts": ts})
	return nil
}

// LastUpdate returns the recorded invalidation time of space.
func (t *Timestamps) LastUpdate(ctx context.Context, space string) (int64, bool, error) {
	k, err := cachekey.ForSpace(space)
	if err != nil {
		return 0, false, err
	}
	b, ok, err := t.r.Get(ctx, k)
	if err != nil || !ok {
		return 0, false, err
	}
	var ts int64
	if err := msgpack.Unmarshal(b, &ts); err != nil {
		_ = t.r.Remove(ctx, k)
		return 0, false, nil
	}
	return ts, true, nil
}

// IsUpToDate reports whether a result computed at ts saw every write to spaces.
// A space without a record has not been written since the region started.
func (t *Timestamps) IsUpToDate(ctx context.Context, spaces []string, ts int64) (bool, error) {
	for _, s := range spaces {
		last, ok, err := t.LastUpdate(ctx, s)
		if err != nil {
			return false, err
		}
		if ok && last >= ts {
			return false, nil
		}
	}
	return true, nil
}

func (t *Timestamps) Clear(ctx context.Context) error   { return t.r.Clear(ctx) }
func (t *Timestamps) Destroy(ctx context.Context) error { return t.r.Destroy(ctx) }
