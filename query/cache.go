package query

import (
	"context"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/hooks"
	"github.com/unkn0wn-root/regioncache/log"
	"github.com/unkn0wn-root/regioncache/region"
)

type entry struct {
	Timestamp int64    `msgpack:"ts"`
	Spaces    []string `msgpack:"sp,omitempty"`
	Result    []byte   `msgpack:"r"`
}

// Cache holds query results in one query-results region.
type Cache struct {
	r     region.Region
	ts    *Timestamps
	log   log.Logger
	hooks hooks.Hooks
}

func NewCache(r region.Region, ts *Timestamps, logger log.Logger, h hooks.Hooks) *Cache {
	return &Cache{r: r, ts: ts, log: log.OrNop(logger), hooks: hooks.OrNop(h)}
}

func (c *Cache) Region() region.Region { return c.r }

// Put caches result for queryKey. txTs is the start of the transaction that ran
// the query; spaces are the query spaces it read.
func (c *Cache) Put(ctx context.Context, queryKey string, result []byte, spaces []string, txTs int64) (bool, error) {
	k, err := cachekey.ForQuery(queryKey, c.r.Name())
	if err != nil {
		return false, err
	}
	sp := append([]string(nil), spaces...)
	sort.Strings(sp)
	b, err := msgpack.Marshal(&entry{Timestamp: txTs, Spaces: sp, Result: result})
	if err != nil {
		return false, err
	}
	if err := c.r.Put(ctx, k, b); err != nil {
		return false, err
	}
	c.hooks.Put(c.r.Name())
	return true, nil
}

// Get returns the cached result unless one of spaces (or the spaces recorded at
// Put) was invalidated at or after the result was computed.
func (c *Cache) Get(ctx context.Context, queryKey string, spaces []string) ([]byte, bool, error) {
	k, err := cachekey.ForQuery(queryKey, c.r.Name())
	if err != nil {
		return nil, false, err
	}
	b, ok, err := c.r.Get(ctx, k)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.hooks.Miss(c.r.Name())
		return nil, false, nil
	}
	var e entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		_ = c.r.Remove(ctx, k)
		c.hooks.Miss(c.r.Name())
		return nil, false, nil
	}
	fresh, err := c.ts.IsUpToDate(ctx, union(e.Spaces, spaces), e.Timestamp)
	if err != nil {
		return nil, false, err
	}
	if !fresh {
		c.log.Debug("cached query result is stale", log.Fields{"region": c.r.Name(), "query": queryKey})
		_ = c.r.Remove(ctx, k)
		c.hooks.Miss(c.r.Name())
		return nil, false, nil
	}
	c.hooks.Hit(c.r.Name())
	return e.Result, true, nil
}

// Contains reports whether a result for queryKey is stored, fresh or not.
func (c *Cache) Contains(ctx context.Context, queryKey string) (bool, error) {
	k, err := cachekey.ForQuery(queryKey, c.r.Name())
	if err != nil {
		return false, err
	}
	return c.r.Contains(ctx, k)
}

func (c *Cache) Clear(ctx context.Context) error   { return c.r.Clear(ctx) }
func (c *Cache) Destroy(ctx context.Context) error { return c.r.Destroy(ctx) }

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
