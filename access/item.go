package access

import (
	"bytes"
	"context"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/hooks"
	"github.com/unkn0wn-root/regioncache/log"
	"github.com/unkn0wn-root/regioncache/region"
)

// item is what strategies store in a region: the caller's bytes plus the
// entity version and the timestamp of the write. Read-write stores a soft lock
// mark instead of the value while the key is being written.
type item struct {
	Value     []byte `msgpack:"v"`
	Version   any    `msgpack:"ver,omitempty"`
	Timestamp int64  `msgpack:"ts"`
	Lock      *mark  `msgpack:"lk,omitempty"`
}

// mark is the shared half of a soft lock. The lock table orders writers inside
// one process; the mark lets every process sharing the region see them.
type mark struct {
	Count    int   `msgpack:"n"`
	Until    int64 `msgpack:"u"` // expiry tick of the newest holder; 0 => never
	Released int64 `msgpack:"r"` // tick of the last release
}

// live reports whether a writer holds the mark at ts.
func (m *mark) live(ts int64) bool { return m.Count > 0 && (m.Until == 0 || m.Until > ts) }

// staleFor reports whether a load by a transaction started at txTs may predate
// a write the mark records. Expired holders count as released at expiry.
func (m *mark) staleFor(txTs int64) bool {
	if m.live(txTs) {
		return true
	}
	end := m.Released
	if m.Count > 0 && m.Until > end {
		end = m.Until
	}
	return end != 0 && end >= txTs
}

func encodeItem(it item) ([]byte, error) { return msgpack.Marshal(&it) }

func decodeItem(b []byte) (item, error) {
	var it item
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	// integer versions come back as int64/uint64 regardless of their width on the wire
	dec.UseLooseInterfaceDecoding(true)
	err := dec.Decode(&it)
	return it, err
}

// readable reports whether a transaction started at txTs may see it.
func (it item) readable(txTs int64) bool { return it.Lock == nil && it.Timestamp < txTs }

// base carries what every policy shares.
type base struct {
	typ   Type
	r     region.Region
	desc  region.Description
	cmp   region.Comparator
	next  func() int64
	log   log.Logger
	hooks hooks.Hooks
}

func (b *base) AccessType() Type      { return b.typ }
func (b *base) Region() region.Region { return b.r }

func (b *base) GenerateCacheKey(id any, owner, tenant string) (cachekey.Key, error) {
	switch b.r.Kind() {
	case region.CollectionKind:
		return cachekey.ForCollection(id, owner, tenant)
	case region.NaturalIDKind:
		vals, ok := id.([]any)
		if !ok {
			vals = []any{id}
		}
		return cachekey.ForNaturalID(vals, owner, tenant)
	default:
		return cachekey.ForEntity(id, owner, tenant)
	}
}

func (b *base) CacheKeyID(key cachekey.Key) (any, error) {
	if !key.Valid() {
		return nil, cachekey.ErrInvalidKey
	}
	if key.Kind == cachekey.NaturalID {
		return cachekey.NaturalIDValues(key)
	}
	return key.ID, nil
}

// read loads and decodes the item of key. Undecodable entries are dropped.
func (b *base) read(ctx context.Context, key cachekey.Key) (item, bool, error) {
	raw, ok, err := b.r.Get(ctx, key)
	if err != nil || !ok {
		return item{}, false, err
	}
	it, err := decodeItem(raw)
	if err != nil {
		b.log.Warn("dropping undecodable cache item", log.Fields{"region": b.r.Name(), "err": err})
		_ = b.r.Remove(ctx, key)
		return item{}, false, nil
	}
	return it, true, nil
}

func (b *base) write(ctx context.Context, key cachekey.Key, it item) error {
	raw, err := encodeItem(it)
	if err != nil {
		return err
	}
	if err := b.r.Put(ctx, key, raw); err != nil {
		return err
	}
	b.hooks.Put(b.r.Name())
	return nil
}

func (b *base) Contains(ctx context.Context, key cachekey.Key) (bool, error) {
	it, ok, err := b.read(ctx, key)
	return ok && it.Lock == nil, err
}

// plainGet is Get without timestamp checks.
func (b *base) plainGet(ctx context.Context, key cachekey.Key) ([]byte, bool, error) {
	it, ok, err := b.read(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok || it.Lock != nil {
		b.hooks.Miss(b.r.Name())
		return nil, false, nil
	}
	b.hooks.Hit(b.r.Name())
	return it.Value, true, nil
}

// supersedes reports whether version may replace the cached item. Without
// versions on both sides a present item is never replaced.
func (b *base) supersedes(cached item, version any) bool {
	if version == nil {
		return false
	}
	if cached.Version == nil {
		return true
	}
	return b.cmp.Compare(cached.Version, version) < 0
}

// loadPut is PutFromLoad for policies without soft locks.
func (b *base) loadPut(ctx context.Context, key cachekey.Key, value []byte, version any, minimalPut bool) (bool, error) {
	cached, present, err := b.read(ctx, key)
	if err != nil {
		return false, err
	}
	if present {
		if minimalPut {
			b.reject("minimal_put")
			return false, nil
		}
		if b.desc.Versioned && !b.supersedes(cached, version) {
			b.reject("version")
			return false, nil
		}
	}
	if err := b.write(ctx, key, item{Value: value, Version: version, Timestamp: b.next()}); err != nil {
		return false, err
	}
	return true, nil
}

func (b *base) reject(reason string) { b.hooks.PutRejected(b.r.Name(), reason) }

func (b *base) Remove(ctx context.Context, key cachekey.Key) error { return b.r.Remove(ctx, key) }
func (b *base) RemoveAll(ctx context.Context) error                { return b.r.Clear(ctx) }

func (b *base) unsupported(op string) error { return &UnsupportedError{Access: b.typ, Op: op} }
