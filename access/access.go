// Package access implements region access strategies: the consistency protocol
// between a persistence engine and a cache region.
//
// The engine drives a Strategy through a fixed sequence per unit of work:
//
//	load:   Get(key, txTs) -> miss -> read database -> PutFromLoad(key, value, txTs, version, minimalPut)
//	update: LockItem -> Update -> write database -> commit -> AfterUpdate(lock) (or UnlockItem on rollback)
//	insert: Insert -> write database -> commit -> AfterInsert
//	delete: LockItem -> Remove -> write database -> UnlockItem
//
// Timestamps (txTs) come from the region factory's NextTimestamp, taken when the
// transaction starts. A Strategy is stateless; its state lives in the Region and
// the soft lock table, so it may be recreated at will.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/regioncache/cachekey"
	"github.com/unkn0wn-root/regioncache/hooks"
	"github.com/unkn0wn-root/regioncache/log"
	"github.com/unkn0wn-root/regioncache/region"
	"github.com/unkn0wn-root/regioncache/softlock"
)

// Type is the concurrency policy of a Strategy.
type Type = region.AccessType

const (
	ReadOnly           = region.ReadOnly
	NonstrictReadWrite = region.NonstrictReadWrite
	ReadWrite          = region.ReadWrite
	Transactional      = region.Transactional
)

var ErrUnsupported = errors.New("access: operation not supported")

// UnsupportedError reports an operation the policy forbids. It is a
// configuration mistake, not a race: retrying cannot succeed.
type UnsupportedError struct {
	Access Type
	Op     string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("access: %s not supported by %s strategy", e.Op, e.Access)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// Strategy mediates every read and write between the engine and one Region.
// Methods that report a bool return whether the region was mutated.
type Strategy interface {
	AccessType() Type
	Region() region.Region

	// GenerateCacheKey builds the key of id in this region. For natural-id
	// regions id is a []any of natural-id values.
	GenerateCacheKey(id any, owner, tenant string) (cachekey.Key, error)
	// CacheKeyID returns the identity GenerateCacheKey was called with.
	CacheKeyID(key cachekey.Key) (any, error)

	// Contains reports whether a value is cached under key, ignoring
	// transaction timestamps and soft locks.
	Contains(ctx context.Context, key cachekey.Key) (bool, error)
	Get(ctx context.Context, key cachekey.Key, txTs int64) ([]byte, bool, error)
	PutFromLoad(ctx context.Context, key cachekey.Key, value []byte, txTs int64, version any, minimalPut bool) (bool, error)

	// LockItem may return a nil lock for policies without soft locks.
	LockItem(ctx context.Context, key cachekey.Key, version any) (*softlock.Lock, error)
	UnlockItem(ctx context.Context, key cachekey.Key, lock *softlock.Lock) error
	LockRegion(ctx context.Context) (*softlock.Lock, error)
	UnlockRegion(ctx context.Context, lock *softlock.Lock) error

	Remove(ctx context.Context, key cachekey.Key) error
	RemoveAll(ctx context.Context) error

	Insert(ctx context.Context, key cachekey.Key, value []byte, version any) (bool, error)
	AfterInsert(ctx context.Context, key cachekey.Key, value []byte, version any) (bool, error)
	Update(ctx context.Context, key cachekey.Key, value []byte, currentVersion, previousVersion any) (bool, error)
	AfterUpdate(ctx context.Context, key cachekey.Key, value []byte, currentVersion, previousVersion any, lock *softlock.Lock) (bool, error)
}

// Config binds a Strategy to its collaborators.
type Config struct {
	// Locks is the region's soft lock table. Required for ReadWrite.
	Locks *softlock.Table
	// NextTimestamp is the region factory clock. Required.
	NextTimestamp func() int64
	Logger        log.Logger
	Hooks         hooks.Hooks
}

// New returns the Strategy of policy t over r.
func New(t Type, r region.Region, cfg Config) (Strategy, error) {
	if r == nil {
		return nil, errors.New("access: nil region")
	}
	switch r.Kind() {
	case region.EntityKind, region.CollectionKind, region.NaturalIDKind:
	default:
		return nil, fmt.Errorf("access: %s region %q has no access strategy", r.Kind(), r.Name())
	}
	if cfg.NextTimestamp == nil {
		return nil, errors.New("access: NextTimestamp is required")
	}
	b := base{
		typ:   t,
		r:     r,
		desc:  r.Description(),
		next:  cfg.NextTimestamp,
		log:   log.OrNop(cfg.Logger),
		hooks: hooks.OrNop(cfg.Hooks),
	}
	b.cmp = b.desc.Comparator()
	switch t {
	case ReadOnly:
		return &readOnly{base: b}, nil
	case NonstrictReadWrite:
		return &nonstrict{base: b}, nil
	case ReadWrite:
		if cfg.Locks == nil {
			return nil, errors.New("access: read-write strategy needs a soft lock table")
		}
		return &readWrite{base: b, locks: cfg.Locks}, nil
	case Transactional:
		return &transactional{base: b}, nil
	default:
		return nil, fmt.Errorf("access: unknown access type %q", t)
	}
}
