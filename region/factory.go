package region

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gen "github.com/unkn0wn-root/regioncache/genstore"
	"github.com/unkn0wn-root/regioncache/hooks"
	"github.com/unkn0wn-root/regioncache/internal/util"
	"github.com/unkn0wn-root/regioncache/log"
	pr "github.com/unkn0wn-root/regioncache/provider"
)

// Property keys understood by the provider-backed Factory.
const (
	PropTTL         = "ttl"          // entry lifetime, region-scoped
	PropLockTimeout = "lock_timeout" // soft lock lifetime, region-scoped
	PropAccessType  = "access_type"  // default access type
	PropMinimalPuts = "minimal_puts" // minimal puts by default
)

const (
	defaultTTL          = 10 * time.Minute
	defaultLockTimeout  = 60 * time.Second
	defaultGenSweep     = time.Hour
	defaultGenRetention = 30 * 24 * time.Hour

	// TicksPerSecond is the resolution of Factory.NextTimestamp.
	TicksPerSecond = 10
)

// Factory builds regions from backend-specific configuration.
// Start and Stop are one-shot; a second Start or a Stop without Start is logged
// and ignored.
type Factory interface {
	Start(ctx context.Context, props Properties) error
	Stop(ctx context.Context) error

	BuildEntityRegion(ctx context.Context, name string, props Properties, d Description) (Region, error)
	BuildCollectionRegion(ctx context.Context, name string, props Properties, d Description) (Region, error)
	// BuildNaturalIDRegion returns ErrUnsupported when the backend cannot cache natural ids.
	BuildNaturalIDRegion(ctx context.Context, name string, props Properties, d Description) (Region, error)
	BuildQueryResultsRegion(ctx context.Context, name string, props Properties) (Region, error)
	BuildTimestampsRegion(ctx context.Context, name string, props Properties) (Region, error)

	// NextTimestamp is strictly increasing across calls.
	NextTimestamp() int64
	DefaultAccessType() AccessType
	MinimalPutsEnabledByDefault() bool
}

type SetCostFunc func(storageKey string, raw []byte) int64

// FactoryOptions configure NewFactory. Provider or ProviderFor is required.
type FactoryOptions struct {
	// Provider is shared by every region; region keyspaces are disjoint.
	Provider pr.Provider
	// ProviderFor, if set, builds a dedicated provider per region. The region
	// owns it and closes it on Destroy.
	ProviderFor func(ctx context.Context, kind Kind, name string) (pr.Provider, error)
	// CloseProvider closes the shared Provider on Stop.
	CloseProvider bool

	GenStore         gen.GenStore  // nil => LocalGenStore (in-process)
	GenSweep         time.Duration // LocalGenStore cleanup interval; 0 => 1h
	GenRetention     time.Duration // LocalGenStore retention; 0 => 30d
	DefaultTTL       time.Duration // 0 => 10m
	LockTimeout      time.Duration // 0 => 60s
	AccessType       AccessType    // "" => ReadWrite
	NoMinimalPuts    bool
	DisableNaturalID bool
	ComputeSetCost   SetCostFunc // default 1
	Clock            func() time.Time
	Logger           log.Logger
	Hooks            hooks.Hooks
}

// ProviderFactory is the provider-backed Factory.
type ProviderFactory struct {
	opts    FactoryOptions
	log     log.Logger
	hooks   hooks.Hooks
	clock   func() time.Time
	cost    SetCostFunc
	started atomic.Bool
	lastTs  atomic.Int64

	mu       sync.RWMutex // guards the fields below
	props    Properties
	gen      gen.GenStore
	ownsGen  bool
	access   AccessType
	minimal  bool
	lockTime time.Duration
}

var _ Factory = (*ProviderFactory)(nil)

func NewFactory(opts FactoryOptions) *ProviderFactory {
	f := &ProviderFactory{
		opts:  opts,
		log:   log.OrNop(opts.Logger),
		hooks: hooks.OrNop(opts.Hooks),
		clock: opts.Clock,
		cost:  opts.ComputeSetCost,
	}
	if f.clock == nil {
		f.clock = time.Now
	}
	if f.cost == nil {
		f.cost = func(string, []byte) int64 { return 1 }
	}
	return f
}

func (f *ProviderFactory) Start(_ context.Context, props Properties) error {
	if !f.started.CompareAndSwap(false, true) {
		f.log.Warn("attempt to restart an already started region factory", nil)
		return nil
	}
	if f.opts.Provider == nil && f.opts.ProviderFor == nil {
		f.started.Store(false)
		return errors.New("region: factory needs a Provider or ProviderFor")
	}

	access := f.opts.AccessType
	if v, ok := props.Lookup("", PropAccessType); ok && v != "" {
		at, err := ParseAccessType(v)
		if err != nil {
			f.started.Store(false)
			return err
		}
		access = at
	}
	if access == "" {
		access = ReadWrite
	}
	minimal, err := props.Bool("", PropMinimalPuts, !f.opts.NoMinimalPuts)
	if err != nil {
		f.started.Store(false)
		return err
	}
	lockTime, err := props.Duration("", PropLockTimeout, util.Coalesce(f.opts.LockTimeout, defaultLockTimeout))
	if err != nil {
		f.started.Store(false)
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.props = props.Merge(nil)
	f.access = access
	f.minimal = minimal
	f.lockTime = lockTime
	if f.opts.GenStore != nil {
		f.gen = f.opts.GenStore
		f.ownsGen = false
	} else {
		f.gen = gen.NewLocalGenStore(
			util.Coalesce(f.opts.GenSweep, defaultGenSweep),
			util.Coalesce(f.opts.GenRetention, defaultGenRetention),
		)
		f.ownsGen = true
	}
	f.log.Info("region factory started", log.Fields{"accessType": string(access), "minimalPuts": minimal})
	return nil
}

func (f *ProviderFactory) Stop(ctx context.Context) error {
	if !f.started.CompareAndSwap(true, false) {
		f.log.Warn("attempt to stop an already stopped region factory", nil)
		return nil
	}
	f.mu.Lock()
	g, owns := f.gen, f.ownsGen
	f.gen = nil
	f.mu.Unlock()

	var errs []error
	if owns && g != nil {
		if err := g.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if f.opts.CloseProvider && f.opts.Provider != nil {
		if err := f.opts.Provider.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	f.log.Info("region factory stopped", nil)
	return errors.Join(errs...)
}

func (f *ProviderFactory) BuildEntityRegion(ctx context.Context, name string, props Properties, d Description) (Region, error) {
	return f.build(ctx, EntityKind, name, props, d)
}

func (f *ProviderFactory) BuildCollectionRegion(ctx context.Context, name string, props Properties, d Description) (Region, error) {
	return f.build(ctx, CollectionKind, name, props, d)
}

func (f *ProviderFactory) BuildNaturalIDRegion(ctx context.Context, name string, props Properties, d Description) (Region, error) {
	if f.opts.DisableNaturalID {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, NaturalIDKind)
	}
	return f.build(ctx, NaturalIDKind, name, props, d)
}

func (f *ProviderFactory) BuildQueryResultsRegion(ctx context.Context, name string, props Properties) (Region, error) {
	return f.build(ctx, QueryResultsKind, name, props, Description{})
}

func (f *ProviderFactory) BuildTimestampsRegion(ctx context.Context, name string, props Properties) (Region, error) {
	return f.build(ctx, TimestampsKind, name, props, Description{})
}

// NextTimestamp returns wall-clock time in tenths of a second, bumped by one
// whenever the clock has not advanced past the previous value.
func (f *ProviderFactory) NextTimestamp() int64 {
	now := f.clock().UnixMilli() / (1000 / TicksPerSecond)
	for {
		last := f.lastTs.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if f.lastTs.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (f *ProviderFactory) DefaultAccessType() AccessType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.access == "" {
		return util.Coalesce(f.opts.AccessType, ReadWrite)
	}
	return f.access
}

func (f *ProviderFactory) MinimalPutsEnabledByDefault() bool {
	if !f.started.Load() {
		return !f.opts.NoMinimalPuts
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.minimal
}

func (f *ProviderFactory) build(ctx context.Context, kind Kind, name string, props Properties, d Description) (Region, error) {
	if !f.started.Load() {
		return nil, ErrNotStarted
	}
	if name == "" {
		return nil, errors.New("region: empty region name")
	}

	f.mu.RLock()
	all := f.props.Merge(props)
	g := f.gen
	lockTime := f.lockTime
	f.mu.RUnlock()
	if g == nil {
		return nil, ErrNotStarted
	}

	ttl := time.Duration(0) // timestamps never expire
	if kind != TimestampsKind {
		var err error
		ttl, err = all.Duration(name, PropTTL, util.Coalesce(f.opts.DefaultTTL, defaultTTL))
		if err != nil {
			return nil, err
		}
	}
	lockTime, err := all.Duration(name, PropLockTimeout, lockTime)
	if err != nil {
		return nil, err
	}

	p, owns := f.opts.Provider, false
	if f.opts.ProviderFor != nil {
		p, err = f.opts.ProviderFor(ctx, kind, name)
		if err != nil {
			return nil, fmt.Errorf("region: provider for %s region %q: %w", kind, name, err)
		}
		owns = true
	}
	if p == nil {
		return nil, fmt.Errorf("region: no provider for %s region %q", kind, name)
	}

	r := &providerRegion{
		name:         name,
		kind:         kind,
		desc:         d,
		provider:     p,
		ownsProvider: owns,
		gen:          g,
		ttl:          ttl,
		timeout:      int64(lockTime / (time.Second / TicksPerSecond)),
		cost:         f.cost,
		log:          f.log,
		hooks:        f.hooks,
	}
	f.hooks.RegionBuilt(name, kind.String())
	f.log.Debug("built region", log.Fields{"region": name, "kind": kind.String(), "ttl": ttl})
	return r, nil
}
