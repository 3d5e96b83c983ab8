package regioncache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/regioncache/access"
	"github.com/unkn0wn-root/regioncache/hooks"
	"github.com/unkn0wn-root/regioncache/internal/util"
	"github.com/unkn0wn-root/regioncache/log"
	"github.com/unkn0wn-root/regioncache/query"
	"github.com/unkn0wn-root/regioncache/region"
	"github.com/unkn0wn-root/regioncache/softlock"
)

// evictParallelism bounds concurrent region clears during blanket evictions.
const evictParallelism = 8

// managed is a region plus the soft lock table its read-write strategies share.
type managed struct {
	r     region.Region
	locks *softlock.Table
}

// regionSet holds the regions of one kind.
type regionSet struct {
	kind region.Kind
	mu   sync.RWMutex
	m    map[string]*managed
}

func newRegionSet(kind region.Kind) *regionSet {
	return &regionSet{kind: kind, m: make(map[string]*managed)}
}

func (s *regionSet) get(name string) (*managed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.m[name]
	return m, ok
}

func (s *regionSet) put(name string, m *managed) {
	s.mu.Lock()
	s.m[name] = m
	s.mu.Unlock()
}

func (s *regionSet) all() []*managed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*managed, 0, len(s.m))
	for _, m := range s.m {
		out = append(out, m)
	}
	return out
}

func (s *regionSet) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.m))
	for n := range s.m {
		out = append(out, n)
	}
	return out
}

// binding ties an entity name or collection role to its region and policy.
type binding struct {
	m   *managed
	typ access.Type
}

// Registry owns every cache region of one persistence engine instance.
type Registry struct {
	factory region.Factory
	prefix  string
	props   region.Properties
	opts    Options
	log     log.Logger
	hooks   hooks.Hooks
	closed  atomic.Bool
	// life is held shared while a region is built and exclusively by Close,
	// so Close sees every region that was built.
	life sync.RWMutex

	// regionSF coalesces region creation per name across all kinds.
	regionSF singleflight.Group

	entities    *regionSet
	collections *regionSet
	naturalIDs  *regionSet

	bmu             sync.RWMutex
	entityBinds     map[string]binding
	naturalIDBinds  map[string]binding
	collectionBinds map[string]binding

	// query caching; nil when disabled
	timestamps   *query.Timestamps
	defaultQuery *query.Cache
	qmu          sync.RWMutex
	queryCaches  map[string]*query.Cache
	qsf          singleflight.Group
}

// New starts the factory and, when query caching is enabled, builds the
// update timestamps region and the default query cache.
func New(ctx context.Context, opts Options) (*Registry, error) {
	if opts.Factory == nil {
		return nil, ErrNoFactory
	}
	r := &Registry{
		factory:         opts.Factory,
		props:           opts.Properties,
		opts:            opts,
		log:             log.OrNop(opts.Logger),
		hooks:           hooks.OrNop(opts.Hooks),
		entities:        newRegionSet(region.EntityKind),
		collections:     newRegionSet(region.CollectionKind),
		naturalIDs:      newRegionSet(region.NaturalIDKind),
		entityBinds:     make(map[string]binding),
		naturalIDBinds:  make(map[string]binding),
		collectionBinds: make(map[string]binding),
	}
	if opts.RegionPrefix != "" {
		r.prefix = opts.RegionPrefix + "."
	}
	if err := r.factory.Start(ctx, opts.Properties); err != nil {
		return nil, fmt.Errorf("regioncache: start region factory: %w", err)
	}

	if opts.QueryCacheEnabled {
		tr, err := r.factory.BuildTimestampsRegion(ctx, r.QualifyRegionName(TimestampsRegionName), r.props)
		if err != nil {
			_ = r.factory.Stop(ctx)
			return nil, fmt.Errorf("regioncache: build timestamps region: %w", err)
		}
		r.timestamps = query.NewTimestamps(tr, r.factory.NextTimestamp, r.log)
		qr, err := r.factory.BuildQueryResultsRegion(ctx, r.QualifyRegionName(DefaultQueryRegionName), r.props)
		if err != nil {
			_ = tr.Destroy(ctx)
			_ = r.factory.Stop(ctx)
			return nil, fmt.Errorf("regioncache: build default query region: %w", err)
		}
		r.defaultQuery = query.NewCache(qr, r.timestamps, r.log, r.hooks)
		r.queryCaches = make(map[string]*query.Cache)
	}
	return r, nil
}

// QualifyRegionName prefixes name with Options.RegionPrefix. "" stays "".
func (r *Registry) QualifyRegionName(name string) string {
	if name == "" {
		return ""
	}
	return r.prefix + name
}

// RegionFactory returns the factory the registry builds regions with.
func (r *Registry) RegionFactory() region.Factory { return r.factory }

// MinimalPuts reports the factory's default for PutFromLoad's minimalPut.
func (r *Registry) MinimalPuts() bool { return r.factory.MinimalPutsEnabledByDefault() }

// ===== region acquisition =====

// GetOrCreateEntityRegion returns the entity region of the qualified name,
// building it on first use. A later request must carry an equal description.
func (r *Registry) GetOrCreateEntityRegion(ctx context.Context, name string, d region.Description) (region.Region, error) {
	m, err := r.acquire(ctx, r.entities, name, d, r.factory.BuildEntityRegion)
	if err != nil {
		return nil, err
	}
	return m.r, nil
}

func (r *Registry) GetOrCreateCollectionRegion(ctx context.Context, name string, d region.Description) (region.Region, error) {
	m, err := r.acquire(ctx, r.collections, name, d, r.factory.BuildCollectionRegion)
	if err != nil {
		return nil, err
	}
	return m.r, nil
}

// GetOrCreateNaturalIDRegion fails with region.ErrUnsupported when the factory
// cannot cache natural ids.
func (r *Registry) GetOrCreateNaturalIDRegion(ctx context.Context, name string, d region.Description) (region.Region, error) {
	m, err := r.acquire(ctx, r.naturalIDs, name, d, r.factory.BuildNaturalIDRegion)
	if err != nil {
		return nil, err
	}
	return m.r, nil
}

type buildFunc func(ctx context.Context, name string, props region.Properties, d region.Description) (region.Region, error)

func (r *Registry) acquire(ctx context.Context, set *regionSet, name string, d region.Description, build buildFunc) (*managed, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, ErrNilRegionName
	}
	m, ok := set.get(name)
	if !ok {
		v, err, _ := r.regionSF.Do(name, func() (any, error) {
			if m, ok := r.anyRegion(name); ok {
				return m, nil
			}
			r.life.RLock()
			defer r.life.RUnlock()
			if r.closed.Load() {
				return nil, ErrClosed
			}
			r.log.Debug("building cache region", log.Fields{"region": name, "kind": set.kind.String(), "description": d.String()})
			reg, err := build(ctx, name, r.props, d)
			if err != nil {
				return nil, err
			}
			lo := r.opts.Locks
			if lo.Timeout == 0 {
				lo.Timeout = reg.Timeout()
			}
			m := &managed{r: reg, locks: softlock.New(lo)}
			set.put(name, m)
			return m, nil
		})
		if err != nil {
			return nil, err
		}
		m = v.(*managed)
	}
	existing := m.r.Description()
	// storage keys are namespaced by region name only, so kinds never share one
	if k := m.r.Kind(); k != set.kind {
		return nil, &IncompatibleRegionError{Region: name, Field: "kind " + k.String(), Existing: existing, Requested: d}
	}
	if field := existing.Diff(d); field != "" {
		return nil, &IncompatibleRegionError{Region: name, Field: field, Existing: existing, Requested: d}
	}
	return m, nil
}

// anyRegion finds name among the regions of every kind.
func (r *Registry) anyRegion(name string) (*managed, bool) {
	for _, set := range []*regionSet{r.entities, r.collections, r.naturalIDs} {
		if m, ok := set.get(name); ok {
			return m, true
		}
	}
	return nil, false
}

// EntityRegion returns the entity region of the qualified name, or nil.
func (r *Registry) EntityRegion(name string) region.Region { return lookup(r.entities, name) }

func (r *Registry) CollectionRegion(name string) region.Region { return lookup(r.collections, name) }

func (r *Registry) NaturalIDRegion(name string) region.Region { return lookup(r.naturalIDs, name) }

func lookup(set *regionSet, name string) region.Region {
	if m, ok := set.get(name); ok {
		return m.r
	}
	return nil
}

// RegionNames lists every region the registry owns, sorted.
func (r *Registry) RegionNames() []string {
	names := make(map[string]struct{})
	for _, set := range []*regionSet{r.entities, r.collections, r.naturalIDs} {
		for _, n := range set.names() {
			names[n] = struct{}{}
		}
	}
	if r.timestamps != nil {
		names[r.timestamps.Region().Name()] = struct{}{}
		names[r.defaultQuery.Region().Name()] = struct{}{}
		r.qmu.RLock()
		for _, c := range r.queryCaches {
			names[c.Region().Name()] = struct{}{}
		}
		r.qmu.RUnlock()
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ===== access strategies =====

func (r *Registry) strategy(b binding) (access.Strategy, error) {
	return access.New(b.typ, b.m.r, access.Config{
		Locks:         b.m.locks,
		NextTimestamp: r.factory.NextTimestamp,
		Logger:        r.log,
		Hooks:         r.hooks,
	})
}

// DetermineEntityAccess builds (or joins) the region of model and binds the
// entity name to it. It returns a nil Strategy when the entity is not cached.
func (r *Registry) DetermineEntityAccess(ctx context.Context, model EntityModel) (access.Strategy, error) {
	if r.opts.Disabled || model.Access == "" {
		return nil, nil
	}
	typ, err := region.ParseAccessType(model.Access)
	if err != nil {
		return nil, err
	}
	m, err := r.acquire(ctx, r.entities, r.QualifyRegionName(util.Coalesce(model.Region, model.Name)), model.Description, r.factory.BuildEntityRegion)
	if err != nil {
		return nil, err
	}
	b := binding{m: m, typ: typ}
	r.bmu.Lock()
	r.entityBinds[model.Name] = b
	r.bmu.Unlock()
	return r.strategy(b)
}

// DetermineNaturalIDAccess binds natural-id caching for model using the
// factory's default access type. A factory without natural-id support
// disables it with a warning and a nil Strategy.
func (r *Registry) DetermineNaturalIDAccess(ctx context.Context, model EntityModel) (access.Strategy, error) {
	if r.opts.Disabled || model.NaturalIDRegion == "" {
		return nil, nil
	}
	m, err := r.acquire(ctx, r.naturalIDs, r.QualifyRegionName(model.NaturalIDRegion), model.Description, r.factory.BuildNaturalIDRegion)
	if errors.Is(err, region.ErrUnsupported) {
		r.log.Warn("region factory does not support natural id caching; disabled for entity", log.Fields{"entity": model.Name})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b := binding{m: m, typ: r.factory.DefaultAccessType()}
	r.bmu.Lock()
	r.naturalIDBinds[model.Name] = b
	r.bmu.Unlock()
	return r.strategy(b)
}

func (r *Registry) DetermineCollectionAccess(ctx context.Context, model CollectionModel) (access.Strategy, error) {
	if r.opts.Disabled || model.Access == "" {
		return nil, nil
	}
	typ, err := region.ParseAccessType(model.Access)
	if err != nil {
		return nil, err
	}
	m, err := r.acquire(ctx, r.collections, r.QualifyRegionName(util.Coalesce(model.Region, model.Role)), model.Description, r.factory.BuildCollectionRegion)
	if err != nil {
		return nil, err
	}
	b := binding{m: m, typ: typ}
	r.bmu.Lock()
	r.collectionBinds[model.Role] = b
	r.bmu.Unlock()
	return r.strategy(b)
}

func (r *Registry) bound(binds map[string]binding, name string) (access.Strategy, bool, error) {
	if name == "" {
		return nil, false, ErrNilRegionName
	}
	r.bmu.RLock()
	b, ok := binds[name]
	r.bmu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	s, err := r.strategy(b)
	return s, err == nil, err
}

// notCached logs targeted operations on names without a binding: types that
// are not cached, or never went through Determine*Access.
func (r *Registry) notCached(name string, err error) {
	if err == nil {
		r.log.Debug("no second-level cache binding", log.Fields{"name": name})
	}
}

// EntityAccess returns a Strategy for an entity bound by DetermineEntityAccess.
func (r *Registry) EntityAccess(entityName string) (access.Strategy, bool) {
	s, ok, _ := r.bound(r.entityBinds, entityName)
	return s, ok
}

func (r *Registry) NaturalIDAccess(entityName string) (access.Strategy, bool) {
	s, ok, _ := r.bound(r.naturalIDBinds, entityName)
	return s, ok
}

func (r *Registry) CollectionAccess(role string) (access.Strategy, bool) {
	s, ok, _ := r.bound(r.collectionBinds, role)
	return s, ok
}

// ===== containment and eviction =====

// ContainsEntity reports whether the entity with id is cached. Keys are built
// without a tenant.
func (r *Registry) ContainsEntity(ctx context.Context, entityName string, id any) (bool, error) {
	return r.contains(ctx, r.entityBinds, entityName, id)
}

func (r *Registry) ContainsCollection(ctx context.Context, role string, ownerID any) (bool, error) {
	return r.contains(ctx, r.collectionBinds, role, ownerID)
}

func (r *Registry) contains(ctx context.Context, binds map[string]binding, name string, id any) (bool, error) {
	s, ok, err := r.bound(binds, name)
	if err != nil || !ok {
		r.notCached(name, err)
		return false, err
	}
	k, err := s.GenerateCacheKey(id, name, "")
	if err != nil {
		return false, err
	}
	return s.Contains(ctx, k)
}

func (r *Registry) EvictEntity(ctx context.Context, entityName string, id any) error {
	return r.evictOne(ctx, r.entityBinds, entityName, id)
}

func (r *Registry) EvictCollection(ctx context.Context, role string, ownerID any) error {
	return r.evictOne(ctx, r.collectionBinds, role, ownerID)
}

func (r *Registry) evictOne(ctx context.Context, binds map[string]binding, name string, id any) error {
	s, ok, err := r.bound(binds, name)
	if err != nil || !ok {
		r.notCached(name, err)
		return err
	}
	k, err := s.GenerateCacheKey(id, name, "")
	if err != nil {
		return err
	}
	r.log.Debug("evicting second-level cache entry", log.Fields{"name": name, "key": k.String()})
	return s.Remove(ctx, k)
}

// EvictEntityRegion clears the region of entityName. Other regions are untouched.
func (r *Registry) EvictEntityRegion(ctx context.Context, entityName string) error {
	return r.evictBound(ctx, r.entityBinds, entityName)
}

func (r *Registry) EvictNaturalIDRegion(ctx context.Context, entityName string) error {
	return r.evictBound(ctx, r.naturalIDBinds, entityName)
}

func (r *Registry) EvictCollectionRegion(ctx context.Context, role string) error {
	return r.evictBound(ctx, r.collectionBinds, role)
}

func (r *Registry) evictBound(ctx context.Context, binds map[string]binding, name string) error {
	s, ok, err := r.bound(binds, name)
	if err != nil || !ok {
		r.notCached(name, err)
		return err
	}
	r.log.Debug("evicting second-level cache region", log.Fields{"name": name, "region": s.Region().Name()})
	return s.RemoveAll(ctx)
}

func (r *Registry) EvictEntityRegions(ctx context.Context) error {
	return r.evictAllBound(ctx, r.entityBinds)
}

func (r *Registry) EvictNaturalIDRegions(ctx context.Context) error {
	return r.evictAllBound(ctx, r.naturalIDBinds)
}

func (r *Registry) EvictCollectionRegions(ctx context.Context) error {
	return r.evictAllBound(ctx, r.collectionBinds)
}

// evictAllBound clears every region with a binding, once per region.
func (r *Registry) evictAllBound(ctx context.Context, binds map[string]binding) error {
	r.bmu.RLock()
	seen := make(map[*managed]binding, len(binds))
	for _, b := range binds {
		seen[b.m] = b
	}
	r.bmu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evictParallelism)
	for _, b := range seen {
		b := b
		g.Go(func() error {
			s, err := r.strategy(b)
			if err != nil {
				return err
			}
			return s.RemoveAll(gctx)
		})
	}
	return g.Wait()
}

// ===== query caches =====

// QueryCache returns the query cache of the unqualified region name, "" for
// the default one. At most one cache exists per name.
func (r *Registry) QueryCache(ctx context.Context, name string) (*query.Cache, error) {
	if r.timestamps == nil {
		return nil, ErrQueryCacheDisabled
	}
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return r.defaultQuery, nil
	}
	if c, ok := r.queryCache(name); ok {
		return c, nil
	}
	v, err, _ := r.qsf.Do(name, func() (any, error) {
		if c, ok := r.queryCache(name); ok {
			return c, nil
		}
		r.life.RLock()
		defer r.life.RUnlock()
		if r.closed.Load() {
			return nil, ErrClosed
		}
		qr, err := r.factory.BuildQueryResultsRegion(ctx, r.QualifyRegionName(name), r.props)
		if err != nil {
			return nil, err
		}
		c := query.NewCache(qr, r.timestamps, r.log, r.hooks)
		r.qmu.Lock()
		r.queryCaches[name] = c
		r.qmu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*query.Cache), nil
}

func (r *Registry) queryCache(name string) (*query.Cache, bool) {
	r.qmu.RLock()
	defer r.qmu.RUnlock()
	c, ok := r.queryCaches[name]
	return c, ok
}

// UpdateTimestamps returns the update timestamps cache, nil when query caching
// is disabled.
func (r *Registry) UpdateTimestamps() *query.Timestamps { return r.timestamps }

// ContainsQuery reports whether a query cache named name was created.
func (r *Registry) ContainsQuery(name string) bool {
	if r.timestamps == nil {
		return false
	}
	_, ok := r.queryCache(name)
	return ok
}

func (r *Registry) EvictDefaultQueryRegion(ctx context.Context) error {
	if r.defaultQuery == nil {
		return nil
	}
	r.log.Debug("evicting default query region cache", nil)
	return r.defaultQuery.Clear(ctx)
}

// EvictQueryRegion clears the named query cache. "" is rejected; use
// EvictDefaultQueryRegion for the default cache.
func (r *Registry) EvictQueryRegion(ctx context.Context, name string) error {
	if name == "" {
		return ErrNilRegionName
	}
	if r.timestamps == nil {
		return nil
	}
	c, ok := r.queryCache(name)
	if !ok {
		return nil
	}
	r.log.Debug("evicting query cache", log.Fields{"region": name})
	return c.Clear(ctx)
}

// EvictQueryRegions clears the default and every named query cache.
func (r *Registry) EvictQueryRegions(ctx context.Context) error {
	if r.timestamps == nil {
		return nil
	}
	r.qmu.RLock()
	caches := make([]*query.Cache, 0, len(r.queryCaches)+1)
	caches = append(caches, r.defaultQuery)
	for _, c := range r.queryCaches {
		caches = append(caches, c)
	}
	r.qmu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evictParallelism)
	for _, c := range caches {
		c := c
		g.Go(func() error { return c.Clear(gctx) })
	}
	return g.Wait()
}

// EvictQueries clears the default query cache only.
func (r *Registry) EvictQueries(ctx context.Context) error { return r.EvictDefaultQueryRegion(ctx) }

// EvictAllRegions clears entity, collection, natural-id and query regions.
func (r *Registry) EvictAllRegions(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.EvictCollectionRegions(gctx) })
	g.Go(func() error { return r.EvictEntityRegions(gctx) })
	g.Go(func() error { return r.EvictQueryRegions(gctx) })
	g.Go(func() error { return r.EvictNaturalIDRegions(gctx) })
	return g.Wait()
}

// EvictAll clears entity regions only.
func (r *Registry) EvictAll(ctx context.Context) error { return r.EvictEntityRegions(ctx) }

// ===== shutdown =====

// Close destroys every region, the query caches and the timestamps region,
// then stops the factory. It may be called once; later calls return ErrClosed.
func (r *Registry) Close(ctx context.Context) error {
	r.life.Lock()
	if r.closed.Load() {
		r.life.Unlock()
		return ErrClosed
	}
	r.closed.Store(true)
	r.life.Unlock()

	destroyErrs := make(map[string]error)
	destroy := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			destroyErrs[name] = err
		}
	}
	for _, set := range []*regionSet{r.entities, r.collections, r.naturalIDs} {
		for _, m := range set.all() {
			destroy(m.r.Name(), m.r.Destroy)
			m.locks.Close()
		}
	}
	if r.timestamps != nil {
		destroy(r.defaultQuery.Region().Name(), r.defaultQuery.Destroy)
		r.qmu.RLock()
		for _, c := range r.queryCaches {
			destroy(c.Region().Name(), c.Destroy)
		}
		r.qmu.RUnlock()
		destroy(r.timestamps.Region().Name(), r.timestamps.Destroy)
	}
	stopErr := r.factory.Stop(ctx)

	if len(destroyErrs) > 0 || stopErr != nil {
		r.log.Error("closing second-level cache failed", log.Fields{"regions": len(destroyErrs), "stopErr": stopErr})
		return &CloseError{DestroyErrs: destroyErrs, StopErr: stopErr}
	}
	r.log.Info("second-level cache closed", nil)
	return nil
}
