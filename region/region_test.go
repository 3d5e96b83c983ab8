package region

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/regioncache/cachekey"
	gen "github.com/unkn0wn-root/regioncache/genstore"
	"github.com/unkn0wn-root/regioncache/hooks"
	pr "github.com/unkn0wn-root/regioncache/provider"
	"github.com/unkn0wn-root/regioncache/provider/memory"
)

type recHooks struct {
	hooks.Nop
	mu       sync.Mutex
	healed   []string
	rejected []string
	built    []string
}

func (h *recHooks) SelfHealEntry(_ string, reason string) {
	h.mu.Lock()
	h.healed = append(h.healed, reason)
	h.mu.Unlock()
}

func (h *recHooks) ProviderSetRejected(k string) {
	h.mu.Lock()
	h.rejected = append(h.rejected, k)
	h.mu.Unlock()
}

func (h *recHooks) RegionBuilt(name, kind string) {
	h.mu.Lock()
	h.built = append(h.built, kind+":"+name)
	h.mu.Unlock()
}

func startFactory(t *testing.T, opts FactoryOptions, props Properties) *ProviderFactory {
	t.Helper()
	f := NewFactory(opts)
	if err := f.Start(context.Background(), props); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = f.Stop(context.Background()) })
	return f
}

func TestDescriptionDiff(t *testing.T) {
	base := Description{Mutable: true, Versioned: true, VersionComparator: NumericComparator{}, KeyType: "long"}
	fn := ComparatorFunc(func(a, b any) int { return 0 })
	cases := []struct {
		name  string
		other Description
		want  string
	}{
		{"equal", base, ""},
		{"mutable", Description{Mutable: false, Versioned: true, VersionComparator: NumericComparator{}, KeyType: "long"}, "mutable"},
		{"versioned", Description{Mutable: true, Versioned: false, VersionComparator: NumericComparator{}, KeyType: "long"}, "versioned"},
		{"comparator", Description{Mutable: true, Versioned: true, VersionComparator: fn, KeyType: "long"}, "versionComparator"},
		{"nil comparator", Description{Mutable: true, Versioned: true, KeyType: "long"}, "versionComparator"},
		{"keyType", Description{Mutable: true, Versioned: true, VersionComparator: NumericComparator{}, KeyType: "string"}, "keyType"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := base.Diff(tc.other); got != tc.want {
				t.Fatalf("Diff=%q want %q", got, tc.want)
			}
		})
	}

	withFn := Description{VersionComparator: fn}
	if d := withFn.Diff(Description{VersionComparator: fn}); d != "" {
		t.Fatalf("same func comparator should match, got %q", d)
	}
}

func TestNumericComparator(t *testing.T) {
	c := NumericComparator{}
	now := time.Now()
	cases := []struct {
		a, b any
		want int
	}{
		{int64(1), int64(2), -1},
		{int64(2), uint64(2), 0},
		{uint64(3), int8(-1), 1},
		{int64(-5), int64(-3), -1},
		{float64(1.5), int64(1), 1},
		{"a", "b", -1},
		{now, now.Add(time.Second), -1},
		{"x", int64(1), 0},
	}
	for i, tc := range cases {
		if got := c.Compare(tc.a, tc.b); got != tc.want {
			t.Fatalf("case %d: Compare(%v,%v)=%d want %d", i, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestParseAccessType(t *testing.T) {
	for in, want := range map[string]AccessType{
		"read-only":             ReadOnly,
		"READ_WRITE":            ReadWrite,
		" nonstrict-read-write": NonstrictReadWrite,
		"Transactional":         Transactional,
	} {
		got, err := ParseAccessType(in)
		if err != nil || got != want {
			t.Fatalf("ParseAccessType(%q)=%q,%v", in, got, err)
		}
	}
	if _, err := ParseAccessType("write-behind"); err == nil {
		t.Fatalf("want error for unknown access type")
	}
}

func TestPropertiesLookup(t *testing.T) {
	p := Properties{"ttl": "5m", "region.users.ttl": "30", "minimal_puts": "nope"}
	if d, err := p.Duration("orders", "ttl", time.Hour); err != nil || d != 5*time.Minute {
		t.Fatalf("global ttl: %v %v", d, err)
	}
	if d, err := p.Duration("users", "ttl", time.Hour); err != nil || d != 30*time.Second {
		t.Fatalf("region ttl: %v %v", d, err)
	}
	if d, err := p.Duration("users", "missing", time.Hour); err != nil || d != time.Hour {
		t.Fatalf("default: %v %v", d, err)
	}
	if _, err := p.Bool("", "minimal_puts", true); err == nil {
		t.Fatalf("want parse error")
	}
}

func TestFactoryLifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(FactoryOptions{Provider: memory.New()})

	if _, err := f.BuildEntityRegion(ctx, "a", nil, Description{}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("want ErrNotStarted, got %v", err)
	}
	// stop without start is a logged no-op
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	if err := f.Start(ctx, Properties{PropAccessType: "nonstrict-read-write", PropMinimalPuts: "false"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.Start(ctx, nil); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if f.DefaultAccessType() != NonstrictReadWrite || f.MinimalPutsEnabledByDefault() {
		t.Fatalf("props not applied: %s %v", f.DefaultAccessType(), f.MinimalPutsEnabledByDefault())
	}
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestFactoryStartNeedsProvider(t *testing.T) {
	f := NewFactory(FactoryOptions{})
	if err := f.Start(context.Background(), nil); err == nil {
		t.Fatalf("want error without provider")
	}
}

func TestNextTimestampMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1_000_000)
	f := NewFactory(FactoryOptions{Provider: memory.New(), Clock: func() time.Time { return fixed }})

	first := f.NextTimestamp()
	if first != 1_000_000/100 {
		t.Fatalf("first=%d", first)
	}
	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ts := f.NextTimestamp()
				mu.Lock()
				if seen[ts] {
					mu.Unlock()
					t.Errorf("duplicate timestamp %d", ts)
					return
				}
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if f.NextTimestamp() <= first {
		t.Fatalf("timestamps must increase")
	}
}

func TestRegionPutGetRemove(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	h := &recHooks{}
	f := startFactory(t, FactoryOptions{Provider: mp, Hooks: h}, nil)

	r, err := f.BuildEntityRegion(ctx, "users", nil, Description{Mutable: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.Name() != "users" || r.Kind() != EntityKind || !r.Description().Mutable {
		t.Fatalf("unexpected region metadata")
	}
	if r.Timeout() != 600 {
		t.Fatalf("Timeout=%d want 600 ticks", r.Timeout())
	}
	k := cachekey.MustEntity(int64(1), "User", "")

	if ok, err := r.Contains(ctx, k); err != nil || ok {
		t.Fatalf("Contains on empty: %v %v", ok, err)
	}
	if err := r.Put(ctx, k, []byte("ada")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := mp.Raw("entry:users:" + k.String()); !ok {
		t.Fatalf("entry not stored under region keyspace")
	}
	b, ok, err := r.Get(ctx, k)
	if err != nil || !ok || string(b) != "ada" {
		t.Fatalf("Get: %q %v %v", b, ok, err)
	}
	if err := r.Remove(ctx, k); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := r.Contains(ctx, k); ok {
		t.Fatalf("want miss after Remove")
	}
	if len(h.built) != 1 || h.built[0] != "entity:users" {
		t.Fatalf("RegionBuilt hooks: %v", h.built)
	}

	if _, _, err := r.Get(ctx, cachekey.Key{}); !errors.Is(err, cachekey.ErrInvalidKey) {
		t.Fatalf("want ErrInvalidKey, got %v", err)
	}
}

func TestRegionClearIsolatesRegions(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	h := &recHooks{}
	f := startFactory(t, FactoryOptions{Provider: mp, Hooks: h}, nil)

	users, _ := f.BuildEntityRegion(ctx, "users", nil, Description{})
	orders, _ := f.BuildEntityRegion(ctx, "orders", nil, Description{})
	k := cachekey.MustEntity("1", "User", "")
	ko := cachekey.MustEntity("1", "Order", "")
	_ = users.Put(ctx, k, []byte("u"))
	_ = orders.Put(ctx, ko, []byte("o"))

	if err := users.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if has, _ := users.Contains(ctx, k); has {
		t.Fatalf("users should be empty after Clear")
	}
	if has, _ := orders.Contains(ctx, ko); !has {
		t.Fatalf("orders must be untouched")
	}
	if len(h.healed) != 1 || h.healed[0] != "epoch_mismatch" {
		t.Fatalf("want one epoch_mismatch self-heal, got %v", h.healed)
	}
	if _, present := mp.Raw("entry:users:" + k.String()); present {
		t.Fatalf("stale entry should be deleted on read")
	}

	// writes after Clear are visible again
	_ = users.Put(ctx, k, []byte("u2"))
	if b, hit, _ := users.Get(ctx, k); !hit || string(b) != "u2" {
		t.Fatalf("Get after re-put: %q %v", b, hit)
	}
}

func TestRegionClearSharedAcrossFactories(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	gs := gen.NewLocalGenStore(0, 0)
	f1 := startFactory(t, FactoryOptions{Provider: mp, GenStore: gs}, nil)
	f2 := startFactory(t, FactoryOptions{Provider: mp, GenStore: gs}, nil)

	r1, _ := f1.BuildEntityRegion(ctx, "users", nil, Description{})
	r2, _ := f2.BuildEntityRegion(ctx, "users", nil, Description{})
	k := cachekey.MustEntity(7, "User", "")
	_ = r1.Put(ctx, k, []byte("v"))
	if has, _ := r2.Contains(ctx, k); !has {
		t.Fatalf("second process should see the entry")
	}
	_ = r2.Clear(ctx)
	if has, _ := r1.Contains(ctx, k); has {
		t.Fatalf("clear must be visible through the shared epoch store")
	}
}

func TestRegionSelfHealsCorrupt(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	h := &recHooks{}
	f := startFactory(t, FactoryOptions{Provider: mp, Hooks: h}, nil)
	r, _ := f.BuildCollectionRegion(ctx, "User.roles", nil, Description{})

	k, _ := cachekey.ForCollection(1, "User.roles", "")
	sk := "entry:User.roles:" + k.String()
	mp.Put(sk, []byte("garbage"))

	if _, ok, err := r.Get(ctx, k); ok || err != nil {
		t.Fatalf("want clean miss, got ok=%v err=%v", ok, err)
	}
	if _, present := mp.Raw(sk); present {
		t.Fatalf("corrupt entry should be deleted")
	}
	if len(h.healed) != 1 || h.healed[0] != "corrupt" {
		t.Fatalf("healed=%v", h.healed)
	}
}

func TestRegionTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	mp := memory.NewWithClock(clock)
	f := startFactory(t, FactoryOptions{Provider: mp}, Properties{"region.users.ttl": "1m"})

	users, _ := f.BuildEntityRegion(ctx, "users", nil, Description{})
	others, _ := f.BuildEntityRegion(ctx, "others", nil, Description{})
	ts, _ := f.BuildTimestampsRegion(ctx, "ts", nil)

	k := cachekey.MustEntity(1, "User", "")
	sp, _ := cachekey.ForSpace("users")
	_ = users.Put(ctx, k, []byte("v"))
	_ = others.Put(ctx, k, []byte("v"))
	_ = ts.Put(ctx, sp, []byte("1"))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	if has, _ := users.Contains(ctx, k); has {
		t.Fatalf("users entry should have expired")
	}
	if has, _ := others.Contains(ctx, k); !has {
		t.Fatalf("default ttl is 10m")
	}

	mu.Lock()
	now = now.Add(24 * time.Hour)
	mu.Unlock()
	if has, _ := ts.Contains(ctx, sp); !has {
		t.Fatalf("timestamps never expire")
	}
}

func TestRegionProviderRejects(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	mp.Reject = func(k string) bool { return strings.HasPrefix(k, "entry:big:") }
	h := &recHooks{}
	f := startFactory(t, FactoryOptions{Provider: mp, Hooks: h}, nil)
	r, _ := f.BuildEntityRegion(ctx, "big", nil, Description{})

	if err := r.Put(ctx, cachekey.MustEntity(1, "Big", ""), []byte("v")); err != nil {
		t.Fatalf("rejection is not an error: %v", err)
	}
	if len(h.rejected) != 1 {
		t.Fatalf("want ProviderSetRejected, got %v", h.rejected)
	}
}

type closeCounter struct {
	*memory.Provider
	closed int
}

func (c *closeCounter) Close(context.Context) error { c.closed++; return nil }

func TestRegionDestroyClosesOwnedProvider(t *testing.T) {
	ctx := context.Background()
	var made []*closeCounter
	f := startFactory(t, FactoryOptions{
		ProviderFor: func(_ context.Context, kind Kind, name string) (pr.Provider, error) {
			c := &closeCounter{Provider: memory.New()}
			made = append(made, c)
			return c, nil
		},
	}, nil)

	r, err := f.BuildQueryResultsRegion(ctx, "q", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := r.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if made[0].closed != 1 {
		t.Fatalf("owned provider should be closed once, got %d", made[0].closed)
	}
	if err := r.Destroy(ctx); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("second Destroy: %v", err)
	}
	k, _ := cachekey.ForQuery("select 1", "q")
	if err := r.Put(ctx, k, []byte("x")); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("Put after Destroy: %v", err)
	}
}

func TestNaturalIDUnsupported(t *testing.T) {
	f := startFactory(t, FactoryOptions{Provider: memory.New(), DisableNaturalID: true}, nil)
	_, err := f.BuildNaturalIDRegion(context.Background(), "User##NaturalId", nil, Description{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("want ErrUnsupported, got %v", err)
	}
}
