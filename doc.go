// Package regioncache is the second-level cache of an object-relational
// persistence engine: a Registry of named regions (entity, collection,
// natural-id, query results, update timestamps) built by a pluggable
// region.Factory, and access strategies that keep cached data consistent with
// the database under concurrent units of work.
//
// Components:
//   - region: Region and Factory contracts, plus a provider-backed Factory.
//   - provider: byte stores (ristretto, bigcache, redis, memory).
//   - access: the read-only, nonstrict-read-write, read-write and transactional
//     strategies.
//   - softlock: per-key tracking of in-flight writes used by read-write.
//   - cachekey: deterministic keys for entity, collection and natural-id identities.
//   - query: query result caches and the update timestamps cache.
//
// Typical wiring:
//
//	f := region.NewFactory(region.FactoryOptions{Provider: p})
//	reg, _ := regioncache.New(ctx, regioncache.Options{Factory: f, QueryCacheEnabled: true})
//	users, _ := reg.DetermineEntityAccess(ctx, regioncache.EntityModel{Name: "User", Access: "read-write"})
//
//	ts := f.NextTimestamp() // when the transaction starts
//	k, _ := users.GenerateCacheKey(id, "User", tenant)
//	if b, ok, _ := users.Get(ctx, k, ts); !ok {
//		b = loadFromDB(id)
//		_, _ = users.PutFromLoad(ctx, k, b, ts, version, reg.MinimalPuts())
//	}
package regioncache
