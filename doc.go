// Package slcache implements a second-level object cache for an object-relational
// mapper: query results and the entities and collections that compose them are
// cached in independent, named regions so repeated reads skip the database while
// keeping object identity intact.
//
// Components:
//   - CacheKey: EntityCacheKey, CollectionCacheKey, QueryCacheKey. Each hashes to a
//     deterministic, backend-safe string.
//   - Entry: EntityCacheEntry (flat scalars + identifier references),
//     CollectionCacheEntry (ordered member identifiers), QueryCacheEntry (ordered
//     row descriptors pointing into entity regions).
//   - Region: named store of entries. DefaultRegion frames entries with a codec and
//     keeps them in a provider (bigcache, ristretto, redis).
//   - EntityHydrator: live entity <-> EntityCacheEntry.
//   - QueryCache: decomposes results into entity/collection/query entries on Put and
//     reassembles them on Get.
//
// Read path:
//
//	rows, ok, err := qc.Get(ctx, key, q)
//	if err != nil || !ok {
//	    rows = runQuery(q)              // fallback
//	    _, _ = qc.Put(ctx, key, q, rows) // best effort
//	}
//
// Query entries store identifiers only. Evicting any referenced entity turns the
// next Get of every query that referenced it into a miss; a partially resolvable
// result is never returned.
package slcache
