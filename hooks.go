package slcache

// Hooks lightweight callbacks for cache statistics and high-signal events.
// Implementations MUST be cheap and non-blocking: they are called on hot paths
// and never influence control flow.
type Hooks interface {
	EntityCacheHit(region string, key EntityCacheKey)
	EntityCacheMiss(region string, key EntityCacheKey)
	EntityCachePut(region string, key EntityCacheKey)

	CollectionCachePut(region string, key CollectionCacheKey)

	QueryCacheHit(region string, key QueryCacheKey)
	QueryCacheMiss(region string, key QueryCacheKey)
	QueryCachePut(region string, key QueryCacheKey)

	// A query put was abandoned because a referenced entity or collection
	// could not be placed. reason ∈ {"entity", "association", "collection"}
	QueryCachePutAborted(region string, key QueryCacheKey, reason string)

	// A stored frame was deleted on read.
	// reason ∈ {"corrupt", "stale_generation", "decode", "kind_mismatch"}
	SelfHeal(region, storageKey, reason string)

	// The backend returned ok=false on a write.
	RegionPutRejected(region, storageKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) EntityCacheHit(string, EntityCacheKey)              {}
func (NopHooks) EntityCacheMiss(string, EntityCacheKey)             {}
func (NopHooks) EntityCachePut(string, EntityCacheKey)              {}
func (NopHooks) CollectionCachePut(string, CollectionCacheKey)      {}
func (NopHooks) QueryCacheHit(string, QueryCacheKey)                {}
func (NopHooks) QueryCacheMiss(string, QueryCacheKey)               {}
func (NopHooks) QueryCachePut(string, QueryCacheKey)                {}
func (NopHooks) QueryCachePutAborted(string, QueryCacheKey, string) {}
func (NopHooks) SelfHeal(string, string, string)                    {}
func (NopHooks) RegionPutRejected(string, string)                   {}
