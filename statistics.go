package slcache

import (
	"sync"
	"sync/atomic"
)

// RegionStats are the counters of one region.
type RegionStats struct {
	Hits, Misses, Puts uint64
}

type regionCounters struct {
	hits, misses, puts atomic.Uint64
}

// Statistics is a Hooks implementation counting hits, misses and puts per
// region and in total. Safe for concurrent use. Chain it with other hooks
// via MultiHooks.
type Statistics struct {
	NopHooks

	regions sync.Map // region name -> *regionCounters

	hits, misses, puts atomic.Uint64
	aborts, selfHeals  atomic.Uint64
}

var _ Hooks = (*Statistics)(nil)

func NewStatistics() *Statistics { return &Statistics{} }

func (s *Statistics) region(name string) *regionCounters {
	if c, ok := s.regions.Load(name); ok {
		return c.(*regionCounters)
	}
	c, _ := s.regions.LoadOrStore(name, &regionCounters{})
	return c.(*regionCounters)
}

func (s *Statistics) hit(region string) {
	s.region(region).hits.Add(1)
	s.hits.Add(1)
}

func (s *Statistics) miss(region string) {
	s.region(region).misses.Add(1)
	s.misses.Add(1)
}

func (s *Statistics) put(region string) {
	s.region(region).puts.Add(1)
	s.puts.Add(1)
}

func (s *Statistics) EntityCacheHit(region string, _ EntityCacheKey)         { s.hit(region) }
func (s *Statistics) EntityCacheMiss(region string, _ EntityCacheKey)        { s.miss(region) }
func (s *Statistics) EntityCachePut(region string, _ EntityCacheKey)         { s.put(region) }
func (s *Statistics) CollectionCachePut(region string, _ CollectionCacheKey) { s.put(region) }
func (s *Statistics) QueryCacheHit(region string, _ QueryCacheKey)           { s.hit(region) }
func (s *Statistics) QueryCacheMiss(region string, _ QueryCacheKey)          { s.miss(region) }
func (s *Statistics) QueryCachePut(region string, _ QueryCacheKey)           { s.put(region) }
func (s *Statistics) QueryCachePutAborted(string, QueryCacheKey, string)     { s.aborts.Add(1) }
func (s *Statistics) SelfHeal(string, string, string)                        { s.selfHeals.Add(1) }

func (s *Statistics) HitCount() uint64      { return s.hits.Load() }
func (s *Statistics) MissCount() uint64     { return s.misses.Load() }
func (s *Statistics) PutCount() uint64      { return s.puts.Load() }
func (s *Statistics) AbortCount() uint64    { return s.aborts.Load() }
func (s *Statistics) SelfHealCount() uint64 { return s.selfHeals.Load() }

// Region returns a snapshot of the counters of one region.
func (s *Statistics) Region(name string) RegionStats {
	c, ok := s.regions.Load(name)
	if !ok {
		return RegionStats{}
	}
	rc := c.(*regionCounters)
	return RegionStats{Hits: rc.hits.Load(), Misses: rc.misses.Load(), Puts: rc.puts.Load()}
}

// Regions returns a snapshot of every region seen so far.
func (s *Statistics) Regions() map[string]RegionStats {
	out := make(map[string]RegionStats)
	s.regions.Range(func(k, _ any) bool {
		out[k.(string)] = s.Region(k.(string))
		return true
	})
	return out
}

// Clear resets every counter.
func (s *Statistics) Clear() {
	s.regions.Range(func(k, _ any) bool {
		s.regions.Delete(k)
		return true
	})
	s.hits.Store(0)
	s.misses.Store(0)
	s.puts.Store(0)
	s.aborts.Store(0)
	s.selfHeals.Store(0)
}

// MultiHooks fans every event out to each of its members in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) EntityCacheHit(r string, k EntityCacheKey) {
	for _, h := range m {
		h.EntityCacheHit(r, k)
	}
}

func (m MultiHooks) EntityCacheMiss(r string, k EntityCacheKey) {
	for _, h := range m {
		h.EntityCacheMiss(r, k)
	}
}

func (m MultiHooks) EntityCachePut(r string, k EntityCacheKey) {
	for _, h := range m {
		h.EntityCachePut(r, k)
	}
}

func (m MultiHooks) CollectionCachePut(r string, k CollectionCacheKey) {
	for _, h := range m {
		h.CollectionCachePut(r, k)
	}
}

func (m MultiHooks) QueryCacheHit(r string, k QueryCacheKey) {
	for _, h := range m {
		h.QueryCacheHit(r, k)
	}
}

func (m MultiHooks) QueryCacheMiss(r string, k QueryCacheKey) {
	for _, h := range m {
		h.QueryCacheMiss(r, k)
	}
}

func (m MultiHooks) QueryCachePut(r string, k QueryCacheKey) {
	for _, h := range m {
		h.QueryCachePut(r, k)
	}
}

func (m MultiHooks) QueryCachePutAborted(r string, k QueryCacheKey, reason string) {
	for _, h := range m {
		h.QueryCachePutAborted(r, k, reason)
	}
}

func (m MultiHooks) SelfHeal(r, sk, reason string) {
	for _, h := range m {
		h.SelfHeal(r, sk, reason)
	}
}

func (m MultiHooks) RegionPutRejected(r, sk string) {
	for _, h := range m {
		h.RegionPutRejected(r, sk)
	}
}
