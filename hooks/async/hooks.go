// Package asynchook moves Hooks delivery off the cache hot path.
//
//	stats := slcache.NewStatistics()
//	raw := slcache.MultiHooks{stats, sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})}
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	qc, _ := slcache.NewQueryCache(slcache.Options{
//	    Region:     queryRegion,
//	    Persisters: persisters,
//	    Metadata:   registry,
//	    Hooks:      hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full and after Close.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/slcache"
)

type Hooks struct {
	inner   slcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ slcache.Hooks = (*Hooks)(nil)

func New(inner slcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to be delivered.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) EntityCacheHit(r string, k slcache.EntityCacheKey) {
	h.try(func() { h.inner.EntityCacheHit(r, k) })
}
func (h *Hooks) EntityCacheMiss(r string, k slcache.EntityCacheKey) {
	h.try(func() { h.inner.EntityCacheMiss(r, k) })
}
func (h *Hooks) EntityCachePut(r string, k slcache.EntityCacheKey) {
	h.try(func() { h.inner.EntityCachePut(r, k) })
}
func (h *Hooks) CollectionCachePut(r string, k slcache.CollectionCacheKey) {
	h.try(func() { h.inner.CollectionCachePut(r, k) })
}
func (h *Hooks) QueryCacheHit(r string, k slcache.QueryCacheKey) {
	h.try(func() { h.inner.QueryCacheHit(r, k) })
}
func (h *Hooks) QueryCacheMiss(r string, k slcache.QueryCacheKey) {
	h.try(func() { h.inner.QueryCacheMiss(r, k) })
}
func (h *Hooks) QueryCachePut(r string, k slcache.QueryCacheKey) {
	h.try(func() { h.inner.QueryCachePut(r, k) })
}
func (h *Hooks) QueryCachePutAborted(r string, k slcache.QueryCacheKey, reason string) {
	h.try(func() { h.inner.QueryCachePutAborted(r, k, reason) })
}
func (h *Hooks) SelfHeal(r, sk, reason string) { h.try(func() { h.inner.SelfHeal(r, sk, reason) }) }
func (h *Hooks) RegionPutRejected(r, sk string) {
	h.try(func() { h.inner.RegionPutRejected(r, sk) })
}
