// Package prom exports slcache Hooks events as Prometheus counters.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/unkn0wn-root/slcache"
)

// Hooks counts cache events per region and kind ("entity", "collection",
// "query").
type Hooks struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	puts      *prometheus.CounterVec
	aborts    *prometheus.CounterVec
	selfHeals *prometheus.CounterVec
	rejected  *prometheus.CounterVec
}

var _ slcache.Hooks = (*Hooks)(nil)

// New registers the counters with reg (nil => prometheus.DefaultRegisterer)
// under namespace (empty => "slcache").
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "slcache"
	}
	f := promauto.With(reg)

	return &Hooks{
		hits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Second-level cache hits by region and kind",
		}, []string{"region", "kind"}),
		misses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Second-level cache misses by region and kind",
		}, []string{"region", "kind"}),
		puts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_puts_total",
			Help:      "Second-level cache writes by region and kind",
		}, []string{"region", "kind"}),
		aborts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_put_aborts_total",
			Help:      "Query cache puts abandoned after a failed placement",
		}, []string{"region", "reason"}), // "entity", "association", "collection"
		selfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heals_total",
			Help:      "Stored entries deleted on read",
		}, []string{"region", "reason"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_put_rejected_total",
			Help:      "Writes refused by the region backend",
		}, []string{"region"}),
	}
}

func (h *Hooks) EntityCacheHit(r string, _ slcache.EntityCacheKey) {
	h.hits.WithLabelValues(r, "entity").Inc()
}
func (h *Hooks) EntityCacheMiss(r string, _ slcache.EntityCacheKey) {
	h.misses.WithLabelValues(r, "entity").Inc()
}
func (h *Hooks) EntityCachePut(r string, _ slcache.EntityCacheKey) {
	h.puts.WithLabelValues(r, "entity").Inc()
}
func (h *Hooks) CollectionCachePut(r string, _ slcache.CollectionCacheKey) {
	h.puts.WithLabelValues(r, "collection").Inc()
}
func (h *Hooks) QueryCacheHit(r string, _ slcache.QueryCacheKey) {
	h.hits.WithLabelValues(r, "query").Inc()
}
func (h *Hooks) QueryCacheMiss(r string, _ slcache.QueryCacheKey) {
	h.misses.WithLabelValues(r, "query").Inc()
}
func (h *Hooks) QueryCachePut(r string, _ slcache.QueryCacheKey) {
	h.puts.WithLabelValues(r, "query").Inc()
}
func (h *Hooks) QueryCachePutAborted(r string, _ slcache.QueryCacheKey, reason string) {
	h.aborts.WithLabelValues(r, reason).Inc()
}
func (h *Hooks) SelfHeal(r, _ string, reason string) { h.selfHeals.WithLabelValues(r, reason).Inc() }
func (h *Hooks) RegionPutRejected(r, _ string)       { h.rejected.WithLabelValues(r).Inc() }
