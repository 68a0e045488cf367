package asynchook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/unkn0wn-root/slcache"
)

func TestHooks_DeliversBeforeClose(t *testing.T) {
	stats := slcache.NewStatistics()
	h := New(stats, 2, 64)

	key := slcache.EntityCacheKey{EntityClass: "Cache\\Country", Identifier: slcache.Identifier{"id": 1}}
	for i := 0; i < 10; i++ {
		h.EntityCacheHit("entity:country", key)
	}
	h.EntityCacheMiss("entity:country", key)
	h.Close()

	assert.EqualValues(t, 10, stats.HitCount())
	assert.EqualValues(t, 1, stats.MissCount())
	assert.Equal(t, slcache.RegionStats{Hits: 10, Misses: 1}, stats.Region("entity:country"))
}

func TestHooks_DropsAfterClose(t *testing.T) {
	stats := slcache.NewStatistics()
	h := New(stats, 1, 4)
	h.Close()
	h.Close() // idempotent

	h.QueryCacheHit("query", slcache.QueryCacheKey{})
	assert.Zero(t, stats.HitCount())
	assert.EqualValues(t, 1, h.Dropped())
}
