//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/unkn0wn-root/slcache"
	"github.com/unkn0wn-root/slcache/genstore"
	"github.com/unkn0wn-root/slcache/provider/redis"
)

// setupRedis starts a throwaway redis and returns a connected client.
func setupRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "start redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	})
	return client
}

func TestRedisProvider_SetGetDelTTL(t *testing.T) {
	ctx := context.Background()
	rdb := setupRedis(t)

	p, err := redis.New(redis.Config{Client: rdb})
	require.NoError(t, err)

	ok, err := p.Set(ctx, "region:query:k", []byte{0x01, 0x02}, 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	b, ok, err := p.Get(ctx, "region:query:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, b)

	ttl, err := rdb.TTL(ctx, "region:query:k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, p.Del(ctx, "region:query:k"))
	_, ok, err = p.Get(ctx, "region:query:k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = redis.New(redis.Config{})
	assert.ErrorIs(t, err, redis.ErrNilClient)
}

// Two regions over the same redis act as two replicas: an EvictAll issued by
// one is observed by the other through the shared generation.
func TestRedisRegion_EvictAllAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	rdb := setupRedis(t)

	p, err := redis.New(redis.Config{Client: rdb})
	require.NoError(t, err)
	gens := genstore.NewRedisGenStore(genstore.RedisConfig{Client: rdb, Prefix: "test"})

	newRegion := func() *slcache.DefaultRegion {
		r, err := slcache.NewRegion(slcache.RegionOptions{Name: "entity:cache.country", Provider: p, GenStore: gens, TTL: time.Minute})
		require.NoError(t, err)
		return r
	}
	a, b := newRegion(), newRegion()

	key := slcache.EntityCacheKey{EntityClass: "cache.Country", Identifier: slcache.Identifier{"ID": 1}}
	require.NoError(t, a.Put(ctx, key, &slcache.EntityCacheEntry{Class: "cache.Country", Data: map[string]any{"ID": 1, "Name": "Brazil"}}))

	has, err := b.Contains(ctx, key)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, b.EvictAll(ctx))
	g, err := gens.Snapshot(ctx, "entity:cache.country")
	require.NoError(t, err)
	assert.EqualValues(t, 1, g)

	has, err = a.Contains(ctx, key)
	require.NoError(t, err)
	assert.False(t, has)

	n, err := rdb.Exists(ctx, "region:entity:cache.country:cache.country[1]").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "stale frame removed on read")
}
