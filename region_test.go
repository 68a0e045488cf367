package slcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	c "github.com/unkn0wn-root/slcache/codec"
	gen "github.com/unkn0wn-root/slcache/genstore"
	"github.com/unkn0wn-root/slcache/internal/wire"
)

func newTestRegion(t *testing.T, name string, mp *memProvider, opt func(*RegionOptions)) *DefaultRegion {
	t.Helper()
	opts := RegionOptions{Name: name, Provider: mp}
	if opt != nil {
		opt(&opts)
	}
	r, err := NewRegion(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func brazilKey() EntityCacheKey {
	return EntityCacheKey{EntityClass: countryEntity, Identifier: Identifier{"id": 1}}
}

func brazilEntry() *EntityCacheEntry {
	return &EntityCacheEntry{Class: countryEntity, Data: map[string]any{"ID": 1, "Name": "Brazil"}}
}

func TestNewRegion_Validation(t *testing.T) {
	_, err := NewRegion(RegionOptions{Provider: newMemProvider()})
	assert.Error(t, err)
	_, err = NewRegion(RegionOptions{Name: "x"})
	assert.Error(t, err)
}

func TestRegion_PutGetEvict(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	r := newTestRegion(t, "entity:cache.country", mp, nil)

	_, ok, err := r.Get(ctx, brazilKey())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Put(ctx, brazilKey(), brazilEntry()))
	_, stored := mp.raw("region:entity:cache.country:cache.country[1]")
	assert.True(t, stored)

	e, ok, err := r.Get(ctx, brazilKey())
	require.NoError(t, err)
	require.True(t, ok)
	ee, isEntity := e.(*EntityCacheEntry)
	require.True(t, isEntity)
	assert.Equal(t, countryEntity, ee.Class)
	assert.Equal(t, "Brazil", ee.Data["Name"])
	assert.EqualValues(t, 1, ee.Data["ID"])

	has, err := r.Contains(ctx, brazilKey())
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 1, r.Size(ctx))

	require.NoError(t, r.Evict(ctx, brazilKey()))
	has, err = r.Contains(ctx, brazilKey())
	require.NoError(t, err)
	assert.False(t, has)
	assert.Zero(t, r.Size(ctx))
}

func TestRegion_EvictAllBumpsGeneration(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	gs := gen.NewLocalGenStore(0, 0)
	defer gs.Close(ctx)

	writer := newTestRegion(t, "entity:cache.country", mp, func(o *RegionOptions) { o.GenStore = gs })
	// a second instance sharing provider and generations, as another replica would
	other := newTestRegion(t, "entity:cache.country", mp, func(o *RegionOptions) { o.GenStore = gs })

	require.NoError(t, writer.Put(ctx, brazilKey(), brazilEntry()))
	_, ok, err := other.Get(ctx, brazilKey())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, other.EvictAll(ctx))

	// other never wrote the key, so the frame is still stored but stale
	_, stored := mp.raw("region:entity:cache.country:cache.country[1]")
	assert.True(t, stored)

	stats := NewStatistics()
	writer.hooks = stats
	_, ok, err = writer.Get(ctx, brazilKey())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, stats.SelfHealCount())
	_, stored = mp.raw("region:entity:cache.country:cache.country[1]")
	assert.False(t, stored, "stale frame deleted on read")
}

func TestRegion_SelfHealsCorruptFrame(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	stats := NewStatistics()
	r := newTestRegion(t, "entity:cache.country", mp, func(o *RegionOptions) { o.Hooks = stats })

	sk := "region:entity:cache.country:cache.country[1]"
	mp.put(sk, []byte("not a frame"))

	_, ok, err := r.Get(ctx, brazilKey())
	require.NoError(t, err)
	assert.False(t, ok)
	_, stored := mp.raw(sk)
	assert.False(t, stored)

	// valid frame, undecodable payload
	mp.put(sk, wire.Encode(byte(KindEntity), 0, []byte{0xc1}))
	_, ok, err = r.Get(ctx, brazilKey())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 2, stats.SelfHealCount())
}

func TestRegion_KindMismatch(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	r := newTestRegion(t, "entity:cache.country", mp, nil)

	payload, err := c.Msgpack[Envelope]{}.Encode(Envelope{Kind: KindEntity, Entity: brazilEntry()})
	require.NoError(t, err)
	mp.put("region:entity:cache.country:cache.country[1]", wire.Encode(byte(KindQuery), 0, payload))

	_, ok, err := r.Get(ctx, brazilKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegion_RejectedWriteIsAnError(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.reject = func(string) bool { return true }
	r := newTestRegion(t, "entity:cache.country", mp, nil)

	err := r.Put(ctx, brazilKey(), brazilEntry())
	require.Error(t, err)
	var rae *RegionAccessError
	require.ErrorAs(t, err, &rae)
	assert.Equal(t, "put", rae.Op)
	assert.ErrorIs(t, err, ErrWriteRejected)
}

func TestRegion_BackendErrorPropagates(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.getErr = errors.New("connection refused")
	r := newTestRegion(t, "entity:cache.country", mp, nil)

	_, _, err := r.Get(ctx, brazilKey())
	var rae *RegionAccessError
	require.ErrorAs(t, err, &rae)
	assert.Equal(t, "get", rae.Op)
	assert.Equal(t, "cache.country[1]", rae.Key)
}

func TestRegion_Entries(t *testing.T) {
	ctx := context.Background()
	r := newTestRegion(t, "entity:cache.country", newMemProvider(), nil)

	require.NoError(t, r.Put(ctx, brazilKey(), brazilEntry()))
	require.NoError(t, r.Put(ctx, EntityCacheKey{EntityClass: countryEntity, Identifier: Identifier{"id": 2}},
		&EntityCacheEntry{Class: countryEntity, Data: map[string]any{"ID": 2, "Name": "Germany"}}))

	names := map[string]any{}
	for hash, e := range r.Entries(ctx) {
		names[hash] = e.(*EntityCacheEntry).Data["Name"]
	}
	assert.Equal(t, map[string]any{"cache.country[1]": "Brazil", "cache.country[2]": "Germany"}, names)

	require.NoError(t, r.EvictAll(ctx))
	assert.Zero(t, r.Size(ctx))
}

func TestRegion_Codecs(t *testing.T) {
	ctx := context.Background()
	codecs := map[string]c.Codec[Envelope]{
		"json":    c.JSON[Envelope]{},
		"cbor":    c.MustCBOR[Envelope](true),
		"msgpack": c.Msgpack[Envelope]{},
		"proto":   c.NewProtoStruct[Envelope](),
		"limited": c.LimitCodec[Envelope]{Inner: c.Msgpack[Envelope]{}, MaxDecode: 1 << 16},
	}
	for name, cd := range codecs {
		t.Run(name, func(t *testing.T) {
			r := newTestRegion(t, "query", newMemProvider(), func(o *RegionOptions) { o.Codec = cd })
			key := QueryCacheKey{Signature: "s"}
			entry := &QueryCacheEntry{Rows: []RowEntry{{
				Identifier: Identifier{"id": 1},
				Associations: map[string]AssociationRef{
					"VisitedCities": {TargetEntity: cityEntity, Type: ManyToMany, List: []Identifier{{"id": 3}, {"id": 1}}},
				},
			}}}
			require.NoError(t, r.Put(ctx, key, entry))

			e, ok, err := r.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			qe := e.(*QueryCacheEntry)
			require.Len(t, qe.Rows, 1)
			ref := qe.Rows[0].Associations["VisitedCities"]
			assert.Equal(t, ManyToMany, ref.Type)
			require.Len(t, ref.List, 2)
			assert.Equal(t, "cache.city[3]", EntityCacheKey{EntityClass: cityEntity, Identifier: ref.List[0]}.Hash())
		})
	}
}
