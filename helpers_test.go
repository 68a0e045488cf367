package slcache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pr "github.com/unkn0wn-root/slcache/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry

	// reject makes Set return ok=false for matching keys.
	reject func(key string) bool
	// getErr, when set, is returned by every Get.
	getErr error
	sets   int
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject != nil && p.reject(key) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	p.sets++
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) raw(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	return e.v, ok
}

func (p *memProvider) put(key string, v []byte) {
	p.mu.Lock()
	p.m[key] = memEntry{v: v}
	p.mu.Unlock()
}

// countPrefix counts stored keys starting with prefix.
func (p *memProvider) countPrefix(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// domain used across the tests

type Country struct {
	ID   int `cache:"id"`
	Name string
}

type State struct {
	ID      int `cache:"id"`
	Name    string
	Country *Country `cache:"manytoone,cached"`
	Cities  []*City  `cache:"onetomany,cached"`
}

type City struct {
	ID    int `cache:"id"`
	Name  string
	State *State `cache:"manytoone,cached"`
}

type Traveler struct {
	ID   int `cache:"id"`
	Name string
}

type Travel struct {
	ID            int `cache:"id"`
	CreatedAt     time.Time
	Traveler      *Traveler `cache:"manytoone,cached"`
	VisitedCities []*City   `cache:"manytomany,cached"`
	Notes         any       `cache:"onetomany,target=cache.City"`
}

// Flight is cached but its to-one associations are not.
type Flight struct {
	ID          int   `cache:"id"`
	Departure   *City `cache:"manytoone"`
	Destination *City `cache:"manytoone"`
}

// Attraction is not cached at all.
type Attraction struct {
	ID   int `cache:"id"`
	Name string
}

const (
	countryEntity    = "cache.Country"
	stateEntity      = "cache.State"
	cityEntity       = "cache.City"
	travelerEntity   = "cache.Traveler"
	travelEntity     = "cache.Travel"
	flightEntity     = "cache.Flight"
	attractionEntity = "cache.Attraction"
)

type fixture struct {
	provider   *memProvider
	registry   *MetadataRegistry
	persisters *Persisters
	regions    map[string]*DefaultRegion
	query      *DefaultQueryCache
	stats      *Statistics
	now        time.Time
}

func newRegistry(t *testing.T) *MetadataRegistry {
	t.Helper()
	reg := NewMetadataRegistry()
	for _, e := range []struct {
		name  string
		proto any
		opts  []EntityOption
	}{
		{countryEntity, Country{}, []EntityOption{Cached("")}},
		{stateEntity, State{}, []EntityOption{Cached("")}},
		{cityEntity, City{}, []EntityOption{Cached("")}},
		{travelerEntity, Traveler{}, []EntityOption{Cached("")}},
		{travelEntity, Travel{}, []EntityOption{Cached("")}},
		{flightEntity, Flight{}, []EntityOption{Cached("")}},
		{attractionEntity, Attraction{}, nil},
	} {
		_, err := reg.Register(e.name, e.proto, e.opts...)
		require.NoError(t, err)
	}
	return reg
}

func newFixture(t *testing.T, opts ...func(*RegionOptions)) *fixture {
	t.Helper()
	f := &fixture{
		provider: newMemProvider(),
		regions:  make(map[string]*DefaultRegion),
		stats:    NewStatistics(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.registry = newRegistry(t)

	newRegion := func(name string) (Region, error) {
		ro := RegionOptions{Name: name, Provider: f.provider, Hooks: f.stats}
		for _, o := range opts {
			o(&ro)
		}
		r, err := NewRegion(ro)
		if err != nil {
			return nil, err
		}
		f.regions[name] = r
		return r, nil
	}
	var err error
	f.persisters, err = BuildPersisters(f.registry, newRegion, PersisterOptions{Hooks: f.stats})
	require.NoError(t, err)

	qr, err := newRegion("query")
	require.NoError(t, err)
	f.query, err = NewQueryCache(Options{
		Region:     qr,
		Persisters: f.persisters,
		Metadata:   f.registry,
		Hooks:      f.stats,
		Now:        func() time.Time { return f.now },
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		for _, r := range f.regions {
			_ = r.Close(context.Background())
		}
	})
	return f
}

func (f *fixture) region(t *testing.T, name string) *DefaultRegion {
	t.Helper()
	r, ok := f.regions[name]
	require.True(t, ok, "region %q not built", name)
	return r
}

func countryQuery() *Query {
	return &Query{
		DQL: "SELECT c FROM cache.Country c",
		ResultSet: ResultSetMapping{
			RootAlias: "c",
			AliasMap:  map[string]string{"c": countryEntity},
		},
	}
}

func travelQuery() *Query {
	return &Query{
		DQL: "SELECT t, c, p FROM cache.Travel t JOIN t.visitedCities c JOIN t.traveler p",
		ResultSet: ResultSetMapping{
			RootAlias:   "t",
			AliasMap:    map[string]string{"t": travelEntity, "c": cityEntity, "p": travelerEntity},
			RelationMap: map[string]string{"c": "VisitedCities", "p": "Traveler"},
		},
	}
}
