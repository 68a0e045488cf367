package slcache

import (
	"context"
	"fmt"
	"sync"
)

// EntityPersister gives the query cache access to one entity type.
type EntityPersister interface {
	Metadata() *EntityMetadata
}

// CachedPersister is an EntityPersister whose entities live in a cache region.
type CachedPersister interface {
	EntityPersister
	CacheRegion() Region
	// PutEntityCache places entity in the region under key. false means the
	// entity could not be placed; it is never a reason to fail the caller.
	PutEntityCache(ctx context.Context, entity any, key EntityCacheKey) bool
}

// CachedCollectionPersister stores the member list of one to-many association.
type CachedCollectionPersister interface {
	CacheRegion() Region
	PutCollectionCache(ctx context.Context, key CollectionCacheKey, members []Identifier) bool
}

// PersisterRegistry resolves persisters by entity name.
type PersisterRegistry interface {
	EntityPersister(entity string) (EntityPersister, error)
	// CollectionPersister returns (nil, false) when the association has no
	// collection region.
	CollectionPersister(entity, association string) (CachedCollectionPersister, bool)
}

// BasicPersister is the persister of an entity that is not cached.
type BasicPersister struct {
	meta *EntityMetadata
}

func NewBasicPersister(meta *EntityMetadata) *BasicPersister { return &BasicPersister{meta: meta} }

func (p *BasicPersister) Metadata() *EntityMetadata { return p.meta }

// PersisterOptions are shared by the region-backed persisters.
type PersisterOptions struct {
	Logger Logger
	Hooks  Hooks
}

// RegionPersister caches entities of one type in a Region through an
// EntityHydrator.
type RegionPersister struct {
	meta     *EntityMetadata
	region   Region
	hydrator *EntityHydrator
	log      Logger
	hooks    Hooks
}

var _ CachedPersister = (*RegionPersister)(nil)

func NewRegionPersister(meta *EntityMetadata, region Region, hydrator *EntityHydrator, opts PersisterOptions) *RegionPersister {
	return &RegionPersister{
		meta:     meta,
		region:   region,
		hydrator: hydrator,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
}

func (p *RegionPersister) Metadata() *EntityMetadata { return p.meta }
func (p *RegionPersister) CacheRegion() Region       { return p.region }

func (p *RegionPersister) PutEntityCache(ctx context.Context, entity any, key EntityCacheKey) bool {
	entry, err := p.hydrator.BuildCacheEntry(p.meta, key, entity)
	if err != nil {
		p.log.Warn("entity cache entry build failed", Fields{"region": p.region.Name(), "key": key.Hash(), "err": err})
		return false
	}
	if err := p.region.Put(ctx, key, entry); err != nil {
		p.log.Warn("entity cache put failed", Fields{"region": p.region.Name(), "key": key.Hash(), "err": err})
		return false
	}
	p.hooks.EntityCachePut(p.region.Name(), key)
	return true
}

// CollectionRegionPersister caches member lists of one association.
type CollectionRegionPersister struct {
	region Region
	log    Logger
	hooks  Hooks
}

var _ CachedCollectionPersister = (*CollectionRegionPersister)(nil)

func NewCollectionRegionPersister(region Region, opts PersisterOptions) *CollectionRegionPersister {
	return &CollectionRegionPersister{
		region: region,
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:  coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
}

func (p *CollectionRegionPersister) CacheRegion() Region { return p.region }

func (p *CollectionRegionPersister) PutCollectionCache(ctx context.Context, key CollectionCacheKey, members []Identifier) bool {
	if members == nil {
		members = []Identifier{}
	}
	if err := p.region.Put(ctx, key, &CollectionCacheEntry{Identifiers: members}); err != nil {
		p.log.Warn("collection cache put failed", Fields{"region": p.region.Name(), "key": key.Hash(), "err": err})
		return false
	}
	p.hooks.CollectionCachePut(p.region.Name(), key)
	return true
}

// Persisters is a concurrency-safe PersisterRegistry.
type Persisters struct {
	mu          sync.RWMutex
	entities    map[string]EntityPersister
	collections map[string]CachedCollectionPersister
}

var _ PersisterRegistry = (*Persisters)(nil)

func NewPersisters() *Persisters {
	return &Persisters{
		entities:    make(map[string]EntityPersister),
		collections: make(map[string]CachedCollectionPersister),
	}
}

func (ps *Persisters) AddEntity(p EntityPersister) {
	ps.mu.Lock()
	ps.entities[p.Metadata().Name] = p
	ps.mu.Unlock()
}

func (ps *Persisters) AddCollection(entity, association string, p CachedCollectionPersister) {
	ps.mu.Lock()
	ps.collections[entity+"#"+association] = p
	ps.mu.Unlock()
}

func (ps *Persisters) EntityPersister(entity string) (EntityPersister, error) {
	ps.mu.RLock()
	p, ok := ps.entities[entity]
	ps.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no persister for %q", ErrUnknownEntity, entity)
	}
	return p, nil
}

func (ps *Persisters) CollectionPersister(entity, association string) (CachedCollectionPersister, bool) {
	ps.mu.RLock()
	p, ok := ps.collections[entity+"#"+association]
	ps.mu.RUnlock()
	return p, ok
}

// RegionFactory returns the region with the given name. It is called once per
// distinct name.
type RegionFactory func(name string) (Region, error)

// BuildPersisters creates a persister for every registered entity: region-backed
// for cached entities, basic otherwise, plus a collection persister for every
// cached to-many association of a cached entity. Entities sharing a region
// name share the Region instance.
func BuildPersisters(reg *MetadataRegistry, newRegion RegionFactory, opts PersisterOptions) (*Persisters, error) {
	ps := NewPersisters()
	hydrator := NewEntityHydrator(reg)
	regions := make(map[string]Region)
	region := func(name string) (Region, error) {
		if r, ok := regions[name]; ok {
			return r, nil
		}
		r, err := newRegion(name)
		if err != nil {
			return nil, fmt.Errorf("slcache: region %q: %w", name, err)
		}
		regions[name] = r
		return r, nil
	}

	for _, meta := range reg.All() {
		if !meta.IsCached() {
			ps.AddEntity(NewBasicPersister(meta))
			continue
		}
		r, err := region(meta.EntityRegionName())
		if err != nil {
			return nil, err
		}
		ps.AddEntity(NewRegionPersister(meta, r, hydrator, opts))

		for _, name := range meta.AssociationNames() {
			assoc := meta.Associations[name]
			if !assoc.Type.IsToMany() || assoc.Cache == nil {
				continue
			}
			cr, err := region(meta.CollectionRegionName(assoc))
			if err != nil {
				return nil, err
			}
			ps.AddCollection(meta.Name, name, NewCollectionRegionPersister(cr, opts))
		}
	}
	return ps, nil
}
