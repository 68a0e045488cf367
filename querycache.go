package slcache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// QueryCache caches query results as identity pointers into entity and
// collection regions.
type QueryCache interface {
	// Get returns the hydrated rows of a stored result. Any missing entity
	// or association turns the whole read into a miss: (nil, false, nil).
	Get(ctx context.Context, key QueryCacheKey, q *Query) ([]any, bool, error)
	// Put stores result (root entities in query order). A placement failure
	// anywhere in the cascade abandons the put and reports (false, nil).
	Put(ctx context.Context, key QueryCacheKey, q *Query, result []any) (bool, error)
	// Clear evicts the whole query region.
	Clear(ctx context.Context) error
	Region() Region
}

// Options configure DefaultQueryCache. Region, Persisters and Metadata are
// required.
type Options struct {
	Region     Region
	Persisters PersisterRegistry
	Metadata   MetadataProvider

	Validator QueryCacheValidator // nil => TimestampValidator using Now
	Logger    Logger
	Hooks     Hooks
	Now       func() time.Time // nil => time.Now
	Hints     *Hints           // nil => DefaultHints
}

type DefaultQueryCache struct {
	region     Region
	persisters PersisterRegistry
	metadata   MetadataProvider
	hydrator   *EntityHydrator
	validator  QueryCacheValidator
	log        Logger
	hooks      Hooks
	now        func() time.Time
	hints      Hints
}

var _ QueryCache = (*DefaultQueryCache)(nil)

func NewQueryCache(opts Options) (*DefaultQueryCache, error) {
	if opts.Region == nil {
		return nil, errors.New("slcache: query region is required")
	}
	if opts.Persisters == nil {
		return nil, errors.New("slcache: persister registry is required")
	}
	if opts.Metadata == nil {
		return nil, errors.New("slcache: metadata provider is required")
	}

	qc := &DefaultQueryCache{
		region:     opts.Region,
		persisters: opts.Persisters,
		metadata:   opts.Metadata,
		hydrator:   NewEntityHydrator(opts.Metadata),
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		now:        systemNow,
		hints:      DefaultHints,
	}
	if opts.Now != nil {
		qc.now = opts.Now
	}
	if opts.Hints != nil {
		qc.hints = *opts.Hints
	}
	if opts.Validator != nil {
		qc.validator = opts.Validator
	} else {
		qc.validator = TimestampValidator{Now: qc.now}
	}
	return qc, nil
}

func (qc *DefaultQueryCache) Region() Region { return qc.region }

func (qc *DefaultQueryCache) Clear(ctx context.Context) error { return qc.region.EvictAll(ctx) }

func (qc *DefaultQueryCache) Get(ctx context.Context, key QueryCacheKey, q *Query) ([]any, bool, error) {
	rname := qc.region.Name()

	e, ok, err := qc.region.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		qc.hooks.QueryCacheMiss(rname, key)
		return nil, false, nil
	}
	entry, isQuery := e.(*QueryCacheEntry)
	if !isQuery || !qc.validator.IsValid(entry, q) {
		if err := qc.region.Evict(ctx, key); err != nil {
			return nil, false, err
		}
		qc.hooks.QueryCacheMiss(rname, key)
		return nil, false, nil
	}

	if q.ResultSet.HasScalars() {
		return nil, false, &UncacheableResultError{Reason: "scalar projections are not supported"}
	}
	root, err := qc.rootPersister(&q.ResultSet)
	if err != nil {
		return nil, false, err
	}
	meta := root.Metadata()
	hasRelation := len(q.ResultSet.Relations()) > 0

	result := make([]any, 0, len(entry.Rows))
	for _, row := range entry.Rows {
		obj, ok, err := qc.loadEntity(ctx, root, EntityCacheKey{EntityClass: meta.RootEntityName, Identifier: row.Identifier})
		if err != nil || !ok {
			return qc.abortGet(key, err)
		}
		if hasRelation {
			ok, err = qc.resolveAssociations(ctx, meta, obj, row)
			if err != nil || !ok {
				return qc.abortGet(key, err)
			}
		}
		result = append(result, obj)
	}

	qc.hooks.QueryCacheHit(rname, key)
	return result, true, nil
}

func (qc *DefaultQueryCache) abortGet(key QueryCacheKey, err error) ([]any, bool, error) {
	if err == nil {
		qc.hooks.QueryCacheMiss(qc.region.Name(), key)
	}
	return nil, false, err
}

// resolveAssociations hydrates one level of associations of obj from their
// entity regions. ok=false when any referenced entity is missing.
func (qc *DefaultQueryCache) resolveAssociations(ctx context.Context, meta *EntityMetadata, obj any, row RowEntry) (bool, error) {
	v := reflect.ValueOf(obj).Elem()

	names := make([]string, 0, len(row.Associations))
	for name := range row.Associations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := row.Associations[name]
		assoc, ok := meta.Associations[name]
		if !ok {
			// mapping changed since the entry was stored
			return false, nil
		}
		p, err := qc.cachedPersister(ref.TargetEntity)
		if err != nil {
			return false, err
		}
		tm := p.Metadata()

		if ref.Type.IsToOne() {
			target, ok, err := qc.loadEntity(ctx, p, EntityCacheKey{EntityClass: tm.RootEntityName, Identifier: ref.Identifier})
			if err != nil || !ok {
				return false, err
			}
			if err := assoc.setTarget(v, reflect.ValueOf(target)); err != nil {
				return false, err
			}
			continue
		}

		// an empty list still marks the collection as loaded
		members := make([]reflect.Value, 0, len(ref.List))
		for _, id := range ref.List {
			m, ok, err := qc.loadEntity(ctx, p, EntityCacheKey{EntityClass: tm.RootEntityName, Identifier: id})
			if err != nil || !ok {
				return false, err
			}
			members = append(members, reflect.ValueOf(m))
		}
		// a fully populated slice needs no further fetch
		if err := assoc.setList(v, members); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (qc *DefaultQueryCache) loadEntity(ctx context.Context, p CachedPersister, key EntityCacheKey) (any, bool, error) {
	region := p.CacheRegion()
	e, ok, err := region.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	entry, isEntity := e.(*EntityCacheEntry)
	if !ok || !isEntity {
		qc.hooks.EntityCacheMiss(region.Name(), key)
		return nil, false, nil
	}
	qc.hooks.EntityCacheHit(region.Name(), key)

	obj, err := qc.hydrator.LoadCacheEntry(p.Metadata(), key, entry, nil, qc.hints)
	if err != nil {
		// unreadable entry; the next put rewrites it
		qc.log.Warn("entity cache entry could not be loaded", Fields{"region": region.Name(), "key": key.Hash(), "err": err})
		return nil, false, nil
	}
	return obj, true, nil
}

func (qc *DefaultQueryCache) Put(ctx context.Context, key QueryCacheKey, q *Query, result []any) (bool, error) {
	rsm := &q.ResultSet
	if rsm.HasScalars() {
		return false, &UncacheableResultError{Reason: "scalar projections are not supported"}
	}
	root, err := qc.rootPersister(rsm)
	if err != nil {
		return false, err
	}
	meta := root.Metadata()

	relations, err := qc.relations(meta, rsm.Relations())
	if err != nil {
		return false, err
	}

	rows := make([]RowEntry, 0, len(result))
	for _, entity := range result {
		id, err := meta.IdentifierOf(entity)
		if err != nil {
			return false, err
		}
		row := RowEntry{Identifier: id, Associations: map[string]AssociationRef{}}

		if !qc.place(ctx, root, entity, EntityCacheKey{EntityClass: meta.RootEntityName, Identifier: id}) {
			return qc.abortPut(key, "entity")
		}

		v := reflect.ValueOf(entity)
		if v.Kind() == reflect.Pointer {
			v = v.Elem()
		}
		for _, rel := range relations {
			val, set := rel.assoc.value(v)
			if !set {
				continue
			}
			tm := rel.target.Metadata()

			if rel.assoc.Type.IsToOne() {
				tid, err := tm.IdentifierOf(val.Interface())
				if err != nil {
					return false, err
				}
				if !qc.place(ctx, rel.target, val.Interface(), EntityCacheKey{EntityClass: tm.RootEntityName, Identifier: tid}) {
					return qc.abortPut(key, "association")
				}
				row.Associations[rel.assoc.Field] = AssociationRef{
					TargetEntity: tm.Name,
					Type:         rel.assoc.Type,
					Identifier:   tid,
				}
				continue
			}

			// only slices are treated as collections
			if val.Kind() != reflect.Slice {
				continue
			}
			list := make([]Identifier, 0, val.Len())
			for i := 0; i < val.Len(); i++ {
				item := val.Index(i).Interface()
				tid, err := tm.IdentifierOf(item)
				if err != nil {
					return false, err
				}
				if !qc.place(ctx, rel.target, item, EntityCacheKey{EntityClass: tm.RootEntityName, Identifier: tid}) {
					return qc.abortPut(key, "association")
				}
				list = append(list, tid)
			}
			if cp, ok := qc.persisters.CollectionPersister(meta.Name, rel.assoc.Field); ok {
				ck := CollectionCacheKey{EntityClass: meta.RootEntityName, Association: rel.assoc.Field, OwnerIdentifier: id}
				if !cp.PutCollectionCache(ctx, ck, list) {
					return qc.abortPut(key, "collection")
				}
			}
			row.Associations[rel.assoc.Field] = AssociationRef{
				TargetEntity: tm.Name,
				Type:         rel.assoc.Type,
				List:         list,
			}
		}
		rows = append(rows, row)
	}

	createdAt := key.CreatedAt
	if createdAt.IsZero() {
		createdAt = qc.now()
	}
	if err := qc.region.Put(ctx, key, &QueryCacheEntry{Rows: rows, CreatedAt: createdAt}); err != nil {
		return false, err
	}
	qc.hooks.QueryCachePut(qc.region.Name(), key)
	return true, nil
}

// place makes sure entity is present in its region.
func (qc *DefaultQueryCache) place(ctx context.Context, p CachedPersister, entity any, key EntityCacheKey) bool {
	present, err := p.CacheRegion().Contains(ctx, key)
	if err != nil {
		qc.log.Warn("entity region lookup failed, rewriting entry", Fields{"region": p.CacheRegion().Name(), "key": key.Hash(), "err": err})
	}
	if present {
		return true
	}
	return p.PutEntityCache(ctx, entity, key)
}

func (qc *DefaultQueryCache) abortPut(key QueryCacheKey, reason string) (bool, error) {
	qc.hooks.QueryCachePutAborted(qc.region.Name(), key, reason)
	qc.log.Debug("query cache put abandoned", Fields{"region": qc.region.Name(), "key": key.Hash(), "reason": reason})
	return false, nil
}

type relation struct {
	assoc  *AssociationMapping
	target CachedPersister
}

// relations resolves and validates every projected association before any
// region is written, so configuration errors never leave partial state.
func (qc *DefaultQueryCache) relations(meta *EntityMetadata, names []string) ([]relation, error) {
	if err := qc.checkToOne(meta); err != nil {
		return nil, err
	}
	out := make([]relation, 0, len(names))
	for _, name := range names {
		assoc, ok := meta.Associations[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s#%s", ErrUnknownAssociation, meta.Name, name)
		}
		if assoc.Cache == nil {
			return nil, &UncacheableAssociationError{Entity: meta.Name, Association: name}
		}
		if assoc.TargetEntity == "" {
			return nil, fmt.Errorf("%w: target of %s#%s is not registered", ErrUnknownEntity, meta.Name, name)
		}
		target, err := qc.cachedPersister(assoc.TargetEntity)
		if err != nil {
			return nil, err
		}
		if err := qc.checkToOne(target.Metadata()); err != nil {
			return nil, err
		}
		out = append(out, relation{assoc: assoc, target: target})
	}
	return out, nil
}

// checkToOne reports the first to-one association of meta without cache
// configuration; such an entity cannot be flattened into an entry.
func (qc *DefaultQueryCache) checkToOne(meta *EntityMetadata) error {
	for _, name := range meta.AssociationNames() {
		if a := meta.Associations[name]; a.Type.IsToOne() && a.Cache == nil {
			return &UncacheableAssociationError{Entity: meta.Name, Association: name}
		}
	}
	return nil
}

func (qc *DefaultQueryCache) rootPersister(rsm *ResultSetMapping) (CachedPersister, error) {
	name, ok := rsm.RootEntity()
	if !ok {
		return nil, &UncacheableResultError{Reason: "result has no root entity"}
	}
	return qc.cachedPersister(name)
}

func (qc *DefaultQueryCache) cachedPersister(entity string) (CachedPersister, error) {
	p, err := qc.persisters.EntityPersister(entity)
	if err != nil {
		return nil, err
	}
	cp, ok := p.(CachedPersister)
	if !ok {
		return nil, &NonCacheableEntityError{Entity: entity}
	}
	return cp, nil
}

// GetAs is Get with the rows asserted to T (usually a pointer to the root
// entity type).
func GetAs[T any](ctx context.Context, qc QueryCache, key QueryCacheKey, q *Query) ([]T, bool, error) {
	rows, ok, err := qc.Get(ctx, key, q)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := make([]T, len(rows))
	for i, r := range rows {
		t, isT := r.(T)
		if !isT {
			var zero T
			return nil, false, fmt.Errorf("slcache: row %d is %T, not %T", i, r, zero)
		}
		out[i] = t
	}
	return out, true, nil
}
