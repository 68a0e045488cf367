package slcache

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/unkn0wn-root/slcache/internal/keyutil"
)

// AssociationType is a bit set of association kinds.
type AssociationType uint8

const (
	OneToOne AssociationType = 1 << iota
	ManyToOne
	OneToMany
	ManyToMany

	ToOne  = OneToOne | ManyToOne
	ToMany = OneToMany | ManyToMany
)

func (t AssociationType) IsToOne() bool  { return t&ToOne != 0 }
func (t AssociationType) IsToMany() bool { return t&ToMany != 0 }

func (t AssociationType) String() string {
	switch t {
	case OneToOne:
		return "onetoone"
	case ManyToOne:
		return "manytoone"
	case OneToMany:
		return "onetomany"
	case ManyToMany:
		return "manytomany"
	default:
		return fmt.Sprintf("AssociationType(%d)", uint8(t))
	}
}

// CacheConfig marks an entity or association as second-level cached.
// An empty Region selects the default region name.
type CacheConfig struct {
	Region string
}

type AssociationMapping struct {
	Field        string
	TargetEntity string       // resolved once the target type is registered
	TargetType   reflect.Type // struct type of the target
	Type         AssociationType
	Cache        *CacheConfig // nil => not cache-enabled

	index []int
}

// EntityMetadata describes how one Go struct type maps to a cacheable entity.
type EntityMetadata struct {
	Name           string
	RootEntityName string
	Type           reflect.Type // struct type
	Identifier     []string     // identifier field names, declaration order
	Fields         []string     // scalar field names including identifiers
	Associations   map[string]*AssociationMapping
	Cache          *CacheConfig // nil => entity is not cached

	fieldIndex map[string][]int
}

func (m *EntityMetadata) IsCached() bool { return m.Cache != nil }

// AssociationNames returns association field names in sorted order.
func (m *EntityMetadata) AssociationNames() []string {
	names := make([]string, 0, len(m.Associations))
	for n := range m.Associations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EntityRegionName is the region used for this entity when none is configured.
func (m *EntityMetadata) EntityRegionName() string {
	if m.Cache != nil && m.Cache.Region != "" {
		return m.Cache.Region
	}
	return "entity:" + keyutil.ClassName(m.RootEntityName)
}

// CollectionRegionName is the region used for a cached to-many association.
func (m *EntityMetadata) CollectionRegionName(assoc *AssociationMapping) string {
	if assoc.Cache != nil && assoc.Cache.Region != "" {
		return assoc.Cache.Region
	}
	return "collection:" + keyutil.ClassName(m.RootEntityName) + "." + assoc.Field
}

// MetadataProvider resolves entity metadata by entity name.
type MetadataProvider interface {
	Metadata(entity string) (*EntityMetadata, error)
}

// EntityOption adjusts metadata at registration.
type EntityOption func(*EntityMetadata)

// Cached enables second-level caching for the entity. An empty region
// selects "entity:<name>".
func Cached(region string) EntityOption {
	return func(m *EntityMetadata) { m.Cache = &CacheConfig{Region: region} }
}

// RootEntity sets the name entity keys are built with, for types that share
// an inheritance root.
func RootEntity(name string) EntityOption {
	return func(m *EntityMetadata) { m.RootEntityName = name }
}

// MetadataRegistry builds EntityMetadata from struct tags and serves it by
// name or Go type. Register everything during bootstrap; lookups are safe
// for concurrent use.
//
// Tags (key "cache"):
//
//	ID      int       `cache:"id"`
//	Name    string                                   // scalar
//	Secret  string    `cache:"-"`                     // ignored
//	Country *Country  `cache:"manytoone,cached"`
//	Cities  []*City   `cache:"manytomany,cached,region=travel_cities"`
//	Extra   any       `cache:"onetomany,target=cache.City"`
type MetadataRegistry struct {
	mu     sync.RWMutex
	byName map[string]*EntityMetadata
	byType map[reflect.Type]*EntityMetadata
}

var _ MetadataProvider = (*MetadataRegistry)(nil)

func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{
		byName: make(map[string]*EntityMetadata),
		byType: make(map[reflect.Type]*EntityMetadata),
	}
}

// Register parses prototype (a struct or pointer to struct) as entity name.
func (r *MetadataRegistry) Register(name string, prototype any, opts ...EntityOption) (*EntityMetadata, error) {
	if name == "" {
		return nil, fmt.Errorf("slcache: entity name is required")
	}
	t := reflect.TypeOf(prototype)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("slcache: entity %q: prototype must be a struct, got %T", name, prototype)
	}

	m := &EntityMetadata{
		Name:           name,
		RootEntityName: name,
		Type:           t,
		Associations:   make(map[string]*AssociationMapping),
		fieldIndex:     make(map[string][]int),
	}
	for _, opt := range opts {
		opt(m)
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag := f.Tag.Get("cache")
		if tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		switch kind := parts[0]; kind {
		case "", "field":
			m.Fields = append(m.Fields, f.Name)
			m.fieldIndex[f.Name] = f.Index
		case "id":
			m.Identifier = append(m.Identifier, f.Name)
			m.Fields = append(m.Fields, f.Name)
			m.fieldIndex[f.Name] = f.Index
		case "onetoone", "manytoone", "onetomany", "manytomany":
			a, err := parseAssociation(f, kind, parts[1:])
			if err != nil {
				return nil, fmt.Errorf("slcache: entity %q: %w", name, err)
			}
			m.Associations[f.Name] = a
		default:
			return nil, fmt.Errorf("slcache: entity %q: field %s: unknown cache tag %q", name, f.Name, kind)
		}
	}
	if len(m.Identifier) == 0 {
		return nil, fmt.Errorf("slcache: entity %q: no identifier field (tag `cache:\"id\"`)", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return nil, fmt.Errorf("slcache: entity %q already registered", name)
	}
	r.byName[name] = m
	r.byType[t] = m
	for _, other := range r.byName {
		for _, a := range other.Associations {
			if a.TargetEntity == "" && a.TargetType != nil {
				if target, ok := r.byType[a.TargetType]; ok {
					a.TargetEntity = target.Name
				}
			}
		}
	}
	return m, nil
}

// MustRegister is like Register but panics on error.
func (r *MetadataRegistry) MustRegister(name string, prototype any, opts ...EntityOption) *EntityMetadata {
	m, err := r.Register(name, prototype, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (r *MetadataRegistry) Metadata(entity string) (*EntityMetadata, error) {
	r.mu.RLock()
	m, ok := r.byName[entity]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	return m, nil
}

// MetadataFor returns the metadata of a live entity's type.
func (r *MetadataRegistry) MetadataFor(entity any) (*EntityMetadata, error) {
	t := reflect.TypeOf(entity)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	m, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: type %v", ErrUnknownEntity, t)
	}
	return m, nil
}

// All returns every registered entity ordered by name.
func (r *MetadataRegistry) All() []*EntityMetadata {
	r.mu.RLock()
	out := make([]*EntityMetadata, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func parseAssociation(f reflect.StructField, kind string, opts []string) (*AssociationMapping, error) {
	a := &AssociationMapping{Field: f.Name, index: f.Index}
	switch kind {
	case "onetoone":
		a.Type = OneToOne
	case "manytoone":
		a.Type = ManyToOne
	case "onetomany":
		a.Type = OneToMany
	case "manytomany":
		a.Type = ManyToMany
	}

	var region string
	cached := false
	for _, o := range opts {
		switch {
		case o == "cached":
			cached = true
		case strings.HasPrefix(o, "region="):
			region = strings.TrimPrefix(o, "region=")
			cached = true
		case strings.HasPrefix(o, "target="):
			a.TargetEntity = strings.TrimPrefix(o, "target=")
		default:
			return nil, fmt.Errorf("field %s: unknown association option %q", f.Name, o)
		}
	}
	if cached {
		a.Cache = &CacheConfig{Region: region}
	}

	ft := f.Type
	switch {
	case ft.Kind() == reflect.Interface:
		if a.TargetEntity == "" {
			return nil, fmt.Errorf("field %s: interface-typed association needs target=<entity>", f.Name)
		}
	case a.Type.IsToOne() && ft.Kind() == reflect.Pointer && ft.Elem().Kind() == reflect.Struct:
		a.TargetType = ft.Elem()
	case a.Type.IsToMany() && ft.Kind() == reflect.Slice:
		et := ft.Elem()
		if et.Kind() == reflect.Pointer {
			et = et.Elem()
		}
		if et.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field %s: to-many element must be a struct or pointer to struct", f.Name)
		}
		a.TargetType = et
	default:
		return nil, fmt.Errorf("field %s: %s association cannot be declared as %v", f.Name, a.Type, ft)
	}
	return a, nil
}
