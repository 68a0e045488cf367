package slcache

import (
	"fmt"
	"reflect"
)

// Hints tune how LoadCacheEntry materialises an entity.
type Hints struct {
	// ToOneReferences fills to-one association fields with identifier-only
	// instances of the target type. Off leaves those fields untouched.
	ToOneReferences bool
}

// DefaultHints are used by QueryCache when Options.Hints is nil.
var DefaultHints = Hints{ToOneReferences: true}

// EntityHydrator converts live entities to EntityCacheEntry and back. It holds
// no mutable state and is safe for concurrent use.
type EntityHydrator struct {
	metadata MetadataProvider
}

func NewEntityHydrator(metadata MetadataProvider) *EntityHydrator {
	return &EntityHydrator{metadata: metadata}
}

// BuildCacheEntry flattens entity into scalar values plus, for each to-one
// association, the target's identifier. Target data is never copied. To-many
// associations are cached in their collection regions instead.
func (h *EntityHydrator) BuildCacheEntry(meta *EntityMetadata, _ EntityCacheKey, entity any) (*EntityCacheEntry, error) {
	v, err := meta.structValue(entity)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any, len(meta.Fields)+len(meta.Associations))
	for _, f := range meta.Fields {
		data[f] = v.FieldByIndex(meta.fieldIndex[f]).Interface()
	}

	for _, name := range meta.AssociationNames() {
		assoc := meta.Associations[name]
		if !assoc.Type.IsToOne() {
			continue
		}
		if assoc.Cache == nil {
			return nil, &UncacheableAssociationError{Entity: meta.Name, Association: name}
		}
		target, ok := assoc.value(v)
		if !ok {
			data[name] = nil
			continue
		}
		tm, err := h.targetMetadata(meta, assoc)
		if err != nil {
			return nil, err
		}
		id, err := tm.IdentifierOf(target.Interface())
		if err != nil {
			return nil, err
		}
		data[name] = id
	}

	return &EntityCacheEntry{Class: meta.Name, Data: data}, nil
}

// LoadCacheEntry materialises entry. When existing is non-nil (a pointer to
// the entity type) it is populated in place and returned, so callers holding
// that reference keep identity. Otherwise a new instance is created, using the
// metadata of entry.Class when it names a registered subtype.
//
// Associations are not resolved here: to-one fields receive at most an
// identifier-only reference (see Hints) and to-many fields are left alone.
func (h *EntityHydrator) LoadCacheEntry(meta *EntityMetadata, key EntityCacheKey, entry *EntityCacheEntry, existing any, hints Hints) (any, error) {
	var target reflect.Value
	if existing != nil {
		target = reflect.ValueOf(existing)
		if target.Kind() != reflect.Pointer || target.IsNil() || target.Elem().Type() != meta.Type {
			return nil, fmt.Errorf("slcache: existing reference %T is not a *%v", existing, meta.Type)
		}
	} else {
		if entry.Class != "" && entry.Class != meta.Name {
			if sub, err := h.metadata.Metadata(entry.Class); err == nil {
				meta = sub
			}
		}
		target = reflect.New(meta.Type)
	}
	v := target.Elem()

	for _, f := range meta.Fields {
		val, ok := entry.Data[f]
		if id, isID := key.Identifier[f]; isID {
			val, ok = id, true
		}
		if !ok {
			continue
		}
		if err := assignValue(v.FieldByIndex(meta.fieldIndex[f]), val); err != nil {
			return nil, fmt.Errorf("slcache: %s.%s: %w", meta.Name, f, err)
		}
	}

	if !hints.ToOneReferences {
		return target.Interface(), nil
	}
	for _, name := range meta.AssociationNames() {
		assoc := meta.Associations[name]
		if !assoc.Type.IsToOne() {
			continue
		}
		raw, present := entry.Data[name]
		if !present {
			continue
		}
		if raw == nil {
			v.FieldByIndex(assoc.index).SetZero()
			continue
		}
		id, ok := asIdentifier(raw)
		if !ok {
			return nil, fmt.Errorf("slcache: %s.%s: stored value is not an identifier", meta.Name, name)
		}
		tm, err := h.targetMetadata(meta, assoc)
		if err != nil {
			return nil, err
		}
		ref, err := tm.newReference(id)
		if err != nil {
			return nil, err
		}
		if err := assoc.setTarget(v, ref); err != nil {
			return nil, err
		}
	}
	return target.Interface(), nil
}

func (h *EntityHydrator) targetMetadata(meta *EntityMetadata, assoc *AssociationMapping) (*EntityMetadata, error) {
	if assoc.TargetEntity == "" {
		return nil, fmt.Errorf("%w: target of %s#%s (type %v) is not registered",
			ErrUnknownEntity, meta.Name, assoc.Field, assoc.TargetType)
	}
	return h.metadata.Metadata(assoc.TargetEntity)
}
