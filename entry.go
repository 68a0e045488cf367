package slcache

import (
	"fmt"
	"time"
)

// EntryKind tags the variant of a stored entry.
type EntryKind uint8

const (
	KindEntity EntryKind = iota + 1
	KindCollection
	KindQuery
)

func (k EntryKind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindCollection:
		return "collection"
	case KindQuery:
		return "query"
	default:
		return fmt.Sprintf("EntryKind(%d)", uint8(k))
	}
}

// Entry is a read-only payload held by a region. The set of implementations is
// closed: *EntityCacheEntry, *CollectionCacheEntry and *QueryCacheEntry.
type Entry interface {
	Kind() EntryKind
	entry()
}

// EntityCacheEntry is the flat form of one entity. Data holds scalar field
// values and, for to-one associations, the target's Identifier. It never holds
// a live object.
type EntityCacheEntry struct {
	Class string         `json:"class"`
	Data  map[string]any `json:"data"`
}

func (*EntityCacheEntry) Kind() EntryKind { return KindEntity }
func (*EntityCacheEntry) entry()          {}

// CollectionCacheEntry is the ordered member list of a to-many association.
type CollectionCacheEntry struct {
	Identifiers []Identifier `json:"identifiers"`
}

func (*CollectionCacheEntry) Kind() EntryKind { return KindCollection }
func (*CollectionCacheEntry) entry()          {}

// QueryCacheEntry is a query result expressed as identity pointers into entity
// regions. It never stores field values.
type QueryCacheEntry struct {
	Rows      []RowEntry `json:"rows"`
	CreatedAt time.Time  `json:"created_at"`
}

func (*QueryCacheEntry) Kind() EntryKind { return KindQuery }
func (*QueryCacheEntry) entry()          {}

// RowEntry describes one result row: the root identifier plus one reference per
// projected association.
type RowEntry struct {
	Identifier   Identifier                `json:"identifier"`
	Associations map[string]AssociationRef `json:"associations,omitempty"`
}

// AssociationRef points at the target(s) of one association of a row.
// To-one refs carry Identifier, to-many refs carry List in collection order.
type AssociationRef struct {
	TargetEntity string          `json:"target"`
	Type         AssociationType `json:"type"`
	Identifier   Identifier      `json:"identifier,omitempty"`
	List         []Identifier    `json:"list,omitempty"`
}

// Envelope is the serialisable form of an Entry. Exactly one pointer matching
// Kind is set.
type Envelope struct {
	Kind       EntryKind             `json:"kind"`
	Entity     *EntityCacheEntry     `json:"entity,omitempty"`
	Collection *CollectionCacheEntry `json:"collection,omitempty"`
	Query      *QueryCacheEntry      `json:"query,omitempty"`
}

func NewEnvelope(e Entry) (Envelope, error) {
	switch v := e.(type) {
	case *EntityCacheEntry:
		return Envelope{Kind: KindEntity, Entity: v}, nil
	case *CollectionCacheEntry:
		return Envelope{Kind: KindCollection, Collection: v}, nil
	case *QueryCacheEntry:
		return Envelope{Kind: KindQuery, Query: v}, nil
	default:
		return Envelope{}, fmt.Errorf("slcache: unsupported entry %T", e)
	}
}

// Entry unwraps the envelope, failing if the payload does not match Kind.
func (env Envelope) Entry() (Entry, error) {
	switch {
	case env.Kind == KindEntity && env.Entity != nil:
		return env.Entity, nil
	case env.Kind == KindCollection && env.Collection != nil:
		return env.Collection, nil
	case env.Kind == KindQuery && env.Query != nil:
		return env.Query, nil
	default:
		return nil, fmt.Errorf("slcache: malformed %s envelope", env.Kind)
	}
}

// asIdentifier accepts an identifier as stored in memory or as decoded by a codec.
func asIdentifier(v any) (Identifier, bool) {
	switch id := v.(type) {
	case Identifier:
		return id, len(id) > 0
	case map[string]any:
		return Identifier(id), len(id) > 0
	default:
		return nil, false
	}
}
