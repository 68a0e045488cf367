package slcache

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/slcache/internal/keyutil"
)

// Identifier is the primary-key tuple of an entity, keyed by field name.
// Field order never matters: hashing sorts by field name.
type Identifier map[string]any

// CacheKey identifies one cached item. The set of implementations is closed:
// EntityCacheKey, CollectionCacheKey and QueryCacheKey.
type CacheKey interface {
	// Hash is a pure, process-independent function of the key's identity.
	Hash() string
	cacheKey()
}

// EntityCacheKey identifies one entity instance in its entity region.
type EntityCacheKey struct {
	EntityClass string
	Identifier  Identifier
}

func (k EntityCacheKey) cacheKey() {}

// Hash renders "<class>[<id values sorted by field>]", e.g. "cache.country[1]".
func (k EntityCacheKey) Hash() string {
	return fmt.Sprintf("%s[%s]", keyutil.ClassName(k.EntityClass), keyutil.JoinSorted(k.Identifier))
}

// CollectionCacheKey identifies the member list of one to-many association of
// one owner instance.
type CollectionCacheKey struct {
	EntityClass     string
	Association     string
	OwnerIdentifier Identifier
}

func (k CollectionCacheKey) cacheKey() {}

func (k CollectionCacheKey) Hash() string {
	return fmt.Sprintf("%s.%s[%s]", keyutil.ClassName(k.EntityClass), k.Association,
		keyutil.JoinSorted(k.OwnerIdentifier))
}

// QueryCacheKey identifies one query + parameters + result shape combination.
// Lifetime and CreatedAt describe the execution that produced the key and do
// not take part in the hash.
type QueryCacheKey struct {
	Signature   string // digest of the query text
	Parameters  map[string]any
	ResultShape string // digest of the result set mapping
	Lifetime    time.Duration
	CreatedAt   time.Time
}

func (k QueryCacheKey) cacheKey() {}

func (k QueryCacheKey) Hash() string {
	parts := append([]string{k.Signature, k.ResultShape}, keyutil.ParamParts(k.Parameters)...)
	return "query[" + keyutil.Digest(parts...) + "]"
}

// NewQueryCacheKey derives the cache key of q.
func NewQueryCacheKey(q *Query, now time.Time) QueryCacheKey {
	return QueryCacheKey{
		Signature:   keyutil.Digest(q.DQL),
		Parameters:  q.Parameters,
		ResultShape: q.ResultSet.shapeHash(),
		Lifetime:    q.Lifetime,
		CreatedAt:   now,
	}
}
