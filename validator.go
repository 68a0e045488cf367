package slcache

import "time"

// QueryCacheValidator decides whether a stored query result may be served for
// q. Implementations must not mutate the entry or touch any region.
type QueryCacheValidator interface {
	IsValid(entry *QueryCacheEntry, q *Query) bool
}

// ValidatorFunc adapts a function to QueryCacheValidator.
type ValidatorFunc func(entry *QueryCacheEntry, q *Query) bool

func (f ValidatorFunc) IsValid(entry *QueryCacheEntry, q *Query) bool { return f(entry, q) }

// TimestampValidator expires entries older than the query's Lifetime.
type TimestampValidator struct {
	Now func() time.Time // nil => time.Now
}

func (v TimestampValidator) IsValid(entry *QueryCacheEntry, q *Query) bool {
	if q.Lifetime <= 0 {
		return true
	}
	now := systemNow
	if v.Now != nil {
		now = v.Now
	}
	return entry.CreatedAt.Add(q.Lifetime).After(now())
}
