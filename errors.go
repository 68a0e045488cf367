package slcache

import (
	"errors"
	"fmt"
)

var (
	// ErrUncacheable is matched (errors.Is) by every configuration error that
	// makes a query, entity or association impossible to cache.
	ErrUncacheable = errors.New("slcache: uncacheable")

	// ErrWriteRejected is wrapped in a RegionAccessError when the backend
	// refused a write (e.g. admission policy under memory pressure).
	ErrWriteRejected = errors.New("slcache: write rejected by backend")

	ErrUnknownEntity      = errors.New("slcache: unknown entity")
	ErrUnknownAssociation = errors.New("slcache: unknown association")
)

// RegionAccessError reports a backend fault while reading or writing a region.
// It is never retried by the cache.
type RegionAccessError struct {
	Region string
	Op     string // "get", "put", "evict", "evict_all"
	Key    string
	Err    error
}

func (e *RegionAccessError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("region %q: %s: %v", e.Region, e.Op, e.Err)
	}
	return fmt.Sprintf("region %q: %s %q: %v", e.Region, e.Op, e.Key, e.Err)
}

func (e *RegionAccessError) Unwrap() error { return e.Err }

// UncacheableResultError is returned when the result shape of a query cannot
// be cached (scalar projections, no root entity).
type UncacheableResultError struct {
	Reason string
}

func (e *UncacheableResultError) Error() string {
	return "slcache: result is not cacheable: " + e.Reason
}

func (e *UncacheableResultError) Is(target error) bool { return target == ErrUncacheable }

// NonCacheableEntityError is returned when an entity taking part in a cached
// query has no cached persister.
type NonCacheableEntityError struct {
	Entity string
}

func (e *NonCacheableEntityError) Error() string {
	return fmt.Sprintf("slcache: entity %q is not configured for second-level cache", e.Entity)
}

func (e *NonCacheableEntityError) Is(target error) bool { return target == ErrUncacheable }

// UncacheableAssociationError is returned when an association reached by a
// cached entity or query lacks cache configuration.
type UncacheableAssociationError struct {
	Entity      string
	Association string
}

func (e *UncacheableAssociationError) Error() string {
	return fmt.Sprintf("slcache: association %s#%s is not configured for second-level cache",
		e.Entity, e.Association)
}

func (e *UncacheableAssociationError) Is(target error) bool { return target == ErrUncacheable }
