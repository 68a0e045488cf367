// Package genstore keeps one generation counter per cache region.
//
// A region stamps every stored frame with its current generation; evicting the
// whole region is a single Bump, after which older frames read as misses.
// Use LocalGenStore for a single process, RedisGenStore when several processes
// share the same region backend.
package genstore

import (
	"context"
	"time"
)

type GenStore interface {
	// Snapshot returns the current generation of a region; missing => 0.
	Snapshot(ctx context.Context, region string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, region string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
