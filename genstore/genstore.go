// Package genstore keeps region epochs: a counter per region that is bumped on
// every Clear. Region entries are framed with the epoch they were written under,
// so bumping the counter invalidates a whole region without enumerating keys.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where epochs live.
// Use LocalGenStore (default) for a single process, or RedisGenStore when several
// processes share one cache backend and must agree on region clears.
type GenStore interface {
	// Snapshot returns the current epoch of a region; missing => 0.
	Snapshot(ctx context.Context, region string) (uint64, error)
	// Bump atomically increments and returns the new epoch.
	Bump(ctx context.Context, region string) (uint64, error)
	// Cleanup prunes epochs not bumped within retention (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
