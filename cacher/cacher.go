// Package cacher caches values that are expensive to rebuild and cheap to
// key. The game registry uses it for rendered lobby listings: each listing
// is stored under a key carrying the registry version, so a change to the
// session list simply moves readers to a new key.
package cacher

import (
	"context"
	"time"
)

// FetchFunc builds the value on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher is a cache with fetch-on-miss. Implementations must be safe for
// concurrent use and must run at most one fetch per key at a time.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or runs fetchFn, stores
	// its result for ttl and returns it.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - key: The cache key
	//   - ttl: Time-to-live for a freshly fetched value
	//   - fetchFn: Builds the value on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - The fetch error, or ctx.Err() if ctx is already done
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix deletes all keys with the given prefix and returns how
	// many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// ItemCount returns the number of unexpired items.
	ItemCount(ctx context.Context) (int, error)
}
