// Short-lived cache for chat platform objects fetched over REST (as JSON strings), with a fixed
// TTL and purging.
//
// Includes an interface and implementations using redis and in-process memory. The REST client
// uses it to avoid refetching a message several times while one tick handles a burst of reactions
// on it.
package cachestore

import (
	"context"
)

type CacheStore interface {
	// returns empty string (and no error) on a miss
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
