// Package cache defines the ephemeral storage tier. Sessions and
// session-scoped master keys live here: entries survive a service
// restart but expire with their TTL, mirroring browser session
// storage semantics.
package cache

import (
	"context"
	"time"
)

// Cache is the ephemeral key-value tier.
type Cache interface {
	// Get retrieves a value by key. Returns nil if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL. A zero TTL uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeletePattern removes all keys matching the glob pattern and
	// returns the number deleted.
	DeletePattern(ctx context.Context, pattern string) (int64, error)

	// Ping checks if the backend connection is alive.
	Ping(ctx context.Context) error

	// Close closes the backend connection.
	Close() error
}
