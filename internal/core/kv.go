// Package core defines the interfaces between the spyglass services and their
// storage, queue, and collaborator implementations. The core owns the
// contracts; internal/data and internal/adapters provide them.
package core

import (
	"context"
	"time"
)

// KV is the shared key-value store contract used for leases, suppression
// keys, the registry cache, and operational records.
type KV interface {
	// Set stores a value with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value by key. Returns (nil, nil) when the key is
	// missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL reports the remaining lifetime of a key. Negative sentinel values
	// follow Redis semantics: -1s for a key without expiry, -2s for a
	// missing key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SetTTL updates the TTL of an existing key. Returns true when the key
	// exists and the TTL was applied.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only when absent. Returns true if
	// the key was set. This is the primitive behind leases and dedup shields.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// IncrementWithTTL atomically increments an integer counter, applying the
	// TTL when the increment creates the key, and returns the post-increment
	// value. Counter keys that do not exist start at zero.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetHashFields writes a string map under a hash key and applies the TTL.
	SetHashFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// Health checks the store connection.
	Health(ctx context.Context) error
}
