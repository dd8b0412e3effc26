package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementWithTTLScript increments a counter and applies the TTL only when
// the increment created the key. The whole sequence runs atomically so
// concurrent workers bumping the same rate window cannot leave the key
// without an expiry.
var incrementWithTTLScript = redis.NewScript(`
local value = redis.call('INCR', KEYS[1])
if value == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return value
`)

// RedisKVRepo implements the core.KV interface using Redis.
type RedisKVRepo struct {
	client redis.UniversalClient
}

// NewRedisKVRepo creates a new RedisKVRepo with the given Redis client.
func NewRedisKVRepo(client redis.UniversalClient) *RedisKVRepo {
	return &RedisKVRepo{client: client}
}

// Set stores a value in Redis with the given key and TTL.
func (r *RedisKVRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value from Redis by key.
func (r *RedisKVRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Key doesn't exist
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	return []byte(result), nil
}

// Delete removes a key from Redis.
func (r *RedisKVRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}

	return result > 0, nil
}

// Exists checks if a key exists in Redis.
func (r *RedisKVRepo) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}

	return result > 0, nil
}

// TTL reports the remaining lifetime of a key, preserving the Redis sentinel
// values (-1s for no expiry, -2s for a missing key).
func (r *RedisKVRepo) TTL(ctx context.Context, key string) (time.Duration, error) {
	if key == "" {
		return 0, errors.New("key cannot be empty")
	}

	result, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	return result, nil
}

// SetTTL updates the TTL for an existing key in Redis.
func (r *RedisKVRepo) SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	result, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis expire: %w", err)
	}

	return result, nil
}

// SetIfNotExists atomically sets a key only if it doesn't already exist.
// Uses Redis SET with NX and TTL options for guaranteed atomicity.
func (r *RedisKVRepo) SetIfNotExists(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	actualTTL := ttl
	if ttl <= 0 {
		actualTTL = time.Second // Minimum TTL of 1 second
	}

	// SETNX with a separate EXPIRE is not atomic; a crash between the two
	// leaves an immortal lease. SET with NX + TTL applies both in one command.
	cmd := r.client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "NX", TTL: actualTTL})
	status, err := cmd.Result()
	if err != nil {
		// When NX condition is not met (key exists), Redis returns a nil reply.
		// go-redis represents this as redis.Nil; treat it as "was not set" not an error.
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis SET NX: %w", err)
	}

	// When the key is set, Redis returns "OK"; when it already exists, empty string (handled above).
	return status == "OK", nil
}

// IncrementWithTTL atomically increments a counter, applying the TTL when the
// increment creates the key, and returns the post-increment value.
func (r *RedisKVRepo) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, errors.New("key cannot be empty")
	}

	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	result, err := incrementWithTTLScript.Run(ctx, r.client, []string{key}, seconds).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr with ttl: %w", err)
	}

	return result, nil
}

// SetHashFields writes a string map under a hash key and applies the TTL.
func (r *RedisKVRepo) SetHashFields(
	ctx context.Context,
	key string,
	fields map[string]string,
	ttl time.Duration,
) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if len(fields) == 0 {
		return errors.New("fields cannot be empty")
	}

	args := make([]any, 0, len(fields)*2)
	for field, value := range fields {
		args = append(args, field, value)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, args...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}

	return nil
}

// Health checks the health of the Redis connection.
func (r *RedisKVRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
