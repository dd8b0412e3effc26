package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// Queue key names shared with the API tier.
const (
	JobQueueKey   = "job_queue"
	AlertQueueKey = "alert_queue"
)

// RedisJobQueue implements core.JobQueue over a Redis list. Producers LPUSH;
// the scheduler drains with RPOP so signals process oldest-first.
type RedisJobQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisJobQueue creates a RedisJobQueue on the standard job queue key.
func NewRedisJobQueue(client redis.UniversalClient) *RedisJobQueue {
	return &RedisJobQueue{client: client, key: JobQueueKey}
}

// Enqueue pushes a lifecycle message onto the queue.
func (q *RedisJobQueue) Enqueue(ctx context.Context, msg model.JobQueueMessage) error {
	if msg.JobID == "" {
		return errors.New("job id cannot be empty")
	}
	if !msg.Action.Valid() {
		return fmt.Errorf("invalid job queue action: %q", msg.Action)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job queue message: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue pops the oldest pending message without blocking.
// Returns (nil, nil) when the queue is empty. A payload that fails to decode
// is consumed and returned as an error so the caller can log and move on.
func (q *RedisJobQueue) Dequeue(ctx context.Context) (*model.JobQueueMessage, error) {
	raw, err := q.client.RPop(ctx, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis rpop %s: %w", q.key, err)
	}

	var msg model.JobQueueMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode job queue message: %w", err)
	}
	return &msg, nil
}

// Depth reports the number of pending messages.
func (q *RedisJobQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen %s: %w", q.key, err)
	}
	return depth, nil
}

// RedisAlertQueue implements core.AlertQueue over a Redis list. Producers
// LPUSH; dispatcher workers block on BRPOP up to the poll timeout.
type RedisAlertQueue struct {
	client      redis.UniversalClient
	key         string
	pollTimeout time.Duration
}

// NewRedisAlertQueue creates a RedisAlertQueue on the standard alert queue key.
func NewRedisAlertQueue(client redis.UniversalClient, pollTimeout time.Duration) *RedisAlertQueue {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &RedisAlertQueue{client: client, key: AlertQueueKey, pollTimeout: pollTimeout}
}

// Enqueue pushes an alert payload onto the queue.
func (q *RedisAlertQueue) Enqueue(ctx context.Context, payload model.AlertPayload) error {
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid alert payload: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue pops the oldest pending payload, blocking up to the poll timeout.
// Returns (nil, nil) when the queue stays empty. A payload that fails to
// decode is consumed and returned as an error so the caller can log and move on.
func (q *RedisAlertQueue) Dequeue(ctx context.Context) (*model.AlertPayload, error) {
	values, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis brpop %s: %w", q.key, err)
	}

	// BRPOP replies [key, value].
	if len(values) != 2 {
		return nil, fmt.Errorf("redis brpop %s: unexpected reply length %d", q.key, len(values))
	}

	var payload model.AlertPayload
	if err := json.Unmarshal([]byte(values[1]), &payload); err != nil {
		return nil, fmt.Errorf("decode alert payload: %w", err)
	}
	return &payload, nil
}

// Depth reports the number of pending payloads.
func (q *RedisAlertQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen %s: %w", q.key, err)
	}
	return depth, nil
}
