package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/internal/data"
)

func TestLeaseKeys(t *testing.T) {
	assert.Equal(t, "job_lock:job-1", JobLockKey("job-1"))
	assert.Equal(t, "job_last_run:job-1", JobLastRunKey("job-1"))
	assert.Equal(t, "immediate_run_lock:job-1", ImmediateRunLockKey("job-1"))
}

// leaseFixture wires a LeaseService over a miniredis-backed KV store with a
// fixed clock.
type leaseFixture struct {
	svc  *LeaseService
	mr   *miniredis.Miniredis
	time *data.FixedTimeProvider
	now  time.Time
}

func newLeaseFixture(t *testing.T, workerID string) *leaseFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2025, 3, 7, 10, 30, 0, 0, time.UTC)
	timeProvider := data.NewFixedTimeProvider(now)

	svc, err := NewLeaseService(LeaseServiceOptions{
		KV:       data.NewRedisKVRepo(client),
		WorkerID: workerID,
		Time:     timeProvider,
	})
	require.NoError(t, err)

	return &leaseFixture{svc: svc, mr: mr, time: timeProvider, now: now}
}

func TestNewLeaseService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")
		assert.Equal(t, "w1", f.svc.WorkerID())
	})

	t.Run("generates a worker identity when none is given", func(t *testing.T) {
		f := newLeaseFixture(t, "")
		assert.Contains(t, f.svc.WorkerID(), "worker-")
	})

	t.Run("returns error when kv store is nil", func(t *testing.T) {
		_, err := NewLeaseService(LeaseServiceOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "KV store is required")
	})
}

func TestLeaseService_TryAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires a free lock and stamps the owner", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")

		acquired, err := f.svc.TryAcquire(ctx, "job-1", time.Hour)

		require.NoError(t, err)
		assert.True(t, acquired)
		assert.Equal(t, time.Hour, f.mr.TTL(JobLockKey("job-1")))

		value, err := f.mr.Get(JobLockKey("job-1"))
		require.NoError(t, err)
		assert.Equal(t, "w1:1741343400", value)
	})

	t.Run("reports held when another worker owns the lock", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")
		require.NoError(t, f.mr.Set(JobLockKey("job-1"), "w2:1741343000"))

		acquired, err := f.svc.TryAcquire(ctx, "job-1", time.Hour)

		require.NoError(t, err)
		assert.False(t, acquired)

		// The holder's value survives the failed attempt.
		value, err := f.mr.Get(JobLockKey("job-1"))
		require.NoError(t, err)
		assert.Equal(t, "w2:1741343000", value)
	})

	t.Run("clamps sub-second lease durations to one second", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")

		acquired, err := f.svc.TryAcquire(ctx, "job-1", 200*time.Millisecond)

		require.NoError(t, err)
		assert.True(t, acquired)
		assert.Equal(t, time.Second, f.mr.TTL(JobLockKey("job-1")))
	})

	t.Run("falls back to the default lease when no duration is given", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")

		acquired, err := f.svc.TryAcquire(ctx, "job-1", 0)

		require.NoError(t, err)
		assert.True(t, acquired)
		assert.Equal(t, time.Minute, f.mr.TTL(JobLockKey("job-1")))
	})
}

func TestLeaseService_Release(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t, "w1")

	acquired, err := f.svc.TryAcquire(ctx, "job-1", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, f.svc.Release(ctx, "job-1"))

	assert.False(t, f.mr.Exists(JobLockKey("job-1")))

	acquired, err = f.svc.TryAcquire(ctx, "job-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLeaseService_IsDue(t *testing.T) {
	ctx := context.Background()

	t.Run("job with no run marker is due", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")

		due, err := f.svc.IsDue(ctx, "job-1", time.Hour, f.now)

		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("job inside its frequency window is not due", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")
		lastRun := f.now.Add(-30 * time.Minute).Format(time.RFC3339)
		require.NoError(t, f.mr.Set(JobLastRunKey("job-1"), lastRun))

		due, err := f.svc.IsDue(ctx, "job-1", time.Hour, f.now)

		require.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("job is due exactly at the window boundary", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")
		lastRun := f.now.Add(-time.Hour).Format(time.RFC3339)
		require.NoError(t, f.mr.Set(JobLastRunKey("job-1"), lastRun))

		due, err := f.svc.IsDue(ctx, "job-1", time.Hour, f.now)

		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("unparseable marker counts as due", func(t *testing.T) {
		f := newLeaseFixture(t, "w1")
		require.NoError(t, f.mr.Set(JobLastRunKey("job-1"), "not-a-timestamp"))

		due, err := f.svc.IsDue(ctx, "job-1", time.Hour, f.now)

		require.NoError(t, err)
		assert.True(t, due)
	})
}

func TestLeaseService_RecordRun(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t, "w1")

	require.NoError(t, f.svc.RecordRun(ctx, "job-1", f.now))

	value, err := f.mr.Get(JobLastRunKey("job-1"))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07T10:30:00Z", value)

	// The marker never expires; staleness is judged against the job's
	// current frequency.
	assert.Equal(t, time.Duration(0), f.mr.TTL(JobLastRunKey("job-1")))

	due, err := f.svc.IsDue(ctx, "job-1", time.Hour, f.now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestLeaseService_TryImmediate(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t, "w1")

	acquired, err := f.svc.TryImmediate(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, 5*time.Minute, f.mr.TTL(ImmediateRunLockKey("job-1")))

	acquired, err = f.svc.TryImmediate(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, acquired)
}
