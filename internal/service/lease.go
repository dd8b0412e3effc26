package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/job"
)

// immediateRunLockTTL shields a job from duplicate immediate-run signals.
// A create followed by a run_now inside this window yields one run.
const immediateRunLockTTL = 5 * time.Minute

// JobLockKey returns the distributed lock key guarding one job's runs.
func JobLockKey(jobID string) string {
	return "job_lock:" + jobID
}

// JobLastRunKey returns the key recording a job's last completed run time.
func JobLastRunKey(jobID string) string {
	return "job_last_run:" + jobID
}

// ImmediateRunLockKey returns the key shielding a job from duplicate
// immediate-run signals.
func ImmediateRunLockKey(jobID string) string {
	return "immediate_run_lock:" + jobID
}

// LeaseServiceOptions groups dependencies for LeaseService.
type LeaseServiceOptions struct {
	KV       core.KV          // Required: key-value store holding locks and run markers
	WorkerID string           // Optional: lease owner identity, generated when empty
	Policy   *job.LeasePolicy // Optional: lease duration normalization
	Time     data.TimeProvider
	Logger   *slog.Logger
}

// LeaseService coordinates job execution across workers through expiring
// locks. A lease's TTL equals the job's polling frequency, so even when a
// worker dies mid-run the job becomes runnable again after one interval.
type LeaseService struct {
	kv       core.KV
	workerID string
	policy   *job.LeasePolicy
	time     data.TimeProvider
	logger   *slog.Logger
}

// NewLeaseService constructs a new LeaseService.
func NewLeaseService(opts LeaseServiceOptions) (*LeaseService, error) {
	if opts.KV == nil {
		return nil, errors.New("KV store is required")
	}

	workerID := opts.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	policy := opts.Policy
	if policy == nil {
		var err error
		policy, err = job.NewLeasePolicy(time.Minute)
		if err != nil {
			return nil, fmt.Errorf("default lease policy: %w", err)
		}
	}

	timeProvider := opts.Time
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LeaseService{
		kv:       opts.KV,
		workerID: workerID,
		policy:   policy,
		time:     timeProvider,
		logger:   logger.With("component", "lease_service", "worker_id", workerID),
	}, nil
}

// WorkerID returns the lease owner identity used in lock values.
func (s *LeaseService) WorkerID() string {
	return s.workerID
}

// TryAcquire attempts to take the job's run lock for the given duration.
// Returns false when another worker already holds it.
func (s *LeaseService) TryAcquire(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	decision := s.policy.Resolve(ttl)
	lease := time.Duration(decision.Seconds) * time.Second
	if decision.Clamped() {
		s.logger.WarnContext(ctx, "lease duration clamped",
			"job_id", jobID,
			"requested", decision.Requested,
			"lease_seconds", decision.Seconds)
	}

	acquired, err := s.kv.SetIfNotExists(ctx, JobLockKey(jobID), s.leaseValue(), lease)
	if err != nil {
		return false, fmt.Errorf("acquire job lock %s: %w", jobID, err)
	}
	return acquired, nil
}

// Release drops the job's run lock so another worker can pick it up before
// the lease expires. Used when an acquired job turns out not to be due.
func (s *LeaseService) Release(ctx context.Context, jobID string) error {
	if _, err := s.kv.Delete(ctx, JobLockKey(jobID)); err != nil {
		return fmt.Errorf("release job lock %s: %w", jobID, err)
	}
	return nil
}

// IsDue reports whether the job's last recorded run is at least one
// frequency interval before now. A job with no run marker is always due.
// An unparseable marker counts as due so one corrupt value cannot park a
// job forever.
func (s *LeaseService) IsDue(ctx context.Context, jobID string, frequency time.Duration, now time.Time) (bool, error) {
	raw, err := s.kv.Get(ctx, JobLastRunKey(jobID))
	if err != nil {
		return false, fmt.Errorf("read last run %s: %w", jobID, err)
	}
	if raw == nil {
		return true, nil
	}

	lastRun, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		s.logger.WarnContext(ctx, "unparseable last-run marker, treating job as due",
			"job_id", jobID,
			"value", string(raw))
		return true, nil
	}

	return !now.Before(lastRun.Add(frequency)), nil
}

// RecordRun stamps the job's last-run marker. The marker never expires; the
// due check compares it against the job's current frequency.
func (s *LeaseService) RecordRun(ctx context.Context, jobID string, at time.Time) error {
	value := []byte(at.UTC().Format(time.RFC3339))
	if err := s.kv.Set(ctx, JobLastRunKey(jobID), value, 0); err != nil {
		return fmt.Errorf("record run %s: %w", jobID, err)
	}
	return nil
}

// TryImmediate attempts to take the short immediate-run shield for the job.
// Returns false when an immediate run was already signaled recently.
func (s *LeaseService) TryImmediate(ctx context.Context, jobID string) (bool, error) {
	acquired, err := s.kv.SetIfNotExists(ctx, ImmediateRunLockKey(jobID), s.leaseValue(), immediateRunLockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire immediate run lock %s: %w", jobID, err)
	}
	return acquired, nil
}

func (s *LeaseService) leaseValue() []byte {
	return []byte(fmt.Sprintf("%s:%d", s.workerID, s.time.Now().Unix()))
}
