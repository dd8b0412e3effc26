package core

import (
	"context"
	"time"

	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// LeaseManager serializes job execution across workers and tracks run
// recency. Leases are advisory: an expired lease means the holder crashed
// and the job is free again.
type LeaseManager interface {
	// TryAcquire attempts to take the job's execution lease for the given
	// duration. Returns true when this worker now holds the lease.
	TryAcquire(ctx context.Context, jobID string, ttl time.Duration) (bool, error)

	// Release drops the job's lease. Safe to call when the lease already
	// expired; the next acquirer is unaffected.
	Release(ctx context.Context, jobID string) error

	// IsDue reports whether the job's frequency window has elapsed since its
	// recorded last run. A job with no recorded run is due.
	IsDue(ctx context.Context, jobID string, frequency time.Duration, now time.Time) (bool, error)

	// RecordRun stamps the job's last-run marker at the given time.
	RecordRun(ctx context.Context, jobID string, at time.Time) error

	// TryImmediate takes the short immediate-run shield that keeps duplicate
	// run_now signals from double-processing a job.
	TryImmediate(ctx context.Context, jobID string) (bool, error)
}

// PolicyCheck carries the inputs shared by the policy engine's evaluate and
// commit phases. Summary feeds the cooldown fingerprint; SourceURL feeds the
// cross-component dedup identity.
type PolicyCheck struct {
	Policy    model.JobPolicy
	JobID     string
	Summary   string
	SourceURL string
	Now       time.Time
}

// PolicyEngine decides whether a would-be alert may be created. Checks run
// in a fixed order (cooldown, then hourly rate, then content dedup) so a
// multiply-suppressed alert always reports the same reason.
type PolicyEngine interface {
	// Evaluate runs the suppression checks for an alert candidate.
	Evaluate(ctx context.Context, check PolicyCheck) (model.PolicyDecision, error)

	// RecordCreated arms the suppression state after an alert is created:
	// the cooldown fingerprint, the hourly counter, and the dedup marker.
	// The dedup marker stores alertID so the dispatcher can tell the
	// committing alert apart from a racing duplicate.
	RecordCreated(ctx context.Context, check PolicyCheck, alertID string) error

	// DedupOwner returns the alert id recorded in the dedup marker for the
	// given job, source, and instant, or "" when no marker is set.
	DedupOwner(ctx context.Context, jobID, sourceURL string, at time.Time) (string, error)
}

// TelemetryBroadcaster publishes pipeline progress events. Emit never
// returns an error: telemetry is best-effort and must not fail a run.
type TelemetryBroadcaster interface {
	Emit(ctx context.Context, event model.TelemetryEvent)
}
