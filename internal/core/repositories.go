package core

import (
	"context"
	"time"

	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// JobsRepository defines the read surface over monitoring job definitions.
// Spyglass workers never mutate jobs; the API tier owns writes.
type JobsRepository interface {
	// GetByID loads a single job joined with its owner's subscription tier.
	// Returns ErrNotFound (via internal/errors) when the job does not exist.
	GetByID(ctx context.Context, jobID string) (*model.Job, error)

	// ListActive returns every active job joined with its owner's
	// subscription tier, ordered by id for stable batching.
	ListActive(ctx context.Context) ([]model.Job, error)
}

// FinalizeRunParams carries the terminal state written back to a run record.
type FinalizeRunParams struct {
	RunID            string
	Status           model.RunStatus
	CompletedAt      time.Time
	SourcesProcessed int
	AlertsGenerated  int
	AnalysisSummary  []model.AnalysisEntry
	ErrorMessage     *string
}

// JobRunsRepository manages run lifecycle records.
type JobRunsRepository interface {
	// Create inserts a run in running status.
	Create(ctx context.Context, run *model.JobRun) error

	// Finalize writes terminal state for a run.
	// Return semantics:
	//   - (true, nil): the run was still running and is now finalized
	//   - (false, nil): the run was already terminal; nothing changed
	//   - (false, err): the update failed
	Finalize(ctx context.Context, p FinalizeRunParams) (bool, error)

	// SweepOrphans marks runs as failed when they have been running longer
	// than twice their job's frequency window, bounded below by minAge.
	// Returns the run IDs swept.
	SweepOrphans(ctx context.Context, now time.Time, minAge time.Duration) ([]string, error)

	// CountRunning reports the number of runs still in running status.
	CountRunning(ctx context.Context) (int, error)
}

// AlertsRepository manages alert records and their delivery state.
type AlertsRepository interface {
	// Create inserts an alert and returns the stored record with its
	// generated id, token, and created_at populated.
	Create(ctx context.Context, req model.CreateAlertRequest) (*model.Alert, error)

	// GetByID loads a single alert. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, alertID string) (*model.Alert, error)

	// MarkSent flips is_sent after at least one channel delivery succeeded.
	// Returns false when the alert does not exist.
	MarkSent(ctx context.Context, alertID string) (bool, error)

	// EnsureAcknowledgmentToken returns the alert's token, generating and
	// persisting one when the stored token is empty.
	EnsureAcknowledgmentToken(ctx context.Context, alertID string) (string, error)

	// FindRepeatDue returns unacknowledged alerts on acknowledgment-requiring
	// jobs whose next repeat is due, joined with the job's repeat policy.
	// Alerts that already reached their job's max repeats are excluded.
	FindRepeatDue(ctx context.Context, now time.Time, limit int) ([]model.RepeatCandidate, error)

	// IncrementRepeat advances repeat_count from expectedCount to
	// expectedCount+1 and schedules the next repeat. The guard on the
	// previous count makes concurrent re-notifiers skip rather than
	// double-send.
	// Return semantics:
	//   - (true, nil): this caller won the increment
	//   - (false, nil): another caller advanced the count first, or the
	//     alert was acknowledged in the meantime
	//   - (false, err): the update failed
	IncrementRepeat(ctx context.Context, alertID string, expectedCount int, nextRepeatAt time.Time) (bool, error)

	// Acknowledge marks an alert acknowledged when the token matches and the
	// alert is not yet acknowledged. Returns false for a wrong token, an
	// unknown alert, or a repeat acknowledgment.
	Acknowledge(ctx context.Context, alertID, token, acknowledgedBy string, at time.Time) (bool, error)
}

// ChannelsRepository reads notification channel definitions.
type ChannelsRepository interface {
	// ListActiveForUser returns the user's active channels filtered to the
	// given ids. An empty ids slice returns nothing.
	ListActiveForUser(ctx context.Context, userID string, ids []string) ([]model.NotificationChannel, error)
}

// FailedTasksRepository persists per-source failure records for debugging.
type FailedTasksRepository interface {
	// Record stores one failure entry.
	Record(ctx context.Context, failure model.FailedTask) error

	// TrimOlderThan deletes failure entries created before the cutoff.
	// Returns the number of rows removed.
	TrimOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
