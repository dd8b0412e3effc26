package core

import (
	"context"

	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// JobRegistry is the read-through view of job definitions used by the
// pipeline and re-notifier. Implementations cache lookups briefly so a burst
// of tasks for one job hits the database once.
type JobRegistry interface {
	// Job returns the job definition, from cache when fresh.
	// Returns ErrNotFound when the job does not exist.
	Job(ctx context.Context, jobID string) (*model.Job, error)

	// ListActiveJobs returns every active job straight from the database.
	// Listings are never cached so a new job is picked up on the next tick.
	ListActiveJobs(ctx context.Context) ([]model.Job, error)

	// Invalidate drops any cached entry for the job. Called on delete
	// signals so stale definitions stop serving immediately.
	Invalidate(ctx context.Context, jobID string) error
}
