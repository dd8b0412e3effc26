package core

import (
	"context"

	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// JobQueue carries lifecycle signals (create, delete, run_now) from the API
// tier to the batch scheduler.
type JobQueue interface {
	// Enqueue pushes a lifecycle message for the scheduler to drain.
	Enqueue(ctx context.Context, msg model.JobQueueMessage) error

	// Dequeue pops the oldest pending message without blocking. Returns
	// (nil, nil) when the queue is empty.
	Dequeue(ctx context.Context) (*model.JobQueueMessage, error)

	// Depth reports the number of pending messages.
	Depth(ctx context.Context) (int64, error)
}

// AlertQueue carries alert payloads from the task pipeline and re-notifier to
// the dispatcher.
type AlertQueue interface {
	// Enqueue pushes an alert payload for delivery.
	Enqueue(ctx context.Context, payload model.AlertPayload) error

	// Dequeue pops the oldest pending payload, blocking up to the poll
	// interval. Returns (nil, nil) when the queue stays empty.
	Dequeue(ctx context.Context) (*model.AlertPayload, error)

	// Depth reports the number of pending payloads.
	Depth(ctx context.Context) (int64, error)
}
