package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// WorkerFailurePayload captures the canonical data we emit when a background
// worker degrades or halts.
type WorkerFailurePayload struct {
	Worker      string
	WorkerID    string
	Error       string
	ErrorClass  string
	Consecutive int
	Fatal       bool
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Sink describes a destination capable of consuming worker failure notifications.
type Sink interface {
	SendWorkerFailure(ctx context.Context, payload WorkerFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload WorkerFailurePayload) error

// SendWorkerFailure implements the Sink interface.
func (f SinkFunc) SendWorkerFailure(ctx context.Context, payload WorkerFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
