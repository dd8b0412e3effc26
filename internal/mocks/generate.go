// Package mocks provides mock implementations for testing the spyglass worker.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockAlertsRepository(ctrl)
//	mockRepo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(alert, nil)
package mocks

// Generate mock for JobsRepository interface from internal/core package.
// This creates MockJobsRepository with methods for all JobsRepository interface methods:
// GetByID, ListActive
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=jobs_repository_mock.go github.com/spyglasshq/spyglass/internal/core JobsRepository

// Generate mock for JobRunsRepository interface from internal/core package.
// This creates MockJobRunsRepository with methods for all JobRunsRepository interface methods:
// Create, Finalize, SweepOrphans, CountRunning
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_runs_repository_mock.go github.com/spyglasshq/spyglass/internal/core JobRunsRepository

// Generate mock for AlertsRepository interface from internal/core package.
// This creates MockAlertsRepository with methods for all AlertsRepository interface methods:
// Create, GetByID, MarkSent, EnsureAcknowledgmentToken, FindRepeatDue, IncrementRepeat, Acknowledge
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=alerts_repository_mock.go github.com/spyglasshq/spyglass/internal/core AlertsRepository

// Generate mock for ChannelsRepository interface from internal/core package.
// This creates MockChannelsRepository with methods for all ChannelsRepository interface methods:
// ListActiveForUser
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=channels_repository_mock.go github.com/spyglasshq/spyglass/internal/core ChannelsRepository

// Generate mock for FailedTasksRepository interface from internal/core package.
// This creates MockFailedTasksRepository with methods for all FailedTasksRepository interface methods:
// Record, TrimOlderThan
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=failed_tasks_repository_mock.go github.com/spyglasshq/spyglass/internal/core FailedTasksRepository

// Generate mock for KV interface from internal/core package.
// This creates MockKV with methods for all KV interface methods:
// Set, Get, Delete, Exists, TTL, SetTTL, SetIfNotExists, IncrementWithTTL, SetHashFields, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=kv_mock.go github.com/spyglasshq/spyglass/internal/core KV

// Generate mock for JobQueue interface from internal/core package.
// This creates MockJobQueue with methods for all JobQueue interface methods:
// Enqueue, Dequeue, Depth
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go github.com/spyglasshq/spyglass/internal/core JobQueue

// Generate mock for AlertQueue interface from internal/core package.
// This creates MockAlertQueue with methods for all AlertQueue interface methods:
// Enqueue, Dequeue, Depth
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=alert_queue_mock.go github.com/spyglasshq/spyglass/internal/core AlertQueue
