// Package janitor provides the adapter for running the cleanup loop.
package janitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
	"github.com/spyglasshq/spyglass/internal/service"
)

// Runner provides a simple adapter to run the janitor loop.
// It constructs the janitor service and runs the cleanup loop.
type Runner struct {
	janitor *service.JanitorService
	logger  *slog.Logger
	metrics statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.JanitorConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Runs     core.JobRunsRepository
	Failures core.FailedTasksRepository
	Metrics  statsd.Sink
}

// NewRunner creates a new janitor runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	janitor, err := wireJanitorService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire janitor service: %w", err)
	}

	return &Runner{
		janitor: janitor,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// wireJanitorService wires up all dependencies for the janitor service.
func wireJanitorService(opts RunnerOptions) (*service.JanitorService, error) {
	runs := opts.Runs
	if runs == nil {
		runs = data.NewJobRunsRepo(opts.DB)
	}

	failures := opts.Failures
	if failures == nil {
		failures = data.NewFailedTasksRepo(opts.DB)
	}

	return service.NewJanitorService(service.JanitorServiceOptions{
		Runs:     runs,
		Failures: failures,
		Config:   opts.Config,
		Metrics:  opts.Metrics,
		Logger:   opts.Logger,
	})
}

// Run starts the janitor loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting janitor runner")
	return r.janitor.Run(ctx)
}
