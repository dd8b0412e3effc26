// Package renotifier provides the adapter for running the re-notifier loop.
package renotifier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
	"github.com/spyglasshq/spyglass/internal/service"
	"github.com/spyglasshq/spyglass/internal/service/failurenotifier"
)

// Runner provides a simple adapter to run the re-notifier loop.
type Runner struct {
	renotifier *service.ReNotifierService
	logger     *slog.Logger
	metrics    statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	Config *config.AppConfig
	Logger *slog.Logger

	// Optional dependency injections for testing/decoupling
	Alerts          core.AlertsRepository
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// NewRunner creates a new re-notifier runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	renotifier, err := wireReNotifierService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire re-notifier service: %w", err)
	}

	return &Runner{
		renotifier: renotifier,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil {
		return errors.New("database connection is required")
	}
	if opts.Redis == nil {
		return errors.New("redis client is required")
	}
	if opts.Config == nil {
		return errors.New("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// wireReNotifierService wires up all dependencies for the re-notifier service.
func wireReNotifierService(opts RunnerOptions) (*service.ReNotifierService, error) {
	cfg := opts.Config

	alerts := opts.Alerts
	if alerts == nil {
		alerts = data.NewAlertsRepo(opts.DB)
	}

	return service.NewReNotifierService(service.ReNotifierServiceOptions{
		Alerts:          alerts,
		Queue:           data.NewRedisAlertQueue(opts.Redis, cfg.Dispatcher.PollTimeout),
		KV:              data.NewRedisKVRepo(opts.Redis),
		Config:          cfg.ReNotifier,
		WorkerID:        cfg.WorkerID,
		Metrics:         opts.Metrics,
		Logger:          opts.Logger,
		FailureNotifier: opts.FailureNotifier,
	})
}

// Run starts the re-notifier loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting re-notifier runner")
	return r.renotifier.Run(ctx)
}
