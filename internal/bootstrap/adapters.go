package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/adapters/dispatcher"
	"github.com/spyglasshq/spyglass/internal/adapters/janitor"
	"github.com/spyglasshq/spyglass/internal/adapters/renotifier"
	schedrunner "github.com/spyglasshq/spyglass/internal/adapters/scheduler"
	"github.com/spyglasshq/spyglass/internal/adapters/svcauth"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
	"github.com/spyglasshq/spyglass/internal/service/failurenotifier"
)

// buildServiceCredentials resolves collaborator credentials for the configured
// auth mode. OAuth discovery happens here rather than inside the runner
// because it needs the service context; a discovery failure falls back to the
// static key so the worker can still start.
//
//nolint:ireturn // Returning Credentials interface is required for runner injection.
func buildServiceCredentials(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) svcauth.Credentials {
	if cfg == nil {
		return nil
	}

	creds, err := svcauth.FromConfig(ctx, cfg.SvcAuth, nil)
	if err != nil {
		if logger != nil {
			logger.Error("service credential setup failed, falling back to static key", "error", err)
		}
		return svcauth.NewStaticKey(cfg.SvcAuth.InternalAPIKey)
	}
	return creds
}

// SchedulerConfig contains configuration for the batch scheduler.
type SchedulerConfig struct {
	DB              *sql.DB
	RedisClient     redis.UniversalClient
	Config          *config.AppConfig
	Logger          *slog.Logger
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// RunScheduler starts the batch scheduler loop.
func RunScheduler(ctx context.Context, cfg SchedulerConfig) error {
	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		DB:              cfg.DB,
		Redis:           cfg.RedisClient,
		Config:          cfg.Config,
		Logger:          cfg.Logger,
		Credentials:     buildServiceCredentials(ctx, cfg.Config, cfg.Logger),
		Metrics:         cfg.Metrics,
		FailureNotifier: cfg.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("create scheduler runner: %w", err)
	}

	return runner.Run(ctx)
}

// DispatcherConfig contains configuration for the alert dispatcher.
type DispatcherConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Config      *config.AppConfig
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// RunDispatcher starts the alert dispatcher service.
func RunDispatcher(ctx context.Context, cfg DispatcherConfig) error {
	runner, err := dispatcher.NewRunner(dispatcher.RunnerOptions{
		DB:      cfg.DB,
		Redis:   cfg.RedisClient,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReNotifierConfig contains configuration for the acknowledgment re-notifier.
type ReNotifierConfig struct {
	DB              *sql.DB
	RedisClient     redis.UniversalClient
	Config          *config.AppConfig
	Logger          *slog.Logger
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// RunReNotifier starts the acknowledgment re-notifier service.
func RunReNotifier(ctx context.Context, cfg ReNotifierConfig) error {
	runner, err := renotifier.NewRunner(renotifier.RunnerOptions{
		DB:              cfg.DB,
		Redis:           cfg.RedisClient,
		Config:          cfg.Config,
		Logger:          cfg.Logger,
		Metrics:         cfg.Metrics,
		FailureNotifier: cfg.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("create re-notifier runner: %w", err)
	}

	return runner.Run(ctx)
}

// JanitorConfig contains configuration for the retention janitor.
type JanitorConfig struct {
	DB      *sql.DB
	Config  config.JanitorConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// RunJanitor starts the retention janitor service.
func RunJanitor(ctx context.Context, cfg JanitorConfig) error {
	runner, err := janitor.NewRunner(janitor.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create janitor runner: %w", err)
	}

	return runner.Run(ctx)
}
