// Package scheduler provides the adapter for running the batch scheduler and
// its per-source task pipeline. It wires repositories, collaborator clients,
// and the lease, policy, and registry services behind one Run loop.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/adapters/analyze"
	"github.com/spyglasshq/spyglass/internal/adapters/scrape"
	"github.com/spyglasshq/spyglass/internal/adapters/svcauth"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
	"github.com/spyglasshq/spyglass/internal/service"
	"github.com/spyglasshq/spyglass/internal/service/failurenotifier"
)

// Runner provides a simple adapter to run the batch scheduler loop.
// It constructs the scheduler service and everything under it.
type Runner struct {
	scheduler *service.SchedulerService
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	Config *config.AppConfig
	Logger *slog.Logger

	// Credentials authenticates collaborator calls. Defaults to the static
	// internal API key from config; OAuth credentials come from the
	// bootstrap because endpoint discovery needs a context.
	Credentials svcauth.Credentials

	// Optional dependency injections for testing/decoupling
	Scraper         core.Scraper
	Analyzer        core.Analyzer
	DocStore        core.DocumentStore
	Telemetry       core.TelemetryBroadcaster
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	scheduler, err := wireSchedulerService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire scheduler service: %w", err)
	}

	return &Runner{
		scheduler: scheduler,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
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
	if opts.Credentials == nil {
		opts.Credentials = svcauth.NewStaticKey(opts.Config.SvcAuth.InternalAPIKey)
	}
	return nil
}

// wireSchedulerService wires up all dependencies for the scheduler service.
func wireSchedulerService(opts RunnerOptions) (*service.SchedulerService, error) {
	cfg := opts.Config
	kv := data.NewRedisKVRepo(opts.Redis)

	registry, err := service.NewRegistryService(service.RegistryServiceOptions{
		Jobs:   data.NewJobsRepo(opts.DB),
		KV:     kv,
		Config: cfg.Registry,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire registry service: %w", err)
	}

	leases, err := service.NewLeaseService(service.LeaseServiceOptions{
		KV:       kv,
		WorkerID: cfg.WorkerID,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire lease service: %w", err)
	}

	policy, err := service.NewPolicyService(service.PolicyServiceOptions{
		KV:     kv,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire policy service: %w", err)
	}

	scraper, err := resolveScraper(opts)
	if err != nil {
		return nil, err
	}
	analyzer, err := resolveAnalyzer(opts)
	if err != nil {
		return nil, err
	}

	pipeline, err := service.NewPipelineService(service.PipelineServiceOptions{
		Scraper:    scraper,
		Analyzer:   analyzer,
		Alerts:     data.NewAlertsRepo(opts.DB),
		AlertQueue: data.NewRedisAlertQueue(opts.Redis, cfg.Dispatcher.PollTimeout),
		Policy:     policy,
		Failures:   data.NewFailedTasksRepo(opts.DB),
		Telemetry:  opts.Telemetry,
		DocStore:   opts.DocStore,
		Config:     cfg.Pipeline,
		Metrics:    opts.Metrics,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire pipeline service: %w", err)
	}

	return service.NewSchedulerService(service.SchedulerServiceOptions{
		Registry:        registry,
		Leases:          leases,
		Runs:            data.NewJobRunsRepo(opts.DB),
		Signals:         data.NewRedisJobQueue(opts.Redis),
		Pipeline:        pipeline,
		Telemetry:       opts.Telemetry,
		DocStore:        opts.DocStore,
		Config:          cfg.Scheduler,
		WorkerID:        cfg.WorkerID,
		Metrics:         opts.Metrics,
		Logger:          opts.Logger,
		FailureNotifier: opts.FailureNotifier,
	})
}

// resolveScraper returns the injected scraper or builds the HTTP client.
func resolveScraper(opts RunnerOptions) (core.Scraper, error) {
	if opts.Scraper != nil {
		return opts.Scraper, nil
	}
	client, err := scrape.NewClient(scrape.ClientOptions{
		Config:      opts.Config.Scraper,
		Credentials: opts.Credentials,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire scrape client: %w", err)
	}
	return client, nil
}

// resolveAnalyzer returns the injected analyzer or builds the HTTP client.
func resolveAnalyzer(opts RunnerOptions) (core.Analyzer, error) {
	if opts.Analyzer != nil {
		return opts.Analyzer, nil
	}
	client, err := analyze.NewClient(analyze.ClientOptions{
		Config:      opts.Config.Analyzer,
		Credentials: opts.Credentials,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire analyze client: %w", err)
	}
	return client, nil
}

// Run starts the scheduler loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner")
	return r.scheduler.Run(ctx)
}
