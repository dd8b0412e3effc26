// Package dispatcher provides the adapter for running the alert dispatcher.
// It wires the alert queue, channel repositories, and delivery transports
// behind one Run loop.
package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/adapters/notify"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
	"github.com/spyglasshq/spyglass/internal/service"
)

// Runner provides a simple adapter to run the alert dispatcher loop.
type Runner struct {
	dispatcher *service.DispatchService
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
	Mail    core.MailSender
	Teams   core.ChannelSender
	Slack   core.ChannelSender
	Metrics statsd.Sink
}

// NewRunner creates a new dispatcher runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	dispatcher, err := wireDispatchService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire dispatch service: %w", err)
	}

	return &Runner{
		dispatcher: dispatcher,
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

// wireDispatchService wires up all dependencies for the dispatch service.
func wireDispatchService(opts RunnerOptions) (*service.DispatchService, error) {
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

	policy, err := service.NewPolicyService(service.PolicyServiceOptions{
		KV:     kv,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire policy service: %w", err)
	}

	mail, err := resolveMailSender(opts)
	if err != nil {
		return nil, err
	}

	teams := opts.Teams
	if teams == nil {
		teams = notify.NewTeamsSender(notify.TeamsOptions{Config: cfg.Webhook, Logger: opts.Logger})
	}
	slack := opts.Slack
	if slack == nil {
		slack = notify.NewSlackSender(notify.SlackOptions{Config: cfg.Webhook, Logger: opts.Logger})
	}

	return service.NewDispatchService(service.DispatchServiceOptions{
		Queue:    data.NewRedisAlertQueue(opts.Redis, cfg.Dispatcher.PollTimeout),
		Alerts:   data.NewAlertsRepo(opts.DB),
		Channels: data.NewChannelsRepo(opts.DB),
		Registry: registry,
		Policy:   policy,
		KV:       kv,
		Mail:     mail,
		Teams:    teams,
		Slack:    slack,
		Config:   cfg.Dispatcher,
		Metrics:  opts.Metrics,
		Logger:   opts.Logger,
	})
}

// resolveMailSender returns the injected sender or builds the SendGrid
// client. Email stays nil when no API key is configured; the dispatcher
// reports email channels as unconfigured instead of failing delivery.
func resolveMailSender(opts RunnerOptions) (core.MailSender, error) {
	if opts.Mail != nil {
		return opts.Mail, nil
	}
	if !opts.Config.Mail.IsEnabled() {
		return nil, nil
	}
	sender, err := notify.NewMailSender(notify.MailOptions{
		Config: opts.Config.Mail,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire mail sender: %w", err)
	}
	return sender, nil
}

// Run starts the dispatcher loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting dispatcher runner")
	return r.dispatcher.Run(ctx)
}
