package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
	"github.com/spyglasshq/spyglass/internal/observability/metrics"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
)

// ProcessedAlertKey builds the KV hash key recording how one run's alert was
// delivered. The API tier reads it for the run detail view.
func ProcessedAlertKey(runID string) string {
	return "processed_alert:" + runID
}

// DispatchServiceOptions groups dependencies for DispatchService.
type DispatchServiceOptions struct {
	Queue    core.AlertQueue         // Required: alert payload queue
	Alerts   core.AlertsRepository   // Required: alerts repository
	Channels core.ChannelsRepository // Required: notification channel repository
	Registry core.JobRegistry        // Required: job definition registry
	Policy   core.PolicyEngine       // Required: dedup shield lookup
	KV       core.KV                 // Required: processed-alert records
	Mail     core.MailSender         // Optional: email channel transport
	Teams    core.ChannelSender      // Optional: teams channel transport
	Slack    core.ChannelSender      // Optional: slack channel transport
	Config   config.DispatcherConfig // Dispatcher configuration
	Time     data.TimeProvider       // Optional: time source
	Metrics  statsd.Sink             // Optional: metrics sink (StatsD-compatible)
	Logger   *slog.Logger            // Optional: structured logger
}

// DispatchService consumes alert payloads from the dispatch queue and
// delivers them to the owning user's notification channels. Channels are
// delivered independently; one success is enough to mark the alert sent.
// A payload whose dedup marker is owned by a different alert is a racing
// duplicate and is marked sent without delivery.
type DispatchService struct {
	queue    core.AlertQueue
	alerts   core.AlertsRepository
	channels core.ChannelsRepository
	registry core.JobRegistry
	policy   core.PolicyEngine
	kv       core.KV
	mail     core.MailSender
	teams    core.ChannelSender
	slack    core.ChannelSender
	config   config.DispatcherConfig
	time     data.TimeProvider
	metrics  statsd.Sink
	logger   *slog.Logger
}

// NewDispatchService constructs a new DispatchService.
func NewDispatchService(opts DispatchServiceOptions) (*DispatchService, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("AlertQueue is required")
	case opts.Alerts == nil:
		return nil, errors.New("AlertsRepository is required")
	case opts.Channels == nil:
		return nil, errors.New("ChannelsRepository is required")
	case opts.Registry == nil:
		return nil, errors.New("JobRegistry is required")
	case opts.Policy == nil:
		return nil, errors.New("PolicyEngine is required")
	case opts.KV == nil:
		return nil, errors.New("KV is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	timeProvider := opts.Time
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DispatchService{
		queue:    opts.Queue,
		alerts:   opts.Alerts,
		channels: opts.Channels,
		registry: opts.Registry,
		policy:   opts.Policy,
		kv:       opts.KV,
		mail:     opts.Mail,
		teams:    opts.Teams,
		slack:    opts.Slack,
		config:   cfg,
		time:     timeProvider,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "dispatch_service"),
	}, nil
}

// Run starts the dispatcher workers and blocks until the context is
// cancelled. Returns nil on graceful shutdown (context.Canceled), error
// otherwise.
func (s *DispatchService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting alert dispatcher",
		"concurrency", s.config.Concurrency,
		"poll_timeout", s.config.PollTimeout,
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := range s.config.Concurrency {
		g.Go(func() error {
			return s.worker(ctx, i)
		})
	}
	return suppressContextCancellation(g.Wait())
}

// worker consumes payloads until the context is cancelled. Per-payload
// failures are logged and never stop the worker.
func (s *DispatchService) worker(ctx context.Context, id int) error {
	logger := s.logger.With("worker", id)
	for {
		if err := ctx.Err(); err != nil {
			logger.DebugContext(ctx, "dispatcher worker stopping", "reason", err)
			return err
		}

		payload, err := s.queue.Dequeue(ctx)
		if err != nil {
			if isContextCancellation(err) {
				continue
			}
			logger.WarnContext(ctx, "failed to dequeue alert payload", "error", err)
			s.pauseAfterError(ctx)
			continue
		}
		if payload == nil {
			continue
		}

		// Dispatch failures are terminal per payload; the worker keeps going
		_ = s.Dispatch(ctx, payload)
	}
}

// pauseAfterError keeps a broken queue connection from turning the worker
// into a hot loop.
func (s *DispatchService) pauseAfterError(ctx context.Context) {
	select {
	case <-time.After(s.config.PollTimeout):
	case <-ctx.Done():
	}
}

// Dispatch delivers one alert payload to the owning user's active channels.
func (s *DispatchService) Dispatch(ctx context.Context, payload *model.AlertPayload) error {
	started := time.Now()
	logger := s.logger.With("alert_id", payload.AlertID, "job_id", payload.JobID)

	if err := payload.Validate(); err != nil {
		logger.WarnContext(ctx, "dropping invalid alert payload", "error", err)
		s.emitDispatch(payload, metrics.DispatchOutcomeFailed, 0, started, err)
		return err
	}

	job, err := s.registry.Job(ctx, payload.JobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			logger.DebugContext(ctx, "job gone before dispatch, dropping alert")
			s.emitDispatch(payload, metrics.DispatchOutcomeNoChannels, 0, started, nil)
			return nil
		}
		logger.ErrorContext(ctx, "failed to load job for dispatch", "error", err)
		s.emitDispatch(payload, metrics.DispatchOutcomeFailed, 0, started, err)
		return err
	}

	if s.duplicateShield(ctx, payload, logger) {
		s.emitDispatch(payload, metrics.DispatchOutcomeDuplicate, 0, started, nil)
		return nil
	}

	ackURL := s.acknowledgmentURL(ctx, payload, job, logger)

	channels, err := s.resolveChannels(ctx, job)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve notification channels", "error", err)
		s.emitDispatch(payload, metrics.DispatchOutcomeFailed, 0, started, err)
		return err
	}
	if len(channels) == 0 {
		logger.DebugContext(ctx, "no active notification channels, nothing to deliver")
		s.emitDispatch(payload, metrics.DispatchOutcomeNoChannels, 0, started, nil)
		return nil
	}

	tally := s.deliverAll(ctx, channels, payload, ackURL)

	if tally.total > 0 && !payload.IsRepeat() {
		s.markSent(ctx, payload.AlertID, logger)
	}
	s.recordProcessed(ctx, payload, tally, logger)

	logger.InfoContext(ctx, "alert dispatched",
		"channels", len(channels),
		"delivered", tally.total,
		"repeat", payload.IsRepeat(),
	)

	if tally.total == 0 {
		s.emitDispatch(payload, metrics.DispatchOutcomeFailed, 0, started, tally.lastErr)
		return fmt.Errorf("alert dispatch: all channel deliveries failed: %w", tally.lastErr)
	}
	s.emitDispatch(payload, metrics.DispatchOutcomeDelivered, tally.total, started, nil)
	return nil
}

// duplicateShield reports whether the payload is a racing duplicate of an
// alert that already owns the dedup marker. Duplicates are marked sent so
// they do not resurface through the re-notifier query.
func (s *DispatchService) duplicateShield(ctx context.Context, payload *model.AlertPayload, logger *slog.Logger) bool {
	if payload.IsRepeat() {
		return false
	}

	owner, err := s.policy.DedupOwner(ctx, payload.JobID, payload.SourceURL, payload.Timestamp)
	if err != nil {
		// A KV outage must not hold deliveries back
		logger.WarnContext(ctx, "dedup shield check failed, delivering anyway", "error", err)
		return false
	}
	if owner == "" || owner == payload.AlertID {
		return false
	}

	logger.InfoContext(ctx, "duplicate alert suppressed at dispatch", "owner_alert_id", owner)
	s.markSent(ctx, payload.AlertID, logger)
	return true
}

func (s *DispatchService) markSent(ctx context.Context, alertID string, logger *slog.Logger) {
	updated, err := s.alerts.MarkSent(ctx, alertID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to mark alert sent", "error", err)
		return
	}
	if !updated {
		logger.DebugContext(ctx, "alert row gone, sent flag not recorded")
	}
}

// acknowledgmentURL resolves the acknowledgment link for the payload,
// minting a token for alert rows that predate token generation. Empty when
// the job does not require acknowledgment.
func (s *DispatchService) acknowledgmentURL(
	ctx context.Context,
	payload *model.AlertPayload,
	job *model.Job,
	logger *slog.Logger,
) string {
	if !job.RequireAcknowledgment {
		return ""
	}

	token := payload.AcknowledgmentToken
	if token == "" {
		minted, err := s.alerts.EnsureAcknowledgmentToken(ctx, payload.AlertID)
		if err != nil {
			logger.WarnContext(ctx, "failed to ensure acknowledgment token", "error", err)
			return ""
		}
		token = minted
	}
	return fmt.Sprintf("%s/alerts/%s/acknowledge?token=%s", s.config.DashboardURL, payload.AlertID, token)
}

// resolveChannels loads the user's active channels referenced by the job.
func (s *DispatchService) resolveChannels(ctx context.Context, job *model.Job) ([]model.NotificationChannel, error) {
	if len(job.NotificationChannelIDs) == 0 {
		return nil, nil
	}
	return s.channels.ListActiveForUser(ctx, job.UserID, job.NotificationChannelIDs)
}

// deliveryTally counts per-kind delivery successes for one payload.
type deliveryTally struct {
	email   int
	teams   int
	slack   int
	total   int
	lastErr error
}

// deliverAll attempts every channel independently. There is no per-channel
// retry within a dispatch.
func (s *DispatchService) deliverAll(
	ctx context.Context,
	channels []model.NotificationChannel,
	payload *model.AlertPayload,
	ackURL string,
) deliveryTally {
	var tally deliveryTally
	for i := range channels {
		ch := &channels[i]
		started := time.Now()

		err := s.deliverChannel(ctx, ch, payload, ackURL)
		metrics.EmitChannelDelivery(s.metrics, metrics.ChannelDeliveryMetric{
			Channel:  ch.ChannelType.String(),
			Duration: time.Since(started),
			Err:      err,
		})
		if err != nil {
			tally.lastErr = err
			s.logger.WarnContext(ctx, "channel delivery failed",
				"alert_id", payload.AlertID,
				"channel_id", ch.ID,
				"channel_type", ch.ChannelType.String(),
				"error", err,
			)
			continue
		}

		switch ch.ChannelType {
		case model.ChannelKindEmail:
			tally.email++
		case model.ChannelKindTeams:
			tally.teams++
		case model.ChannelKindSlack:
			tally.slack++
		}
		tally.total++
	}
	return tally
}

func (s *DispatchService) deliverChannel(
	ctx context.Context,
	ch *model.NotificationChannel,
	payload *model.AlertPayload,
	ackURL string,
) error {
	switch ch.ChannelType {
	case model.ChannelKindEmail:
		if s.mail == nil {
			return errors.New("email transport not configured")
		}
		cfg, err := ch.EmailConfig()
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch.ID, err)
		}
		return s.mail.SendAlertEmail(ctx, cfg.Email, *payload, ackURL)

	case model.ChannelKindTeams:
		if s.teams == nil {
			return errors.New("teams transport not configured")
		}
		cfg, err := ch.WebhookConfig()
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch.ID, err)
		}
		return s.teams.Send(ctx, cfg.WebhookURL, *payload, ackURL)

	case model.ChannelKindSlack:
		if s.slack == nil {
			return errors.New("slack transport not configured")
		}
		cfg, err := ch.WebhookConfig()
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch.ID, err)
		}
		return s.slack.Send(ctx, cfg.WebhookURL, *payload, ackURL)

	default:
		return fmt.Errorf("unsupported channel type %q", ch.ChannelType)
	}
}

// recordProcessed writes the per-run delivery record the API tier surfaces
// on the run detail view.
func (s *DispatchService) recordProcessed(
	ctx context.Context,
	payload *model.AlertPayload,
	tally deliveryTally,
	logger *slog.Logger,
) {
	fields := map[string]string{
		"job_id":          payload.JobID,
		"title":           payload.Title,
		"processed_at":    s.time.Now().UTC().Format(time.RFC3339),
		"email_sent":      strconv.Itoa(tally.email),
		"teams_sent":      strconv.Itoa(tally.teams),
		"slack_sent":      strconv.Itoa(tally.slack),
		"relevance_score": strconv.Itoa(payload.RelevanceScore),
	}
	if err := s.kv.SetHashFields(ctx, ProcessedAlertKey(payload.RunID), fields, s.config.ProcessedRecordTTL); err != nil {
		logger.WarnContext(ctx, "failed to record processed alert", "run_id", payload.RunID, "error", err)
	}
}

func (s *DispatchService) emitDispatch(
	payload *model.AlertPayload,
	outcome string,
	delivered int,
	started time.Time,
	err error,
) {
	metrics.EmitAlertDispatch(s.metrics, metrics.DispatchMetric{
		Outcome:   outcome,
		Repeat:    payload.IsRepeat(),
		Delivered: delivered,
		Duration:  time.Since(started),
		Err:       err,
	})
}
