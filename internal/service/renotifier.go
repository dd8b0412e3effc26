package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
	obserrors "github.com/spyglasshq/spyglass/internal/observability/errors"
	"github.com/spyglasshq/spyglass/internal/observability/metrics"
	"github.com/spyglasshq/spyglass/internal/observability/notify"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
	"github.com/spyglasshq/spyglass/internal/service/failurenotifier"
)

// repeatWindowTTL is the lifetime of the hourly repeat counter. Keyed by
// hour window, so one hour is all a counter ever needs to live.
const repeatWindowTTL = time.Hour

// queryAttempts is how many times a cycle retries the due-alert query
// before giving up until the next interval.
const queryAttempts = 3

// RepeatRateLimitKey builds the KV key counting repeat notifications for a
// job within one hour window. Independent of the new-alert rate limit key.
func RepeatRateLimitKey(jobID string, at time.Time) string {
	return fmt.Sprintf("repeat_rate_limit:%s:%s", jobID, HourWindow(at))
}

// ReNotifierServiceOptions groups dependencies for ReNotifierService.
type ReNotifierServiceOptions struct {
	Alerts          core.AlertsRepository    // Required: alerts repository
	Queue           core.AlertQueue          // Required: dispatch queue
	KV              core.KV                  // Required: hourly repeat counters
	Config          config.ReNotifierConfig  // Re-notifier configuration
	WorkerID        string                   // Optional: worker identity for operator notifications
	Time            data.TimeProvider        // Optional: time source
	Metrics         statsd.Sink              // Optional: metrics sink (StatsD-compatible)
	Logger          *slog.Logger             // Optional: structured logger
	FailureNotifier *failurenotifier.Service // Optional: operator failure notification fan-out
}

// ReNotifierService re-emits unacknowledged alerts on acknowledgment-requiring
// jobs. Each cycle picks up due candidates, applies the per-job hourly repeat
// cap, advances the repeat counter under a guarded update so concurrent
// replicas skip instead of double-sending, and re-enqueues the decorated
// payload for the dispatcher.
type ReNotifierService struct {
	alerts          core.AlertsRepository
	queue           core.AlertQueue
	kv              core.KV
	config          config.ReNotifierConfig
	workerID        string
	time            data.TimeProvider
	metrics         statsd.Sink
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
}

// NewReNotifierService constructs a new ReNotifierService.
func NewReNotifierService(opts ReNotifierServiceOptions) (*ReNotifierService, error) {
	switch {
	case opts.Alerts == nil:
		return nil, errors.New("AlertsRepository is required")
	case opts.Queue == nil:
		return nil, errors.New("AlertQueue is required")
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

	return &ReNotifierService{
		alerts:          opts.Alerts,
		queue:           opts.Queue,
		kv:              opts.KV,
		config:          cfg,
		workerID:        opts.WorkerID,
		time:            timeProvider,
		metrics:         opts.Metrics,
		logger:          logger.With("component", "renotifier_service"),
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// Run starts the re-notifier loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled). A schema mismatch is
// terminal: retrying a query against a missing column can never succeed, so
// the loop stops and surfaces the error to the caller.
func (s *ReNotifierService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting re-notifier",
		"interval", s.config.Interval,
		"batch_limit", s.config.BatchLimit,
		"hourly_repeat_cap", s.config.HourlyRepeatCap,
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "re-notifier stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			if _, err := s.Cycle(ctx, now); err != nil {
				if apperrors.IsSchema(err) {
					s.logger.ErrorContext(ctx, "re-notifier schema mismatch, stopping", "error", err)
					s.notifyFatal(ctx, err)
					return fmt.Errorf("re-notifier cycle: %w", err)
				}
				if !isContextCancellation(err) {
					s.logger.ErrorContext(ctx, "re-notifier cycle failed", "error", err)
				}
				// Continue running despite errors
			}
		}
	}
}

// notifyFatal pages the operator when the loop stops for good.
func (s *ReNotifierService) notifyFatal(ctx context.Context, err error) {
	if s.failureNotifier == nil {
		return
	}
	s.failureNotifier.NotifyWorkerFailure(ctx, notify.WorkerFailurePayload{
		Worker:     string(config.ServiceModeReNotifier),
		WorkerID:   s.workerID,
		Error:      err.Error(),
		ErrorClass: obserrors.Classify(err),
		Fatal:      true,
		Severity:   notify.SeverityCritical,
		OccurredAt: s.time.Now(),
	})
}

// Cycle runs one re-notification pass and returns the number of repeats
// emitted.
func (s *ReNotifierService) Cycle(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()

	candidates, err := s.findDue(ctx, now)
	if err != nil {
		metrics.EmitRepeatCycle(s.metrics, metrics.RepeatCycleMetric{
			Duration: time.Since(started),
			Err:      err,
		})
		return 0, err
	}

	emitted, skipped, cycleErr := s.processCandidates(ctx, candidates, now)

	metrics.EmitRepeatCycle(s.metrics, metrics.RepeatCycleMetric{
		Candidates: len(candidates),
		Emitted:    emitted,
		Skipped:    skipped,
		Duration:   time.Since(started),
		Err:        cycleErr,
	})

	if len(candidates) > 0 {
		s.logger.InfoContext(ctx, "re-notification cycle finished",
			"candidates", len(candidates),
			"emitted", emitted,
			"skipped", skipped,
		)
	}
	return emitted, cycleErr
}

// findDue queries the due candidates, retrying transient failures with
// exponential backoff. Schema errors are returned immediately.
func (s *ReNotifierService) findDue(ctx context.Context, now time.Time) ([]model.RepeatCandidate, error) {
	var lastErr error
	for attempt := range queryAttempts {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		candidates, err := s.alerts.FindRepeatDue(ctx, now, s.config.BatchLimit)
		if err == nil {
			return candidates, nil
		}
		if apperrors.IsSchema(err) || isContextCancellation(err) {
			return nil, err
		}

		lastErr = err
		s.logger.WarnContext(ctx, "due-alert query failed, retrying",
			"attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("find repeat-due alerts: %w", lastErr)
}

// processCandidates walks the batch in order. Consecutive failures beyond
// the error budget abort the rest of the cycle; the skipped alerts stay due
// and surface again next interval.
func (s *ReNotifierService) processCandidates(
	ctx context.Context,
	candidates []model.RepeatCandidate,
	now time.Time,
) (emitted, skipped int, err error) {
	consecutive := 0
	for i := range candidates {
		if ctx.Err() != nil {
			return emitted, skipped, ctx.Err()
		}

		ok, procErr := s.processCandidate(ctx, &candidates[i], now)
		if procErr != nil {
			if apperrors.IsSchema(procErr) {
				return emitted, skipped, procErr
			}
			consecutive++
			if consecutive >= s.config.ErrorBudget {
				return emitted, skipped, fmt.Errorf(
					"aborting cycle after %d consecutive failures: %w", consecutive, procErr)
			}
			if backoffErr := s.backoff(ctx, consecutive-1); backoffErr != nil {
				return emitted, skipped, backoffErr
			}
			continue
		}

		consecutive = 0
		if ok {
			emitted++
		} else {
			skipped++
		}
	}
	return emitted, skipped, nil
}

// processCandidate emits one repeat. Returns (false, nil) when the alert is
// skipped: hourly cap reached, or another replica advanced the counter first.
func (s *ReNotifierService) processCandidate(ctx context.Context, c *model.RepeatCandidate, now time.Time) (bool, error) {
	logger := s.logger.With("alert_id", c.ID, "job_id", c.JobID)

	capped, err := s.overRepeatCap(ctx, c.JobID, now)
	if err != nil {
		return false, fmt.Errorf("repeat rate limit for job %s: %w", c.JobID, err)
	}
	if capped {
		logger.DebugContext(ctx, "hourly repeat cap reached, skipping alert")
		return false, nil
	}

	ordinal := c.RepeatCount + 1
	nextRepeatAt := now.Add(time.Duration(c.RepeatFrequencyMinutes) * time.Minute)

	// Advance the counter before enqueueing: a lost emission is recoverable
	// on the next window, a double emission is not.
	won, err := s.alerts.IncrementRepeat(ctx, c.ID, c.RepeatCount, nextRepeatAt)
	if err != nil {
		return false, fmt.Errorf("increment repeat for alert %s: %w", c.ID, err)
	}
	if !won {
		logger.DebugContext(ctx, "repeat already advanced elsewhere, skipping alert")
		return false, nil
	}

	if err := s.queue.Enqueue(ctx, s.repeatPayload(c, ordinal, now)); err != nil {
		return false, fmt.Errorf("enqueue repeat for alert %s: %w", c.ID, err)
	}

	logger.InfoContext(ctx, "repeat notification emitted",
		"ordinal", ordinal,
		"max_repeats", c.MaxRepeats,
		"next_repeat_at", nextRepeatAt.UTC().Format(time.RFC3339),
	)
	return true, nil
}

// overRepeatCap counts this emission against the job's hourly window and
// reports whether the cap was already consumed. The increment is atomic so
// concurrent replicas cannot both land under the cap.
func (s *ReNotifierService) overRepeatCap(ctx context.Context, jobID string, now time.Time) (bool, error) {
	count, err := s.kv.IncrementWithTTL(ctx, RepeatRateLimitKey(jobID, now), repeatWindowTTL)
	if err != nil {
		return false, err
	}
	return count > int64(s.config.HourlyRepeatCap), nil
}

// repeatPayload decorates the original alert content with the repeat ordinal.
func (s *ReNotifierService) repeatPayload(c *model.RepeatCandidate, ordinal int, now time.Time) model.AlertPayload {
	return model.AlertPayload{
		AlertID:             c.ID,
		JobID:               c.JobID,
		RunID:               c.RunID,
		SourceURL:           c.SourceURL,
		Title:               fmt.Sprintf("[Reminder %d/%d] %s", ordinal, c.MaxRepeats, c.Title),
		Content:             fmt.Sprintf("Reminder %d of %d. This alert is still unacknowledged.\n\n%s", ordinal, c.MaxRepeats, c.Content),
		RelevanceScore:      c.RelevanceScore,
		UserID:              c.UserID,
		Timestamp:           now,
		AcknowledgmentToken: c.AcknowledgmentToken,
		RepeatOrdinal:       ordinal,
	}
}

// backoff sleeps for BackoffBase doubled per prior failure (base, 2x, 4x...).
func (s *ReNotifierService) backoff(ctx context.Context, failures int) error {
	delay := s.config.BackoffBase << failures

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
