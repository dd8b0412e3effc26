package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/observability/metrics"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
)

// JanitorServiceOptions groups dependencies for JanitorService.
type JanitorServiceOptions struct {
	Runs     core.JobRunsRepository     // Required: run lifecycle repository
	Failures core.FailedTasksRepository // Required: failure log repository
	Config   config.JanitorConfig       // Janitor configuration
	Time     data.TimeProvider          // Optional: time source
	Metrics  statsd.Sink                // Optional: metrics sink (StatsD-compatible)
	Logger   *slog.Logger               // Optional: structured logger
}

// JanitorService keeps the run tables healthy.
//
// This service manages:
// - Failing orphaned runs whose worker died before finalizing.
// - Pruning failed-task records past their retention window.
type JanitorService struct {
	runs     core.JobRunsRepository
	failures core.FailedTasksRepository
	config   config.JanitorConfig
	time     data.TimeProvider
	metrics  statsd.Sink
	logger   *slog.Logger
}

// NewJanitorService constructs a new JanitorService.
func NewJanitorService(opts JanitorServiceOptions) (*JanitorService, error) {
	switch {
	case opts.Runs == nil:
		return nil, errors.New("JobRunsRepository is required")
	case opts.Failures == nil:
		return nil, errors.New("FailedTasksRepository is required")
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

	return &JanitorService{
		runs:     opts.Runs,
		failures: opts.Failures,
		config:   cfg,
		time:     timeProvider,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "janitor_service"),
	}, nil
}

// Run starts the janitor loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *JanitorService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting janitor",
		"interval", s.config.Interval,
		"orphan_min_age", s.config.OrphanMinAge,
		"failed_task_max_age", s.config.FailedTaskMaxAge,
	)

	// Stagger replicas so concurrent workers do not sweep in lockstep
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.Sweep(ctx, s.time.Now()); err != nil {
		s.logSweepError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "janitor stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			if err := s.Sweep(ctx, now); err != nil {
				s.logSweepError(ctx, err)
				// Continue running despite errors
			}
		}
	}
}

func (s *JanitorService) logSweepError(ctx context.Context, err error) {
	if isContextCancellation(err) {
		return
	}
	s.logger.ErrorContext(ctx, "janitor sweep failed", "error", err)
}

// waitWithJitter delays startup by up to 10% of the interval.
func (s *JanitorService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// Sweep performs one janitor pass: fail orphaned runs, then prune old
// failed-task records. Both steps run even when the first fails.
func (s *JanitorService) Sweep(ctx context.Context, now time.Time) error {
	start := time.Now()

	swept, orphanErr := s.runs.SweepOrphans(ctx, now, s.config.OrphanMinAge)
	if orphanErr == nil && len(swept) > 0 {
		s.logger.InfoContext(ctx, "orphaned runs failed", "count", len(swept), "run_ids", swept)
	}

	pruned, pruneErr := s.failures.TrimOlderThan(ctx, now.Add(-s.config.FailedTaskMaxAge))
	if pruneErr == nil && pruned > 0 {
		s.logger.InfoContext(ctx, "failed-task records pruned", "count", pruned)
	}

	err := s.composeSweepError(orphanErr, pruneErr)
	metrics.EmitJanitorSweep(s.metrics, metrics.SweepMetric{
		OrphansFailed:  int64(len(swept)),
		FailuresPruned: pruned,
		Duration:       time.Since(start),
		Err:            suppressContextCancellation(err),
	})
	return err
}

func (s *JanitorService) composeSweepError(orphanErr, pruneErr error) error {
	var errs []error
	allCanceled := true
	if orphanErr != nil {
		errs = append(errs, fmt.Errorf("sweep orphaned runs: %w", orphanErr))
		allCanceled = allCanceled && isContextCancellation(orphanErr)
	}
	if pruneErr != nil {
		errs = append(errs, fmt.Errorf("prune failed tasks: %w", pruneErr))
		allCanceled = allCanceled && isContextCancellation(pruneErr)
	}
	if len(errs) == 0 {
		return nil
	}
	if allCanceled {
		return context.Canceled
	}
	return errors.Join(errs...)
}
