// Package service provides business logic services for the spyglass monitoring workers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	"github.com/spyglasshq/spyglass/internal/domain/tier"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
	obserrors "github.com/spyglasshq/spyglass/internal/observability/errors"
	"github.com/spyglasshq/spyglass/internal/observability/metrics"
	"github.com/spyglasshq/spyglass/internal/observability/notify"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
	"github.com/spyglasshq/spyglass/internal/service/failurenotifier"
)

// finalizeTimeout bounds the terminal writes of a run once its tasks are
// done. Finalization runs on a detached context so a shutdown mid-run still
// lands the run in a terminal state instead of leaving an orphan.
const finalizeTimeout = 10 * time.Second

// TaskRunner processes one source task to its terminal outcome.
type TaskRunner interface {
	ProcessTask(ctx context.Context, task model.Task, progress RunProgress) TaskOutcome
}

// SchedulerServiceOptions groups dependencies for SchedulerService.
type SchedulerServiceOptions struct {
	Registry        core.JobRegistry          // Required: job definition registry
	Leases          core.LeaseManager         // Required: cross-worker job leases
	Runs            core.JobRunsRepository    // Required: run lifecycle repository
	Signals         core.JobQueue             // Required: lifecycle signal queue
	Pipeline        TaskRunner                // Required: per-source task pipeline
	Telemetry       core.TelemetryBroadcaster // Optional: dashboard progress broadcast
	DocStore        core.DocumentStore        // Optional: raw material archive
	Config          config.SchedulerConfig    // Scheduler configuration
	WorkerID        string                    // Optional: worker identity for operator notifications
	Time            data.TimeProvider         // Optional: time source
	Metrics         statsd.Sink               // Optional: metrics sink (StatsD-compatible)
	Logger          *slog.Logger              // Optional: structured logger
	FailureNotifier *failurenotifier.Service  // Optional: operator failure notification fan-out
}

// SchedulerService is the batch scheduler. Each tick drains lifecycle
// signals from the API tier, fires immediate runs for create and run_now
// signals, then sweeps every active job in batches and starts a run for each
// job that is due and unleased. Runs fan their sources out to the task
// pipeline under a worker-wide source limit and finalize exactly once.
type SchedulerService struct {
	registry        core.JobRegistry
	leases          core.LeaseManager
	runs            core.JobRunsRepository
	signals         core.JobQueue
	pipeline        TaskRunner
	telemetry       core.TelemetryBroadcaster
	docstore        core.DocumentStore
	config          config.SchedulerConfig
	workerID        string
	time            data.TimeProvider
	metrics         statsd.Sink
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service

	jobSem       *semaphore.Weighted
	sourceSem    *semaphore.Weighted
	immediateSem *semaphore.Weighted
}

// NewSchedulerService constructs a new SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	switch {
	case opts.Registry == nil:
		return nil, errors.New("JobRegistry is required")
	case opts.Leases == nil:
		return nil, errors.New("LeaseManager is required")
	case opts.Runs == nil:
		return nil, errors.New("JobRunsRepository is required")
	case opts.Signals == nil:
		return nil, errors.New("JobQueue is required")
	case opts.Pipeline == nil:
		return nil, errors.New("TaskRunner is required")
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

	return &SchedulerService{
		registry:        opts.Registry,
		leases:          opts.Leases,
		runs:            opts.Runs,
		signals:         opts.Signals,
		pipeline:        opts.Pipeline,
		telemetry:       opts.Telemetry,
		docstore:        opts.DocStore,
		config:          cfg,
		workerID:        opts.WorkerID,
		time:            timeProvider,
		metrics:         opts.Metrics,
		logger:          logger.With("component", "scheduler_service"),
		failureNotifier: opts.FailureNotifier,
		jobSem:          semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		sourceSem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentSources)),
		immediateSem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentImmediate)),
	}, nil
}

// Run starts the scheduler loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SchedulerService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting scheduler",
		"interval", s.config.Interval,
		"batch_size", s.config.BatchSize,
		"max_concurrent_jobs", s.config.MaxConcurrentJobs,
		"max_concurrent_sources", s.config.MaxConcurrentSources,
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	streak := 0

	// First pass immediately so a restart does not wait a full interval
	if _, err := s.Tick(ctx, s.time.Now()); err != nil {
		streak = s.handleTickError(ctx, streak, err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			if _, err := s.Tick(ctx, now); err != nil {
				streak = s.handleTickError(ctx, streak, err)
				// Continue running despite errors
			} else {
				streak = 0
			}
		}
	}
}

// handleTickError logs the failure and pages the operator when the
// consecutive-failure streak reaches the configured threshold. One page per
// streak; the counter resets on the first clean tick.
func (s *SchedulerService) handleTickError(ctx context.Context, streak int, err error) int {
	if isContextCancellation(err) {
		return streak
	}
	s.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)

	streak++
	if s.failureNotifier == nil || s.config.FailureAlertStreak <= 0 || streak != s.config.FailureAlertStreak {
		return streak
	}

	s.failureNotifier.NotifyWorkerFailure(ctx, notify.WorkerFailurePayload{
		Worker:      string(config.ServiceModeScheduler),
		WorkerID:    s.workerID,
		Error:       err.Error(),
		ErrorClass:  obserrors.Classify(err),
		Consecutive: streak,
		Severity:    notify.SeverityError,
		OccurredAt:  s.time.Now(),
	})
	return streak
}

// Tick runs one scheduling pass: drain lifecycle signals, fire immediate
// runs, then sweep active jobs in batches. Returns the number of runs
// started.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	tracker := &tickTracker{}

	immediate, drainErr := s.drainSignals(ctx)
	s.runImmediates(ctx, immediate, tracker)

	sweepErr := s.sweepActiveJobs(ctx, now, tracker)

	err := firstError(drainErr, sweepErr)
	scheduled, immediateRuns, skipped, failed := tracker.counts()
	metrics.EmitSchedulerTick(s.metrics, metrics.TickMetric{
		Scheduled: scheduled,
		Immediate: immediateRuns,
		Skipped:   skipped,
		Failed:    failed,
		Duration:  time.Since(started),
		Err:       err,
	})
	return scheduled + immediateRuns, err
}

// drainSignals pops lifecycle messages until the queue is empty or the drain
// limit is hit. Deletes invalidate the job cache; create and run_now signals
// are returned for immediate execution.
func (s *SchedulerService) drainSignals(ctx context.Context) ([]model.JobQueueMessage, error) {
	var immediate []model.JobQueueMessage
	for range s.config.SignalDrainLimit {
		msg, err := s.signals.Dequeue(ctx)
		if err != nil {
			return immediate, fmt.Errorf("drain job signals: %w", err)
		}
		if msg == nil {
			break
		}

		switch {
		case msg.Action == model.JobQueueActionDelete:
			if err := s.registry.Invalidate(ctx, msg.JobID); err != nil {
				s.logger.WarnContext(ctx, "failed to invalidate job cache",
					"job_id", msg.JobID, "error", err)
			}
		case msg.Action.TriggersRun():
			immediate = append(immediate, *msg)
		default:
			s.logger.WarnContext(ctx, "unknown job signal dropped",
				"job_id", msg.JobID, "action", string(msg.Action))
		}
	}
	return immediate, nil
}

// runImmediates executes run-triggering signals concurrently, bounded by the
// immediate semaphore. Waits for all started runs before returning.
func (s *SchedulerService) runImmediates(
	ctx context.Context,
	signals []model.JobQueueMessage,
	tracker *tickTracker,
) {
	if len(signals) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, msg := range signals {
		if err := s.immediateSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.immediateSem.Release(1)
			s.runImmediate(ctx, msg, tracker)
		}()
	}
	wg.Wait()
}

// runImmediate starts one run for a create or run_now signal. The immediate
// shield dedupes the signal across workers; the job lease still serializes
// execution, so a signal inside a live lease window is skipped.
func (s *SchedulerService) runImmediate(ctx context.Context, msg model.JobQueueMessage, tracker *tickTracker) {
	logger := s.logger.With("job_id", msg.JobID, "action", string(msg.Action))

	claimed, err := s.leases.TryImmediate(ctx, msg.JobID)
	if err != nil {
		logger.WarnContext(ctx, "immediate shield check failed", "error", err)
		tracker.fail()
		return
	}
	if !claimed {
		logger.DebugContext(ctx, "immediate run already claimed by another worker")
		tracker.skip()
		return
	}

	job, err := s.registry.Job(ctx, msg.JobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			logger.DebugContext(ctx, "job gone before immediate run")
			tracker.skip()
			return
		}
		logger.WarnContext(ctx, "failed to load job for immediate run", "error", err)
		tracker.fail()
		return
	}
	if !job.Processable(tier.MinFrequencyMinutes(job.UserTier)) {
		logger.DebugContext(ctx, "job not processable, skipping immediate run", "tier", job.UserTier)
		tracker.skip()
		return
	}

	acquired, err := s.leases.TryAcquire(ctx, job.ID, job.Frequency())
	if err != nil {
		logger.WarnContext(ctx, "lease acquisition failed", "error", err)
		tracker.fail()
		return
	}
	if !acquired {
		logger.DebugContext(ctx, "job lease held elsewhere, skipping immediate run")
		tracker.skip()
		return
	}

	s.executeRun(ctx, job, tracker, true)
}

// sweepActiveJobs evaluates every active job in batches of BatchSize.
func (s *SchedulerService) sweepActiveJobs(ctx context.Context, now time.Time, tracker *tickTracker) error {
	jobs, err := s.registry.ListActiveJobs(ctx)
	if err != nil {
		return fmt.Errorf("list active jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	for start := 0; start < len(jobs); start += s.config.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + s.config.BatchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		s.runBatch(ctx, jobs[start:end], now, tracker)
	}
	return nil
}

// runBatch evaluates one batch of jobs concurrently, bounded by the job
// semaphore. Waits for every started run before returning so a tick never
// overlaps itself.
func (s *SchedulerService) runBatch(ctx context.Context, batch []model.Job, now time.Time, tracker *tickTracker) {
	var wg sync.WaitGroup
	for i := range batch {
		job := &batch[i]
		if !job.Processable(tier.MinFrequencyMinutes(job.UserTier)) {
			tracker.skip()
			continue
		}
		if err := s.jobSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.jobSem.Release(1)
			s.runScheduledJob(ctx, job, now, tracker)
		}()
	}
	wg.Wait()
}

// runScheduledJob takes the job's lease, checks whether the frequency window
// has elapsed, and starts a run when it has. A job that is leased but not due
// gets its lease released so due-time acquisition is not delayed.
func (s *SchedulerService) runScheduledJob(ctx context.Context, job *model.Job, now time.Time, tracker *tickTracker) {
	logger := s.logger.With("job_id", job.ID)

	acquired, err := s.leases.TryAcquire(ctx, job.ID, job.Frequency())
	if err != nil {
		logger.WarnContext(ctx, "lease acquisition failed", "error", err)
		tracker.fail()
		return
	}
	if !acquired {
		tracker.skip()
		return
	}

	due, err := s.leases.IsDue(ctx, job.ID, job.Frequency(), now)
	if err != nil {
		logger.WarnContext(ctx, "due check failed", "error", err)
		s.releaseLease(ctx, job.ID, logger)
		tracker.fail()
		return
	}
	if !due {
		s.releaseLease(ctx, job.ID, logger)
		tracker.skip()
		return
	}

	s.executeRun(ctx, job, tracker, false)
}

func (s *SchedulerService) releaseLease(ctx context.Context, jobID string, logger *slog.Logger) {
	if err := s.leases.Release(ctx, jobID); err != nil {
		logger.WarnContext(ctx, "failed to release job lease", "error", err)
	}
}

// executeRun creates the run record, fans the job's sources out to the
// pipeline, and finalizes the run. The job lease is not released on success;
// its TTL enforces minimum spacing even when the last-run stamp is lost.
func (s *SchedulerService) executeRun(ctx context.Context, job *model.Job, tracker *tickTracker, immediate bool) {
	now := s.time.Now()
	run := &model.JobRun{
		RunID:     model.NewRunID(job.ID, now),
		JobID:     job.ID,
		StartedAt: now,
		Status:    model.RunStatusRunning,
	}
	logger := s.logger.With("job_id", job.ID, "run_id", run.RunID)

	if err := s.runs.Create(ctx, run); err != nil {
		logger.ErrorContext(ctx, "failed to create run record", "error", err)
		s.releaseLease(ctx, job.ID, logger)
		tracker.fail()
		return
	}
	tracker.started(immediate)

	logger.InfoContext(ctx, "run started",
		"job_name", job.Name,
		"sources", len(job.Sources),
		"immediate", immediate,
	)
	s.archiveRunStart(ctx, job, run)

	state := newRunState(len(job.Sources))
	s.processSources(ctx, job, run, state)
	s.finalizeRun(ctx, job, run, state)
}

// processSources runs one task per source, bounded by the worker-wide source
// semaphore. Task failures are terminal outcomes, never reasons to cancel
// sibling tasks.
func (s *SchedulerService) processSources(ctx context.Context, job *model.Job, run *model.JobRun, state *runState) {
	var wg sync.WaitGroup
	for _, source := range job.Sources {
		if err := s.sourceSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sourceSem.Release(1)

			task := model.Task{
				RunID:     run.RunID,
				JobID:     job.ID,
				JobName:   job.Name,
				UserID:    job.UserID,
				SourceURL: source,
				Prompt:    job.Prompt,
				Policy:    job.Policy(),
			}
			outcome := s.pipeline.ProcessTask(ctx, task, state.snapshot())
			state.apply(outcome)
		}()
	}
	wg.Wait()
}

// finalizeRun writes the run's terminal state exactly once and stamps the
// job's last-run marker. It runs on a detached context so shutdown does not
// strand the run; if the write still fails, the lease TTL and the janitor's
// orphan sweep recover the job.
func (s *SchedulerService) finalizeRun(ctx context.Context, job *model.Job, run *model.JobRun, state *runState) {
	logger := s.logger.With("job_id", job.ID, "run_id", run.RunID)

	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	progress, entries, failed, firstErr := state.result()
	completedAt := s.time.Now()

	status := model.RunStatusCompleted
	var errMsg *string
	if failed {
		status = model.RunStatusFailed
		if firstErr != "" {
			errMsg = &firstErr
		}
	}

	finalized, err := s.runs.Finalize(finCtx, core.FinalizeRunParams{
		RunID:            run.RunID,
		Status:           status,
		CompletedAt:      completedAt,
		SourcesProcessed: progress.SourcesProcessed,
		AlertsGenerated:  progress.AlertsGenerated,
		AnalysisSummary:  model.TrimAnalysisSummary(entries),
		ErrorMessage:     errMsg,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to finalize run", "error", err)
		return
	}
	if !finalized {
		// Swept as an orphan while tasks were still draining
		logger.DebugContext(ctx, "run already finalized")
	}

	s.emitRunCompletion(finCtx, job, run, progress, entries, status, completedAt)
	s.archiveRunCompletion(ctx, run, progress, status, completedAt)

	if err := s.leases.RecordRun(finCtx, job.ID, completedAt); err != nil {
		logger.WarnContext(ctx, "failed to record last run", "error", err)
	}

	logger.InfoContext(ctx, "run finished",
		"status", status.String(),
		"sources_processed", progress.SourcesProcessed,
		"alerts_generated", progress.AlertsGenerated,
	)
}

// emitRunCompletion broadcasts the job-level terminal event for the live
// dashboard.
func (s *SchedulerService) emitRunCompletion(
	ctx context.Context,
	job *model.Job,
	run *model.JobRun,
	progress RunProgress,
	entries []model.AnalysisEntry,
	status model.RunStatus,
	completedAt time.Time,
) {
	if s.telemetry == nil {
		return
	}

	stage := model.StageCompleted
	if status == model.RunStatusFailed {
		stage = model.StageFailed
	}
	s.telemetry.Emit(ctx, model.TelemetryEvent{
		RunID:                run.RunID,
		JobID:                job.ID,
		JobName:              job.Name,
		CurrentStage:         stage,
		CompletionPercentage: stage.CompletionPercent(),
		SourcesProcessed:     progress.SourcesProcessed,
		SourcesTotal:         progress.SourcesTotal,
		AlertsGenerated:      progress.AlertsGenerated,
		AnalysisDetails:      model.TrimAnalysisSummary(entries),
		UserID:               job.UserID,
		Timestamp:            completedAt,
	})
}

// archiveRunStart opens the run record in the document archive in the
// background. Archival never blocks or fails a run.
func (s *SchedulerService) archiveRunStart(ctx context.Context, job *model.Job, run *model.JobRun) {
	if s.docstore == nil {
		return
	}

	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()

		err := s.docstore.StartRun(dctx, core.StartRunParams{
			RunID:            run.RunID,
			JobID:            job.ID,
			UserID:           job.UserID,
			JobName:          job.Name,
			Prompt:           job.Prompt,
			Sources:          job.Sources,
			FrequencyMinutes: job.FrequencyMinutes,
			ThresholdScore:   job.ThresholdScore,
			StartedAt:        run.StartedAt,
		})
		if err != nil {
			s.logger.DebugContext(dctx, "failed to archive run start",
				"run_id", run.RunID, "error", err)
		}
	}()
}

// archiveRunCompletion closes the run record in the document archive in the
// background.
func (s *SchedulerService) archiveRunCompletion(
	ctx context.Context,
	run *model.JobRun,
	progress RunProgress,
	status model.RunStatus,
	completedAt time.Time,
) {
	if s.docstore == nil {
		return
	}

	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()

		err := s.docstore.CompleteRun(dctx, core.CompleteRunParams{
			RunID: run.RunID,
			Summary: map[string]any{
				"status":            status.String(),
				"sources_processed": progress.SourcesProcessed,
				"alerts_generated":  progress.AlertsGenerated,
				"completed_at":      completedAt.UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			s.logger.DebugContext(dctx, "failed to archive run completion",
				"run_id", run.RunID, "error", err)
		}
	}()
}

// runState accumulates task outcomes for one run. Tasks read a snapshot of
// the counters for telemetry and report terminal outcomes back through apply.
type runState struct {
	mu       sync.Mutex
	progress RunProgress
	entries  []model.AnalysisEntry
	failed   bool
	firstErr string
}

func newRunState(totalSources int) *runState {
	return &runState{progress: RunProgress{SourcesTotal: totalSources}}
}

func (r *runState) snapshot() RunProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *runState) apply(outcome TaskOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress.SourcesProcessed++
	if outcome.AlertCreated {
		r.progress.AlertsGenerated++
	}
	if outcome.Failed {
		r.failed = true
		if r.firstErr == "" && outcome.Entry.Error != "" {
			r.firstErr = outcome.Entry.Error
		}
	}
	r.entries = append(r.entries, outcome.Entry)
}

func (r *runState) result() (RunProgress, []model.AnalysisEntry, bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress, r.entries, r.failed, r.firstErr
}

// tickTracker accumulates per-tick counters across concurrent run goroutines.
type tickTracker struct {
	mu        sync.Mutex
	scheduled int
	immediate int
	skipped   int
	failed    int
}

func (t *tickTracker) started(immediate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if immediate {
		t.immediate++
	} else {
		t.scheduled++
	}
}

func (t *tickTracker) skip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped++
}

func (t *tickTracker) fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

func (t *tickTracker) counts() (scheduled, immediate, skipped, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scheduled, t.immediate, t.skipped, t.failed
}

// firstError returns the first non-nil error from the given errors.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// isContextCancellation checks if an error is due to context cancellation.
func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// suppressContextCancellation maps context cancellation to nil for graceful
// shutdown paths.
func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
