package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	"github.com/spyglasshq/spyglass/internal/observability/metrics"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
)

// archiveTimeout bounds one background document-archive write after the task
// itself has moved on.
const archiveTimeout = 10 * time.Second

// RunProgress carries the run-level counters stamped onto telemetry events.
// The scheduler owns the counters; the pipeline only reads them and adds the
// task's own contribution to terminal-stage events.
type RunProgress struct {
	SourcesTotal     int
	SourcesProcessed int
	AlertsGenerated  int
}

// TaskOutcome is the terminal result of one source task.
type TaskOutcome struct {
	Entry        model.AnalysisEntry
	AlertCreated bool
	Failed       bool
}

// PipelineServiceOptions groups dependencies for PipelineService.
type PipelineServiceOptions struct {
	Scraper    core.Scraper               // Required: scraping collaborator client
	Analyzer   core.Analyzer              // Required: analysis collaborator client
	Alerts     core.AlertsRepository      // Required: alerts repository
	AlertQueue core.AlertQueue            // Required: dispatch queue
	Policy     core.PolicyEngine          // Required: alert suppression policy
	Failures   core.FailedTasksRepository // Required: failure log repository
	Telemetry  core.TelemetryBroadcaster  // Optional: dashboard progress broadcast
	DocStore   core.DocumentStore         // Optional: raw material archive
	Config     config.PipelineConfig      // Pipeline configuration
	Time       data.TimeProvider          // Optional: time source
	Metrics    statsd.Sink                // Optional: metrics sink (StatsD-compatible)
	Logger     *slog.Logger               // Optional: structured logger
}

// PipelineService runs one source task through the fixed stage machine:
// scrape, analyze, evaluate against the job's threshold and suppression
// policy, and commit an alert when everything clears. Every stage boundary
// broadcasts a telemetry event; every unrecoverable error lands in the
// failed-task log with the stage that broke.
type PipelineService struct {
	scraper    core.Scraper
	analyzer   core.Analyzer
	alerts     core.AlertsRepository
	alertQueue core.AlertQueue
	policy     core.PolicyEngine
	failures   core.FailedTasksRepository
	telemetry  core.TelemetryBroadcaster
	docstore   core.DocumentStore
	config     config.PipelineConfig
	time       data.TimeProvider
	metrics    statsd.Sink
	logger     *slog.Logger
}

// NewPipelineService constructs a new PipelineService.
func NewPipelineService(opts PipelineServiceOptions) (*PipelineService, error) {
	switch {
	case opts.Scraper == nil:
		return nil, errors.New("Scraper is required")
	case opts.Analyzer == nil:
		return nil, errors.New("Analyzer is required")
	case opts.Alerts == nil:
		return nil, errors.New("AlertsRepository is required")
	case opts.AlertQueue == nil:
		return nil, errors.New("AlertQueue is required")
	case opts.Policy == nil:
		return nil, errors.New("PolicyEngine is required")
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

	return &PipelineService{
		scraper:    opts.Scraper,
		analyzer:   opts.Analyzer,
		alerts:     opts.Alerts,
		alertQueue: opts.AlertQueue,
		policy:     opts.Policy,
		failures:   opts.Failures,
		telemetry:  opts.Telemetry,
		docstore:   opts.DocStore,
		config:     cfg,
		time:       timeProvider,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "pipeline_service"),
	}, nil
}

// ProcessTask runs one task to its terminal stage and returns the outcome.
// It never returns an error: failures are terminal outcomes recorded in the
// failed-task log, not conditions for the caller to retry.
func (s *PipelineService) ProcessTask(ctx context.Context, task model.Task, progress RunProgress) TaskOutcome {
	started := time.Now()
	s.emitStage(ctx, task, progress, model.StageInitializing, nil)

	scraped, outcome, failed := s.scrapeSource(ctx, task, progress)
	if failed {
		s.emitTaskMetric(task, outcome, started)
		return outcome
	}

	analysis, outcome, failed := s.analyzeContent(ctx, task, progress, scraped)
	if failed {
		s.emitTaskMetric(task, outcome, started)
		return outcome
	}

	outcome = s.evaluateAndCommit(ctx, task, progress, scraped, analysis)
	s.emitTaskMetric(task, outcome, started)
	return outcome
}

// scrapeSource pauses for the source jitter, fetches the content, and
// archives the raw document. The bool result reports a terminal failure.
func (s *PipelineService) scrapeSource(
	ctx context.Context,
	task model.Task,
	progress RunProgress,
) (*model.ScrapeResult, TaskOutcome, bool) {
	if err := s.pause(ctx, s.config.SourceJitterMin, s.config.SourceJitterMax); err != nil {
		return nil, s.failTask(ctx, task, progress, model.StageScraping,
			fmt.Errorf("interrupted before scrape: %w", err), nil), true
	}

	s.emitStage(ctx, task, progress, model.StageScraping, map[string]any{
		"source_domain": sourceDomain(task.SourceURL),
	})

	scrapeStart := time.Now()
	result, err := s.scraper.Scrape(ctx, model.ScrapeRequest{URL: task.SourceURL})
	elapsed := time.Since(scrapeStart)
	metrics.EmitStageTiming(s.metrics, metrics.StageMetric{
		Stage:    model.StageScraping.String(),
		Duration: elapsed,
		Err:      err,
	})
	if err != nil {
		return nil, s.failTask(ctx, task, progress, model.StageScraping,
			fmt.Errorf("scrape source: %w", err), nil), true
	}
	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = "scraper reported failure"
		}
		return nil, s.failTask(ctx, task, progress, model.StageScraping,
			fmt.Errorf("scrape source: %s", reason),
			map[string]any{"status_code": result.StatusCode}), true
	}
	if result.Content == "" {
		return nil, s.failTask(ctx, task, progress, model.StageScraping,
			errors.New("scraper returned no content"),
			map[string]any{"status_code": result.StatusCode}), true
	}

	s.emitStage(ctx, task, progress, model.StageScrapingComplete, map[string]any{
		"content_length":  len(result.Content),
		"content_preview": result.ContentPreview(),
		"status_code":     result.StatusCode,
	})

	s.archiveSource(ctx, task, result, elapsed)
	return result, TaskOutcome{}, false
}

// analyzeContent pauses for the analysis jitter and scores the content
// against the job's prompt. The bool result reports a terminal failure.
func (s *PipelineService) analyzeContent(
	ctx context.Context,
	task model.Task,
	progress RunProgress,
	scraped *model.ScrapeResult,
) (*model.AnalysisResult, TaskOutcome, bool) {
	if err := s.pause(ctx, s.config.AnalysisJitterMin, s.config.AnalysisJitterMax); err != nil {
		return nil, s.failTask(ctx, task, progress, model.StageAnalyzing,
			fmt.Errorf("interrupted before analysis: %w", err), nil), true
	}

	s.emitStage(ctx, task, progress, model.StageAnalyzing, map[string]any{
		"content_length": len(scraped.Content),
	})

	analysisStart := time.Now()
	analysis, err := s.analyzer.Analyze(ctx, model.AnalysisRequest{
		Content: scraped.Content,
		Prompt:  task.Prompt,
	})
	metrics.EmitStageTiming(s.metrics, metrics.StageMetric{
		Stage:    model.StageAnalyzing.String(),
		Duration: time.Since(analysisStart),
		Err:      err,
	})
	if err != nil {
		return nil, s.failTask(ctx, task, progress, model.StageAnalyzing,
			fmt.Errorf("analyze content: %w", err), nil), true
	}
	if !analysis.Success {
		reason := analysis.Error
		if reason == "" {
			reason = "analyzer reported failure"
		}
		return nil, s.failTask(ctx, task, progress, model.StageAnalyzing,
			fmt.Errorf("analyze content: %s", reason), nil), true
	}

	s.emitStage(ctx, task, progress, model.StageAnalysisComplete, map[string]any{
		"relevance_score": analysis.RelevanceScore,
		"title":           analysis.Title,
		"confidence":      analysis.Confidence,
	})

	return analysis, TaskOutcome{}, false
}

// evaluateAndCommit decides the task's terminal outcome: below threshold,
// suppressed by policy, alert committed, or failed on the way.
func (s *PipelineService) evaluateAndCommit(
	ctx context.Context,
	task model.Task,
	progress RunProgress,
	scraped *model.ScrapeResult,
	analysis *model.AnalysisResult,
) TaskOutcome {
	s.emitStage(ctx, task, progress, model.StageAlertEvaluation, map[string]any{
		"relevance_score": analysis.RelevanceScore,
		"threshold":       task.Policy.ThresholdScore,
	})

	if analysis.RelevanceScore < task.Policy.ThresholdScore {
		s.emitStage(ctx, task, progress, model.StageBelowThreshold, map[string]any{
			"relevance_score": analysis.RelevanceScore,
			"threshold":       task.Policy.ThresholdScore,
		})
		s.archiveAnalysis(ctx, task, analysis, false, "")

		entry := s.newEntry(task, analysis)
		entry.BelowThreshold = true
		return s.completeTask(ctx, task, progress, entry, false)
	}

	check := core.PolicyCheck{
		Policy:    task.Policy,
		JobID:     task.JobID,
		Summary:   analysis.Summary,
		SourceURL: task.SourceURL,
		Now:       s.time.Now(),
	}

	decision, err := s.policy.Evaluate(ctx, check)
	if err != nil {
		return s.failTask(ctx, task, progress, model.StageAlertEvaluation,
			fmt.Errorf("evaluate alert policy: %w", err), nil)
	}
	if !decision.Allowed() {
		s.emitStage(ctx, task, progress, model.StageAlertSuppressed, map[string]any{
			"decision": decision.String(),
			"reason":   decision.Reason(),
		})
		s.archiveAnalysis(ctx, task, analysis, false, "")

		entry := s.newEntry(task, analysis)
		entry.SuppressedReason = decision.Reason()
		return s.completeTask(ctx, task, progress, entry, false)
	}

	return s.commitAlert(ctx, task, progress, scraped, analysis, check)
}

// commitAlert persists the alert, arms the suppression state, and hands the
// payload to the dispatch queue.
func (s *PipelineService) commitAlert(
	ctx context.Context,
	task model.Task,
	progress RunProgress,
	scraped *model.ScrapeResult,
	analysis *model.AnalysisResult,
	check core.PolicyCheck,
) TaskOutcome {
	s.emitStage(ctx, task, progress, model.StageCreatingAlert, nil)

	content := analysis.Summary
	if content == "" {
		content = scraped.ContentPreview()
	}

	alert, err := s.alerts.Create(ctx, model.CreateAlertRequest{
		JobID:          task.JobID,
		RunID:          task.RunID,
		SourceURL:      task.SourceURL,
		Title:          analysis.Title,
		Content:        content,
		RelevanceScore: analysis.RelevanceScore,
	})
	if err != nil {
		return s.failTask(ctx, task, progress, model.StageCreatingAlert,
			fmt.Errorf("create alert: %w", err), nil)
	}

	// Suppression state is armed best-effort: the alert row is already the
	// source of truth, so a KV hiccup here only weakens dedup for an hour.
	if err := s.policy.RecordCreated(ctx, check, alert.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to arm suppression state",
			"alert_id", alert.ID,
			"job_id", task.JobID,
			"error", err)
	}

	payload := model.AlertPayload{
		AlertID:             alert.ID,
		JobID:               task.JobID,
		RunID:               task.RunID,
		SourceURL:           task.SourceURL,
		Title:               alert.Title,
		Content:             alert.Content,
		RelevanceScore:      alert.RelevanceScore,
		UserID:              task.UserID,
		Timestamp:           s.time.Now(),
		AcknowledgmentToken: alert.AcknowledgmentToken,
	}
	if err := s.alertQueue.Enqueue(ctx, payload); err != nil {
		// The alert row exists but no dispatch will happen; surface the
		// task as failed so the run reports the delivery gap.
		s.recordFailure(ctx, task, model.StageCreatingAlert,
			fmt.Errorf("enqueue alert: %w", err),
			map[string]any{"alert_id": alert.ID})

		entry := s.newEntry(task, analysis)
		entry.AlertGenerated = true
		entry.Error = fmt.Sprintf("enqueue alert: %v", err)

		term := progress
		term.SourcesProcessed++
		term.AlertsGenerated++
		s.emitStage(ctx, task, term, model.StageFailed, map[string]any{
			"stage": model.StageCreatingAlert.String(),
			"error": entry.Error,
		})
		return TaskOutcome{Entry: entry, AlertCreated: true, Failed: true}
	}

	s.emitStage(ctx, task, progress, model.StageAlertCreated, map[string]any{
		"alert_id":        alert.ID,
		"relevance_score": alert.RelevanceScore,
	})
	s.archiveAnalysis(ctx, task, analysis, true, alert.Title)

	s.logger.InfoContext(ctx, "alert created",
		"alert_id", alert.ID,
		"job_id", task.JobID,
		"run_id", task.RunID,
		"source_url", task.SourceURL,
		"relevance_score", alert.RelevanceScore)

	entry := s.newEntry(task, analysis)
	entry.AlertGenerated = true
	return s.completeTask(ctx, task, progress, entry, true)
}

// completeTask emits the finalizing and completed events with the task's own
// contribution folded into the counters.
func (s *PipelineService) completeTask(
	ctx context.Context,
	task model.Task,
	progress RunProgress,
	entry model.AnalysisEntry,
	alertCreated bool,
) TaskOutcome {
	term := progress
	term.SourcesProcessed++
	if alertCreated {
		term.AlertsGenerated++
	}

	s.emitStage(ctx, task, term, model.StageFinalizing, nil)
	s.emitStage(ctx, task, term, model.StageCompleted, nil)

	return TaskOutcome{Entry: entry, AlertCreated: alertCreated}
}

// failTask records the failure, emits the failed stage event, and returns
// the terminal outcome.
func (s *PipelineService) failTask(
	ctx context.Context,
	task model.Task,
	progress RunProgress,
	stage model.Stage,
	taskErr error,
	extra map[string]any,
) TaskOutcome {
	s.recordFailure(ctx, task, stage, taskErr, extra)

	term := progress
	term.SourcesProcessed++
	s.emitStage(ctx, task, term, model.StageFailed, map[string]any{
		"stage": stage.String(),
		"error": taskErr.Error(),
	})

	s.logger.WarnContext(ctx, "task failed",
		"job_id", task.JobID,
		"run_id", task.RunID,
		"source_url", task.SourceURL,
		"stage", stage,
		"error", taskErr)

	return TaskOutcome{
		Entry: model.AnalysisEntry{
			SourceURL: task.SourceURL,
			Error:     taskErr.Error(),
			Timestamp: s.time.Now(),
		},
		Failed: true,
	}
}

// recordFailure writes the failed-task log row. Logging the failure must not
// itself fail the task, so storage errors only reach the logger.
func (s *PipelineService) recordFailure(
	ctx context.Context,
	task model.Task,
	stage model.Stage,
	taskErr error,
	extra map[string]any,
) {
	failureCtx := map[string]any{
		"job_name": task.JobName,
		"user_id":  task.UserID,
	}
	for k, v := range extra {
		failureCtx[k] = v
	}

	err := s.failures.Record(ctx, model.FailedTask{
		JobID:        task.JobID,
		RunID:        task.RunID,
		SourceURL:    task.SourceURL,
		Stage:        stage,
		ErrorMessage: taskErr.Error(),
		Context:      failureCtx,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record task failure",
			"job_id", task.JobID,
			"run_id", task.RunID,
			"stage", stage,
			"error", err)
	}
}

func (s *PipelineService) newEntry(task model.Task, analysis *model.AnalysisResult) model.AnalysisEntry {
	return model.AnalysisEntry{
		SourceURL:      task.SourceURL,
		RelevanceScore: analysis.RelevanceScore,
		Title:          analysis.Title,
		Timestamp:      s.time.Now(),
	}
}

// emitStage broadcasts one stage-transition telemetry event. Broadcasting is
// non-blocking and never fails the task.
func (s *PipelineService) emitStage(
	ctx context.Context,
	task model.Task,
	progress RunProgress,
	stage model.Stage,
	stageData map[string]any,
) {
	if s.telemetry == nil {
		return
	}

	s.telemetry.Emit(ctx, model.TelemetryEvent{
		RunID:                task.RunID,
		JobID:                task.JobID,
		JobName:              task.JobName,
		SourceURL:            task.SourceURL,
		CurrentStage:         stage,
		CompletionPercentage: stage.CompletionPercent(),
		StageData:            stageData,
		SourcesProcessed:     progress.SourcesProcessed,
		SourcesTotal:         progress.SourcesTotal,
		AlertsGenerated:      progress.AlertsGenerated,
		UserID:               task.UserID,
		Timestamp:            s.time.Now(),
	})
}

// archiveSource stores the scraped document in the background. Archival is
// best-effort and detached from the task's context so a slow archive cannot
// stall or fail the run.
func (s *PipelineService) archiveSource(
	ctx context.Context,
	task model.Task,
	result *model.ScrapeResult,
	elapsed time.Duration,
) {
	if s.docstore == nil {
		return
	}

	params := core.SourceDocumentParams{
		RunID:          task.RunID,
		SourceURL:      task.SourceURL,
		CleanedContent: result.Content,
		StatusCode:     result.StatusCode,
		ResponseTime:   elapsed,
		ScrapedAt:      s.time.Now(),
	}

	go func() {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := s.docstore.AddSourceDocument(actx, params); err != nil {
			s.logger.Debug("source archive write failed",
				"run_id", task.RunID,
				"source_url", task.SourceURL,
				"error", err)
		}
	}()
}

// archiveAnalysis stores the analysis outcome in the background.
func (s *PipelineService) archiveAnalysis(
	ctx context.Context,
	task model.Task,
	analysis *model.AnalysisResult,
	alertGenerated bool,
	alertTitle string,
) {
	if s.docstore == nil {
		return
	}

	params := core.AnalysisDocumentParams{
		RunID:          task.RunID,
		SourceURL:      task.SourceURL,
		Prompt:         task.Prompt,
		RelevanceScore: analysis.RelevanceScore,
		AnalyzedAt:     s.time.Now(),
		AlertGenerated: alertGenerated,
		AlertTitle:     alertTitle,
		AlertContent:   analysis.Summary,
	}

	go func() {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := s.docstore.AddAnalysisDocument(actx, params); err != nil {
			s.logger.Debug("analysis archive write failed",
				"run_id", task.RunID,
				"source_url", task.SourceURL,
				"error", err)
		}
	}()
}

func (s *PipelineService) emitTaskMetric(task model.Task, outcome TaskOutcome, started time.Time) {
	in := metrics.TaskMetric{
		SourceDomain: sourceDomain(task.SourceURL),
		Duration:     time.Since(started),
	}

	switch {
	case outcome.Failed:
		in.Outcome = metrics.TaskOutcomeFailed
	case outcome.AlertCreated:
		in.Outcome = metrics.TaskOutcomeAlert
	case outcome.Entry.SuppressedReason != "":
		in.Outcome = metrics.TaskOutcomeSuppressed
		in.Reason = outcome.Entry.SuppressedReason
	default:
		in.Outcome = metrics.TaskOutcomeBelowThreshold
	}

	metrics.EmitTaskOutcome(s.metrics, in)
}

// pause sleeps a randomized duration within [min, max], interruptible by the
// context. Jitter spreads load across scraped origins and the analyzer.
func (s *PipelineService) pause(ctx context.Context, minPause, maxPause time.Duration) error {
	d := jitterBetween(minPause, maxPause)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitterBetween picks a duration in [min, max]. Randomness failures degrade
// to the minimum rather than failing the task.
func jitterBetween(minPause, maxPause time.Duration) time.Duration {
	if maxPause <= minPause {
		return minPause
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return minPause
	}

	span := uint64(maxPause - minPause)
	offset := binary.BigEndian.Uint64(buf[:]) % span
	return minPause + time.Duration(int64(offset)) // #nosec G115 - bounded by span which is int64
}

// sourceDomain reduces a source URL to its registered domain for metric tags
// and telemetry stage data. Unparseable URLs group under "unknown".
func sourceDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}

	host := u.Hostname()
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
