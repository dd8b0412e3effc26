package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// mockScraper is a simple mock implementation for testing.
type mockScraper struct {
	mu      sync.Mutex
	called  int
	lastReq model.ScrapeRequest
	result  *model.ScrapeResult
	err     error
}

func (m *mockScraper) Scrape(ctx context.Context, req model.ScrapeRequest) (*model.ScrapeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return nil, errors.New("not implemented")
	}
	return m.result, nil
}

type mockAnalyzer struct {
	mu      sync.Mutex
	called  int
	lastReq model.AnalysisRequest
	result  *model.AnalysisResult
	err     error
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return nil, errors.New("not implemented")
	}
	return m.result, nil
}

type mockAlertsRepo struct {
	mu sync.Mutex

	createCalled int
	createReqs   []model.CreateAlertRequest
	createErr    error

	markSentCalled  int
	markSentIDs     []string
	markSentMissing bool
	markSentErr     error

	ensureTokenCalled int
	ensureToken       string
	ensureTokenErr    error

	findDueCalled     int
	findDueLimit      int
	findDueCandidates []model.RepeatCandidate
	findDueErr        error
	findDueErrCalls   int

	incrementCalled   int
	incrementIDs      []string
	incrementExpected []int
	incrementNextAt   []time.Time
	incrementLost     bool
	incrementErr      error
}

func (m *mockAlertsRepo) Create(ctx context.Context, req model.CreateAlertRequest) (*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalled++
	m.createReqs = append(m.createReqs, req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &model.Alert{
		ID:                  fmt.Sprintf("alert-%d", m.createCalled),
		JobID:               req.JobID,
		RunID:               req.RunID,
		SourceURL:           req.SourceURL,
		Title:               req.Title,
		Content:             req.Content,
		RelevanceScore:      req.RelevanceScore,
		AcknowledgmentToken: fmt.Sprintf("token-%d", m.createCalled),
	}, nil
}

func (m *mockAlertsRepo) GetByID(ctx context.Context, alertID string) (*model.Alert, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAlertsRepo) MarkSent(ctx context.Context, alertID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markSentCalled++
	m.markSentIDs = append(m.markSentIDs, alertID)
	if m.markSentErr != nil {
		return false, m.markSentErr
	}
	return !m.markSentMissing, nil
}

func (m *mockAlertsRepo) EnsureAcknowledgmentToken(ctx context.Context, alertID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTokenCalled++
	if m.ensureTokenErr != nil {
		return "", m.ensureTokenErr
	}
	if m.ensureToken == "" {
		return "", errors.New("not implemented")
	}
	return m.ensureToken, nil
}

func (m *mockAlertsRepo) FindRepeatDue(ctx context.Context, now time.Time, limit int) ([]model.RepeatCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findDueCalled++
	m.findDueLimit = limit
	// The first findDueErrCalls calls fail, then the candidates flow.
	if m.findDueErr != nil && m.findDueCalled <= m.findDueErrCalls {
		return nil, m.findDueErr
	}
	return m.findDueCandidates, nil
}

func (m *mockAlertsRepo) IncrementRepeat(ctx context.Context, alertID string, expectedCount int, nextRepeatAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incrementCalled++
	m.incrementIDs = append(m.incrementIDs, alertID)
	m.incrementExpected = append(m.incrementExpected, expectedCount)
	m.incrementNextAt = append(m.incrementNextAt, nextRepeatAt)
	if m.incrementErr != nil {
		return false, m.incrementErr
	}
	return !m.incrementLost, nil
}

func (m *mockAlertsRepo) Acknowledge(ctx context.Context, alertID, token, acknowledgedBy string, at time.Time) (bool, error) {
	return false, errors.New("not implemented")
}

type mockAlertQueue struct {
	mu sync.Mutex

	enqueued   []model.AlertPayload
	enqueueErr error

	pending         []model.AlertPayload
	dequeueCalled   int
	dequeueErr      error
	dequeueErrCalls int
}

func (m *mockAlertQueue) Enqueue(ctx context.Context, payload model.AlertPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, payload)
	return nil
}

func (m *mockAlertQueue) Dequeue(ctx context.Context) (*model.AlertPayload, error) {
	m.mu.Lock()
	m.dequeueCalled++
	if m.dequeueErr != nil && m.dequeueCalled <= m.dequeueErrCalls {
		m.mu.Unlock()
		return nil, m.dequeueErr
	}
	if len(m.pending) > 0 {
		p := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		return &p, nil
	}
	m.mu.Unlock()

	// Block briefly like the real queue's poll so worker loops do not spin.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (m *mockAlertQueue) Depth(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

type mockPolicyEngine struct {
	mu sync.Mutex

	evaluateCalled int
	lastCheck      core.PolicyCheck
	decision       model.PolicyDecision
	evaluateErr    error

	recordCalled   int
	recordAlertIDs []string
	recordErr      error

	dedupCalled int
	dedupOwner  string
	dedupErr    error
}

func (m *mockPolicyEngine) Evaluate(ctx context.Context, check core.PolicyCheck) (model.PolicyDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluateCalled++
	m.lastCheck = check
	if m.evaluateErr != nil {
		return "", m.evaluateErr
	}
	if m.decision == "" {
		return model.PolicyAllow, nil
	}
	return m.decision, nil
}

func (m *mockPolicyEngine) RecordCreated(ctx context.Context, check core.PolicyCheck, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCalled++
	m.recordAlertIDs = append(m.recordAlertIDs, alertID)
	return m.recordErr
}

func (m *mockPolicyEngine) DedupOwner(ctx context.Context, jobID, sourceURL string, at time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dedupCalled++
	if m.dedupErr != nil {
		return "", m.dedupErr
	}
	return m.dedupOwner, nil
}

type mockFailedTasksRepo struct {
	mu sync.Mutex

	recordCalled int
	failures     []model.FailedTask
	recordErr    error

	trimCalled  int
	trimCutoffs []time.Time
	trimCount   int64
	trimErr     error
}

func (m *mockFailedTasksRepo) Record(ctx context.Context, failure model.FailedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCalled++
	m.failures = append(m.failures, failure)
	return m.recordErr
}

func (m *mockFailedTasksRepo) TrimOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimCalled++
	m.trimCutoffs = append(m.trimCutoffs, cutoff)
	if m.trimErr != nil {
		return 0, m.trimErr
	}
	return m.trimCount, nil
}

type mockTelemetry struct {
	mu     sync.Mutex
	events []model.TelemetryEvent
}

func (m *mockTelemetry) Emit(ctx context.Context, event model.TelemetryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockTelemetry) stages() []model.Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Stage, len(m.events))
	for i, e := range m.events {
		out[i] = e.CurrentStage
	}
	return out
}

func (m *mockTelemetry) last() model.TelemetryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[len(m.events)-1]
}

// mockDocStore hands archived documents back over channels because the
// pipeline and scheduler write them from detached goroutines.
type mockDocStore struct {
	started   chan core.StartRunParams
	sources   chan core.SourceDocumentParams
	analyses  chan core.AnalysisDocumentParams
	completed chan core.CompleteRunParams
	err       error
}

func newMockDocStore() *mockDocStore {
	return &mockDocStore{
		started:   make(chan core.StartRunParams, 8),
		sources:   make(chan core.SourceDocumentParams, 8),
		analyses:  make(chan core.AnalysisDocumentParams, 8),
		completed: make(chan core.CompleteRunParams, 8),
	}
}

func (m *mockDocStore) StartRun(ctx context.Context, p core.StartRunParams) error {
	m.started <- p
	return m.err
}

func (m *mockDocStore) AddSourceDocument(ctx context.Context, p core.SourceDocumentParams) error {
	m.sources <- p
	return m.err
}

func (m *mockDocStore) AddAnalysisDocument(ctx context.Context, p core.AnalysisDocumentParams) error {
	m.analyses <- p
	return m.err
}

func (m *mockDocStore) CompleteRun(ctx context.Context, p core.CompleteRunParams) error {
	m.completed <- p
	return m.err
}

var (
	_ core.Scraper               = (*mockScraper)(nil)
	_ core.Analyzer              = (*mockAnalyzer)(nil)
	_ core.AlertsRepository      = (*mockAlertsRepo)(nil)
	_ core.AlertQueue            = (*mockAlertQueue)(nil)
	_ core.PolicyEngine          = (*mockPolicyEngine)(nil)
	_ core.FailedTasksRepository = (*mockFailedTasksRepo)(nil)
	_ core.TelemetryBroadcaster  = (*mockTelemetry)(nil)
	_ core.DocumentStore         = (*mockDocStore)(nil)
)

// pipelineFixture wires a PipelineService over mocks primed for the happy
// path: scrape succeeds, analysis clears the threshold, policy allows.
// Tests flip individual mocks before calling ProcessTask.
type pipelineFixture struct {
	scraper   *mockScraper
	analyzer  *mockAnalyzer
	alerts    *mockAlertsRepo
	queue     *mockAlertQueue
	policy    *mockPolicyEngine
	failures  *mockFailedTasksRepo
	telemetry *mockTelemetry
	docstore  *mockDocStore
	now       time.Time
	svc       *PipelineService
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		scraper: &mockScraper{
			result: &model.ScrapeResult{
				URL:        "https://shop.example.com/widgets",
				Content:    "<h1>Widgets</h1><p>Now 40% off while stocks last.</p>",
				StatusCode: 200,
				Success:    true,
			},
		},
		analyzer: &mockAnalyzer{
			result: &model.AnalysisResult{
				RelevanceScore: 82,
				Title:          "Widget price dropped 40%",
				Summary:        "The widget listing now advertises a 40% discount.",
				Confidence:     0.9,
				Success:        true,
			},
		},
		alerts:    &mockAlertsRepo{},
		queue:     &mockAlertQueue{},
		policy:    &mockPolicyEngine{},
		failures:  &mockFailedTasksRepo{},
		telemetry: &mockTelemetry{},
		docstore:  newMockDocStore(),
		now:       time.Date(2025, 3, 7, 10, 30, 0, 0, time.UTC),
	}

	svc, err := NewPipelineService(PipelineServiceOptions{
		Scraper:    f.scraper,
		Analyzer:   f.analyzer,
		Alerts:     f.alerts,
		AlertQueue: f.queue,
		Policy:     f.policy,
		Failures:   f.failures,
		Telemetry:  f.telemetry,
		DocStore:   f.docstore,
		Config:     config.PipelineConfig{},
		Time:       data.NewFixedTimeProvider(f.now),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func testTask() model.Task {
	return model.Task{
		RunID:     "run_job-1_1741343400",
		JobID:     "job-1",
		JobName:   "Widget price watch",
		UserID:    "user-1",
		SourceURL: "https://shop.example.com/widgets",
		Prompt:    "Alert when widget prices drop",
		Policy: model.JobPolicy{
			ThresholdScore:       70,
			FrequencyMinutes:     60,
			AlertCooldownMinutes: 60,
			MaxAlertsPerHour:     5,
		},
	}
}

func TestNewPipelineService(t *testing.T) {
	valid := func() PipelineServiceOptions {
		return PipelineServiceOptions{
			Scraper:    &mockScraper{},
			Analyzer:   &mockAnalyzer{},
			Alerts:     &mockAlertsRepo{},
			AlertQueue: &mockAlertQueue{},
			Policy:     &mockPolicyEngine{},
			Failures:   &mockFailedTasksRepo{},
		}
	}

	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewPipelineService(valid())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	cases := []struct {
		name   string
		mutate func(*PipelineServiceOptions)
		want   string
	}{
		{"nil scraper", func(o *PipelineServiceOptions) { o.Scraper = nil }, "Scraper is required"},
		{"nil analyzer", func(o *PipelineServiceOptions) { o.Analyzer = nil }, "Analyzer is required"},
		{"nil alerts", func(o *PipelineServiceOptions) { o.Alerts = nil }, "AlertsRepository is required"},
		{"nil queue", func(o *PipelineServiceOptions) { o.AlertQueue = nil }, "AlertQueue is required"},
		{"nil policy", func(o *PipelineServiceOptions) { o.Policy = nil }, "PolicyEngine is required"},
		{"nil failures", func(o *PipelineServiceOptions) { o.Failures = nil }, "FailedTasksRepository is required"},
	}
	for _, tc := range cases {
		t.Run("returns error with "+tc.name, func(t *testing.T) {
			opts := valid()
			tc.mutate(&opts)
			_, err := NewPipelineService(opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPipelineService_ProcessTask(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and enqueues an alert above threshold", func(t *testing.T) {
		f := newPipelineFixture(t)
		task := testTask()

		outcome := f.svc.ProcessTask(ctx, task, RunProgress{SourcesTotal: 3, SourcesProcessed: 1})

		assert.True(t, outcome.AlertCreated)
		assert.False(t, outcome.Failed)
		assert.True(t, outcome.Entry.AlertGenerated)
		assert.Equal(t, 82, outcome.Entry.RelevanceScore)
		assert.Equal(t, "Widget price dropped 40%", outcome.Entry.Title)
		assert.Empty(t, outcome.Entry.Error)

		assert.Equal(t, task.SourceURL, f.scraper.lastReq.URL)
		assert.Equal(t, task.Prompt, f.analyzer.lastReq.Prompt)
		assert.Equal(t, f.scraper.result.Content, f.analyzer.lastReq.Content)

		require.Len(t, f.alerts.createReqs, 1)
		created := f.alerts.createReqs[0]
		assert.Equal(t, task.JobID, created.JobID)
		assert.Equal(t, task.RunID, created.RunID)
		assert.Equal(t, task.SourceURL, created.SourceURL)
		assert.Equal(t, "Widget price dropped 40%", created.Title)
		assert.Equal(t, f.analyzer.result.Summary, created.Content)
		assert.Equal(t, 82, created.RelevanceScore)

		// Suppression state armed with the committed alert's id.
		assert.Equal(t, []string{"alert-1"}, f.policy.recordAlertIDs)
		assert.Equal(t, task.JobID, f.policy.lastCheck.JobID)
		assert.Equal(t, task.SourceURL, f.policy.lastCheck.SourceURL)
		assert.Equal(t, f.analyzer.result.Summary, f.policy.lastCheck.Summary)
		assert.Equal(t, f.now, f.policy.lastCheck.Now)

		require.Len(t, f.queue.enqueued, 1)
		payload := f.queue.enqueued[0]
		assert.Equal(t, "alert-1", payload.AlertID)
		assert.Equal(t, task.JobID, payload.JobID)
		assert.Equal(t, task.RunID, payload.RunID)
		assert.Equal(t, task.UserID, payload.UserID)
		assert.Equal(t, "token-1", payload.AcknowledgmentToken)
		assert.Equal(t, f.now, payload.Timestamp)
		assert.Zero(t, payload.RepeatOrdinal)

		assert.Equal(t, []model.Stage{
			model.StageInitializing,
			model.StageScraping,
			model.StageScrapingComplete,
			model.StageAnalyzing,
			model.StageAnalysisComplete,
			model.StageAlertEvaluation,
			model.StageCreatingAlert,
			model.StageAlertCreated,
			model.StageFinalizing,
			model.StageCompleted,
		}, f.telemetry.stages())

		// Terminal events fold the task's own contribution into the counters.
		last := f.telemetry.last()
		assert.Equal(t, 2, last.SourcesProcessed)
		assert.Equal(t, 1, last.AlertsGenerated)
		assert.Equal(t, 3, last.SourcesTotal)

		assert.Zero(t, f.failures.recordCalled)
	})

	t.Run("falls back to content preview when summary is empty", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.analyzer.result.Summary = ""

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.True(t, outcome.AlertCreated)
		require.Len(t, f.alerts.createReqs, 1)
		assert.Equal(t, f.scraper.result.ContentPreview(), f.alerts.createReqs[0].Content)
	})

	t.Run("completes without alert below threshold", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.analyzer.result.RelevanceScore = 40

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.False(t, outcome.AlertCreated)
		assert.False(t, outcome.Failed)
		assert.True(t, outcome.Entry.BelowThreshold)
		assert.Zero(t, f.alerts.createCalled)
		assert.Zero(t, f.policy.evaluateCalled)
		assert.Empty(t, f.queue.enqueued)
		assert.Contains(t, f.telemetry.stages(), model.StageBelowThreshold)
	})

	t.Run("suppresses the alert when policy denies", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.policy.decision = model.PolicySuppressCooldown

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.False(t, outcome.AlertCreated)
		assert.False(t, outcome.Failed)
		assert.Equal(t, "cooldown active", outcome.Entry.SuppressedReason)
		assert.Zero(t, f.alerts.createCalled)
		assert.Zero(t, f.policy.recordCalled)
		assert.Empty(t, f.queue.enqueued)
		assert.Contains(t, f.telemetry.stages(), model.StageAlertSuppressed)
	})

	t.Run("fails the task when scraping errors", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.scraper.err = errors.New("connection refused")

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.True(t, outcome.Failed)
		assert.False(t, outcome.AlertCreated)
		assert.Contains(t, outcome.Entry.Error, "scrape source")
		assert.Zero(t, f.analyzer.called)

		require.Len(t, f.failures.failures, 1)
		failure := f.failures.failures[0]
		assert.Equal(t, model.StageScraping, failure.Stage)
		assert.Contains(t, failure.ErrorMessage, "connection refused")
		assert.Equal(t, "Widget price watch", failure.Context["job_name"])

		assert.Equal(t, []model.Stage{
			model.StageInitializing,
			model.StageScraping,
			model.StageFailed,
		}, f.telemetry.stages())
	})

	t.Run("fails the task when the scraper reports failure", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.scraper.result = &model.ScrapeResult{
			URL:        "https://shop.example.com/widgets",
			StatusCode: 403,
			Success:    false,
			Error:      "blocked by origin",
		}

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.True(t, outcome.Failed)
		require.Len(t, f.failures.failures, 1)
		assert.Contains(t, f.failures.failures[0].ErrorMessage, "blocked by origin")
		assert.Equal(t, 403, f.failures.failures[0].Context["status_code"])
	})

	t.Run("fails the task when the scraper returns no content", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.scraper.result = &model.ScrapeResult{
			URL:        "https://shop.example.com/widgets",
			StatusCode: 200,
			Success:    true,
		}

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.True(t, outcome.Failed)
		require.Len(t, f.failures.failures, 1)
		assert.Contains(t, f.failures.failures[0].ErrorMessage, "no content")
		assert.Zero(t, f.analyzer.called)
	})

	t.Run("fails the task when analysis errors", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.analyzer.err = errors.New("model overloaded")

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.True(t, outcome.Failed)
		assert.Equal(t, 1, f.scraper.called)
		require.Len(t, f.failures.failures, 1)
		assert.Equal(t, model.StageAnalyzing, f.failures.failures[0].Stage)
		assert.Contains(t, outcome.Entry.Error, "analyze content")
	})

	t.Run("fails the task when policy evaluation errors", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.policy.evaluateErr = errors.New("kv unavailable")

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.True(t, outcome.Failed)
		require.Len(t, f.failures.failures, 1)
		assert.Equal(t, model.StageAlertEvaluation, f.failures.failures[0].Stage)
		assert.Zero(t, f.alerts.createCalled)
	})

	t.Run("fails the task when alert creation errors", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.alerts.createErr = errors.New("insert failed")

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		assert.True(t, outcome.Failed)
		assert.False(t, outcome.AlertCreated)
		require.Len(t, f.failures.failures, 1)
		assert.Equal(t, model.StageCreatingAlert, f.failures.failures[0].Stage)
		assert.Empty(t, f.queue.enqueued)
	})

	t.Run("reports the delivery gap when enqueue fails", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.queue.enqueueErr = errors.New("queue full")

		outcome := f.svc.ProcessTask(ctx, testTask(), RunProgress{SourcesTotal: 1})

		// The alert row exists even though dispatch never will.
		assert.True(t, outcome.AlertCreated)
		assert.True(t, outcome.Failed)
		assert.True(t, outcome.Entry.AlertGenerated)
		assert.Contains(t, outcome.Entry.Error, "enqueue alert")

		require.Len(t, f.failures.failures, 1)
		assert.Equal(t, "alert-1", f.failures.failures[0].Context["alert_id"])

		stages := f.telemetry.stages()
		assert.Equal(t, model.StageFailed, stages[len(stages)-1])
		assert.NotContains(t, stages, model.StageAlertCreated)
	})

	t.Run("fails the task when canceled during the jitter pause", func(t *testing.T) {
		f := newPipelineFixture(t)
		svc, err := NewPipelineService(PipelineServiceOptions{
			Scraper:    f.scraper,
			Analyzer:   f.analyzer,
			Alerts:     f.alerts,
			AlertQueue: f.queue,
			Policy:     f.policy,
			Failures:   f.failures,
			Telemetry:  f.telemetry,
			Config: config.PipelineConfig{
				SourceJitterMin: 10 * time.Millisecond,
				SourceJitterMax: 10 * time.Millisecond,
			},
			Time: data.NewFixedTimeProvider(f.now),
		})
		require.NoError(t, err)

		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		outcome := svc.ProcessTask(canceled, testTask(), RunProgress{SourcesTotal: 1})

		assert.True(t, outcome.Failed)
		assert.Zero(t, f.scraper.called)
		require.Len(t, f.failures.failures, 1)
		assert.Contains(t, f.failures.failures[0].ErrorMessage, "interrupted before scrape")
	})

	t.Run("archives scrape and analysis documents in the background", func(t *testing.T) {
		f := newPipelineFixture(t)
		task := testTask()

		f.svc.ProcessTask(ctx, task, RunProgress{SourcesTotal: 1})

		select {
		case doc := <-f.docstore.sources:
			assert.Equal(t, task.RunID, doc.RunID)
			assert.Equal(t, task.SourceURL, doc.SourceURL)
			assert.Equal(t, f.scraper.result.Content, doc.CleanedContent)
			assert.Equal(t, 200, doc.StatusCode)
		case <-time.After(1 * time.Second):
			t.Fatal("source document was not archived")
		}

		select {
		case doc := <-f.docstore.analyses:
			assert.Equal(t, task.RunID, doc.RunID)
			assert.True(t, doc.AlertGenerated)
			assert.Equal(t, "Widget price dropped 40%", doc.AlertTitle)
			assert.Equal(t, 82, doc.RelevanceScore)
		case <-time.After(1 * time.Second):
			t.Fatal("analysis document was not archived")
		}
	})
}

func TestJitterBetween(t *testing.T) {
	t.Run("returns min when the range is empty", func(t *testing.T) {
		assert.Equal(t, 3*time.Second, jitterBetween(3*time.Second, 3*time.Second))
		assert.Equal(t, 3*time.Second, jitterBetween(3*time.Second, time.Second))
	})

	t.Run("stays within the range", func(t *testing.T) {
		for range 50 {
			d := jitterBetween(2*time.Second, 5*time.Second)
			assert.GreaterOrEqual(t, d, 2*time.Second)
			assert.LessOrEqual(t, d, 5*time.Second)
		}
	})
}

func TestSourceDomain(t *testing.T) {
	assert.Equal(t, "example.com", sourceDomain("https://shop.example.com/widgets?page=2"))
	assert.Equal(t, "localhost", sourceDomain("http://localhost:8080/feed"))
	assert.Equal(t, "unknown", sourceDomain("not a url"))
}
