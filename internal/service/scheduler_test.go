package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	"github.com/spyglasshq/spyglass/internal/domain/tier"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
	"github.com/spyglasshq/spyglass/internal/observability/notify"
	"github.com/spyglasshq/spyglass/internal/service/failurenotifier"
)

type mockJobRegistry struct {
	mu sync.Mutex

	jobCalled int
	jobs      map[string]*model.Job
	jobErr    error

	listCalled int
	listJobs   []model.Job
	listErr    error

	invalidateCalled int
	invalidatedIDs   []string
	invalidateErr    error
}

func (m *mockJobRegistry) Job(ctx context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCalled++
	if m.jobErr != nil {
		return nil, m.jobErr
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	copied := *job
	return &copied, nil
}

func (m *mockJobRegistry) ListActiveJobs(ctx context.Context) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalled++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listJobs, nil
}

func (m *mockJobRegistry) Invalidate(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateCalled++
	m.invalidatedIDs = append(m.invalidatedIDs, jobID)
	return m.invalidateErr
}

type mockLeaseManager struct {
	mu sync.Mutex

	acquireCalled int
	acquireTTLs   map[string]time.Duration
	denyAcquire   bool
	acquireErr    error

	releaseCalled int
	releasedIDs   []string
	releaseErr    error

	isDueCalled int
	notDueJobs  map[string]bool
	dueErr      error

	recordCalled int
	recordedRuns map[string]time.Time
	recordErr    error

	immediateCalled int
	denyImmediate   bool
	immediateErr    error
}

func (m *mockLeaseManager) TryAcquire(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireCalled++
	if m.acquireTTLs == nil {
		m.acquireTTLs = make(map[string]time.Duration)
	}
	m.acquireTTLs[jobID] = ttl
	if m.acquireErr != nil {
		return false, m.acquireErr
	}
	return !m.denyAcquire, nil
}

func (m *mockLeaseManager) Release(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalled++
	m.releasedIDs = append(m.releasedIDs, jobID)
	return m.releaseErr
}

func (m *mockLeaseManager) IsDue(ctx context.Context, jobID string, frequency time.Duration, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isDueCalled++
	if m.dueErr != nil {
		return false, m.dueErr
	}
	return !m.notDueJobs[jobID], nil
}

func (m *mockLeaseManager) RecordRun(ctx context.Context, jobID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCalled++
	if m.recordedRuns == nil {
		m.recordedRuns = make(map[string]time.Time)
	}
	m.recordedRuns[jobID] = at
	return m.recordErr
}

func (m *mockLeaseManager) TryImmediate(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.immediateCalled++
	if m.immediateErr != nil {
		return false, m.immediateErr
	}
	return !m.denyImmediate, nil
}

type mockJobRunsRepo struct {
	mu sync.Mutex

	createCalled int
	createdRuns  []model.JobRun
	createErr    error

	finalizeCalled  int
	finalized       []core.FinalizeRunParams
	finalizeAlready bool
	finalizeErr     error

	sweepCalled  int
	sweepMinAges []time.Duration
	sweepIDs     []string
	sweepErr     error

	countRunning int
	countErr     error
}

func (m *mockJobRunsRepo) Create(ctx context.Context, run *model.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalled++
	if m.createErr != nil {
		return m.createErr
	}
	m.createdRuns = append(m.createdRuns, *run)
	return nil
}

func (m *mockJobRunsRepo) Finalize(ctx context.Context, p core.FinalizeRunParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeCalled++
	if m.finalizeErr != nil {
		return false, m.finalizeErr
	}
	if m.finalizeAlready {
		return false, nil
	}
	m.finalized = append(m.finalized, p)
	return true, nil
}

func (m *mockJobRunsRepo) SweepOrphans(ctx context.Context, now time.Time, minAge time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCalled++
	m.sweepMinAges = append(m.sweepMinAges, minAge)
	if m.sweepErr != nil {
		return nil, m.sweepErr
	}
	return m.sweepIDs, nil
}

func (m *mockJobRunsRepo) CountRunning(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.countRunning, nil
}

type mockJobQueue struct {
	mu sync.Mutex

	pending       []model.JobQueueMessage
	dequeueCalled int
	dequeueErr    error

	enqueued   []model.JobQueueMessage
	enqueueErr error
}

func (m *mockJobQueue) Enqueue(ctx context.Context, msg model.JobQueueMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, msg)
	return nil
}

func (m *mockJobQueue) Dequeue(ctx context.Context) (*model.JobQueueMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dequeueCalled++
	if m.dequeueErr != nil {
		return nil, m.dequeueErr
	}
	if len(m.pending) == 0 {
		return nil, nil
	}
	msg := m.pending[0]
	m.pending = m.pending[1:]
	return &msg, nil
}

func (m *mockJobQueue) Depth(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

func (m *mockJobQueue) depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// mockTaskRunner terminates every source task with a canned outcome keyed by
// source URL. Unknown sources complete without an alert.
type mockTaskRunner struct {
	mu       sync.Mutex
	called   int
	tasks    []model.Task
	outcomes map[string]TaskOutcome
}

func (m *mockTaskRunner) ProcessTask(ctx context.Context, task model.Task, progress RunProgress) TaskOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.tasks = append(m.tasks, task)
	if outcome, ok := m.outcomes[task.SourceURL]; ok {
		return outcome
	}
	return TaskOutcome{Entry: model.AnalysisEntry{SourceURL: task.SourceURL, RelevanceScore: 10}}
}

func (m *mockTaskRunner) processed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

var (
	_ core.JobRegistry       = (*mockJobRegistry)(nil)
	_ core.LeaseManager      = (*mockLeaseManager)(nil)
	_ core.JobRunsRepository = (*mockJobRunsRepo)(nil)
	_ core.JobQueue          = (*mockJobQueue)(nil)
	_ TaskRunner             = (*mockTaskRunner)(nil)
)

type schedulerFixture struct {
	registry  *mockJobRegistry
	leases    *mockLeaseManager
	runs      *mockJobRunsRepo
	signals   *mockJobQueue
	pipeline  *mockTaskRunner
	telemetry *mockTelemetry
	docstore  *mockDocStore
	now       time.Time
	svc       *SchedulerService
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Interval:               time.Minute,
		BatchSize:              10,
		MaxConcurrentJobs:      4,
		MaxConcurrentSources:   4,
		MaxConcurrentImmediate: 2,
		SignalDrainLimit:       10,
	}
}

func newSchedulerFixture(t *testing.T, cfg config.SchedulerConfig) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		registry:  &mockJobRegistry{jobs: make(map[string]*model.Job)},
		leases:    &mockLeaseManager{notDueJobs: make(map[string]bool)},
		runs:      &mockJobRunsRepo{},
		signals:   &mockJobQueue{},
		pipeline:  &mockTaskRunner{},
		telemetry: &mockTelemetry{},
		docstore:  newMockDocStore(),
		now:       time.Date(2025, 3, 7, 10, 30, 0, 0, time.UTC),
	}

	svc, err := NewSchedulerService(SchedulerServiceOptions{
		Registry:  f.registry,
		Leases:    f.leases,
		Runs:      f.runs,
		Signals:   f.signals,
		Pipeline:  f.pipeline,
		Telemetry: f.telemetry,
		DocStore:  f.docstore,
		Config:    cfg,
		Time:      data.NewFixedTimeProvider(f.now),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// addActiveJob registers the job for both lookup and the active sweep.
func (f *schedulerFixture) addActiveJob(job model.Job) {
	f.registry.jobs[job.ID] = &job
	f.registry.listJobs = append(f.registry.listJobs, job)
}

func premiumJob(id string, sources ...string) model.Job {
	if len(sources) == 0 {
		sources = []string{"https://shop.example.com/" + id}
	}
	return model.Job{
		ID:               id,
		UserID:           "user-1",
		Name:             "Watch " + id,
		Sources:          sources,
		Prompt:           "alert on price drops",
		FrequencyMinutes: 60,
		ThresholdScore:   70,
		IsActive:         true,
		UserTier:         tier.TierPremium.String(),
	}
}

func TestNewSchedulerService(t *testing.T) {
	valid := func() SchedulerServiceOptions {
		return SchedulerServiceOptions{
			Registry: &mockJobRegistry{},
			Leases:   &mockLeaseManager{},
			Runs:     &mockJobRunsRepo{},
			Signals:  &mockJobQueue{},
			Pipeline: &mockTaskRunner{},
			Config:   testSchedulerConfig(),
		}
	}

	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewSchedulerService(valid())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	cases := []struct {
		name   string
		mutate func(*SchedulerServiceOptions)
		want   string
	}{
		{"nil registry", func(o *SchedulerServiceOptions) { o.Registry = nil }, "JobRegistry is required"},
		{"nil leases", func(o *SchedulerServiceOptions) { o.Leases = nil }, "LeaseManager is required"},
		{"nil runs", func(o *SchedulerServiceOptions) { o.Runs = nil }, "JobRunsRepository is required"},
		{"nil signals", func(o *SchedulerServiceOptions) { o.Signals = nil }, "JobQueue is required"},
		{"nil pipeline", func(o *SchedulerServiceOptions) { o.Pipeline = nil }, "TaskRunner is required"},
	}
	for _, tc := range cases {
		t.Run("returns error with "+tc.name, func(t *testing.T) {
			opts := valid()
			tc.mutate(&opts)
			_, err := NewSchedulerService(opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSchedulerService_Tick(t *testing.T) {
	ctx := context.Background()

	t.Run("starts runs for due jobs and finalizes them", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.addActiveJob(premiumJob("job-1"))
		f.addActiveJob(premiumJob("job-2"))

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Equal(t, 2, started)
		assert.Equal(t, 2, f.runs.createCalled)
		assert.Equal(t, 2, f.pipeline.processed())

		require.Len(t, f.runs.finalized, 2)
		for _, fin := range f.runs.finalized {
			assert.Equal(t, model.RunStatusCompleted, fin.Status)
			assert.Equal(t, 1, fin.SourcesProcessed)
			assert.Zero(t, fin.AlertsGenerated)
			assert.Nil(t, fin.ErrorMessage)
			assert.Equal(t, f.now, fin.CompletedAt)
		}

		// Last-run stamps land for both jobs; leases expire on their TTL.
		assert.Equal(t, 2, f.leases.recordCalled)
		assert.Zero(t, f.leases.releaseCalled)
		assert.Equal(t, time.Hour, f.leases.acquireTTLs["job-1"])
	})

	t.Run("emits the run completion event", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.addActiveJob(premiumJob("job-1"))

		_, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		last := f.telemetry.last()
		assert.Equal(t, model.StageCompleted, last.CurrentStage)
		assert.Equal(t, "user-1", last.UserID)
		assert.Equal(t, 1, last.SourcesProcessed)
		assert.Equal(t, 1, last.SourcesTotal)
	})

	t.Run("skips jobs whose lease is held elsewhere", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.addActiveJob(premiumJob("job-1"))
		f.leases.denyAcquire = true

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Zero(t, started)
		assert.Zero(t, f.runs.createCalled)
		assert.Zero(t, f.pipeline.processed())
	})

	t.Run("releases the lease when the job is not due", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.addActiveJob(premiumJob("job-1"))
		f.leases.notDueJobs["job-1"] = true

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Zero(t, started)
		assert.Zero(t, f.runs.createCalled)
		assert.Equal(t, []string{"job-1"}, f.leases.releasedIDs)
	})

	t.Run("skips jobs below the tier frequency floor", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		job := premiumJob("job-1")
		job.UserTier = tier.TierFree.String()
		f.addActiveJob(job)

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Zero(t, started)
		assert.Zero(t, f.leases.acquireCalled)
		assert.Zero(t, f.runs.createCalled)
	})

	t.Run("releases the lease when run creation fails", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.addActiveJob(premiumJob("job-1"))
		f.runs.createErr = errors.New("insert failed")

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Zero(t, started)
		assert.Zero(t, f.pipeline.processed())
		assert.Zero(t, f.runs.finalizeCalled)
		assert.Equal(t, []string{"job-1"}, f.leases.releasedIDs)
	})

	t.Run("returns an error when listing jobs fails", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.registry.listErr = errors.New("db down")

		_, err := f.svc.Tick(ctx, f.now)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "list active jobs")
	})

	t.Run("records a failed run when a task fails", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		job := premiumJob("job-1", "https://a.example.com/feed", "https://b.example.com/feed")
		f.addActiveJob(job)
		f.pipeline.outcomes = map[string]TaskOutcome{
			"https://a.example.com/feed": {
				Entry:        model.AnalysisEntry{SourceURL: "https://a.example.com/feed", AlertGenerated: true},
				AlertCreated: true,
			},
			"https://b.example.com/feed": {
				Entry:  model.AnalysisEntry{SourceURL: "https://b.example.com/feed", Error: "scrape source: 503"},
				Failed: true,
			},
		}

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Equal(t, 1, started)
		require.Len(t, f.runs.finalized, 1)
		fin := f.runs.finalized[0]
		assert.Equal(t, model.RunStatusFailed, fin.Status)
		assert.Equal(t, 2, fin.SourcesProcessed)
		assert.Equal(t, 1, fin.AlertsGenerated)
		require.NotNil(t, fin.ErrorMessage)
		assert.Equal(t, "scrape source: 503", *fin.ErrorMessage)
		assert.Len(t, fin.AnalysisSummary, 2)

		// A failed run still stamps last-run; the frequency window applies
		// to attempts, not successes.
		assert.Equal(t, 1, f.leases.recordCalled)
	})

	t.Run("drains delete signals into cache invalidation", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.signals.pending = []model.JobQueueMessage{
			{JobID: "job-9", Action: model.JobQueueActionDelete},
		}

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Zero(t, started)
		assert.Equal(t, []string{"job-9"}, f.registry.invalidatedIDs)
		assert.Zero(t, f.runs.createCalled)
	})

	t.Run("fires an immediate run for run_now even when not due", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		job := premiumJob("job-1")
		f.registry.jobs[job.ID] = &job
		f.leases.notDueJobs[job.ID] = true
		f.signals.pending = []model.JobQueueMessage{
			{JobID: "job-1", Action: model.JobQueueActionRunNow},
		}

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Equal(t, 1, started)
		assert.Equal(t, 1, f.leases.immediateCalled)
		assert.Equal(t, 1, f.runs.createCalled)
		assert.Equal(t, 1, f.pipeline.processed())
		// Immediate runs bypass the due check entirely.
		assert.Zero(t, f.leases.isDueCalled)
	})

	t.Run("skips the immediate run when the shield is claimed elsewhere", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.leases.denyImmediate = true
		f.signals.pending = []model.JobQueueMessage{
			{JobID: "job-1", Action: model.JobQueueActionCreate},
		}

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Zero(t, started)
		assert.Zero(t, f.registry.jobCalled)
		assert.Zero(t, f.runs.createCalled)
	})

	t.Run("skips the immediate run when the job is gone", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.signals.pending = []model.JobQueueMessage{
			{JobID: "job-missing", Action: model.JobQueueActionRunNow},
		}

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Zero(t, started)
		assert.Zero(t, f.runs.createCalled)
	})

	t.Run("caps signal draining at the drain limit", func(t *testing.T) {
		cfg := testSchedulerConfig()
		cfg.SignalDrainLimit = 2
		f := newSchedulerFixture(t, cfg)
		f.signals.pending = []model.JobQueueMessage{
			{JobID: "job-1", Action: model.JobQueueActionDelete},
			{JobID: "job-2", Action: model.JobQueueActionDelete},
			{JobID: "job-3", Action: model.JobQueueActionDelete},
		}

		_, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Len(t, f.registry.invalidatedIDs, 2)
		assert.Equal(t, 1, f.signals.depth())
	})

	t.Run("drops signals with unknown verbs", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.signals.pending = []model.JobQueueMessage{
			{JobID: "job-1", Action: "bogus"},
		}

		started, err := f.svc.Tick(ctx, f.now)

		require.NoError(t, err)
		assert.Zero(t, started)
		assert.Zero(t, f.registry.invalidateCalled)
		assert.Zero(t, f.runs.createCalled)
	})

	t.Run("archives the run lifecycle in the document store", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.addActiveJob(premiumJob("job-1"))

		_, err := f.svc.Tick(ctx, f.now)
		require.NoError(t, err)

		select {
		case p := <-f.docstore.started:
			assert.Equal(t, "job-1", p.JobID)
			assert.Equal(t, "Watch job-1", p.JobName)
			assert.Equal(t, 60, p.FrequencyMinutes)
			assert.Equal(t, f.now, p.StartedAt)
		case <-time.After(1 * time.Second):
			t.Fatal("run start was not archived")
		}

		select {
		case p := <-f.docstore.completed:
			assert.Equal(t, "completed", p.Summary["status"])
			assert.Equal(t, 1, p.Summary["sources_processed"])
		case <-time.After(1 * time.Second):
			t.Fatal("run completion was not archived")
		}
	})
}

func TestSchedulerService_Run(t *testing.T) {
	t.Run("runs an initial tick and stops on cancellation", func(t *testing.T) {
		f := newSchedulerFixture(t, testSchedulerConfig())
		f.addActiveJob(premiumJob("job-1"))

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- f.svc.Run(ctx)
		}()

		// The first pass runs at startup, before any ticker fires.
		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(1 * time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		assert.GreaterOrEqual(t, f.registry.listCalled, 1)
		assert.GreaterOrEqual(t, f.runs.createCalled, 1)
	})
}

func TestSchedulerService_TickFailureNotification(t *testing.T) {
	ctx := context.Background()

	cfg := testSchedulerConfig()
	cfg.FailureAlertStreak = 2

	var pages []notify.WorkerFailurePayload
	svc, err := NewSchedulerService(SchedulerServiceOptions{
		Registry: &mockJobRegistry{},
		Leases:   &mockLeaseManager{},
		Runs:     &mockJobRunsRepo{},
		Signals:  &mockJobQueue{},
		Pipeline: &mockTaskRunner{},
		Config:   cfg,
		WorkerID: "worker-7f3a",
		FailureNotifier: failurenotifier.NewService(failurenotifier.Options{
			Sinks: []failurenotifier.SinkRegistration{{
				Name: "capture",
				Sink: notify.SinkFunc(func(_ context.Context, p notify.WorkerFailurePayload) error {
					pages = append(pages, p)
					return nil
				}),
			}},
		}),
	})
	require.NoError(t, err)

	tickErr := errors.New("list active jobs: connection refused")

	streak := svc.handleTickError(ctx, 0, tickErr)
	assert.Equal(t, 1, streak)
	assert.Empty(t, pages)

	streak = svc.handleTickError(ctx, streak, tickErr)
	assert.Equal(t, 2, streak)
	require.Len(t, pages, 1)
	assert.Equal(t, "scheduler", pages[0].Worker)
	assert.Equal(t, "worker-7f3a", pages[0].WorkerID)
	assert.Equal(t, 2, pages[0].Consecutive)
	assert.Equal(t, notify.SeverityError, pages[0].Severity)
	assert.False(t, pages[0].Fatal)

	// Past the threshold the streak keeps counting without paging again.
	streak = svc.handleTickError(ctx, streak, tickErr)
	assert.Equal(t, 3, streak)
	assert.Len(t, pages, 1)

	// Cancellation errors never count toward the streak.
	assert.Equal(t, 0, svc.handleTickError(ctx, 0, context.Canceled))
}
