package data

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
	"github.com/spyglasshq/spyglass/internal/testutil"
)

func createRunTestJob(t *testing.T, db *sql.DB, frequencyMinutes int) model.Job {
	t.Helper()
	userID := testutil.CreateTestUser(t, db, "runs@test.local", "premium")
	return testutil.NewJob().
		WithName(fmt.Sprintf("run-test-job-%dm", frequencyMinutes)).
		WithFrequency(frequencyMinutes).
		Insert(t, db, userID)
}

func TestJobRunsRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	repo := NewJobRunsRepo(db)
	job := createRunTestJob(t, db, 60)

	t.Run("inserts in running status", func(t *testing.T) {
		startedAt := time.Now().UTC().Truncate(time.Second)
		run := &model.JobRun{
			RunID:     model.NewRunID(job.ID, startedAt),
			JobID:     job.ID,
			StartedAt: startedAt,
			Status:    model.RunStatusRunning,
		}

		err := repo.Create(context.Background(), run)
		require.NoError(t, err)

		stored, err := repo.GetByRunID(context.Background(), run.RunID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, stored.JobID)
		assert.Equal(t, model.RunStatusRunning, stored.Status)
		assert.WithinDuration(t, startedAt, stored.StartedAt, time.Second)
		assert.Nil(t, stored.CompletedAt)
		assert.Zero(t, stored.SourcesProcessed)
		assert.Zero(t, stored.AlertsGenerated)
		assert.Empty(t, stored.AnalysisSummary)
		assert.Nil(t, stored.ErrorMessage)
	})

	t.Run("duplicate run id conflicts", func(t *testing.T) {
		startedAt := time.Now().UTC()
		run := &model.JobRun{
			RunID:     "run_dup_1",
			JobID:     job.ID,
			StartedAt: startedAt,
			Status:    model.RunStatusRunning,
		}
		require.NoError(t, repo.Create(context.Background(), run))

		err := repo.Create(context.Background(), run)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("validation error", func(t *testing.T) {
		err := repo.Create(context.Background(), &model.JobRun{JobID: job.ID})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run id is required")
	})

	t.Run("nil run", func(t *testing.T) {
		err := repo.Create(context.Background(), nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestJobRunsRepo_Finalize(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	repo := NewJobRunsRepo(db)
	job := createRunTestJob(t, db, 60)

	newRunningRun := func(t *testing.T, runID string) model.JobRun {
		t.Helper()
		return testutil.NewRun(job.ID).WithRunID(runID).Insert(t, db)
	}

	t.Run("writes terminal state", func(t *testing.T) {
		run := newRunningRun(t, "run_finalize_ok")
		completedAt := run.StartedAt.Add(42 * time.Second)
		summary := []model.AnalysisEntry{
			{SourceURL: "https://example.com/a", RelevanceScore: 91, AlertGenerated: true, Timestamp: completedAt},
			{SourceURL: "https://example.com/b", RelevanceScore: 12, BelowThreshold: true, Timestamp: completedAt},
		}

		finalized, err := repo.Finalize(context.Background(), core.FinalizeRunParams{
			RunID:            run.RunID,
			Status:           model.RunStatusCompleted,
			CompletedAt:      completedAt,
			SourcesProcessed: 2,
			AlertsGenerated:  1,
			AnalysisSummary:  summary,
		})
		require.NoError(t, err)
		assert.True(t, finalized)

		stored, err := repo.GetByRunID(context.Background(), run.RunID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, stored.Status)
		require.NotNil(t, stored.CompletedAt)
		assert.WithinDuration(t, completedAt, *stored.CompletedAt, time.Second)
		assert.Equal(t, 2, stored.SourcesProcessed)
		assert.Equal(t, 1, stored.AlertsGenerated)
		require.Len(t, stored.AnalysisSummary, 2)
		assert.Equal(t, "https://example.com/a", stored.AnalysisSummary[0].SourceURL)
		assert.Nil(t, stored.ErrorMessage)
	})

	t.Run("records failure message", func(t *testing.T) {
		run := newRunningRun(t, "run_finalize_failed")

		finalized, err := repo.Finalize(context.Background(), core.FinalizeRunParams{
			RunID:        run.RunID,
			Status:       model.RunStatusFailed,
			ErrorMessage: testutil.StringPtr("scrape failed: connection refused"),
		})
		require.NoError(t, err)
		assert.True(t, finalized)

		stored, err := repo.GetByRunID(context.Background(), run.RunID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "scrape failed: connection refused", *stored.ErrorMessage)
	})

	t.Run("second finalize loses", func(t *testing.T) {
		run := newRunningRun(t, "run_finalize_twice")

		params := core.FinalizeRunParams{
			RunID:            run.RunID,
			Status:           model.RunStatusCompleted,
			SourcesProcessed: 3,
		}
		finalized, err := repo.Finalize(context.Background(), params)
		require.NoError(t, err)
		require.True(t, finalized)

		params.Status = model.RunStatusFailed
		finalized, err = repo.Finalize(context.Background(), params)
		require.NoError(t, err)
		assert.False(t, finalized)

		stored, err := repo.GetByRunID(context.Background(), run.RunID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, stored.Status, "first terminal status must win")
	})

	t.Run("trims oversized summary", func(t *testing.T) {
		run := newRunningRun(t, "run_finalize_trim")

		entries := make([]model.AnalysisEntry, model.AnalysisSummaryLimit+5)
		for i := range entries {
			entries[i] = model.AnalysisEntry{SourceURL: fmt.Sprintf("https://example.com/%d", i)}
		}

		finalized, err := repo.Finalize(context.Background(), core.FinalizeRunParams{
			RunID:           run.RunID,
			Status:          model.RunStatusCompleted,
			AnalysisSummary: entries,
		})
		require.NoError(t, err)
		require.True(t, finalized)

		stored, err := repo.GetByRunID(context.Background(), run.RunID)
		require.NoError(t, err)
		require.Len(t, stored.AnalysisSummary, model.AnalysisSummaryLimit)
		// Newest entries survive the trim.
		assert.Equal(t, "https://example.com/5", stored.AnalysisSummary[0].SourceURL)
	})

	t.Run("rejects non-terminal status", func(t *testing.T) {
		_, err := repo.Finalize(context.Background(), core.FinalizeRunParams{
			RunID:  "run_whatever",
			Status: model.RunStatusRunning,
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("missing run", func(t *testing.T) {
		finalized, err := repo.Finalize(context.Background(), core.FinalizeRunParams{
			RunID:  "run_never_created",
			Status: model.RunStatusCompleted,
		})
		require.NoError(t, err)
		assert.False(t, finalized)
	})
}

func TestJobRunsRepo_SweepOrphans(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	repo := NewJobRunsRepo(db)
	job := createRunTestJob(t, db, 30)

	now := time.Now().UTC()

	// Twice the 30-minute frequency is the orphan horizon for this job.
	testutil.NewRun(job.ID).WithRunID("run_orphan_old").
		WithStartedAt(now.Add(-2 * time.Hour)).Insert(t, db)
	testutil.NewRun(job.ID).WithRunID("run_still_fresh").
		WithStartedAt(now.Add(-45 * time.Minute)).Insert(t, db)
	testutil.NewRun(job.ID).WithRunID("run_already_done").
		WithStartedAt(now.Add(-3 * time.Hour)).
		WithStatus(model.RunStatusCompleted).
		WithCompletedAt(now.Add(-3 * time.Hour)).Insert(t, db)

	swept, err := repo.SweepOrphans(context.Background(), now, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, "run_orphan_old", swept[0])

	stored, err := repo.GetByRunID(context.Background(), "run_orphan_old")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "orphaned")

	fresh, err := repo.GetByRunID(context.Background(), "run_still_fresh")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, fresh.Status)

	done, err := repo.GetByRunID(context.Background(), "run_already_done")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, done.Status)

	t.Run("min age floors short frequencies", func(t *testing.T) {
		fastJob := testutil.NewJob().WithName("fast-job").WithFrequency(1).
			Insert(t, db, testutil.CreateTestUser(t, db, "runs@test.local", "premium"))

		// Older than 2*frequency (2m) but younger than the 30m floor.
		testutil.NewRun(fastJob.ID).WithRunID("run_fast_recent").
			WithStartedAt(now.Add(-10 * time.Minute)).Insert(t, db)

		swept, err := repo.SweepOrphans(context.Background(), now, 30*time.Minute)
		require.NoError(t, err)
		assert.NotContains(t, swept, "run_fast_recent")
	})
}

func TestJobRunsRepo_CountRunning(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	repo := NewJobRunsRepo(db)
	job := createRunTestJob(t, db, 60)

	count, err := repo.CountRunning(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	testutil.NewRun(job.ID).WithRunID("run_count_1").Insert(t, db)
	testutil.NewRun(job.ID).WithRunID("run_count_2").Insert(t, db)
	testutil.NewRun(job.ID).WithRunID("run_count_done").
		WithStatus(model.RunStatusCompleted).
		WithCompletedAt(time.Now().UTC()).Insert(t, db)

	count, err = repo.CountRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestJobRunsRepo_GetByRunID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	repo := NewJobRunsRepo(db)

	t.Run("missing run", func(t *testing.T) {
		run, err := repo.GetByRunID(context.Background(), "run_missing")
		require.Error(t, err)
		assert.Nil(t, run)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("empty run id", func(t *testing.T) {
		_, err := repo.GetByRunID(context.Background(), "")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}
