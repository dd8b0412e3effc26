package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
	"github.com/spyglasshq/spyglass/internal/testutil"
)

func TestFailedTasksRepo_Record(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	repo := NewFailedTasksRepo(db)

	readFailure := func(t *testing.T, jobID string) (stage, errorMessage string, contextJSON []byte) {
		t.Helper()
		err := db.QueryRow(`
			SELECT stage, error_message, context
			FROM failed_job_log
			WHERE job_id = $1
			ORDER BY id DESC
			LIMIT 1`, jobID,
		).Scan(&stage, &errorMessage, &contextJSON)
		require.NoError(t, err)
		return stage, errorMessage, contextJSON
	}

	t.Run("records failure with context", func(t *testing.T) {
		// The log deliberately has no FKs, so the job id does not need a row.
		err := repo.Record(context.Background(), model.FailedTask{
			JobID:        "job-gone-1",
			RunID:        "run_job-gone-1_1700000000",
			SourceURL:    "https://example.com/feed",
			Stage:        model.StageScraping,
			ErrorMessage: "fetch https://example.com/feed: connection refused",
			Context:      map[string]any{"attempt": 3, "status_code": 0},
		})
		require.NoError(t, err)

		stage, errorMessage, contextJSON := readFailure(t, "job-gone-1")
		assert.Equal(t, model.StageScraping.String(), stage)
		assert.Contains(t, errorMessage, "connection refused")

		var stored map[string]any
		require.NoError(t, json.Unmarshal(contextJSON, &stored))
		assert.InDelta(t, 3, stored["attempt"], 0)
	})

	t.Run("empty context stores an object", func(t *testing.T) {
		err := repo.Record(context.Background(), model.FailedTask{
			JobID:        "job-gone-2",
			Stage:        model.StageAnalyzing,
			ErrorMessage: "analysis timed out",
		})
		require.NoError(t, err)

		_, _, contextJSON := readFailure(t, "job-gone-2")
		assert.JSONEq(t, "{}", string(contextJSON))
	})

	t.Run("requires job id", func(t *testing.T) {
		err := repo.Record(context.Background(), model.FailedTask{Stage: model.StageScraping})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("requires stage", func(t *testing.T) {
		err := repo.Record(context.Background(), model.FailedTask{JobID: "job-1"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestFailedTasksRepo_TrimOlderThan(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	repo := NewFailedTasksRepo(db)

	now := time.Now().UTC()
	record := func(t *testing.T, jobID string, createdAt time.Time) {
		t.Helper()
		err := repo.Record(context.Background(), model.FailedTask{
			JobID:        jobID,
			Stage:        model.StageScraping,
			ErrorMessage: "boom",
			CreatedAt:    createdAt,
		})
		require.NoError(t, err)
	}

	record(t, "job-old", now.Add(-40*24*time.Hour))
	record(t, "job-older", now.Add(-90*24*time.Hour))
	record(t, "job-recent", now.Add(-time.Hour))

	removed, err := repo.TrimOlderThan(context.Background(), now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	var remaining int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM failed_job_log").Scan(&remaining))
	assert.Equal(t, 1, remaining)

	t.Run("zero cutoff", func(t *testing.T) {
		_, err := repo.TrimOlderThan(context.Background(), time.Time{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}
