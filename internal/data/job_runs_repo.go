package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data/pgxutil"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
)

// JobRunsRepo provides database operations for run lifecycle records.
type JobRunsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobRunsRepo creates a new JobRunsRepo instance with the given database connection.
func NewJobRunsRepo(db *sql.DB) *JobRunsRepo {
	return &JobRunsRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

const runColumns = `run_id, job_id, started_at, completed_at, status,
	sources_processed, alerts_generated, analysis_summary, error_message`

// Create inserts a run in running status.
func (r *JobRunsRepo) Create(ctx context.Context, run *model.JobRun) error {
	if run == nil {
		return apperrors.Validation("run is required")
	}
	if err := run.Validate(); err != nil {
		return err
	}

	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = r.timeProvider.Now()
	}

	query := `
		INSERT INTO job_runs (run_id, job_id, started_at, status, sources_processed, alerts_generated, analysis_summary)
		VALUES ($1, $2, $3, $4, 0, 0, '[]')`

	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		_, err := pgxConn.Exec(ctx, query, run.RunID, run.JobID, startedAt, model.RunStatusRunning)
		return err
	})
	if err != nil {
		return fmt.Errorf("create job run: %w", apperrors.MapDBError(err))
	}

	return nil
}

// Finalize writes terminal state for a run. The status guard makes
// finalization exactly-once: a run that already left running status is
// reported as (false, nil) and left untouched.
func (r *JobRunsRepo) Finalize(ctx context.Context, p core.FinalizeRunParams) (bool, error) {
	if p.RunID == "" {
		return false, apperrors.Validation("run id is required")
	}
	if !p.Status.Valid() || p.Status == model.RunStatusRunning {
		return false, apperrors.Validationf("invalid terminal run status: %q", p.Status)
	}

	summary, err := json.Marshal(model.TrimAnalysisSummary(p.AnalysisSummary))
	if err != nil {
		return false, fmt.Errorf("marshal analysis summary: %w", err)
	}

	completedAt := p.CompletedAt
	if completedAt.IsZero() {
		completedAt = r.timeProvider.Now()
	}

	query := `
		UPDATE job_runs
		SET status = $2,
			completed_at = $3,
			sources_processed = $4,
			alerts_generated = $5,
			analysis_summary = $6,
			error_message = $7
		WHERE run_id = $1 AND status = $8`

	var finalized bool
	err = pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		tag, err := pgxConn.Exec(ctx, query,
			p.RunID, p.Status, completedAt, p.SourcesProcessed, p.AlertsGenerated,
			summary, p.ErrorMessage, model.RunStatusRunning,
		)
		if err != nil {
			return err
		}
		finalized = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("finalize job run: %w", apperrors.MapDBError(err))
	}

	return finalized, nil
}

// SweepOrphans fails runs stuck in running status longer than twice their
// job's frequency window (bounded below by minAge). A worker that died
// mid-batch leaves such rows behind; the lease's natural expiry already let
// the job run again, so the stranded row is bookkeeping debt, not live work.
func (r *JobRunsRepo) SweepOrphans(ctx context.Context, now time.Time, minAge time.Duration) ([]string, error) {
	if now.IsZero() {
		now = r.timeProvider.Now()
	}
	minAgeMinutes := int(minAge / time.Minute)
	if minAgeMinutes < 1 {
		minAgeMinutes = 1
	}

	query := `
		UPDATE job_runs r
		SET status = $1,
			completed_at = $2,
			error_message = 'orphaned: run exceeded twice its scheduling window'
		FROM jobs j
		WHERE j.id = r.job_id
			AND r.status = $3
			AND r.started_at < $2::timestamptz - make_interval(mins => GREATEST(2 * j.frequency_minutes, $4))
		RETURNING r.run_id`

	var swept []string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query,
			model.RunStatusFailed, now, model.RunStatusRunning, minAgeMinutes,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		swept, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sweep orphaned runs: %w", apperrors.MapDBError(err))
	}

	return swept, nil
}

// CountRunning reports the number of runs still in running status.
func (r *JobRunsRepo) CountRunning(ctx context.Context) (int, error) {
	var count int
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		return pgxConn.QueryRow(ctx,
			`SELECT COUNT(*) FROM job_runs WHERE status = $1`, model.RunStatusRunning,
		).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count running runs: %w", apperrors.MapDBError(err))
	}

	return count, nil
}

// GetByRunID loads a single run record.
func (r *JobRunsRepo) GetByRunID(ctx context.Context, runID string) (*model.JobRun, error) {
	if runID == "" {
		return nil, apperrors.Validation("run id is required")
	}

	query := `SELECT ` + runColumns + ` FROM job_runs WHERE run_id = $1`

	var run model.JobRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, runID)
		if err != nil {
			return err
		}
		defer rows.Close()

		run, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.JobRun])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get job run: %w", apperrors.MapDBError(err))
	}

	return &run, nil
}
