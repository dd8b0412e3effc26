package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spyglasshq/spyglass/internal/data/pgxutil"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
)

// JobsRepo provides read access to monitoring job definitions. The workers
// never mutate jobs; the API tier owns writes.
type JobsRepo struct {
	DB *sql.DB
}

// NewJobsRepo creates a new JobsRepo instance with the given database connection.
func NewJobsRepo(db *sql.DB) *JobsRepo {
	return &JobsRepo{DB: db}
}

// jobColumns defines the column list for Job SELECT queries to ensure
// consistent field mapping. The owner's subscription tier rides along so tier
// policy never needs a second lookup.
const jobColumns = `j.id, j.user_id, j.name, j.sources, j.prompt, j.frequency_minutes,
	j.threshold_score, j.is_active, j.notification_channel_ids, j.alert_cooldown_minutes,
	j.max_alerts_per_hour, j.repeat_frequency_minutes, j.max_repeats, j.require_acknowledgment,
	COALESCE(u.subscription_tier, 'free') AS user_tier, j.created_at, j.updated_at`

// GetByID loads a single job joined with its owner's subscription tier.
func (r *JobsRepo) GetByID(ctx context.Context, jobID string) (*model.Job, error) {
	if jobID == "" {
		return nil, apperrors.Validation("job id is required")
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs j
		LEFT JOIN users u ON u.id = j.user_id
		WHERE j.id = $1`

	var job model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, jobID)
		if err != nil {
			return err
		}
		defer rows.Close()

		job, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", apperrors.MapDBError(err))
	}

	return &job, nil
}

// ListActive returns every active job joined with its owner's subscription
// tier, ordered by id for stable batching.
func (r *JobsRepo) ListActive(ctx context.Context) ([]model.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs j
		LEFT JOIN users u ON u.id = j.user_id
		WHERE j.is_active = true
		ORDER BY j.id`

	var jobs []model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		jobs, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", apperrors.MapDBError(err))
	}

	return jobs, nil
}
