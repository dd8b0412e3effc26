package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spyglasshq/spyglass/internal/data/pgxutil"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
)

// FailedTasksRepo persists per-source failure records. The table carries no
// foreign keys so records outlive the jobs and runs they describe.
type FailedTasksRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewFailedTasksRepo creates a new FailedTasksRepo instance with the given database connection.
func NewFailedTasksRepo(db *sql.DB) *FailedTasksRepo {
	return &FailedTasksRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

// Record stores one failure entry.
func (r *FailedTasksRepo) Record(ctx context.Context, failure model.FailedTask) error {
	if failure.JobID == "" {
		return apperrors.Validation("job id is required")
	}
	if failure.Stage == "" {
		return apperrors.Validation("stage is required")
	}

	contextJSON := []byte("{}")
	if len(failure.Context) > 0 {
		encoded, err := json.Marshal(failure.Context)
		if err != nil {
			return fmt.Errorf("marshal failure context: %w", err)
		}
		contextJSON = encoded
	}

	createdAt := failure.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.timeProvider.Now()
	}

	query := `
		INSERT INTO failed_job_log (job_id, run_id, source_url, stage, error_message, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		_, err := pgxConn.Exec(ctx, query,
			failure.JobID, failure.RunID, failure.SourceURL, failure.Stage,
			failure.ErrorMessage, contextJSON, createdAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record failed task: %w", apperrors.MapDBError(err))
	}

	return nil
}

// TrimOlderThan deletes failure entries created before the cutoff and
// returns the number of rows removed.
func (r *FailedTasksRepo) TrimOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, apperrors.Validation("cutoff is required")
	}

	var removed int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		tag, err := pgxConn.Exec(ctx, `DELETE FROM failed_job_log WHERE created_at < $1`, cutoff)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("trim failed task log: %w", apperrors.MapDBError(err))
	}

	return removed, nil
}
