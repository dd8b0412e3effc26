package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spyglasshq/spyglass/internal/data/pgxutil"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
)

// AlertsRepo provides database operations for alert records and their
// delivery state.
type AlertsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAlertsRepo creates a new AlertsRepo instance with the given database connection.
func NewAlertsRepo(db *sql.DB) *AlertsRepo {
	return &AlertsRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

// alertColumns defines the column list for Alert SELECT queries to ensure consistent field mapping.
const alertColumns = `id, job_id, job_run_id, source_url, title, content, relevance_score,
	is_sent, is_acknowledged, acknowledged_at, acknowledged_by, acknowledgment_token,
	repeat_count, next_repeat_at, created_at`

// newAcknowledgmentToken returns an opaque 64-character token. Two UUIDs
// stripped of dashes give 64 hex chars of randomness, which keeps tokens
// unguessable without a dedicated secret store.
func newAcknowledgmentToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// Create inserts an alert and returns the stored record. The acknowledgment
// token is generated here so every alert row is born acknowledgeable.
func (r *AlertsRepo) Create(ctx context.Context, req model.CreateAlertRequest) (*model.Alert, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO alerts (job_id, job_run_id, source_url, title, content, relevance_score, acknowledgment_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + alertColumns

	var alert model.Alert
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query,
			req.JobID, req.RunID, req.SourceURL, req.Title, req.Content,
			req.RelevanceScore, newAcknowledgmentToken(), r.timeProvider.Now(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		alert, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Alert])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", apperrors.MapDBError(err))
	}

	return &alert, nil
}

// GetByID loads a single alert.
func (r *AlertsRepo) GetByID(ctx context.Context, alertID string) (*model.Alert, error) {
	if alertID == "" {
		return nil, apperrors.Validation("alert id is required")
	}
	if _, err := uuid.Parse(alertID); err != nil {
		return nil, apperrors.NotFoundf("alert %s not found", alertID)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	var alert model.Alert
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, alertID)
		if err != nil {
			return err
		}
		defer rows.Close()

		alert, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Alert])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", apperrors.MapDBError(err))
	}

	return &alert, nil
}

// MarkSent flips is_sent after at least one channel delivery succeeded.
// is_sent only ever moves false to true, so concurrent dispatchers commute.
func (r *AlertsRepo) MarkSent(ctx context.Context, alertID string) (bool, error) {
	if alertID == "" {
		return false, apperrors.Validation("alert id is required")
	}
	if _, err := uuid.Parse(alertID); err != nil {
		return false, nil
	}

	var updated bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		tag, err := pgxConn.Exec(ctx, `UPDATE alerts SET is_sent = true WHERE id = $1`, alertID)
		if err != nil {
			return err
		}
		updated = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("mark alert sent: %w", apperrors.MapDBError(err))
	}

	return updated, nil
}

// EnsureAcknowledgmentToken returns the alert's token, generating and
// persisting one when the stored token is empty. Rows from before token
// generation moved into Create can still be blank.
func (r *AlertsRepo) EnsureAcknowledgmentToken(ctx context.Context, alertID string) (string, error) {
	if alertID == "" {
		return "", apperrors.Validation("alert id is required")
	}
	if _, err := uuid.Parse(alertID); err != nil {
		return "", apperrors.NotFoundf("alert %s not found", alertID)
	}

	query := `
		UPDATE alerts
		SET acknowledgment_token = CASE
			WHEN acknowledgment_token = '' THEN $2
			ELSE acknowledgment_token
		END
		WHERE id = $1
		RETURNING acknowledgment_token`

	var token string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		return pgxConn.QueryRow(ctx, query, alertID, newAcknowledgmentToken()).Scan(&token)
	})
	if err != nil {
		return "", fmt.Errorf("ensure acknowledgment token: %w", apperrors.MapDBError(err))
	}

	return token, nil
}

// repeatCandidateColumns joins alert state with the owning job's repeat policy.
const repeatCandidateColumns = `a.id, a.job_id, a.job_run_id, a.source_url, a.title, a.content,
	a.relevance_score, a.is_sent, a.is_acknowledged, a.acknowledged_at, a.acknowledged_by,
	a.acknowledgment_token, a.repeat_count, a.next_repeat_at, a.created_at,
	j.name AS job_name, j.user_id AS user_id,
	j.repeat_frequency_minutes, j.max_repeats`

// FindRepeatDue returns unacknowledged, already-sent alerts on active
// acknowledgment-requiring jobs whose next repeat is due. Alerts that reached
// their job's max repeats are excluded. Oldest alerts surface first so a
// small batch limit cannot starve early alerts.
func (r *AlertsRepo) FindRepeatDue(ctx context.Context, now time.Time, limit int) ([]model.RepeatCandidate, error) {
	if now.IsZero() {
		now = r.timeProvider.Now()
	}
	if limit < 1 {
		limit = 1
	}

	query := `
		SELECT ` + repeatCandidateColumns + `
		FROM alerts a
		JOIN jobs j ON j.id = a.job_id
		WHERE a.is_acknowledged = false
			AND a.is_sent = true
			AND j.require_acknowledgment = true
			AND j.is_active = true
			AND (a.next_repeat_at IS NULL OR a.next_repeat_at <= $1)
			AND a.repeat_count < j.max_repeats
		ORDER BY a.created_at
		LIMIT $2`

	var candidates []model.RepeatCandidate
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, now, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		candidates, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.RepeatCandidate])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find repeat-due alerts: %w", apperrors.MapDBError(err))
	}

	return candidates, nil
}

// IncrementRepeat advances repeat_count from expectedCount to
// expectedCount+1 and schedules the next repeat. The previous-count guard
// plus the acknowledgment guard make concurrent re-notifiers and a racing
// acknowledgment skip cleanly instead of double-sending.
func (r *AlertsRepo) IncrementRepeat(
	ctx context.Context,
	alertID string,
	expectedCount int,
	nextRepeatAt time.Time,
) (bool, error) {
	if alertID == "" {
		return false, apperrors.Validation("alert id is required")
	}
	if expectedCount < 0 {
		return false, apperrors.Validation("expected repeat count cannot be negative")
	}
	if _, err := uuid.Parse(alertID); err != nil {
		return false, nil
	}

	query := `
		UPDATE alerts
		SET repeat_count = repeat_count + 1,
			next_repeat_at = $3
		WHERE id = $1
			AND repeat_count = $2
			AND is_acknowledged = false`

	var won bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		tag, err := pgxConn.Exec(ctx, query, alertID, expectedCount, nextRepeatAt)
		if err != nil {
			return err
		}
		won = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("increment alert repeat: %w", apperrors.MapDBError(err))
	}

	return won, nil
}

// Acknowledge marks an alert acknowledged when the token matches and the
// alert is not yet acknowledged.
func (r *AlertsRepo) Acknowledge(ctx context.Context, alertID, token, acknowledgedBy string, at time.Time) (bool, error) {
	if alertID == "" {
		return false, apperrors.Validation("alert id is required")
	}
	if token == "" {
		return false, apperrors.Validation("acknowledgment token is required")
	}
	if _, err := uuid.Parse(alertID); err != nil {
		return false, nil
	}
	if at.IsZero() {
		at = r.timeProvider.Now()
	}

	query := `
		UPDATE alerts
		SET is_acknowledged = true,
			acknowledged_at = $4,
			acknowledged_by = $3
		WHERE id = $1
			AND acknowledgment_token = $2
			AND is_acknowledged = false`

	var acknowledged bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		tag, err := pgxConn.Exec(ctx, query, alertID, token, acknowledgedBy, at)
		if err != nil {
			return err
		}
		acknowledged = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("acknowledge alert: %w", apperrors.MapDBError(err))
	}

	return acknowledged, nil
}
