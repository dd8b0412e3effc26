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

// ChannelsRepo provides read access to notification channel definitions.
type ChannelsRepo struct {
	DB *sql.DB
}

// NewChannelsRepo creates a new ChannelsRepo instance with the given database connection.
func NewChannelsRepo(db *sql.DB) *ChannelsRepo {
	return &ChannelsRepo{DB: db}
}

const channelColumns = `id, user_id, channel_type, name, config, is_active, created_at`

// ListActiveForUser returns the user's active channels filtered to the given
// ids. Ids that are not valid UUIDs are dropped rather than failing the whole
// lookup; a job configured with a stale channel id should still deliver to
// its remaining channels.
func (r *ChannelsRepo) ListActiveForUser(ctx context.Context, userID string, ids []string) ([]model.NotificationChannel, error) {
	if userID == "" {
		return nil, apperrors.Validation("user id is required")
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}

	// Bind as []uuid.UUID rather than relying on a text[]::uuid[] cast.
	validIDs := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if parsed, err := uuid.Parse(id); err == nil {
			validIDs = append(validIDs, parsed)
		}
	}
	if len(validIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + channelColumns + `
		FROM notification_channels
		WHERE user_id = $1
			AND is_active = true
			AND id = ANY($2)
		ORDER BY created_at`

	var channels []model.NotificationChannel
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, userID, validIDs)
		if err != nil {
			return err
		}
		defer rows.Close()

		channels, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.NotificationChannel])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list notification channels: %w", apperrors.MapDBError(err))
	}

	return channels, nil
}
