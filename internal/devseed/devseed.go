// Package devseed provisions demo data for local development: one demo user,
// a notification channel per transport, and a set of monitoring jobs tuned to
// trigger quickly so the whole pipeline stays observable on a laptop.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	"github.com/spyglasshq/spyglass/internal/domain/tier"
)

// DemoUserEmail identifies the seeded account. Seeding is idempotent: rerun
// it to reset the demo jobs to their canonical definitions.
const DemoUserEmail = "dev@spyglass.local"

const demoUserName = "Spyglass Dev"

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB   *sql.DB
	jobs *data.JobsRepo
}

// NewServices constructs all required services for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		DB:   db,
		jobs: data.NewJobsRepo(db),
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	userID, err := seedDemoUser(ctx, svcs.DB, logger)
	if err != nil {
		return fmt.Errorf("seed demo user: %w", err)
	}

	channelIDs, failures := seedChannels(ctx, seedChannelsParams{
		db:     svcs.DB,
		logger: logger,
		userID: userID,
	})
	failures += seedJobs(ctx, seedJobsParams{
		db:         svcs.DB,
		logger:     logger,
		userID:     userID,
		channelIDs: channelIDs,
	})

	if err := verifySeededJobs(ctx, svcs.jobs, logger); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "seed verification failed", "error", err)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

// seedDemoUser creates or refreshes the demo account. The premium_plus tier
// lifts the active-job cap and the frequency floor so minute-level demo jobs
// schedule without clamping.
func seedDemoUser(ctx context.Context, db *sql.DB, logger *slog.Logger) (string, error) {
	const q = `
		INSERT INTO users (email, name, subscription_tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
			subscription_tier = EXCLUDED.subscription_tier,
			updated_at = now()
		RETURNING id`

	var userID string
	if err := db.QueryRowContext(ctx, q, DemoUserEmail, demoUserName, tier.TierPremiumPlus.String()).Scan(&userID); err != nil {
		return "", err
	}
	if logger != nil {
		logger.InfoContext(ctx, "seeded demo user", "email", DemoUserEmail, "tier", tier.TierPremiumPlus)
	}
	return userID, nil
}

type channelSeedSpec struct {
	name   string
	kind   model.ChannelKind
	config any
}

func defaultChannelSeeds() []channelSeedSpec {
	return []channelSeedSpec{
		{
			name:   "dev-email",
			kind:   model.ChannelKindEmail,
			config: model.EmailChannelConfig{Email: DemoUserEmail},
		},
		{
			name:   "dev-teams",
			kind:   model.ChannelKindTeams,
			config: model.WebhookChannelConfig{WebhookURL: "https://example.webhook.office.com/webhookb2/dev-spyglass"},
		},
		{
			name:   "dev-slack",
			kind:   model.ChannelKindSlack,
			config: model.WebhookChannelConfig{WebhookURL: "https://hooks.slack.com/services/T0DEV/B0DEV/spyglass"},
		},
	}
}

type seedChannelsParams struct {
	db     *sql.DB
	logger *slog.Logger
	userID string
}

// seedChannels returns channel IDs keyed by seed name alongside the failure
// count. Channels have no unique name constraint, so existence is checked per
// (user, name) before inserting.
func seedChannels(ctx context.Context, params seedChannelsParams) (map[string]string, int) {
	channelIDs := make(map[string]string, len(defaultChannelSeeds()))
	failures := 0
	for _, spec := range defaultChannelSeeds() {
		id, created, err := upsertChannel(ctx, params.db, params.userID, spec)
		if err != nil {
			if params.logger != nil {
				params.logger.ErrorContext(ctx, "failed to seed channel", "name", spec.name, "error", err)
			}
			failures++
			continue
		}
		channelIDs[spec.name] = id
		if params.logger != nil {
			msg := "channel already exists"
			if created {
				msg = "created channel"
			}
			params.logger.InfoContext(ctx, msg, "name", spec.name, "type", spec.kind)
		}
	}
	return channelIDs, failures
}

func upsertChannel(ctx context.Context, db *sql.DB, userID string, spec channelSeedSpec) (string, bool, error) {
	config, err := json.Marshal(spec.config)
	if err != nil {
		return "", false, fmt.Errorf("marshal channel config: %w", err)
	}

	var id string
	err = db.QueryRowContext(
		ctx,
		`SELECT id FROM notification_channels WHERE user_id = $1 AND name = $2`,
		userID, spec.name,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		insertErr := db.QueryRowContext(
			ctx,
			`INSERT INTO notification_channels (user_id, channel_type, name, config, is_active)
			 VALUES ($1, $2, $3, $4, true)
			 RETURNING id`,
			userID, spec.kind.String(), spec.name, config,
		).Scan(&id)
		if insertErr != nil {
			return "", false, insertErr
		}
		return id, true, nil
	case err != nil:
		return "", false, err
	default:
		if _, updateErr := db.ExecContext(
			ctx,
			`UPDATE notification_channels SET channel_type = $1, config = $2, is_active = true WHERE id = $3`,
			spec.kind.String(), config, id,
		); updateErr != nil {
			return "", false, updateErr
		}
		return id, false, nil
	}
}

type jobSeedSpec struct {
	name        string
	description string
	sources     []string
	prompt      string
	frequency   int
	threshold   int
	channels    []string
	cooldown    int
	maxPerHour  int
	repeatEvery int
	maxRepeats  int
	requireAck  bool
}

// defaultJobSeeds are tuned to fire on nearly any fetch so every stage of the
// pipeline produces output within minutes of starting the worker.
func defaultJobSeeds() []jobSeedSpec {
	return []jobSeedSpec{
		{
			name:        "letter-a-detection",
			description: "Fast test that always triggers by finding the letter 'a'",
			sources:     []string{"https://httpbin.org/json", "https://httpbin.org/get"},
			prompt:      "Check if this content contains the letter 'a' or 'A'. This should always be found in any text.",
			frequency:   2,
			threshold:   10,
			channels:    []string{"dev-slack"},
			cooldown:    1,
			maxPerHour:  30,
			repeatEvery: 5,
			maxRepeats:  2,
		},
		{
			name:        "common-words",
			description: "Medium speed test that detects common English words",
			sources:     []string{"https://httpbin.org/html", "https://httpbin.org/robots.txt"},
			prompt:      "Look for common English words: 'the', 'and', 'or', 'is', 'a'. These appear in most web content.",
			frequency:   3,
			threshold:   15,
			channels:    []string{"dev-email"},
			cooldown:    2,
			maxPerHour:  20,
			repeatEvery: 8,
			maxRepeats:  2,
		},
		{
			name:        "json-data-patterns",
			description: "Analyzes structured data patterns",
			sources: []string{
				"https://httpbin.org/json",
				"https://httpbin.org/uuid",
				"https://httpbin.org/base64/aGVsbG8gd29ybGQ=",
			},
			prompt:      "Check for JSON format, UUID patterns, or base64 encoded data. Look for structured data indicators.",
			frequency:   4,
			threshold:   20,
			channels:    []string{"dev-teams"},
			cooldown:    3,
			maxPerHour:  15,
			repeatEvery: 12,
			maxRepeats:  2,
		},
		{
			name:        "http-response-monitor",
			description: "Monitors HTTP response characteristics",
			sources: []string{
				"https://httpbin.org/status/200",
				"https://httpbin.org/headers",
				"https://httpbin.org/user-agent",
			},
			prompt:      "Check for HTTP status codes, header information, or user agent data in the response.",
			frequency:   5,
			threshold:   25,
			cooldown:    3,
			maxPerHour:  12,
			repeatEvery: 15,
			maxRepeats:  2,
		},
		{
			name:        "ultra-fast-content-length",
			description: "1-minute frequency check on content length (always triggers)",
			sources:     []string{"https://httpbin.org/html", "https://httpbin.org/robots.txt"},
			prompt:      "Check if content has more than 5 characters. This should always trigger since web pages have text.",
			frequency:   1,
			threshold:   5,
			channels:    []string{"dev-slack", "dev-email"},
			cooldown:    1,
			maxPerHour:  60,
			repeatEvery: 3,
			maxRepeats:  1,
		},
		{
			name:        "ack-required-demo",
			description: "Exercises the re-notifier: alerts repeat until acknowledged",
			sources:     []string{"https://httpbin.org/json"},
			prompt:      "Check if this content contains any text at all.",
			frequency:   5,
			threshold:   5,
			channels:    []string{"dev-email"},
			cooldown:    5,
			maxPerHour:  10,
			repeatEvery: 5,
			maxRepeats:  3,
			requireAck:  true,
		},
	}
}

type seedJobsParams struct {
	db         *sql.DB
	logger     *slog.Logger
	userID     string
	channelIDs map[string]string
}

func seedJobs(ctx context.Context, params seedJobsParams) int {
	failures := 0
	for _, spec := range defaultJobSeeds() {
		created, err := upsertJob(ctx, params, spec)
		if err != nil {
			if params.logger != nil {
				params.logger.ErrorContext(ctx, "failed to seed job", "name", spec.name, "error", err)
			}
			failures++
			continue
		}
		if params.logger != nil {
			msg := "job already exists"
			if created {
				msg = "created job"
			}
			params.logger.InfoContext(ctx, msg, "name", spec.name, "frequency_minutes", spec.frequency)
		}
	}
	return failures
}

func upsertJob(ctx context.Context, params seedJobsParams, spec jobSeedSpec) (bool, error) {
	sources, err := json.Marshal(spec.sources)
	if err != nil {
		return false, fmt.Errorf("marshal sources: %w", err)
	}
	channelRefs, err := resolveChannelRefs(params.channelIDs, spec.channels)
	if err != nil {
		return false, err
	}

	var id string
	err = params.db.QueryRowContext(
		ctx,
		`SELECT id FROM jobs WHERE user_id = $1 AND name = $2`,
		params.userID, spec.name,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		const insert = `
			INSERT INTO jobs (
				user_id, name, description, sources, prompt,
				frequency_minutes, threshold_score, is_active, notification_channel_ids,
				alert_cooldown_minutes, max_alerts_per_hour,
				repeat_frequency_minutes, max_repeats, require_acknowledgment
			) VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $9, $10, $11, $12, $13)`
		if _, insertErr := params.db.ExecContext(ctx, insert,
			params.userID, spec.name, spec.description, sources, spec.prompt,
			spec.frequency, spec.threshold, channelRefs,
			spec.cooldown, spec.maxPerHour,
			spec.repeatEvery, spec.maxRepeats, spec.requireAck,
		); insertErr != nil {
			return false, insertErr
		}
		return true, nil
	case err != nil:
		return false, err
	default:
		const update = `
			UPDATE jobs SET
				description = $1, sources = $2, prompt = $3,
				frequency_minutes = $4, threshold_score = $5, is_active = true,
				notification_channel_ids = $6, alert_cooldown_minutes = $7,
				max_alerts_per_hour = $8, repeat_frequency_minutes = $9,
				max_repeats = $10, require_acknowledgment = $11, updated_at = now()
			WHERE id = $12`
		if _, updateErr := params.db.ExecContext(ctx, update,
			spec.description, sources, spec.prompt,
			spec.frequency, spec.threshold,
			channelRefs, spec.cooldown,
			spec.maxPerHour, spec.repeatEvery,
			spec.maxRepeats, spec.requireAck, id,
		); updateErr != nil {
			return false, updateErr
		}
		return false, nil
	}
}

// resolveChannelRefs maps seed channel names to their database IDs and
// marshals them into the JSONB array shape jobs carry on the wire.
func resolveChannelRefs(channelIDs map[string]string, names []string) ([]byte, error) {
	refs := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := channelIDs[name]
		if !ok {
			return nil, fmt.Errorf("channel name %q not found in seeded channels", name)
		}
		refs = append(refs, id)
	}
	return json.Marshal(refs)
}

// verifySeededJobs reads back through the same repository the scheduler uses,
// so a broken schema or column mismatch surfaces at seed time instead of on
// the first sweep.
func verifySeededJobs(ctx context.Context, jobs *data.JobsRepo, logger *slog.Logger) error {
	active, err := jobs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active jobs: %w", err)
	}
	if len(active) == 0 {
		return errors.New("no active jobs after seeding")
	}
	if logger != nil {
		logger.InfoContext(ctx, "seed verification complete", "active_jobs", len(active))
	}
	return nil
}
