// Package testutil provides testing utilities and helpers for the spyglass
// worker.
package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// CreateTestUser inserts a user row and returns its id. Email doubles as the
// natural key, so reuse across a test gives back the same row.
func CreateTestUser(t TestingTB, db *sql.DB, email, subscriptionTier string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, subscription_tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET subscription_tier = EXCLUDED.subscription_tier
		RETURNING id`,
		email, "Test User", subscriptionTier,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert test user %s: %v", email, err)
	}
	return id
}

// CreateTestChannel inserts a notification channel for the user and returns
// its id.
func CreateTestChannel(t TestingTB, db *sql.DB, userID string, kind model.ChannelKind, config string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO notification_channels (user_id, channel_type, name, config, is_active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING id`,
		userID, kind.String(), "test-"+kind.String(), config,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert test channel: %v", err)
	}
	return id
}

// JobBuilder provides a fluent interface for building job rows for testing.
// Jobs are owned by the external API in production, so tests insert them
// directly.
type JobBuilder struct {
	job model.Job
}

// NewJob creates a new JobBuilder with sensible defaults.
func NewJob() *JobBuilder {
	return &JobBuilder{
		job: model.Job{
			Name:                   "test-job",
			Sources:                []string{"https://example.com/feed"},
			Prompt:                 "Notify me about anything interesting.",
			FrequencyMinutes:       60,
			ThresholdScore:         75,
			IsActive:               true,
			NotificationChannelIDs: []string{},
			AlertCooldownMinutes:   60,
			MaxAlertsPerHour:       5,
			RepeatFrequencyMinutes: 60,
			MaxRepeats:             5,
		},
	}
}

// WithName sets the job name.
func (b *JobBuilder) WithName(name string) *JobBuilder {
	b.job.Name = name
	return b
}

// WithSources sets the monitored source URLs.
func (b *JobBuilder) WithSources(sources ...string) *JobBuilder {
	b.job.Sources = sources
	return b
}

// WithPrompt sets the analysis prompt.
func (b *JobBuilder) WithPrompt(prompt string) *JobBuilder {
	b.job.Prompt = prompt
	return b
}

// WithFrequency sets the polling interval in minutes.
func (b *JobBuilder) WithFrequency(minutes int) *JobBuilder {
	b.job.FrequencyMinutes = minutes
	return b
}

// WithThreshold sets the relevance threshold score.
func (b *JobBuilder) WithThreshold(score int) *JobBuilder {
	b.job.ThresholdScore = score
	return b
}

// WithActive sets whether the job is active.
func (b *JobBuilder) WithActive(active bool) *JobBuilder {
	b.job.IsActive = active
	return b
}

// WithChannelIDs sets the notification channel references.
func (b *JobBuilder) WithChannelIDs(ids ...string) *JobBuilder {
	b.job.NotificationChannelIDs = ids
	return b
}

// WithCooldown sets the per-fingerprint alert cooldown in minutes.
func (b *JobBuilder) WithCooldown(minutes int) *JobBuilder {
	b.job.AlertCooldownMinutes = minutes
	return b
}

// WithMaxAlertsPerHour sets the hourly alert cap.
func (b *JobBuilder) WithMaxAlertsPerHour(limit int) *JobBuilder {
	b.job.MaxAlertsPerHour = limit
	return b
}

// WithRepeatFrequency sets the re-notification interval in minutes.
func (b *JobBuilder) WithRepeatFrequency(minutes int) *JobBuilder {
	b.job.RepeatFrequencyMinutes = minutes
	return b
}

// WithMaxRepeats sets the re-notification cap.
func (b *JobBuilder) WithMaxRepeats(limit int) *JobBuilder {
	b.job.MaxRepeats = limit
	return b
}

// WithRequireAcknowledgment sets whether alerts repeat until acknowledged.
func (b *JobBuilder) WithRequireAcknowledgment(require bool) *JobBuilder {
	b.job.RequireAcknowledgment = require
	return b
}

// Build returns the constructed job without persisting it.
func (b *JobBuilder) Build() model.Job {
	return b.job
}

// Insert persists the job for the given user and returns the stored row with
// its generated id and timestamps.
func (b *JobBuilder) Insert(t TestingTB, db *sql.DB, userID string) model.Job {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sources, err := json.Marshal(b.job.Sources)
	if err != nil {
		t.Fatalf("Failed to marshal job sources: %v", err)
	}
	channelIDs, err := json.Marshal(b.job.NotificationChannelIDs)
	if err != nil {
		t.Fatalf("Failed to marshal job channel ids: %v", err)
	}

	job := b.job
	job.UserID = userID
	err = db.QueryRowContext(ctx, `
		INSERT INTO jobs (
			user_id, name, sources, prompt,
			frequency_minutes, threshold_score, is_active, notification_channel_ids,
			alert_cooldown_minutes, max_alerts_per_hour,
			repeat_frequency_minutes, max_repeats, require_acknowledgment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		userID, job.Name, sources, job.Prompt,
		job.FrequencyMinutes, job.ThresholdScore, job.IsActive, channelIDs,
		job.AlertCooldownMinutes, job.MaxAlertsPerHour,
		job.RepeatFrequencyMinutes, job.MaxRepeats, job.RequireAcknowledgment,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to insert test job %s: %v", job.Name, err)
	}
	return job
}

// RunBuilder provides a fluent interface for building job_runs rows for
// testing.
type RunBuilder struct {
	run model.JobRun
}

// NewRun creates a RunBuilder for the given job with sensible defaults.
func NewRun(jobID string) *RunBuilder {
	startedAt := time.Now().UTC().Truncate(time.Second)
	return &RunBuilder{
		run: model.JobRun{
			RunID:     model.NewRunID(jobID, startedAt),
			JobID:     jobID,
			StartedAt: startedAt,
			Status:    model.RunStatusRunning,
		},
	}
}

// WithRunID overrides the generated run identifier.
func (b *RunBuilder) WithRunID(runID string) *RunBuilder {
	b.run.RunID = runID
	return b
}

// WithStatus sets the run status.
func (b *RunBuilder) WithStatus(status model.RunStatus) *RunBuilder {
	b.run.Status = status
	return b
}

// WithStartedAt sets the run start instant.
func (b *RunBuilder) WithStartedAt(startedAt time.Time) *RunBuilder {
	b.run.StartedAt = startedAt
	return b
}

// WithCompletedAt sets the run completion instant.
func (b *RunBuilder) WithCompletedAt(completedAt time.Time) *RunBuilder {
	b.run.CompletedAt = &completedAt
	return b
}

// WithCounts sets the processed-source and generated-alert counters.
func (b *RunBuilder) WithCounts(sources, alerts int) *RunBuilder {
	b.run.SourcesProcessed = sources
	b.run.AlertsGenerated = alerts
	return b
}

// Build returns the constructed run without persisting it.
func (b *RunBuilder) Build() model.JobRun {
	return b.run
}

// Insert persists the run row and returns it.
func (b *RunBuilder) Insert(t TestingTB, db *sql.DB) model.JobRun {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := json.Marshal(b.run.AnalysisSummary)
	if err != nil {
		t.Fatalf("Failed to marshal run analysis summary: %v", err)
	}
	if b.run.AnalysisSummary == nil {
		summary = []byte("[]")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO job_runs (
			run_id, job_id, started_at, completed_at, status,
			sources_processed, alerts_generated, analysis_summary, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.run.RunID, b.run.JobID, b.run.StartedAt, b.run.CompletedAt, b.run.Status.String(),
		b.run.SourcesProcessed, b.run.AlertsGenerated, summary, b.run.ErrorMessage,
	)
	if err != nil {
		t.Fatalf("Failed to insert test run %s: %v", b.run.RunID, err)
	}
	return b.run
}

// AlertBuilder provides a fluent interface for building alert rows for
// testing.
type AlertBuilder struct {
	alert model.Alert
}

// NewAlert creates an AlertBuilder for the given job with sensible defaults.
func NewAlert(jobID string) *AlertBuilder {
	return &AlertBuilder{
		alert: model.Alert{
			JobID:               jobID,
			RunID:               "run_" + jobID + "_0",
			SourceURL:           "https://example.com/feed",
			Title:               "Test alert",
			Content:             "Something relevant happened.",
			RelevanceScore:      80,
			AcknowledgmentToken: "tok_test",
		},
	}
}

// WithRunID associates the alert with a run.
func (b *AlertBuilder) WithRunID(runID string) *AlertBuilder {
	b.alert.RunID = runID
	return b
}

// WithSourceURL sets the originating source URL.
func (b *AlertBuilder) WithSourceURL(url string) *AlertBuilder {
	b.alert.SourceURL = url
	return b
}

// WithTitle sets the alert title.
func (b *AlertBuilder) WithTitle(title string) *AlertBuilder {
	b.alert.Title = title
	return b
}

// WithScore sets the relevance score.
func (b *AlertBuilder) WithScore(score int) *AlertBuilder {
	b.alert.RelevanceScore = score
	return b
}

// WithSent marks the alert as dispatched.
func (b *AlertBuilder) WithSent(sent bool) *AlertBuilder {
	b.alert.IsSent = sent
	return b
}

// WithAcknowledged marks the alert as acknowledged.
func (b *AlertBuilder) WithAcknowledged(acknowledged bool) *AlertBuilder {
	b.alert.IsAcknowledged = acknowledged
	return b
}

// WithRepeatCount sets the re-notification counter.
func (b *AlertBuilder) WithRepeatCount(count int) *AlertBuilder {
	b.alert.RepeatCount = count
	return b
}

// WithNextRepeatAt schedules the next re-notification.
func (b *AlertBuilder) WithNextRepeatAt(at time.Time) *AlertBuilder {
	b.alert.NextRepeatAt = &at
	return b
}

// WithToken sets the acknowledgment token.
func (b *AlertBuilder) WithToken(token string) *AlertBuilder {
	b.alert.AcknowledgmentToken = token
	return b
}

// Build returns the constructed alert without persisting it.
func (b *AlertBuilder) Build() model.Alert {
	return b.alert
}

// Insert persists the alert row and returns the stored row with its generated
// id and creation time.
func (b *AlertBuilder) Insert(t TestingTB, db *sql.DB) model.Alert {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alert := b.alert
	err := db.QueryRowContext(ctx, `
		INSERT INTO alerts (
			job_id, job_run_id, source_url, title, content, relevance_score,
			is_sent, is_acknowledged, acknowledgment_token, repeat_count, next_repeat_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		alert.JobID, alert.RunID, alert.SourceURL, alert.Title, alert.Content, alert.RelevanceScore,
		alert.IsSent, alert.IsAcknowledged, alert.AcknowledgmentToken, alert.RepeatCount, alert.NextRepeatAt,
	).Scan(&alert.ID, &alert.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to insert test alert %s: %v", alert.Title, err)
	}
	return alert
}
