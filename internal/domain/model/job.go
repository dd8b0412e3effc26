// Package model defines the domain types shared across the spyglass scheduler,
// pipeline, dispatcher, and re-notifier.
package model

import (
	"errors"
	"strings"
	"time"
)

// Job is a user-defined monitoring definition. Jobs are owned by the external
// API; the scheduler observes them read-only.
type Job struct {
	ID                     string    `json:"id"                       db:"id"`
	UserID                 string    `json:"user_id"                  db:"user_id"`
	Name                   string    `json:"name"                     db:"name"`
	Sources                []string  `json:"sources"                  db:"sources"`
	Prompt                 string    `json:"prompt"                   db:"prompt"`
	FrequencyMinutes       int       `json:"frequency_minutes"        db:"frequency_minutes"`
	ThresholdScore         int       `json:"threshold_score"          db:"threshold_score"`
	IsActive               bool      `json:"is_active"                db:"is_active"`
	NotificationChannelIDs []string  `json:"notification_channel_ids" db:"notification_channel_ids"`
	AlertCooldownMinutes   int       `json:"alert_cooldown_minutes"   db:"alert_cooldown_minutes"`
	MaxAlertsPerHour       int       `json:"max_alerts_per_hour"      db:"max_alerts_per_hour"`
	RepeatFrequencyMinutes int       `json:"repeat_frequency_minutes" db:"repeat_frequency_minutes"`
	MaxRepeats             int       `json:"max_repeats"              db:"max_repeats"`
	RequireAcknowledgment  bool      `json:"require_acknowledgment"   db:"require_acknowledgment"`
	UserTier               string    `json:"user_tier"                db:"user_tier"`
	CreatedAt              time.Time `json:"created_at"               db:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"               db:"updated_at"`
}

// JobPolicy is the effective per-job policy surface consumed by the pipeline
// and the re-notifier. It is what gets cached under job_settings:{job_id}.
type JobPolicy struct {
	ThresholdScore         int  `json:"threshold_score"`
	FrequencyMinutes       int  `json:"frequency_minutes"`
	AlertCooldownMinutes   int  `json:"alert_cooldown_minutes"`
	MaxAlertsPerHour       int  `json:"max_alerts_per_hour"`
	RepeatFrequencyMinutes int  `json:"repeat_frequency_minutes"`
	MaxRepeats             int  `json:"max_repeats"`
	RequireAcknowledgment  bool `json:"require_acknowledgment"`
}

// Policy returns the job's effective policy knobs.
func (j *Job) Policy() JobPolicy {
	return JobPolicy{
		ThresholdScore:         j.ThresholdScore,
		FrequencyMinutes:       j.FrequencyMinutes,
		AlertCooldownMinutes:   j.AlertCooldownMinutes,
		MaxAlertsPerHour:       j.MaxAlertsPerHour,
		RepeatFrequencyMinutes: j.RepeatFrequencyMinutes,
		MaxRepeats:             j.MaxRepeats,
		RequireAcknowledgment:  j.RequireAcknowledgment,
	}
}

// Processable reports whether the scheduler may run this job given the user's
// tier minimum frequency. Inactive jobs are never processable.
func (j *Job) Processable(tierMinFrequency int) bool {
	if !j.IsActive {
		return false
	}
	return j.FrequencyMinutes >= tierMinFrequency
}

// Frequency returns the polling interval as a duration.
func (j *Job) Frequency() time.Duration {
	return time.Duration(j.FrequencyMinutes) * time.Minute
}

// Validate checks the fields the scheduler relies on. Jobs come from the
// relational store, so this guards against rows written by older revisions.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("job id is required")
	}
	if strings.TrimSpace(j.UserID) == "" {
		return errors.New("job user_id is required")
	}
	if len(j.Sources) == 0 {
		return errors.New("job has no sources")
	}
	if j.FrequencyMinutes < 1 {
		return errors.New("frequency_minutes must be at least 1")
	}
	if j.ThresholdScore < 0 || j.ThresholdScore > 100 {
		return errors.New("threshold_score must be between 0 and 100")
	}
	return nil
}
