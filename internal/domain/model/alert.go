package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Alert is a committed record asserting a source crossed its relevance
// threshold. Created by the pipeline, mutated by the dispatcher (is_sent),
// the re-notifier (repeat bookkeeping), and the external API (acknowledgement).
type Alert struct {
	ID                  string     `json:"id"                       db:"id"`
	JobID               string     `json:"job_id"                   db:"job_id"`
	RunID               string     `json:"job_run_id"               db:"job_run_id"`
	SourceURL           string     `json:"source_url"               db:"source_url"`
	Title               string     `json:"title"                    db:"title"`
	Content             string     `json:"content"                  db:"content"`
	RelevanceScore      int        `json:"relevance_score"          db:"relevance_score"`
	IsSent              bool       `json:"is_sent"                  db:"is_sent"`
	IsAcknowledged      bool       `json:"is_acknowledged"          db:"is_acknowledged"`
	AcknowledgedAt      *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy      *string    `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgmentToken string     `json:"acknowledgment_token"     db:"acknowledgment_token"`
	RepeatCount         int        `json:"repeat_count"             db:"repeat_count"`
	NextRepeatAt        *time.Time `json:"next_repeat_at,omitempty" db:"next_repeat_at"`
	CreatedAt           time.Time  `json:"created_at"               db:"created_at"`
}

// CreateAlertRequest carries the fields the pipeline commits on threshold
// crossing.
type CreateAlertRequest struct {
	JobID               string `json:"job_id"`
	RunID               string `json:"job_run_id"`
	SourceURL           string `json:"source_url"`
	Title               string `json:"title"`
	Content             string `json:"content"`
	RelevanceScore      int    `json:"relevance_score"`
	AcknowledgmentToken string `json:"acknowledgment_token"`
}

// Normalize trims whitespace on the request's string fields.
func (r *CreateAlertRequest) Normalize() {
	r.JobID = strings.TrimSpace(r.JobID)
	r.RunID = strings.TrimSpace(r.RunID)
	r.SourceURL = strings.TrimSpace(r.SourceURL)
	r.Title = strings.TrimSpace(r.Title)
	r.Content = strings.TrimSpace(r.Content)
}

// Validate validates the CreateAlertRequest fields.
func (r *CreateAlertRequest) Validate() error {
	if r.JobID == "" {
		return errors.New("job_id is required")
	}
	if r.RunID == "" {
		return errors.New("job_run_id is required")
	}
	if r.SourceURL == "" {
		return errors.New("source_url is required")
	}
	if r.Title == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(r.Title) > 255 {
		return errors.New("title cannot exceed 255 characters")
	}
	if r.RelevanceScore < 0 || r.RelevanceScore > 100 {
		return errors.New("relevance_score must be between 0 and 100")
	}
	return nil
}

// AlertPayload is the alert_queue wire record consumed by the dispatcher.
// Field names match the queue contract shared with older workers.
type AlertPayload struct {
	AlertID             string    `json:"alert_id"`
	JobID               string    `json:"job_id"`
	RunID               string    `json:"job_run_id"`
	SourceURL           string    `json:"source_url"`
	Title               string    `json:"title"`
	Content             string    `json:"content"`
	RelevanceScore      int       `json:"relevance_score"`
	UserID              string    `json:"user_id"`
	Timestamp           time.Time `json:"timestamp"`
	AcknowledgmentToken string    `json:"acknowledgment_token,omitempty"`
	RepeatOrdinal       int       `json:"repeat_ordinal,omitempty"`
}

// Validate checks the fields the dispatcher cannot proceed without.
func (p *AlertPayload) Validate() error {
	if strings.TrimSpace(p.AlertID) == "" {
		return errors.New("alert_id is required")
	}
	if strings.TrimSpace(p.JobID) == "" {
		return errors.New("job_id is required")
	}
	if strings.TrimSpace(p.SourceURL) == "" {
		return errors.New("source_url is required")
	}
	return nil
}

// IsRepeat reports whether the payload was emitted by the re-notifier.
func (p *AlertPayload) IsRepeat() bool {
	return p.RepeatOrdinal > 0
}

// RepeatCandidate joins an unacknowledged alert with the job policy fields the
// re-notifier needs to decide and decorate a repeat emission.
type RepeatCandidate struct {
	Alert
	JobName                string `json:"job_name"                 db:"job_name"`
	UserID                 string `json:"user_id"                  db:"user_id"`
	RepeatFrequencyMinutes int    `json:"repeat_frequency_minutes" db:"repeat_frequency_minutes"`
	MaxRepeats             int    `json:"max_repeats"              db:"max_repeats"`
}
