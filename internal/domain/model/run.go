package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a JobRun.
type RunStatus string

const (
	// RunStatusRunning indicates the run has started and tasks are in flight.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates every task reached a terminal non-failure state.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates at least one task failed unrecoverably, or the
	// run was swept as orphaned.
	RunStatusFailed RunStatus = "failed"
)

// Valid returns true if the run status is one of the supported values.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the run status.
func (s RunStatus) String() string {
	return string(s)
}

// AnalysisSummaryLimit bounds the analysis_summary entries retained for the
// live view. Older entries are dropped, newest kept.
const AnalysisSummaryLimit = 10

// JobRun is one execution of a job across its sources. Created when a job is
// due, mutated incrementally by the pipeline, finalized exactly once.
type JobRun struct {
	RunID            string          `json:"run_id"                  db:"run_id"`
	JobID            string          `json:"job_id"                  db:"job_id"`
	StartedAt        time.Time       `json:"started_at"              db:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"  db:"completed_at"`
	Status           RunStatus       `json:"status"                  db:"status"`
	SourcesProcessed int             `json:"sources_processed"       db:"sources_processed"`
	AlertsGenerated  int             `json:"alerts_generated"        db:"alerts_generated"`
	AnalysisSummary  []AnalysisEntry `json:"analysis_summary"        db:"analysis_summary"`
	ErrorMessage     *string         `json:"error_message,omitempty" db:"error_message"`
}

// AnalysisEntry records the terminal outcome of one task for the run summary
// and the live dashboard.
type AnalysisEntry struct {
	SourceURL        string    `json:"source_url"`
	RelevanceScore   int       `json:"relevance_score"`
	Title            string    `json:"title,omitempty"`
	AlertGenerated   bool      `json:"alert_generated"`
	BelowThreshold   bool      `json:"below_threshold,omitempty"`
	SuppressedReason string    `json:"suppressed_reason,omitempty"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewRunID derives a run identifier from the job id and the start instant.
func NewRunID(jobID string, startedAt time.Time) string {
	return fmt.Sprintf("run_%s_%d", jobID, startedAt.Unix())
}

// TrimAnalysisSummary keeps the most recent entries within AnalysisSummaryLimit.
func TrimAnalysisSummary(entries []AnalysisEntry) []AnalysisEntry {
	if len(entries) <= AnalysisSummaryLimit {
		return entries
	}
	return entries[len(entries)-AnalysisSummaryLimit:]
}

// Validate checks run fields before persistence.
func (r *JobRun) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.JobID) == "" {
		return errors.New("job id is required")
	}
	if !r.Status.Valid() {
		return errors.New("invalid run status")
	}
	if r.StartedAt.IsZero() {
		return errors.New("started_at is required")
	}
	if r.CompletedAt != nil && r.Status == RunStatusRunning {
		return errors.New("running run cannot have completed_at")
	}
	return nil
}
