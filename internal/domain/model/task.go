package model

import "time"

// Task is the processing of a single source within a JobRun. Tasks are
// constructed by the scheduler and discarded after their terminal transition;
// they are never persisted. A task carries its run_id only, never a reference
// back to the run.
type Task struct {
	RunID     string
	JobID     string
	JobName   string
	UserID    string
	SourceURL string
	Prompt    string
	Policy    JobPolicy
}

// FailedTask is one row of the failed-task log: which stage broke, why, and
// enough context to replay the investigation.
type FailedTask struct {
	ID           int64          `json:"id"            db:"id"`
	JobID        string         `json:"job_id"        db:"job_id"`
	RunID        string         `json:"run_id"        db:"run_id"`
	SourceURL    string         `json:"source_url"    db:"source_url"`
	Stage        Stage          `json:"stage"         db:"stage"`
	ErrorMessage string         `json:"error_message" db:"error_message"`
	Context      map[string]any `json:"context"       db:"context"`
	CreatedAt    time.Time      `json:"created_at"    db:"created_at"`
}
