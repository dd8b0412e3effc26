package model

import "time"

// TelemetryEvent is the stage-transition record streamed to the live
// dashboard. One event is emitted per stage boundary plus a job-level event on
// run completion.
type TelemetryEvent struct {
	RunID                string          `json:"run_id"`
	JobID                string          `json:"job_id"`
	JobName              string          `json:"job_name"`
	SourceURL            string          `json:"source_url,omitempty"`
	CurrentStage         Stage           `json:"current_stage"`
	CompletionPercentage int             `json:"completion_percentage"`
	StageData            map[string]any  `json:"stage_data,omitempty"`
	SourcesProcessed     int             `json:"sources_processed"`
	SourcesTotal         int             `json:"sources_total"`
	AlertsGenerated      int             `json:"alerts_generated"`
	AnalysisDetails      []AnalysisEntry `json:"analysis_details,omitempty"`
	UserID               string          `json:"user_id,omitempty"`
	Timestamp            time.Time       `json:"timestamp"`
}
