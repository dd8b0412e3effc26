package model

// Stage is one named step of the per-task state machine. The set is closed;
// telemetry payloads carry a Stage, never a free-form string.
type Stage string

const (
	StageInitializing     Stage = "initializing"
	StageScraping         Stage = "scraping"
	StageScrapingComplete Stage = "scraping_complete"
	StageAnalyzing        Stage = "analyzing"
	StageAnalysisComplete Stage = "analysis_complete"
	StageAlertEvaluation  Stage = "alert_evaluation"
	StageCreatingAlert    Stage = "creating_alert"
	StageAlertCreated     Stage = "alert_created"
	StageAlertSuppressed  Stage = "alert_suppressed"
	StageBelowThreshold   Stage = "below_threshold"
	StageFinalizing       Stage = "finalizing"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
)

// stageCompletion is the fixed completion-percentage table the dashboard
// renders progress bars from.
var stageCompletion = map[Stage]int{
	StageInitializing:     10,
	StageScraping:         25,
	StageScrapingComplete: 40,
	StageAnalyzing:        55,
	StageAnalysisComplete: 70,
	StageAlertEvaluation:  80,
	StageCreatingAlert:    85,
	StageAlertCreated:     90,
	StageAlertSuppressed:  90,
	StageBelowThreshold:   90,
	StageFinalizing:       95,
	StageCompleted:        100,
	StageFailed:           100,
}

// Valid returns true if the stage is part of the closed set.
func (s Stage) Valid() bool {
	_, ok := stageCompletion[s]
	return ok
}

// CompletionPercent returns the dashboard progress value for the stage.
// Unknown stages report 0.
func (s Stage) CompletionPercent() int {
	return stageCompletion[s]
}

// Terminal returns true for stages after which a task makes no further
// transitions.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}
