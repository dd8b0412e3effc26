package metrics

import (
	"time"

	obserrors "github.com/spyglasshq/spyglass/internal/observability/errors"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
)

// Task outcome values for pipeline.task metrics.
const (
	TaskOutcomeAlert          = "alert"
	TaskOutcomeBelowThreshold = "below_threshold"
	TaskOutcomeSuppressed     = "suppressed"
	TaskOutcomeFailed         = "failed"
)

// TaskMetric captures the terminal outcome of one source task.
type TaskMetric struct {
	Outcome      string
	SourceDomain string
	FailedStage  string
	Reason       string
	Duration     time.Duration
	Err          error
}

// EmitTaskOutcome emits standardised pipeline task metrics.
func EmitTaskOutcome(sink statsd.Sink, in TaskMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"outcome": in.Outcome,
	}
	if in.SourceDomain != "" {
		tags["source_domain"] = in.SourceDomain
	}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}
	if in.FailedStage != "" {
		tags["stage"] = in.FailedStage
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("pipeline.task", 1, tags)

	if in.Duration > 0 {
		sink.Timing("pipeline.task_duration", in.Duration, CloneTags(tags))
	}

	if in.Outcome == TaskOutcomeAlert {
		sink.Count("pipeline.alerts_created", 1, CloneTags(tags))
	}
}

// StageMetric captures the duration of one collaborator call inside a task.
type StageMetric struct {
	Stage    string
	Duration time.Duration
	Err      error
}

// EmitStageTiming emits per-stage collaborator call timings.
func EmitStageTiming(sink statsd.Sink, in StageMetric) {
	if sink == nil || in.Duration <= 0 {
		return
	}

	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	}

	tags := map[string]string{
		"stage":  in.Stage,
		"result": result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Timing("pipeline.stage_duration", in.Duration, tags)
}
