package metrics

import (
	"time"

	obserrors "github.com/spyglasshq/spyglass/internal/observability/errors"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
)

// TickMetric captures one scheduler tick.
type TickMetric struct {
	Scheduled int // runs started from the due scan
	Immediate int // runs started from lifecycle signals
	Skipped   int // jobs passed over (lease held, not due, tier gate)
	Failed    int // runs that finalized failed
	Duration  time.Duration
	Err       error
}

// EmitSchedulerTick emits standardised scheduler tick metrics.
func EmitSchedulerTick(sink statsd.Sink, in TickMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Scheduled+in.Immediate == 0:
		result = ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("scheduler.tick", 1, tags)

	if in.Duration > 0 {
		sink.Timing("scheduler.tick_duration", in.Duration, CloneTags(tags))
	}

	if in.Scheduled > 0 {
		sink.Count("scheduler.runs_started", int64(in.Scheduled), nil)
	}
	if in.Immediate > 0 {
		sink.Count("scheduler.immediate_runs", int64(in.Immediate), nil)
	}
	if in.Skipped > 0 {
		sink.Count("scheduler.jobs_skipped", int64(in.Skipped), nil)
	}
	if in.Failed > 0 {
		sink.Count("scheduler.runs_failed", int64(in.Failed), nil)
	}

	if in.Err == nil {
		sink.Gauge("scheduler.last_tick_epoch", float64(time.Now().Unix()), nil)
	}
}
