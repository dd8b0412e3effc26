package metrics

import (
	"time"

	obserrors "github.com/spyglasshq/spyglass/internal/observability/errors"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
)

// RepeatCycleMetric captures one re-notifier cycle.
type RepeatCycleMetric struct {
	Candidates int
	Emitted    int
	Skipped    int
	Duration   time.Duration
	Err        error
}

// EmitRepeatCycle emits standardised re-notifier cycle metrics.
func EmitRepeatCycle(sink statsd.Sink, in RepeatCycleMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Emitted == 0:
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

	sink.Count("renotifier.cycle", 1, tags)

	if in.Duration > 0 {
		sink.Timing("renotifier.cycle_duration", in.Duration, CloneTags(tags))
	}

	if in.Emitted > 0 {
		sink.Count("renotifier.repeats_emitted", int64(in.Emitted), nil)
	}
	if in.Skipped > 0 {
		sink.Count("renotifier.repeats_skipped", int64(in.Skipped), nil)
	}
}
