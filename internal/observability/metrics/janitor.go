package metrics

import (
	"time"

	obserrors "github.com/spyglasshq/spyglass/internal/observability/errors"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
)

// SweepMetric captures one janitor sweep.
type SweepMetric struct {
	OrphansFailed  int64
	FailuresPruned int64
	Duration       time.Duration
	Err            error
}

// EmitJanitorSweep emits standardised janitor sweep metrics.
func EmitJanitorSweep(sink statsd.Sink, in SweepMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.OrphansFailed+in.FailuresPruned == 0:
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

	sink.Count("janitor.sweep", 1, tags)

	if in.Duration > 0 {
		sink.Timing("janitor.sweep_duration", in.Duration, CloneTags(tags))
	}

	if in.OrphansFailed > 0 {
		sink.Count("janitor.orphan_runs_failed", in.OrphansFailed, nil)
	}
	if in.FailuresPruned > 0 {
		sink.Count("janitor.failed_tasks_pruned", in.FailuresPruned, nil)
	}

	if in.Err == nil {
		sink.Gauge("janitor.last_sweep_epoch", float64(time.Now().Unix()), nil)
	}
}
