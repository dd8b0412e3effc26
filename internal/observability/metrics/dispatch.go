package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/spyglasshq/spyglass/internal/observability/errors"
	"github.com/spyglasshq/spyglass/internal/observability/statsd"
)

// Dispatch outcome values for dispatch.alert metrics.
const (
	DispatchOutcomeDelivered  = "delivered"
	DispatchOutcomeDuplicate  = "duplicate"
	DispatchOutcomeNoChannels = "no_channels"
	DispatchOutcomeFailed     = "failed"
)

// DispatchMetric captures the processing of one alert payload.
type DispatchMetric struct {
	Outcome   string
	Repeat    bool
	Delivered int
	Duration  time.Duration
	Err       error
}

// EmitAlertDispatch emits standardised alert dispatch metrics.
func EmitAlertDispatch(sink statsd.Sink, in DispatchMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"outcome": in.Outcome,
		"repeat":  strconv.FormatBool(in.Repeat),
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("dispatch.alert", 1, tags)

	if in.Duration > 0 {
		sink.Timing("dispatch.duration", in.Duration, CloneTags(tags))
	}

	if in.Delivered > 0 {
		sink.Count("dispatch.deliveries", int64(in.Delivered), CloneTags(tags))
	}
}

// ChannelDeliveryMetric captures one channel delivery attempt.
type ChannelDeliveryMetric struct {
	Channel  string
	Duration time.Duration
	Err      error
}

// EmitChannelDelivery emits per-channel delivery metrics.
func EmitChannelDelivery(sink statsd.Sink, in ChannelDeliveryMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	}

	tags := map[string]string{
		"channel": in.Channel,
		"result":  result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("dispatch.channel", 1, tags)

	if in.Duration > 0 {
		sink.Timing("dispatch.channel_duration", in.Duration, CloneTags(tags))
	}
}
