// Package metrics holds the metric emitters shared by the runner, stream and reaper.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/marketpulse/internal/observability/errors"
	"github.com/target/marketpulse/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names used for job.transition.
const (
	TransitionSubmitted = "submitted"
	TransitionStarted   = "started"
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
	TransitionCanceled  = "canceled"
	TransitionRejected  = "rejected"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Kind       string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":       in.Kind,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// StreamMetric describes one finished answer stream.
type StreamMetric struct {
	Fragments int
	Duration  time.Duration
	Err       error
}

// EmitStream records an answer stream outcome.
func EmitStream(sink statsd.Sink, in StreamMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if in.Err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("stream.finished", 1, tags)
	sink.Gauge("stream.fragments", float64(in.Fragments), CloneTags(tags))
	if in.Duration > 0 {
		sink.Timing("stream.duration", in.Duration, CloneTags(tags))
	}
}

// EmitRunnerLoad reports how many jobs are currently executing.
func EmitRunnerLoad(sink statsd.Sink, active int) {
	if sink == nil {
		return
	}
	sink.Gauge("runner.active", float64(active), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
