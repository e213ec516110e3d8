// Package notify defines the failure fan-out contract shared by the Slack and
// PagerDuty sinks.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// JobFailurePayload is the data emitted when a job ends in failed.
type JobFailurePayload struct {
	JobID      string
	Kind       string
	Owner      string
	Reason     string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink is a destination for job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// FallbackString returns fallback when value is blank.
func FallbackString(value, fallback string) string {
	for _, r := range value {
		if r != ' ' && r != '\t' && r != '\n' {
			return value
		}
	}
	return fallback
}
