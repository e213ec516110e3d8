package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/observability/notify"
)

type capture struct {
	mu       sync.Mutex
	received []notify.JobFailurePayload
}

func (c *capture) sink() notify.Sink {
	return notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.received = append(c.received, payload)
		return nil
	})
}

func TestServiceNotifyJobFailure(t *testing.T) {
	first, second := &capture{}, &capture{}
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "first", Sink: first.sink()},
			{Sink: second.sink()},
			{Name: "nil"},
		},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123", Kind: "collection"})

	require.Len(t, first.received, 1)
	require.Len(t, second.received, 1)
	assert.Equal(t, notify.SeverityCritical, first.received[0].Severity)
	assert.Len(t, svc.sinks, 2)
}

func TestServiceDisabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "x"})
}

func TestServiceLogsErrors(t *testing.T) {
	svc := NewService(Options{
		Sinks: []SinkRegistration{{
			Name: "fail",
			Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
				return errors.New("boom")
			}),
		}},
	})

	assert.NotPanics(t, func() {
		svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123"})
	})
}

func TestServiceFiltersReasons(t *testing.T) {
	c := &capture{}
	svc := NewService(Options{
		Sinks:   []SinkRegistration{{Name: "capture", Sink: c.sink()}},
		Reasons: []string{"upstream", "internal"},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "a", Reason: "precondition"})
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "b", Reason: "canceled"})
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{
		JobID: "c", Reason: "upstream", Severity: notify.SeverityWarning,
	})

	require.Len(t, c.received, 1)
	assert.Equal(t, "c", c.received[0].JobID)
	assert.Equal(t, notify.SeverityWarning, c.received[0].Severity)
}
