package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/observability/metrics"
	"github.com/target/marketpulse/internal/observability/statsd"
)

// StreamChannelOptions groups dependencies for StreamChannel.
type StreamChannelOptions struct {
	Answerer core.Answerer // Required: fragment producer
	Logger   *slog.Logger  // Optional: structured logger
	Metrics  statsd.Sink   // Optional: stream metrics
}

// StreamChannel connects an answer producer to one consumer. No JobRecord is
// created; the answer lives only as long as the consumer's connection.
type StreamChannel struct {
	answerer core.Answerer
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewStreamChannel constructs a StreamChannel.
func NewStreamChannel(opts StreamChannelOptions) (*StreamChannel, error) {
	if opts.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamChannel{
		answerer: opts.Answerer,
		logger:   logger.With("component", "stream_channel"),
		metrics:  opts.Metrics,
	}, nil
}

// Open starts an answer and waits for its first fragment. Failures that happen
// before any fragment exists are returned here as ordinary errors, so callers
// can still answer with an error status. The returned Stream must be closed.
func (c *StreamChannel) Open(ctx context.Context, owner, question string) (*Stream, error) {
	seq, err := c.answerer.Answer(ctx, owner, question)
	if err != nil {
		return nil, err
	}

	next, stop := iter.Pull2(seq)
	first, err, ok := next()
	if err != nil {
		stop()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	return &Stream{
		next:     next,
		stop:     stop,
		first:    first,
		hasFirst: ok,
		started:  time.Now(),
		logger:   c.logger,
		metrics:  c.metrics,
	}, nil
}

// Collect concatenates a whole answer.
func (c *StreamChannel) Collect(ctx context.Context, owner, question string) (string, error) {
	st, err := c.Open(ctx, owner, question)
	if err != nil {
		return "", err
	}
	defer st.Close()

	var b strings.Builder
	if _, err := st.Forward(ctx, &b); err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

// Stream is an opened answer. Fragments are pulled from the producer one at a
// time, so the producer never runs ahead of the consumer.
type Stream struct {
	next     func() (string, error, bool)
	stop     func()
	first    string
	hasFirst bool

	started   time.Time
	fragments int
	logger    *slog.Logger
	metrics   statsd.Sink
	closeOnce sync.Once
}

// Forward writes every fragment to w in order, flushing after each one when w
// supports it. A write error or a cancelled ctx abandons the answer and stops
// the producer. A producer failure after the first fragment is reported as
// model.ErrStreamAbort; the bytes already written stay with the consumer.
func (s *Stream) Forward(ctx context.Context, w io.Writer) (int64, error) {
	var written int64
	err := s.forward(ctx, w, &written)
	s.finish(ctx, err)
	return written, err
}

func (s *Stream) forward(ctx context.Context, w io.Writer, written *int64) error {
	frag, ok := s.first, s.hasFirst
	s.hasFirst = false
	for ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		if frag != "" {
			n, err := io.WriteString(w, frag)
			*written += int64(n)
			if err != nil {
				return fmt.Errorf("write fragment: %w", err)
			}
			flush(w)
		}
		s.fragments++

		var err error
		frag, err, ok = s.next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", model.ErrStreamAbort, err)
		}
	}
	return nil
}

// Close stops the producer. It is safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(s.stop)
}

func (s *Stream) finish(ctx context.Context, err error) {
	s.Close()
	metrics.EmitStream(s.metrics, metrics.StreamMetric{
		Fragments: s.fragments,
		Duration:  time.Since(s.started),
		Err:       err,
	})
	switch {
	case err == nil:
		s.logger.DebugContext(ctx, "answer streamed", "fragments", s.fragments)
	case errors.Is(err, model.ErrStreamAbort):
		s.logger.WarnContext(ctx, "answer stream aborted", "fragments", s.fragments, "error", err)
	default:
		s.logger.InfoContext(ctx, "answer stream abandoned", "fragments", s.fragments, "error", err)
	}
}

func flush(w io.Writer) {
	switch f := w.(type) {
	case interface{ Flush() error }:
		_ = f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
}
