package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/marketpulse/config"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
	obserrors "github.com/target/marketpulse/internal/observability/errors"
	"github.com/target/marketpulse/internal/observability/metrics"
	"github.com/target/marketpulse/internal/observability/statsd"
)

const msgStale = "job interrupted: no progress reported"

// ActiveJobs reports jobs whose worker is still owned by a live runner.
type ActiveJobs interface {
	Owns(id string) bool
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Store     core.JobStore       // Required: job registry
	Artifacts core.ArtifactStore  // Optional: result artifacts are deleted with their jobs
	Config    config.ReaperConfig // Required: reaper configuration
	Logger    *slog.Logger        // Optional: structured logger
	Metrics   statsd.Sink         // Optional: metrics sink (StatsD-compatible)
	Clock     data.TimeProvider   // Optional: defaults to real time
	Active    ActiveJobs          // Optional: jobs of the local runner are refreshed, never failed
}

// ReaperService provides job retention.
//
// This service manages:
// - Failing non-terminal jobs whose runner went away without finishing them.
// - Deleting old completed jobs and their result artifacts.
// - Deleting old failed jobs.
type ReaperService struct {
	store     core.JobStore
	artifacts core.ArtifactStore
	config    config.ReaperConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	clock     data.TimeProvider
	active    ActiveJobs
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Config.BatchSize <= 0 {
		return nil, errors.New("reaper batch size must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"active_max_age", opts.Config.ActiveMaxAge,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
		)
	}
	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}

	return &ReaperService{
		store:     opts.Store,
		artifacts: opts.Artifacts,
		config:    opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
		clock:     clock,
		active:    opts.Active,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter sleeps a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// RunOnce performs one pass of every cleanup step.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		metricsData        = cleanupMetrics{}
	)

	steps := []cleanupStep{
		{
			fn:        s.failStaleJobs,
			label:     "fail stale jobs",
			count:     &metricsData.StaleCount,
			metricErr: &metricsData.StaleErr,
		},
		{
			fn: func(ctx context.Context) (int64, error) {
				return s.deleteFinishedJobs(ctx, model.JobStatusCompleted, s.config.CompletedMaxAge)
			},
			label:     "delete old completed jobs",
			count:     &metricsData.CompletedCount,
			metricErr: &metricsData.CompletedErr,
		},
		{
			fn: func(ctx context.Context) (int64, error) {
				return s.deleteFinishedJobs(ctx, model.JobStatusFailed, s.config.FailedMaxAge)
			},
			label:     "delete old failed jobs",
			count:     &metricsData.FailedCount,
			metricErr: &metricsData.FailedErr,
		},
	}

	for _, step := range steps {
		outcome := s.executeCleanupStep(ctx, step.fn, step.label)
		*step.count = outcome.count
		*step.metricErr = outcome.metricErr
		if outcome.aggregateErr != nil {
			errs = append(errs, outcome.aggregateErr)
			allContextCanceled = allContextCanceled && outcome.canceled
		}
	}

	metricsData.Elapsed = time.Since(start)
	s.emitCleanupMetrics(metricsData)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}

	return nil
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	fn        cleanupFunc
	label     string
	count     *int64
	metricErr *error
}

type cleanupStepOutcome struct {
	count        int64
	metricErr    error
	aggregateErr error
	canceled     bool
}

func (s *ReaperService) executeCleanupStep(ctx context.Context, fn cleanupFunc, label string) cleanupStepOutcome {
	count, err := fn(ctx)
	outcome := cleanupStepOutcome{
		count:     count,
		metricErr: suppressContextCancellation(err),
		canceled:  isContextCancellation(err),
	}
	if err != nil {
		outcome.aggregateErr = fmt.Errorf("%s: %w", label, err)
	}
	return outcome
}

// failStaleJobs fails non-terminal jobs that have not been updated within
// ActiveMaxAge. Jobs that finish between listing and mutation are skipped, and
// jobs the local runner still owns are refreshed instead.
func (s *ReaperService) failStaleJobs(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.config.ActiveMaxAge)
	var totalCount, refreshed int64
	for {
		stale, err := s.store.ListStale(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		for _, rec := range stale {
			owned := s.active != nil && s.active.Owns(rec.ID)
			_, err := s.store.Mutate(ctx, rec.ID, func(r *model.JobRecord) error {
				if owned && !r.Status.IsTerminal() {
					r.Touch(s.clock.Now())
					return nil
				}
				return r.Fail(model.FailureInterrupted, msgStale, s.clock.Now())
			})
			switch {
			case err == nil && owned:
				refreshed++
			case err == nil:
				totalCount++
			case errors.Is(err, model.ErrJobTerminal), errors.Is(err, model.ErrJobNotFound):
			default:
				return totalCount, err
			}
		}
		if len(stale) < s.config.BatchSize {
			break
		}
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if refreshed > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "refreshed stale jobs still owned by the runner", "count", refreshed)
	}
	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale jobs",
			"count", totalCount,
			"max_age", s.config.ActiveMaxAge,
		)
	}
	return totalCount, nil
}

// deleteFinishedJobs removes jobs in status that finished more than maxAge ago.
func (s *ReaperService) deleteFinishedJobs(ctx context.Context, status model.JobStatus, maxAge time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-maxAge)
	var totalCount int64
	for {
		batch, err := s.store.ListFinished(ctx, core.ListFinishedParams{
			Status: status,
			Before: cutoff,
			Limit:  s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]string, 0, len(batch))
		for _, rec := range batch {
			if err := s.deleteResult(ctx, rec); err != nil {
				return totalCount, err
			}
			ids = append(ids, rec.ID)
		}
		count, err := s.store.Delete(ctx, ids)
		if err != nil {
			return totalCount, err
		}
		totalCount += count

		if len(batch) < s.config.BatchSize {
			break
		}
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted old jobs",
			"status", status,
			"count", totalCount,
			"max_age", maxAge,
		)
	}
	return totalCount, nil
}

func (s *ReaperService) deleteResult(ctx context.Context, rec *model.JobRecord) error {
	if s.artifacts == nil || rec.Result == nil || rec.Result.Key == "" {
		return nil
	}
	if err := s.artifacts.Delete(ctx, rec.Result.Key); err != nil && !errors.Is(err, model.ErrArtifactNotFound) {
		return fmt.Errorf("delete result of job %s: %w", rec.ID, err)
	}
	return nil
}

type cleanupMetrics struct {
	StaleCount     int64
	StaleErr       error
	CompletedCount int64
	CompletedErr   error
	FailedCount    int64
	FailedErr      error
	Elapsed        time.Duration
}

func (s *ReaperService) emitCleanupMetrics(m cleanupMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.StaleCount + m.CompletedCount + m.FailedCount
	firstErr := firstError(m.StaleErr, m.CompletedErr, m.FailedErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitCleanupOperationMetric("fail_stale", m.StaleCount, m.StaleErr)
	s.emitCleanupOperationMetric("delete_completed", m.CompletedCount, m.CompletedErr)
	s.emitCleanupOperationMetric("delete_failed", m.FailedCount, m.FailedErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.clock.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(operation string, count int64, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.jobs_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
