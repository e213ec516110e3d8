// Package jobrunner executes stage workers for submitted jobs and drives each
// job record through its lifecycle.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
	obserrors "github.com/target/marketpulse/internal/observability/errors"
	"github.com/target/marketpulse/internal/observability/metrics"
	"github.com/target/marketpulse/internal/observability/notify"
	"github.com/target/marketpulse/internal/observability/statsd"
	"github.com/target/marketpulse/internal/service/failurenotifier"
)

// ErrRunnerClosed is returned by Submit after Shutdown started.
var ErrRunnerClosed = errors.New("job runner is shutting down")

const (
	msgCanceled    = "job cancelled by owner"
	msgInterrupted = "job interrupted by shutdown"
	awaitPollEvery = 250 * time.Millisecond

	// DefaultHeartbeat is how often owned records are refreshed. It stays well
	// below the smallest stale age the reaper accepts.
	DefaultHeartbeat = time.Minute
)

var (
	errCanceledByOwner = errors.New(msgCanceled)
	errShutdown        = errors.New(msgInterrupted)
	errNoChange        = errors.New("no change")
)

// RunnerOptions configures the job runner.
type RunnerOptions struct {
	Store     core.JobStore            // Required: job registry
	Artifacts core.ArtifactStore       // Required: result storage
	Workers   []core.StageWorker       // Required: one worker per supported kind
	Logger    *slog.Logger             // Optional: structured logger
	Clock     data.TimeProvider        // Optional: defaults to real time
	NewID     func() string            // Optional: defaults to uuid.NewString
	Metrics   statsd.Sink              // Optional: lifecycle metrics
	Notifier  *failurenotifier.Service // Optional: failure fan-out

	// MaxConcurrency bounds concurrently executing jobs. Zero means unbounded;
	// jobs waiting for a slot stay initializing.
	MaxConcurrency int

	// Heartbeat is how often UpdatedAt of every owned job, queued or running, is
	// refreshed. Zero means DefaultHeartbeat.
	Heartbeat time.Duration
}

// Runner schedules one goroutine per submitted job. Each submission creates a
// fresh id, so a job is never executed twice.
type Runner struct {
	store     core.JobStore
	artifacts core.ArtifactStore
	workers   map[model.JobKind]core.StageWorker
	logger    *slog.Logger
	clock     data.TimeProvider
	newID     func() string
	metrics   statsd.Sink
	notifier  *failurenotifier.Service
	sem       *semaphore.Weighted
	heartbeat time.Duration

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	running map[string]*execution
	closed  bool
	wg      sync.WaitGroup
	active  atomic.Int64
}

type execution struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if len(opts.Workers) == 0 {
		return nil, errors.New("at least one stage worker is required")
	}

	workers := make(map[model.JobKind]core.StageWorker, len(opts.Workers))
	for _, w := range opts.Workers {
		if w == nil {
			continue
		}
		if _, dup := workers[w.Kind()]; dup {
			return nil, fmt.Errorf("duplicate stage worker for kind %s", w.Kind())
		}
		workers[w.Kind()] = w
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	var sem *semaphore.Weighted
	if opts.MaxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}

	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		store:     opts.Store,
		artifacts: opts.Artifacts,
		workers:   workers,
		logger:    logger.With("component", "job_runner"),
		clock:     clock,
		newID:     newID,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		sem:       sem,
		heartbeat: heartbeat,
		baseCtx:   base,
		stop:      stop,
		running:   make(map[string]*execution),
	}
	go r.heartbeatLoop()
	return r, nil
}

// Submit validates the request, stores a new record and starts the worker. The
// worker runs on the runner's own context, never on ctx. An invalid request
// returns model.ErrSubmissionRejected and creates no record.
func (r *Runner) Submit(ctx context.Context, req model.SubmitRequest) (*model.JobRecord, error) {
	worker, err := r.admit(req)
	if err != nil {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Kind: string(req.Kind), Transition: metrics.TransitionRejected, Result: metrics.ResultError, Err: err,
		})
		return nil, err
	}
	if r.isClosed() {
		return nil, ErrRunnerClosed
	}

	rec := model.NewJobRecord(r.newID(), req.Kind, req.Owner, req.Input, r.clock.Now())
	if err := r.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	jobCtx, cancel := context.WithCancelCause(r.baseCtx)
	exec := &execution{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel(errShutdown)
		r.failDetached(rec, model.FailureInterrupted, msgInterrupted)
		return nil, ErrRunnerClosed
	}
	r.running[rec.ID] = exec
	r.wg.Add(1)
	r.mu.Unlock()

	go r.execute(jobCtx, exec, worker, rec.Clone())

	r.logger.InfoContext(ctx, "job submitted", "job_id", rec.ID, "kind", rec.Kind, "owner", rec.Owner)
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Kind: string(rec.Kind), Transition: metrics.TransitionSubmitted, Result: metrics.ResultSuccess,
	})
	return rec, nil
}

func (r *Runner) admit(req model.SubmitRequest) (core.StageWorker, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return nil, model.Rejectf("owner is required")
	}
	if !req.Kind.Valid() {
		return nil, model.Rejectf("unknown job kind %q", req.Kind)
	}
	worker, ok := r.workers[req.Kind]
	if !ok {
		return nil, model.Rejectf("job kind %q is not enabled", req.Kind)
	}
	if err := worker.Validate(req.Input); err != nil {
		if errors.Is(err, model.ErrSubmissionRejected) {
			return nil, err
		}
		return nil, model.Rejectf("%v", err)
	}
	return worker, nil
}

// Cancel fails a running job of a cancellable kind and signals its worker to
// stop at the next checkpoint. Records of other owners are reported as not found.
func (r *Runner) Cancel(ctx context.Context, id, owner string) (*model.JobRecord, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Owner != owner {
		return nil, model.ErrJobNotFound
	}
	if !rec.Kind.Cancellable() {
		return nil, fmt.Errorf("cancel %s job: %w", rec.Kind, model.ErrNotCancellable)
	}

	now := r.clock.Now()
	updated, err := r.store.Mutate(ctx, id, func(rec *model.JobRecord) error {
		return rec.Fail(model.FailureCanceled, msgCanceled, now)
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	exec := r.running[id]
	r.mu.Unlock()
	if exec != nil {
		exec.cancel(errCanceledByOwner)
	}

	r.logger.InfoContext(ctx, "job cancelled", "job_id", id, "kind", updated.Kind)
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Kind:       string(updated.Kind),
		Transition: metrics.TransitionCanceled,
		Result:     metrics.ResultSuccess,
		Duration:   now.Sub(updated.CreatedAt),
	})
	return updated, nil
}

// Await blocks until the job is terminal or ctx is done and returns the final record.
func (r *Runner) Await(ctx context.Context, id string) (*model.JobRecord, error) {
	r.mu.Lock()
	exec := r.running[id]
	r.mu.Unlock()

	if exec != nil {
		select {
		case <-exec.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ticker := time.NewTicker(awaitPollEvery)
	defer ticker.Stop()
	for {
		rec, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.Status.IsTerminal() {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Active returns the number of jobs currently executing a worker.
func (r *Runner) Active() int {
	return int(r.active.Load())
}

// Owns reports whether the job was submitted here and has not been finalized yet.
func (r *Runner) Owns(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[id]
	return ok
}

// Shutdown stops accepting jobs, interrupts running workers and waits until
// every job was finalized or ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for _, exec := range r.running {
			exec.cancel(errShutdown)
		}
	}
	pending := len(r.running)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "shutting down job runner", "pending", pending)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.stop()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}

// heartbeatLoop keeps owned records fresh so the reaper does not mistake a
// long stage or a full semaphore for a lost job.
func (r *Runner) heartbeatLoop() {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.baseCtx.Done():
			return
		case <-ticker.C:
			r.touchOwned(r.baseCtx)
		}
	}
}

func (r *Runner) touchOwned(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	now := r.clock.Now()
	for _, id := range ids {
		_, err := r.store.Mutate(ctx, id, func(rec *model.JobRecord) error {
			if !rec.Touch(now) {
				return errNoChange
			}
			return nil
		})
		if err != nil && !errors.Is(err, errNoChange) && !errors.Is(err, model.ErrJobNotFound) {
			r.logger.DebugContext(ctx, "heartbeat dropped", "job_id", id, "error", err)
		}
	}
}

func (r *Runner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Runner) execute(ctx context.Context, exec *execution, worker core.StageWorker, rec *model.JobRecord) {
	defer r.wg.Done()
	defer close(exec.done)
	defer func() {
		r.mu.Lock()
		delete(r.running, rec.ID)
		r.mu.Unlock()
		exec.cancel(nil)
	}()

	start := time.Now()
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.finalize(ctx, rec, nil, err, start)
			return
		}
		defer r.sem.Release(1)
	}

	metrics.EmitRunnerLoad(r.metrics, int(r.active.Add(1)))
	defer func() { metrics.EmitRunnerLoad(r.metrics, int(r.active.Add(-1))) }()
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Kind: string(rec.Kind), Transition: metrics.TransitionStarted, Result: metrics.ResultSuccess,
	})

	req := model.StageRequest{JobID: rec.ID, Owner: rec.Owner, Kind: rec.Kind, Input: rec.Input}
	art, err := r.invoke(ctx, worker, req)
	r.finalize(ctx, rec, art, err, start)
}

// invoke runs the worker and turns a panic into an internal failure.
func (r *Runner) invoke(ctx context.Context, worker core.StageWorker, req model.StageRequest) (art *model.Artifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "stage worker panicked",
				"job_id", req.JobID, "kind", req.Kind, "panic", p, "stack", string(debug.Stack()))
			art = nil
			err = &model.StageError{Reason: model.FailureInternal, Message: fmt.Sprintf("stage worker crashed: %v", p)}
		}
	}()
	return worker.Run(ctx, req, &reporter{runner: r, jobID: req.JobID})
}

// finalize moves the record to its terminal state. It runs detached from the
// job context so a cancelled job is still written.
func (r *Runner) finalize(jobCtx context.Context, rec *model.JobRecord, art *model.Artifact, runErr error, start time.Time) {
	ctx := context.WithoutCancel(jobCtx)
	log := r.logger.With("job_id", rec.ID, "kind", rec.Kind)
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Kind: string(rec.Kind), Transition: transition, Result: result, Duration: time.Since(start), Err: err,
		})
	}

	if jobCtx.Err() != nil {
		switch cause := context.Cause(jobCtx); {
		case errors.Is(cause, errCanceledByOwner):
			log.InfoContext(ctx, "cancelled job stopped", "error", runErr)
			return
		case errors.Is(cause, errShutdown):
			runErr = &model.StageError{Reason: model.FailureInterrupted, Message: msgInterrupted}
		}
	}
	if runErr == nil && art == nil {
		runErr = errors.New("stage worker returned no result")
	}

	if runErr == nil {
		ref, err := r.artifacts.Put(ctx, path.Join("jobs", rec.ID, art.FileName), art)
		if err != nil {
			runErr = fmt.Errorf("store result: %w", err)
		} else {
			_, err = r.store.Mutate(ctx, rec.ID, func(cur *model.JobRecord) error {
				return cur.Complete(ref, r.clock.Now())
			})
			switch {
			case err == nil:
				log.InfoContext(ctx, "job completed", "result_key", ref.Key, "size", ref.Size)
				emit(metrics.TransitionCompleted, metrics.ResultSuccess, nil)
				return
			case errors.Is(err, model.ErrJobTerminal):
				log.InfoContext(ctx, "job finished after it was already terminal")
				_ = r.artifacts.Delete(ctx, ref.Key)
				emit(metrics.TransitionCompleted, metrics.ResultNoop, nil)
				return
			default:
				log.ErrorContext(ctx, "complete job error", "error", err)
				emit(metrics.TransitionCompleted, metrics.ResultError, err)
				return
			}
		}
	}

	reason := model.ReasonOf(runErr)
	message := runErr.Error()
	failed, err := r.store.Mutate(ctx, rec.ID, func(cur *model.JobRecord) error {
		return cur.Fail(reason, message, r.clock.Now())
	})
	if err != nil {
		if !errors.Is(err, model.ErrJobTerminal) {
			log.ErrorContext(ctx, "fail job error", "error", err, "original_error", runErr)
			emit(metrics.TransitionFailed, metrics.ResultError, err)
		}
		return
	}

	log.WarnContext(ctx, "job failed", "reason", reason, "error", runErr)
	emit(metrics.TransitionFailed, metrics.ResultError, runErr)
	r.notifyFailure(ctx, failed, runErr)
}

func (r *Runner) failDetached(rec *model.JobRecord, reason model.FailureReason, message string) {
	ctx := context.Background()
	if _, err := r.store.Mutate(ctx, rec.ID, func(cur *model.JobRecord) error {
		return cur.Fail(reason, message, r.clock.Now())
	}); err != nil {
		r.logger.ErrorContext(ctx, "fail job error", "job_id", rec.ID, "error", err)
	}
}

func (r *Runner) notifyFailure(ctx context.Context, rec *model.JobRecord, cause error) {
	if !r.notifier.Enabled() {
		return
	}
	severity := notify.SeverityCritical
	if rec.ErrorCode == model.FailurePrecondition {
		severity = notify.SeverityWarning
	}
	r.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      rec.ID,
		Kind:       string(rec.Kind),
		Owner:      rec.Owner,
		Reason:     string(rec.ErrorCode),
		Error:      rec.Error,
		ErrorClass: obserrors.Classify(cause),
		Severity:   severity,
		OccurredAt: r.clock.Now(),
		Metadata: map[string]string{
			"component": "job_runner",
			"progress":  fmt.Sprintf("%d%%", rec.Progress),
		},
	})
}

// reporter applies a worker's progress events to its record in emission order.
type reporter struct {
	runner *Runner
	jobID  string
}

var _ core.ProgressReporter = (*reporter)(nil)

func (p *reporter) Advance(ctx context.Context, label model.JobStatus) {
	p.apply(ctx, "advance", func(rec *model.JobRecord) bool {
		return rec.Advance(label, p.runner.clock.Now())
	})
}

func (p *reporter) Note(ctx context.Context, source, text string) {
	p.apply(ctx, "note", func(rec *model.JobRecord) bool {
		return rec.AppendMessage(source, text, p.runner.clock.Now())
	})
}

func (p *reporter) apply(ctx context.Context, op string, fn func(rec *model.JobRecord) bool) {
	_, err := p.runner.store.Mutate(ctx, p.jobID, func(rec *model.JobRecord) error {
		if !fn(rec) {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		p.runner.logger.DebugContext(ctx, "progress update dropped", "job_id", p.jobID, "op", op, "error", err)
	}
}
