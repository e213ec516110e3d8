package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/stages"
)

const (
	defaultHistoryPageSize = 10
	maxHistoryPageSize     = 100
	// maxHistoryPage keeps (page-1)*size far from overflowing.
	maxHistoryPage = 100_000

	msgNoReport = "No report found. Please generate a report first."
)

// JobRunner is the execution side used by JobService.
type JobRunner interface {
	Submit(ctx context.Context, req model.SubmitRequest) (*model.JobRecord, error)
	Cancel(ctx context.Context, id, owner string) (*model.JobRecord, error)
	Await(ctx context.Context, id string) (*model.JobRecord, error)
}

// LatestOutputs reads an owner's latest stage outputs.
type LatestOutputs interface {
	Latest(ctx context.Context, owner string, slot stages.Slot) (*model.Artifact, bool, error)
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Runner    JobRunner         // Required: job execution
	Store     core.JobStore     // Required: job registry for history listings
	Status    *StatusReporter   // Required: owner-scoped reads
	Workspace LatestOutputs     // Optional: enables LatestReport
	Logger    *slog.Logger      // Optional: structured logger
	Clock     data.TimeProvider // Optional: defaults to real time
}

// JobService is the entry point the HTTP layer uses for job operations.
//
// This service manages:
// - Submitting tracked jobs and the immediate (submit and wait) façade.
// - Owner-scoped cancellation.
// - Paginated job history.
// - The owner's latest report.
type JobService struct {
	runner    JobRunner
	store     core.JobStore
	status    *StatusReporter
	workspace LatestOutputs
	logger    *slog.Logger
	clock     data.TimeProvider
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Runner == nil {
		return nil, errors.New("job runner is required")
	}
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Status == nil {
		return nil, errors.New("status reporter is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}

	return &JobService{
		runner:    opts.Runner,
		store:     opts.Store,
		status:    opts.Status,
		workspace: opts.Workspace,
		logger:    logger.With("component", "job_service"),
		clock:     clock,
	}, nil
}

// Submit starts a tracked job and returns its initial status.
func (s *JobService) Submit(ctx context.Context, req model.SubmitRequest) (model.StatusView, error) {
	rec, err := s.runner.Submit(ctx, req)
	if err != nil {
		return model.StatusView{}, err
	}
	return rec.View(), nil
}

// SubmitAndWait submits a job, waits for it to finish and returns its result.
// A failed job is returned as a *model.StageError carrying the stored reason.
// If ctx ends first the job keeps running and stays pollable by its id.
func (s *JobService) SubmitAndWait(ctx context.Context, req model.SubmitRequest) (*model.JobRecord, *model.Artifact, error) {
	rec, err := s.runner.Submit(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	final, err := s.runner.Await(ctx, rec.ID)
	if err != nil {
		return rec, nil, fmt.Errorf("wait for job %s: %w", rec.ID, err)
	}
	if final.Status == model.JobStatusFailed {
		return final, nil, &model.StageError{Reason: final.ErrorCode, Message: final.Error}
	}

	art, err := s.status.Result(ctx, final.ID, req.Owner)
	if err != nil {
		return final, nil, err
	}
	return final, art, nil
}

// Cancel cancels a job of the owner and returns its final status.
func (s *JobService) Cancel(ctx context.Context, id, owner string) (model.StatusView, error) {
	rec, err := s.runner.Cancel(ctx, id, owner)
	if err != nil {
		return model.StatusView{}, err
	}
	return rec.View(), nil
}

// Describe returns the polling projection of a job.
func (s *JobService) Describe(ctx context.Context, id, owner string) (model.StatusView, error) {
	return s.status.Describe(ctx, id, owner)
}

// Result returns the output of a completed job.
func (s *JobService) Result(ctx context.Context, id, owner string) (*model.Artifact, error) {
	return s.status.Result(ctx, id, owner)
}

// History lists the owner's jobs newest first.
func (s *JobService) History(ctx context.Context, q model.HistoryQuery) (*model.HistoryPage, error) {
	if q.Owner == "" {
		return nil, model.Rejectf("owner is required")
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, model.Rejectf("unknown job kind %q", q.Kind)
	}
	if q.Page > maxHistoryPage {
		return nil, model.Rejectf("page must be at most %d, got %d", maxHistoryPage, q.Page)
	}
	page, size := normalizePage(q.Page, q.PageSize)

	recs, total, err := s.store.List(ctx, model.JobListFilter{
		Owner:  q.Owner,
		Kind:   q.Kind,
		Status: q.Status,
		Since:  q.Date.Since(s.clock.Now()),
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	items := make([]model.StatusSummary, 0, len(recs))
	for _, rec := range recs {
		items = append(items, rec.Summary())
	}
	return &model.HistoryPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// LatestReport returns the owner's most recent report.
func (s *JobService) LatestReport(ctx context.Context, owner string) (*model.Artifact, error) {
	if s.workspace == nil {
		return nil, model.Precondition(msgNoReport)
	}
	art, found, err := s.workspace.Latest(ctx, owner, stages.SlotReport)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.Precondition(msgNoReport)
	}
	return art, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = defaultHistoryPageSize
	case size > maxHistoryPageSize:
		size = maxHistoryPageSize
	}
	return page, size
}
