package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

// StatusReporterOptions groups dependencies for StatusReporter.
type StatusReporterOptions struct {
	Store     core.JobStore      // Required: job registry
	Artifacts core.ArtifactStore // Required: result storage
}

// StatusReporter is the read side of the job registry. Every lookup is scoped
// to an owner; jobs of other owners are reported as not found.
type StatusReporter struct {
	store     core.JobStore
	artifacts core.ArtifactStore
}

// NewStatusReporter constructs a StatusReporter.
func NewStatusReporter(opts StatusReporterOptions) (*StatusReporter, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	return &StatusReporter{store: opts.Store, artifacts: opts.Artifacts}, nil
}

// Describe returns the polling projection of a job.
func (s *StatusReporter) Describe(ctx context.Context, id, owner string) (model.StatusView, error) {
	rec, err := s.owned(ctx, id, owner)
	if err != nil {
		return model.StatusView{}, err
	}
	return rec.View(), nil
}

// Result returns the stored output of a completed job. Jobs that are still
// running or failed yield model.ErrResultNotReady.
func (s *StatusReporter) Result(ctx context.Context, id, owner string) (*model.Artifact, error) {
	rec, err := s.owned(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.JobStatusCompleted || rec.Result == nil {
		return nil, fmt.Errorf("job %s is %s: %w", id, rec.Status, model.ErrResultNotReady)
	}

	art, err := s.artifacts.Get(ctx, rec.Result.Key)
	if err != nil {
		return nil, fmt.Errorf("load result of job %s: %w", id, err)
	}
	if art.FileName == "" {
		art.FileName = rec.Result.FileName
	}
	if art.ContentType == "" {
		art.ContentType = rec.Result.ContentType
	}
	return art, nil
}

func (s *StatusReporter) owned(ctx context.Context, id, owner string) (*model.JobRecord, error) {
	if id == "" || owner == "" {
		return nil, model.ErrJobNotFound
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Owner != owner {
		return nil, model.ErrJobNotFound
	}
	return rec, nil
}
