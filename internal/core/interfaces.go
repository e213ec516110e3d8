package core

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/target/marketpulse/internal/domain/model"
)

// This file contains the ports of the job engine. Services and runners depend on
// these interfaces; adapters in internal/data, internal/stages and
// internal/adapters provide the implementations.

// MutateFunc edits a record in place. Returning an error aborts the write.
type MutateFunc func(rec *model.JobRecord) error

// JobStore is the registry of job records. It is the single source of truth read
// by pollers and written by the runner driving each job.
type JobStore interface {
	// Create stores a new record. The id must not exist yet.
	Create(ctx context.Context, rec *model.JobRecord) error
	// Get returns a snapshot of the record or model.ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	// Mutate applies fn atomically. Mutations of one id are serialized.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*model.JobRecord, error)
	// List returns matching records newest first and the total match count.
	List(ctx context.Context, filter model.JobListFilter) ([]*model.JobRecord, int, error)
	// ListStale returns non-terminal records last updated before the cutoff.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*model.JobRecord, error)
	// ListFinished returns records in the given terminal status finished before the cutoff.
	ListFinished(ctx context.Context, params ListFinishedParams) ([]*model.JobRecord, error)
	// Delete removes the records and returns how many existed.
	Delete(ctx context.Context, ids []string) (int64, error)
}

// ListFinishedParams groups parameters for JobStore.ListFinished.
type ListFinishedParams struct {
	Status model.JobStatus
	Before time.Time
	Limit  int
}

// ArtifactStore holds stage outputs addressed by key.
type ArtifactStore interface {
	Put(ctx context.Context, key string, a *model.Artifact) (model.ResultRef, error)
	// Get returns the artifact or model.ErrArtifactNotFound.
	Get(ctx context.Context, key string) (*model.Artifact, error)
	Delete(ctx context.Context, key string) error
}

// ProgressReporter receives progress events from a running stage. Events are
// applied in the order they are emitted.
type ProgressReporter interface {
	Advance(ctx context.Context, label model.JobStatus)
	Note(ctx context.Context, source, text string)
}

// StageWorker performs one kind of work.
type StageWorker interface {
	Kind() model.JobKind
	// Validate checks a submission input before any record exists.
	Validate(input json.RawMessage) error
	// Run executes the stage. It must return when ctx is cancelled.
	Run(ctx context.Context, req model.StageRequest, progress ProgressReporter) (*model.Artifact, error)
}

// Answerer produces an answer as a lazy, finite sequence of fragments.
// The sequence may be ranged over once; stopping the range stops production.
type Answerer interface {
	Answer(ctx context.Context, owner, question string) (iter.Seq2[string, error], error)
}

// ProductSource yields product listings from one origin.
type ProductSource interface {
	Name() string
	// Fetch returns at most limit products.
	Fetch(ctx context.Context, limit int) ([]model.Product, error)
}

// ChatMessage is one turn of a model conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelClient is the language model collaborator.
type ModelClient interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	Stream(ctx context.Context, messages []ChatMessage) iter.Seq2[string, error]
}
