package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/target/marketpulse/internal/domain/model"
)

// JobBuilder provides a fluent interface for building JobRecords in tests.
type JobBuilder struct {
	rec *model.JobRecord
}

// NewJob starts a collection job owned by "alice" created at TestTime.
func NewJob() *JobBuilder {
	return &JobBuilder{
		rec: model.NewJobRecord(uuid.NewString(), model.JobKindCollection, "alice",
			json.RawMessage(`{"max_items":5}`), TestTime()),
	}
}

// WithID sets the job id.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.rec.ID = id
	return b
}

// WithKind sets the job kind.
func (b *JobBuilder) WithKind(kind model.JobKind) *JobBuilder {
	b.rec.Kind = kind
	return b
}

// WithOwner sets the owner.
func (b *JobBuilder) WithOwner(owner string) *JobBuilder {
	b.rec.Owner = owner
	return b
}

// CreatedAt sets both creation and update time.
func (b *JobBuilder) CreatedAt(t time.Time) *JobBuilder {
	b.rec.CreatedAt = t
	b.rec.UpdatedAt = t
	return b
}

// Advanced moves the job to an intermediate label.
func (b *JobBuilder) Advanced(label model.JobStatus) *JobBuilder {
	b.rec.Advance(label, b.rec.UpdatedAt)
	return b
}

// Completed finishes the job with a CSV result at the given time.
func (b *JobBuilder) Completed(at time.Time) *JobBuilder {
	_ = b.rec.Complete(model.ResultRef{
		Key:         "jobs/" + b.rec.ID,
		ContentType: "text/csv",
		FileName:    "products.csv",
		Size:        10,
	}, at)
	return b
}

// Failed fails the job at the given time.
func (b *JobBuilder) Failed(reason model.FailureReason, msg string, at time.Time) *JobBuilder {
	_ = b.rec.Fail(reason, msg, at)
	return b
}

// Build returns the record.
func (b *JobBuilder) Build() *model.JobRecord {
	return b.rec
}

// TimePtr returns a pointer to the given time value.
func TimePtr(t time.Time) *time.Time {
	return &t
}
