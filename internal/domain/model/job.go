// Package model defines the core data types shared by the marketpulse job engine.
package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// JobKind identifies which stage worker a job invokes.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus is a lifecycle label. Besides the well-known labels below, workers may
// report any other label as an intermediate state.
type JobStatus string

const (
	// JobKindCollection gathers product listings from the configured sources.
	JobKindCollection JobKind = "collection"
	// JobKindAnalysis analyzes the owner's latest collected dataset.
	JobKindAnalysis JobKind = "analysis"
	// JobKindAnswering answers a question against the owner's latest analysis.
	JobKindAnswering JobKind = "answering"
	// JobKindReporting renders a report from the owner's latest analysis.
	JobKindReporting JobKind = "reporting"
	// JobKindPipeline runs collection, analysis and reporting as one job.
	JobKindPipeline JobKind = "pipeline"

	// JobStatusInitializing is the state of every freshly created job.
	JobStatusInitializing JobStatus = "initializing"
	// JobStatusScraping is reported while products are being collected.
	JobStatusScraping JobStatus = "scraping"
	// JobStatusAnalyzing is reported while a dataset is being analyzed.
	JobStatusAnalyzing JobStatus = "analyzing"
	// JobStatusGeneratingReport is reported while a report is rendered.
	JobStatusGeneratingReport JobStatus = "generating_report"
	// JobStatusCompleted is terminal; the job has a result.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed is terminal; the job has an error.
	JobStatusFailed JobStatus = "failed"
)

// AllJobKinds lists every supported kind in a stable order.
func AllJobKinds() []JobKind {
	return []JobKind{JobKindCollection, JobKindAnalysis, JobKindAnswering, JobKindReporting, JobKindPipeline}
}

// UnmarshalText implements encoding.TextUnmarshaler for JobKind.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := JobKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobKind: %q", string(text))
	}
	*k = v
	return nil
}

// Valid returns true if the JobKind is known.
func (k JobKind) Valid() bool {
	return slices.Contains(AllJobKinds(), k)
}

// Cancellable reports whether jobs of this kind accept cooperative cancellation.
func (k JobKind) Cancellable() bool {
	return k == JobKindCollection || k == JobKindPipeline
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Message is a progress note attached to a job. Messages are append-only and
// their insertion order is the display order.
type Message struct {
	Source string    `json:"source"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// ResultRef points at the stored output of a completed job.
type ResultRef struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name"`
	Size        int64  `json:"size"`
}

// JobRecord is the tracked state of one stage invocation.
type JobRecord struct {
	ID         string          `json:"id"                    db:"id"`
	Kind       JobKind         `json:"kind"                  db:"kind"`
	Owner      string          `json:"owner"                 db:"owner"`
	Status     JobStatus       `json:"status"                db:"status"`
	Progress   int             `json:"progress"              db:"progress"`
	Messages   []Message       `json:"messages"              db:"messages"`
	Input      json.RawMessage `json:"input,omitempty"       db:"input"`
	Result     *ResultRef      `json:"result,omitempty"      db:"result"`
	Error      string          `json:"error,omitempty"       db:"error"`
	ErrorCode  FailureReason   `json:"error_code,omitempty"  db:"error_code"`
	CreatedAt  time.Time       `json:"created_at"            db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"            db:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
}

// NewJobRecord builds a record in the initializing state.
func NewJobRecord(id string, kind JobKind, owner string, input json.RawMessage, now time.Time) *JobRecord {
	return &JobRecord{
		ID:        id,
		Kind:      kind,
		Owner:     owner,
		Status:    JobStatusInitializing,
		Progress:  ProgressFor(JobStatusInitializing),
		Messages:  []Message{},
		Input:     cloneRaw(input),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the record to the given progress label. It reports whether the
// record changed. Labels reported after a terminal state, terminal labels
// themselves, a return to initializing and known labels ordered before the
// progress already reached are ignored. Unknown labels are always accepted.
func (j *JobRecord) Advance(label JobStatus, now time.Time) bool {
	label = JobStatus(strings.TrimSpace(string(label)))
	if label == "" || j.Status.IsTerminal() || label.IsTerminal() {
		return false
	}
	if label == JobStatusInitializing && j.Status != JobStatusInitializing {
		return false
	}
	if isBehind(label, j.Progress) {
		return false
	}

	changed := j.Status != label
	j.Status = label
	if p := ProgressFor(label); p > j.Progress {
		j.Progress = p
		changed = true
	}
	if changed {
		j.UpdatedAt = now
	}
	return changed
}

// AppendMessage records a progress note unless the record is terminal.
func (j *JobRecord) AppendMessage(source, text string, now time.Time) bool {
	if j.Status.IsTerminal() {
		return false
	}
	j.Messages = append(j.Messages, Message{Source: source, Text: text, At: now})
	j.UpdatedAt = now
	return true
}

// Touch refreshes UpdatedAt of a non-terminal record. It never moves the
// timestamp backwards.
func (j *JobRecord) Touch(now time.Time) bool {
	if j.Status.IsTerminal() || !now.After(j.UpdatedAt) {
		return false
	}
	j.UpdatedAt = now
	return true
}

// Complete transitions the record to completed with the given result.
func (j *JobRecord) Complete(ref ResultRef, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("complete job %s: %w", j.ID, ErrJobTerminal)
	}
	j.Status = JobStatusCompleted
	j.Progress = ProgressFor(JobStatusCompleted)
	j.Result = &ref
	j.Error = ""
	j.ErrorCode = ""
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

// Fail transitions the record to failed. Progress is left where it was.
func (j *JobRecord) Fail(reason FailureReason, message string, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("fail job %s: %w", j.ID, ErrJobTerminal)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "stage failed"
	}
	if reason == "" {
		reason = FailureInternal
	}
	j.Status = JobStatusFailed
	j.Result = nil
	j.Error = message
	j.ErrorCode = reason
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

// Clone returns a deep copy so readers never observe a record mid-mutation.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Messages = slices.Clone(j.Messages)
	if cp.Messages == nil {
		cp.Messages = []Message{}
	}
	cp.Input = cloneRaw(j.Input)
	if j.Result != nil {
		ref := *j.Result
		cp.Result = &ref
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// StatusView is the polling projection of a JobRecord. It never carries the result.
type StatusView struct {
	ID        string        `json:"id"`
	Kind      JobKind       `json:"kind"`
	Status    JobStatus     `json:"status"`
	Progress  int           `json:"progress"`
	Messages  []Message     `json:"messages"`
	Error     string        `json:"error,omitempty"`
	ErrorCode FailureReason `json:"error_code,omitempty"`
}

// View projects the record into its polling shape.
func (j *JobRecord) View() StatusView {
	msgs := slices.Clone(j.Messages)
	if msgs == nil {
		msgs = []Message{}
	}
	return StatusView{
		ID:        j.ID,
		Kind:      j.Kind,
		Status:    j.Status,
		Progress:  j.Progress,
		Messages:  msgs,
		Error:     j.Error,
		ErrorCode: j.ErrorCode,
	}
}

// SubmitRequest asks the runner to start a new job.
type SubmitRequest struct {
	Kind  JobKind         `json:"kind"`
	Owner string          `json:"-"`
	Input json.RawMessage `json:"input,omitempty"`
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return slices.Clone(raw)
}
