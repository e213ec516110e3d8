package model

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job id is unknown or owned by someone else.
	ErrJobNotFound = errors.New("job not found")
	// ErrSubmissionRejected is returned when a submission fails validation. No job is created.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrStageFailure marks a domain failure raised by a stage worker.
	ErrStageFailure = errors.New("stage failure")
	// ErrStreamAbort is returned when an answer stream ends before the answer is complete.
	ErrStreamAbort = errors.New("stream aborted")
	// ErrJobTerminal is returned when a transition is attempted on a finished job.
	ErrJobTerminal = errors.New("job already finished")
	// ErrResultNotReady is returned when the result of an unfinished or failed job is requested.
	ErrResultNotReady = errors.New("job result not available")
	// ErrNotCancellable is returned when cancel is called for a kind without cancellation support.
	ErrNotCancellable = errors.New("job kind does not support cancellation")
	// ErrArtifactNotFound is returned when a stored artifact is missing.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// FailureReason classifies why a job failed.
type FailureReason string

const (
	// FailurePrecondition means data required by the stage does not exist yet.
	FailurePrecondition FailureReason = "precondition"
	// FailureUpstream means a collaborator (source, model) returned an error.
	FailureUpstream FailureReason = "upstream"
	// FailureCanceled means the owner cancelled the job.
	FailureCanceled FailureReason = "canceled"
	// FailureInterrupted means the process stopped before the stage finished.
	FailureInterrupted FailureReason = "interrupted"
	// FailureInternal covers worker crashes and unclassified errors.
	FailureInternal FailureReason = "internal"
)

// StageError is the typed failure returned by stage workers.
type StageError struct {
	Reason  FailureReason
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the cause and the ErrStageFailure sentinel.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStageFailure}
	}
	return []error{ErrStageFailure, e.Err}
}

// Precondition builds a StageError for missing input data.
func Precondition(message string) *StageError {
	return &StageError{Reason: FailurePrecondition, Message: message}
}

// Upstream wraps a collaborator error.
func Upstream(message string, err error) *StageError {
	return &StageError{Reason: FailureUpstream, Message: message, Err: err}
}

// IsPrecondition reports whether err is a missing-precondition stage failure.
func IsPrecondition(err error) bool {
	return ReasonOf(err) == FailurePrecondition
}

// ReasonOf extracts the failure reason from err, defaulting to FailureInternal.
func ReasonOf(err error) FailureReason {
	var se *StageError
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason
	}
	return FailureInternal
}

// Rejectf builds a SubmissionRejected error with a formatted message.
func Rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSubmissionRejected, fmt.Sprintf(format, args...))
}
