package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	// MinCollectionItems is the smallest accepted collection size.
	MinCollectionItems = 2
	// MaxCollectionItems is the largest accepted collection size.
	MaxCollectionItems = 200
	// DefaultCollectionItems is used by the immediate collection endpoint when no size is given.
	DefaultCollectionItems = 100
	// MaxQuestionLength bounds answering questions.
	MaxQuestionLength = 2000
)

// CollectionInput configures a collection job.
type CollectionInput struct {
	MaxItems int `json:"max_items"`
}

// Validate checks the collection bounds.
func (in CollectionInput) Validate() error {
	if in.MaxItems < MinCollectionItems || in.MaxItems > MaxCollectionItems {
		return Rejectf("max_items must be between %d and %d, got %d",
			MinCollectionItems, MaxCollectionItems, in.MaxItems)
	}
	return nil
}

// PipelineInput configures a pipeline job.
type PipelineInput struct {
	MaxItems      int  `json:"max_items"`
	ReuseExisting bool `json:"reuse_existing,omitempty"`
}

// Validate checks the pipeline collection bounds.
func (in PipelineInput) Validate() error {
	return CollectionInput{MaxItems: in.MaxItems}.Validate()
}

// QuestionInput is the input of an answering request.
type QuestionInput struct {
	Question string `json:"question"`
}

// Validate checks that the question is present and bounded.
func (in QuestionInput) Validate() error {
	q := strings.TrimSpace(in.Question)
	if q == "" {
		return Rejectf("question is required")
	}
	if utf8.RuneCountInString(q) > MaxQuestionLength {
		return Rejectf("question must be at most %d characters", MaxQuestionLength)
	}
	return nil
}

// EmptyInput is accepted by kinds that take no parameters.
type EmptyInput struct{}

// DecodeInput strictly decodes a submission input. An absent input decodes to the zero value.
func DecodeInput[T any](raw json.RawMessage) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, Rejectf("invalid input: %v", err)
	}
	return out, nil
}
