package model

import (
	"encoding/json"
	"time"
)

// Product is one collected listing.
type Product struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Source      string  `json:"source"`
}

// Dataset is the output of a collection run.
type Dataset struct {
	JobID       string    `json:"job_id"`
	CollectedAt time.Time `json:"collected_at"`
	Products    []Product `json:"products"`
}

// Artifact is a stored stage output.
type Artifact struct {
	ContentType string
	FileName    string
	Data        []byte
}

// Ref builds the reference stored on a job record.
func (a *Artifact) Ref(key string) ResultRef {
	return ResultRef{
		Key:         key,
		ContentType: a.ContentType,
		FileName:    a.FileName,
		Size:        int64(len(a.Data)),
	}
}

// StageRequest is what a stage worker receives for one job.
type StageRequest struct {
	JobID string
	Owner string
	Kind  JobKind
	Input json.RawMessage
}
