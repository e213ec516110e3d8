package data

import "errors"

// Shared sentinel errors for data-layer stores.
var (
	// ErrJobExists is returned by Create when the id is already taken.
	ErrJobExists = errors.New("job already exists")
	// ErrJobIDRequired is returned when a record without id is stored.
	ErrJobIDRequired = errors.New("job id is required")
	// ErrArtifactKeyRequired is returned when an artifact key is empty or unsafe.
	ErrArtifactKeyRequired = errors.New("artifact key is required")
)
