// Package core declares the ports of the marketpulse job engine.
package core

import (
	"github.com/target/marketpulse/internal/domain/model"
)

// JobKind is re-exported so HTTP handlers do not import the model package for it.
type JobKind = model.JobKind

// SubmitRequest is re-exported for the same reason.
type SubmitRequest = model.SubmitRequest
