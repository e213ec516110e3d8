// Package stages implements the stage workers of the job engine and the
// per-owner workspace through which stages hand data to each other.
package stages

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

// Slot names one of the owner's latest outputs.
type Slot string

const (
	SlotDataset  Slot = "dataset"
	SlotAnalysis Slot = "analysis"
	SlotReport   Slot = "report"
)

// Workspace keeps the latest dataset, analysis and report of every owner.
// A collection feeds the next analysis, which feeds reporting and answering.
type Workspace struct {
	artifacts core.ArtifactStore
}

// NewWorkspace wraps an artifact store.
func NewWorkspace(artifacts core.ArtifactStore) *Workspace {
	return &Workspace{artifacts: artifacts}
}

func latestKey(owner string, slot Slot) string {
	return path.Join("owners", base64.RawURLEncoding.EncodeToString([]byte(owner)), "latest", string(slot))
}

// Publish stores a as the owner's latest output in slot.
func (w *Workspace) Publish(ctx context.Context, owner string, slot Slot, a *model.Artifact) error {
	if _, err := w.artifacts.Put(ctx, latestKey(owner, slot), a); err != nil {
		return fmt.Errorf("publish %s: %w", slot, err)
	}
	return nil
}

// Latest returns the owner's latest output in slot. found is false when the
// owner has none yet.
func (w *Workspace) Latest(ctx context.Context, owner string, slot Slot) (a *model.Artifact, found bool, err error) {
	a, err = w.artifacts.Get(ctx, latestKey(owner, slot))
	if errors.Is(err, model.ErrArtifactNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load latest %s: %w", slot, err)
	}
	return a, true, nil
}
