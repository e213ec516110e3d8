package stages

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

const (
	msgSkipCollection = "Scraped data already exists. Skipping scraping."
	msgSkipAnalysis   = "Analysis already exists. Skipping analysis."
	msgSkipReport     = "Report already exists. Skipping generation."
	pipelineSource    = "pipeline"
)

// Pipeline runs collection, analysis and reporting as one job.
type Pipeline struct {
	collector *Collector
	analyzer  *Analyzer
	reporter  *Reporter
	workspace *Workspace
}

var _ core.StageWorker = (*Pipeline)(nil)

// NewPipeline chains the three stages.
func NewPipeline(c *Collector, a *Analyzer, r *Reporter, ws *Workspace) (*Pipeline, error) {
	if c == nil || a == nil || r == nil || ws == nil {
		return nil, errors.New("collector, analyzer, reporter and workspace are required")
	}
	return &Pipeline{collector: c, analyzer: a, reporter: r, workspace: ws}, nil
}

func (p *Pipeline) Kind() model.JobKind { return model.JobKindPipeline }

func (p *Pipeline) Validate(input json.RawMessage) error {
	in, err := model.DecodeInput[model.PipelineInput](input)
	if err != nil {
		return err
	}
	return in.Validate()
}

// Run executes each stage in turn. With reuse_existing, a stage whose output
// already exists for the owner is skipped.
func (p *Pipeline) Run(ctx context.Context, req model.StageRequest, progress core.ProgressReporter) (*model.Artifact, error) {
	in, err := model.DecodeInput[model.PipelineInput](req.Input)
	if err != nil {
		return nil, err
	}

	skip, err := p.reusable(ctx, in.ReuseExisting, req.Owner, SlotDataset)
	if err != nil {
		return nil, err
	}
	if skip {
		progress.Note(ctx, pipelineSource, msgSkipCollection)
	} else if _, err := p.collector.Collect(ctx, req, in.MaxItems, progress); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	skip, err = p.reusable(ctx, in.ReuseExisting, req.Owner, SlotAnalysis)
	if err != nil {
		return nil, err
	}
	if skip {
		progress.Note(ctx, pipelineSource, msgSkipAnalysis)
	} else if _, err := p.analyzer.Run(ctx, req, progress); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if in.ReuseExisting {
		report, found, err := p.workspace.Latest(ctx, req.Owner, SlotReport)
		if err != nil {
			return nil, err
		}
		if found {
			progress.Note(ctx, pipelineSource, msgSkipReport)
			return report, nil
		}
	}
	return p.reporter.Run(ctx, req, progress)
}

func (p *Pipeline) reusable(ctx context.Context, reuse bool, owner string, slot Slot) (bool, error) {
	if !reuse {
		return false, nil
	}
	_, found, err := p.workspace.Latest(ctx, owner, slot)
	return found, err
}
