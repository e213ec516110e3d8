package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/marketpulse/internal/adapters/llm"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
)

const msgNoAnalysis = "No analysis found. Please run an analysis first."

// ReporterOptions groups dependencies for Reporter.
type ReporterOptions struct {
	Model     core.ModelClient  // Required
	Workspace *Workspace        // Required
	Logger    *slog.Logger      // Optional
	Clock     data.TimeProvider // Optional
}

// Reporter writes an executive report from the owner's latest analysis.
type Reporter struct {
	model     core.ModelClient
	workspace *Workspace
	logger    *slog.Logger
	clock     data.TimeProvider
}

var _ core.StageWorker = (*Reporter)(nil)

// NewReporter constructs a Reporter.
func NewReporter(opts ReporterOptions) (*Reporter, error) {
	if opts.Model == nil {
		return nil, errors.New("model client is required")
	}
	if opts.Workspace == nil {
		return nil, errors.New("workspace is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	return &Reporter{
		model:     opts.Model,
		workspace: opts.Workspace,
		logger:    logger.With("component", "reporter"),
		clock:     clock,
	}, nil
}

func (r *Reporter) Kind() model.JobKind { return model.JobKindReporting }

func (r *Reporter) Validate(input json.RawMessage) error {
	_, err := model.DecodeInput[model.EmptyInput](input)
	return err
}

func (r *Reporter) Run(ctx context.Context, req model.StageRequest, progress core.ProgressReporter) (*model.Artifact, error) {
	progress.Advance(ctx, model.JobStatusGeneratingReport)

	analysis, found, err := r.workspace.Latest(ctx, req.Owner, SlotAnalysis)
	if err != nil {
		return nil, err
	}
	if !found || strings.TrimSpace(string(analysis.Data)) == "" {
		return nil, model.Precondition(msgNoAnalysis)
	}

	text, err := r.model.Complete(ctx, reportPrompt(string(analysis.Data)))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.Upstream("Error generating report with the model", err)
	}

	now := r.clock.Now()
	body, err := render(reportTemplate, struct {
		GeneratedAt time.Time
		JobID       string
		Body        string
	}{now, req.JobID, llm.Clean(text)})
	if err != nil {
		return nil, err
	}

	artifact := &model.Artifact{
		ContentType: "text/markdown; charset=utf-8",
		FileName:    fmt.Sprintf("report_%s.md", now.Format("20060102_150405")),
		Data:        body,
	}
	if err := r.workspace.Publish(ctx, req.Owner, SlotReport, artifact); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "report generated", "job_id", req.JobID, "bytes", len(body))
	return artifact, nil
}
