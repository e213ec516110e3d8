package stages

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/target/marketpulse/internal/adapters/llm"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
)

const (
	msgNoDataset     = "No product data found. Please run a collection first."
	msgTooFewProduct = "Not enough product data for analysis (need at least 2 products)."
	minAnalysisItems = 2
)

// SourceStats summarizes the prices collected from one source.
type SourceStats struct {
	Source string
	Count  int
	Min    float64
	Max    float64
	Mean   float64
}

// PriceStats groups products by source. Sources are sorted by name.
func PriceStats(products []model.Product) []SourceStats {
	bySource := map[string]*SourceStats{}
	sums := map[string]float64{}
	for _, p := range products {
		st, ok := bySource[p.Source]
		if !ok {
			st = &SourceStats{Source: p.Source, Min: p.Price, Max: p.Price}
			bySource[p.Source] = st
		}
		st.Count++
		st.Min = min(st.Min, p.Price)
		st.Max = max(st.Max, p.Price)
		sums[p.Source] += p.Price
	}
	out := make([]SourceStats, 0, len(bySource))
	for src, st := range bySource {
		st.Mean = sums[src] / float64(st.Count)
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b SourceStats) int { return cmp.Compare(a.Source, b.Source) })
	return out
}

// AnalyzerOptions groups dependencies for Analyzer.
type AnalyzerOptions struct {
	Model     core.ModelClient  // Required
	Workspace *Workspace        // Required
	Logger    *slog.Logger      // Optional
	Clock     data.TimeProvider // Optional
}

// Analyzer turns the owner's latest dataset into a market analysis.
type Analyzer struct {
	model     core.ModelClient
	workspace *Workspace
	logger    *slog.Logger
	clock     data.TimeProvider
}

var _ core.StageWorker = (*Analyzer)(nil)

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(opts AnalyzerOptions) (*Analyzer, error) {
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
	return &Analyzer{
		model:     opts.Model,
		workspace: opts.Workspace,
		logger:    logger.With("component", "analyzer"),
		clock:     clock,
	}, nil
}

func (a *Analyzer) Kind() model.JobKind { return model.JobKindAnalysis }

func (a *Analyzer) Validate(input json.RawMessage) error {
	_, err := model.DecodeInput[model.EmptyInput](input)
	return err
}

func (a *Analyzer) Run(ctx context.Context, req model.StageRequest, progress core.ProgressReporter) (*model.Artifact, error) {
	progress.Advance(ctx, model.JobStatusAnalyzing)

	dataset, found, err := a.workspace.Latest(ctx, req.Owner, SlotDataset)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.Precondition(msgNoDataset)
	}
	products, err := DecodeDataset(dataset.Data)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if len(products) < minAnalysisItems {
		return nil, model.Precondition(msgTooFewProduct)
	}
	progress.Note(ctx, "analyzer", fmt.Sprintf("Analyzing %d products", len(products)))

	start := time.Now()
	commentary, err := a.model.Complete(ctx, analysisPrompt(products))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.Upstream("Error during analysis with the model", err)
	}
	a.logger.InfoContext(ctx, "analysis generated",
		"job_id", req.JobID, "products", len(products), "latency_ms", time.Since(start).Milliseconds())

	now := a.clock.Now()
	body, err := render(analysisTemplate, struct {
		GeneratedAt time.Time
		Total       int
		Sources     []SourceStats
		Commentary  string
	}{now, len(products), PriceStats(products), llm.Clean(commentary)})
	if err != nil {
		return nil, err
	}

	artifact := &model.Artifact{
		ContentType: "text/markdown; charset=utf-8",
		FileName:    fmt.Sprintf("analysis_%s.md", now.Format("20060102_150405")),
		Data:        body,
	}
	if err := a.workspace.Publish(ctx, req.Owner, SlotAnalysis, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}
