package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
)

// CollectorOptions groups dependencies for Collector.
type CollectorOptions struct {
	Sources   []core.ProductSource // Required: at least one source
	Workspace *Workspace           // Required: receives the collected dataset
	Logger    *slog.Logger         // Optional: structured logger
	Clock     data.TimeProvider    // Optional: defaults to real time
}

// Collector gathers products from every configured source into one dataset.
type Collector struct {
	sources   []core.ProductSource
	workspace *Workspace
	logger    *slog.Logger
	clock     data.TimeProvider
}

var _ core.StageWorker = (*Collector)(nil)

// NewCollector constructs a Collector.
func NewCollector(opts CollectorOptions) (*Collector, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New("at least one product source is required")
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
	return &Collector{
		sources:   opts.Sources,
		workspace: opts.Workspace,
		logger:    logger.With("component", "collector"),
		clock:     clock,
	}, nil
}

func (c *Collector) Kind() model.JobKind { return model.JobKindCollection }

func (c *Collector) Validate(input json.RawMessage) error {
	in, err := model.DecodeInput[model.CollectionInput](input)
	if err != nil {
		return err
	}
	return in.Validate()
}

func (c *Collector) Run(ctx context.Context, req model.StageRequest, progress core.ProgressReporter) (*model.Artifact, error) {
	in, err := model.DecodeInput[model.CollectionInput](req.Input)
	if err != nil {
		return nil, err
	}
	return c.Collect(ctx, req, in.MaxItems, progress)
}

type sourceResult struct {
	products []model.Product
	err      error
	elapsed  time.Duration
}

// Collect fetches up to n products and publishes them as the owner's latest dataset.
func (c *Collector) Collect(
	ctx context.Context,
	req model.StageRequest,
	n int,
	progress core.ProgressReporter,
) (*model.Artifact, error) {
	progress.Advance(ctx, model.JobStatusScraping)
	quota := (n + len(c.sources) - 1) / len(c.sources)

	results := make([]sourceResult, len(c.sources))
	var g errgroup.Group
	for i, src := range c.sources {
		g.Go(func() error {
			start := time.Now()
			items, err := src.Fetch(ctx, quota)
			results[i] = sourceResult{products: items, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		products []model.Product
		failures []error
		seen     = make(map[string]struct{}, n)
		fold     = cases.Fold()
	)
	for i, src := range c.sources {
		res := results[i]
		if res.err != nil {
			c.logger.WarnContext(ctx, "source fetch failed",
				"job_id", req.JobID, "source", src.Name(), "error", res.err)
			progress.Note(ctx, src.Name(), fmt.Sprintf("Failed to collect products: %v", res.err))
			failures = append(failures, fmt.Errorf("%s: %w", src.Name(), res.err))
		}
		kept := 0
		for _, p := range res.products {
			p.Name = normalizeName(p.Name)
			p.Description = strings.Join(strings.Fields(p.Description), " ")
			if p.Name == "" {
				continue
			}
			key := fold.String(p.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			products = append(products, p)
			kept++
		}
		if res.err == nil || kept > 0 {
			progress.Note(ctx, src.Name(), fmt.Sprintf("Collected %d products in %s", kept, res.elapsed.Round(time.Millisecond)))
		}
	}

	if len(products) == 0 {
		return nil, model.Upstream("No products could be collected from any source", errors.Join(failures...))
	}
	if len(products) > n {
		products = products[:n]
	}

	body, err := EncodeDataset(products)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	artifact := &model.Artifact{
		ContentType: "text/csv",
		FileName:    fmt.Sprintf("products_%s.csv", now.Format("20060102_150405")),
		Data:        body,
	}
	if err := c.workspace.Publish(ctx, req.Owner, SlotDataset, artifact); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "collection finished", "job_id", req.JobID, "products", len(products))
	return artifact, nil
}

// normalizeName applies NFKC and collapses whitespace.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
}
