package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/target/marketpulse/config"
	"github.com/target/marketpulse/internal/adapters/llm"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/stages"
)

// BuildModelClient returns the language model adapter for the configured provider.
//
//nolint:ireturn // the provider is chosen at runtime.
func BuildModelClient(cfg config.ModelConfig, logger *slog.Logger) (core.ModelClient, error) {
	if cfg.Provider != config.ModelProviderOpenAI {
		if logger != nil {
			logger.Info("using offline model client")
		}
		return llm.Offline{}, nil
	}

	client, err := llm.NewHTTPClient(llm.Config{
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Name,
		Temperature:  cfg.Temperature,
		Timeout:      cfg.Timeout,
		APIKey:       cfg.APIKey,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build model client: %w", err)
	}
	if logger != nil {
		logger.Info("using model endpoint", "base_url", cfg.BaseURL, "model", cfg.Name)
	}
	return client, nil
}

// StageWorkers is the set of workers the runner dispatches to, plus the
// answerer shared with the stream channel.
type StageWorkers struct {
	Workers  []core.StageWorker
	Answerer *stages.Answerer
}

// StageWorkersConfig contains dependencies for BuildStageWorkers.
type StageWorkersConfig struct {
	Collector config.CollectorConfig
	Model     core.ModelClient
	Workspace *stages.Workspace
	Logger    *slog.Logger
}

// BuildStageWorkers wires collector, analyzer, reporter, pipeline and answer workers.
func BuildStageWorkers(cfg StageWorkersConfig) (StageWorkers, error) {
	sources, err := stages.LoadSources(cfg.Collector.SourcesFile, stages.SourceOptions{
		UserAgent: cfg.Collector.UserAgent,
		Timeout:   cfg.Collector.RequestTimeout,
	})
	if err != nil {
		return StageWorkers{}, err
	}
	if cfg.Collector.SourcesFile == "" && cfg.Logger != nil {
		cfg.Logger.Warn("COLLECTOR_SOURCES_FILE not set; collecting from the demo catalog")
	}

	collector, err := stages.NewCollector(stages.CollectorOptions{
		Sources:   sources,
		Workspace: cfg.Workspace,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return StageWorkers{}, fmt.Errorf("build collector: %w", err)
	}
	analyzer, err := stages.NewAnalyzer(stages.AnalyzerOptions{
		Model:     cfg.Model,
		Workspace: cfg.Workspace,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return StageWorkers{}, fmt.Errorf("build analyzer: %w", err)
	}
	reporter, err := stages.NewReporter(stages.ReporterOptions{
		Model:     cfg.Model,
		Workspace: cfg.Workspace,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return StageWorkers{}, fmt.Errorf("build reporter: %w", err)
	}
	pipeline, err := stages.NewPipeline(collector, analyzer, reporter, cfg.Workspace)
	if err != nil {
		return StageWorkers{}, fmt.Errorf("build pipeline: %w", err)
	}
	answerer, err := stages.NewAnswerer(cfg.Model, cfg.Workspace, cfg.Logger)
	if err != nil {
		return StageWorkers{}, fmt.Errorf("build answerer: %w", err)
	}

	return StageWorkers{
		Workers: []core.StageWorker{
			collector,
			analyzer,
			reporter,
			pipeline,
			stages.NewAnswerWorker(answerer),
		},
		Answerer: answerer,
	}, nil
}
