package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/marketpulse/config"
	"github.com/target/marketpulse/internal/adapters/jobrunner"
	"github.com/target/marketpulse/internal/core"
	httpx "github.com/target/marketpulse/internal/http"
	"github.com/target/marketpulse/internal/observability/notify/pagerduty"
	"github.com/target/marketpulse/internal/observability/notify/slack"
	"github.com/target/marketpulse/internal/observability/statsd"
	"github.com/target/marketpulse/internal/service"
	"github.com/target/marketpulse/internal/service/failurenotifier"
	"github.com/target/marketpulse/internal/stages"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Store         core.JobStore
	Artifacts     core.ArtifactStore
	Workspace     *stages.Workspace
	Runner        *jobrunner.Runner
	Status        *service.StatusReporter
	Jobs          *service.JobService
	Stream        *service.StreamChannel
	Reaper        *service.ReaperService
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink     statsd.Sink
	metricsClient   *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Close flushes and releases the metrics connection.
func (o ObservabilityContainer) Close() error {
	if o.metricsClient == nil {
		return nil
	}
	return o.metricsClient.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Infra  *Infrastructure
	Logger *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	obs := ObservabilityContainer{
		MetricsConfig:  cfg.Metrics,
		NotifierConfig: cfg.Notifications,
	}
	if cfg.Metrics.IsEnabled() {
		var tags map[string]string
		if cfg.Metrics.Environment != "" {
			tags = map[string]string{"env": cfg.Metrics.Environment}
		}
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			Logger:     obsLogger,
			GlobalTags: tags,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			obs.metricsClient = client
			obs.MetricsSink = client
		}
	}

	obs.FailureNotifier = buildFailureNotifier(obsLogger, cfg.Notifications)
	return obs
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:  baseLogger.With("component", "failure_notifier"),
		Sinks:   sinks,
		Reasons: cfg.Reasons,
	})
}

// NewServices wires stage workers, the job runner and the API-facing services
// on top of the opened infrastructure.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.Infra == nil {
		return ServiceContainer{}, errors.New("config and infrastructure are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	infra := deps.Infra

	observability := buildObservability(logger, cfg.Observability)
	workspace := stages.NewWorkspace(infra.Artifacts)

	model, err := BuildModelClient(cfg.Model, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	workers, err := BuildStageWorkers(StageWorkersConfig{
		Collector: cfg.Collector,
		Model:     model,
		Workspace: workspace,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Store:          infra.Store,
		Artifacts:      infra.Artifacts,
		Workers:        workers.Workers,
		Logger:         logger,
		Metrics:        observability.MetricsSink,
		Notifier:       observability.FailureNotifier,
		MaxConcurrency: cfg.Runner.MaxConcurrency,
		Heartbeat:      cfg.Runner.Heartbeat,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job runner: %w", err)
	}

	status, err := service.NewStatusReporter(service.StatusReporterOptions{
		Store:     infra.Store,
		Artifacts: infra.Artifacts,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build status reporter: %w", err)
	}
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Runner:    runner,
		Store:     infra.Store,
		Status:    status,
		Workspace: workspace,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}
	stream, err := service.NewStreamChannel(service.StreamChannelOptions{
		Answerer: workers.Answerer,
		Logger:   logger,
		Metrics:  observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build stream channel: %w", err)
	}
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Store:     infra.Store,
		Artifacts: infra.Artifacts,
		Config:    cfg.Reaper,
		Logger:    logger,
		Metrics:   observability.MetricsSink,
		Active:    runner,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build reaper: %w", err)
	}

	return ServiceContainer{
		Store:         infra.Store,
		Artifacts:     infra.Artifacts,
		Workspace:     workspace,
		Runner:        runner,
		Status:        status,
		Jobs:          jobs,
		Stream:        stream,
		Reaper:        reaper,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Infra    *Infrastructure
	Owner    httpx.OwnerAuthOptions
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Owner:    deps.cfg.Owner,
		Ready:    deps.cfg.Infra.ReadinessChecks(),
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Services.Reaper == nil {
				return nil
			}
			return deps.cfg.Services.Reaper.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		ctx:           serviceCtx,
		cancel:        cancel,
		quit:          quit,
		errCh:         errCh,
		httpServer:    result.HTTPServer,
		runner:        cfg.Services.Runner,
		runnerTimeout: cfg.Config.Runner.ShutdownTimeout,
		observability: cfg.Services.Observability,
		logger:        logger,
		backgrounds:   result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx           context.Context
	cancel        context.CancelFunc
	quit          <-chan os.Signal
	errCh         <-chan error
	httpServer    *http.Server
	runner        *jobrunner.Runner
	runnerTimeout time.Duration
	observability ObservabilityContainer
	logger        *slog.Logger
	backgrounds   []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops the HTTP server, then the job runner, then background
// services. Jobs still running when the runner deadline passes are failed as
// interrupted.
func gracefulStop(cfg shutdownConfig) error {
	var errs []error

	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Server:  cfg.httpServer,
			Timeout: shutdownWaitTimeout,
			Logger:  cfg.logger,
		}); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}

	if cfg.runner != nil {
		timeout := cfg.runnerTimeout
		if timeout <= 0 {
			timeout = shutdownWaitTimeout
		}
		runnerCtx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := cfg.runner.Shutdown(runnerCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown job runner: %w", err))
		} else {
			cfg.logger.Info("job runner stopped")
		}
		cancel()
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if err := cfg.observability.Close(); err != nil {
		cfg.logger.Warn("closing metrics client failed", "error", err)
	}

	return errors.Join(errs...)
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
