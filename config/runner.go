package config

import (
	"fmt"
	"strings"
	"time"
)

// RunnerConfig controls in-process job execution.
type RunnerConfig struct {
	// MaxConcurrency bounds concurrently executing jobs. Zero means unbounded.
	MaxConcurrency int `env:"RUNNER_MAX_CONCURRENCY" envDefault:"0"`

	// ShutdownTimeout is how long Shutdown waits for cancelled jobs to return.
	ShutdownTimeout time.Duration `env:"RUNNER_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// ImmediateTimeout bounds the blocking collection endpoint.
	ImmediateTimeout time.Duration `env:"RUNNER_IMMEDIATE_TIMEOUT" envDefault:"5m"`

	// Heartbeat is how often owned jobs have UpdatedAt refreshed. It must stay
	// under REAPER_ACTIVE_MAX_AGE.
	Heartbeat time.Duration `env:"RUNNER_HEARTBEAT" envDefault:"1m"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.MaxConcurrency < 0 {
		r.MaxConcurrency = 0
	}
	if r.ShutdownTimeout < time.Second {
		r.ShutdownTimeout = time.Second
	}
	if r.ImmediateTimeout <= 0 {
		r.ImmediateTimeout = 5 * time.Minute
	}
	switch {
	case r.Heartbeat <= 0:
		r.Heartbeat = time.Minute
	case r.Heartbeat < time.Second:
		r.Heartbeat = time.Second
	case r.Heartbeat > maxRunnerHeartbeat:
		r.Heartbeat = maxRunnerHeartbeat
	}
}

// maxRunnerHeartbeat keeps refreshes well inside the smallest reaper stale age.
const maxRunnerHeartbeat = 2 * time.Minute

// CollectorConfig configures product sources.
type CollectorConfig struct {
	// SourcesFile is a TOML file describing product sources. The demo catalog is used when empty.
	SourcesFile string `env:"COLLECTOR_SOURCES_FILE"`

	RequestTimeout time.Duration `env:"COLLECTOR_REQUEST_TIMEOUT" envDefault:"30s"`
	UserAgent      string        `env:"COLLECTOR_USER_AGENT"      envDefault:"marketpulse-collector/1.0"`
}

// Sanitize applies guardrails to collector configuration values.
func (c *CollectorConfig) Sanitize() {
	c.SourcesFile = strings.TrimSpace(c.SourcesFile)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = "marketpulse-collector/1.0"
	}
}

// ModelProvider selects the language model client.
type ModelProvider string

const (
	// ModelProviderOffline produces deterministic local text.
	ModelProviderOffline ModelProvider = "offline"
	// ModelProviderOpenAI talks to an OpenAI-compatible chat completions API.
	ModelProviderOpenAI ModelProvider = "openai"
)

// UnmarshalText implements encoding.TextUnmarshaler for ModelProvider.
func (p *ModelProvider) UnmarshalText(text []byte) error {
	v := ModelProvider(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case ModelProviderOffline, ModelProviderOpenAI:
		*p = v
		return nil
	default:
		return fmt.Errorf("invalid ModelProvider: %q (valid options: offline, openai)", string(text))
	}
}

// ModelConfig configures the language model used by analysis and answering.
type ModelConfig struct {
	Provider    ModelProvider `env:"MODEL_PROVIDER"    envDefault:"offline"`
	BaseURL     string        `env:"MODEL_BASE_URL"    envDefault:"http://localhost:11434/v1"`
	Name        string        `env:"MODEL_NAME"        envDefault:"llama3.1"`
	Temperature float64       `env:"MODEL_TEMPERATURE" envDefault:"0.2"`
	Timeout     time.Duration `env:"MODEL_TIMEOUT"     envDefault:"2m"`

	// APIKey is sent as a static bearer token.
	APIKey string `env:"MODEL_API_KEY"`

	// Client credentials are used instead of APIKey when TokenURL is set.
	TokenURL     string   `env:"MODEL_TOKEN_URL"`
	ClientID     string   `env:"MODEL_CLIENT_ID"`
	ClientSecret string   `env:"MODEL_CLIENT_SECRET"`
	Scopes       []string `env:"MODEL_SCOPES"        envSeparator:" "`
}

// Sanitize applies guardrails to model configuration values.
func (m *ModelConfig) Sanitize() {
	if m.Provider == "" {
		m.Provider = ModelProviderOffline
	}
	m.BaseURL = strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	if m.Provider == ModelProviderOpenAI && m.BaseURL == "" {
		m.Provider = ModelProviderOffline
	}
	m.Temperature = min(max(m.Temperature, 0), 2)
	if m.Timeout <= 0 {
		m.Timeout = 2 * time.Minute
	}
}
