package core

import (
	"fmt"
	"os"
	"time"
)

// RunConfig holds the orchestrator-wide settings shared by the plan
// runner, inbox watcher, router, and alert notifier. It follows the same
// three-layer precedence as the teacher's Config: built-in defaults,
// overridden by environment variables, overridden last by functional
// options passed to NewRunConfig.
type RunConfig struct {
	// PostboxRoot is the directory containing per-agent inbox.json /
	// outbox.json files (spec.md §6: postbox/<AGENT>/...).
	PostboxRoot string
	// LogsRoot is the directory containing logs/tasks, logs/traces,
	// logs/agent_scores.json, logs/alerts_triggered.json.
	LogsRoot string

	// ResponseTimeout bounds how long the runner waits for a reply in an
	// agent's outbox before treating the attempt as a timeout.
	ResponseTimeout time.Duration
	// RetryDelay is the sleep between attempts after a timeout.
	RetryDelay time.Duration
	// PollInterval is how often wait_for_reply re-reads the outbox.
	PollInterval time.Duration
	// WatcherInterval is how often the inbox watcher polls its own inbox.
	WatcherInterval time.Duration
	// WebhookTimeout holds the default alert webhook timeout. alert.Notifier
	// does not read it: it uses a rule's timeout_seconds, or 10s when unset.
	WebhookTimeout time.Duration
	// DefaultRetryLimit is the fallback max-attempts used when a task
	// doesn't specify max_retries and no phase policy overrides it.
	DefaultRetryLimit int

	// Logger receives diagnostics from every component. Never nil after
	// NewRunConfig runs (defaults to NoOpLogger).
	Logger Logger
}

// Option configures a RunConfig. Options are applied after environment
// variables, so they take final precedence.
type Option func(*RunConfig) error

// NewRunConfig builds a RunConfig from built-in defaults, then env vars,
// then the supplied options, validating the result.
func NewRunConfig(opts ...Option) (*RunConfig, error) {
	cfg := &RunConfig{
		PostboxRoot:       "postbox",
		LogsRoot:          "logs",
		ResponseTimeout:   DefaultResponseTimeout,
		RetryDelay:        DefaultRetryDelay,
		PollInterval:      DefaultPollInterval,
		WatcherInterval:   DefaultWatcherInterval,
		WebhookTimeout:    DefaultWebhookTimeout,
		DefaultRetryLimit: DefaultRetryLimit,
		Logger:            NoOpLogger{},
	}
	cfg.loadFromEnv()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("applying orchestrator config option: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RunConfig) loadFromEnv() {
	if v := os.Getenv(EnvPostboxRoot); v != "" {
		c.PostboxRoot = v
	}
	if v := os.Getenv(EnvLogsRoot); v != "" {
		c.LogsRoot = v
	}
}

func (c *RunConfig) validate() error {
	if c.PostboxRoot == "" {
		return &OrchestratorError{Op: "NewRunConfig", Kind: ErrInvalidPlan, Err: fmt.Errorf("postbox root must not be empty")}
	}
	if c.LogsRoot == "" {
		return &OrchestratorError{Op: "NewRunConfig", Kind: ErrInvalidPlan, Err: fmt.Errorf("logs root must not be empty")}
	}
	if c.DefaultRetryLimit < 1 {
		return &OrchestratorError{Op: "NewRunConfig", Kind: ErrInvalidPlan, Err: fmt.Errorf("default retry limit must be >= 1")}
	}
	return nil
}

// WithPostboxRoot overrides the postbox directory.
func WithPostboxRoot(path string) Option {
	return func(c *RunConfig) error {
		if path == "" {
			return fmt.Errorf("postbox root must not be empty")
		}
		c.PostboxRoot = path
		return nil
	}
}

// WithLogsRoot overrides the logs directory.
func WithLogsRoot(path string) Option {
	return func(c *RunConfig) error {
		if path == "" {
			return fmt.Errorf("logs root must not be empty")
		}
		c.LogsRoot = path
		return nil
	}
}

// WithLogger overrides the shared logger.
func WithLogger(l Logger) Option {
	return func(c *RunConfig) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.Logger = l
		return nil
	}
}

// WithResponseTimeout overrides the reply-wait timeout.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *RunConfig) error {
		if d <= 0 {
			return fmt.Errorf("response timeout must be positive")
		}
		c.ResponseTimeout = d
		return nil
	}
}

// WithRetryDelay overrides the inter-attempt sleep.
func WithRetryDelay(d time.Duration) Option {
	return func(c *RunConfig) error {
		if d < 0 {
			return fmt.Errorf("retry delay must not be negative")
		}
		c.RetryDelay = d
		return nil
	}
}

// WithPollInterval overrides the outbox poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *RunConfig) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive")
		}
		c.PollInterval = d
		return nil
	}
}

// WithWatcherInterval overrides the inbox watcher poll interval.
func WithWatcherInterval(d time.Duration) Option {
	return func(c *RunConfig) error {
		if d <= 0 {
			return fmt.Errorf("watcher interval must be positive")
		}
		c.WatcherInterval = d
		return nil
	}
}

// IsKubernetes reports whether the process appears to be running inside
// Kubernetes, used by telemetry to pick a log format default.
func IsKubernetes() bool {
	return os.Getenv(EnvKubernetesHost) != ""
}
