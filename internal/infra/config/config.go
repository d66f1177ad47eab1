package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// ConversationConfig controls the context store.
type ConversationConfig struct {
	StickyWindow string `yaml:"sticky_window"` // duration, default "5m"
	IdleTTL      string `yaml:"idle_ttl"`      // duration, default "24h"

	stickyWindow time.Duration
	idleTTL      time.Duration
}

// StickyWindowDuration returns the parsed stickiness window.
func (c ConversationConfig) StickyWindowDuration() time.Duration { return c.stickyWindow }

// IdleTTLDuration returns the parsed idle eviction TTL.
func (c ConversationConfig) IdleTTLDuration() time.Duration { return c.idleTTL }

// MetricsConfig controls the metrics service and its persistence.
type MetricsConfig struct {
	Backend    string `yaml:"backend"`     // "file" or "sqlite"
	Path       string `yaml:"path"`        // snapshot file or database path
	WindowSize int    `yaml:"window_size"` // rolling interaction window capacity
	ErrorCap   int    `yaml:"error_cap"`   // capped error list size
}

// WorkflowSpec is the configuration form of a workflow definition.
type WorkflowSpec struct {
	Name        string              `yaml:"name"`
	Steps       []string            `yaml:"steps"`
	Guards      map[string]string   `yaml:"guards,omitempty"`      // agent name -> guard name
	Transitions map[string][]string `yaml:"transitions,omitempty"` // advisory labels
}

// EngineConfig controls workflow execution.
type EngineConfig struct {
	StepTimeout string `yaml:"step_timeout"` // duration, default "30s"
	MaxRunning  int    `yaml:"max_running"`  // concurrent run ceiling, default 8

	stepTimeout time.Duration
}

// StepTimeoutDuration returns the parsed per-step timeout.
func (c EngineConfig) StepTimeoutDuration() time.Duration { return c.stepTimeout }

// DispatchConfig controls the inbound limiter.
type DispatchConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"` // 0 disables the limiter
	Burst         int     `yaml:"burst"`
}

// BreakerConfig controls the circuit breaker wrapped around workers.
type BreakerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MaxFailures uint32 `yaml:"max_failures"` // consecutive failures before opening
	Timeout     string `yaml:"timeout"`      // open-state duration, default "30s"
	Interval    string `yaml:"interval"`     // closed-state reset period, default "60s"

	timeout  time.Duration
	interval time.Duration
}

// TimeoutDuration returns the parsed open-state duration.
func (c BreakerConfig) TimeoutDuration() time.Duration { return c.timeout }

// IntervalDuration returns the parsed closed-state reset period.
func (c BreakerConfig) IntervalDuration() time.Duration { return c.interval }

// SchedulerConfig controls background maintenance.
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ReapSchedule string `yaml:"reap_schedule"` // cron expression or duration, default "10m"
}

// Config is the top-level application configuration.
type Config struct {
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Conversation ConversationConfig `yaml:"conversation"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Engine       EngineConfig       `yaml:"engine"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Workflows    []WorkflowSpec     `yaml:"workflows,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	// Defaults are always valid.
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: default config invalid: %v", err))
	}
	return cfg
}

// Load reads the YAML file at path, expands ${ENV} references, applies
// defaults, and validates. A missing file yields the default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}
	if c.Tracer.Exporter == "" {
		c.Tracer.Exporter = "noop"
	}
	if c.Conversation.StickyWindow == "" {
		c.Conversation.StickyWindow = "5m"
	}
	if c.Conversation.IdleTTL == "" {
		c.Conversation.IdleTTL = "24h"
	}
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = "file"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "data/metrics.json"
	}
	if c.Metrics.WindowSize == 0 {
		c.Metrics.WindowSize = 1000
	}
	if c.Metrics.ErrorCap == 0 {
		c.Metrics.ErrorCap = 100
	}
	if c.Engine.StepTimeout == "" {
		c.Engine.StepTimeout = "30s"
	}
	if c.Engine.MaxRunning == 0 {
		c.Engine.MaxRunning = 8
	}
	if c.Dispatch.Burst == 0 {
		c.Dispatch.Burst = 5
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.Timeout == "" {
		c.Breaker.Timeout = "30s"
	}
	if c.Breaker.Interval == "" {
		c.Breaker.Interval = "60s"
	}
	if c.Scheduler.ReapSchedule == "" {
		c.Scheduler.ReapSchedule = "10m"
	}
}

// Validate checks field values and parses duration strings.
func (c *Config) Validate() error {
	var err error
	if c.Conversation.stickyWindow, err = parseDuration("conversation.sticky_window", c.Conversation.StickyWindow); err != nil {
		return err
	}
	if c.Conversation.idleTTL, err = parseDuration("conversation.idle_ttl", c.Conversation.IdleTTL); err != nil {
		return err
	}
	if c.Engine.stepTimeout, err = parseDuration("engine.step_timeout", c.Engine.StepTimeout); err != nil {
		return err
	}
	if c.Breaker.timeout, err = parseDuration("breaker.timeout", c.Breaker.Timeout); err != nil {
		return err
	}
	if c.Breaker.interval, err = parseDuration("breaker.interval", c.Breaker.Interval); err != nil {
		return err
	}

	switch c.Metrics.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("config: metrics.backend must be \"file\" or \"sqlite\", got %q", c.Metrics.Backend)
	}

	if c.Dispatch.RatePerSecond < 0 {
		return fmt.Errorf("config: dispatch.rate_per_second must be >= 0")
	}

	seen := make(map[string]bool, len(c.Workflows))
	for _, wf := range c.Workflows {
		if wf.Name == "" {
			return fmt.Errorf("config: workflow with empty name")
		}
		if seen[wf.Name] {
			return fmt.Errorf("config: duplicate workflow %q", wf.Name)
		}
		seen[wf.Name] = true
		if len(wf.Steps) == 0 {
			return fmt.Errorf("config: workflow %q has no steps", wf.Name)
		}
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid duration %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s: duration must be positive", field)
	}
	return d, nil
}
