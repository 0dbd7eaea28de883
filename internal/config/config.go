// ABOUTME: Configuration loading and parsing for the mailbox agent service
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mailbox-agent configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Agent    AgentConfig    `yaml:"agent"`
	Tools    ToolsConfig    `yaml:"tools"`
	Chart    ChartConfig    `yaml:"chart"`
	Sessions SessionsConfig `yaml:"sessions"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// CookieSecret signs the session cookie. Expanded from the environment
	// in most deployments.
	CookieSecret string `yaml:"cookie_secret"`
}

// AgentConfig holds the conversation service and agent definition
type AgentConfig struct {
	// Endpoint is the base URL of the conversation service project.
	Endpoint string `yaml:"endpoint"`
	// APIKey authenticates requests to the conversation service.
	APIKey string `yaml:"api_key"`
	// Model is the model deployment name the agent runs on.
	Model string `yaml:"model"`
	// Name is the agent's display name registered with the service.
	Name string `yaml:"name"`
	// Instructions is the agent's system prompt.
	Instructions string `yaml:"instructions"`
	// DeleteOnShutdown removes the agent from the service at shutdown.
	DeleteOnShutdown bool `yaml:"delete_on_shutdown"`

	PollInterval time.Duration `yaml:"-"`
	RunTimeout   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval"`
	RunTimeoutRaw   string `yaml:"run_timeout"`
}

// ToolsConfig holds the data-retrieval function endpoints
type ToolsConfig struct {
	// MailboxURL is the endpoint for mailbox lookups (get_mailbox).
	MailboxURL string `yaml:"mailbox_url"`
	// MessageTraceURL is the endpoint for message-trace lookups (get_email_details).
	MessageTraceURL string `yaml:"message_trace_url"`
	// FunctionKey is the shared secret appended as the code query parameter.
	FunctionKey string `yaml:"function_key"`

	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// ChartConfig holds the rendering service configuration
type ChartConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// SessionsConfig holds session store configuration
type SessionsConfig struct {
	// Backend selects the session store: "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the SQLite database path when backend is "sqlite".
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default timing values applied when the config file omits them.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultRunTimeout   = 2 * time.Minute
	DefaultToolTimeout  = 10 * time.Second
	DefaultChartTimeout = 15 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Agent.Endpoint == "" {
		return fmt.Errorf("agent.endpoint is required")
	}
	if c.Agent.Model == "" {
		return fmt.Errorf("agent.model is required")
	}

	if c.Tools.MailboxURL == "" {
		return fmt.Errorf("tools.mailbox_url is required")
	}
	if c.Tools.MessageTraceURL == "" {
		return fmt.Errorf("tools.message_trace_url is required")
	}

	if c.Chart.Enabled && c.Chart.URL == "" {
		return fmt.Errorf("chart.url is required when chart is enabled")
	}

	switch c.Sessions.Backend {
	case "", "memory":
		// In-process store needs no further configuration
	case "sqlite":
		if c.Sessions.Path == "" {
			return fmt.Errorf("sessions.path is required when backend is sqlite")
		}
	default:
		return fmt.Errorf("sessions.backend must be memory or sqlite, got %q", c.Sessions.Backend)
	}

	return nil
}

// applyDefaults fills in the timing values the config file did not set
func applyDefaults(cfg *Config) {
	if cfg.Agent.PollInterval == 0 {
		cfg.Agent.PollInterval = DefaultPollInterval
	}
	if cfg.Agent.RunTimeout == 0 {
		cfg.Agent.RunTimeout = DefaultRunTimeout
	}
	if cfg.Tools.Timeout == 0 {
		cfg.Tools.Timeout = DefaultToolTimeout
	}
	if cfg.Chart.Timeout == 0 {
		cfg.Chart.Timeout = DefaultChartTimeout
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "mailbox-agent"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.PollIntervalRaw != "" {
		cfg.Agent.PollInterval, err = time.ParseDuration(cfg.Agent.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Agent.PollIntervalRaw, err)
		}
	}

	if cfg.Agent.RunTimeoutRaw != "" {
		cfg.Agent.RunTimeout, err = time.ParseDuration(cfg.Agent.RunTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing run_timeout %q: %w", cfg.Agent.RunTimeoutRaw, err)
		}
	}

	if cfg.Tools.TimeoutRaw != "" {
		cfg.Tools.Timeout, err = time.ParseDuration(cfg.Tools.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing tools timeout %q: %w", cfg.Tools.TimeoutRaw, err)
		}
	}

	if cfg.Chart.TimeoutRaw != "" {
		cfg.Chart.Timeout, err = time.ParseDuration(cfg.Chart.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing chart timeout %q: %w", cfg.Chart.TimeoutRaw, err)
		}
	}

	return nil
}
