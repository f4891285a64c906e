// Package config loads and validates the loom configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/loom/internal/integrations/confluence"
	"github.com/haasonsaas/loom/internal/integrations/jira"
)

// Config is the main configuration structure for loom.
type Config struct {
	Slack      SlackConfig       `yaml:"slack"`
	OpenAI     OpenAIConfig      `yaml:"openai"`
	Storage    StorageConfig     `yaml:"storage"`
	Prompts    PromptsConfig     `yaml:"prompts"`
	Runner     RunnerConfig      `yaml:"runner"`
	Jira       jira.Config       `yaml:"jira"`
	Confluence confluence.Config `yaml:"confluence"`
	Logging    LoggingConfig     `yaml:"logging"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

// StorageConfig selects where conversation records and global state
// live: per-thread JSON files under Dir, or a single SQLite database.
type StorageConfig struct {
	Type string `yaml:"type"` // "file" or "sqlite"
	Dir  string `yaml:"dir"`
	Path string `yaml:"path"` // sqlite database file

	// FlushSchedule is the cron expression for periodic global-state flushes.
	FlushSchedule string `yaml:"flush_schedule"`
}

type PromptsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type RunnerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses the configuration file. Environment variables
// in the file are expanded, so tokens can be referenced as
// ${SLACK_BOT_TOKEN} instead of being committed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/loom.db"
	}
	if cfg.Storage.FlushSchedule == "" {
		cfg.Storage.FlushSchedule = "@every 1m"
	}
	if cfg.Prompts.Path == "" {
		cfg.Prompts.Path = "prompts.json"
	}
	if cfg.Runner.PollInterval == 0 {
		cfg.Runner.PollInterval = time.Second
	}
	if cfg.Runner.MaxAttempts == 0 {
		cfg.Runner.MaxAttempts = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// Validate checks the parts of the configuration that cannot work at
// all when wrong. Integration sections validate themselves.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack.bot_token is required")
	}
	if c.Slack.AppToken == "" {
		return fmt.Errorf("slack.app_token is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	switch c.Storage.Type {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.type must be \"file\" or \"sqlite\", got %q", c.Storage.Type)
	}
	if c.Runner.PollInterval < 0 {
		return fmt.Errorf("runner.poll_interval must not be negative")
	}
	if c.Runner.MaxAttempts < 0 {
		return fmt.Errorf("runner.max_attempts must not be negative")
	}
	if err := c.Jira.Validate(); err != nil {
		return err
	}
	if err := c.Confluence.Validate(); err != nil {
		return err
	}
	return nil
}
