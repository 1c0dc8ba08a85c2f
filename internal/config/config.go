// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for showroom.
package config

import (
	"os"
	"time"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/gateway"
	"github.com/itesm-showroom/showroom/internal/prompt"
	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/telemetry"
	"github.com/itesm-showroom/showroom/modules/provider/openai"
	"github.com/itesm-showroom/showroom/modules/session/sqlite"
)

// Version is the only supported config format version.
const Version = "1"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Log          LogConfig                  `yaml:"log"`
	Providers    []ProviderConfig           `yaml:"providers"`
	Conversation conversation.Config        `yaml:"conversation"`
	Prompt       PromptConfig               `yaml:"prompt"`
	Session      SessionConfig              `yaml:"session"`
	Gateway      gateway.Config             `yaml:"gateway"`
	Telemetry    telemetry.Config           `yaml:"telemetry"`
	Jobs         JobsConfig                 `yaml:"jobs"`
	Assistants   map[string]prompt.Template `yaml:"assistants"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// Redact lists extra literal secrets scrubbed from logs and errors.
	Redact []string `yaml:"redact"`
}

// ProviderConfig is one entry of the failover chain, in priority order.
type ProviderConfig struct {
	Name   string                `yaml:"name"`
	Type   string                `yaml:"type"`
	OpenAI openai.Config         `yaml:",inline"`
	Health provider.HealthConfig `yaml:"health"`
}

// PromptConfig bounds the prompt sent per turn.
type PromptConfig struct {
	prompt.Window `yaml:",inline"`

	// Estimator picks the local token estimator: tiktoken or chars.
	Estimator string `yaml:"estimator"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	// Driver is memory or sqlite.
	Driver string        `yaml:"driver"`
	SQLite sqlite.Config `yaml:"sqlite"`

	// MaxIdle discards sessions idle for longer. Zero keeps them forever.
	MaxIdle time.Duration `yaml:"max_idle"`
}

// JobsConfig holds cron schedules of the background jobs. Empty selects the
// job default; "off" disables the job.
type JobsConfig struct {
	SessionCleanup string `yaml:"session_cleanup"`
	UsageReport    string `yaml:"usage_report"`
	ProviderHealth string `yaml:"provider_health"`
}

// JobDisabled is the schedule value that turns a job off.
const JobDisabled = "off"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	ProviderOpenAI = "openai"

	EstimatorTiktoken = "tiktoken"
	EstimatorChars    = "chars"
)

// Default returns the configuration used when no file is found: one OpenAI
// provider keyed by OPENAI_API_KEY and an in-memory store.
func Default() *Config {
	cfg := &Config{
		Version: Version,
		Providers: []ProviderConfig{{
			Name:   ProviderOpenAI,
			Type:   ProviderOpenAI,
			OpenAI: openai.Config{APIKey: os.Getenv("OPENAI_API_KEY")},
		}},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values that other packages do not default
// themselves.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Prompt.Estimator == "" {
		c.Prompt.Estimator = EstimatorTiktoken
	}
	if c.Session.Driver == "" {
		c.Session.Driver = DriverMemory
	}
	if c.Session.MaxIdle == 0 {
		c.Session.MaxIdle = 24 * time.Hour
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Type == "" {
			p.Type = ProviderOpenAI
		}
		if p.Name == "" {
			p.Name = p.Type
		}
	}
}
