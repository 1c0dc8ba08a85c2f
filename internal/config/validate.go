package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/itesm-showroom/showroom/internal/cron"
	"github.com/itesm-showroom/showroom/internal/prompt"
)

// Validate checks the structural validity of a Config and reports every
// problem at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != Version {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: %q)", cfg.Version, Version))
	}

	errs = append(errs, validateLog(cfg.Log)...)
	errs = append(errs, validateProviders(cfg.Providers)...)

	if err := cfg.Conversation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Prompt.MaxHistoryMessages < 0 || cfg.Prompt.MaxPromptTokens < 0 {
		errs = append(errs, errors.New("config: prompt limits must not be negative"))
	}
	switch cfg.Prompt.Estimator {
	case EstimatorTiktoken, EstimatorChars:
	default:
		errs = append(errs, fmt.Errorf("config: prompt.estimator must be %q or %q, got %q", EstimatorTiktoken, EstimatorChars, cfg.Prompt.Estimator))
	}

	switch cfg.Session.Driver {
	case DriverMemory, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("config: session.driver must be %q or %q, got %q", DriverMemory, DriverSQLite, cfg.Session.Driver))
	}
	if cfg.Session.MaxIdle < 0 {
		errs = append(errs, errors.New("config: session.max_idle must not be negative"))
	}

	if err := cfg.Gateway.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateJobs(cfg.Jobs)...)

	if _, err := prompt.NewRegistry(cfg.Assistants); err != nil {
		errs = append(errs, fmt.Errorf("config: assistants: %w", err))
	}

	return errors.Join(errs...)
}

func validateLog(l LogConfig) []error {
	var errs []error
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}
	if l.Format != "text" && l.Format != "json" {
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", l.Format))
	}
	return errs
}

func validateProviders(providers []ProviderConfig) []error {
	if len(providers) == 0 {
		return []error{errors.New("config: at least one provider must be configured")}
	}

	var errs []error
	seen := make(map[string]bool, len(providers))
	for i, p := range providers {
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("config: providers[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true

		if p.Type != ProviderOpenAI {
			errs = append(errs, fmt.Errorf("config: providers[%d]: unknown type %q", i, p.Type))
		}
		if strings.TrimSpace(p.OpenAI.APIKey) == "" {
			errs = append(errs, fmt.Errorf("config: providers[%d] (%s): api_key is required", i, p.Name))
		}
	}
	return errs
}

func validateJobs(j JobsConfig) []error {
	var errs []error
	for name, expr := range map[string]string{
		"session_cleanup": j.SessionCleanup,
		"usage_report":    j.UsageReport,
		"provider_health": j.ProviderHealth,
	} {
		if expr == "" || expr == JobDisabled {
			continue
		}
		if err := cron.ValidateSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: jobs.%s: %w", name, err))
		}
	}
	return errs
}
