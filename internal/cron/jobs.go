package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/session"
)

// Pruner removes sessions idle longer than maxIdle.
type Pruner interface {
	Prune(maxIdle time.Duration) (int, error)
}

// Sweeper drops idle per-key state, such as rate limiter windows.
type Sweeper interface {
	Sweep() int
}

// SessionCleanupJob ends sessions idle longer than MaxIdle.
type SessionCleanupJob struct {
	Store   Pruner
	MaxIdle time.Duration

	// Limiter, if set, is swept after pruning.
	Limiter Sweeper

	Logger       *slog.Logger
	ScheduleExpr string // default "*/5 * * * *"
}

var _ Job = (*SessionCleanupJob)(nil)

func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

func (j *SessionCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes idle sessions.
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pruned, err := j.Store.Prune(j.MaxIdle)
	if err != nil {
		return err
	}
	swept := 0
	if j.Limiter != nil {
		swept = j.Limiter.Sweep()
	}
	if pruned > 0 || swept > 0 {
		logger(j.Logger).Info("pruned idle sessions", "sessions", pruned, "limiter_keys", swept, "max_idle", j.MaxIdle)
	}
	return nil
}

// UsageReportJob logs the token usage summary.
type UsageReportJob struct {
	Store        session.Store
	Logger       *slog.Logger
	ScheduleExpr string // default "0 * * * *"
}

var _ Job = (*UsageReportJob)(nil)

func (j *UsageReportJob) Name() string { return "usage_report" }

func (j *UsageReportJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run summarizes usage across sessions.
func (j *UsageReportJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := session.Summarize(j.Store)
	if err != nil {
		return err
	}
	logger(j.Logger).Info("usage report", "sessions", len(u.Sessions), "total_tokens", u.TotalTokens)
	return nil
}

// HealthReporter reports provider availability.
type HealthReporter interface {
	HealthReport() []provider.Status
}

// ProviderHealthJob publishes provider health to Sink.
type ProviderHealthJob struct {
	Chain        HealthReporter
	Sink         func([]provider.Status)
	Logger       *slog.Logger
	ScheduleExpr string // default "@every 30s"
}

var _ Job = (*ProviderHealthJob)(nil)

func (j *ProviderHealthJob) Name() string { return "provider_health" }

func (j *ProviderHealthJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 30s"
}

// Run publishes one report and warns about unavailable providers.
func (j *ProviderHealthJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	report := j.Chain.HealthReport()
	if j.Sink != nil {
		j.Sink(report)
	}
	for _, s := range report {
		if !s.Available {
			logger(j.Logger).Warn("provider unavailable", "provider", s.Name, "state", s.State, "failures", s.Failures)
		}
	}
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
