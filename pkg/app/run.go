package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itesm-showroom/showroom/internal/config"
	"github.com/itesm-showroom/showroom/internal/cron"
	"github.com/itesm-showroom/showroom/internal/gateway"
	"github.com/itesm-showroom/showroom/internal/security"
)

// stopTimeout bounds the shutdown of each component.
const stopTimeout = 10 * time.Second

// RunParams configures the serve loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.Find is used and defaults apply when nothing is found.
	ConfigPath string

	// Version is injected at build time via ldflags.
	Version string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// Ready, if set, receives the started gateway.
	Ready func(*gateway.Gateway)
}

// Run loads configuration, starts the gateway and the scheduler, and blocks
// until ctx is done or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, params RunParams) error {
	cfg, path, err := config.LoadOrDefault(params.ConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := Build(ctx, cfg, Options{Version: params.Version, DataDir: params.DataDir})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			rt.Logger.Warn("runtime close failed", "error", err)
		}
	}()

	if path != "" {
		rt.Logger.Info("configuration loaded", "path", path)
	} else {
		rt.Logger.Info("no configuration file found, using defaults")
	}
	return rt.Serve(ctx, params.Ready)
}

// Serve runs the gateway, the scheduler and the provider health probes
// until ctx is done, then stops them all.
func (rt *Runtime) Serve(ctx context.Context, ready func(*gateway.Gateway)) error {
	gw, err := gateway.New(rt.Config.Gateway, gateway.Deps{
		Engine:  rt.Engine,
		Store:   rt.Store,
		Health:  rt,
		Metrics: rt.Metrics,
		Logger:  rt.Logger.With("component", "gateway"),
	})
	if err != nil {
		return err
	}
	sched, err := rt.Scheduler(gw.Limiter())
	if err != nil {
		return err
	}

	if rt.Chain != nil {
		rt.Chain.Start(ctx)
		defer rt.Chain.Stop()
	}

	if err := gw.Start(ctx); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return errors.Join(err, stopWithin(gw.Stop))
	}
	if ready != nil {
		ready(gw)
	}
	rt.Logger.Info("showroom started", "version", rt.version, "addr", gw.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return stopWithin(gw.Stop)
	})
	g.Go(func() error {
		<-gctx.Done()
		return stopWithin(sched.Stop)
	})
	err = g.Wait()
	rt.Logger.Info("shutdown complete")
	return err
}

// Scheduler registers the background jobs enabled in the configuration.
// limiter, if non-nil, is swept by the session cleanup job.
func (rt *Runtime) Scheduler(limiter *security.RateLimiter) (*cron.Scheduler, error) {
	jobs := rt.Config.Jobs
	logger := rt.Logger.With("component", "cron")
	sched := cron.NewScheduler(logger)

	var list []cron.Job
	if jobs.SessionCleanup != config.JobDisabled && rt.Config.Session.MaxIdle > 0 {
		job := &cron.SessionCleanupJob{
			Store:        rt.Store,
			MaxIdle:      rt.Config.Session.MaxIdle,
			Logger:       logger,
			ScheduleExpr: jobs.SessionCleanup,
		}
		if limiter != nil {
			job.Limiter = limiter
		}
		list = append(list, job)
	}
	if jobs.UsageReport != config.JobDisabled {
		list = append(list, &cron.UsageReportJob{Store: rt.Store, Logger: logger, ScheduleExpr: jobs.UsageReport})
	}
	if jobs.ProviderHealth != config.JobDisabled && rt.Chain != nil {
		list = append(list, &cron.ProviderHealthJob{
			Chain:        rt.Chain,
			Sink:         rt.Metrics.SetProviders,
			Logger:       logger,
			ScheduleExpr: jobs.ProviderHealth,
		})
	}

	for _, j := range list {
		if err := sched.Register(j); err != nil {
			return nil, fmt.Errorf("register job %s: %w", j.Name(), err)
		}
	}
	return sched, nil
}

func stopWithin(stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return stop(ctx)
}
