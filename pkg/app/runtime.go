// Package app wires configuration into a running showroom process. It is
// shared by every showroom subcommand.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/itesm-showroom/showroom/internal/config"
	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/metrics"
	"github.com/itesm-showroom/showroom/internal/prompt"
	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/security"
	"github.com/itesm-showroom/showroom/internal/session"
	"github.com/itesm-showroom/showroom/internal/telemetry"
	"github.com/itesm-showroom/showroom/internal/tokenizer"
	"github.com/itesm-showroom/showroom/modules/provider/openai"
	"github.com/itesm-showroom/showroom/modules/session/sqlite"
)

// Runtime holds the components built from one configuration.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Redactor  *security.Redactor
	Chain     *provider.Chain
	Store     session.Store
	Engine    *conversation.Engine
	Metrics   *metrics.Metrics
	Telemetry *telemetry.Provider

	version string
	closers []func(context.Context) error
}

// Options tune Build.
type Options struct {
	Version string

	// LogOutput receives log records. Defaults to stderr.
	LogOutput io.Writer

	// DataDir holds the sqlite database when its path is relative.
	// Defaults to DefaultDataDir.
	DataDir string

	// ProviderOverride replaces the configured chain. Tests use it.
	ProviderOverride provider.Provider
}

// Build validates cfg and constructs every component except the network
// listeners. Close releases what Build opened.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := security.NewRedactor(cfg.Secrets()...)
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := NewLogger(cfg.Log, out, redactor)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Redactor: redactor,
		Metrics:  metrics.New(),
		version:  opts.Version,
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, opts.Version, logger)
	if err != nil {
		return nil, err
	}
	rt.Telemetry = tp
	rt.closers = append(rt.closers, tp.Shutdown)

	var llm provider.Provider = opts.ProviderOverride
	if llm == nil {
		chain, err := buildChain(cfg.Providers, logger)
		if err != nil {
			return nil, rt.abort(ctx, err)
		}
		rt.Chain = chain
		llm = chain
	}

	store, err := openStore(cfg.Session, opts.DataDir, logger)
	if err != nil {
		return nil, rt.abort(ctx, err)
	}
	rt.Store = store
	if c, ok := store.(io.Closer); ok {
		rt.closers = append(rt.closers, func(context.Context) error { return c.Close() })
	}
	rt.Metrics.WatchSessions(func() int { return SessionCount(store, logger) })

	var counter tokenizer.Counter = tokenizer.CharCounter{}
	if cfg.Prompt.Estimator == config.EstimatorTiktoken {
		counter = tokenizer.NewTiktoken(logger)
	}
	templates, err := prompt.NewRegistry(cfg.Assistants)
	if err != nil {
		return nil, rt.abort(ctx, err)
	}

	engine, err := conversation.New(conversation.Deps{
		Provider:  llm,
		Store:     store,
		Templates: templates,
		Assembler: prompt.NewAssembler(counter, cfg.Prompt.Window),
		Counter:   counter,
		Logger:    logger.With("component", "conversation"),
		Tracer:    tp.Tracer("showroom/conversation"),
		Observer:  rt.Metrics,
		Redact:    redactor.Redact,
	}, cfg.Conversation)
	if err != nil {
		return nil, rt.abort(ctx, err)
	}
	rt.Engine = engine

	logger.Debug("runtime built",
		"providers", len(cfg.Providers),
		"store", cfg.Session.Driver,
		"estimator", cfg.Prompt.Estimator,
		"assistants", len(templates.Names()),
	)
	return rt, nil
}

// Close releases the store and flushes traces, in reverse build order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// abort closes what was opened so far and returns err.
func (rt *Runtime) abort(ctx context.Context, err error) error {
	if cerr := rt.Close(ctx); cerr != nil {
		rt.Logger.Warn("cleanup after failed build", "error", cerr)
	}
	return err
}

// HealthReport reports the provider chain, or nothing when the provider was
// overridden.
func (rt *Runtime) HealthReport() []provider.Status {
	if rt.Chain == nil {
		return nil
	}
	return rt.Chain.HealthReport()
}

func buildChain(configs []config.ProviderConfig, logger *slog.Logger) (*provider.Chain, error) {
	entries := make([]provider.ChainEntry, 0, len(configs))
	for _, pc := range configs {
		switch pc.Type {
		case config.ProviderOpenAI:
			p, err := openai.New(pc.OpenAI, logger.With("provider", pc.Name))
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
			}
			entries = append(entries, provider.ChainEntry{Name: pc.Name, Provider: p, Health: pc.Health})
		default:
			return nil, fmt.Errorf("provider %q: unsupported type %q", pc.Name, pc.Type)
		}
	}
	return provider.NewChain(entries, provider.WithLogger(logger.With("component", "provider_chain")))
}

func openStore(cfg config.SessionConfig, dataDir string, logger *slog.Logger) (session.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		sc := cfg.SQLite
		if sc.Path == "" || !filepath.IsAbs(sc.Path) {
			if dataDir == "" {
				dataDir = DefaultDataDir()
			}
			name := sc.Path
			if name == "" {
				name = "sessions.db"
			}
			sc.Path = filepath.Join(dataDir, name)
		}
		return sqlite.Open(sc, logger.With("component", "session_store"))
	default:
		return session.NewMemoryStore(), nil
	}
}

// SessionCount returns the number of live sessions in st.
func SessionCount(st session.Store, logger *slog.Logger) int {
	if c, ok := st.(interface{ Len() int }); ok {
		return c.Len()
	}
	list, err := st.List()
	if err != nil {
		logger.Warn("listing sessions failed", "error", err)
		return 0
	}
	return len(list)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/showroom if set, otherwise ~/.local/share/showroom.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "showroom")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "showroom")
}
