// Package gateway exposes conversation sessions over HTTP and websockets.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/extract"
	"github.com/itesm-showroom/showroom/internal/metrics"
	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/security"
	"github.com/itesm-showroom/showroom/internal/session"
)

// HealthReporter reports the state of the text-generation backends.
type HealthReporter interface {
	HealthReport() []provider.Status
}

// Deps are the collaborators of a Gateway. Engine and Store are required.
type Deps struct {
	Engine    *conversation.Engine
	Store     session.Store
	Health    HealthReporter
	Metrics   *metrics.Metrics
	Extractor extract.Extractor
	Logger    *slog.Logger
}

// Gateway is the HTTP front end of the conversation engine.
type Gateway struct {
	config    Config
	engine    *conversation.Engine
	store     session.Store
	health    HealthReporter
	metrics   *metrics.Metrics
	limiter   *security.RateLimiter
	extractor extract.Extractor
	logger    *slog.Logger
	handler   http.Handler

	mu        sync.Mutex
	server    *http.Server
	addr      net.Addr
	startedAt time.Time

	now   func() time.Time
	newID func() string
}

// New validates cfg and returns a Gateway ready to Start.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if deps.Engine == nil || deps.Store == nil {
		return nil, errors.New("gateway: engine and store are required")
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	extractor := deps.Extractor
	if extractor.MaxBytes <= 0 {
		extractor.MaxBytes = cfg.MaxUploadBytes
	}

	g := &Gateway{
		config:    cfg,
		engine:    deps.Engine,
		store:     deps.Store,
		health:    deps.Health,
		metrics:   deps.Metrics,
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		extractor: extractor,
		logger:    logger.With("component", "gateway"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	g.startedAt = g.now()
	g.handler = g.buildRouter()
	return g, nil
}

// Handler returns the routed HTTP handler.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Limiter returns the per-session rate limiter so idle windows can be swept.
func (g *Gateway) Limiter() *security.RateLimiter { return g.limiter }

// Addr returns the listening address once started.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Start binds the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server != nil {
		return errors.New("gateway: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	g.server = &http.Server{
		Handler:           g.handler,
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(g.logger.Handler(), slog.LevelWarn),
	}
	g.addr = ln.Addr()
	g.startedAt = g.now()

	srv := g.server
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv := g.server
	g.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return srv.Shutdown(shutdownCtx)
}

// sessionCount prefers a cheap counter when the store has one.
func (g *Gateway) sessionCount() int {
	if c, ok := g.store.(interface{ Len() int }); ok {
		return c.Len()
	}
	list, err := g.store.List()
	if err != nil {
		g.logger.Warn("listing sessions failed", "error", err)
		return 0
	}
	return len(list)
}
