// Package provider defines the Provider interface for the text-generation
// service, health tracking with exponential backoff, and a failover chain
// that itself satisfies Provider.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool {
	return false
}

func (nopHandler) Handle(context.Context, slog.Record) error {
	return nil
}

func (nopHandler) WithAttrs([]slog.Attr) slog.Handler {
	return nopHandler{}
}

func (nopHandler) WithGroup(string) slog.Handler {
	return nopHandler{}
}

// ChainEntry configures a single provider in the chain.
type ChainEntry struct {
	Name     string
	Provider Provider
	Health   HealthConfig
}

// chainEntry is the internal representation with health tracking.
type chainEntry struct {
	ChainEntry
	health *healthTracker
}

// Status is a point-in-time health view of one chain entry.
type Status struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	State     string `json:"state"`
	Available bool   `json:"available"`
	Failures  int    `json:"failures"`
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger into the Chain.
// When nil or omitted, all log output is silently discarded.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// Chain orchestrates failover across an ordered list of providers. The
// first healthy entry serves each request; retryable failures (rate
// limit, network) move on to the next entry.
type Chain struct {
	entries []chainEntry
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Compile-time interface guard.
var _ Provider = (*Chain)(nil)

// NewChain creates a chain from the given entries, in priority order.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}

	internal := make([]chainEntry, len(entries))
	for i, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		internal[i] = chainEntry{
			ChainEntry: e,
			health:     newHealthTracker(e.Health),
		}
	}

	c := &Chain{entries: internal}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(nopHandler{})
	}

	for i := range c.entries {
		e := &c.entries[i]
		name := e.Name
		logger := c.logger
		e.health.onStateChange = func(from, to healthState) {
			switch to {
			case stateCooldown:
				logger.Warn("provider entered cooldown",
					"provider", name,
					"backoff", e.health.CurrentBackoff(),
					"failures", e.health.Failures(),
				)
			case stateDead:
				logger.Error("provider marked dead",
					"provider", name,
					"total_failures", e.health.Failures(),
				)
			case stateHealthy:
				logger.Info("provider revived",
					"provider", name,
					"previous_state", from.String(),
				)
			}
		}
	}

	return c, nil
}

// Start launches the background health probe goroutine.
func (pc *Chain) Start(ctx context.Context) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.cancel != nil {
		return
	}

	ctx, pc.cancel = context.WithCancel(ctx)
	go runHealthChecks(ctx, minHealthCheckInterval(pc.entries), pc.entries)
}

// Stop cancels background health checks.
func (pc *Chain) Stop() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.cancel != nil {
		pc.cancel()
		pc.cancel = nil
	}
}

// Complete sends the request to the first available provider, failing
// over on retryable errors.
func (pc *Chain) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var lastErr error
	for i := range pc.entries {
		e := &pc.entries[i]
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		if !e.health.IsAvailable() {
			continue
		}

		resp, err := e.Provider.Complete(ctx, req)
		if err == nil {
			e.health.RecordSuccess()
			return resp, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return CompletionResponse{}, err
		}

		e.health.RecordError(err)
		pc.logger.Warn("provider failed, failing over",
			"provider", e.Name,
			"error", err,
		)
	}

	return CompletionResponse{}, pc.exhausted(lastErr)
}

// Stream opens a stream on the first available provider, failing over
// on retryable connection errors. Once a stream is open, mid-stream
// errors are delivered to the caller and are not retried.
func (pc *Chain) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error
	for i := range pc.entries {
		e := &pc.entries[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.health.IsAvailable() {
			continue
		}

		ch, err := e.Provider.Stream(ctx, req)
		if err == nil {
			return pc.wrapStream(ch, e), nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}

		e.health.RecordError(err)
		pc.logger.Warn("provider failed, failing over",
			"provider", e.Name,
			"error", err,
		)
	}

	return nil, pc.exhausted(lastErr)
}

func (pc *Chain) exhausted(lastErr error) error {
	if lastErr != nil {
		pc.logger.Error("all providers exhausted", "last_error", lastErr)
		return fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	// Every entry was skipped; surface why the first of them is cooling down.
	for i := range pc.entries {
		if cause := pc.entries[i].health.LastError(); cause != nil {
			pc.logger.Error("all providers unavailable", "last_error", cause)
			return fmt.Errorf("%w: all candidates unavailable: %w", ErrAllProviders, cause)
		}
	}
	pc.logger.Error("all providers exhausted")
	return fmt.Errorf("%w: all candidates unavailable", ErrAllProviders)
}

// wrapStream defers the health verdict until the stream finishes.
// RecordSuccess is only called if the stream completes without retryable errors.
func (pc *Chain) wrapStream(src <-chan StreamChunk, e *chainEntry) <-chan StreamChunk {
	out := make(chan StreamChunk, cap(src))
	go func() {
		defer close(out)
		var sawError bool
		for chunk := range src {
			if chunk.Err != nil && IsRetryable(chunk.Err) {
				sawError = true
				e.health.RecordError(chunk.Err)
				pc.logger.Warn("mid-stream error degraded provider health",
					"provider", e.Name,
					"error", chunk.Err,
				)
			}
			out <- chunk
		}
		if !sawError {
			e.health.RecordSuccess()
		}
	}()
	return out
}

// ContextWindowSize returns the context window of the primary entry.
func (pc *Chain) ContextWindowSize() int {
	return pc.entries[0].Provider.ContextWindowSize()
}

// ModelName returns the model of the primary entry.
func (pc *Chain) ModelName() string {
	return pc.entries[0].Provider.ModelName()
}

// HealthReport returns the current status of every entry, in chain order.
func (pc *Chain) HealthReport() []Status {
	out := make([]Status, len(pc.entries))
	for i := range pc.entries {
		e := &pc.entries[i]
		out[i] = Status{
			Name:      e.Name,
			Model:     e.Provider.ModelName(),
			State:     e.health.State().String(),
			Available: e.health.IsAvailable(),
			Failures:  e.health.Failures(),
		}
	}
	return out
}

// minHealthCheckInterval returns the shortest configured check interval
// across all chain entries.
func minHealthCheckInterval(entries []chainEntry) time.Duration {
	if len(entries) == 0 {
		return defaultCheckInterval
	}

	interval := entries[0].Health.checkIntervalOrDefault()
	for i := 1; i < len(entries); i++ {
		if d := entries[i].Health.checkIntervalOrDefault(); d < interval {
			interval = d
		}
	}
	return interval
}

// runHealthChecks runs periodic health probes for all entries.
// It blocks until the context is cancelled.
func runHealthChecks(ctx context.Context, interval time.Duration, entries []chainEntry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range entries {
				e := &entries[i]
				if !e.health.ShouldHealthCheck() {
					continue
				}

				checker, ok := e.Provider.(HealthChecker)
				if !ok {
					continue
				}

				if err := checker.HealthCheck(ctx); err == nil {
					e.health.RecordSuccess()
				}
			}
		}
	}
}
