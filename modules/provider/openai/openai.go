// Package openai implements provider.Provider against the OpenAI Chat
// Completions API, with SSE streaming and usage reporting.
package openai

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/itesm-showroom/showroom/internal/provider"
)

var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)

// Provider talks to an OpenAI-compatible chat completions endpoint.
type Provider struct {
	config        Config
	logger        *slog.Logger
	client        *http.Client
	streamClient  *http.Client
	contextWindow int
}

// New validates cfg and returns a ready provider. A nil logger discards
// output.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Provider{
		config: cfg,
		logger: logger.With("provider", "openai", "model", cfg.Model),
		// http.Client.Timeout bounds the whole body read, which would cut
		// long SSE streams. Streams rely on context cancellation instead.
		client:       &http.Client{Timeout: cfg.parsedTimeout()},
		streamClient: &http.Client{},
	}

	switch {
	case cfg.ContextWindow > 0:
		p.contextWindow = cfg.ContextWindow
	default:
		size, ok := knownContextWindows[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("openai: context_window must be set for unknown model %q", cfg.Model)
		}
		p.contextWindow = size
	}

	return p, nil
}
