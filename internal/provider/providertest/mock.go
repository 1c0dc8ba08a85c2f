// Package providertest provides test doubles for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/itesm-showroom/showroom/internal/provider"
)

// MockProvider is a configurable provider.Provider. Nil funcs fall back to
// harmless defaults so tests only set what they exercise. All methods are
// safe for concurrent use.
type MockProvider struct {
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc      func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	HealthCheckFunc func(ctx context.Context) error
	Model           string
	Window          int

	mu       sync.Mutex
	requests []provider.CompletionRequest
	health   int
}

func (m *MockProvider) record(req provider.CompletionRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

// Complete records req and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.record(req)
	if m.CompleteFunc == nil {
		return provider.CompletionResponse{Content: "ok", Model: m.ModelName(), FinishReason: provider.FinishReasonStop}, nil
	}
	return m.CompleteFunc(ctx, req)
}

// Stream records req and delegates to StreamFunc. Without a StreamFunc the
// Complete result is delivered as a single chunk.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	if m.StreamFunc != nil {
		m.record(req)
		return m.StreamFunc(ctx, req)
	}
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	usage := resp.Usage
	return Chunks(
		provider.StreamChunk{Content: resp.Content},
		provider.StreamChunk{FinishReason: resp.FinishReason, Usage: &usage},
	), nil
}

// ContextWindowSize returns Window, or 4096 when unset.
func (m *MockProvider) ContextWindowSize() int {
	if m.Window == 0 {
		return 4096
	}
	return m.Window
}

// ModelName returns Model, or "mock" when unset.
func (m *MockProvider) ModelName() string {
	if m.Model == "" {
		return "mock"
	}
	return m.Model
}

// HealthCheck counts probes and delegates to HealthCheckFunc.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.health++
	m.mu.Unlock()
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Complete and Stream calls.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// HealthCalls returns the number of HealthCheck probes.
func (m *MockProvider) HealthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// Chunks returns a closed, buffered channel holding the given chunks.
func Chunks(chunks ...provider.StreamChunk) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// Reply returns a CompleteFunc that always answers content with usage.
func Reply(content string, usage provider.TokenUsage) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		return provider.CompletionResponse{
			Content:      content,
			FinishReason: provider.FinishReasonStop,
			Usage:        usage,
		}, nil
	}
}

// Fail returns a CompleteFunc that always fails with err.
func Fail(err error) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		return provider.CompletionResponse{}, err
	}
}

var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
