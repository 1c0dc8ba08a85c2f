package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/itesm-showroom/showroom/internal/provider"
)

// maxResponseSize caps buffered response bodies at 10 MB.
const maxResponseSize = 10 * 1024 * 1024

const streamChannelBuffer = 64

const completionsPath = "/chat/completions"

// buildChatRequest merges request-level overrides with config defaults.
func (p *Provider) buildChatRequest(req provider.CompletionRequest, stream bool) chatRequest {
	cr := chatRequest{
		Model:    p.config.Model,
		Messages: toMessages(req.Messages),
		Stream:   stream,
		Stop:     req.Stop,
	}
	if req.Model != "" {
		cr.Model = req.Model
	}

	cr.MaxTokens = p.config.MaxTokens
	if req.MaxTokens > 0 {
		cr.MaxTokens = req.MaxTokens
	}
	cr.Temperature = p.config.Temperature
	if req.Temperature != nil {
		cr.Temperature = req.Temperature
	}
	cr.TopP = p.config.TopP
	if req.TopP != nil {
		cr.TopP = req.TopP
	}

	if stream {
		cr.StreamOptions = &streamOpts{IncludeUsage: true}
	}
	return cr
}

func (p *Provider) newHTTPRequest(ctx context.Context, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	return httpReq, nil
}

// Complete sends a non-streaming completion request.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	cr := p.buildChatRequest(req, false)
	httpReq, err := p.newHTTPRequest(ctx, cr)
	if err != nil {
		return provider.CompletionResponse{}, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return provider.CompletionResponse{}, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return provider.CompletionResponse{}, mapConnectionError(err)
	}
	if err := mapHTTPError(resp.StatusCode, body); err != nil {
		p.logger.Debug("completion rejected", "status", resp.StatusCode, "error", err)
		return provider.CompletionResponse{}, err
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return provider.CompletionResponse{}, malformed("decode response", err)
	}
	if len(out.Choices) == 0 {
		return provider.CompletionResponse{}, malformed("decode response", errNoChoices)
	}

	result := fromResponse(&out)
	if result.Model == "" {
		result.Model = cr.Model
	}
	return result, nil
}

// Stream opens an SSE completion stream. HTTP and connection errors are
// returned directly; later failures arrive as StreamChunk.Err.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	httpReq, err := p.newHTTPRequest(ctx, p.buildChatRequest(req, true))
	if err != nil {
		return nil, err
	}

	resp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, mapConnectionError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return nil, mapHTTPError(resp.StatusCode, body)
	}

	ch := make(chan provider.StreamChunk, streamChannelBuffer)
	go readStream(ctx, resp.Body, ch)
	return ch, nil
}

// HealthCheck sends a one-token completion, exercising authentication,
// model access and quota.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.Complete(ctx, provider.CompletionRequest{
		Messages:  []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hi"}},
		MaxTokens: 1,
	})
	return err
}

// ContextWindowSize returns the context window of the configured model.
func (p *Provider) ContextWindowSize() int {
	return p.contextWindow
}

// ModelName returns the configured default model.
func (p *Provider) ModelName() string {
	return p.config.Model
}
