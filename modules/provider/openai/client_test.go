package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/itesm-showroom/showroom/internal/provider"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{APIKey: "sk-test", Model: "gpt-3.5-turbo", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.client = srv.Client()
	p.streamClient = srv.Client()
	return p
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func readRequestBody(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	body, _ := io.ReadAll(r.Body)
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Errorf("invalid request body: %v", err)
	}
	return req
}

func writeSSE(t *testing.T, w http.ResponseWriter, lines []string) {
	t.Helper()
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n\n"); err != nil {
			t.Errorf("write SSE: %v", err)
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func strPtr(s string) *string { return &s }

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing key", Config{}, "api_key is required"},
		{"bad timeout", Config{APIKey: "k", Timeout: "soon"}, "invalid timeout"},
		{"unknown model", Config{APIKey: "k", Model: "custom-llm"}, "context_window must be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	p, err := New(Config{APIKey: "k", Model: "custom-llm", ContextWindow: 2048}, nil)
	if err != nil {
		t.Fatalf("explicit window: %v", err)
	}
	if p.ContextWindowSize() != 2048 || p.ModelName() != "custom-llm" {
		t.Errorf("identity = %s/%d", p.ModelName(), p.ContextWindowSize())
	}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		req := readRequestBody(t, r)
		if req.Model != "gpt-3.5-turbo" || req.Stream {
			t.Errorf("model=%q stream=%v", req.Model, req.Stream)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		writeJSON(t, w, chatResponse{
			Model:   "gpt-3.5-turbo-0125",
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "Check the pulsecoder cable."}, FinishReason: strPtr("stop")}},
			Usage:   chatUsage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52},
		})
	}))

	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: "You are a FANUC expert."},
			{Role: provider.MessageRoleUser, Content: "How do I reset alarm SRVO-023?"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Check the pulsecoder cable." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.Total() != 52 {
		t.Errorf("usage = %d, want 52", resp.Usage.Total())
	}
	if resp.FinishReason != provider.FinishReasonStop || resp.Model != "gpt-3.5-turbo-0125" {
		t.Errorf("finish=%q model=%q", resp.FinishReason, resp.Model)
	}
}

func TestComplete_RequestOverrides(t *testing.T) {
	t.Parallel()

	temp := 0.2
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := readRequestBody(t, r)
		if req.Model != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", req.Model)
		}
		if req.MaxTokens != 1000 {
			t.Errorf("max_tokens = %d, want 1000", req.MaxTokens)
		}
		if req.Temperature == nil || *req.Temperature != 0.2 {
			t.Errorf("temperature = %v, want 0.2", req.Temperature)
		}
		writeJSON(t, w, chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}}})
	}))

	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Model:       "gpt-4o",
		MaxTokens:   1000,
		Temperature: &temp,
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("model falls back to request model, got %q", resp.Model)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, provider.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, provider.ErrAuth},
		{"forbidden", http.StatusForbidden, `nope`, provider.ErrAuth},
		{"context length", http.StatusBadRequest, `{"error":{"message":"context_length_exceeded"}}`, provider.ErrContextLength},
		{"server error", http.StatusBadGateway, `upstream`, provider.ErrProviderDown},
		{"garbage body", http.StatusOK, `{not json`, provider.ErrMalformed},
		{"no choices", http.StatusOK, `{"choices":[]}`, provider.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			_, err := p.Complete(context.Background(), provider.CompletionRequest{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := New(Config{APIKey: "k", BaseURL: url}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Complete(context.Background(), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}

func TestComplete_ContextCancellation(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Complete(ctx, provider.CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStream_Success(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := readRequestBody(t, r)
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("stream options = %+v", req.StreamOptions)
		}
		writeSSE(t, w, []string{
			`data: {"choices":[{"delta":{"role":"assistant"},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{"content":"Reset "},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{"content":"the alarm."},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: {"choices":[],"usage":{"prompt_tokens":30,"completion_tokens":22,"total_tokens":52}}`,
			`data: [DONE]`,
		})
	}))

	ch, err := p.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text strings.Builder
	var usage *provider.TokenUsage
	var finish provider.FinishReason
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("chunk err: %v", c.Err)
		}
		text.WriteString(c.Content)
		if c.Usage != nil {
			usage = c.Usage
		}
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
	}
	if text.String() != "Reset the alarm." {
		t.Errorf("text = %q", text.String())
	}
	if finish != provider.FinishReasonStop {
		t.Errorf("finish = %q", finish)
	}
	if usage == nil || usage.Total() != 52 {
		t.Errorf("usage = %+v, want 52 total", usage)
	}
}

func TestStream_HTTPError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota"}}`)
	}))

	_, err := p.Stream(context.Background(), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrRateLimit) {
		t.Errorf("err = %v, want ErrRateLimit", err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if req := readRequestBody(t, r); req.MaxTokens != 1 {
			t.Errorf("max_tokens = %d, want 1", req.MaxTokens)
		}
		writeJSON(t, w, chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "h"}}}})
	}))

	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
