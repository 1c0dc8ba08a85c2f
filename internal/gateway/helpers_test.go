package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/provider/providertest"
	"github.com/itesm-showroom/showroom/internal/session"
)

var discardLogger = slog.New(slog.DiscardHandler)

type fakeHealth []provider.Status

func (f fakeHealth) HealthReport() []provider.Status { return f }

// testGateway wires a Gateway around a mock provider and an in-memory
// store and serves it from an httptest server.
type testGateway struct {
	*Gateway
	store *session.MemoryStore
	srv   *httptest.Server
}

func newTestGateway(t *testing.T, p *providertest.MockProvider, cfg Config) *testGateway {
	t.Helper()
	store := session.NewMemoryStore()
	engine, err := conversation.New(conversation.Deps{Provider: p, Store: store}, conversation.Config{MaxRetries: -1})
	if err != nil {
		t.Fatalf("conversation.New: %v", err)
	}

	g, err := New(cfg, Deps{Engine: engine, Store: store, Health: fakeHealth{{Name: "main", Model: "gpt-3.5-turbo", State: "healthy", Available: true}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.newID = func() string { return "sess-1" }
	g.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return &testGateway{Gateway: g, store: store, srv: srv}
}

func (tg *testGateway) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, tg.srv.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := tg.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status = %d, want %d (%s)", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func fanucReply() *providertest.MockProvider {
	return &providertest.MockProvider{
		Model:        "gpt-3.5-turbo",
		CompleteFunc: providertest.Reply("Check the pulsecoder cable.", provider.TokenUsage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52}),
	}
}
