package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/provider"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_ObserveCall(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveCall("submit", "fanuc", "ok", 52, 300*time.Millisecond)
	m.ObserveCall("submit", "fanuc", "ok", 48, time.Second)
	m.ObserveCall("submit", "fanuc", "rate_limit", 0, 10*time.Millisecond)
	m.ObserveRetry(conversation.KindRateLimit)

	out := scrape(t, m)
	for _, want := range []string{
		`showroom_conversation_calls_total{assistant="fanuc",op="submit",outcome="ok"} 2`,
		`showroom_conversation_calls_total{assistant="fanuc",op="submit",outcome="rate_limit"} 1`,
		`showroom_conversation_tokens_total{assistant="fanuc",op="submit"} 100`,
		`showroom_conversation_duration_seconds_count{op="submit"} 3`,
		`showroom_service_retries_total{kind="rate_limit"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestMetrics_ProvidersAndSessions(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetProviders([]provider.Status{
		{Name: "primary", Model: "gpt-4", State: "healthy", Available: true},
		{Name: "backup", Model: "gpt-3.5-turbo", State: "cooldown", Failures: 3},
	})
	n := 7
	m.WatchSessions(func() int { return n })

	out := scrape(t, m)
	for _, want := range []string{
		`showroom_provider_available{model="gpt-4",provider="primary"} 1`,
		`showroom_provider_available{model="gpt-3.5-turbo",provider="backup"} 0`,
		`showroom_provider_consecutive_failures{provider="backup"} 3`,
		`showroom_sessions 7`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestMetrics_ConcurrentObserve(t *testing.T) {
	t.Parallel()

	m := New()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ObserveCall("stream", "general", "ok", 1, time.Millisecond)
		}()
	}
	wg.Wait()

	if out := scrape(t, m); !strings.Contains(out, `showroom_conversation_tokens_total{assistant="general",op="stream"} 50`) {
		t.Errorf("tokens not summed:\n%s", out)
	}
}
