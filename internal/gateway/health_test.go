package gateway

import (
	"net/http"
	"testing"

	"github.com/itesm-showroom/showroom/internal/provider/providertest"
)

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		report     fakeHealth
		wantCode   int
		wantStatus string
	}{
		{"all healthy", fakeHealth{{Name: "p1", Available: true}}, http.StatusOK, "ok"},
		{"degraded", fakeHealth{{Name: "p1", Available: true}, {Name: "p2", State: "dead"}}, http.StatusServiceUnavailable, "degraded"},
		{"no reporter", nil, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tg := newTestGateway(t, &providertest.MockProvider{}, Config{})
			if tt.report == nil {
				tg.health = nil
			} else {
				tg.health = tt.report
			}
			if _, err := tg.store.GetOrCreate("a"); err != nil {
				t.Fatal(err)
			}

			resp := tg.do(t, http.MethodGet, "/health", nil)
			wantStatus(t, resp, tt.wantCode)
			got := decode[HealthResponse](t, resp)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.Sessions != 1 {
				t.Errorf("sessions = %d, want 1", got.Sessions)
			}
			if len(got.Providers) != len(tt.report) {
				t.Errorf("providers = %+v", got.Providers)
			}
		})
	}
}

func TestHealth_PublicWhenAuthConfigured(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, &providertest.MockProvider{}, Config{Auth: AuthConfig{BearerToken: "tok"}})

	wantStatus(t, tg.do(t, http.MethodGet, "/health", nil), http.StatusOK)
	wantStatus(t, tg.do(t, http.MethodGet, "/api/sessions", nil), http.StatusUnauthorized)
	wantStatus(t, tg.do(t, http.MethodGet, "/ws/sessions/a", nil), http.StatusUnauthorized)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, fanucReply(), Config{})
	wantStatus(t, tg.do(t, http.MethodPost, "/api/sessions/a/messages", MessageRequest{Text: "hi"}), http.StatusOK)

	resp := tg.do(t, http.MethodGet, "/api/status", nil)
	wantStatus(t, resp, http.StatusOK)
	got := decode[StatusResponse](t, resp)
	if got.Sessions != 1 || got.TotalTokens != 52 {
		t.Errorf("status = %+v", got)
	}
	if got.Model != "gpt-3.5-turbo" || len(got.Providers) != 1 {
		t.Errorf("providers = %+v model = %q", got.Providers, got.Model)
	}
	if len(got.Assistants) == 0 {
		t.Error("no assistants listed")
	}
}
