package gateway

import (
	"net/http"
	"time"

	"github.com/itesm-showroom/showroom/internal/prompt"
	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/session"
)

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Uptime      float64           `json:"uptime_seconds"`
	Sessions    int               `json:"sessions"`
	TotalTokens int               `json:"total_tokens"`
	Model       string            `json:"model,omitempty"`
	Assistants  []string          `json:"assistants"`
	Providers   []provider.Status `json:"providers"`
}

// handleStatus returns an http.HandlerFunc for GET /api/status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usage, err := session.Summarize(g.store)
		if err != nil {
			g.fail(w, r, err)
			return
		}

		resp := StatusResponse{
			Uptime:      g.now().Sub(g.startedAt).Truncate(time.Second).Seconds(),
			Sessions:    len(usage.Sessions),
			TotalTokens: usage.TotalTokens,
			Assistants:  g.engine.Templates().Names(),
		}
		if g.health != nil {
			resp.Providers = g.health.HealthReport()
			if len(resp.Providers) > 0 {
				resp.Model = resp.Providers[0].Model
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleUsage returns an http.HandlerFunc for GET /api/usage.
func (g *Gateway) handleUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usage, err := session.Summarize(g.store)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, usage)
	}
}

// handleListAssistants returns an http.HandlerFunc for GET /api/assistants.
func (g *Gateway) handleListAssistants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg := g.engine.Templates()
		names := reg.Names()
		out := make([]prompt.Template, 0, len(names))
		for _, name := range names {
			t, err := reg.Get(name)
			if err != nil {
				g.fail(w, r, err)
				return
			}
			out = append(out, t)
		}
		writeJSON(w, http.StatusOK, out)
	}
}
