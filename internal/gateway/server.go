package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/itesm-showroom/showroom/internal/security"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger(g.logger))

	// Public.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.logger))
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", g.handleStatus())
			r.Get("/usage", g.handleUsage())
			r.Get("/assistants", g.handleListAssistants())

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", g.handleCreateSession())
				r.Get("/", g.handleListSessions())

				r.Route("/{id}", func(r chi.Router) {
					r.Use(g.sessionID)
					r.Get("/", g.handleGetSession())
					r.Delete("/", g.handleDeleteSession())
					r.Post("/messages", g.handleSubmit())
					r.Get("/messages", g.handleHistory())
					r.Put("/context", g.handleSetContext())
					r.Post("/keypoints", g.handleKeyPoints())
					r.Get("/export", g.handleExport())
				})
			})
		})

		r.With(g.sessionID).Get("/ws/sessions/{id}", g.handleStream())
	})

	return r
}

// sessionID rejects malformed {id} path segments before any handler can
// create a session for them.
func (g *Gateway) sessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := security.ValidateSessionID(chi.URLParam(r, "id")); err != nil {
			g.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request at debug level, and at warn
// level for server errors.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chiMiddleware.GetReqID(r.Context()),
			)
		})
	}
}
