package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ParseOrigins splits a comma-separated CORS origin list, trimming spaces.
// An empty or all-whitespace input allows every origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// RouterConfig configures BuildRouter's middleware.
type RouterConfig struct {
	CORSAllowOrigins string
	RateLimitPerMin  int
}

// BuildRouter constructs the full HTTP handler: middleware, CORS, per-IP
// rate limiting on every /api route (reads and writes alike), and the
// operator-facing route surface.
func BuildRouter(srv *Server, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", srv.HealthzHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		api.Post("/api/videos/{id}/trigger-reply", srv.TriggerReplyHandler())
		api.Get("/api/videos/tasks/{task_id}/status", srv.TaskStatusHandler())
		api.Get("/api/analytics/{user_id}", srv.AnalyticsHandler())
	})

	return r
}
