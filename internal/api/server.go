// Package api provides the REST API server for org cache access.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/pcf-tools/org-mgmt-server/internal/api/v1"
	"github.com/pcf-tools/org-mgmt-server/internal/cache"
	"github.com/pcf-tools/org-mgmt-server/internal/logger"
	"github.com/pcf-tools/org-mgmt-server/internal/versions"
)

const timestampFormat = "2006-01-02T15:04:05"

// ServerOption configures the API server.
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration.
type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
	gatherer    prometheus.Gatherer
}

// WithMiddlewares adds middleware to the server.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsGatherer exposes the given Prometheus gatherer on /metrics.
func WithMetricsGatherer(gatherer prometheus.Gatherer) ServerOption {
	return func(cfg *serverConfig) {
		cfg.gatherer = gatherer
	}
}

// NewServer creates and configures the HTTP router. refresh triggers an
// asynchronous cache refresh when the manual endpoint is hit.
func NewServer(store *cache.Store, refresh v1.RefreshFunc, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	startTime := time.Now()
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)
	r.Get("/status", statusHandler(store, startTime))
	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	r.Mount("/v1", v1.Router(store, refresh))

	return r
}

// LoggingMiddleware logs HTTP requests.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debugf("HTTP %s %s %d %s %s",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			middleware.GetReqID(r.Context()),
		)
	})
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// versionHandler handles version information requests.
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(versions.GetVersionInfo()); err != nil {
		logger.Errorf("Failed to encode version info: %v", err)
	}
}

// statusHandler reports service state, uptime and cache freshness.
func statusHandler(store *cache.Store, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response := map[string]any{
			"state":        "up",
			"start_time":   startTime.UTC().Format(timestampFormat),
			"current_time": time.Now().UTC().Format(timestampFormat),
			"version":      v1.APIVersion,
			"status":       store.Status(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Errorf("Failed to encode status response: %v", err)
		}
	}
}
