// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/metrics"
	"github.com/posterrama/posterrama/internal/source"
)

// Config controls the HTTP surface.
type Config struct {
	CORSOrigins     []string
	RateLimit       int // requests per window per client IP, 0 disables
	RateLimitWindow time.Duration
}

// Server is the HTTP API over one source manager.
type Server struct {
	router  chi.Router
	manager *source.Manager
	started time.Time
}

// NewServer wires the router: request ID, real IP, panic recovery, CORS,
// per-IP rate limiting, and Prometheus instrumentation around every
// route.
func NewServer(cfg Config, manager *source.Manager) *Server {
	s := &Server{
		manager: manager,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	if cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(cfg.RateLimit, window))
	}

	r.Use(instrument)

	r.Get("/get-media", s.handleGetMedia)

	r.Route("/api/media", func(r chi.Router) {
		r.Get("/sources", s.handleSources)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/reset-metrics", s.handleResetMetrics)
		r.Get("/platforms", s.handlePlatforms)
	})

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestID assigns every request a UUID and echoes it back in
// X-Request-ID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// instrument records request count, latency, and in-flight gauge.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.APIActiveRequests.Inc()
		defer metrics.APIActiveRequests.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}
		metrics.RecordAPIRequest(r.Method, routePattern, ww.Status(), elapsed)

		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Str("request_id", w.Header().Get("X-Request-ID")).
			Msg("Request handled")
	})
}
