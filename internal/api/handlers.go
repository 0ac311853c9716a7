// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/source"
)

// maxCount caps one request's item budget so a stray query cannot drag
// entire libraries through the filter pipeline.
const maxCount = 500

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleGetMedia serves GET /get-media. Defaults: source=all,
// type=movie, count=50. Partial upstream failures still produce a 200
// with whatever the healthy sources returned.
func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	typeParam := q.Get("type")
	if typeParam == "" {
		typeParam = "movie"
	}
	mediaType, err := media.ParseType(typeParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count := 50
	if raw := q.Get("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count < 1 || count > maxCount {
			writeError(w, http.StatusBadRequest, "count must be an integer between 1 and "+strconv.Itoa(maxCount))
			return
		}
	}

	req := source.Request{
		Source:     q.Get("source"),
		SourceName: q.Get("sourceName"),
		Type:       mediaType,
		Count:      count,
		Libraries:  splitList(q.Get("libraries")),
	}
	if req.Source == "" {
		req.Source = "all"
	}
	if platforms := splitList(q.Get("platforms")); len(platforms) > 0 {
		req.Libraries = append(req.Libraries, platforms...)
	}

	items, err := s.manager.FetchMedia(r.Context(), req)
	if err != nil {
		logging.Error().
			Str("source", req.Source).
			Str("type", string(mediaType)).
			Err(err).
			Msg("Media fetch failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch media")
		return
	}
	if items == nil {
		items = []media.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleSources serves GET /api/media/sources.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Sources())
}

// handleMetrics serves GET /api/media/metrics: per-adapter counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Metrics())
}

// handleResetMetrics serves POST /api/media/reset-metrics.
func (s *Server) handleResetMetrics(w http.ResponseWriter, r *http.Request) {
	s.manager.ResetMetrics()
	logging.Info().Msg("Adapter metrics reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handlePlatforms serves GET /api/media/platforms: game platforms from
// every source that has them.
func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := s.manager.Platforms(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Platform listing failed")
		writeError(w, http.StatusBadGateway, "failed to list platforms")
		return
	}
	if platforms == nil {
		platforms = map[string][]source.Platform{}
	}
	writeJSON(w, http.StatusOK, platforms)
}

type healthResponse struct {
	Status  string `json:"status"`
	Sources int    `json:"sources"`
	Uptime  string `json:"uptime"`
}

// handleHealth serves GET /api/v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Sources: len(s.manager.Sources()),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

// splitList parses a comma-separated query value into trimmed parts.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
