// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package source

import (
	"context"
	"sync"
	"time"

	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/metrics"
)

// Options carries per-request fetch parameters beyond the basic
// library/type/count triple.
type Options struct {
	// Filters overrides the adapter's configured filters for this
	// request. Nil means use the configured ones.
	Filters *media.Filters
}

// Adapter is the contract every media source implements. FetchMedia
// returns already-normalized, filtered, randomly sampled items; an empty
// library list, a non-positive count, or an unsupported media type yields
// an empty slice without touching the upstream.
type Adapter interface {
	// Name is the configured instance name, unique within a type.
	Name() string

	// Type is the source kind: plex, jellyfin, tmdb, tvdb, romm, local.
	Type() string

	FetchMedia(ctx context.Context, libraries []string, mediaType media.Type, count int, opts Options) ([]media.Item, error)

	// DefaultLibraries returns the configured libraries (or platforms)
	// for a media type, used when a request names none. Nil means the
	// adapter has nothing configured for that type.
	DefaultLibraries(mediaType media.Type) []string

	// TestConnection verifies reachability and credentials without
	// fetching content.
	TestConnection(ctx context.Context) error

	Metrics() MetricsSnapshot
	ResetMetrics()
}

// PlatformLister is implemented by adapters whose libraries are game
// platforms rather than media libraries.
type PlatformLister interface {
	Platforms(ctx context.Context) ([]Platform, error)
}

// Platform describes one game platform on a ROM source.
type Platform struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	RomCount int    `json:"romCount"`
}

// MetricsSnapshot is the point-in-time view of one adapter's counters,
// shaped for the admin metrics endpoint.
type MetricsSnapshot struct {
	RequestCount          int64         `json:"requestCount"`
	ItemsProcessed        int64         `json:"itemsProcessed"`
	ItemsFiltered         int64         `json:"itemsFiltered"`
	AverageProcessingTime time.Duration `json:"averageProcessingTime"`
	LastRequestTime       time.Time     `json:"lastRequestTime"`
	ErrorCount            int64         `json:"errorCount"`
	CacheHits             int64         `json:"cacheHits"`
	CacheMisses           int64         `json:"cacheMisses"`
}

// AdapterMetrics accumulates per-adapter counters. Adapters embed one and
// record into it on every fetch; the snapshot feeds GET /api/media/metrics
// and the Prometheus gauges.
type AdapterMetrics struct {
	mu sync.Mutex

	source string

	requestCount   int64
	itemsProcessed int64
	itemsFiltered  int64
	totalDuration  time.Duration
	lastRequest    time.Time
	errorCount     int64
	cacheHits      int64
	cacheMisses    int64
}

// NewAdapterMetrics returns counters labeled with the adapter's source
// key for the Prometheus side.
func NewAdapterMetrics(source string) *AdapterMetrics {
	return &AdapterMetrics{source: source}
}

// RecordFetch records one completed fetch: how many items the upstream
// produced, how many survived the filter pipeline, and how long the
// whole operation took. Cache hits count as fetches too, so
// requestCount tracks calls, not upstream round trips.
func (m *AdapterMetrics) RecordFetch(processed, filtered int, duration time.Duration) {
	m.mu.Lock()
	m.requestCount++
	m.itemsProcessed += int64(processed)
	m.itemsFiltered += int64(filtered)
	m.totalDuration += duration
	m.lastRequest = time.Now()
	m.mu.Unlock()

	metrics.FetchDuration.WithLabelValues(m.source).Observe(duration.Seconds())
	metrics.FetchItemsProcessed.WithLabelValues(m.source).Add(float64(processed))
	metrics.FetchItemsFiltered.WithLabelValues(m.source).Add(float64(filtered))
}

// RecordError counts one failed fetch.
func (m *AdapterMetrics) RecordError() {
	m.mu.Lock()
	m.errorCount++
	m.lastRequest = time.Now()
	m.mu.Unlock()

	metrics.FetchErrors.WithLabelValues(m.source).Inc()
}

// RecordCacheHit counts one response served from the adapter's cache.
func (m *AdapterMetrics) RecordCacheHit(cacheType string) {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()

	metrics.CacheHits.WithLabelValues(m.source, cacheType).Inc()
}

// RecordCacheMiss counts one response that had to go upstream.
func (m *AdapterMetrics) RecordCacheMiss(cacheType string) {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()

	metrics.CacheMisses.WithLabelValues(m.source, cacheType).Inc()
}

// Snapshot returns the current counter values. AverageProcessingTime is
// total fetch time divided by request count.
func (m *AdapterMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		RequestCount:    m.requestCount,
		ItemsProcessed:  m.itemsProcessed,
		ItemsFiltered:   m.itemsFiltered,
		LastRequestTime: m.lastRequest,
		ErrorCount:      m.errorCount,
		CacheHits:       m.cacheHits,
		CacheMisses:     m.cacheMisses,
	}
	if m.requestCount > 0 {
		snap.AverageProcessingTime = m.totalDuration / time.Duration(m.requestCount)
	}
	return snap
}

// Reset zeroes every counter.
func (m *AdapterMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestCount = 0
	m.itemsProcessed = 0
	m.itemsFiltered = 0
	m.totalDuration = 0
	m.lastRequest = time.Time{}
	m.errorCount = 0
	m.cacheHits = 0
	m.cacheMisses = 0
}
