// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package plex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/retry"
	"github.com/posterrama/posterrama/internal/source"
)

// newPlexServer fakes a Plex Media Server with one movie section holding
// totalItems entries.
func newPlexServer(t *testing.T, token string, totalItems int, pageCalls *atomic.Int64) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	auth := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("X-Plex-Token") != token {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("/identity", func(w http.ResponseWriter, r *http.Request) {
		if !auth(w, r) {
			return
		}
		fmt.Fprint(w, `{"MediaContainer":{"size":0}}`)
	})

	mux.HandleFunc("/library/sections", func(w http.ResponseWriter, r *http.Request) {
		if !auth(w, r) {
			return
		}
		fmt.Fprint(w, `{"MediaContainer":{"size":2,"Directory":[
			{"key":"1","type":"movie","title":"Movies"},
			{"key":"2","type":"show","title":"TV Shows"}
		]}}`)
	})

	mux.HandleFunc("/library/sections/1/all", func(w http.ResponseWriter, r *http.Request) {
		if !auth(w, r) {
			return
		}
		if pageCalls != nil {
			pageCalls.Add(1)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("X-Plex-Container-Start"))
		size, _ := strconv.Atoi(r.URL.Query().Get("X-Plex-Container-Size"))

		end := offset + size
		if end > totalItems {
			end = totalItems
		}
		var items []map[string]interface{}
		for i := offset; i < end; i++ {
			items = append(items, map[string]interface{}{
				"ratingKey":     strconv.Itoa(i),
				"type":          "movie",
				"title":         fmt.Sprintf("Movie %d", i),
				"year":          2000 + i%25,
				"rating":        5.0 + float64(i%50)/10,
				"contentRating": "PG-13",
				"thumb":         fmt.Sprintf("/library/metadata/%d/thumb", i),
				"Genre":         []map[string]string{{"tag": "Action"}},
				"Media":         []map[string]interface{}{{"videoResolution": "1080", "height": 1080}},
			})
		}

		resp := map[string]interface{}{
			"MediaContainer": map[string]interface{}{
				"size":      end - offset,
				"totalSize": totalItems,
				"Metadata":  items,
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	})

	return httptest.NewServer(mux)
}

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()

	a, err := New(Config{
		Name:           "main",
		URL:            serverURL,
		Token:          "test-token",
		MovieLibraries: []string{"Movies"},
		CacheTTL:       time.Minute,
		Retry:          retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, Multiplier: 1.5, MaxDelay: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestFetchMediaReturnsSampledItems(t *testing.T) {
	srv := newPlexServer(t, "test-token", 200, nil)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	items, err := a.FetchMedia(context.Background(), []string{"Movies"}, media.TypeMovie, 50, source.Options{})
	if err != nil {
		t.Fatalf("FetchMedia: %v", err)
	}
	if len(items) != 50 {
		t.Errorf("expected 50 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Type != media.TypeMovie {
			t.Errorf("expected movie type, got %s", it.Type)
		}
		if it.Source != "plex:main" {
			t.Errorf("expected source plex:main, got %s", it.Source)
		}
		if it.ID == "" || it.ID[:5] != "plex-" {
			t.Errorf("expected plex-prefixed ID, got %q", it.ID)
		}
		if it.Quality != "1080p" {
			t.Errorf("expected 1080p quality, got %q", it.Quality)
		}
	}
}

func TestFetchMediaPaginatesLargeLibrary(t *testing.T) {
	var pageCalls atomic.Int64
	srv := newPlexServer(t, "test-token", 6000, &pageCalls)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	// The whole library is paged in regardless of count, so the cached
	// pool covers even the most restrictive filters.
	items, err := a.FetchMedia(context.Background(), []string{"Movies"}, media.TypeMovie, 50, source.Options{})
	if err != nil {
		t.Fatalf("FetchMedia: %v", err)
	}
	if len(items) != 50 {
		t.Errorf("expected 50 items, got %d", len(items))
	}
	if got := pageCalls.Load(); got != 6 {
		t.Errorf("expected 6 page calls for 6000 items at 1000/page, got %d", got)
	}
}

func TestFetchMediaEarlyExits(t *testing.T) {
	srv := newPlexServer(t, "test-token", 10, nil)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	ctx := context.Background()

	if items, err := a.FetchMedia(ctx, nil, media.TypeMovie, 10, source.Options{}); err != nil || len(items) != 0 {
		t.Errorf("empty libraries: items=%d err=%v, want empty and nil", len(items), err)
	}
	if items, err := a.FetchMedia(ctx, []string{"Movies"}, media.TypeMovie, 0, source.Options{}); err != nil || len(items) != 0 {
		t.Errorf("zero count: items=%d err=%v, want empty and nil", len(items), err)
	}
	if items, err := a.FetchMedia(ctx, []string{"Movies"}, media.TypeGame, 10, source.Options{}); err != nil || len(items) != 0 {
		t.Errorf("unsupported type: items=%d err=%v, want empty and nil", len(items), err)
	}
}

func TestFetchMediaUsesCache(t *testing.T) {
	var pageCalls atomic.Int64
	srv := newPlexServer(t, "test-token", 100, &pageCalls)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	ctx := context.Background()

	if _, err := a.FetchMedia(ctx, []string{"Movies"}, media.TypeMovie, 10, source.Options{}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	first := pageCalls.Load()

	if _, err := a.FetchMedia(ctx, []string{"Movies"}, media.TypeMovie, 10, source.Options{}); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if pageCalls.Load() != first {
		t.Errorf("second fetch should be served from cache, page calls went %d -> %d", first, pageCalls.Load())
	}

	snap := a.Metrics()
	if snap.CacheHits != 1 {
		t.Errorf("expected 1 cache hit, got %d", snap.CacheHits)
	}
	// Cache hits still count as fetches: requestCount tracks calls.
	if snap.RequestCount != 2 {
		t.Errorf("expected requestCount 2 after two fetches, got %d", snap.RequestCount)
	}
	// With no filters active every processed item survives.
	if snap.ItemsFiltered != snap.ItemsProcessed {
		t.Errorf("expected itemsFiltered == itemsProcessed without filters, got %d != %d",
			snap.ItemsFiltered, snap.ItemsProcessed)
	}
}

func TestFetchMediaAppliesFilters(t *testing.T) {
	srv := newPlexServer(t, "test-token", 100, nil)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	f := &media.Filters{MinRating: 9.0}
	items, err := a.FetchMedia(context.Background(), []string{"Movies"}, media.TypeMovie, 100, source.Options{Filters: f})
	if err != nil {
		t.Fatalf("FetchMedia: %v", err)
	}
	for _, it := range items {
		if it.Rating == nil || *it.Rating < 9.0 {
			t.Errorf("item %s violates rating filter: %v", it.ID, it.Rating)
		}
	}
}

func TestFetchMediaAuthFailure(t *testing.T) {
	srv := newPlexServer(t, "correct-token", 10, nil)
	defer srv.Close()

	a, err := New(Config{
		Name:           "main",
		URL:            srv.URL,
		Token:          "wrong-token",
		MovieLibraries: []string{"Movies"},
		Retry:          retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 1.5, MaxDelay: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = a.FetchMedia(context.Background(), []string{"Movies"}, media.TypeMovie, 10, source.Options{})
	if err == nil {
		t.Fatal("expected auth error")
	}
	var se *retry.SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected SourceError, got %T: %v", err, err)
	}
	if se.Kind != retry.KindAuth {
		t.Errorf("expected auth kind, got %s", se.Kind)
	}

	snap := a.Metrics()
	if snap.ErrorCount == 0 {
		t.Error("expected error count to increase")
	}
}

func TestTestConnection(t *testing.T) {
	srv := newPlexServer(t, "test-token", 0, nil)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	if err := a.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection: %v", err)
	}
}

func TestQualityFromMedia(t *testing.T) {
	t.Parallel()

	tests := []struct {
		resolution string
		height     int
		want       string
	}{
		{"1080", 1080, "1080p"},
		{"4k", 0, "4K"},
		{"720", 0, "720p"},
		{"sd", 0, "SD"},
		{"1440", 0, "1440p"},
		{"", 0, ""},
		{"", 2160, "4K"},
	}
	for _, tt := range tests {
		if got := qualityFromMedia(tt.resolution, tt.height); got != tt.want {
			t.Errorf("qualityFromMedia(%q, %d) = %q, want %q", tt.resolution, tt.height, got, tt.want)
		}
	}
}
