// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package romm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/retry"
	"github.com/posterrama/posterrama/internal/source"
)

// newRommServer fakes a RomM server with two platforms; the SNES platform
// holds totalRoms games.
func newRommServer(t *testing.T, user, pass string, totalRoms int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	auth := func(w http.ResponseWriter, r *http.Request) bool {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("/api/platforms", func(w http.ResponseWriter, r *http.Request) {
		if !auth(w, r) {
			return
		}
		fmt.Fprintf(w, `[
			{"id":1,"name":"SNES","slug":"snes","rom_count":%d},
			{"id":2,"name":"PlayStation","slug":"ps","rom_count":0}
		]`, totalRoms)
	})

	mux.HandleFunc("/api/roms", func(w http.ResponseWriter, r *http.Request) {
		if !auth(w, r) {
			return
		}
		if r.URL.Query().Get("platform_id") != "1" {
			fmt.Fprint(w, `{"items":[],"total":0}`)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		end := offset + limit
		if end > totalRoms {
			end = totalRoms
		}
		var items []map[string]interface{}
		for i := offset; i < end; i++ {
			items = append(items, map[string]interface{}{
				"id":        i,
				"name":      fmt.Sprintf("Game %d", i),
				"summary":   "summary",
				"url_cover": fmt.Sprintf("https://images.igdb.test/%d.jpg", i),
				"igdb_metadata": map[string]interface{}{
					"total_rating":       75.0,
					"first_release_date": time.Date(1995, 6, 1, 0, 0, 0, 0, time.UTC).Unix(),
					"genres":             []string{"Platformer"},
				},
			})
		}
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"items": items,
			"total": totalRoms,
		}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	})

	return httptest.NewServer(mux)
}

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()

	a, err := New(Config{
		Name:      "main",
		URL:       serverURL,
		Username:  "romm",
		Password:  "secret",
		Platforms: []string{"snes"},
		CacheTTL:  time.Minute,
		Retry:     retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, Multiplier: 1.5, MaxDelay: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestFetchMediaReturnsGames(t *testing.T) {
	srv := newRommServer(t, "romm", "secret", 60)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	items, err := a.FetchMedia(context.Background(), []string{"snes"}, media.TypeGame, 20, source.Options{})
	if err != nil {
		t.Fatalf("FetchMedia: %v", err)
	}
	if len(items) != 20 {
		t.Fatalf("expected 20 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Type != media.TypeGame {
			t.Errorf("expected game type, got %s", it.Type)
		}
		if it.Source != "romm:main" {
			t.Errorf("expected source romm:main, got %s", it.Source)
		}
		if it.Rating == nil || *it.Rating != 7.5 {
			t.Errorf("expected IGDB rating 75 scaled to 7.5, got %v", it.Rating)
		}
		if it.Year == nil || *it.Year != 1995 {
			t.Errorf("expected release year 1995, got %v", it.Year)
		}
		if it.IGDBMetadata == nil {
			t.Error("expected IGDB metadata carried through")
		}
	}
}

func TestFetchMediaGamesOnly(t *testing.T) {
	srv := newRommServer(t, "romm", "secret", 10)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	ctx := context.Background()

	for _, typ := range []media.Type{media.TypeMovie, media.TypeShow, media.TypePoster} {
		items, err := a.FetchMedia(ctx, []string{"snes"}, typ, 10, source.Options{})
		if err != nil {
			t.Fatalf("type %s: %v", typ, err)
		}
		if len(items) != 0 {
			t.Errorf("type %s must yield no items from RomM, got %d", typ, len(items))
		}
	}
}

func TestPlatformsListing(t *testing.T) {
	srv := newRommServer(t, "romm", "secret", 60)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	platforms, err := a.Platforms(context.Background())
	if err != nil {
		t.Fatalf("Platforms: %v", err)
	}
	if len(platforms) != 2 {
		t.Fatalf("expected 2 platforms, got %d", len(platforms))
	}
	if platforms[0].Name != "SNES" || platforms[0].RomCount != 60 {
		t.Errorf("unexpected first platform: %+v", platforms[0])
	}

	// PlatformLister is what the manager's platform endpoint relies on.
	var _ source.PlatformLister = a
}

func TestResolveByNameSlugOrID(t *testing.T) {
	srv := newRommServer(t, "romm", "secret", 5)
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	ctx := context.Background()

	for _, ref := range []string{"SNES", "snes", "1"} {
		items, err := a.FetchMedia(ctx, []string{ref}, media.TypeGame, 5, source.Options{})
		if err != nil {
			t.Fatalf("ref %q: %v", ref, err)
		}
		if len(items) != 5 {
			t.Errorf("ref %q: expected 5 items, got %d", ref, len(items))
		}
	}
}

func TestBadCredentials(t *testing.T) {
	srv := newRommServer(t, "romm", "secret", 5)
	defer srv.Close()

	a, err := New(Config{
		Name:     "main",
		URL:      srv.URL,
		Username: "romm",
		Password: "wrong",
		Retry:    retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 1.5, MaxDelay: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.TestConnection(context.Background()); err == nil {
		t.Fatal("expected auth failure")
	}
}
