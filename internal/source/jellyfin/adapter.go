// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package jellyfin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/posterrama/posterrama/internal/cache"
	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/retry"
	"github.com/posterrama/posterrama/internal/source"
)

// Config holds one Jellyfin source instance's settings.
type Config struct {
	Name              string        `koanf:"name" validate:"required"`
	Enabled           *bool         `koanf:"enabled"`
	URL               string        `koanf:"url" validate:"required,url"`
	APIKey            string        `koanf:"api_key" validate:"required"`
	MovieLibraries    []string      `koanf:"movie_libraries"`
	ShowLibraries     []string      `koanf:"show_libraries"`
	Filters           media.Filters `koanf:"filters"`
	CacheTTL          time.Duration `koanf:"cache_ttl"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Retry             retry.Config  `koanf:"retry"`
}

// Adapter serves movies and shows from one Jellyfin (or Emby-compatible)
// server through an injected ClientInterface.
type Adapter struct {
	name    string
	client  ClientInterface
	cache   *cache.Cache
	exec    *retry.Executor
	pager   *source.Paginator
	filters media.Filters
	metrics *source.AdapterMetrics

	movieLibraries []string
	showLibraries  []string
}

// New builds a Jellyfin adapter with the default HTTP client.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("jellyfin source %q: url and api_key are required", cfg.Name)
	}
	key := source.Key("jellyfin", cfg.Name)
	client := NewClient(strings.TrimRight(cfg.URL, "/"), cfg.APIKey, key, cfg.Timeout)
	return NewWithClient(cfg, client)
}

// NewWithClient builds an adapter around an injected client. Tests use
// this with a fake.
func NewWithClient(cfg Config, client ClientInterface) (*Adapter, error) {
	if err := cfg.Filters.ParseYears(); err != nil {
		return nil, fmt.Errorf("jellyfin source %q: %w", cfg.Name, err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	key := source.Key("jellyfin", cfg.Name)
	return &Adapter{
		name:           cfg.Name,
		client:         client,
		cache:          cache.New(ttl),
		exec:           retry.NewExecutor(cfg.Retry),
		pager:          source.NewPaginator(cfg.RequestsPerSecond),
		filters:        cfg.Filters,
		metrics:        source.NewAdapterMetrics(key),
		movieLibraries: cfg.MovieLibraries,
		showLibraries:  cfg.ShowLibraries,
	}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return "jellyfin" }

// DefaultLibraries returns the configured library names for a type.
func (a *Adapter) DefaultLibraries(mediaType media.Type) []string {
	switch mediaType {
	case media.TypeMovie:
		return a.movieLibraries
	case media.TypeShow:
		return a.showLibraries
	default:
		return nil
	}
}

// FetchMedia pulls up to count items of mediaType from the named
// libraries, filtered and randomly sampled.
func (a *Adapter) FetchMedia(ctx context.Context, libraries []string, mediaType media.Type, count int, opts source.Options) ([]media.Item, error) {
	if len(libraries) == 0 || count <= 0 {
		return []media.Item{}, nil
	}

	var itemType string
	switch mediaType {
	case media.TypeMovie:
		itemType = "Movie"
	case media.TypeShow:
		itemType = "Series"
	default:
		logging.Warn().
			Str("source", a.sourceKey()).
			Str("type", string(mediaType)).
			Msg("Unsupported media type for Jellyfin source")
		return []media.Item{}, nil
	}

	start := time.Now()

	cacheKey := cache.GenerateKey("jellyfin:fetch", map[string]interface{}{
		"libraries": libraries,
		"type":      mediaType,
	})
	if cached, ok := a.cache.Get(cacheKey); ok {
		a.metrics.RecordCacheHit("pages")
		pool := cached.([]media.Item)
		filteredPool := a.applyFilters(pool, opts)
		a.metrics.RecordFetch(len(pool), len(filteredPool), time.Since(start))
		return media.Sample(filteredPool, count), nil
	}
	a.metrics.RecordCacheMiss("pages")

	libs, err := a.resolveLibraries(ctx, libraries)
	if err != nil {
		a.metrics.RecordError()
		return nil, err
	}

	var pool []media.Item
	var failed int
	for _, lib := range libs {
		items, err := a.fetchLibrary(ctx, lib, itemType)
		if err != nil {
			failed++
			logging.Warn().
				Str("source", a.sourceKey()).
				Str("library", lib.Name).
				Err(err).
				Msg("Library fetch failed, continuing with remaining libraries")
			continue
		}
		pool = append(pool, items...)
	}
	if len(pool) == 0 && failed == len(libs) && failed > 0 {
		a.metrics.RecordError()
		return nil, fmt.Errorf("all %d libraries failed", failed)
	}

	a.cache.Set(cacheKey, pool)

	processed := len(pool)
	filteredPool := a.applyFilters(pool, opts)
	a.metrics.RecordFetch(processed, len(filteredPool), time.Since(start))

	return media.Sample(filteredPool, count), nil
}

// resolveLibraries maps configured names to media folders, cached.
func (a *Adapter) resolveLibraries(ctx context.Context, names []string) ([]Library, error) {
	var all []Library
	if cached, ok := a.cache.Get("libraries"); ok {
		a.metrics.RecordCacheHit("libraries")
		all = cached.([]Library)
	} else {
		a.metrics.RecordCacheMiss("libraries")
		err := a.exec.Execute(ctx, a.sourceKey(), "get_libraries", func(ctx context.Context) error {
			var err error
			all, err = a.client.GetLibraries(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		a.cache.Set("libraries", all)
	}

	out := make([]Library, 0, len(names))
	for _, name := range names {
		found := false
		for _, lib := range all {
			if strings.EqualFold(lib.Name, name) || lib.ID == name {
				out = append(out, lib)
				found = true
				break
			}
		}
		if !found {
			logging.Warn().
				Str("source", a.sourceKey()).
				Str("library", name).
				Msg("Configured library not found on server")
		}
	}
	return out, nil
}

func (a *Adapter) fetchLibrary(ctx context.Context, lib Library, itemType string) ([]media.Item, error) {
	return a.pager.FetchAll(ctx, a.sourceKey(), func(ctx context.Context, offset, size int) ([]media.Item, int, error) {
		var page []Item
		var total int
		err := a.exec.Execute(ctx, a.sourceKey(), "get_items", func(ctx context.Context) error {
			var err error
			page, total, err = a.client.GetItems(ctx, lib.ID, itemType, offset, size)
			return err
		})
		if err != nil {
			return nil, 0, err
		}

		items := make([]media.Item, 0, len(page))
		for i := range page {
			items = append(items, a.normalize(&page[i]))
		}
		return items, total, nil
	})
}

func (a *Adapter) applyFilters(pool []media.Item, opts source.Options) []media.Item {
	if opts.Filters != nil {
		return opts.Filters.Apply(pool)
	}
	return a.filters.Apply(pool)
}

// normalize maps one Jellyfin item to the common shape. Year falls back
// ProductionYear -> PremiereDate -> DateCreated; quality comes from the
// video stream height.
func (a *Adapter) normalize(ji *Item) media.Item {
	it := media.Item{
		ID:            "jellyfin-" + ji.ID,
		Title:         ji.Name,
		Overview:      ji.Overview,
		ContentRating: ji.OfficialRating,
		Genres:        ji.Genres,
		Source:        a.sourceKey(),
	}

	switch ji.Type {
	case "Series":
		it.Type = media.TypeShow
	default:
		it.Type = media.TypeMovie
	}

	if year := itemYear(ji); year > 0 {
		it.Year = &year
	}
	if ji.CommunityRating > 0 {
		r := ji.CommunityRating
		it.Rating = &r
	}
	if ji.UserData != nil && ji.UserData.Rating > 0 {
		r := ji.UserData.Rating
		it.UserRating = &r
	}

	if len(ji.MediaStreams) > 0 {
		it.MediaStreams = ji.MediaStreams
	}
	for _, s := range ji.MediaStreams {
		if s.Type == "Video" && s.Height > 0 {
			it.Quality = media.QualityLabel(s.Height)
			break
		}
	}

	if _, ok := ji.ImageTags["Primary"]; ok {
		it.PosterURL = a.client.ImageURL(ji.ID, "Primary")
		it.ThumbURL = it.PosterURL
	}
	if len(ji.BackdropImageTags) > 0 {
		it.BackgroundURL = a.client.ImageURL(ji.ID, "Backdrop")
	}

	it.Normalize()
	return it
}

// itemYear resolves the release year with date-string fallbacks.
func itemYear(ji *Item) int {
	if ji.ProductionYear > 0 {
		return ji.ProductionYear
	}
	for _, date := range []string{ji.PremiereDate, ji.DateCreated} {
		if len(date) >= 4 {
			if y, err := strconv.Atoi(date[:4]); err == nil && y > 0 {
				return y
			}
		}
	}
	return 0
}

// TestConnection verifies the server is reachable.
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.exec.Execute(ctx, a.sourceKey(), "test_connection", a.client.TestConnection)
}

func (a *Adapter) Metrics() source.MetricsSnapshot { return a.metrics.Snapshot() }
func (a *Adapter) ResetMetrics()                   { a.metrics.Reset() }

func (a *Adapter) sourceKey() string { return source.Key("jellyfin", a.name) }
