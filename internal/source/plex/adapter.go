// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package plex

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

// Config holds one Plex source instance's settings.
type Config struct {
	Name              string        `koanf:"name" validate:"required"`
	Enabled           *bool         `koanf:"enabled"`
	URL               string        `koanf:"url" validate:"required,url"`
	Token             string        `koanf:"token" validate:"required"`
	MovieLibraries    []string      `koanf:"movie_libraries"`
	ShowLibraries     []string      `koanf:"show_libraries"`
	Filters           media.Filters `koanf:"filters"`
	CacheTTL          time.Duration `koanf:"cache_ttl"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Retry             retry.Config  `koanf:"retry"`
}

// Adapter serves movies and shows from one Plex Media Server.
type Adapter struct {
	name    string
	client  *Client
	cache   *cache.Cache
	exec    *retry.Executor
	pager   *source.Paginator
	filters media.Filters
	metrics *source.AdapterMetrics

	movieLibraries []string
	showLibraries  []string
}

// New builds a Plex adapter from its config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, fmt.Errorf("plex source %q: url and token are required", cfg.Name)
	}
	if err := cfg.Filters.ParseYears(); err != nil {
		return nil, fmt.Errorf("plex source %q: %w", cfg.Name, err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	key := source.Key("plex", cfg.Name)
	return &Adapter{
		name:           cfg.Name,
		client:         NewClient(strings.TrimRight(cfg.URL, "/"), cfg.Token, key, cfg.Timeout),
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
func (a *Adapter) Type() string { return "plex" }

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
// libraries, filtered and randomly sampled. The complete unfiltered pool
// is cached per (libraries, type) so repeat requests re-filter and
// re-sample without another upstream round trip.
func (a *Adapter) FetchMedia(ctx context.Context, libraries []string, mediaType media.Type, count int, opts source.Options) ([]media.Item, error) {
	if len(libraries) == 0 || count <= 0 {
		return []media.Item{}, nil
	}
	if mediaType != media.TypeMovie && mediaType != media.TypeShow {
		logging.Warn().
			Str("source", a.sourceKey()).
			Str("type", string(mediaType)).
			Msg("Unsupported media type for Plex source")
		return []media.Item{}, nil
	}

	start := time.Now()

	cacheKey := cache.GenerateKey("plex:fetch", map[string]interface{}{
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

	sections, err := a.resolveSections(ctx, libraries, mediaType)
	if err != nil {
		a.metrics.RecordError()
		return nil, err
	}

	var pool []media.Item
	var failed int
	for _, sec := range sections {
		items, err := a.fetchSection(ctx, sec)
		if err != nil {
			failed++
			logging.Warn().
				Str("source", a.sourceKey()).
				Str("library", sec.Title).
				Err(err).
				Msg("Library fetch failed, continuing with remaining libraries")
			continue
		}
		pool = append(pool, items...)
	}
	if len(pool) == 0 && failed == len(sections) && failed > 0 {
		a.metrics.RecordError()
		return nil, fmt.Errorf("all %d libraries failed", failed)
	}

	a.cache.Set(cacheKey, pool)

	processed := len(pool)
	filteredPool := a.applyFilters(pool, opts)
	a.metrics.RecordFetch(processed, len(filteredPool), time.Since(start))

	return media.Sample(filteredPool, count), nil
}

// resolveSections maps configured library names to section descriptors,
// caching the section list. Unknown names are skipped with a warning.
func (a *Adapter) resolveSections(ctx context.Context, libraries []string, mediaType media.Type) ([]directory, error) {
	var dirs []directory
	if cached, ok := a.cache.Get("libraries"); ok {
		a.metrics.RecordCacheHit("libraries")
		dirs = cached.([]directory)
	} else {
		a.metrics.RecordCacheMiss("libraries")
		err := a.exec.Execute(ctx, a.sourceKey(), "get_libraries", func(ctx context.Context) error {
			var err error
			dirs, err = a.client.GetLibraries(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		a.cache.Set("libraries", dirs)
	}

	wantType := "movie"
	if mediaType == media.TypeShow {
		wantType = "show"
	}

	out := make([]directory, 0, len(libraries))
	for _, name := range libraries {
		found := false
		for _, d := range dirs {
			if d.Type == wantType && (strings.EqualFold(d.Title, name) || d.Key == name) {
				out = append(out, d)
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

// fetchSection pages through the whole section with retries per page.
func (a *Adapter) fetchSection(ctx context.Context, sec directory) ([]media.Item, error) {
	return a.pager.FetchAll(ctx, a.sourceKey(), func(ctx context.Context, offset, size int) ([]media.Item, int, error) {
		var page []metadata
		var total int
		err := a.exec.Execute(ctx, a.sourceKey(), "get_library_items", func(ctx context.Context) error {
			var err error
			page, total, err = a.client.GetLibraryItems(ctx, sec.Key, offset, size)
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

// normalize maps one Plex metadata record to the common item shape.
func (a *Adapter) normalize(md *metadata) media.Item {
	it := media.Item{
		ID:            "plex-" + md.RatingKey,
		Title:         md.Title,
		Overview:      md.Summary,
		ContentRating: md.ContentRating,
		PosterURL:     a.client.imageURL(md.Thumb),
		BackgroundURL: a.client.imageURL(md.Art),
		ThumbURL:      a.client.imageURL(md.Thumb),
		Source:        a.sourceKey(),
	}

	switch md.Type {
	case "show":
		it.Type = media.TypeShow
	default:
		it.Type = media.TypeMovie
	}

	if year := itemYear(md); year > 0 {
		it.Year = &year
	}

	if md.Rating > 0 {
		r := md.Rating
		it.Rating = &r
	} else if md.AudienceRating > 0 {
		r := md.AudienceRating
		it.Rating = &r
	}
	if md.UserRating > 0 {
		r := md.UserRating
		it.UserRating = &r
	}

	for _, g := range md.Genre {
		it.Genres = append(it.Genres, g.Tag)
	}

	if len(md.Media) > 0 {
		it.Quality = qualityFromMedia(md.Media[0].VideoResolution, md.Media[0].Height)
	}

	it.Normalize()
	return it
}

// itemYear prefers the year field and falls back to the release date.
func itemYear(md *metadata) int {
	if md.Year > 0 {
		return md.Year
	}
	if len(md.OriginallyAvailableAt) >= 4 {
		if y, err := strconv.Atoi(md.OriginallyAvailableAt[:4]); err == nil {
			return y
		}
	}
	return 0
}

// qualityFromMedia prefers the numeric stream height, falling back to
// Plex's videoResolution label ("4k", "1080", "720", "sd").
func qualityFromMedia(resolution string, height int) string {
	if height > 0 {
		return media.QualityLabel(height)
	}
	switch strings.ToLower(resolution) {
	case "4k":
		return "4K"
	case "1080":
		return "1080p"
	case "720":
		return "720p"
	case "sd", "480", "576":
		return "SD"
	case "":
		return ""
	default:
		if h, err := strconv.Atoi(resolution); err == nil {
			return media.QualityLabel(h)
		}
		return ""
	}
}

// TestConnection verifies the server is reachable with the configured
// token.
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.exec.Execute(ctx, a.sourceKey(), "test_connection", a.client.TestConnection)
}

func (a *Adapter) Metrics() source.MetricsSnapshot { return a.metrics.Snapshot() }
func (a *Adapter) ResetMetrics()                   { a.metrics.Reset() }

func (a *Adapter) sourceKey() string { return source.Key("plex", a.name) }
