// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package romm

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

// Config holds one RomM source instance's settings. Platforms are the
// library equivalent: game platform names or slugs to draw from.
type Config struct {
	Name              string        `koanf:"name" validate:"required"`
	Enabled           *bool         `koanf:"enabled"`
	URL               string        `koanf:"url" validate:"required,url"`
	Username          string        `koanf:"username" validate:"required"`
	Password          string        `koanf:"password" validate:"required"`
	Platforms         []string      `koanf:"platforms"`
	Filters           media.Filters `koanf:"filters"`
	CacheTTL          time.Duration `koanf:"cache_ttl"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Retry             retry.Config  `koanf:"retry"`
}

// Adapter serves games from a RomM server; only the game media type is
// supported.
type Adapter struct {
	name      string
	client    *Client
	cache     *cache.Cache
	exec      *retry.Executor
	pager     *source.Paginator
	filters   media.Filters
	metrics   *source.AdapterMetrics
	platforms []string
}

// New builds a RomM adapter from its config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" || cfg.Username == "" {
		return nil, fmt.Errorf("romm source %q: url and credentials are required", cfg.Name)
	}
	if err := cfg.Filters.ParseYears(); err != nil {
		return nil, fmt.Errorf("romm source %q: %w", cfg.Name, err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	key := source.Key("romm", cfg.Name)
	return &Adapter{
		name:      cfg.Name,
		client:    NewClient(strings.TrimRight(cfg.URL, "/"), cfg.Username, cfg.Password, key, cfg.Timeout),
		cache:     cache.New(ttl),
		exec:      retry.NewExecutor(cfg.Retry),
		pager:     source.NewPaginator(cfg.RequestsPerSecond),
		filters:   cfg.Filters,
		metrics:   source.NewAdapterMetrics(key),
		platforms: cfg.Platforms,
	}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return "romm" }

// DefaultLibraries returns the configured platforms for games.
func (a *Adapter) DefaultLibraries(mediaType media.Type) []string {
	if mediaType == media.TypeGame {
		return a.platforms
	}
	return nil
}

// FetchMedia pulls up to count games from the named platforms, filtered
// and randomly sampled.
func (a *Adapter) FetchMedia(ctx context.Context, platforms []string, mediaType media.Type, count int, opts source.Options) ([]media.Item, error) {
	if len(platforms) == 0 || count <= 0 {
		return []media.Item{}, nil
	}
	if mediaType != media.TypeGame {
		logging.Warn().
			Str("source", a.sourceKey()).
			Str("type", string(mediaType)).
			Msg("Unsupported media type for RomM source")
		return []media.Item{}, nil
	}

	start := time.Now()

	cacheKey := cache.GenerateKey("romm:fetch", map[string]interface{}{"platforms": platforms})
	if cached, ok := a.cache.Get(cacheKey); ok {
		a.metrics.RecordCacheHit("pages")
		pool := cached.([]media.Item)
		filteredPool := a.applyFilters(pool, opts)
		a.metrics.RecordFetch(len(pool), len(filteredPool), time.Since(start))
		return media.Sample(filteredPool, count), nil
	}
	a.metrics.RecordCacheMiss("pages")

	records, err := a.resolvePlatforms(ctx, platforms)
	if err != nil {
		a.metrics.RecordError()
		return nil, err
	}

	var pool []media.Item
	var failed int
	for _, rec := range records {
		items, err := a.fetchPlatform(ctx, rec)
		if err != nil {
			failed++
			logging.Warn().
				Str("source", a.sourceKey()).
				Str("platform", rec.Name).
				Err(err).
				Msg("Platform fetch failed, continuing with remaining platforms")
			continue
		}
		pool = append(pool, items...)
	}
	if len(pool) == 0 && failed == len(records) && failed > 0 {
		a.metrics.RecordError()
		return nil, fmt.Errorf("all %d platforms failed", failed)
	}

	a.cache.Set(cacheKey, pool)

	processed := len(pool)
	filteredPool := a.applyFilters(pool, opts)
	a.metrics.RecordFetch(processed, len(filteredPool), time.Since(start))

	return media.Sample(filteredPool, count), nil
}

// Platforms lists the server's platforms for the admin endpoint.
func (a *Adapter) Platforms(ctx context.Context) ([]source.Platform, error) {
	records, err := a.allPlatforms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]source.Platform, 0, len(records))
	for _, rec := range records {
		out = append(out, source.Platform{
			ID:       strconv.Itoa(rec.ID),
			Name:     rec.Name,
			Slug:     rec.Slug,
			RomCount: rec.RomCount,
		})
	}
	return out, nil
}

// allPlatforms returns the cached platform listing.
func (a *Adapter) allPlatforms(ctx context.Context) ([]PlatformRecord, error) {
	if cached, ok := a.cache.Get("platforms"); ok {
		a.metrics.RecordCacheHit("platforms")
		return cached.([]PlatformRecord), nil
	}
	a.metrics.RecordCacheMiss("platforms")

	var records []PlatformRecord
	err := a.exec.Execute(ctx, a.sourceKey(), "get_platforms", func(ctx context.Context) error {
		var err error
		records, err = a.client.GetPlatforms(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.cache.Set("platforms", records)
	return records, nil
}

// resolvePlatforms maps configured platform names or slugs to records.
func (a *Adapter) resolvePlatforms(ctx context.Context, names []string) ([]PlatformRecord, error) {
	all, err := a.allPlatforms(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PlatformRecord, 0, len(names))
	for _, name := range names {
		found := false
		for _, rec := range all {
			if strings.EqualFold(rec.Name, name) || strings.EqualFold(rec.Slug, name) || strconv.Itoa(rec.ID) == name {
				out = append(out, rec)
				found = true
				break
			}
		}
		if !found {
			logging.Warn().
				Str("source", a.sourceKey()).
				Str("platform", name).
				Msg("Configured platform not found on server")
		}
	}
	return out, nil
}

func (a *Adapter) fetchPlatform(ctx context.Context, rec PlatformRecord) ([]media.Item, error) {
	return a.pager.FetchAll(ctx, a.sourceKey(), func(ctx context.Context, offset, size int) ([]media.Item, int, error) {
		var page []Rom
		var total int
		err := a.exec.Execute(ctx, a.sourceKey(), "get_roms", func(ctx context.Context) error {
			var err error
			page, total, err = a.client.GetRoms(ctx, rec.ID, offset, size)
			return err
		})
		if err != nil {
			return nil, 0, err
		}

		items := make([]media.Item, 0, len(page))
		for i := range page {
			items = append(items, a.normalize(&page[i], rec.Name))
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

// normalize maps one rom to the common shape, lifting IGDB enrichment
// into rating, year, and genres. IGDB total_rating is 0-100, scaled to
// the shared 0-10 range.
func (a *Adapter) normalize(r *Rom, platformName string) media.Item {
	it := media.Item{
		ID:        "romm-" + strconv.FormatInt(r.ID, 10),
		Type:      media.TypeGame,
		Title:     r.Name,
		Overview:  r.Summary,
		PosterURL: a.client.coverURL(r),
		Source:    a.sourceKey(),
	}
	it.ThumbURL = it.PosterURL

	if md := r.IGDBMetadata; md != nil {
		it.IGDBMetadata = md
		if md.TotalRating > 0 {
			rating := md.TotalRating / 10
			it.Rating = &rating
		}
		if md.FirstReleaseDate > 0 {
			y := time.Unix(md.FirstReleaseDate, 0).UTC().Year()
			it.Year = &y
		}
		it.Genres = md.Genres
	}
	if len(it.Genres) == 0 && platformName != "" {
		it.Genres = []string{platformName}
	}

	it.Normalize()
	return it
}

// TestConnection verifies credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.exec.Execute(ctx, a.sourceKey(), "test_connection", a.client.TestConnection)
}

func (a *Adapter) Metrics() source.MetricsSnapshot { return a.metrics.Snapshot() }
func (a *Adapter) ResetMetrics()                   { a.metrics.Reset() }

func (a *Adapter) sourceKey() string { return source.Key("romm", a.name) }
