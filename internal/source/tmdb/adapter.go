// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package tmdb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/posterrama/posterrama/internal/cache"
	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/retry"
	"github.com/posterrama/posterrama/internal/source"
)

// Config holds one TMDB source instance's settings. Categories play the
// role libraries do on a media server: each is a TMDB list endpoint
// ("popular", "top_rated", "now_playing", "upcoming", "on_the_air") or
// "discover" for parameterized discovery.
type Config struct {
	Name            string            `koanf:"name" validate:"required"`
	Enabled         *bool             `koanf:"enabled"`
	APIKey          string            `koanf:"api_key" validate:"required"`
	BaseURL         string            `koanf:"base_url"` // empty = public API
	MovieCategories []string          `koanf:"movie_categories"`
	ShowCategories  []string          `koanf:"show_categories"`
	DiscoverParams  map[string]string `koanf:"discover_params"`
	WatchRegion     string            `koanf:"watch_region"`
	Filters         media.Filters     `koanf:"filters"`
	CacheTTL        time.Duration     `koanf:"cache_ttl"`
	Timeout         time.Duration     `koanf:"timeout"`
	Retry           retry.Config      `koanf:"retry"`
}

// Adapter serves movies and shows from The Movie Database. Genre tables
// are cached for an hour and watch providers for thirty minutes; page
// results share the instance cache TTL.
type Adapter struct {
	name    string
	client  *Client
	pages   *cache.Cache
	genres  *cache.Cache
	provs   *cache.Cache
	exec    *retry.Executor
	filters media.Filters
	metrics *source.AdapterMetrics

	movieCategories []string
	showCategories  []string
	discoverParams  url.Values
	watchRegion     string
}

// New builds a TMDB adapter from its config.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tmdb source %q: api_key is required", cfg.Name)
	}
	if err := cfg.Filters.ParseYears(); err != nil {
		return nil, fmt.Errorf("tmdb source %q: %w", cfg.Name, err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	movieCats := cfg.MovieCategories
	if len(movieCats) == 0 {
		movieCats = []string{"popular"}
	}
	showCats := cfg.ShowCategories
	if len(showCats) == 0 {
		showCats = []string{"popular"}
	}
	discover := url.Values{}
	for k, v := range cfg.DiscoverParams {
		discover.Set(k, v)
	}

	key := source.Key("tmdb", cfg.Name)
	return &Adapter{
		name:            cfg.Name,
		client:          NewClient(cfg.BaseURL, cfg.APIKey, key, cfg.Timeout),
		pages:           cache.New(ttl),
		genres:          cache.New(time.Hour),
		provs:           cache.New(30 * time.Minute),
		exec:            retry.NewExecutor(cfg.Retry),
		filters:         cfg.Filters,
		metrics:         source.NewAdapterMetrics(key),
		movieCategories: movieCats,
		showCategories:  showCats,
		discoverParams:  discover,
		watchRegion:     cfg.WatchRegion,
	}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return "tmdb" }

// DefaultLibraries returns the configured categories for a type.
func (a *Adapter) DefaultLibraries(mediaType media.Type) []string {
	switch mediaType {
	case media.TypeMovie:
		return a.movieCategories
	case media.TypeShow:
		return a.showCategories
	default:
		return nil
	}
}

// FetchMedia pulls up to count items from the named categories, filtered
// and randomly sampled. TMDB pages are twenty items, so the oversample
// target drives how many pages each category contributes.
func (a *Adapter) FetchMedia(ctx context.Context, categories []string, mediaType media.Type, count int, opts source.Options) ([]media.Item, error) {
	if len(categories) == 0 || count <= 0 {
		return []media.Item{}, nil
	}

	var mediaKind string
	switch mediaType {
	case media.TypeMovie:
		mediaKind = "movie"
	case media.TypeShow:
		mediaKind = "tv"
	default:
		logging.Warn().
			Str("source", a.sourceKey()).
			Str("type", string(mediaType)).
			Msg("Unsupported media type for TMDB source")
		return []media.Item{}, nil
	}

	start := time.Now()

	cacheKey := cache.GenerateKey("tmdb:fetch", map[string]interface{}{
		"categories": categories,
		"kind":       mediaKind,
		"count":      count,
	})
	if cached, ok := a.pages.Get(cacheKey); ok {
		a.metrics.RecordCacheHit("pages")
		pool := cached.([]media.Item)
		filteredPool := a.applyFilters(pool, opts)
		a.metrics.RecordFetch(len(pool), len(filteredPool), time.Since(start))
		return media.Sample(filteredPool, count), nil
	}
	a.metrics.RecordCacheMiss("pages")

	genreTable, err := a.genreTable(ctx, mediaKind)
	if err != nil {
		// Genre names are decoration; fetch proceeds with raw IDs absent.
		logging.Warn().Str("source", a.sourceKey()).Err(err).Msg("Genre table fetch failed")
		genreTable = map[int]string{}
	}

	target := count * 2
	perCategory := (target + len(categories) - 1) / len(categories)

	var pool []media.Item
	var failed int
	for _, cat := range categories {
		items, err := a.fetchCategory(ctx, mediaKind, cat, perCategory, genreTable)
		if err != nil {
			failed++
			logging.Warn().
				Str("source", a.sourceKey()).
				Str("category", cat).
				Err(err).
				Msg("Category fetch failed, continuing with remaining categories")
			continue
		}
		pool = append(pool, items...)
	}
	if len(pool) == 0 && failed == len(categories) && failed > 0 {
		a.metrics.RecordError()
		return nil, fmt.Errorf("all %d categories failed", failed)
	}

	a.pages.Set(cacheKey, pool)

	processed := len(pool)
	filteredPool := a.applyFilters(pool, opts)
	a.metrics.RecordFetch(processed, len(filteredPool), time.Since(start))

	return media.Sample(filteredPool, count), nil
}

// fetchCategory pages through one category until it has target items or
// the listing ends.
func (a *Adapter) fetchCategory(ctx context.Context, mediaKind, category string, target int, genreTable map[int]string) ([]media.Item, error) {
	var out []media.Item
	for page := 1; len(out) < target; page++ {
		var resp *discoverResponse
		err := a.exec.Execute(ctx, a.sourceKey(), "list_"+category, func(ctx context.Context) error {
			var err error
			resp, err = a.client.ListPage(ctx, mediaKind, category, page, a.discoverParams)
			return err
		})
		if err != nil {
			if len(out) > 0 {
				// Keep what earlier pages produced.
				logging.Warn().
					Str("source", a.sourceKey()).
					Int("page", page).
					Err(err).
					Msg("Page fetch failed, keeping partial category results")
				return out, nil
			}
			return nil, err
		}

		for i := range resp.Results {
			out = append(out, a.normalize(&resp.Results[i], mediaKind, genreTable))
		}
		if page >= resp.TotalPages || len(resp.Results) == 0 {
			break
		}
	}
	return out, nil
}

// genreTable returns the cached genre ID to name mapping for a kind.
func (a *Adapter) genreTable(ctx context.Context, mediaKind string) (map[int]string, error) {
	if cached, ok := a.genres.Get(mediaKind); ok {
		a.metrics.RecordCacheHit("genres")
		return cached.(map[int]string), nil
	}
	a.metrics.RecordCacheMiss("genres")

	var table map[int]string
	err := a.exec.Execute(ctx, a.sourceKey(), "get_genres", func(ctx context.Context) error {
		var err error
		table, err = a.client.GetGenres(ctx, mediaKind)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.genres.Set(mediaKind, table)
	return table, nil
}

// Providers returns the cached streaming provider list for the
// configured region.
func (a *Adapter) Providers(ctx context.Context, mediaKind string) ([]Provider, error) {
	if cached, ok := a.provs.Get(mediaKind); ok {
		a.metrics.RecordCacheHit("providers")
		return cached.([]Provider), nil
	}
	a.metrics.RecordCacheMiss("providers")

	var providers []Provider
	err := a.exec.Execute(ctx, a.sourceKey(), "get_providers", func(ctx context.Context) error {
		var err error
		providers, err = a.client.GetProviders(ctx, mediaKind, a.watchRegion)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.provs.Set(mediaKind, providers)
	return providers, nil
}

func (a *Adapter) applyFilters(pool []media.Item, opts source.Options) []media.Item {
	if opts.Filters != nil {
		return opts.Filters.Apply(pool)
	}
	return a.filters.Apply(pool)
}

// normalize maps one TMDB result to the common shape. TMDB carries no
// stream information, so Quality stays empty.
func (a *Adapter) normalize(r *listResult, mediaKind string, genreTable map[int]string) media.Item {
	it := media.Item{
		ID:            "tmdb-" + strconv.Itoa(r.ID),
		Title:         r.Title,
		Overview:      r.Overview,
		PosterURL:     imageURL(r.PosterPath),
		BackgroundURL: imageURL(r.BackdropPath),
		Source:        a.sourceKey(),
	}

	date := r.ReleaseDate
	if mediaKind == "tv" {
		it.Type = media.TypeShow
		it.Title = r.Name
		date = r.FirstAirDate
	} else {
		it.Type = media.TypeMovie
	}

	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil && y > 0 {
			it.Year = &y
		}
	}
	if r.VoteAverage > 0 {
		v := r.VoteAverage
		it.Rating = &v
	}
	for _, id := range r.GenreIDs {
		if name, ok := genreTable[id]; ok {
			it.Genres = append(it.Genres, name)
		}
	}

	it.Normalize()
	return it
}

// TestConnection validates the API key.
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.exec.Execute(ctx, a.sourceKey(), "test_connection", a.client.TestConnection)
}

func (a *Adapter) Metrics() source.MetricsSnapshot { return a.metrics.Snapshot() }
func (a *Adapter) ResetMetrics()                   { a.metrics.Reset() }

func (a *Adapter) sourceKey() string { return source.Key("tmdb", a.name) }
