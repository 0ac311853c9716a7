// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package tvdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/posterrama/posterrama/internal/cache"
	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/retry"
	"github.com/posterrama/posterrama/internal/source"
)

// Config holds one TVDB source instance's settings.
type Config struct {
	Name     string        `koanf:"name" validate:"required"`
	Enabled  *bool         `koanf:"enabled"`
	APIKey   string        `koanf:"api_key" validate:"required"`
	BaseURL  string        `koanf:"base_url"` // empty = public v4 API
	Filters  media.Filters `koanf:"filters"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
	Timeout  time.Duration `koanf:"timeout"`
	Retry    retry.Config  `koanf:"retry"`
}

// Adapter serves shows from TVDB. TVDB has no library concept, so the
// single pseudo-library "series" stands in for one; only the show media
// type is supported.
type Adapter struct {
	name    string
	client  *Client
	cache   *cache.Cache
	exec    *retry.Executor
	filters media.Filters
	metrics *source.AdapterMetrics
}

// New builds a TVDB adapter from its config.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tvdb source %q: api_key is required", cfg.Name)
	}
	if err := cfg.Filters.ParseYears(); err != nil {
		return nil, fmt.Errorf("tvdb source %q: %w", cfg.Name, err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	key := source.Key("tvdb", cfg.Name)
	return &Adapter{
		name:    cfg.Name,
		client:  NewClient(cfg.BaseURL, cfg.APIKey, key, cfg.Timeout),
		cache:   cache.New(ttl),
		exec:    retry.NewExecutor(cfg.Retry),
		filters: cfg.Filters,
		metrics: source.NewAdapterMetrics(key),
	}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return "tvdb" }

// DefaultLibraries returns the pseudo-library for shows.
func (a *Adapter) DefaultLibraries(mediaType media.Type) []string {
	if mediaType == media.TypeShow {
		return []string{"series"}
	}
	return nil
}

// FetchMedia pulls up to count shows from the TVDB series listing,
// filtered and randomly sampled.
func (a *Adapter) FetchMedia(ctx context.Context, libraries []string, mediaType media.Type, count int, opts source.Options) ([]media.Item, error) {
	if len(libraries) == 0 || count <= 0 {
		return []media.Item{}, nil
	}
	if mediaType != media.TypeShow {
		logging.Warn().
			Str("source", a.sourceKey()).
			Str("type", string(mediaType)).
			Msg("Unsupported media type for TVDB source")
		return []media.Item{}, nil
	}

	start := time.Now()

	cacheKey := cache.GenerateKey("tvdb:fetch", map[string]interface{}{"count": count})
	if cached, ok := a.cache.Get(cacheKey); ok {
		a.metrics.RecordCacheHit("pages")
		pool := cached.([]media.Item)
		filteredPool := a.applyFilters(pool, opts)
		a.metrics.RecordFetch(len(pool), len(filteredPool), time.Since(start))
		return media.Sample(filteredPool, count), nil
	}
	a.metrics.RecordCacheMiss("pages")

	target := count * 2
	var pool []media.Item
	for page := 0; len(pool) < target; page++ {
		var series []Series
		var total int
		err := a.exec.Execute(ctx, a.sourceKey(), "get_series", func(ctx context.Context) error {
			var err error
			series, total, err = a.client.GetSeriesPage(ctx, page)
			return err
		})
		if err != nil {
			if len(pool) > 0 {
				logging.Warn().
					Str("source", a.sourceKey()).
					Int("page", page).
					Err(err).
					Msg("Series page fetch failed, keeping partial results")
				break
			}
			a.metrics.RecordError()
			return nil, err
		}
		if len(series) == 0 {
			break
		}
		for i := range series {
			pool = append(pool, a.normalize(&series[i]))
		}
		if total > 0 && len(pool) >= total {
			break
		}
	}

	a.cache.Set(cacheKey, pool)

	processed := len(pool)
	filteredPool := a.applyFilters(pool, opts)
	a.metrics.RecordFetch(processed, len(filteredPool), time.Since(start))

	return media.Sample(filteredPool, count), nil
}

func (a *Adapter) applyFilters(pool []media.Item, opts source.Options) []media.Item {
	if opts.Filters != nil {
		return opts.Filters.Apply(pool)
	}
	return a.filters.Apply(pool)
}

// normalize maps one TVDB series to the common shape. TVDB scores are
// popularity counts, not a 0-10 scale, so Rating stays unset.
func (a *Adapter) normalize(s *Series) media.Item {
	it := media.Item{
		ID:        "tvdb-" + strconv.FormatInt(s.ID, 10),
		Type:      media.TypeShow,
		Title:     s.Name,
		Overview:  s.Overview,
		Genres:    s.Genres,
		PosterURL: s.Image,
		ThumbURL:  s.Image,
		Source:    a.sourceKey(),
	}
	if y, err := strconv.Atoi(s.Year); err == nil && y > 0 {
		it.Year = &y
	}
	it.Normalize()
	return it
}

// TestConnection verifies the API key can log in.
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.exec.Execute(ctx, a.sourceKey(), "test_connection", a.client.TestConnection)
}

func (a *Adapter) Metrics() source.MetricsSnapshot { return a.metrics.Snapshot() }
func (a *Adapter) ResetMetrics()                   { a.metrics.Reset() }

func (a *Adapter) sourceKey() string { return source.Key("tvdb", a.name) }
