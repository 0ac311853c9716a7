// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

// Package local serves poster images straight from directories on disk,
// for installations that curate artwork without any media server.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/posterrama/posterrama/internal/cache"
	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/source"
)

// imageExtensions are the file types treated as posters.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// yearPattern matches a "Title (2015)" style year in a filename.
var yearPattern = regexp.MustCompile(`\((\d{4})\)`)

// Config holds one local directory source's settings. Directories maps
// library names to filesystem paths; URLPrefix is where the HTTP layer
// serves those files from.
type Config struct {
	Name        string            `koanf:"name" validate:"required"`
	Enabled     *bool             `koanf:"enabled"`
	Directories map[string]string `koanf:"directories" validate:"required"`
	URLPrefix   string            `koanf:"url_prefix"`
	CacheTTL    time.Duration     `koanf:"cache_ttl"`
	Filters     media.Filters     `koanf:"filters"`
}

// Adapter serves posters scanned from local directories; only the poster
// media type is supported. Scans are cached per directory.
type Adapter struct {
	name      string
	dirs      map[string]string
	urlPrefix string
	cache     *cache.Cache
	filters   media.Filters
	metrics   *source.AdapterMetrics

	// fsys lets tests substitute an in-memory tree for the real disk.
	fsys func(root string) fs.FS
}

// New builds a local directory adapter from its config.
func New(cfg Config) (*Adapter, error) {
	if len(cfg.Directories) == 0 {
		return nil, fmt.Errorf("local source %q: at least one directory is required", cfg.Name)
	}
	if err := cfg.Filters.ParseYears(); err != nil {
		return nil, fmt.Errorf("local source %q: %w", cfg.Name, err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	prefix := cfg.URLPrefix
	if prefix == "" {
		prefix = "/local-media"
	}
	key := source.Key("local", cfg.Name)
	return &Adapter{
		name:      cfg.Name,
		dirs:      cfg.Directories,
		urlPrefix: strings.TrimRight(prefix, "/"),
		cache:     cache.New(ttl),
		filters:   cfg.Filters,
		metrics:   source.NewAdapterMetrics(key),
		fsys:      nil,
	}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return "local" }

// DefaultLibraries returns every configured directory name for posters.
func (a *Adapter) DefaultLibraries(mediaType media.Type) []string {
	if mediaType != media.TypePoster {
		return nil
	}
	out := make([]string, 0, len(a.dirs))
	for name := range a.dirs {
		out = append(out, name)
	}
	return out
}

// FetchMedia scans the named directories and returns up to count
// posters, filtered and randomly sampled.
func (a *Adapter) FetchMedia(ctx context.Context, libraries []string, mediaType media.Type, count int, opts source.Options) ([]media.Item, error) {
	if len(libraries) == 0 || count <= 0 {
		return []media.Item{}, nil
	}
	if mediaType != media.TypePoster {
		logging.Warn().
			Str("source", a.sourceKey()).
			Str("type", string(mediaType)).
			Msg("Unsupported media type for local source")
		return []media.Item{}, nil
	}

	start := time.Now()

	var pool []media.Item
	var failed int
	var scanned int
	for _, lib := range libraries {
		root, ok := a.dirs[lib]
		if !ok {
			logging.Warn().
				Str("source", a.sourceKey()).
				Str("library", lib).
				Msg("Unknown local library")
			continue
		}
		scanned++

		items, err := a.scanDir(ctx, lib, root)
		if err != nil {
			failed++
			logging.Warn().
				Str("source", a.sourceKey()).
				Str("library", lib).
				Err(err).
				Msg("Directory scan failed, continuing with remaining directories")
			continue
		}
		pool = append(pool, items...)
	}
	if len(pool) == 0 && failed > 0 && failed == scanned {
		a.metrics.RecordError()
		return nil, fmt.Errorf("all %d directories failed to scan", failed)
	}

	processed := len(pool)
	filteredPool := a.applyFilters(pool, opts)
	a.metrics.RecordFetch(processed, len(filteredPool), time.Since(start))

	return media.Sample(filteredPool, count), nil
}

// scanDir walks one directory tree, cached per library name.
func (a *Adapter) scanDir(ctx context.Context, lib, root string) ([]media.Item, error) {
	if cached, ok := a.cache.Get(lib); ok {
		a.metrics.RecordCacheHit("scan")
		return cached.([]media.Item), nil
	}
	a.metrics.RecordCacheMiss("scan")

	fsys := a.dirFS(root)
	var items []media.Item
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !imageExtensions[strings.ToLower(path.Ext(p))] {
			return nil
		}
		items = append(items, a.normalize(lib, p))
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.cache.Set(lib, items)
	return items, nil
}

func (a *Adapter) dirFS(root string) fs.FS {
	if a.fsys != nil {
		return a.fsys(root)
	}
	return os.DirFS(root)
}

func (a *Adapter) applyFilters(pool []media.Item, opts source.Options) []media.Item {
	if opts.Filters != nil {
		return opts.Filters.Apply(pool)
	}
	return a.filters.Apply(pool)
}

// normalize builds a poster item from one relative file path. The title
// is the base name without extension; a "(2015)" suffix becomes the
// year.
func (a *Adapter) normalize(lib, relPath string) media.Item {
	base := path.Base(relPath)
	title := strings.TrimSuffix(base, path.Ext(base))

	it := media.Item{
		ID:        "local-" + lib + "-" + relPath,
		Type:      media.TypePoster,
		Title:     strings.TrimSpace(yearPattern.ReplaceAllString(title, "")),
		PosterURL: fmt.Sprintf("%s/%s/%s", a.urlPrefix, lib, relPath),
		Source:    a.sourceKey(),
	}
	it.ThumbURL = it.PosterURL

	if m := yearPattern.FindStringSubmatch(title); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			it.Year = &y
		}
	}

	it.Normalize()
	return it
}

// TestConnection verifies every configured directory is readable.
func (a *Adapter) TestConnection(ctx context.Context) error {
	for lib, root := range a.dirs {
		f, err := a.dirFS(root).Open(".")
		if err != nil {
			return fmt.Errorf("library %q: %w", lib, err)
		}
		f.Close()
	}
	return nil
}

func (a *Adapter) Metrics() source.MetricsSnapshot { return a.metrics.Snapshot() }
func (a *Adapter) ResetMetrics()                   { a.metrics.Reset() }

func (a *Adapter) sourceKey() string { return source.Key("local", a.name) }
