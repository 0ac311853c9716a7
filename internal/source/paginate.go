// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package source

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/media"
)

// DefaultPageSize is how many items we request per upstream page. Large
// libraries routinely exceed any single-container limit, so adapters page
// through the full library instead of silently truncating it.
const DefaultPageSize = 1000

// PageFunc fetches one page: items starting at offset, at most size of
// them, plus the library's total item count.
type PageFunc func(ctx context.Context, offset, size int) ([]media.Item, int, error)

// Paginator drives paged fetches against one upstream: the first page
// runs alone to learn the total, remaining pages run with bounded
// parallelism behind a shared rate limiter. Individual page failures are
// logged and skipped so one bad page does not void an entire library.
type Paginator struct {
	PageSize    int
	MaxParallel int
	Limiter     *rate.Limiter
}

// NewPaginator builds a Paginator with the default page size, four
// parallel page fetches, and the given requests-per-second budget
// (non-positive rps means unlimited).
func NewPaginator(rps float64) *Paginator {
	p := &Paginator{
		PageSize:    DefaultPageSize,
		MaxParallel: 4,
	}
	if rps > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return p
}

// FetchAll pages through the entire library. A library reporting 6000
// items at the default page size always sees exactly six page fetches:
// adapters cache the complete listing so restrictive filters still have
// the whole library to draw from.
func (p *Paginator) FetchAll(ctx context.Context, source string, fetch PageFunc) ([]media.Item, error) {
	size := p.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	first, total, err := fetch(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	if total <= len(first) {
		return first, nil
	}

	want := total

	type page struct {
		offset int
		items  []media.Item
	}

	offsets := make(chan int)
	results := make(chan page)

	workers := p.MaxParallel
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for offset := range offsets {
				if err := p.wait(ctx); err != nil {
					results <- page{offset: offset}
					continue
				}
				items, _, err := fetch(ctx, offset, size)
				if err != nil {
					logging.Warn().
						Str("source", source).
						Int("offset", offset).
						Err(err).
						Msg("Page fetch failed, skipping page")
					results <- page{offset: offset}
					continue
				}
				results <- page{offset: offset, items: items}
			}
		}()
	}

	go func() {
		defer close(offsets)
		for offset := size; offset < want; offset += size {
			select {
			case offsets <- offset:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := []page{{offset: 0, items: first}}
	for r := range results {
		if len(r.items) > 0 {
			pages = append(pages, r)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Keep library order stable before any shuffling downstream.
	sort.Slice(pages, func(i, j int) bool { return pages[i].offset < pages[j].offset })

	out := make([]media.Item, 0, want)
	for _, pg := range pages {
		out = append(out, pg.items...)
	}
	return out, nil
}

func (p *Paginator) wait(ctx context.Context) error {
	if p.Limiter == nil {
		return ctx.Err()
	}
	return p.Limiter.Wait(ctx)
}
