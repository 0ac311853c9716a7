// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package media

import (
	"fmt"
	"strconv"
	"strings"
)

// LegacyRatingFilters is the older combined rating filter shape that
// coexists with the current single-threshold RatingFilter. Each sub-field
// is applied independently; a zero/empty sub-field skips that check.
type LegacyRatingFilters struct {
	MinCommunityRating     float64  `json:"minCommunityRating,omitempty" koanf:"min_community_rating"`
	AllowedOfficialRatings []string `json:"allowedOfficialRatings,omitempty" koanf:"allowed_official_ratings"`
	MinUserRating          float64  `json:"minUserRating,omitempty" koanf:"min_user_rating"`
}

// Filters is the layered content filter configuration for one source
// instance. A zero-value field disables that stage.
//
// Stages run in a fixed order: rating, genre, year, quality, legacy.
// Genre and year filtering is fail-closed: an item missing the data an
// active filter needs is excluded, never passed through.
type Filters struct {
	// MinRating excludes items whose rating is below this threshold
	// (0-10 scale). Zero disables the stage.
	MinRating float64 `json:"ratingFilter,omitempty" koanf:"rating_filter"`

	// Genres is an allow-list; an item passes if any of its genres
	// matches (case-insensitive). Empty disables the stage.
	Genres []string `json:"genreFilter,omitempty" koanf:"genre_filter"`

	// Years accepts a single year ("2015"), a range ("2010-2020"), or
	// comma-separated multiple ranges ("2010-2015, 2018-2020").
	// Empty disables the stage.
	Years string `json:"yearFilter,omitempty" koanf:"year_filter"`

	// Qualities is an allow-list of resolution labels (SD, 720p, 1080p,
	// 4K, "{height}p"). Applies to movies only; shows bypass the stage
	// because per-episode streams vary. Empty disables the stage.
	Qualities []string `json:"qualityFilter,omitempty" koanf:"quality_filter"`

	// Legacy combined rating filters, applied as an independent stage
	// after the current filters (both code paths are preserved; neither
	// takes precedence).
	Legacy LegacyRatingFilters `json:"ratingFilters,omitempty" koanf:"rating_filters"`

	yearRanges []yearRange // parsed lazily from Years
	yearsErr   error
}

type yearRange struct {
	from, to int
}

// ParseYears eagerly parses the Years expression so configuration errors
// surface at construction time instead of on the first fetch.
func (f *Filters) ParseYears() error {
	f.yearRanges, f.yearsErr = parseYearRanges(f.Years)
	return f.yearsErr
}

// parseYearRanges parses year filter expressions:
//
//	"2015"                 -> [2015..2015]
//	"2010-2020"            -> [2010..2020]
//	"2010-2015, 2018-2020" -> [2010..2015], [2018..2020]
func parseYearRanges(expr string) ([]yearRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	var ranges []yearRange
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if from, to, ok := strings.Cut(part, "-"); ok {
			lo, err := strconv.Atoi(strings.TrimSpace(from))
			if err != nil {
				return nil, fmt.Errorf("invalid year range %q: %w", part, err)
			}
			hi, err := strconv.Atoi(strings.TrimSpace(to))
			if err != nil {
				return nil, fmt.Errorf("invalid year range %q: %w", part, err)
			}
			if hi < lo {
				return nil, fmt.Errorf("invalid year range %q: end before start", part)
			}
			ranges = append(ranges, yearRange{from: lo, to: hi})
			continue
		}

		year, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q: %w", part, err)
		}
		ranges = append(ranges, yearRange{from: year, to: year})
	}

	return ranges, nil
}

// Active reports whether any filter stage is configured.
func (f *Filters) Active() bool {
	return f.MinRating > 0 ||
		len(f.Genres) > 0 ||
		strings.TrimSpace(f.Years) != "" ||
		len(f.Qualities) > 0 ||
		f.Legacy.MinCommunityRating > 0 ||
		len(f.Legacy.AllowedOfficialRatings) > 0 ||
		f.Legacy.MinUserRating > 0
}

// Apply runs the filter pipeline over items and returns the survivors.
// The input slice is not modified.
func (f *Filters) Apply(items []Item) []Item {
	if !f.Active() {
		return items
	}

	if f.yearRanges == nil && f.yearsErr == nil && strings.TrimSpace(f.Years) != "" {
		// Years was set after construction without ParseYears; best effort.
		f.yearRanges, f.yearsErr = parseYearRanges(f.Years)
	}

	out := make([]Item, 0, len(items))
	for i := range items {
		if f.matches(&items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}

// matches runs every configured stage against one item.
func (f *Filters) matches(it *Item) bool {
	return f.matchRating(it) &&
		f.matchGenre(it) &&
		f.matchYear(it) &&
		f.matchQuality(it) &&
		f.matchLegacy(it)
}

func (f *Filters) matchRating(it *Item) bool {
	if f.MinRating <= 0 {
		return true
	}
	return it.Rating != nil && *it.Rating >= f.MinRating
}

// matchGenre is fail-closed: with an active genre filter, an item with no
// genres is excluded rather than silently included.
func (f *Filters) matchGenre(it *Item) bool {
	if len(f.Genres) == 0 {
		return true
	}
	if len(it.Genres) == 0 {
		return false
	}
	for _, want := range f.Genres {
		for _, have := range it.Genres {
			if strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(have)) {
				return true
			}
		}
	}
	return false
}

// matchYear excludes items with no resolvable year when a year filter is
// active. A malformed Years expression disables the stage (the error was
// already reported by ParseYears at construction).
func (f *Filters) matchYear(it *Item) bool {
	if strings.TrimSpace(f.Years) == "" || f.yearsErr != nil {
		return true
	}
	if it.Year == nil {
		return false
	}
	for _, r := range f.yearRanges {
		if *it.Year >= r.from && *it.Year <= r.to {
			return true
		}
	}
	return false
}

// matchQuality applies to movies only; per-episode streams vary too much
// for a single show-level label to be meaningful.
func (f *Filters) matchQuality(it *Item) bool {
	if len(f.Qualities) == 0 || it.Type != TypeMovie {
		return true
	}
	if it.Quality == "" {
		return false
	}
	for _, q := range f.Qualities {
		if strings.EqualFold(strings.TrimSpace(q), it.Quality) {
			return true
		}
	}
	return false
}

// matchLegacy applies the legacy combined rating filters. Each sub-check
// is independent; an absent sub-field skips that check.
func (f *Filters) matchLegacy(it *Item) bool {
	if f.Legacy.MinCommunityRating > 0 {
		if it.Rating == nil || *it.Rating < f.Legacy.MinCommunityRating {
			return false
		}
	}
	if len(f.Legacy.AllowedOfficialRatings) > 0 {
		allowed := false
		for _, r := range f.Legacy.AllowedOfficialRatings {
			if strings.EqualFold(strings.TrimSpace(r), it.ContentRating) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	if f.Legacy.MinUserRating > 0 {
		if it.UserRating == nil || *it.UserRating < f.Legacy.MinUserRating {
			return false
		}
	}
	return true
}
