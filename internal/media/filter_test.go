// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package media

import (
	"testing"
)

func yearPtr(y int) *int           { return &y }
func ratingPtr(r float64) *float64 { return &r }

func TestParseYearRanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expr    string
		want    []yearRange
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"single year", "2015", []yearRange{{2015, 2015}}, false},
		{"single range", "2010-2020", []yearRange{{2010, 2020}}, false},
		{"multiple ranges", "2010-2015, 2018-2020", []yearRange{{2010, 2015}, {2018, 2020}}, false},
		{"mixed", "1999, 2010-2012", []yearRange{{1999, 1999}, {2010, 2012}}, false},
		{"spaces", " 2010 - 2012 ", []yearRange{{2010, 2012}}, false},
		{"reversed range", "2020-2010", nil, true},
		{"garbage", "not-a-year", nil, true},
		{"trailing comma", "2015,", []yearRange{{2015, 2015}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseYearRanges(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseYearRanges(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseYearRanges(%q) = %v, want %v", tt.expr, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("range %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestYearFilterMultipleRanges(t *testing.T) {
	t.Parallel()

	f := &Filters{Years: "2010-2015, 2018-2020"}
	if err := f.ParseYears(); err != nil {
		t.Fatalf("ParseYears: %v", err)
	}

	items := []Item{
		{ID: "a", Year: yearPtr(2012), Genres: []string{}},
		{ID: "b", Year: yearPtr(2016), Genres: []string{}},
		{ID: "c", Year: yearPtr(2019), Genres: []string{}},
		{ID: "d", Year: yearPtr(2021), Genres: []string{}},
	}

	got := f.Apply(items)
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("expected items a and c to survive, got %s and %s", got[0].ID, got[1].ID)
	}
}

func TestYearFilterExcludesUnknownYear(t *testing.T) {
	t.Parallel()

	f := &Filters{Years: "2015"}
	if err := f.ParseYears(); err != nil {
		t.Fatalf("ParseYears: %v", err)
	}

	items := []Item{
		{ID: "dated", Year: yearPtr(2015), Genres: []string{}},
		{ID: "undated", Year: nil, Genres: []string{}},
	}

	got := f.Apply(items)
	if len(got) != 1 || got[0].ID != "dated" {
		t.Errorf("expected only dated item to survive, got %v", got)
	}
}

func TestGenreFilterFailClosed(t *testing.T) {
	t.Parallel()

	f := &Filters{Genres: []string{"Action"}}

	items := []Item{
		{ID: "action", Genres: []string{"Action"}},
		{ID: "empty", Genres: []string{}},
		{ID: "nil", Genres: nil},
	}

	got := f.Apply(items)
	if len(got) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(got))
	}
	if got[0].ID != "action" {
		t.Errorf("expected action item to survive, got %s", got[0].ID)
	}
}

func TestGenreFilterCaseInsensitive(t *testing.T) {
	t.Parallel()

	f := &Filters{Genres: []string{"science fiction"}}

	items := []Item{
		{ID: "scifi", Genres: []string{"Science Fiction", "Adventure"}},
		{ID: "drama", Genres: []string{"Drama"}},
	}

	got := f.Apply(items)
	if len(got) != 1 || got[0].ID != "scifi" {
		t.Errorf("expected case-insensitive genre match, got %v", got)
	}
}

func TestRatingFilter(t *testing.T) {
	t.Parallel()

	f := &Filters{MinRating: 7.0}

	items := []Item{
		{ID: "good", Rating: ratingPtr(8.2), Genres: []string{}},
		{ID: "exact", Rating: ratingPtr(7.0), Genres: []string{}},
		{ID: "bad", Rating: ratingPtr(5.1), Genres: []string{}},
		{ID: "unrated", Rating: nil, Genres: []string{}},
	}

	got := f.Apply(items)
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	if got[0].ID != "good" || got[1].ID != "exact" {
		t.Errorf("unexpected survivors: %v", got)
	}
}

func TestQualityLabelBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		height int
		want   string
	}{
		{480, "SD"},
		{576, "SD"},
		{720, "720p"},
		{1080, "1080p"},
		{1440, "1440p"},
		{2160, "4K"},
		{4320, "4K"},
		{0, ""},
	}

	for _, tt := range tests {
		if got := QualityLabel(tt.height); got != tt.want {
			t.Errorf("QualityLabel(%d) = %q, want %q", tt.height, got, tt.want)
		}
	}
}

func TestQualityFilterMoviesOnly(t *testing.T) {
	t.Parallel()

	f := &Filters{Qualities: []string{"1080p", "4K"}}

	items := []Item{
		{ID: "hd-movie", Type: TypeMovie, Quality: "1080p", Genres: []string{}},
		{ID: "uhd-movie", Type: TypeMovie, Quality: "4K", Genres: []string{}},
		{ID: "qhd-movie", Type: TypeMovie, Quality: "1440p", Genres: []string{}},
		{ID: "sd-movie", Type: TypeMovie, Quality: "SD", Genres: []string{}},
		{ID: "sd-show", Type: TypeShow, Quality: "SD", Genres: []string{}},
		{ID: "bare-show", Type: TypeShow, Genres: []string{}},
	}

	got := f.Apply(items)
	ids := make(map[string]bool, len(got))
	for _, it := range got {
		ids[it.ID] = true
	}

	for _, want := range []string{"hd-movie", "uhd-movie", "sd-show", "bare-show"} {
		if !ids[want] {
			t.Errorf("expected %s to survive", want)
		}
	}
	for _, drop := range []string{"qhd-movie", "sd-movie"} {
		if ids[drop] {
			t.Errorf("expected %s to be filtered", drop)
		}
	}
}

func TestLegacyRatingFilters(t *testing.T) {
	t.Parallel()

	f := &Filters{
		Legacy: LegacyRatingFilters{
			MinCommunityRating:     6.0,
			AllowedOfficialRatings: []string{"PG", "PG-13"},
			MinUserRating:          7.0,
		},
	}

	items := []Item{
		{ID: "pass", Rating: ratingPtr(8.0), UserRating: ratingPtr(9.0), ContentRating: "PG-13", Genres: []string{}},
		{ID: "low-community", Rating: ratingPtr(4.0), UserRating: ratingPtr(9.0), ContentRating: "PG", Genres: []string{}},
		{ID: "wrong-official", Rating: ratingPtr(8.0), UserRating: ratingPtr(9.0), ContentRating: "R", Genres: []string{}},
		{ID: "low-user", Rating: ratingPtr(8.0), UserRating: ratingPtr(5.0), ContentRating: "PG", Genres: []string{}},
	}

	got := f.Apply(items)
	if len(got) != 1 || got[0].ID != "pass" {
		t.Errorf("expected only 'pass' to survive, got %v", got)
	}
}

func TestLegacySubFieldsIndependent(t *testing.T) {
	t.Parallel()

	// Only the official-ratings allow-list is set; community and user
	// rating checks must be skipped, not failed.
	f := &Filters{
		Legacy: LegacyRatingFilters{
			AllowedOfficialRatings: []string{"G"},
		},
	}

	items := []Item{
		{ID: "g-unrated", ContentRating: "G", Genres: []string{}},
		{ID: "r-rated", ContentRating: "R", Genres: []string{}},
	}

	got := f.Apply(items)
	if len(got) != 1 || got[0].ID != "g-unrated" {
		t.Errorf("expected g-unrated to survive with no score data, got %v", got)
	}
}

func TestInactiveFiltersPassEverything(t *testing.T) {
	t.Parallel()

	f := &Filters{}

	items := []Item{
		{ID: "a", Genres: nil},
		{ID: "b", Year: nil},
		{ID: "c", Rating: nil},
	}

	got := f.Apply(items)
	if len(got) != 3 {
		t.Errorf("expected all items to pass inactive filters, got %d", len(got))
	}
}

func TestFilterPipelineCombined(t *testing.T) {
	t.Parallel()

	f := &Filters{
		MinRating: 6.0,
		Genres:    []string{"Action"},
		Years:     "2000-2020",
		Qualities: []string{"1080p"},
	}
	if err := f.ParseYears(); err != nil {
		t.Fatalf("ParseYears: %v", err)
	}

	items := []Item{
		{ID: "keeper", Type: TypeMovie, Rating: ratingPtr(7.5), Genres: []string{"Action"}, Year: yearPtr(2010), Quality: "1080p"},
		{ID: "wrong-genre", Type: TypeMovie, Rating: ratingPtr(7.5), Genres: []string{"Comedy"}, Year: yearPtr(2010), Quality: "1080p"},
		{ID: "too-old", Type: TypeMovie, Rating: ratingPtr(7.5), Genres: []string{"Action"}, Year: yearPtr(1995), Quality: "1080p"},
		{ID: "low-res", Type: TypeMovie, Rating: ratingPtr(7.5), Genres: []string{"Action"}, Year: yearPtr(2010), Quality: "720p"},
	}

	got := f.Apply(items)
	if len(got) != 1 || got[0].ID != "keeper" {
		t.Errorf("expected only keeper to survive the combined pipeline, got %v", got)
	}
}
