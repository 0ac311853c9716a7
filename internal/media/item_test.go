// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package media

import (
	"testing"
)

func TestParseType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"movie", TypeMovie, false},
		{"Movie", TypeMovie, false},
		{"movies", TypeMovie, false},
		{"show", TypeShow, false},
		{"tv", TypeShow, false},
		{"series", TypeShow, false},
		{"game", TypeGame, false},
		{"album", TypeAlbum, false},
		{"music", TypeAlbum, false},
		{"poster", TypePoster, false},
		{"podcast", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	it := Item{ID: "x", Title: "X"}
	it.Normalize()
	if it.Genres == nil {
		t.Error("Normalize should initialize nil Genres")
	}
	if len(it.Genres) != 0 {
		t.Errorf("expected empty Genres, got %v", it.Genres)
	}
}

func TestShuffleSample(t *testing.T) {
	t.Parallel()

	items := make([]Item, 100)
	for i := range items {
		items[i] = Item{ID: string(rune('a' + i%26))}
	}

	got := Sample(items, 10)
	if len(got) != 10 {
		t.Errorf("Sample(100 items, 10) returned %d items", len(got))
	}

	got = Sample(items, 500)
	if len(got) != 100 {
		t.Errorf("Sample with count > len should return all items, got %d", len(got))
	}

	got = Sample(items, 0)
	if len(got) != 0 {
		t.Errorf("Sample with count 0 should return empty, got %d", len(got))
	}

	// Input slice must not be mutated by sampling.
	snapshot := make([]Item, len(items))
	copy(snapshot, items)
	_ = Sample(items, 50)
	for i := range items {
		if items[i].ID != snapshot[i].ID {
			t.Fatal("Sample mutated the input slice")
		}
	}
}

func TestShuffleKeepsAllItems(t *testing.T) {
	t.Parallel()

	items := make([]Item, 50)
	for i := range items {
		items[i] = Item{ID: string(rune(i))}
	}

	shuffled := make([]Item, len(items))
	copy(shuffled, items)
	Shuffle(shuffled)

	seen := make(map[string]int, len(shuffled))
	for _, it := range shuffled {
		seen[it.ID]++
	}
	for _, it := range items {
		if seen[it.ID] != 1 {
			t.Fatalf("item %q appears %d times after shuffle", it.ID, seen[it.ID])
		}
	}
}
