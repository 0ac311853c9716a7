// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package media

import "fmt"

// Type identifies the kind of media an item represents.
type Type string

// Media types returned by source adapters.
const (
	TypeMovie  Type = "movie"
	TypeShow   Type = "show"
	TypeGame   Type = "game"
	TypeAlbum  Type = "album"
	TypePoster Type = "poster"
)

// ParseType normalizes a user-supplied type string.
func ParseType(s string) (Type, error) {
	switch s {
	case "movie", "movies":
		return TypeMovie, nil
	case "show", "shows", "series", "tv":
		return TypeShow, nil
	case "game", "games":
		return TypeGame, nil
	case "album", "albums", "music":
		return TypeAlbum, nil
	case "poster", "posters":
		return TypePoster, nil
	default:
		return "", fmt.Errorf("unknown media type: %q", s)
	}
}

// Item is the normalized unit returned to clients, regardless of which
// upstream produced it.
//
// ID is globally unique across sources because every adapter prefixes it
// with its own source name (e.g. "tmdb-123", "plex-abc"). Genres is always
// non-nil after normalization.
type Item struct {
	ID            string   `json:"id"`
	Type          Type     `json:"type"`
	Title         string   `json:"title"`
	Year          *int     `json:"year,omitempty"`
	Overview      string   `json:"overview,omitempty"`
	Genres        []string `json:"genres"`
	Rating        *float64 `json:"rating,omitempty"` // 0-10 scale
	UserRating    *float64 `json:"userRating,omitempty"`
	ContentRating string   `json:"contentRating,omitempty"`
	Quality       string   `json:"quality,omitempty"` // resolution label: SD, 720p, 1080p, 4K, "{height}p"
	PosterURL     string   `json:"posterUrl,omitempty"`
	BackgroundURL string   `json:"backgroundUrl,omitempty"`
	ThumbURL      string   `json:"thumbUrl,omitempty"`
	Source        string   `json:"source"`

	// Adapter-specific extension fields.
	IGDBMetadata interface{} `json:"igdbMetadata,omitempty"`
	MediaStreams interface{} `json:"mediaStreams,omitempty"`
}

// Normalize enforces the Item invariants that the filter pipeline and
// clients rely on. Adapters call this on every item they emit.
func (it *Item) Normalize() {
	if it.Genres == nil {
		it.Genres = []string{}
	}
}

// QualityLabel maps a video stream height in pixels to a resolution label.
//
// Boundaries: anything at or below 576 lines is SD, 2160 and above is 4K,
// and heights that fall outside the standard tiers keep their literal
// "{height}p" form (e.g. 1440p).
func QualityLabel(height int) string {
	switch {
	case height <= 0:
		return ""
	case height >= 2160:
		return "4K"
	case height >= 1080 && height < 1440:
		return "1080p"
	case height >= 720 && height < 1080:
		return "720p"
	case height <= 576:
		return "SD"
	default:
		return fmt.Sprintf("%dp", height)
	}
}
