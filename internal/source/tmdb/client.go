// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package tmdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/posterrama/posterrama/internal/retry"
)

// imageBaseURL is TMDB's CDN prefix; "original" keeps full resolution.
const imageBaseURL = "https://image.tmdb.org/t/p/original"

// pageSize is fixed by the TMDB API.
const pageSize = 20

// Client talks to The Movie Database API v3.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	source     string
}

// NewClient builds a TMDB client. baseURL is overridable for tests;
// empty means the public API.
func NewClient(baseURL, apiKey, source string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		source:     source,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// discoverResponse is the common paged list envelope.
type discoverResponse struct {
	Page         int          `json:"page"`
	TotalPages   int          `json:"total_pages"`
	TotalResults int          `json:"total_results"`
	Results      []listResult `json:"results"`
}

// listResult is one movie or TV entry; movie and TV differ only in the
// title and date field names.
type listResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"` // movies
	Name         string  `json:"name"`  // tv
	Overview     string  `json:"overview"`
	GenreIDs     []int   `json:"genre_ids"`
	VoteAverage  float64 `json:"vote_average"`
	ReleaseDate  string  `json:"release_date"`   // movies
	FirstAirDate string  `json:"first_air_date"` // tv
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
}

type genreListResponse struct {
	Genres []genre `json:"genres"`
}

type genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type providerListResponse struct {
	Results []Provider `json:"results"`
}

// Provider is one streaming provider from /watch/providers.
type Provider struct {
	ID          int    `json:"provider_id"`
	Name        string `json:"provider_name"`
	DisplayPrio int    `json:"display_priority"`
}

func (c *Client) doRequest(ctx context.Context, operation, path string, query url.Values, result interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return retry.NewConfigError(c.source, operation, err)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.NewTransientError(c.source, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return retry.FromHTTPStatus(c.source, operation, resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return retry.NewTransientError(c.source, operation, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// ListPage fetches one page of a category listing. mediaKind is "movie"
// or "tv"; category is a list endpoint ("popular", "top_rated", ...) or
// "discover" for parameterized discovery.
func (c *Client) ListPage(ctx context.Context, mediaKind, category string, page int, discover url.Values) (*discoverResponse, error) {
	var path string
	query := url.Values{}
	if category == "discover" {
		path = "/discover/" + mediaKind
		for k, vs := range discover {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
	} else {
		path = fmt.Sprintf("/%s/%s", mediaKind, category)
	}
	query.Set("page", strconv.Itoa(page))

	var resp discoverResponse
	if err := c.doRequest(ctx, "list_"+category, path, query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetGenres fetches the genre ID to name table for a media kind.
func (c *Client) GetGenres(ctx context.Context, mediaKind string) (map[int]string, error) {
	var resp genreListResponse
	if err := c.doRequest(ctx, "get_genres", "/genre/"+mediaKind+"/list", nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[int]string, len(resp.Genres))
	for _, g := range resp.Genres {
		out[g.ID] = g.Name
	}
	return out, nil
}

// GetProviders fetches the streaming provider list for a region.
func (c *Client) GetProviders(ctx context.Context, mediaKind, region string) ([]Provider, error) {
	query := url.Values{}
	if region != "" {
		query.Set("watch_region", region)
	}
	var resp providerListResponse
	if err := c.doRequest(ctx, "get_providers", "/watch/providers/"+mediaKind, query, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// TestConnection checks the API key with a configuration fetch.
func (c *Client) TestConnection(ctx context.Context) error {
	var resp map[string]interface{}
	return c.doRequest(ctx, "test_connection", "/configuration", nil, &resp)
}

func imageURL(path string) string {
	if path == "" {
		return ""
	}
	return imageBaseURL + path
}
