// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package romm

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

// Client talks to a RomM game library server with basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	source     string
}

// NewClient builds a RomM API client.
func NewClient(baseURL, username, password, source string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		source:     source,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PlatformRecord is one platform as RomM returns it.
type PlatformRecord struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	RomCount int    `json:"rom_count"`
}

// Rom is one game entry with its IGDB enrichment.
type Rom struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Summary      string        `json:"summary"`
	URLCover     string        `json:"url_cover"`
	PathCoverL   string        `json:"path_cover_large"`
	IGDBMetadata *IGDBMetadata `json:"igdb_metadata"`
}

// IGDBMetadata carries the IGDB fields RomM attaches to matched roms.
type IGDBMetadata struct {
	TotalRating      float64  `json:"total_rating"`
	FirstReleaseDate int64    `json:"first_release_date"` // unix seconds
	Genres           []string `json:"genres"`
}

type romsResponse struct {
	Items []Rom `json:"items"`
	Total int   `json:"total"`
}

func (c *Client) doRequest(ctx context.Context, operation, path string, query url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return retry.NewConfigError(c.source, operation, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.NewTransientError(c.source, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return retry.FromHTTPStatus(c.source, operation, resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return retry.NewTransientError(c.source, operation, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// GetPlatforms lists the server's game platforms.
func (c *Client) GetPlatforms(ctx context.Context) ([]PlatformRecord, error) {
	var platforms []PlatformRecord
	if err := c.doRequest(ctx, "get_platforms", "/api/platforms", nil, &platforms); err != nil {
		return nil, err
	}
	return platforms, nil
}

// GetRoms fetches one page of a platform's roms.
func (c *Client) GetRoms(ctx context.Context, platformID, offset, limit int) ([]Rom, int, error) {
	query := url.Values{}
	query.Set("platform_id", strconv.Itoa(platformID))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	var resp romsResponse
	if err := c.doRequest(ctx, "get_roms", "/api/roms", query, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Items, resp.Total, nil
}

// TestConnection verifies credentials against the platform listing.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.doRequest(ctx, "test_connection", "/api/platforms", nil, nil)
}

// coverURL resolves a rom's cover, preferring the IGDB-hosted URL and
// falling back to the server-local path.
func (c *Client) coverURL(r *Rom) string {
	if r.URLCover != "" {
		return r.URLCover
	}
	if r.PathCoverL != "" {
		return c.baseURL + "/assets/romm/resources/" + r.PathCoverL
	}
	return ""
}
