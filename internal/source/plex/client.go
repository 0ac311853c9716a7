// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package plex

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

// Client talks to one Plex Media Server over its HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	source     string
}

// NewClient builds a Plex API client. source labels errors and metrics.
func NewClient(baseURL, token, source string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		source:     source,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// mediaContainer is the envelope Plex wraps every response in.
type mediaContainer struct {
	MediaContainer struct {
		Size      int         `json:"size"`
		TotalSize int         `json:"totalSize"`
		Directory []directory `json:"Directory,omitempty"`
		Metadata  []metadata  `json:"Metadata,omitempty"`
	} `json:"MediaContainer"`
}

// directory is one library section.
type directory struct {
	Key   string `json:"key"`
	Type  string `json:"type"` // "movie", "show", "artist", "photo"
	Title string `json:"title"`
}

// metadata is one library item as Plex returns it.
type metadata struct {
	RatingKey             string  `json:"ratingKey"`
	Type                  string  `json:"type"`
	Title                 string  `json:"title"`
	Summary               string  `json:"summary"`
	Year                  int     `json:"year"`
	OriginallyAvailableAt string  `json:"originallyAvailableAt"`
	Rating                float64 `json:"rating"`
	AudienceRating        float64 `json:"audienceRating"`
	UserRating            float64 `json:"userRating"`
	ContentRating         string  `json:"contentRating"`
	Thumb                 string  `json:"thumb"`
	Art                   string  `json:"art"`
	Genre                 []tag   `json:"Genre,omitempty"`
	Media                 []struct {
		VideoResolution string `json:"videoResolution"`
		Height          int    `json:"height"`
	} `json:"Media,omitempty"`
}

type tag struct {
	Tag string `json:"tag"`
}

// doRequest executes one authenticated GET and decodes the container.
// Failure statuses become classified source errors so the retry executor
// can tell an expired token from a flapping server.
func (c *Client) doRequest(ctx context.Context, operation, path string, query url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return retry.NewConfigError(c.source, operation, err)
	}

	req.Header.Set("X-Plex-Token", c.token)
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

// GetLibraries lists the server's library sections.
func (c *Client) GetLibraries(ctx context.Context) ([]directory, error) {
	var container mediaContainer
	if err := c.doRequest(ctx, "get_libraries", "/library/sections", nil, &container); err != nil {
		return nil, err
	}
	return container.MediaContainer.Directory, nil
}

// GetLibraryItems fetches one page of a section via Plex container
// paging. Returns the page plus the section's total item count.
func (c *Client) GetLibraryItems(ctx context.Context, sectionKey string, offset, size int) ([]metadata, int, error) {
	query := url.Values{}
	query.Set("X-Plex-Container-Start", strconv.Itoa(offset))
	query.Set("X-Plex-Container-Size", strconv.Itoa(size))

	var container mediaContainer
	path := fmt.Sprintf("/library/sections/%s/all", sectionKey)
	if err := c.doRequest(ctx, "get_library_items", path, query, &container); err != nil {
		return nil, 0, err
	}

	total := container.MediaContainer.TotalSize
	if total == 0 {
		total = container.MediaContainer.Size
	}
	return container.MediaContainer.Metadata, total, nil
}

// TestConnection verifies the server answers with the given token.
func (c *Client) TestConnection(ctx context.Context) error {
	var container mediaContainer
	return c.doRequest(ctx, "test_connection", "/identity", nil, &container)
}

// imageURL resolves a Plex image path into a tokenized absolute URL.
func (c *Client) imageURL(path string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf("%s%s?X-Plex-Token=%s", c.baseURL, path, c.token)
}
