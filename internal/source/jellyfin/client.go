// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package jellyfin

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

// ClientInterface is the seam between the adapter and the Jellyfin HTTP
// API. The adapter only ever talks through it, so tests (and alternative
// servers speaking the Emby dialect) plug in a fake.
type ClientInterface interface {
	GetLibraries(ctx context.Context) ([]Library, error)
	GetItems(ctx context.Context, parentID, itemType string, startIndex, limit int) ([]Item, int, error)
	TestConnection(ctx context.Context) error
	ImageURL(itemID, imageType string) string
}

// Library is one Jellyfin media folder.
type Library struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType"` // "movies", "tvshows", ...
}

// Item is one Jellyfin library entry with the fields we request.
type Item struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"` // "Movie", "Series"
	Overview          string            `json:"Overview"`
	ProductionYear    int               `json:"ProductionYear"`
	PremiereDate      string            `json:"PremiereDate"`
	DateCreated       string            `json:"DateCreated"`
	CommunityRating   float64           `json:"CommunityRating"`
	OfficialRating    string            `json:"OfficialRating"`
	Genres            []string          `json:"Genres"`
	MediaStreams      []MediaStream     `json:"MediaStreams"`
	UserData          *UserData         `json:"UserData"`
	ImageTags         map[string]string `json:"ImageTags"`
	BackdropImageTags []string          `json:"BackdropImageTags"`
}

// MediaStream is one stream of an item; we only care about video height.
type MediaStream struct {
	Type   string `json:"Type"`
	Height int    `json:"Height"`
}

// UserData carries the server-side per-user rating.
type UserData struct {
	Rating float64 `json:"Rating"`
}

type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

type librariesResponse struct {
	Items []Library `json:"Items"`
}

// Client is the HTTP implementation of ClientInterface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	source     string
}

// NewClient builds a Jellyfin API client authenticating with an API key.
func NewClient(baseURL, apiKey, source string, timeout time.Duration) *Client {
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

func (c *Client) doRequest(ctx context.Context, operation, path string, query url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return retry.NewConfigError(c.source, operation, err)
	}

	req.Header.Set("X-Emby-Token", c.apiKey)
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

// GetLibraries lists the server's media folders.
func (c *Client) GetLibraries(ctx context.Context) ([]Library, error) {
	var resp librariesResponse
	if err := c.doRequest(ctx, "get_libraries", "/Library/MediaFolders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetItems fetches one page of a library. itemType is the Jellyfin kind
// ("Movie" or "Series").
func (c *Client) GetItems(ctx context.Context, parentID, itemType string, startIndex, limit int) ([]Item, int, error) {
	query := url.Values{}
	query.Set("ParentId", parentID)
	query.Set("IncludeItemTypes", itemType)
	query.Set("Recursive", "true")
	query.Set("StartIndex", strconv.Itoa(startIndex))
	query.Set("Limit", strconv.Itoa(limit))
	query.Set("Fields", "Overview,Genres,MediaStreams,PremiereDate,DateCreated")

	var resp itemsResponse
	if err := c.doRequest(ctx, "get_items", "/Items", query, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Items, resp.TotalRecordCount, nil
}

// TestConnection checks the server responds to an authenticated ping.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.doRequest(ctx, "test_connection", "/System/Info/Public", nil, nil)
}

// ImageURL builds the URL for an item image ("Primary", "Backdrop").
func (c *Client) ImageURL(itemID, imageType string) string {
	return fmt.Sprintf("%s/Items/%s/Images/%s", c.baseURL, itemID, imageType)
}
