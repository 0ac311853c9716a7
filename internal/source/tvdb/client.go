// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package tvdb

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/posterrama/posterrama/internal/retry"
)

// tokenLifetime is how long a TVDB JWT is reused before logging in
// again. TVDB tokens last a month; refreshing daily stays well clear of
// expiry.
const tokenLifetime = 24 * time.Hour

// Client talks to the TVDB v4 API. Authentication is a JWT obtained from
// POST /login with the API key; the token is cached and refreshed
// transparently, including once on an unexpected 401.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	source     string

	mu          sync.Mutex
	token       string
	tokenIssued time.Time
}

// NewClient builds a TVDB client. baseURL is overridable for tests;
// empty means the public v4 API.
func NewClient(baseURL, apiKey, source string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api4.thetvdb.com/v4"
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

// Series is one TVDB series record from the paged listing.
type Series struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Overview string   `json:"overview"`
	Year     string   `json:"year"`
	Image    string   `json:"image"`
	Score    float64  `json:"score"`
	Genres   []string `json:"genres"`
}

type loginResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

type seriesResponse struct {
	Data  []Series `json:"data"`
	Links struct {
		TotalItems int `json:"total_items"`
	} `json:"links"`
}

// login obtains a fresh JWT. Callers hold c.mu.
func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"apikey": c.apiKey})
	if err != nil {
		return retry.NewConfigError(c.source, "login", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return retry.NewConfigError(c.source, "login", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.NewTransientError(c.source, "login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return retry.FromHTTPStatus(c.source, "login", resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return retry.NewTransientError(c.source, "login", fmt.Errorf("decode login response: %w", err))
	}
	if lr.Data.Token == "" {
		return retry.NewConfigError(c.source, "login", fmt.Errorf("login returned empty token"))
	}

	c.token = lr.Data.Token
	c.tokenIssued = time.Now()
	return nil
}

// bearerToken returns a valid JWT, logging in when none is cached or the
// cached one has aged out.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Since(c.tokenIssued) > tokenLifetime {
		if err := c.login(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// invalidateToken drops the cached JWT so the next call logs in again.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) doRequest(ctx context.Context, operation, path string, query url.Values, result interface{}) error {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}

	status, err := c.doAuthedRequest(ctx, operation, path, query, token, result)
	if err != nil && status == http.StatusUnauthorized {
		// Token revoked early; log in once more before giving up.
		c.invalidateToken()
		token, err = c.bearerToken(ctx)
		if err != nil {
			return err
		}
		_, err = c.doAuthedRequest(ctx, operation, path, query, token, result)
	}
	return err
}

func (c *Client) doAuthedRequest(ctx context.Context, operation, path string, query url.Values, token string, result interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, retry.NewConfigError(c.source, operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, retry.NewTransientError(c.source, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, retry.FromHTTPStatus(c.source, operation, resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, retry.NewTransientError(c.source, operation, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

// GetSeriesPage fetches one page of the series listing (zero-based page).
func (c *Client) GetSeriesPage(ctx context.Context, page int) ([]Series, int, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))

	var resp seriesResponse
	if err := c.doRequest(ctx, "get_series", "/series", query, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Data, resp.Links.TotalItems, nil
}

// TestConnection verifies the API key can log in.
func (c *Client) TestConnection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}
