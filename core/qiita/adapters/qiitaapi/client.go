// Copyright 2025 bookii
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qiitaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/time/rate"

	"github.com/bookii/qiitaviewer/core/qiita/domain"
	"github.com/bookii/qiitaviewer/modules/ratelimit"
	"github.com/bookii/qiitaviewer/modules/telemetry"
)

// Client is the HTTP implementation of domain.Source against the Qiita v2
// API. Configuration is fixed at construction; the client holds no mutable
// state and is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	perPage int
	http    *http.Client
	pacer   *rate.Limiter
	log     *slog.Logger

	// optional cross-process request budget, for deployments where
	// several processes share one API token
	budget    ratelimit.RateLimiter
	budgetKey ratelimit.Key
}

var _ domain.Source = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (useful in tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger configures structured logging.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRequestBudget adds a shared sliding-window budget consulted before
// every request, keyed per API token.
func WithRequestBudget(limiter ratelimit.RateLimiter, key ratelimit.Key) ClientOption {
	return func(c *Client) {
		c.budget = limiter
		c.budgetKey = key
	}
}

// NewClient builds a Client from cfg. The default transport carries the
// telemetry instrumentation; override it with WithHTTPClient.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("qiitaapi: invalid base url %q: %w", cfg.BaseURL, err)
	}

	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 20
	}

	metrics, err := telemetry.NewHTTPClientMetrics("qiitaapi")
	if err != nil {
		return nil, fmt.Errorf("qiitaapi: init metrics: %w", err)
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps)
	}

	c := &Client{
		baseURL: base,
		token:   cfg.AccessToken,
		perPage: perPage,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: telemetry.NewTransport(nil, metrics),
		},
		pacer: rate.NewLimiter(rate.Limit(rps), burst),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchUser resolves a single user.
func (c *Client) FetchUser(ctx context.Context, userID string) (*domain.User, error) {
	endpoint, err := c.userURL(userID, "", 0)
	if err != nil {
		return nil, err
	}
	var user domain.User
	if err := c.getJSON(ctx, endpoint, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FetchItems returns one page of the user's posts.
func (c *Client) FetchItems(ctx context.Context, userID string, page int) ([]domain.Item, int, error) {
	return fetchPage[domain.Item](ctx, c, userID, "items", page)
}

// FetchFollowees returns one page of the accounts the user follows.
func (c *Client) FetchFollowees(ctx context.Context, userID string, page int) ([]domain.User, int, error) {
	return fetchPage[domain.User](ctx, c, userID, "followees", page)
}

// FetchFollowers returns one page of the accounts following the user.
func (c *Client) FetchFollowers(ctx context.Context, userID string, page int) ([]domain.User, int, error) {
	return fetchPage[domain.User](ctx, c, userID, "followers", page)
}

func fetchPage[T any](ctx context.Context, c *Client, userID, resource string, page int) ([]T, int, error) {
	if page < 1 {
		page = 1
	}
	endpoint, err := c.userURL(userID, resource, page)
	if err != nil {
		return nil, 0, err
	}
	var records []T
	if err := c.getJSON(ctx, endpoint, &records); err != nil {
		return nil, 0, err
	}
	return records, page + 1, nil
}

// userURL builds {base}/api/v2/users/{id}[/{resource}?page=&per_page=].
// The identifier is validated and percent-encoded here, on every path that
// reaches the network.
func (c *Client) userURL(userID, resource string, page int) (string, error) {
	if userID == "" || !utf8.ValidString(userID) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidUserID, userID)
	}

	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/api/v2/users/")
	b.WriteString(url.PathEscape(userID))
	if resource != "" {
		b.WriteString("/")
		b.WriteString(resource)
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))
		b.WriteString("?")
		b.WriteString(q.Encode())
	}
	return b.String(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("%w: pacing: %w", domain.ErrTransport, err)
	}
	if c.budget != nil {
		res, err := c.budget.Allow(ctx, c.budgetKey)
		if err != nil {
			return fmt.Errorf("%w: request budget: %w", domain.ErrTransport, err)
		}
		if !res.Allowed {
			return fmt.Errorf("%w: request budget exhausted, retry in %s",
				domain.ErrTransport, res.RetryAfter)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.Must(uuid.NewV4()).String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return domain.ErrUserNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		c.log.WarnContext(ctx, "unexpected status",
			slog.String("endpoint", endpoint), slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: unexpected status %d", domain.ErrTransport, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidResponse, err)
	}
	return nil
}
