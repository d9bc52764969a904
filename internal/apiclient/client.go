// Package apiclient issues GET requests against the retailer JSON API and
// decodes the responses into generic trees.
package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/jsonpath"
)

// Client wraps a catalog.Fetcher with JSON decoding and status checks.
type Client struct {
	fetcher catalog.Fetcher
	headers http.Header
	logger  *zap.Logger
}

// New builds a Client. headers are sent with every call.
func New(fetcher catalog.Fetcher, headers http.Header, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: fetcher, headers: headers, logger: logger.Named("apiclient")}
}

// GetJSON fetches url and decodes the body. Non-2xx responses and malformed
// bodies are returned as errors.
func (c *Client) GetJSON(ctx context.Context, url string) (any, error) {
	resp, err := c.fetcher.Fetch(ctx, catalog.FetchRequest{URL: url, Headers: c.headers})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}
	v, err := jsonpath.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	return v, nil
}

// Prewarm requests each URL once to establish cookies or sessions.
// Failures are logged and ignored.
func (c *Client) Prewarm(ctx context.Context, urls []string) {
	for _, u := range urls {
		if _, err := c.fetcher.Fetch(ctx, catalog.FetchRequest{URL: u, Headers: c.headers}); err != nil {
			c.logger.Debug("prewarm failed", zap.String("url", u), zap.Error(err))
		}
	}
}
