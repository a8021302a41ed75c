package iplookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultURL is the IP-lookup API queried when no URL is configured.
const DefaultURL = "https://api.ipify.org"

// Fetcher reports the public IP address of this host as seen by an external
// service.
type Fetcher interface {
	Lookup(ctx context.Context) (string, error)
}

// StatusError is returned when the lookup service answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lookup %s: unexpected status %d", e.URL, e.StatusCode)
}

// ErrReadBody wraps failures while reading the lookup response body.
var ErrReadBody = errors.New("read lookup response")

// Client queries a plain-text IP-lookup API.
type Client struct {
	url  string
	http *http.Client
}

// New creates a Client for url. A zero timeout leaves the request bounded only
// by the caller's context.
func New(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// URL returns the lookup endpoint.
func (c *Client) URL() string {
	return c.url
}

// Lookup issues a single GET to the lookup service and returns the response
// body as-is.
func (c *Client) Lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return "", &StatusError{URL: c.url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrReadBody, err)
	}
	return string(body), nil
}

// FailureReason classifies a Lookup error for metrics labels.
func FailureReason(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, ErrReadBody):
		return "read"
	default:
		return "transport"
	}
}
