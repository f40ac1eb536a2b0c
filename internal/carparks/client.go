package carparks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultFetchTimeout bounds a single upstream request.
const DefaultFetchTimeout = 15 * time.Second

// maxFeedBytes caps the size of a feed document.
const maxFeedBytes = 8 << 20

// ClientConfig controls how the upstream feed is requested.
type ClientConfig struct {
	// URL is the feed endpoint.
	URL string
	// Authorization is sent verbatim as the Authorization header.
	Authorization string
	// Timeout bounds the whole request including the body read.
	Timeout time.Duration
}

// Client issues single, non-retrying requests to the upstream feed.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient returns a Client using a dedicated HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	return &Client{cfg: cfg, http: NewHTTPClient(cfg.Timeout)}
}

// NewClientWithHTTP is like NewClient but uses the given HTTP client.
func NewClientWithHTTP(cfg ClientConfig, hc *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	return &Client{cfg: cfg, http: hc}
}

// NewHTTPClient creates an HTTP client suited to polling the feed.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          2,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Fetch performs one GET against the feed and returns the raw XML body.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchTransport, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/xml, text/xml")
	if c.cfg.Authorization != "" {
		req.Header.Set("Authorization", c.cfg.Authorization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: FetchBadStatus, StatusCode: resp.StatusCode}
	}

	ct := resp.Header.Get("Content-Type")
	if !isXMLContentType(ct) {
		return nil, &FetchError{Kind: FetchWrongContentType, ContentType: ct}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, classifyTransportError(fmt.Errorf("read body: %w", err))
	}
	if len(body) > maxFeedBytes {
		return nil, &FetchError{Kind: FetchTransport, Err: fmt.Errorf("feed exceeds %d bytes", maxFeedBytes)}
	}
	return body, nil
}

// classifyTransportError maps a request failure onto a FetchError. A caller
// cancellation is not an upstream fault and is returned as a plain error.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("fetch cancelled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FetchTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &FetchError{Kind: FetchTimeout, Err: err}
	}
	return &FetchError{Kind: FetchTransport, Err: err}
}

func isXMLContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	switch mt {
	case "application/xml", "text/xml":
		return true
	}
	return strings.HasSuffix(mt, "+xml")
}
