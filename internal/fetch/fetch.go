package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes one fetch of a device's monitoring endpoint.
type Request struct {
	Endpoint string
	// WaitFor is a CSS selector whose appearance signals that the page has
	// finished rendering. Empty means a fixed settle delay is used instead.
	WaitFor string
}

// Document is a snapshot of a fetched endpoint.
type Document struct {
	HTML  string
	Title string
}

// Fetcher retrieves a document from an endpoint. Implementations hold their
// underlying transport resource only for the duration of a single call.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Document, error)
}

// HTTPFetcher retrieves endpoints over plain HTTP. It cannot render
// script-generated content; the browser fetcher handles that.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a plain HTTP fetcher.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the endpoint body. Cache-busting headers force upstream
// proxies to hand back fresh data on every poll.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Endpoint, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to build request for %s: %w", req.Endpoint, err)
	}
	httpReq.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	httpReq.Header.Set("Pragma", "no-cache")
	httpReq.Header.Set("Expires", "0")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return Document{}, fmt.Errorf("request to %s failed: %w", req.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Document{}, fmt.Errorf("request to %s returned status %d", req.Endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read response from %s: %w", req.Endpoint, err)
	}

	return Document{HTML: string(body)}, nil
}
