package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Client is the fetch orchestrator. It tries the browser fetcher first when
// dynamic rendering is enabled, falling back to plain HTTP, and bounds every
// attempt with the configured timeout. Retrying is the scheduler's concern,
// not the client's.
type Client struct {
	browser Fetcher
	plain   Fetcher
	timeout time.Duration
	dynamic bool
	logger  *zap.Logger
}

// NewClient creates a fetch client. When dynamic is false the browser
// fetcher is never used.
func NewClient(browser, plain Fetcher, timeout time.Duration, dynamic bool, logger *zap.Logger) *Client {
	return &Client{
		browser: browser,
		plain:   plain,
		timeout: timeout,
		dynamic: dynamic,
		logger:  logger,
	}
}

// Fetch retrieves a document for the request. Transport and timeout failures
// are returned as errors, never raised further; the caller decides whether
// to retry.
func (c *Client) Fetch(ctx context.Context, req Request) (Document, error) {
	if c.dynamic {
		doc, err := c.fetchWith(ctx, c.browser, req)
		if err == nil {
			return doc, nil
		}
		c.logger.Warn("browser fetch failed, falling back to plain http",
			zap.String("endpoint", req.Endpoint),
			zap.Error(err),
		)
	}

	doc, err := c.fetchWith(ctx, c.plain, req)
	if err != nil {
		return Document{}, fmt.Errorf("all fetch strategies failed: %w", err)
	}
	return doc, nil
}

func (c *Client) fetchWith(ctx context.Context, f Fetcher, req Request) (Document, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return f.Fetch(attemptCtx, req)
}
