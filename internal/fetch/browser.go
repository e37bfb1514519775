package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserFetcher renders endpoints in headless Chromium so that
// script-generated dashboard values are present in the snapshot. The browser
// process is launched at the start of each call and torn down before it
// returns, so no browser handle outlives a fetch attempt.
type BrowserFetcher struct {
	settle time.Duration
	logger *zap.Logger
}

// NewBrowserFetcher creates a headless browser fetcher. settle is the fixed
// delay applied after navigation when the request carries no readiness
// selector.
func NewBrowserFetcher(settle time.Duration, logger *zap.Logger) *BrowserFetcher {
	return &BrowserFetcher{settle: settle, logger: logger}
}

// Fetch navigates to the endpoint, waits for the readiness signal bounded by
// the caller's context deadline, and snapshots the rendered document.
func (f *BrowserFetcher) Fetch(ctx context.Context, req Request) (Document, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	actions := []chromedp.Action{chromedp.Navigate(req.Endpoint)}
	if req.WaitFor != "" {
		actions = append(actions, chromedp.WaitVisible(req.WaitFor, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(f.settle))
	}

	var html, title string
	actions = append(actions,
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return Document{}, fmt.Errorf("browser fetch of %s failed: %w", req.Endpoint, err)
	}

	f.logger.Debug("browser snapshot captured",
		zap.String("endpoint", req.Endpoint),
		zap.String("title", title),
		zap.Int("bytes", len(html)),
	)

	return Document{HTML: html, Title: title}, nil
}
