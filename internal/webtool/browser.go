package webtool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"scout/internal/logging"
)

// BrowserFetcher renders pages in headless Chrome for sites that require
// JavaScript. The browser launches lazily on first use and is shared across
// calls until Shutdown.
type BrowserFetcher struct {
	mu      sync.Mutex
	browser *rod.Browser
	timeout time.Duration
}

// NewBrowserFetcher creates a fetcher with the given per-page timeout.
func NewBrowserFetcher(timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserFetcher{timeout: timeout}
}

// ensureStarted launches Chrome and connects on first call. The connection
// is bound to the fetcher lifetime, not the caller's context.
func (b *BrowserFetcher) ensureStarted() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return nil
	}

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	b.browser = browser
	logging.Fetch("Headless browser started")
	return nil
}

// FetchHTML navigates to pageURL and returns the rendered HTML after the
// load event fires.
func (b *BrowserFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	if err := b.ensureStarted(); err != nil {
		return "", err
	}

	logging.FetchDebug("Browser fetch: url=%s", pageURL)

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(b.timeout)

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for page load: %w", err)
	}

	rendered, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}

	logging.FetchDebug("Browser fetch completed: %s (%d bytes)", pageURL, len(rendered))
	return rendered, nil
}

// Shutdown closes the browser. The fetcher relaunches on next use.
func (b *BrowserFetcher) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}

	err := b.browser.Close()
	b.browser = nil
	return err
}
