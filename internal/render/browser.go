// Package render adapts a shared headless Chrome instance for pages that
// need JavaScript execution before their content or links exist.
package render

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Renderer is the boundary the crawl loop escalates through. Failures are
// soft: callers fall back to statically fetched HTML.
type Renderer interface {
	Start() error
	RenderContent(ctx context.Context, pageURL string, timeout time.Duration) (string, error)
	ExtractLinks(ctx context.Context, pageURL string, timeout time.Duration) ([]string, error)
	Stop() error
}

// Browser is a reference-counted chromedp instance shared by all workers.
// Start and Stop are idempotent per caller: the underlying process launches
// on the first Start and is torn down when the last holder calls Stop.
type Browser struct {
	userAgent string
	logger    *zap.Logger

	mu            sync.Mutex
	refs          int
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// tabMu serializes tab creation on the shared Chrome process.
	tabMu sync.Mutex
}

// NewBrowser creates an unstarted browser handle.
func NewBrowser(userAgent string, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{userAgent: userAgent, logger: logger}
}

// Start launches headless Chrome on first use and bumps the reference count.
func (b *Browser) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refs > 0 {
		b.refs++
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
	)
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Launch eagerly so a broken Chrome install fails here, not on the
	// first escalated page.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("launch headless browser: %w", err)
	}

	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.refs = 1
	b.logger.Info("headless browser started")
	return nil
}

// Stop drops one reference and tears the browser down when none remain.
func (b *Browser) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refs == 0 {
		return nil
	}
	b.refs--
	if b.refs > 0 {
		return nil
	}

	b.browserCancel()
	b.allocCancel()
	b.browserCtx = nil
	b.logger.Info("headless browser stopped")
	return nil
}

// RenderContent navigates a fresh tab to the URL and returns the rendered
// outer HTML.
func (b *Browser) RenderContent(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	var html string
	err := b.runInTab(ctx, pageURL, timeout, []chromedp.Action{
		// Nudge lazy-loaded content into the DOM before capturing.
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight * 0.3)`, nil),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	})
	if err != nil {
		return "", err
	}
	return html, nil
}

// ExtractLinks renders the page and collects every anchor href, resolved
// and fragment-stripped.
func (b *Browser) ExtractLinks(ctx context.Context, pageURL string, timeout time.Duration) ([]string, error) {
	var hrefs []string
	err := b.runInTab(ctx, pageURL, timeout, []chromedp.Action{
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight * 0.3)`, nil),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(`Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`, &hrefs),
	})
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	seen := make(map[string]struct{}, len(hrefs))
	var links []string
	for _, href := range hrefs {
		u, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		u.Fragment = ""
		key := u.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		links = append(links, key)
	}
	return links, nil
}

// runInTab opens a tab off the shared browser context, navigates, runs the
// provided actions, and closes the tab. Tab creation is serialized so one
// Chrome process serves all workers.
func (b *Browser) runInTab(ctx context.Context, pageURL string, timeout time.Duration, actions []chromedp.Action) error {
	b.mu.Lock()
	browserCtx := b.browserCtx
	b.mu.Unlock()
	if browserCtx == nil {
		return fmt.Errorf("browser not started")
	}

	b.tabMu.Lock()
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	b.tabMu.Unlock()
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, timeout)
	defer timeoutCancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		// Abort the tab if the crawl context ends first.
		select {
		case <-ctx.Done():
			tabCancel()
		case <-stop:
		}
	}()

	run := []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "en-US,en;q=0.8",
		}),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	run = append(run, actions...)

	if err := chromedp.Run(tabCtx, run...); err != nil {
		b.logger.Warn("render failed", zap.String("url", pageURL), zap.Error(err))
		return fmt.Errorf("render %s: %w", pageURL, err)
	}
	return nil
}
