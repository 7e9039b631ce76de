// internal/browser/cdp/context.go
package cdp

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/internal/browser"
)

// BrowserContext is an incognito-like browser context. Its creation also
// creates one target, handed out by the first NewPage call.
type BrowserContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	initial *Page
	pages   []browser.Page
	closed  bool
}

func (c *BrowserContext) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, browser.ErrClosed
	}
	if p := c.initial; p != nil {
		c.initial = nil
		c.pages = append(c.pages, p)
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	pctx, cancel := chromedp.NewContext(c.ctx)
	if err := startTarget(ctx, pctx); err != nil {
		cancel()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	p := newPage(pctx, cancel, c.logger)

	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p, nil
}

func (c *BrowserContext) Pages() []browser.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]browser.Page(nil), c.pages...)
}

// Close closes the context's targets and disposes of the browser context.
func (c *BrowserContext) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return browser.ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	err := bounded(ctx, func() error { return chromedp.Cancel(c.ctx) })
	c.cancel()
	return err
}
