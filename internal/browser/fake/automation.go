// internal/browser/fake/automation.go
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
)

// Route describes what a navigation to one URL produces.
type Route struct {
	// Build populates the page's main frame after the navigation commits.
	Build func(p *Page)
	// Delay is how long the navigation takes.
	Delay time.Duration
	// Err fails the navigation.
	Err error
}

// Automation is an in-memory implementation of browser.Automation. Every
// lifecycle call is recorded so tests can check acquisition and release order.
type Automation struct {
	mu          sync.Mutex
	routes      map[string]Route
	acquireErrs map[schemas.SessionStage]error
	releaseErrs map[schemas.SessionStage]error
	releaseHang map[schemas.SessionStage]bool
	calls       []string
	pages       []*Page
	launches    []browser.LaunchOptions
	open        int
}

var _ browser.Automation = (*Automation)(nil)

func New() *Automation {
	return &Automation{
		routes:      make(map[string]Route),
		acquireErrs: make(map[schemas.SessionStage]error),
		releaseErrs: make(map[schemas.SessionStage]error),
		releaseHang: make(map[schemas.SessionStage]bool),
	}
}

// Route registers the document served for url.
func (a *Automation) Route(url string, r Route) *Automation {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[url] = r
	return a
}

// FailAcquire makes acquisition fail at stage.
func (a *Automation) FailAcquire(stage schemas.SessionStage, err error) *Automation {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acquireErrs[stage] = err
	return a
}

// FailRelease makes closing the resource of stage fail.
func (a *Automation) FailRelease(stage schemas.SessionStage, err error) *Automation {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseErrs[stage] = err
	return a
}

// HangRelease makes closing the resource of stage block until its context ends.
func (a *Automation) HangRelease(stage schemas.SessionStage) *Automation {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseHang[stage] = true
	return a
}

// Calls returns the recorded lifecycle calls in order.
func (a *Automation) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// Pages returns every page ever opened.
func (a *Automation) Pages() []*Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Page(nil), a.pages...)
}

// Launches returns the options of every browser launch.
func (a *Automation) Launches() []browser.LaunchOptions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]browser.LaunchOptions(nil), a.launches...)
}

// Open is the number of acquired resources not yet released.
func (a *Automation) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

func (a *Automation) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *Automation) acquire(ctx context.Context, stage schemas.SessionStage, call string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	if err := a.acquireErrs[stage]; err != nil {
		return err
	}
	a.open++
	return nil
}

func (a *Automation) release(ctx context.Context, stage schemas.SessionStage, call string) error {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	hang := a.releaseHang[stage]
	err := a.releaseErrs[stage]
	a.open--
	a.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (a *Automation) route(url string) (Route, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.routes[url]
	return r, ok
}

func (a *Automation) StartDriver(ctx context.Context) (browser.Driver, error) {
	if err := a.acquire(ctx, schemas.StageDriver, "driver.start"); err != nil {
		return nil, err
	}
	return &Driver{a: a}, nil
}

type Driver struct {
	a      *Automation
	closed bool
}

func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	d.a.mu.Lock()
	d.a.launches = append(d.a.launches, opts)
	d.a.mu.Unlock()
	if err := d.a.acquire(ctx, schemas.StageBrowser, "browser.launch"); err != nil {
		return nil, err
	}
	return &Browser{a: d.a}, nil
}

func (d *Driver) Close(ctx context.Context) error {
	if d.closed {
		return browser.ErrClosed
	}
	d.closed = true
	return d.a.release(ctx, schemas.StageDriver, "driver.close")
}

type Browser struct {
	a      *Automation
	closed bool
}

func (b *Browser) NewContext(ctx context.Context) (browser.BrowserContext, error) {
	if err := b.a.acquire(ctx, schemas.StageContext, "context.new"); err != nil {
		return nil, err
	}
	return &BrowserContext{a: b.a}, nil
}

func (b *Browser) Close(ctx context.Context) error {
	if b.closed {
		return browser.ErrClosed
	}
	b.closed = true
	return b.a.release(ctx, schemas.StageBrowser, "browser.close")
}

type BrowserContext struct {
	a      *Automation
	mu     sync.Mutex
	pages  []browser.Page
	closed bool
}

func (c *BrowserContext) NewPage(ctx context.Context) (browser.Page, error) {
	if err := c.a.acquire(ctx, schemas.StagePage, "page.new"); err != nil {
		return nil, err
	}
	c.a.mu.Lock()
	p := newPage(c.a, fmt.Sprintf("page-%d", len(c.a.pages)+1))
	c.a.pages = append(c.a.pages, p)
	c.a.mu.Unlock()

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

func (c *BrowserContext) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return browser.ErrClosed
	}
	c.closed = true
	c.mu.Unlock()
	return c.a.release(ctx, schemas.StageContext, "context.close")
}
