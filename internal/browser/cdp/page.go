// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/internal/browser"
)

const worldName = "scenarist"

// Page is one chromedp target.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc // nil for the target owned by its BrowserContext
	logger *zap.Logger
	mainID cdp.FrameID
	closed atomic.Bool

	mu      sync.Mutex
	mainURL string
	worlds  map[cdp.FrameID]cdpruntime.ExecutionContextID
}

var _ browser.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) *Page {
	p := &Page{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		mainURL: "about:blank",
		worlds:  make(map[cdp.FrameID]cdpruntime.ExecutionContextID),
	}
	// Chrome gives the main frame the id of its target.
	if c := chromedp.FromContext(ctx); c != nil && c.Target != nil {
		p.mainID = cdp.FrameID(c.Target.TargetID)
	}
	return p
}

// run executes actions on the page target, bounded by ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed.Load() {
		return browser.ErrClosed
	}
	runCtx, cancel := browser.CombineContext(p.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Goto navigates the main frame. For commit and domcontentloaded the call
// returns at that lifecycle event while the load keeps going in the browser.
func (p *Page) Goto(ctx context.Context, url string, waitUntil browser.WaitUntil) error {
	if p.closed.Load() {
		return browser.ErrClosed
	}
	runCtx, cancel := browser.CombineContext(p.ctx, ctx)
	defer cancel()

	reached := make(chan error, 1)
	var once sync.Once
	signal := func(err error) { once.Do(func() { reached <- err }) }

	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			if e.Frame.UnreachableURL != "" {
				signal(fmt.Errorf("page unreachable: %s", e.Frame.UnreachableURL))
				return
			}
			if waitUntil == browser.WaitCommit {
				signal(nil)
			}
		case *page.EventDomContentEventFired:
			if waitUntil == browser.WaitDOMContentLoaded {
				signal(nil)
			}
		}
	})

	navErr := make(chan error, 1)
	go func() {
		navErr <- chromedp.Run(runCtx, chromedp.Navigate(url))
	}()

	var err error
	select {
	case err = <-reached:
	case err = <-navErr:
	case <-runCtx.Done():
		err = ctx.Err()
		if err == nil {
			err = browser.ErrClosed
		}
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.mainURL = url
	// Execution contexts do not survive a navigation.
	p.worlds = make(map[cdp.FrameID]cdpruntime.ExecutionContextID)
	p.mu.Unlock()
	return nil
}

func (p *Page) MainFrame() browser.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &Frame{page: p, id: p.mainID, url: p.mainURL, main: true}
}

func (p *Page) frameTree(ctx context.Context) (*page.FrameTree, error) {
	var tree *page.FrameTree
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	return tree, err
}

func (p *Page) Frames(ctx context.Context) ([]browser.Frame, error) {
	tree, err := p.frameTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading frame tree: %w", err)
	}
	var out []browser.Frame
	var walk func(t *page.FrameTree)
	walk = func(t *page.FrameTree) {
		if t == nil || t.Frame == nil {
			return
		}
		f := t.Frame
		out = append(out, &Frame{
			page:     p,
			id:       f.ID,
			parentID: string(f.ParentID),
			name:     f.Name,
			url:      f.URL + f.URLFragment,
			main:     f.ParentID == "",
		})
		for _, child := range t.ChildFrames {
			walk(child)
		}
	}
	walk(tree)
	return out, nil
}

// hasFrame reports whether id is still part of the frame tree.
func (p *Page) hasFrame(ctx context.Context, id cdp.FrameID) bool {
	tree, err := p.frameTree(ctx)
	if err != nil {
		return false
	}
	var find func(t *page.FrameTree) bool
	find = func(t *page.FrameTree) bool {
		if t == nil || t.Frame == nil {
			return false
		}
		if t.Frame.ID == id {
			return true
		}
		for _, child := range t.ChildFrames {
			if find(child) {
				return true
			}
		}
		return false
	}
	return find(tree)
}

// world returns the isolated execution context used for frame id, creating
// it when needed.
func (p *Page) world(ctx context.Context, id cdp.FrameID, fresh bool) (cdpruntime.ExecutionContextID, error) {
	p.mu.Lock()
	if fresh {
		delete(p.worlds, id)
	}
	execID, ok := p.worlds[id]
	p.mu.Unlock()
	if ok {
		return execID, nil
	}

	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		execID, err = page.CreateIsolatedWorld(id).WithWorldName(worldName).Do(ctx)
		return err
	}))
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.worlds[id] = execID
	p.mu.Unlock()
	return execID, nil
}

func (p *Page) Wheel(ctx context.Context, dx, dy float64) error {
	var center struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	return p.run(ctx,
		chromedp.Evaluate(`({x: window.innerWidth / 2, y: window.innerHeight / 2})`, &center),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseWheel, center.X, center.Y).
				WithDeltaX(dx).
				WithDeltaY(dy).
				Do(ctx)
		}),
	)
}

// Close closes the target. The first page of a context is closed together
// with the context.
func (p *Page) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return browser.ErrClosed
	}
	if p.cancel == nil {
		return nil
	}
	err := bounded(ctx, func() error { return chromedp.Cancel(p.ctx) })
	p.cancel()
	return err
}
