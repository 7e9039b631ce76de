// internal/browser/automation.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

// The interfaces in this file are the whole automation capability the
// scenario engine consumes. The chromedp implementation lives in
// internal/browser/cdp and a scriptable in-memory one in internal/browser/fake.

var (
	// ErrFrameDetached is returned when an operation targets a frame that is no
	// longer part of its page.
	ErrFrameDetached = errors.New("frame detached")
	// ErrElementDetached is returned when an element handle no longer refers to
	// a node in a live document.
	ErrElementDetached = errors.New("element detached")
	// ErrClosed is returned by operations on a closed resource.
	ErrClosed = errors.New("resource closed")
	// ErrFrameNotFound is returned when no frame matches a scope.
	ErrFrameNotFound = errors.New("no frame matches scope")
)

// WaitUntil is the navigation milestone Goto waits for.
type WaitUntil string

const (
	WaitCommit           WaitUntil = "commit"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitLoad             WaitUntil = "load"
)

// ParseWaitUntil accepts the config spelling of a navigation milestone. An
// empty value selects commit, the configured default.
func ParseWaitUntil(s string) (WaitUntil, error) {
	switch w := WaitUntil(strings.ToLower(strings.TrimSpace(s))); w {
	case WaitCommit, WaitDOMContentLoaded, WaitLoad:
		return w, nil
	case "":
		return WaitCommit, nil
	}
	return "", fmt.Errorf("unsupported wait_until value %q", s)
}

// LoadState is the document readiness a frame can be waited on for.
type LoadState string

const (
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateLoad             LoadState = "load"
)

// LaunchOptions is forwarded to the automation implementation. The engine
// does not interpret the values.
type LaunchOptions struct {
	Headless     bool
	Args         []string
	WindowWidth  int
	WindowHeight int
	NoSandbox    bool
	ExecPath     string
	UserDataDir  string
}

// Automation starts drivers. It is the entry point a ResourceGuard is built on.
type Automation interface {
	StartDriver(ctx context.Context) (Driver, error)
}

// Driver launches browser processes.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
	Close(ctx context.Context) error
}

// Browser is a running browser process.
type Browser interface {
	// NewContext creates an isolated browsing context (separate cookies, storage, history).
	NewContext(ctx context.Context) (BrowserContext, error)
	Close(ctx context.Context) error
}

// BrowserContext is an isolated browsing context inside a Browser.
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	// Pages returns the open pages in creation order.
	Pages() []Page
	Close(ctx context.Context) error
}

// Page is a top level browsing target.
type Page interface {
	Goto(ctx context.Context, url string, waitUntil WaitUntil) error
	// MainFrame returns the root frame of the page.
	MainFrame() Frame
	// Frames returns the current frame tree flattened in document order, main frame first.
	Frames(ctx context.Context) ([]Frame, error)
	// Wheel dispatches a mouse wheel event at the viewport center.
	Wheel(ctx context.Context, dx, dy float64) error
	Close(ctx context.Context) error
}

// Frame is a navigable document node within a page.
type Frame interface {
	ID() string
	ParentID() string
	Name() string
	URL() string
	IsMain() bool
	// WaitForLoadState blocks until the frame document reaches state or ctx ends.
	WaitForLoadState(ctx context.Context, state LoadState) error
	// Resolve returns the live elements matching loc in this frame, in document
	// order. It returns ErrFrameDetached for a frame that left the page.
	Resolve(ctx context.Context, loc schemas.Locator) ([]Element, error)
}

// Element is a handle to a live DOM node.
type Element interface {
	// Click waits until the element is visible and enabled, then clicks its center.
	Click(ctx context.Context) error
	// Fill waits until the element is editable, then replaces its value with text.
	Fill(ctx context.Context, text string) error
	IsVisible(ctx context.Context) (bool, error)
}

// FindFrame returns the frame of page selected by scope: the main frame for an
// empty scope, otherwise the first frame whose name equals scope or whose URL
// contains it.
func FindFrame(ctx context.Context, page Page, scope string) (Frame, error) {
	if scope == "" {
		return page.MainFrame(), nil
	}
	frames, err := page.Frames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	for _, f := range frames {
		if f.Name() == scope {
			return f, nil
		}
	}
	for _, f := range frames {
		if strings.Contains(f.URL(), scope) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrFrameNotFound, scope)
}
