// internal/browser/fake/page.go
package fake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
)

// ErrUnroutable is returned by Goto for a URL with no registered Route.
var ErrUnroutable = errors.New("net::ERR_NAME_NOT_RESOLVED")

const pollInterval = 5 * time.Millisecond

// Wheel is one recorded wheel event.
type Wheel struct{ DX, DY float64 }

// Page is an in-memory page with a frame tree and a flat element list per
// frame. A single mutex guards the whole page.
type Page struct {
	a      *Automation
	id     string
	mu     sync.Mutex
	main   *Frame
	seq    int
	wheels []Wheel
	visits []string
	closed bool

	// WheelErr fails every Wheel call.
	WheelErr error
}

var _ browser.Page = (*Page)(nil)

func newPage(a *Automation, id string) *Page {
	p := &Page{a: a, id: id}
	p.main = p.newFrame(nil, "", "about:blank")
	return p
}

func (p *Page) newFrame(parent *Frame, name, url string) *Frame {
	p.seq++
	f := &Frame{page: p, id: fmt.Sprintf("%s-frame-%d", p.id, p.seq), name: name, url: url, parent: parent}
	return f
}

// Main returns the current main frame for building documents.
func (p *Page) Main() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.main
}

// Wheels returns the recorded wheel events.
func (p *Page) Wheels() []Wheel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Wheel(nil), p.wheels...)
}

// Visits returns the URLs navigated to, in order.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

func (p *Page) Goto(ctx context.Context, url string, _ browser.WaitUntil) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return browser.ErrClosed
	}

	route, ok := p.a.route(url)
	if !ok {
		return fmt.Errorf("navigating to %s: %w", url, ErrUnroutable)
	}
	if route.Delay > 0 {
		select {
		case <-time.After(route.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if route.Err != nil {
		return route.Err
	}

	p.mu.Lock()
	p.main.detachLocked()
	p.main = p.newFrame(nil, "", url)
	p.visits = append(p.visits, url)
	p.mu.Unlock()

	if route.Build != nil {
		route.Build(p)
	}
	return nil
}

func (p *Page) MainFrame() browser.Frame { return p.Main() }

func (p *Page) Frames(ctx context.Context) ([]browser.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, browser.ErrClosed
	}
	var out []browser.Frame
	var walk func(f *Frame)
	walk = func(f *Frame) {
		out = append(out, f)
		for _, c := range f.children {
			walk(c)
		}
	}
	walk(p.main)
	return out, nil
}

func (p *Page) Wheel(ctx context.Context, dx, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.ErrClosed
	}
	if p.WheelErr != nil {
		return p.WheelErr
	}
	p.wheels = append(p.wheels, Wheel{DX: dx, DY: dy})
	return nil
}

func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return browser.ErrClosed
	}
	p.closed = true
	p.mu.Unlock()
	return p.a.release(ctx, schemas.StagePage, "page.close")
}

// Frame is an in-memory frame. Readiness is controlled with ReadyAfter, Hang
// and DetachOnWait.
type Frame struct {
	page     *Page
	id       string
	name     string
	url      string
	parent   *Frame
	children []*Frame
	elements []*Element

	readyAt      time.Time
	hang         bool
	detachOnWait bool
	detached     bool
	onWait       func()
	resolveErr   error
}

var _ browser.Frame = (*Frame)(nil)

func (f *Frame) ID() string { return f.id }

func (f *Frame) ParentID() string {
	if f.parent == nil {
		return ""
	}
	return f.parent.id
}

func (f *Frame) Name() string { return f.name }
func (f *Frame) URL() string  { return f.url }
func (f *Frame) IsMain() bool { return f.parent == nil }
func (f *Frame) Page() *Page  { return f.page }

// Detached reports whether the frame has left its page.
func (f *Frame) Detached() bool {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	return f.detached
}

// AddFrame attaches a child frame.
func (f *Frame) AddFrame(name, url string) *Frame {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	child := f.page.newFrame(f, name, url)
	f.children = append(f.children, child)
	return child
}

// Add appends elements to the frame's document.
func (f *Frame) Add(elems ...*Element) *Frame {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	for _, el := range elems {
		el.frame = f
		f.elements = append(f.elements, el)
	}
	return f
}

// Remove takes el out of the document; its handles become detached.
func (f *Frame) Remove(el *Element) {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	for i, e := range f.elements {
		if e == el {
			f.elements = append(f.elements[:i], f.elements[i+1:]...)
			el.removed = true
			return
		}
	}
}

// ReadyAfter delays DOMContentLoaded by d from now.
func (f *Frame) ReadyAfter(d time.Duration) *Frame {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	f.readyAt = time.Now().Add(d)
	return f
}

// Hang makes the frame never reach a load state.
func (f *Frame) Hang() *Frame {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	f.hang = true
	return f
}

// DetachOnWait makes the frame leave the page as soon as it is waited on.
func (f *Frame) DetachOnWait() *Frame {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	f.detachOnWait = true
	return f
}

// OnWait runs fn once, the first time the frame is waited on.
func (f *Frame) OnWait(fn func()) *Frame {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	f.onWait = fn
	return f
}

// FailResolve makes every Resolve in this frame fail with err.
func (f *Frame) FailResolve(err error) *Frame {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	f.resolveErr = err
	return f
}

// Detach removes the frame and its subtree from the page.
func (f *Frame) Detach() {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	if f.parent != nil {
		siblings := f.parent.children
		for i, c := range siblings {
			if c == f {
				f.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	f.detachLocked()
}

func (f *Frame) detachLocked() {
	f.detached = true
	for _, el := range f.elements {
		el.removed = true
	}
	for _, c := range f.children {
		c.detachLocked()
	}
}

func (f *Frame) WaitForLoadState(ctx context.Context, _ browser.LoadState) error {
	f.page.mu.Lock()
	hook := f.onWait
	f.onWait = nil
	f.page.mu.Unlock()
	if hook != nil {
		hook()
	}

	for {
		f.page.mu.Lock()
		if f.detachOnWait && !f.detached {
			f.page.mu.Unlock()
			f.Detach()
			f.page.mu.Lock()
		}
		detached, hang, readyAt := f.detached, f.hang, f.readyAt
		f.page.mu.Unlock()

		switch {
		case detached:
			return browser.ErrFrameDetached
		case !hang && !time.Now().Before(readyAt):
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (f *Frame) Resolve(ctx context.Context, loc schemas.Locator) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	if f.page.closed {
		return nil, browser.ErrClosed
	}
	if f.detached {
		return nil, browser.ErrFrameDetached
	}
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	var out []browser.Element
	for _, el := range f.elements {
		if el.matches(loc) {
			out = append(out, el)
		}
	}
	return out, nil
}

// Element is an in-memory DOM node. Text, Role, Name and XPath drive
// locator matching; the rest drives interaction behavior.
type Element struct {
	Text  string
	Role  string
	Name  string
	XPath string

	// Hidden elements are resolved but not visible; interactions wait on them.
	Hidden bool
	// Disabled elements cannot be clicked or filled; interactions wait on them.
	Disabled bool
	// OnClick runs after a successful click, without the page lock held.
	OnClick func()
	// OnFill runs after a successful fill with the new value, without the page lock held.
	OnFill func(value string)
	// ClickErr and FillErr fail the interaction.
	ClickErr error
	FillErr  error

	frame   *Frame
	value   string
	clicks  int
	removed bool
}

var _ browser.Element = (*Element)(nil)

func norm(s string) string { return strings.Join(strings.Fields(s), " ") }

func (el *Element) matches(loc schemas.Locator) bool {
	switch loc.Kind {
	case schemas.LocatorText:
		if loc.Exact {
			return norm(el.Text) == loc.Value
		}
		return strings.Contains(strings.ToLower(norm(el.Text)), strings.ToLower(norm(loc.Value)))
	case schemas.LocatorXPath:
		return el.XPath != "" && el.XPath == loc.Value
	case schemas.LocatorRole:
		if !strings.EqualFold(el.Role, loc.Value) {
			return false
		}
		if loc.Name == "" {
			return true
		}
		name := el.Name
		if name == "" {
			name = el.Text
		}
		return strings.Contains(strings.ToLower(norm(name)), strings.ToLower(norm(loc.Name)))
	}
	return false
}

// SetHidden toggles visibility while the page is live.
func (el *Element) SetHidden(hidden bool) {
	el.lock()
	defer el.unlock()
	el.Hidden = hidden
}

// Value returns the current field value.
func (el *Element) Value() string {
	el.lock()
	defer el.unlock()
	return el.value
}

// Clicks returns how many clicks landed on the element.
func (el *Element) Clicks() int {
	el.lock()
	defer el.unlock()
	return el.clicks
}

func (el *Element) lock() {
	if el.frame != nil {
		el.frame.page.mu.Lock()
	}
}

func (el *Element) unlock() {
	if el.frame != nil {
		el.frame.page.mu.Unlock()
	}
}

// waitActionable blocks until the element is attached, visible and enabled.
func (el *Element) waitActionable(ctx context.Context) error {
	for {
		el.lock()
		removed, ready := el.removed, !el.Hidden && !el.Disabled
		el.unlock()
		if removed {
			return browser.ErrElementDetached
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (el *Element) Click(ctx context.Context) error {
	if el.ClickErr != nil {
		return el.ClickErr
	}
	if err := el.waitActionable(ctx); err != nil {
		return err
	}
	el.lock()
	el.clicks++
	hook := el.OnClick
	el.unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (el *Element) Fill(ctx context.Context, text string) error {
	if el.FillErr != nil {
		return el.FillErr
	}
	if err := el.waitActionable(ctx); err != nil {
		return err
	}
	el.lock()
	el.value = text
	hook := el.OnFill
	el.unlock()
	if hook != nil {
		hook(text)
	}
	return nil
}

func (el *Element) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	el.lock()
	defer el.unlock()
	if el.removed {
		return false, browser.ErrElementDetached
	}
	return !el.Hidden, nil
}
