// internal/browser/cdp/element.go
package cdp

import (
	"context"
	"fmt"
	"time"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scenarist/internal/browser"
)

const actionPollInterval = 100 * time.Millisecond

// Element is a remote object handle to a DOM node.
type Element struct {
	frame    *Frame
	objectID cdpruntime.RemoteObjectID
}

var _ browser.Element = (*Element)(nil)

const visibleJS = `function() {
  if (!this.isConnected) return 'detached';
  const style = window.getComputedStyle(this);
  if (!style || style.visibility === 'hidden' || style.display === 'none' || style.opacity === '0') return 'hidden';
  const rect = this.getBoundingClientRect();
  if (rect.width === 0 || rect.height === 0) return 'hidden';
  return 'visible';
}`

// actionableJS reports whether the node can take input and, when it can,
// scrolls it into view and returns its center point.
const actionableJS = `function(editable) {
  const vis = (` + visibleJS + `).call(this);
  if (vis !== 'visible') return {state: vis};
  if (this.disabled || this.getAttribute('aria-disabled') === 'true') return {state: 'disabled'};
  if (editable && !(this.isContentEditable || this instanceof HTMLInputElement ||
      this instanceof HTMLTextAreaElement || this instanceof HTMLSelectElement)) return {state: 'not_editable'};
  if (editable && this.readOnly) return {state: 'readonly'};
  this.scrollIntoView({block: 'center', inline: 'center', behavior: 'instant'});
  const rect = this.getBoundingClientRect();
  return {state: 'ok', x: rect.left + rect.width / 2, y: rect.top + rect.height / 2};
}`

const clickJS = `function() { this.click(); }`

// fillJS replaces the value the way typing would, through the native setter,
// so frameworks tracking the value see input and change events.
const fillJS = `function(text) {
  this.focus();
  if (this.isContentEditable) {
    this.textContent = text;
  } else {
    const proto = this instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype :
      this instanceof HTMLSelectElement ? HTMLSelectElement.prototype : HTMLInputElement.prototype;
    const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
    setter.call(this, text);
  }
  this.dispatchEvent(new Event('input', {bubbles: true}));
  this.dispatchEvent(new Event('change', {bubbles: true}));
}`

type actionState struct {
	State string  `json:"state"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func (e *Element) call(ctx context.Context, fn string, res interface{}, args ...interface{}) error {
	return e.frame.page.run(ctx, chromedp.CallFunctionOn(fn, res,
		func(p *cdpruntime.CallFunctionOnParams) *cdpruntime.CallFunctionOnParams {
			return p.WithObjectID(e.objectID).WithAwaitPromise(true)
		},
		args...,
	))
}

// waitActionable polls until the node is actionable or ctx ends.
func (e *Element) waitActionable(ctx context.Context, editable bool) (actionState, error) {
	ticker := time.NewTicker(actionPollInterval)
	defer ticker.Stop()
	for {
		var st actionState
		if err := e.call(ctx, actionableJS, &st, editable); err != nil {
			return st, err
		}
		switch st.State {
		case "ok":
			return st, nil
		case "detached":
			return st, browser.ErrElementDetached
		case "not_editable":
			return st, fmt.Errorf("element is not editable")
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("element stayed %s: %w", st.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Click dispatches real mouse events in the main frame. Child frame
// coordinates are relative to their own viewport, so there the click is
// delivered through the DOM instead.
func (e *Element) Click(ctx context.Context) error {
	st, err := e.waitActionable(ctx, false)
	if err != nil {
		return err
	}
	if e.frame.IsMain() {
		return e.frame.page.run(ctx, chromedp.MouseClickXY(st.X, st.Y))
	}
	return e.call(ctx, clickJS, nil)
}

func (e *Element) Fill(ctx context.Context, text string) error {
	if _, err := e.waitActionable(ctx, true); err != nil {
		return err
	}
	return e.call(ctx, fillJS, nil, text)
}

func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	var state string
	if err := e.call(ctx, visibleJS, &state); err != nil {
		return false, err
	}
	if state == "detached" {
		return false, browser.ErrElementDetached
	}
	return state == "visible", nil
}
