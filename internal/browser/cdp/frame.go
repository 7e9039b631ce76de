// internal/browser/cdp/frame.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
	"github.com/xkilldash9x/scenarist/internal/locator"
)

const (
	readyPollInterval = 50 * time.Millisecond
	// maxHandles caps the element handles one Resolve materializes.
	maxHandles = 64
)

// Frame is a snapshot of one frame of a Page. Evaluation happens in an
// isolated world so page scripts cannot interfere.
type Frame struct {
	page     *Page
	id       cdp.FrameID
	parentID string
	name     string
	url      string
	main     bool
}

var _ browser.Frame = (*Frame)(nil)

func (f *Frame) ID() string       { return string(f.id) }
func (f *Frame) ParentID() string { return f.parentID }
func (f *Frame) Name() string     { return f.name }
func (f *Frame) URL() string      { return f.url }
func (f *Frame) IsMain() bool     { return f.main }

// evaluate runs expr in the frame's isolated world and decodes the result into
// res, which may be **runtime.RemoteObject to keep a handle.
func (f *Frame) evaluate(ctx context.Context, expr string, res interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		execID, err := f.page.world(ctx, f.id, attempt > 0)
		if err != nil {
			lastErr = err
			break
		}
		lastErr = f.page.run(ctx, chromedp.Evaluate(expr, res,
			func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
				return p.WithContextID(execID)
			}))
		if lastErr == nil || ctx.Err() != nil {
			return lastErr
		}
		var exc *cdpruntime.ExceptionDetails
		if errors.As(lastErr, &exc) {
			// Script errors will not go away with a new world.
			return lastErr
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !f.page.closed.Load() && !f.page.hasFrame(ctx, f.id) {
		return fmt.Errorf("%w: %s", browser.ErrFrameDetached, f.id)
	}
	return lastErr
}

func (f *Frame) WaitForLoadState(ctx context.Context, state browser.LoadState) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		var readyState string
		err := f.evaluate(ctx, `document.readyState`, &readyState)
		switch {
		case errors.Is(err, browser.ErrFrameDetached), errors.Is(err, browser.ErrClosed):
			return err
		case err == nil && reached(readyState, state):
			return nil
		case err != nil:
			f.page.logger.Debug("Frame not ready for evaluation yet.", zap.String("frame_id", string(f.id)), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func reached(readyState string, state browser.LoadState) bool {
	switch state {
	case browser.LoadStateLoad:
		return readyState == "complete"
	default:
		return readyState == "interactive" || readyState == "complete"
	}
}

// Resolve evaluates the locator once and collects the matches from the
// returned array, so every handle comes from the same document snapshot.
func (f *Frame) Resolve(ctx context.Context, loc schemas.Locator) ([]browser.Element, error) {
	q, err := locator.Compile(loc)
	if err != nil {
		return nil, err
	}

	var arr *cdpruntime.RemoteObject
	if err := f.evaluate(ctx, q.SliceExpression(maxHandles+1), &arr); err != nil {
		return nil, err
	}
	if arr == nil || arr.ObjectID == "" {
		return []browser.Element{}, nil
	}
	defer f.release(ctx, arr.ObjectID)

	var props []*cdpruntime.PropertyDescriptor
	err = f.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		props, _, _, _, err = cdpruntime.GetProperties(arr.ObjectID).WithOwnProperties(true).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	type indexed struct {
		index int
		id    cdpruntime.RemoteObjectID
	}
	var found []indexed
	for _, prop := range props {
		i, convErr := strconv.Atoi(prop.Name)
		if convErr != nil || prop.Value == nil || prop.Value.ObjectID == "" {
			continue
		}
		found = append(found, indexed{index: i, id: prop.Value.ObjectID})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].index < found[b].index })

	if len(found) > maxHandles {
		f.page.logger.Debug("Locator matched more elements than are materialized.",
			zap.String("locator", loc.String()), zap.Int("max", maxHandles))
		for _, extra := range found[maxHandles:] {
			f.release(ctx, extra.id)
		}
		found = found[:maxHandles]
	}

	elems := make([]browser.Element, 0, len(found))
	for _, h := range found {
		elems = append(elems, &Element{frame: f, objectID: h.id})
	}
	return elems, nil
}

// release frees a remote object. Failures only leak until the world is torn down.
func (f *Frame) release(ctx context.Context, id cdpruntime.RemoteObjectID) {
	err := f.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdpruntime.ReleaseObject(id).Do(ctx)
	}))
	if err != nil {
		f.page.logger.Debug("Failed to release remote object.", zap.String("object_id", string(id)), zap.Error(err))
	}
}
