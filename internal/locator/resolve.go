// internal/locator/resolve.go
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
)

// Resolve returns the live elements l matches in frame. Zero matches is not an
// error. A detached frame or a driver failure is reported as an
// ElementResolutionError; context errors are returned as they are so callers
// can tell a deadline from a missing element.
func Resolve(ctx context.Context, frame browser.Frame, l schemas.Locator) ([]browser.Element, error) {
	if err := l.Validate(); err != nil {
		return nil, &schemas.ElementResolutionError{Locator: l, Reason: "invalid locator", Err: err}
	}
	if frame == nil {
		return nil, &schemas.ElementResolutionError{Locator: l, Reason: "no frame", Err: browser.ErrFrameDetached}
	}

	elems, err := frame.Resolve(ctx, l)
	if err == nil {
		return elems, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var resErr *schemas.ElementResolutionError
	if errors.As(err, &resErr) {
		return nil, err
	}
	reason := "driver error"
	switch {
	case errors.Is(err, browser.ErrFrameDetached):
		reason = "frame detached"
	case errors.Is(err, browser.ErrClosed):
		reason = "page closed"
	}
	return nil, &schemas.ElementResolutionError{Locator: l, Reason: reason, Err: err}
}

// First returns the element at l.Index, the target of an interaction.
func First(ctx context.Context, frame browser.Frame, l schemas.Locator) (browser.Element, error) {
	elems, err := Resolve(ctx, frame, l)
	if err != nil {
		return nil, err
	}
	if l.Index >= len(elems) {
		return nil, &schemas.ElementResolutionError{
			Locator: l,
			Reason:  fmt.Sprintf("%d matches, index %d requested", len(elems), l.Index),
		}
	}
	return elems[l.Index], nil
}

// IsNotFound reports whether err means the locator matched nothing at the
// requested index, as opposed to a detached frame or driver failure.
func IsNotFound(err error) bool {
	var resErr *schemas.ElementResolutionError
	return errors.As(err, &resErr) && resErr.Err == nil
}
