// internal/assertions/engine.go
package assertions

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
	"github.com/xkilldash9x/scenarist/internal/locator"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// PageSource yields the page assertions are evaluated on.
type PageSource interface {
	Page() browser.Page
}

// Engine evaluates visibility assertions with bounded polling.
type Engine struct {
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// New creates an Engine. Non-positive durations select the defaults.
func New(timeout, pollInterval time.Duration, logger *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Engine{timeout: timeout, pollInterval: pollInterval, logger: logger.Named("assertions")}
}

// Evaluate checks the assertions one after another. Each gets its own fresh
// timeout, so an expired assertion neither shortens nor extends the next.
// Every assertion is evaluated even when earlier ones fail; cancellation of
// ctx stops evaluation and the unevaluated assertions are not reported.
func (e *Engine) Evaluate(ctx context.Context, src PageSource, assertions []schemas.Assertion) schemas.AssertionReport {
	report := schemas.AssertionReport{Results: make([]schemas.AssertionResult, 0, len(assertions))}
	for i, a := range assertions {
		if ctx.Err() != nil {
			break
		}
		report.Results = append(report.Results, e.evaluateOne(ctx, src, i, a))
	}
	return report
}

type observation struct {
	visible bool
	matches int
	err     error
}

func (e *Engine) evaluateOne(ctx context.Context, src PageSource, index int, a schemas.Assertion) schemas.AssertionResult {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	res := schemas.AssertionResult{
		Index:         index,
		Label:         a.Label(),
		Locator:       a.Target.String(),
		Frame:         a.Frame,
		ExpectVisible: a.ExpectVisible,
		Timeout:       timeout,
	}
	logger := e.logger.With(zap.Int("assertion", index), zap.String("locator", res.Locator))

	if err := a.Validate(); err != nil {
		res.Code = schemas.CodeOf(err)
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	deadline := start.Add(timeout)
	evalCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(e.pollInterval), 1)

	var last observation
	for {
		delay := limiter.Reserve().Delay()
		final := false
		if remaining := time.Until(deadline); delay >= remaining {
			delay, final = remaining, true
		}
		if !sleep(ctx, delay) {
			break
		}
		res.Attempts++
		if final {
			// The deadline falls before the next poll: sample once more at the deadline.
			sampleCtx, cancelSample := context.WithTimeout(ctx, e.pollInterval)
			last = e.observe(sampleCtx, src, a)
			cancelSample()
		} else {
			last = e.observe(evalCtx, src, a)
		}
		if last.err != nil {
			res.LastError = last.err.Error()
		}
		if last.err == nil && last.visible == a.ExpectVisible {
			res.Passed = true
			break
		}
		if final || evalCtx.Err() != nil {
			break
		}
	}
	res.Elapsed = time.Since(start)
	res.ObservedVisible = last.visible
	res.MatchCount = last.matches

	if res.Passed {
		res.LastError = ""
		logger.Debug("Assertion passed.", zap.Int("attempts", res.Attempts), zap.Duration("elapsed", res.Elapsed))
		return res
	}
	if ctx.Err() != nil {
		res.Code = schemas.CodeOf(ctx.Err())
		res.Error = ctx.Err().Error()
		return res
	}
	timeoutErr := &schemas.AssertionTimeoutError{
		Locator:  a.Target,
		Expected: a.ExpectVisible,
		Observed: last.visible,
		Timeout:  timeout,
	}
	res.Code = timeoutErr.Code()
	res.Error = timeoutErr.Error()
	logger.Info("Assertion failed.", zap.Bool("expected_visible", a.ExpectVisible), zap.Bool("observed_visible", last.visible),
		zap.Int("attempts", res.Attempts), zap.String("last_error", res.LastError))
	return res
}

// sleep waits for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// observe samples the visibility of the first match. A locator matching
// nothing counts as not visible.
func (e *Engine) observe(ctx context.Context, src PageSource, a schemas.Assertion) observation {
	page := src.Page()
	if page == nil {
		return observation{err: browser.ErrClosed}
	}
	frame, err := browser.FindFrame(ctx, page, a.Frame)
	if err != nil {
		if errors.Is(err, browser.ErrFrameNotFound) {
			return observation{}
		}
		return observation{err: err}
	}

	elems, err := locator.Resolve(ctx, frame, a.Target)
	if err != nil {
		return observation{err: err}
	}
	obs := observation{matches: len(elems)}
	if a.Target.Index >= len(elems) {
		return obs
	}
	visible, err := elems[a.Target.Index].IsVisible(ctx)
	switch {
	case errors.Is(err, browser.ErrElementDetached):
		// Removed between resolution and the check: treat as gone.
		return obs
	case err != nil:
		obs.err = err
		return obs
	}
	obs.visible = visible
	return obs
}
