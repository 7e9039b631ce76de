// internal/steps/executor.go
package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
	"github.com/xkilldash9x/scenarist/internal/locator"
)

const resolvePollInterval = 100 * time.Millisecond

// Config holds the executor's timing.
type Config struct {
	SettleDelay       time.Duration
	NavigationTimeout time.Duration
	ClickTimeout      time.Duration
	FillTimeout       time.Duration
	WaitUntil         browser.WaitUntil
}

// DefaultConfig mirrors the config package defaults.
func DefaultConfig() Config {
	return Config{
		SettleDelay:       3 * time.Second,
		NavigationTimeout: 10 * time.Second,
		ClickTimeout:      5 * time.Second,
		FillTimeout:       5 * time.Second,
		WaitUntil:         browser.WaitCommit,
	}
}

// PageSource yields the page steps act on. *session.Session implements it.
type PageSource interface {
	Page() browser.Page
}

// Executor runs step sequences against the active page of a session.
type Executor struct {
	cfg    Config
	logger *zap.Logger
}

func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	return &Executor{cfg: cfg, logger: logger.Named("steps")}
}

// Run executes steps strictly in order. See RunFrom.
func (e *Executor) Run(ctx context.Context, src PageSource, steps []schemas.Step) schemas.StepRun {
	return e.RunFrom(ctx, src, steps, 0)
}

// RunFrom executes steps[from:], numbering results by their position in
// steps. A fatal failure stops the sequence and is returned in StepRun.Fatal;
// so does cancellation of ctx, without recording the unstarted step.
func (e *Executor) RunFrom(ctx context.Context, src PageSource, steps []schemas.Step, from int) schemas.StepRun {
	var run schemas.StepRun
	for i := from; i < len(steps); i++ {
		if err := ctx.Err(); err != nil {
			run.Fatal = err
			return run
		}

		res, diag, fatal := e.Execute(ctx, src, i, steps[i])
		run.Results = append(run.Results, res)
		if diag != nil {
			run.Diagnostics = append(run.Diagnostics, *diag)
		}
		if fatal != nil {
			run.Fatal = fatal
			return run
		}
	}
	return run
}

// Execute runs one step. It returns the result, an optional diagnostic, and a
// non-nil error only when the step's failure stops the scenario.
func (e *Executor) Execute(ctx context.Context, src PageSource, index int, step schemas.Step) (schemas.StepResult, *schemas.Diagnostic, error) {
	policy := PolicyFor(step.Kind)
	res := schemas.StepResult{
		Index:     index,
		Kind:      step.Kind,
		Label:     step.Label(),
		Status:    schemas.StepPassed,
		StartedAt: time.Now(),
	}
	logger := e.logger.With(zap.Int("step", index), zap.String("kind", string(step.Kind)))

	err := e.perform(ctx, src, step)
	res.Duration = time.Since(res.StartedAt)
	if err == nil {
		logger.Debug("Step completed.", zap.String("label", res.Label), zap.Duration("duration", res.Duration))
		return res, nil, nil
	}

	// A canceled scenario is not a step failure.
	if ctx.Err() != nil {
		res.Status = schemas.StepFailed
		res.Fatal = true
		res.Code = schemas.CodeOf(ctx.Err())
		res.Error = ctx.Err().Error()
		return res, nil, ctx.Err()
	}

	switch policy.Failure {
	case FailureNever:
		logger.Info("Step error ignored.", zap.String("label", res.Label), zap.Error(err))
		diag := schemas.NewDiagnostic(schemas.LevelWarn, fmt.Errorf("step %d %s: %w", index, res.Label, err))
		return res, &diag, nil
	case FailureRecoverable:
		res.Status = schemas.StepFailed
		res.Code = schemas.CodeOf(err)
		res.Error = err.Error()
		logger.Warn("Step failed, continuing.", zap.String("label", res.Label), zap.Error(err))
		return res, nil, nil
	default:
		res.Status = schemas.StepFailed
		res.Fatal = true
		res.Code = schemas.CodeOf(err)
		res.Error = err.Error()
		logger.Error("Step failed, aborting scenario.", zap.String("label", res.Label), zap.Error(err))
		return res, nil, err
	}
}

func (e *Executor) perform(ctx context.Context, src PageSource, step schemas.Step) error {
	if err := step.Validate(); err != nil {
		return err
	}
	page := src.Page()
	if page == nil {
		return browser.ErrClosed
	}
	timeout := TimeoutFor(step, e.cfg)

	switch step.Kind {
	case schemas.StepNavigate:
		return e.navigate(ctx, page, step.URL, timeout)
	case schemas.StepScroll:
		stepCtx, cancel := withTimeout(ctx, timeout)
		defer cancel()
		return page.Wheel(stepCtx, step.DeltaX, step.DeltaY)
	case schemas.StepSleep:
		return sleep(ctx, step.Duration)
	case schemas.StepClick, schemas.StepFill:
		if PolicyFor(step.Kind).Settle {
			if err := sleep(ctx, e.cfg.SettleDelay); err != nil {
				return err
			}
		}
		return e.interact(ctx, page, step, timeout)
	}
	return fmt.Errorf("unknown step kind %q", step.Kind)
}

// Navigate loads url in page, returning a *schemas.NavigationError on failure.
func (e *Executor) Navigate(ctx context.Context, page browser.Page, url string) error {
	return e.navigate(ctx, page, url, e.cfg.NavigationTimeout)
}

func (e *Executor) navigate(ctx context.Context, page browser.Page, url string, timeout time.Duration) error {
	navCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := page.Goto(navCtx, url, e.cfg.WaitUntil); err != nil {
		return &schemas.NavigationError{URL: url, Timeout: timeout, Err: err}
	}
	return nil
}

func (e *Executor) interact(ctx context.Context, page browser.Page, step schemas.Step, timeout time.Duration) error {
	stepCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	el, err := e.awaitElement(stepCtx, page, step)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &schemas.StepTimeoutError{Step: step.Label(), Timeout: timeout, Err: err}
		}
		return err
	}

	switch step.Kind {
	case schemas.StepClick:
		err = el.Click(stepCtx)
	case schemas.StepFill:
		err = el.Fill(stepCtx, step.Text)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, browser.ErrElementDetached):
		return &schemas.ElementResolutionError{Locator: step.Target, Reason: "element detached", Err: err}
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return &schemas.StepTimeoutError{Step: step.Label(), Timeout: timeout, Err: err}
	}
	return err
}

// awaitElement resolves the step's target, retrying while it is not there
// yet. When the deadline passes the last resolution error is returned.
func (e *Executor) awaitElement(ctx context.Context, page browser.Page, step schemas.Step) (browser.Element, error) {
	ticker := time.NewTicker(resolvePollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		el, err := e.resolveTarget(ctx, page, step)
		if err == nil {
			return el, nil
		}
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = err
			}
			return nil, lastErr
		}
		lastErr = err
		// Detached frames and driver errors do not heal by waiting.
		if !locator.IsNotFound(err) && !errors.Is(err, browser.ErrFrameNotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-ticker.C:
		}
	}
}

func (e *Executor) resolveTarget(ctx context.Context, page browser.Page, step schemas.Step) (browser.Element, error) {
	frame, err := browser.FindFrame(ctx, page, step.Frame)
	if err != nil {
		if errors.Is(err, browser.ErrFrameNotFound) {
			return nil, &schemas.ElementResolutionError{Locator: step.Target, Reason: "frame not found", Err: err}
		}
		return nil, err
	}
	return locator.First(ctx, frame, step.Target)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
