// internal/session/guard.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
)

const defaultReleaseTimeout = 10 * time.Second

// Guard acquires the resources of a Session in dependency order and releases
// them in reverse, no matter how the scenario ended.
type Guard struct {
	automation     browser.Automation
	launch         browser.LaunchOptions
	releaseTimeout time.Duration
	logger         *zap.Logger
}

// NewGuard creates a Guard. A non-positive releaseTimeout selects the default.
func NewGuard(automation browser.Automation, launch browser.LaunchOptions, releaseTimeout time.Duration, logger *zap.Logger) *Guard {
	if releaseTimeout <= 0 {
		releaseTimeout = defaultReleaseTimeout
	}
	return &Guard{
		automation:     automation,
		launch:         launch,
		releaseTimeout: releaseTimeout,
		logger:         logger.Named("session"),
	}
}

// Acquire starts the driver, launches a browser, creates a browser context and
// opens a page, in that order. On failure everything acquired so far is
// released and a *schemas.SessionSetupError naming the failed stage is
// returned. A panic in any stage is treated as that stage failing.
func (g *Guard) Acquire(ctx context.Context) (sess *Session, err error) {
	s := newSession()
	logger := g.logger.With(zap.String("session_id", s.ID))

	stage := schemas.StageDriver
	fail := func(err error) (*Session, error) {
		logger.Error("Session setup failed.", zap.String("stage", string(stage)), zap.Error(err))
		g.Release(ctx, s)
		return nil, &schemas.SessionSetupError{Stage: stage, Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			sess, err = fail(errorFromPanic("setup", r))
		}
	}()

	driver, err := g.automation.StartDriver(ctx)
	if err != nil {
		return fail(err)
	}
	s.driver = driver

	stage = schemas.StageBrowser
	b, err := driver.Launch(ctx, g.launch)
	if err != nil {
		return fail(err)
	}
	s.browser = b

	stage = schemas.StageContext
	bc, err := b.NewContext(ctx)
	if err != nil {
		return fail(err)
	}
	s.context = bc

	stage = schemas.StagePage
	page, err := bc.NewPage(ctx)
	if err != nil {
		return fail(err)
	}
	s.pages = append(s.pages, page)

	logger.Debug("Session acquired.")
	return s, nil
}

// Release closes pages (newest first), the context, the browser and the
// driver. Every step is attempted even when an earlier one fails, each bounded
// by the release timeout on a context detached from ctx's cancellation. The
// second and later calls for the same session do nothing. Failures are logged
// and returned; they never panic.
func (g *Guard) Release(ctx context.Context, s *Session) []error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	pages := append([]browser.Page(nil), s.pages...)
	s.mu.Unlock()

	base := browser.Detach(ctx)
	logger := g.logger.With(zap.String("session_id", s.ID))

	var errs []error
	step := func(stage schemas.SessionStage, closeFn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(base, g.releaseTimeout)
		defer cancel()

		err := safeClose(stepCtx, closeFn)
		if err == nil || errors.Is(err, browser.ErrClosed) {
			return
		}
		relErr := &schemas.ResourceReleaseError{Resource: stage, Err: err}
		logger.Warn("Failed to release resource.", zap.String("resource", string(stage)), zap.Error(err))
		errs = append(errs, relErr)
	}

	for i := len(pages) - 1; i >= 0; i-- {
		step(schemas.StagePage, pages[i].Close)
	}
	if s.context != nil {
		step(schemas.StageContext, s.context.Close)
	}
	if s.browser != nil {
		step(schemas.StageBrowser, s.browser.Close)
	}
	if s.driver != nil {
		step(schemas.StageDriver, s.driver.Close)
	}

	if len(errs) > 0 {
		logger.Warn("Session released with errors.", zap.Error(multierr.Combine(errs...)))
	} else {
		logger.Debug("Session released.")
	}
	return errs
}

// safeClose turns a panicking close into an error.
func safeClose(ctx context.Context, closeFn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorFromPanic("release", r)
		}
	}()
	return closeFn(ctx)
}

func errorFromPanic(during string, r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic during %s: %w", during, err)
	}
	return fmt.Errorf("panic during %s: %v", during, r)
}
