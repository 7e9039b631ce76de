// internal/frames/synchronizer.go
package frames

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
)

const (
	DefaultTimeout           = 3 * time.Second
	DefaultRediscoveryRounds = 1
)

// Synchronizer waits for every frame of a page to reach DOMContentLoaded.
// It degrades gracefully: a slow or vanished frame is recorded, never fatal.
type Synchronizer struct {
	rounds int
	logger *zap.Logger
}

// New creates a Synchronizer. rounds is the number of extra frame discovery
// passes made after the first one; negative values mean zero.
func New(rounds int, logger *zap.Logger) *Synchronizer {
	if rounds < 0 {
		rounds = 0
	}
	return &Synchronizer{rounds: rounds, logger: logger.Named("frames")}
}

// AwaitReady enumerates the frames of page, main frame first, and waits on each
// in tree order with its own fresh perFrameTimeout. Frames attached while
// waiting are picked up by the re-discovery passes. The call itself never
// fails: enumeration errors and timeouts end up as diagnostics.
func (s *Synchronizer) AwaitReady(ctx context.Context, page browser.Page, perFrameTimeout time.Duration) schemas.FrameReadinessReport {
	if perFrameTimeout <= 0 {
		perFrameTimeout = DefaultTimeout
	}

	var report schemas.FrameReadinessReport
	seen := make(map[string]bool)

	for round := 0; round <= s.rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		frames, err := page.Frames(ctx)
		if err != nil {
			s.logger.Warn("Could not enumerate frames.", zap.Int("round", round), zap.Error(err))
			report.Diagnostics = append(report.Diagnostics, schemas.NewDiagnostic(schemas.LevelWarn,
				fmt.Errorf("enumerating frames: %w", err)))
			break
		}
		report.Rounds++

		var fresh []browser.Frame
		for _, f := range frames {
			if !seen[f.ID()] {
				seen[f.ID()] = true
				fresh = append(fresh, f)
			}
		}
		if len(fresh) == 0 && round > 0 {
			break
		}

		for _, f := range fresh {
			status, diag := s.await(ctx, f, perFrameTimeout)
			report.Frames = append(report.Frames, status)
			if diag != nil {
				report.Diagnostics = append(report.Diagnostics, *diag)
			}
		}
	}

	s.logger.Debug("Frame synchronization finished.",
		zap.Int("frames", len(report.Frames)),
		zap.Int("ready", report.Count(schemas.FrameReady)),
		zap.Int("timed_out", report.Count(schemas.FrameTimedOut)),
		zap.Int("detached", report.Count(schemas.FrameDetached)))
	return report
}

func (s *Synchronizer) await(ctx context.Context, f browser.Frame, timeout time.Duration) (schemas.FrameStatus, *schemas.Diagnostic) {
	status := schemas.FrameStatus{
		ID:       f.ID(),
		ParentID: f.ParentID(),
		Name:     f.Name(),
		URL:      f.URL(),
		Main:     f.IsMain(),
		State:    schemas.FrameLoading,
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := f.WaitForLoadState(waitCtx, browser.LoadStateDOMContentLoaded)
	status.Elapsed = time.Since(start)

	switch {
	case err == nil:
		status.State = schemas.FrameReady
		return status, nil
	case errors.Is(err, browser.ErrFrameDetached):
		status.State = schemas.FrameDetached
		status.Error = err.Error()
		diag := schemas.NewDiagnostic(schemas.LevelInfo, fmt.Errorf("frame %s (%s) detached before it was ready: %w", status.ID, status.URL, err))
		return status, &diag
	case ctx.Err() != nil:
		// The parent context ended; the frame never got its full budget.
		status.Error = ctx.Err().Error()
		return status, nil
	case errors.Is(err, context.DeadlineExceeded):
		status.State = schemas.FrameTimedOut
		timeoutErr := &schemas.FrameTimeoutError{FrameID: status.ID, URL: status.URL, Timeout: timeout}
		status.Error = timeoutErr.Error()
		s.logger.Info("Frame did not become ready in time.", zap.String("frame_id", status.ID), zap.String("url", status.URL), zap.Duration("timeout", timeout))
		diag := schemas.NewDiagnostic(schemas.LevelWarn, timeoutErr)
		return status, &diag
	default:
		status.State = schemas.FrameTimedOut
		status.Error = err.Error()
		diag := schemas.NewDiagnostic(schemas.LevelWarn, fmt.Errorf("waiting for frame %s (%s): %w", status.ID, status.URL, err))
		return status, &diag
	}
}
