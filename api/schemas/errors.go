// api/schemas/errors.go
package schemas

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode is a stable identifier for each failure class a scenario run can
// record. Reports and persisted rows carry the code rather than the Go type.
type ErrorCode string

const (
	ErrCodeSessionSetup      ErrorCode = "SESSION_SETUP"
	ErrCodeNavigation        ErrorCode = "NAVIGATION"
	ErrCodeFrameTimeout      ErrorCode = "FRAME_TIMEOUT"
	ErrCodeElementResolution ErrorCode = "ELEMENT_RESOLUTION"
	ErrCodeStepTimeout       ErrorCode = "STEP_TIMEOUT"
	ErrCodeAssertionTimeout  ErrorCode = "ASSERTION_TIMEOUT"
	ErrCodeResourceRelease   ErrorCode = "RESOURCE_RELEASE"
	ErrCodeDriver            ErrorCode = "DRIVER"
	ErrCodePanic             ErrorCode = "PANIC"
	ErrCodeCanceled          ErrorCode = "CANCELED"
)

// CodedError is implemented by every error in the scenario taxonomy.
type CodedError interface {
	error
	Code() ErrorCode
}

// CodeOf returns the taxonomy code of err, ErrCodeCanceled for context
// cancellation, and ErrCodeDriver for anything else.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if errors.Is(err, context.Canceled) {
		return ErrCodeCanceled
	}
	return ErrCodeDriver
}

// SessionStage names a resource acquisition stage.
type SessionStage string

const (
	StageDriver  SessionStage = "driver"
	StageBrowser SessionStage = "browser"
	StageContext SessionStage = "context"
	StagePage    SessionStage = "page"
)

// SessionSetupError reports that acquiring driver, browser, context or page failed.
type SessionSetupError struct {
	Stage SessionStage
	Err   error
}

func (e *SessionSetupError) Error() string {
	return fmt.Sprintf("session setup failed at %s stage: %v", e.Stage, e.Err)
}
func (e *SessionSetupError) Unwrap() error   { return e.Err }
func (e *SessionSetupError) Code() ErrorCode { return ErrCodeSessionSetup }

// NavigationError reports that a page load failed or timed out.
type NavigationError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed (timeout %s): %v", e.URL, e.Timeout, e.Err)
}
func (e *NavigationError) Unwrap() error   { return e.Err }
func (e *NavigationError) Code() ErrorCode { return ErrCodeNavigation }

// FrameTimeoutError reports a frame that did not become ready in time.
type FrameTimeoutError struct {
	FrameID string
	URL     string
	Timeout time.Duration
}

func (e *FrameTimeoutError) Error() string {
	return fmt.Sprintf("frame %s (%s) not ready after %s", e.FrameID, e.URL, e.Timeout)
}
func (e *FrameTimeoutError) Code() ErrorCode { return ErrCodeFrameTimeout }

// ElementResolutionError reports that a locator could not be resolved to a
// live element.
type ElementResolutionError struct {
	Locator Locator
	Reason  string
	Err     error
}

func (e *ElementResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve %s: %s: %v", e.Locator, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot resolve %s: %s", e.Locator, e.Reason)
}
func (e *ElementResolutionError) Unwrap() error   { return e.Err }
func (e *ElementResolutionError) Code() ErrorCode { return ErrCodeElementResolution }

// StepTimeoutError reports a step whose interaction did not complete in time.
type StepTimeoutError struct {
	Step    string
	Timeout time.Duration
	Err     error
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Step, e.Timeout)
}
func (e *StepTimeoutError) Unwrap() error   { return e.Err }
func (e *StepTimeoutError) Code() ErrorCode { return ErrCodeStepTimeout }

// AssertionTimeoutError reports an assertion whose expected visibility never
// materialized. Observed is the last state seen.
type AssertionTimeoutError struct {
	Locator  Locator
	Expected bool
	Observed bool
	Timeout  time.Duration
}

func (e *AssertionTimeoutError) Error() string {
	return fmt.Sprintf("%s: expected visible=%t, last observed visible=%t after %s",
		e.Locator, e.Expected, e.Observed, e.Timeout)
}
func (e *AssertionTimeoutError) Code() ErrorCode { return ErrCodeAssertionTimeout }

// ResourceReleaseError reports a resource that failed to close cleanly.
type ResourceReleaseError struct {
	Resource SessionStage
	Err      error
}

func (e *ResourceReleaseError) Error() string {
	return fmt.Sprintf("failed to release %s: %v", e.Resource, e.Err)
}
func (e *ResourceReleaseError) Unwrap() error   { return e.Err }
func (e *ResourceReleaseError) Code() ErrorCode { return ErrCodeResourceRelease }
