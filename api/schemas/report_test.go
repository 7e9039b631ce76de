// api/schemas/report_test.go
package schemas_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

func TestCodeOf(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want schemas.ErrorCode
	}{
		{"nil", nil, ""},
		{"plain", cause, schemas.ErrCodeDriver},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), schemas.ErrCodeCanceled},
		{"session", &schemas.SessionSetupError{Stage: schemas.StagePage, Err: cause}, schemas.ErrCodeSessionSetup},
		{"navigation", &schemas.NavigationError{URL: "https://x.test", Timeout: time.Second, Err: cause}, schemas.ErrCodeNavigation},
		{"frame", &schemas.FrameTimeoutError{FrameID: "F1"}, schemas.ErrCodeFrameTimeout},
		{"wrapped resolution", fmt.Errorf("step 2: %w", &schemas.ElementResolutionError{Locator: schemas.Text("x"), Reason: "no match"}), schemas.ErrCodeElementResolution},
		{"step", &schemas.StepTimeoutError{Step: "click(text=x)", Err: context.DeadlineExceeded}, schemas.ErrCodeStepTimeout},
		{"assertion", &schemas.AssertionTimeoutError{Locator: schemas.Text("x")}, schemas.ErrCodeAssertionTimeout},
		{"release", &schemas.ResourceReleaseError{Resource: schemas.StageBrowser, Err: cause}, schemas.ErrCodeResourceRelease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, schemas.CodeOf(tt.err))
		})
	}
}

func TestErrorMessagesAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")

	nav := &schemas.NavigationError{URL: "https://x.test", Timeout: 5 * time.Second, Err: cause}
	assert.Equal(t, "navigation to https://x.test failed (timeout 5s): connection reset", nav.Error())
	assert.ErrorIs(t, nav, cause)

	res := &schemas.ElementResolutionError{Locator: schemas.Role("button"), Reason: "no match"}
	assert.Equal(t, "cannot resolve role=button: no match", res.Error())
	res.Err = cause
	assert.Equal(t, "cannot resolve role=button: no match: connection reset", res.Error())

	step := &schemas.StepTimeoutError{Step: "click(text=Go)", Timeout: time.Second, Err: context.DeadlineExceeded}
	assert.Equal(t, "click(text=Go) timed out after 1s", step.Error())
	assert.ErrorIs(t, step, context.DeadlineExceeded)

	at := &schemas.AssertionTimeoutError{Locator: schemas.Text("Done"), Expected: true, Timeout: 2 * time.Second}
	assert.Equal(t, "text=Done: expected visible=true, last observed visible=false after 2s", at.Error())

	setup := &schemas.SessionSetupError{Stage: schemas.StageContext, Err: cause}
	assert.Equal(t, "session setup failed at context stage: connection reset", setup.Error())
	assert.ErrorIs(t, setup, cause)
}

func TestNewDiagnostic(t *testing.T) {
	d := schemas.NewDiagnostic(schemas.LevelWarn, &schemas.FrameTimeoutError{FrameID: "F2", URL: "about:blank", Timeout: time.Second})
	assert.Equal(t, schemas.LevelWarn, d.Level)
	assert.Equal(t, schemas.ErrCodeFrameTimeout, d.Code)
	assert.Equal(t, "frame F2 (about:blank) not ready after 1s", d.Message)
	assert.False(t, d.At.IsZero())
}

func TestReportHelpers(t *testing.T) {
	run := schemas.StepRun{Results: []schemas.StepResult{
		{Index: 0, Status: schemas.StepPassed},
		{Index: 1, Status: schemas.StepFailed},
		{Index: 2, Status: schemas.StepFailed, Fatal: true},
	}}
	assert.Equal(t, 2, run.Failures())

	frames := schemas.FrameReadinessReport{Frames: []schemas.FrameStatus{
		{ID: "main", State: schemas.FrameReady},
		{ID: "ad", State: schemas.FrameTimedOut},
		{ID: "widget", State: schemas.FrameReady},
	}}
	assert.Equal(t, 2, frames.Count(schemas.FrameReady))
	assert.Equal(t, 0, frames.Count(schemas.FrameDetached))
	assert.Equal(t, []schemas.FrameState{schemas.FrameReady, schemas.FrameTimedOut, schemas.FrameReady}, frames.States())

	assert.True(t, schemas.AssertionReport{}.Passed(), "an empty report passes")
	ar := schemas.AssertionReport{Results: []schemas.AssertionResult{
		{Index: 0, Passed: true},
		{Index: 1, Passed: false},
	}}
	assert.False(t, ar.Passed())
	if assert.Len(t, ar.Failed(), 1) {
		assert.Equal(t, 1, ar.Failed()[0].Index)
	}

	report := schemas.ScenarioReport{StepResults: run.Results, AssertionResults: ar.Results}
	assert.Len(t, report.FailedSteps(), 2)
	assert.Len(t, report.FailedAssertions(), 1)
}
