// api/schemas/report.go
package schemas

import "time"

// Outcome is the final verdict of a scenario run.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeAborted Outcome = "aborted"
)

// DiagnosticLevel grades a diagnostic entry.
type DiagnosticLevel string

const (
	LevelInfo  DiagnosticLevel = "info"
	LevelWarn  DiagnosticLevel = "warn"
	LevelError DiagnosticLevel = "error"
)

// Diagnostic is a single note recorded during a run. Recovered errors
// (frame timeouts, step failures, release failures) end up here.
type Diagnostic struct {
	Level   DiagnosticLevel `json:"level"`
	Code    ErrorCode       `json:"code,omitempty"`
	Message string          `json:"message"`
	At      time.Time       `json:"at"`
}

// NewDiagnostic builds a diagnostic from err, taking the code from the error taxonomy.
func NewDiagnostic(level DiagnosticLevel, err error) Diagnostic {
	return Diagnostic{Level: level, Code: CodeOf(err), Message: err.Error(), At: time.Now()}
}

// -- Steps --

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepPassed StepStatus = "passed"
	StepFailed StepStatus = "failed"
)

// StepResult records one executed step. A failed result is a step failure.
type StepResult struct {
	Index     int           `json:"index"`
	Kind      StepKind      `json:"kind"`
	Label     string        `json:"label"`
	Status    StepStatus    `json:"status"`
	Fatal     bool          `json:"fatal,omitempty"`
	Code      ErrorCode     `json:"code,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (r StepResult) Failed() bool { return r.Status == StepFailed }

// StepRun is what the step executor hands back: every executed step in order,
// and the fatal error that stopped the sequence, if any.
type StepRun struct {
	Results     []StepResult
	Fatal       error
	Diagnostics []Diagnostic
}

// Failures counts failed steps.
func (r StepRun) Failures() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// -- Frames --

// FrameState is the readiness of one frame.
type FrameState string

const (
	FrameLoading  FrameState = "loading"
	FrameReady    FrameState = "ready"
	FrameTimedOut FrameState = "timed_out"
	FrameDetached FrameState = "detached"
)

type FrameStatus struct {
	ID       string        `json:"id"`
	ParentID string        `json:"parent_id,omitempty"`
	Name     string        `json:"name,omitempty"`
	URL      string        `json:"url"`
	Main     bool          `json:"main"`
	State    FrameState    `json:"state"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
}

// FrameReadinessReport is the result of one synchronization pass over a page.
type FrameReadinessReport struct {
	Frames      []FrameStatus `json:"frames"`
	Rounds      int           `json:"rounds"`
	Diagnostics []Diagnostic  `json:"-"`
}

// Count returns how many frames ended in state.
func (r FrameReadinessReport) Count(state FrameState) int {
	n := 0
	for _, f := range r.Frames {
		if f.State == state {
			n++
		}
	}
	return n
}

// States lists frame states in discovery order.
func (r FrameReadinessReport) States() []FrameState {
	out := make([]FrameState, len(r.Frames))
	for i, f := range r.Frames {
		out[i] = f.State
	}
	return out
}

// -- Assertions --

type AssertionResult struct {
	Index           int           `json:"index"`
	Label           string        `json:"label"`
	Locator         string        `json:"locator"`
	Frame           string        `json:"frame,omitempty"`
	ExpectVisible   bool          `json:"expect_visible"`
	ObservedVisible bool          `json:"observed_visible"`
	MatchCount      int           `json:"match_count"`
	Passed          bool          `json:"passed"`
	Attempts        int           `json:"attempts"`
	Timeout         time.Duration `json:"timeout"`
	Elapsed         time.Duration `json:"elapsed"`
	Code            ErrorCode     `json:"code,omitempty"`
	Error           string        `json:"error,omitempty"`
	// LastError is the most recent resolution or driver error seen while polling.
	LastError string `json:"last_error,omitempty"`
}

type AssertionReport struct {
	Results []AssertionResult `json:"results"`
}

// Passed is the conjunction of all assertion results. An empty report passes.
func (r AssertionReport) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Failed returns the failing results in declaration order.
func (r AssertionReport) Failed() []AssertionResult {
	var out []AssertionResult
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// -- Scenario --

// ScenarioReport is the complete record of one scenario run. The runner
// builds it once; nothing mutates it afterwards.
type ScenarioReport struct {
	RunID            string               `json:"run_id"`
	Name             string               `json:"name"`
	Source           string               `json:"source,omitempty"`
	Outcome          Outcome              `json:"outcome"`
	AbortedIn        string               `json:"aborted_in,omitempty"`
	StartedAt        time.Time            `json:"started_at"`
	Duration         time.Duration        `json:"duration"`
	StepsExecuted    int                  `json:"steps_executed"`
	StepFailures     int                  `json:"step_failures"`
	StepResults      []StepResult         `json:"step_results"`
	Frames           FrameReadinessReport `json:"frames"`
	AssertionResults []AssertionResult    `json:"assertion_results"`
	Diagnostics      []Diagnostic         `json:"diagnostics"`
}

// FailedAssertions returns the assertion results that did not pass.
func (r ScenarioReport) FailedAssertions() []AssertionResult {
	return AssertionReport{Results: r.AssertionResults}.Failed()
}

// FailedSteps returns the step results that failed.
func (r ScenarioReport) FailedSteps() []StepResult {
	var out []StepResult
	for _, s := range r.StepResults {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}
