// internal/runner/runner.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/assertions"
	"github.com/xkilldash9x/scenarist/internal/frames"
	"github.com/xkilldash9x/scenarist/internal/session"
	"github.com/xkilldash9x/scenarist/internal/steps"
)

// State is a phase of a scenario run.
type State string

const (
	StateIdle          State = "idle"
	StateAcquiring     State = "acquiring"
	StateNavigating    State = "navigating"
	StateSynchronizing State = "synchronizing"
	StateExecuting     State = "executing"
	StateAsserting     State = "asserting"
	StateReporting     State = "reporting"
	StateTerminated    State = "terminated"
)

// Transition is handed to observers on every state change.
type Transition struct {
	RunID    string
	Scenario string
	From     State
	To       State
	At       time.Time
}

// Observer receives transitions synchronously, in order.
type Observer func(Transition)

// Recorder is notified about session lifetimes and finished reports.
// observability.Metrics implements it.
type Recorder interface {
	SessionOpened()
	SessionClosed()
	ObserveReport(schemas.ScenarioReport)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened()                       {}
func (nopRecorder) SessionClosed()                       {}
func (nopRecorder) ObserveReport(schemas.ScenarioReport) {}

// Option customizes a Runner.
type Option func(*Runner)

// WithObserver registers a state transition observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithFrameTimeout sets the per-frame readiness budget.
func WithFrameTimeout(d time.Duration) Option {
	return func(r *Runner) { r.frameTimeout = d }
}

// Runner drives one scenario at a time through acquisition, navigation,
// frame synchronization, steps and assertions, and always releases the
// session it acquired.
type Runner struct {
	guard        *session.Guard
	frames       *frames.Synchronizer
	executor     *steps.Executor
	assertions   *assertions.Engine
	logger       *zap.Logger
	frameTimeout time.Duration
	observers    []Observer
	recorder     Recorder
}

// New creates a Runner from fully configured components.
func New(
	guard *session.Guard,
	sync *frames.Synchronizer,
	executor *steps.Executor,
	engine *assertions.Engine,
	logger *zap.Logger,
	opts ...Option,
) (*Runner, error) {
	if guard == nil || sync == nil || executor == nil || engine == nil || logger == nil {
		return nil, errors.New("cannot initialize runner with nil dependencies")
	}
	r := &Runner{
		guard:        guard,
		frames:       sync,
		executor:     executor,
		assertions:   engine,
		logger:       logger.Named("runner"),
		frameTimeout: frames.DefaultTimeout,
		recorder:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes sc and returns its report. The error is non-nil only when sc
// is invalid (no report is produced) or the session could not be set up
// (an aborted report is still returned). Every other failure is captured in
// the report.
func (r *Runner) Run(ctx context.Context, sc schemas.Scenario) (schemas.ScenarioReport, error) {
	if err := sc.Validate(); err != nil {
		return schemas.ScenarioReport{}, fmt.Errorf("invalid scenario: %w", err)
	}

	rs := r.newRun(sc)
	rs.logger.Info("Starting scenario.", zap.Int("steps", len(sc.Steps)), zap.Int("assertions", len(sc.Assertions)))

	rs.enter(StateAcquiring)
	sess, err := r.guard.Acquire(ctx)
	if err != nil {
		rs.abort(err)
		rs.enter(StateTerminated)
		report := rs.finish()
		r.recorder.ObserveReport(report)
		return report, err
	}
	r.recorder.SessionOpened()

	report := r.drive(ctx, rs, sess)
	r.recorder.ObserveReport(report)
	return report, nil
}

// drive runs the post-acquisition phases. The deferred block is the single
// release point for the session, reached on every path including panics.
func (r *Runner) drive(ctx context.Context, rs *run, sess *session.Session) (report schemas.ScenarioReport) {
	defer func() {
		if p := recover(); p != nil {
			rs.logger.Error("Scenario panicked.", zap.String("state", string(rs.state)), zap.Any("panic", p), zap.Stack("stack"))
			rs.outcome = schemas.OutcomeAborted
			rs.abortedIn = rs.state
			rs.diagnostics = append(rs.diagnostics, schemas.Diagnostic{
				Level:   schemas.LevelError,
				Code:    schemas.ErrCodePanic,
				Message: fmt.Sprintf("panic in %s: %v", rs.state, p),
				At:      time.Now(),
			})
		}
		rs.enter(StateTerminated)
		for _, err := range r.guard.Release(ctx, sess) {
			rs.diagnostics = append(rs.diagnostics, schemas.NewDiagnostic(schemas.LevelWarn, err))
		}
		r.recorder.SessionClosed()
		report = rs.finish()
	}()

	rs.logger = rs.logger.With(zap.String("session_id", sess.ID))
	sc := rs.scenario

	rs.enter(StateNavigating)
	from, ok := r.navigate(ctx, rs, sess)
	if !ok {
		return
	}

	rs.enter(StateSynchronizing)
	readiness := r.frames.AwaitReady(ctx, sess.Page(), r.frameTimeout)
	rs.frames = readiness
	rs.diagnostics = append(rs.diagnostics, readiness.Diagnostics...)
	if err := ctx.Err(); err != nil {
		rs.abort(err)
		return
	}

	rs.enter(StateExecuting)
	stepRun := r.executor.RunFrom(ctx, sess, sc.Steps, from)
	rs.steps = append(rs.steps, stepRun.Results...)
	rs.diagnostics = append(rs.diagnostics, stepRun.Diagnostics...)
	if stepRun.Fatal != nil {
		rs.abort(stepRun.Fatal)
		return
	}

	rs.enter(StateAsserting)
	assertionReport := r.assertions.Evaluate(ctx, sess, sc.Assertions)
	rs.assertions = assertionReport.Results
	if err := ctx.Err(); err != nil {
		rs.abort(err)
		return
	}

	rs.enter(StateReporting)
	rs.outcome = schemas.OutcomePass
	for _, failed := range assertionReport.Failed() {
		rs.outcome = schemas.OutcomeFail
		rs.diagnostics = append(rs.diagnostics, schemas.Diagnostic{
			Level:   schemas.LevelError,
			Code:    failed.Code,
			Message: fmt.Sprintf("assertion %d %s failed: %s", failed.Index, failed.Label, failed.Error),
			At:      time.Now(),
		})
	}

	if sc.Linger > 0 {
		rs.logger.Debug("Lingering before release.", zap.Duration("linger", sc.Linger))
		t := time.NewTimer(sc.Linger)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	return
}

// navigate performs the initial page load. It returns the index of the first
// step left for the executor and false when the run was aborted.
func (r *Runner) navigate(ctx context.Context, rs *run, sess *session.Session) (int, bool) {
	sc := rs.scenario
	switch {
	case sc.URL != "":
		if err := r.executor.Navigate(ctx, sess.Page(), sc.URL); err != nil {
			rs.abort(err)
			return 0, false
		}
		return 0, true
	case len(sc.Steps) > 0 && sc.Steps[0].Kind == schemas.StepNavigate:
		res, diag, fatal := r.executor.Execute(ctx, sess, 0, sc.Steps[0])
		rs.steps = append(rs.steps, res)
		if diag != nil {
			rs.diagnostics = append(rs.diagnostics, *diag)
		}
		if fatal != nil {
			rs.abort(fatal)
			return 0, false
		}
		return 1, true
	default:
		rs.logger.Warn("Scenario has no initial navigation; running on a blank page.")
		return 0, true
	}
}

// run accumulates one scenario's report while the state machine advances.
type run struct {
	id        string
	scenario  schemas.Scenario
	startedAt time.Time
	logger    *zap.Logger
	observers []Observer

	state       State
	outcome     schemas.Outcome
	abortedIn   State
	steps       []schemas.StepResult
	frames      schemas.FrameReadinessReport
	assertions  []schemas.AssertionResult
	diagnostics []schemas.Diagnostic
}

func (r *Runner) newRun(sc schemas.Scenario) *run {
	id := uuid.New().String()
	return &run{
		id:        id,
		scenario:  sc,
		startedAt: time.Now(),
		logger:    r.logger.With(zap.String("scenario", sc.Name), zap.String("run_id", id)),
		observers: r.observers,
		state:     StateIdle,
	}
}

func (rs *run) enter(to State) {
	from := rs.state
	rs.state = to
	rs.logger.Debug("Scenario state changed.", zap.String("from", string(from)), zap.String("to", string(to)))
	t := Transition{RunID: rs.id, Scenario: rs.scenario.Name, From: from, To: to, At: time.Now()}
	for _, o := range rs.observers {
		o(t)
	}
}

// abort marks the run aborted in the current state.
func (rs *run) abort(err error) {
	rs.outcome = schemas.OutcomeAborted
	rs.abortedIn = rs.state
	rs.diagnostics = append(rs.diagnostics, schemas.NewDiagnostic(schemas.LevelError, err))
	rs.logger.Warn("Scenario aborted.", zap.String("state", string(rs.state)), zap.Error(err))
}

func (rs *run) finish() schemas.ScenarioReport {
	failures := 0
	for _, s := range rs.steps {
		if s.Failed() {
			failures++
		}
	}
	report := schemas.ScenarioReport{
		RunID:            rs.id,
		Name:             rs.scenario.Name,
		Source:           rs.scenario.Source,
		Outcome:          rs.outcome,
		StartedAt:        rs.startedAt,
		Duration:         time.Since(rs.startedAt),
		StepsExecuted:    len(rs.steps),
		StepFailures:     failures,
		StepResults:      rs.steps,
		Frames:           rs.frames,
		AssertionResults: rs.assertions,
		Diagnostics:      rs.diagnostics,
	}
	if rs.outcome == schemas.OutcomeAborted {
		report.AbortedIn = string(rs.abortedIn)
	}
	rs.logger.Info("Scenario finished.",
		zap.String("outcome", string(report.Outcome)),
		zap.Duration("duration", report.Duration),
		zap.Int("steps_executed", report.StepsExecuted),
		zap.Int("step_failures", report.StepFailures),
		zap.Int("assertion_failures", len(report.FailedAssertions())),
	)
	return report
}
