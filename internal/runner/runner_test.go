// internal/runner/runner_test.go
package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/assertions"
	"github.com/xkilldash9x/scenarist/internal/browser"
	"github.com/xkilldash9x/scenarist/internal/browser/fake"
	"github.com/xkilldash9x/scenarist/internal/frames"
	"github.com/xkilldash9x/scenarist/internal/session"
	"github.com/xkilldash9x/scenarist/internal/steps"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	catalog = "https://catalog.test/"
	offline = "https://offline.test/"
)

var fullLifecycle = []string{
	"driver.start", "browser.launch", "context.new", "page.new",
	"page.close", "context.close", "browser.close", "driver.close",
}

type catalogPage struct {
	search  *fake.Element
	chipA   *fake.Element
	results *fake.Element
	empty   *fake.Element
}

// newCatalog serves a search page: filling the box reveals the empty state,
// clicking the first category chip reveals the results list.
func newCatalog() (*fake.Automation, *catalogPage) {
	cp := &catalogPage{
		search:  &fake.Element{Role: "searchbox", Name: "Search"},
		chipA:   &fake.Element{Text: "Shoes", Role: "button"},
		results: &fake.Element{Text: "42 products", Hidden: true},
		empty:   &fake.Element{Text: "No Results", Hidden: true},
	}
	cp.chipA.OnClick = func() { cp.results.SetHidden(false) }

	a := fake.New().
		Route(catalog, fake.Route{Build: func(p *fake.Page) {
			p.Main().Add(cp.search, cp.chipA, cp.results, cp.empty)
			p.Main().AddFrame("ads", "https://ads.test/slot").Hang()
			p.Main().AddFrame("chat", "https://chat.test/widget")
		}}).
		Route(offline, fake.Route{Err: errors.New("net::ERR_NAME_NOT_RESOLVED")})
	return a, cp
}

func newRunner(t *testing.T, a browser.Automation, opts ...Option) *Runner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := steps.Config{
		NavigationTimeout: 200 * time.Millisecond,
		ClickTimeout:      100 * time.Millisecond,
		FillTimeout:       100 * time.Millisecond,
		WaitUntil:         browser.WaitCommit,
	}
	opts = append([]Option{WithFrameTimeout(30 * time.Millisecond)}, opts...)
	r, err := New(
		session.NewGuard(a, browser.LaunchOptions{Headless: true}, 100*time.Millisecond, logger),
		frames.New(0, logger),
		steps.NewExecutor(cfg, logger),
		assertions.New(200*time.Millisecond, 10*time.Millisecond, logger),
		logger,
		opts...,
	)
	require.NoError(t, err)
	return r
}

type transitions struct {
	mu     sync.Mutex
	states []State
}

func (tr *transitions) observe(t Transition) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.states = append(tr.states, t.To)
}

func (tr *transitions) get() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.states...)
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestRun_EmptyStateSearchPasses(t *testing.T) {
	a, cp := newCatalog()
	tr := &transitions{}
	r := newRunner(t, a, WithObserver(tr.observe))

	sc := schemas.Scenario{
		Name: "search without results",
		Steps: []schemas.Step{
			schemas.Navigate(catalog),
			schemas.Fill(schemas.Role("searchbox"), "no-such-term"),
		},
		Assertions: []schemas.Assertion{schemas.Visible(schemas.Text("No Results"))},
	}
	go func() {
		for cp.search.Value() == "" {
			time.Sleep(5 * time.Millisecond)
		}
		cp.empty.SetHidden(false)
	}()

	report, err := r.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomePass, report.Outcome)
	assert.Empty(t, report.AbortedIn)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.StepsExecuted)
	assert.Zero(t, report.StepFailures)
	assert.Equal(t, 0, report.StepResults[0].Index, "the leading navigate is recorded as step 0")
	require.Len(t, report.AssertionResults, 1)
	assert.True(t, report.AssertionResults[0].Passed)

	assert.Equal(t, fullLifecycle, a.Calls())
	assert.Zero(t, a.Open())

	want := []State{
		StateAcquiring, StateNavigating, StateSynchronizing, StateExecuting,
		StateAsserting, StateReporting, StateTerminated,
	}
	if diff := cmp.Diff(want, tr.get()); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_EmptyStateMissingFails(t *testing.T) {
	a, _ := newCatalog()
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{
		Name: "search without results",
		Steps: []schemas.Step{
			schemas.Navigate(catalog),
			schemas.Fill(schemas.Role("searchbox"), "no-such-term"),
		},
		Assertions: []schemas.Assertion{
			schemas.Visible(schemas.Text("No Results")).WithTimeout(40 * time.Millisecond),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomeFail, report.Outcome)
	failed := report.FailedAssertions()
	require.Len(t, failed, 1)
	assert.Equal(t, "text=No Results", failed[0].Locator)
	assert.False(t, failed[0].ObservedVisible)

	var named bool
	for _, d := range report.Diagnostics {
		if d.Code == schemas.ErrCodeAssertionTimeout {
			named = true
			assert.Contains(t, d.Message, "No Results")
		}
	}
	assert.True(t, named, "a failed assertion must leave a diagnostic naming its locator")
	assert.Zero(t, a.Open())
}

func TestRun_ClearingSearchRestoresEmptyInputState(t *testing.T) {
	search := &fake.Element{Role: "searchbox", Name: "Search"}
	hint := &fake.Element{Text: "Type to search"}
	empty := &fake.Element{Text: "No Results", Hidden: true}
	search.OnFill = func(v string) {
		hint.SetHidden(v != "")
		empty.SetHidden(v == "")
	}
	a := fake.New().Route(catalog, fake.Route{Build: func(p *fake.Page) {
		p.Main().Add(search, hint, empty)
	}})
	r := newRunner(t, a)

	box := schemas.Role("searchbox")
	report, err := r.Run(context.Background(), schemas.Scenario{
		Name: "clear search",
		URL:  catalog,
		Steps: []schemas.Step{
			schemas.Fill(box, "no-such-term"),
			schemas.Fill(box, ""),
		},
		Assertions: []schemas.Assertion{
			schemas.Visible(schemas.Text("Type to search")).WithTimeout(100 * time.Millisecond),
			schemas.Hidden(schemas.Text("No Results")).WithTimeout(100 * time.Millisecond),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomePass, report.Outcome)
	assert.Zero(t, report.StepFailures)
	assert.Equal(t, `fill(role=searchbox, "")`, report.StepResults[1].Label)
	assert.Empty(t, search.Value())
	assert.Zero(t, a.Open())
}

func TestRun_MissingChipIsNotFatal(t *testing.T) {
	a, cp := newCatalog()
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{
		Name: "category filter",
		URL:  catalog,
		Steps: []schemas.Step{
			schemas.Click(schemas.Text("Shoes")),
			schemas.Click(schemas.Text("Hats")),
		},
		Assertions: []schemas.Assertion{schemas.Visible(schemas.Text("42 products"))},
	})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomePass, report.Outcome)
	assert.Equal(t, 2, report.StepsExecuted)
	assert.Equal(t, 1, report.StepFailures)
	assert.Equal(t, 1, report.FailedSteps()[0].Index)
	assert.Equal(t, schemas.ErrCodeElementResolution, report.FailedSteps()[0].Code)
	assert.Equal(t, 1, cp.chipA.Clicks())
	require.Len(t, report.AssertionResults, 1)
}

func TestRun_FramesDegradeGracefully(t *testing.T) {
	a, _ := newCatalog()
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{Name: "frames", URL: catalog})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomePass, report.Outcome)
	assert.Equal(t,
		[]schemas.FrameState{schemas.FrameReady, schemas.FrameTimedOut, schemas.FrameReady},
		report.Frames.States())

	var frameDiag bool
	for _, d := range report.Diagnostics {
		if d.Code == schemas.ErrCodeFrameTimeout {
			frameDiag = true
		}
	}
	assert.True(t, frameDiag)
}

func TestRun_UnreachableNavigationAborts(t *testing.T) {
	a, _ := newCatalog()
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{
		Name: "offline",
		Steps: []schemas.Step{
			schemas.Navigate(offline),
			schemas.Click(schemas.Text("Shoes")),
		},
		Assertions: []schemas.Assertion{schemas.Visible(schemas.Text("42 products"))},
	})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomeAborted, report.Outcome)
	assert.Equal(t, string(StateNavigating), report.AbortedIn)
	assert.Equal(t, 1, report.StepsExecuted)
	assert.Empty(t, report.AssertionResults)
	assert.Empty(t, report.Frames.Frames)
	assert.Equal(t, fullLifecycle, a.Calls())
}

func TestRun_ScenarioURLFailureAborts(t *testing.T) {
	a, _ := newCatalog()
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{Name: "offline", URL: offline})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomeAborted, report.Outcome)
	assert.Zero(t, report.StepsExecuted)
	require.NotEmpty(t, report.Diagnostics)
	assert.Equal(t, schemas.ErrCodeNavigation, report.Diagnostics[0].Code)
}

func TestRun_LateNavigateFailureAbortsInExecuting(t *testing.T) {
	a, _ := newCatalog()
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{
		Name: "offline later",
		URL:  catalog,
		Steps: []schemas.Step{
			schemas.Navigate(offline),
			schemas.Click(schemas.Text("Shoes")),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeAborted, report.Outcome)
	assert.Equal(t, string(StateExecuting), report.AbortedIn)
	assert.Equal(t, 1, report.StepsExecuted)
}

func TestRun_SessionSetupFailure(t *testing.T) {
	a := fake.New().FailAcquire(schemas.StageContext, errors.New("target crashed"))
	tr := &transitions{}
	r := newRunner(t, a, WithObserver(tr.observe))

	report, err := r.Run(context.Background(), schemas.Scenario{Name: "setup", URL: catalog})

	var setupErr *schemas.SessionSetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, schemas.StageContext, setupErr.Stage)
	assert.Equal(t, schemas.OutcomeAborted, report.Outcome)
	assert.Equal(t, string(StateAcquiring), report.AbortedIn)
	assert.Zero(t, report.StepsExecuted)
	assert.Zero(t, a.Open())
	assert.Equal(t, []string{"driver.start", "browser.launch", "context.new", "browser.close", "driver.close"}, a.Calls())
	assert.Equal(t, []State{StateAcquiring, StateTerminated}, tr.get())
}

// contextPanics wraps an automation so that creating a browser context panics.
type contextPanics struct{ *fake.Automation }

type contextPanicsDriver struct{ browser.Driver }

type contextPanicsBrowser struct{ browser.Browser }

func (a contextPanics) StartDriver(ctx context.Context) (browser.Driver, error) {
	d, err := a.Automation.StartDriver(ctx)
	if err != nil {
		return nil, err
	}
	return contextPanicsDriver{d}, nil
}

func (d contextPanicsDriver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	b, err := d.Driver.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return contextPanicsBrowser{b}, nil
}

func (contextPanicsBrowser) NewContext(context.Context) (browser.BrowserContext, error) {
	panic("context creation blew up")
}

func TestRun_PanicDuringSetupReleases(t *testing.T) {
	a := fake.New()
	r := newRunner(t, contextPanics{a})

	var (
		report schemas.ScenarioReport
		err    error
	)
	require.NotPanics(t, func() {
		report, err = r.Run(context.Background(), schemas.Scenario{Name: "setup panic", URL: catalog})
	})

	var setupErr *schemas.SessionSetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, schemas.StageContext, setupErr.Stage)
	assert.Equal(t, schemas.OutcomeAborted, report.Outcome)
	assert.Equal(t, string(StateAcquiring), report.AbortedIn)
	assert.Equal(t, []string{"driver.start", "browser.launch", "browser.close", "driver.close"}, a.Calls())
	assert.Zero(t, a.Open())
}

func TestRun_InvalidScenario(t *testing.T) {
	a := fake.New()
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{Name: ""})
	require.Error(t, err)
	assert.Empty(t, report.RunID)
	assert.Empty(t, a.Calls(), "no session is acquired for an invalid scenario")
}

func TestRun_PanicStillReleases(t *testing.T) {
	a, _ := newCatalog()
	r := newRunner(t, a, WithObserver(func(tr Transition) {
		if tr.To == StateExecuting {
			panic("observer exploded")
		}
	}))

	report, err := r.Run(context.Background(), schemas.Scenario{Name: "panic", URL: catalog})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomeAborted, report.Outcome)
	assert.Equal(t, string(StateExecuting), report.AbortedIn)
	var panicDiag bool
	for _, d := range report.Diagnostics {
		if d.Code == schemas.ErrCodePanic {
			panicDiag = true
			assert.Contains(t, d.Message, "observer exploded")
		}
	}
	assert.True(t, panicDiag)
	assert.Equal(t, fullLifecycle, a.Calls())
}

func TestRun_CancellationAbortsAndReleases(t *testing.T) {
	a, cp := newCatalog()
	ctx, cancel := context.WithCancel(context.Background())
	cp.chipA.OnClick = cancel
	r := newRunner(t, a)

	report, err := r.Run(ctx, schemas.Scenario{
		Name: "interrupted",
		URL:  catalog,
		Steps: []schemas.Step{
			schemas.Click(schemas.Text("Shoes")),
			schemas.Sleep(time.Second),
		},
		Assertions: []schemas.Assertion{schemas.Visible(schemas.Text("42 products"))},
	})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomeAborted, report.Outcome)
	assert.Empty(t, report.AssertionResults)
	assert.Equal(t, fullLifecycle, a.Calls())
	assert.Zero(t, a.Open())
}

func TestRun_ReleaseErrorsDoNotMaskOutcome(t *testing.T) {
	a, _ := newCatalog()
	a.FailRelease(schemas.StageBrowser, errors.New("process already gone"))
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{Name: "release", URL: catalog})
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomePass, report.Outcome)
	last := report.Diagnostics[len(report.Diagnostics)-1]
	assert.Equal(t, schemas.ErrCodeResourceRelease, last.Code)
	assert.Equal(t, schemas.LevelWarn, last.Level)
	assert.Equal(t, fullLifecycle, a.Calls())
}

func TestRun_Linger(t *testing.T) {
	a, _ := newCatalog()
	r := newRunner(t, a)

	report, err := r.Run(context.Background(), schemas.Scenario{Name: "linger", URL: catalog, Linger: 60 * time.Millisecond})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Duration, 60*time.Millisecond)
}

type countingRecorder struct {
	mu      sync.Mutex
	opened  int
	closed  int
	reports []schemas.Outcome
}

func (c *countingRecorder) SessionOpened() { c.mu.Lock(); c.opened++; c.mu.Unlock() }
func (c *countingRecorder) SessionClosed() { c.mu.Lock(); c.closed++; c.mu.Unlock() }
func (c *countingRecorder) ObserveReport(r schemas.ScenarioReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r.Outcome)
}

func TestRun_Recorder(t *testing.T) {
	a, _ := newCatalog()
	rec := &countingRecorder{}
	r := newRunner(t, a, WithRecorder(rec))

	_, err := r.Run(context.Background(), schemas.Scenario{Name: "ok", URL: catalog})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), schemas.Scenario{Name: "offline", URL: offline})
	require.NoError(t, err)

	assert.Equal(t, 2, rec.opened)
	assert.Equal(t, 2, rec.closed)
	assert.Equal(t, []schemas.Outcome{schemas.OutcomePass, schemas.OutcomeAborted}, rec.reports)
}
