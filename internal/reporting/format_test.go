// internal/reporting/format_test.go
package reporting

import (
	"bytes"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fixtureReports() []schemas.ScenarioReport {
	at := fixedNow
	return []schemas.ScenarioReport{
		{
			RunID:         "run-pass",
			Name:          "search without results",
			Source:        "scenarios/search.yaml",
			Outcome:       schemas.OutcomePass,
			StartedAt:     at,
			Duration:      1234 * time.Millisecond,
			StepsExecuted: 4,
			Frames: schemas.FrameReadinessReport{Rounds: 2, Frames: []schemas.FrameStatus{
				{ID: "F1", Main: true, URL: "https://shop.test/", State: schemas.FrameReady},
				{ID: "F2", ParentID: "F1", URL: "https://chat.test/widget", State: schemas.FrameReady},
				{ID: "F3", ParentID: "F1", URL: "https://ads.test/slot", State: schemas.FrameTimedOut},
			}},
			AssertionResults: []schemas.AssertionResult{
				{Index: 0, Label: "visible(text=No Results)", Locator: "text=No Results", ExpectVisible: true, ObservedVisible: true, MatchCount: 1, Passed: true, Attempts: 3},
				{Index: 1, Label: "hidden(text=Loading)", Locator: "text=Loading", Passed: true, Attempts: 1},
			},
			Diagnostics: []schemas.Diagnostic{
				{Level: schemas.LevelWarn, Code: schemas.ErrCodeFrameTimeout, Message: "frame F3 (https://ads.test/slot) not ready within 3s", At: at},
			},
		},
		{
			RunID:         "run-fail",
			Name:          "category filter",
			Outcome:       schemas.OutcomeFail,
			StartedAt:     at,
			Duration:      2 * time.Second,
			StepsExecuted: 3,
			StepFailures:  1,
			StepResults: []schemas.StepResult{
				{Index: 0, Kind: schemas.StepNavigate, Label: "navigate(https://shop.test/catalog)", Status: schemas.StepPassed},
				{Index: 1, Kind: schemas.StepClick, Label: "click(text=Shoes)", Status: schemas.StepPassed},
				{Index: 2, Kind: schemas.StepClick, Label: "click(text=Hats)", Status: schemas.StepFailed,
					Code: schemas.ErrCodeElementResolution, Error: "no element matches text=Hats in main frame"},
			},
			Frames: schemas.FrameReadinessReport{Rounds: 1, Frames: []schemas.FrameStatus{
				{ID: "F1", Main: true, URL: "https://shop.test/catalog", State: schemas.FrameReady},
			}},
			AssertionResults: []schemas.AssertionResult{
				{Index: 0, Label: "visible(text=Shoes)", Locator: "text=Shoes", ExpectVisible: true, ObservedVisible: true, MatchCount: 1, Passed: true, Attempts: 1},
				{Index: 1, Label: "visible(text=products)", Locator: "text=products", ExpectVisible: true, Attempts: 12,
					Code: schemas.ErrCodeAssertionTimeout, Error: "timed out"},
			},
			Diagnostics: []schemas.Diagnostic{
				{Level: schemas.LevelError, Code: schemas.ErrCodeAssertionTimeout, Message: "assertion 1 visible(text=products) failed: timed out", At: at},
			},
		},
		{
			RunID:         "run-abort",
			Name:          "offline",
			Outcome:       schemas.OutcomeAborted,
			AbortedIn:     "navigating",
			StartedAt:     at,
			Duration:      120 * time.Millisecond,
			StepsExecuted: 1,
			StepFailures:  1,
			StepResults: []schemas.StepResult{
				{Index: 0, Kind: schemas.StepNavigate, Label: "navigate(https://offline.test/)", Status: schemas.StepFailed, Fatal: true,
					Code: schemas.ErrCodeNavigation, Error: "navigation to https://offline.test/ failed (timeout 10s): net::ERR_NAME_NOT_RESOLVED"},
			},
			Diagnostics: []schemas.Diagnostic{
				{Level: schemas.LevelError, Code: schemas.ErrCodeNavigation, Message: "navigation to https://offline.test/ failed (timeout 10s): net::ERR_NAME_NOT_RESOLVED", At: at},
				{Level: schemas.LevelWarn, Code: schemas.ErrCodeResourceRelease, Message: "release browser: process already gone", At: at},
			},
		},
	}
}

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestTextReporter_Golden(t *testing.T) {
	buf := &bufferCloser{}
	r := NewTextReporter(buf)
	for _, rep := range fixtureReports() {
		require.NoError(t, r.Write(rep))
	}
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "text_report", buf.Bytes())
}

func TestJSONReporter(t *testing.T) {
	buf := &bufferCloser{}
	r := NewJSONReporter(buf, "1.2.3")
	r.now = func() time.Time { return fixedNow }
	for _, rep := range fixtureReports() {
		require.NoError(t, r.Write(rep))
	}
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)

	var doc JSONDocument
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, ToolName, doc.Tool)
	assert.Equal(t, "1.2.3", doc.Version)
	assert.True(t, doc.GeneratedAt.Equal(fixedNow))
	assert.Equal(t, Summary{Total: 3, Passed: 1, Failed: 1, Aborted: 1, Duration: 3354 * time.Millisecond}, doc.Summary)
	require.Len(t, doc.Scenarios, 3)
	assert.Equal(t, "navigating", doc.Scenarios[2].AbortedIn)
	assert.Equal(t, schemas.FrameTimedOut, doc.Scenarios[0].Frames.Frames[2].State)
	assert.Equal(t, "text=products", doc.Scenarios[1].FailedAssertions()[0].Locator)

	assert.Contains(t, buf.String(), `"outcome": "aborted"`)
}

func TestJSONReporter_EmptyRun(t *testing.T) {
	buf := &bufferCloser{}
	r := NewJSONReporter(buf, "dev")
	require.NoError(t, r.Close())

	var doc JSONDocument
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.NotNil(t, doc.Scenarios)
	assert.Empty(t, doc.Scenarios)
	assert.Equal(t, 0, doc.Summary.Total)
}

func TestJUnitReporter(t *testing.T) {
	buf := &bufferCloser{}
	r := NewJUnitReporter(buf, "1.2.3")
	r.now = func() time.Time { return fixedNow }
	for _, rep := range fixtureReports() {
		require.NoError(t, r.Write(rep))
	}
	require.NoError(t, r.Close())

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))

	suite := doc.FindElement("/testsuites/testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, "3", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("errors", ""))
	assert.Equal(t, "3.354", suite.SelectAttrValue("time", ""))
	assert.Equal(t, "2026-03-14T09:30:00Z", suite.SelectAttrValue("timestamp", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 3)

	assert.Equal(t, "search without results", cases[0].SelectAttrValue("name", ""))
	assert.Equal(t, "scenarios/search.yaml", cases[0].SelectAttrValue("classname", ""))
	assert.Nil(t, cases[0].SelectElement("failure"))
	assert.Contains(t, cases[0].SelectElement("system-out").Text(), "FRAME_TIMEOUT")

	failure := cases[1].SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, "1 of 2 assertions failed", failure.SelectAttrValue("message", ""))
	assert.Contains(t, failure.Text(), "text=products: expected visible=true, observed visible=false")
	assert.Contains(t, cases[1].SelectElement("system-out").Text(), "step 2 click(text=Hats) failed")

	errEl := cases[2].SelectElement("error")
	require.NotNil(t, errEl)
	assert.Equal(t, "NAVIGATION", errEl.SelectAttrValue("type", ""))
	assert.Contains(t, errEl.SelectAttrValue("message", ""), "aborted in navigating")
}
