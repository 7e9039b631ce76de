// internal/reporting/junit_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/observability"
)

// JUnitReporter renders reports as JUnit XML for CI systems. Each scenario is
// a testcase: fail becomes <failure>, aborted becomes <error>.
type JUnitReporter struct {
	writer  io.WriteCloser
	version string
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	reports []schemas.ScenarioReport
}

func NewJUnitReporter(writer io.WriteCloser, toolVersion string) *JUnitReporter {
	return &JUnitReporter{
		writer:  writer,
		version: toolVersion,
		logger:  observability.GetLogger().Named("junit_reporter"),
		now:     time.Now,
	}
}

func (r *JUnitReporter) Write(report schemas.ScenarioReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.build()
	doc.Indent(2)
	_, writeErr := doc.WriteTo(r.writer)
	closeErr := r.writer.Close()

	if writeErr != nil {
		r.logger.Error("Failed to write JUnit report.", zap.Error(writeErr))
		return fmt.Errorf("failed to write JUnit output: %w", writeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer.", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func (r *JUnitReporter) build() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	sum := Summarize(r.reports)
	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", ToolName)
	suites.CreateAttr("tests", strconv.Itoa(sum.Total))
	suites.CreateAttr("failures", strconv.Itoa(sum.Failed))
	suites.CreateAttr("errors", strconv.Itoa(sum.Aborted))
	suites.CreateAttr("time", seconds(sum.Duration))

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", ToolName)
	suite.CreateAttr("tests", strconv.Itoa(sum.Total))
	suite.CreateAttr("failures", strconv.Itoa(sum.Failed))
	suite.CreateAttr("errors", strconv.Itoa(sum.Aborted))
	suite.CreateAttr("time", seconds(sum.Duration))
	suite.CreateAttr("timestamp", r.now().UTC().Format(time.RFC3339))

	props := suite.CreateElement("properties")
	prop := props.CreateElement("property")
	prop.CreateAttr("name", "version")
	prop.CreateAttr("value", r.version)

	for _, rep := range r.reports {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", rep.Name)
		classname := rep.Source
		if classname == "" {
			classname = ToolName
		}
		tc.CreateAttr("classname", classname)
		tc.CreateAttr("time", seconds(rep.Duration))

		switch rep.Outcome {
		case schemas.OutcomeFail:
			failed := rep.FailedAssertions()
			el := tc.CreateElement("failure")
			el.CreateAttr("type", string(schemas.ErrCodeAssertionTimeout))
			el.CreateAttr("message", fmt.Sprintf("%d of %d assertions failed", len(failed), len(rep.AssertionResults)))
			el.SetText(failureText(failed))
		case schemas.OutcomePass:
		default:
			el := tc.CreateElement("error")
			code, msg := abortCause(rep)
			el.CreateAttr("type", string(code))
			el.CreateAttr("message", fmt.Sprintf("aborted in %s: %s", rep.AbortedIn, msg))
		}

		if out := systemOut(rep); out != "" {
			tc.CreateElement("system-out").CreateCData(out)
		}
	}
	return doc
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func failureText(failed []schemas.AssertionResult) string {
	var b strings.Builder
	for _, a := range failed {
		fmt.Fprintf(&b, "%s: expected visible=%t, observed visible=%t after %d attempts (%d matches)",
			a.Locator, a.ExpectVisible, a.ObservedVisible, a.Attempts, a.MatchCount)
		if a.LastError != "" {
			fmt.Fprintf(&b, "; last error: %s", a.LastError)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// abortCause returns the first error-level diagnostic, which is the one that
// stopped the run.
func abortCause(rep schemas.ScenarioReport) (schemas.ErrorCode, string) {
	for _, d := range rep.Diagnostics {
		if d.Level == schemas.LevelError {
			return d.Code, d.Message
		}
	}
	return "", "unknown cause"
}

func systemOut(rep schemas.ScenarioReport) string {
	var b strings.Builder
	for _, s := range rep.StepResults {
		if s.Failed() {
			fmt.Fprintf(&b, "step %d %s failed [%s]: %s\n", s.Index, s.Label, s.Code, s.Error)
		}
	}
	for _, d := range rep.Diagnostics {
		if d.Level != schemas.LevelError {
			fmt.Fprintf(&b, "%s [%s]: %s\n", d.Level, d.Code, d.Message)
		}
	}
	return b.String()
}
