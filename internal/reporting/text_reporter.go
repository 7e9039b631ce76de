// internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

// TextReporter streams a human readable block per scenario and a summary
// line on Close.
type TextReporter struct {
	writer io.WriteCloser

	mu      sync.Mutex
	reports []schemas.ScenarioReport
}

func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) Write(report schemas.ScenarioReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	_, err := io.WriteString(r.writer, FormatText(report))
	return err
}

func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summarize(r.reports)
	_, writeErr := fmt.Fprintf(r.writer, "\n%d scenarios: %d passed, %d failed, %d aborted (%s)\n",
		s.Total, s.Passed, s.Failed, s.Aborted, round(s.Duration))
	closeErr := r.writer.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write summary: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

var outcomeLabels = map[schemas.Outcome]string{
	schemas.OutcomePass:    "PASS ",
	schemas.OutcomeFail:    "FAIL ",
	schemas.OutcomeAborted: "ABORT",
}

// FormatText renders one report.
func FormatText(rep schemas.ScenarioReport) string {
	var b strings.Builder
	label, ok := outcomeLabels[rep.Outcome]
	if !ok {
		label = strings.ToUpper(string(rep.Outcome))
	}
	fmt.Fprintf(&b, "%s %s (%s)", label, rep.Name, round(rep.Duration))
	if rep.AbortedIn != "" {
		fmt.Fprintf(&b, " in %s", rep.AbortedIn)
	}
	b.WriteByte('\n')

	const indent = "      "
	fmt.Fprintf(&b, "%ssteps: %d executed, %d failed\n", indent, rep.StepsExecuted, rep.StepFailures)
	for _, s := range rep.FailedSteps() {
		fmt.Fprintf(&b, "%s  x step %d %s [%s]: %s\n", indent, s.Index, s.Label, s.Code, s.Error)
	}

	if n := len(rep.Frames.Frames); n > 0 {
		fmt.Fprintf(&b, "%sframes: %d ready, %d timed out, %d detached\n", indent,
			rep.Frames.Count(schemas.FrameReady), rep.Frames.Count(schemas.FrameTimedOut), rep.Frames.Count(schemas.FrameDetached))
	}

	if n := len(rep.AssertionResults); n > 0 {
		failed := rep.FailedAssertions()
		fmt.Fprintf(&b, "%sassertions: %d of %d failed\n", indent, len(failed), n)
		for _, a := range failed {
			fmt.Fprintf(&b, "%s  x %s: expected visible=%t, observed visible=%t (%d matches, %d attempts)\n",
				indent, a.Label, a.ExpectVisible, a.ObservedVisible, a.MatchCount, a.Attempts)
			if a.LastError != "" {
				fmt.Fprintf(&b, "%s    last error: %s\n", indent, a.LastError)
			}
		}
	}

	for _, d := range rep.Diagnostics {
		mark := "~"
		if d.Level == schemas.LevelError {
			mark = "!"
		}
		if d.Code == schemas.ErrCodeAssertionTimeout {
			// Already listed under assertions.
			continue
		}
		fmt.Fprintf(&b, "%s%s %s [%s]: %s\n", indent, mark, d.Level, d.Code, d.Message)
	}
	return b.String()
}

func round(d time.Duration) time.Duration { return d.Round(time.Millisecond) }
